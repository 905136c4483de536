// Package obslog wires every subsystem through one charmbracelet/log
// instance so log lines carry a consistent subsystem tag the way the
// C source's LOGSRC string tagged each logDEBUG/logINFO call site.
package obslog

import (
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/log"
)

var (
	mu      sync.Mutex
	root    = log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	tagged  = map[string]*log.Logger{}
)

// SetOutput redirects all future tagged loggers to w. Intended for tests
// and for cmd/dmtptracker wiring a rotated file.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	root = log.NewWithOptions(w, log.Options{ReportTimestamp: true})
	tagged = map[string]*log.Logger{}
}

// SetLevel sets the minimum level for every tagged logger handed out after
// this call. Existing loggers already handed out are unaffected.
func SetLevel(level log.Level) {
	mu.Lock()
	defer mu.Unlock()
	root.SetLevel(level)
}

// For returns the logger tagged for the named subsystem, e.g. "gps",
// "motion", "geozone", "odometer", "accounting", "protocol",
// "transport.serial". The same tag always returns the same instance.
func For(subsystem string) *log.Logger {
	mu.Lock()
	defer mu.Unlock()
	if l, ok := tagged[subsystem]; ok {
		return l
	}
	l := root.With("src", subsystem)
	tagged[subsystem] = l
	return l
}

// Critical logs at error level with an extra critical=true field, mirroring
// the C source's logCRITICAL severity which has no direct charmbracelet/log
// analogue.
func Critical(l *log.Logger, msg string, keyvals ...interface{}) {
	l.Error(msg, append(keyvals, "critical", true)...)
}
