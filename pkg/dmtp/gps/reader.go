package gps

import (
	"bufio"
	"io"

	"go.bug.st/serial"
)

// OpenComport opens a GPS receiver's serial device at the given baud
// rate using go.bug.st/serial, replacing the C source's tools/comport.h
// abstraction.
func OpenComport(path string, baud int) (serial.Port, error) {
	mode := &serial.Mode{BaudRate: baud, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit}
	return serial.Open(path, mode)
}

// lineSplit splits on a bare '\r', the NMEA line delimiter, also
// tolerating a following '\n'.
func lineSplit(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i, b := range data {
		if b == '\r' {
			advance = i + 1
			if advance < len(data) && data[advance] == '\n' {
				advance++
			}
			return advance, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// Reader pulls CR-delimited NMEA lines from an io.Reader (a serial port
// or, in tests, any in-memory stream) and feeds them to an Acquisition.
type Reader struct {
	scanner *bufio.Scanner
	acq     *Acquisition
	now     func() int64
}

// NewReader constructs a Reader over src, publishing fixes into acq.
// now supplies the wall/simulated clock used for merge windows and
// watchdog bookkeeping.
func NewReader(src io.Reader, acq *Acquisition, now func() int64) *Reader {
	s := bufio.NewScanner(src)
	s.Split(lineSplit)
	s.Buffer(make([]byte, 0, 4096), 1<<16)
	return &Reader{scanner: s, acq: acq, now: now}
}

// Run reads lines until src is exhausted or returns an error, feeding
// each to the Acquisition. It returns the terminal error, or nil on a
// clean EOF.
func (r *Reader) Run() error {
	for r.scanner.Scan() {
		line := r.scanner.Bytes()
		if len(line) == 0 || line[0] != '$' {
			continue
		}
		cp := append([]byte(nil), line...)
		r.acq.FeedLine(cp, r.now())
	}
	return r.scanner.Err()
}
