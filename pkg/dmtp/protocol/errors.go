package protocol

import (
	"errors"
	"fmt"

	"github.com/uincore/opendmtp-sub000/pkg/dmtp/wire"
)

// Error is a protocol-level failure carrying its 16-bit diagnostic
// code, reportable to the server as a PktClientError payload.
type Error struct {
	Code wire.ErrorCode
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("protocol: error 0x%04X: %v", uint16(e.Code), e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf extracts the diagnostic code from err, or ErrorNone.
func CodeOf(err error) wire.ErrorCode {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return wire.ErrorNone
}

// ErrSessionEnded signals a clean EOT-terminated session.
var ErrSessionEnded = errors.New("protocol: session ended")

// ErrSevereErrorLimit signals a session force-disconnected after
// accumulating too many severe protocol errors.
var ErrSevereErrorLimit = errors.New("protocol: severe error limit reached")
