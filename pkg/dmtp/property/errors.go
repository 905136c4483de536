package property

import (
	"errors"
	"fmt"

	"github.com/uincore/opendmtp-sub000/pkg/dmtp/wire"
)

// ErrorKind enumerates the failure modes of a property operation.
type ErrorKind int

const (
	ErrInvalidKey ErrorKind = iota
	ErrInvalidType
	ErrInvalidLength
	ErrReadOnly
	ErrWriteOnly
	ErrCommandInvalid
	ErrCommandError
)

func (k ErrorKind) String() string {
	switch k {
	case ErrInvalidKey:
		return "invalid_key"
	case ErrInvalidType:
		return "invalid_type"
	case ErrInvalidLength:
		return "invalid_length"
	case ErrReadOnly:
		return "read_only"
	case ErrWriteOnly:
		return "write_only"
	case ErrCommandInvalid:
		return "command_invalid"
	case ErrCommandError:
		return "command_error"
	default:
		return "unknown"
	}
}

// PropertyError carries a failure kind plus, for ErrCommandError, the
// sub-code returned by the command. It implements error.
type PropertyError struct {
	Key     Key
	Kind    ErrorKind
	SubCode wire.CommandError
	err     error
}

func (e *PropertyError) Error() string {
	if e.Kind == ErrCommandError {
		return fmt.Sprintf("property 0x%04X: %s (sub=0x%04X)", uint16(e.Key), e.Kind, uint16(e.SubCode))
	}
	return fmt.Sprintf("property 0x%04X: %s", uint16(e.Key), e.Kind)
}

func (e *PropertyError) Unwrap() error { return e.err }

func newErr(key Key, kind ErrorKind) *PropertyError {
	return &PropertyError{Key: key, Kind: kind}
}

func newCommandErr(key Key, sub wire.CommandError) *PropertyError {
	return &PropertyError{Key: key, Kind: ErrCommandError, SubCode: sub}
}

// IsReadOnly reports whether err is a PropertyError of kind ErrReadOnly.
func IsReadOnly(err error) bool {
	var pe *PropertyError
	return errors.As(err, &pe) && pe.Kind == ErrReadOnly
}

// IsInvalidKey reports whether err is a PropertyError of kind ErrInvalidKey.
func IsInvalidKey(err error) bool {
	var pe *PropertyError
	return errors.As(err, &pe) && pe.Kind == ErrInvalidKey
}

// CombinedCode renders err as the 16-bit code reported to the server in
// a property-error packet: the kind in the high nibble (offset by one so
// zero stays "no error"), the command sub-code's low 12 bits below it.
// A nil or non-property error renders as zero.
func CombinedCode(err error) uint16 {
	pe, ok := AsPropertyError(err)
	if !ok {
		return 0
	}
	return uint16(pe.Kind+1)<<12 | uint16(pe.SubCode)&0x0FFF
}

// AsPropertyError extracts a *PropertyError from err, if any.
func AsPropertyError(err error) (*PropertyError, bool) {
	var pe *PropertyError
	ok := errors.As(err, &pe)
	return pe, ok
}
