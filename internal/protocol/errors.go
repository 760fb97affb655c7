package protocol

import (
	"errors"
	"fmt"
)

// ErrorCode is a stable identifier for a protocol violation, used in logs.
type ErrorCode uint16

const (
	ErrCodeUnknown ErrorCode = 0

	ErrCodeBadLength     ErrorCode = 1001
	ErrCodeFrameTooLarge ErrorCode = 1002
	ErrCodeTruncated     ErrorCode = 1003
	ErrCodeEmptyBatch    ErrorCode = 1004

	ErrCodeBadSlotList  ErrorCode = 2001
	ErrCodeBadSlotIndex ErrorCode = 2002
)

// ProtocolError is returned when the peer (or local input) violates the wire
// format. Frame boundaries cannot be resynchronized, so a session that sees
// one is terminated.
type ProtocolError struct {
	Code ErrorCode
	Msg  string
}

func (e *ProtocolError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("protocol error (%d)", e.Code)
	}
	return fmt.Sprintf("protocol error (%d): %s", e.Code, e.Msg)
}

// NewError creates a ProtocolError.
func NewError(code ErrorCode, format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{
		Code: code,
		Msg:  fmt.Sprintf(format, args...),
	}
}

// IsProtocolError unwraps err looking for a ProtocolError.
func IsProtocolError(err error) (*ProtocolError, bool) {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
