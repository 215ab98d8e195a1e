package nmea

import (
	"errors"
	"fmt"
)

var (
	// ErrFraming reports a frame without its "$" start or "\r\n" terminator,
	// usually because the line was truncated at buffer capacity.
	ErrFraming = errors.New("nmea: framing error")

	// ErrChecksum reports a well-formed frame whose checksum does not match.
	ErrChecksum = errors.New("nmea: checksum mismatch")

	// ErrNoFix reports a recognised position sentence that carries no
	// position yet (void status, zero quality, empty fields, or 0,0).
	ErrNoFix = errors.New("nmea: no fix")

	// ErrUnrecognized reports a valid sentence that is not a position
	// sentence. It is not a failure.
	ErrUnrecognized = errors.New("nmea: not a position sentence")

	// ErrMalformedField reports a field that is not the number expected.
	ErrMalformedField = errors.New("nmea: malformed field")

	// ErrTruncatedSentence reports fewer fields than the format needs.
	ErrTruncatedSentence = errors.New("nmea: truncated sentence")

	// ErrTimeout reports a read that did not see a line terminator in time.
	ErrTimeout = errors.New("nmea: read timeout")
)

// DecodeError describes why a validated frame could not be decoded.
type DecodeError struct {
	Kind  Kind
	Field int
	Value string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Field < 0 {
		return fmt.Sprintf("%v in %s sentence", e.Err, e.Kind)
	}
	return fmt.Sprintf("%v in %s field %d (%q)", e.Err, e.Kind, e.Field, e.Value)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
