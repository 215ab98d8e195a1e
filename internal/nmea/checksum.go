package nmea

import (
	"fmt"
	"io"
)

const hexDigits = "0123456789ABCDEF"

// Checksum is the XOR of every byte in payload. The payload is the span
// strictly between '$' and '*'.
func Checksum(payload []byte) byte {
	var sum byte
	for _, c := range payload {
		sum ^= c
	}
	return sum
}

// Valid reports whether frame is a complete sentence with a correct
// checksum trailer.
func Valid(frame []byte) bool {
	return Check(frame) == nil
}

// Check validates the "$...*HH\r\n" shape and checksum of frame.
// Failures wrap ErrFraming or ErrChecksum.
func Check(frame []byte) error {
	n := len(frame)
	// Shortest possible sentence is "$*HH\r\n".
	if n < 6 {
		return fmt.Errorf("%w: %d bytes", ErrFraming, n)
	}
	if frame[0] != '$' {
		return fmt.Errorf("%w: missing '$'", ErrFraming)
	}
	if frame[n-2] != '\r' || frame[n-1] != '\n' {
		return fmt.Errorf("%w: missing CRLF terminator", ErrFraming)
	}

	// The two hex digits must sit between '*' and the terminator, so the
	// delimiter can be no later than n-5.
	star := -1
	var sum byte
	for i := 1; i <= n-5; i++ {
		if frame[i] == '*' {
			star = i
			break
		}
		sum ^= frame[i]
	}
	if star == -1 {
		return fmt.Errorf("%w: missing '*'", ErrFraming)
	}
	if star+3 != n-2 {
		return fmt.Errorf("%w: expected 2 checksum digits, got %d", ErrFraming, n-2-star-1)
	}

	hi, lo := hexDigits[sum>>4], hexDigits[sum&0x0F]
	if frame[star+1] != hi || frame[star+2] != lo {
		return fmt.Errorf("%w: got %q want %c%c", ErrChecksum, frame[star+1:star+3], hi, lo)
	}
	return nil
}

// AppendChecksum writes "$" + msg + "*HH\r\n" to w. msg is the payload
// only; it must not contain '$', '*', '\r' or '\n'.
func AppendChecksum(w io.Writer, msg string) error {
	b, err := AppendFrame(nil, msg)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// AppendFrame appends the framed form of msg to dst.
func AppendFrame(dst []byte, msg string) ([]byte, error) {
	for i := 0; i < len(msg); i++ {
		switch msg[i] {
		case '$', '*', '\r', '\n':
			return dst, fmt.Errorf("nmea: payload contains reserved byte %q at %d", msg[i], i)
		}
	}
	sum := Checksum([]byte(msg))
	dst = append(dst, '$')
	dst = append(dst, msg...)
	dst = append(dst, '*', hexDigits[sum>>4], hexDigits[sum&0x0F], '\r', '\n')
	return dst, nil
}
