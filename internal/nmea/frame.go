// Package nmea turns a raw serial byte stream into validated, decoded position
// fixes.
//
// The pipeline is:
//
//	bytes -> ReadLine / Receiver -> Frame -> Check -> Decode -> Fix
//
// Every stage reports failures as values; nothing here panics on malformed
// input and every error is recoverable by dropping the frame.
package nmea

// MaxFrameLen is the largest sentence accepted, terminator included.
const MaxFrameLen = 256

// Frame is one NMEA sentence as received, including the trailing "\r\n".
//
// Frames handed out by this package are never reused by the receiver, so a
// consumer may keep one as long as it likes.
type Frame []byte

// Kind is the sentence type of a frame.
type Kind int

const (
	Unrecognized Kind = iota
	RMC
	GGA
)

func (k Kind) String() string {
	switch k {
	case RMC:
		return "RMC"
	case GGA:
		return "GGA"
	default:
		return "unrecognized"
	}
}

// Kind parses the sentence type from "$ttXXX,". Talker IDs are two ASCII
// letters (GP, GN, GL, GA, GB, ...); proprietary "$P" sentences are never
// position sentences.
func (f Frame) Kind() Kind {
	if len(f) < 7 || f[0] != '$' || f[6] != ',' {
		return Unrecognized
	}
	if f[1] == 'P' || !isUpper(f[1]) || !isUpper(f[2]) {
		return Unrecognized
	}
	switch string(f[3:6]) {
	case "RMC":
		return RMC
	case "GGA":
		return GGA
	default:
		return Unrecognized
	}
}

// Payload returns the bytes strictly between '$' and '*', or the frame body
// without '$' and line terminator when no '*' is present.
func (f Frame) Payload() []byte {
	if len(f) == 0 {
		return nil
	}
	body := []byte(f)
	if body[0] == '$' {
		body = body[1:]
	}
	for i, c := range body {
		if c == '*' {
			return body[:i]
		}
	}
	for len(body) > 0 && (body[len(body)-1] == '\n' || body[len(body)-1] == '\r') {
		body = body[:len(body)-1]
	}
	return body
}

func (f Frame) String() string {
	return string(f)
}

func isUpper(c byte) bool {
	return c >= 'A' && c <= 'Z'
}
