package nmea

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// SentenceTime returns the worst-case transmission time of a MaxFrameLen
// sentence at baud with 8N1 framing (10 bits per byte).
func SentenceTime(baud int) time.Duration {
	if baud <= 0 {
		baud = 9600
	}
	return time.Duration(MaxFrameLen*10) * time.Second / time.Duration(baud)
}

// FramerConfig bounds how long ReadLine may block.
type FramerConfig struct {
	// IdleTimeout bounds the wait for the first byte of a line. Zero waits
	// forever.
	IdleTimeout time.Duration

	// SentenceTimeout bounds the time from the first byte to the newline.
	// Zero waits forever.
	SentenceTimeout time.Duration
}

// DefaultFramerConfig returns timeouts sized for a receiver at baud that
// reports once per second.
func DefaultFramerConfig(baud int) FramerConfig {
	return FramerConfig{
		IdleTimeout:     5 * time.Second,
		SentenceTimeout: SentenceTime(baud) + time.Second,
	}
}

type deadliner interface {
	SetReadDeadline(t time.Time) error
}

// Framer reads newline-terminated lines from a byte source.
type Framer struct {
	cfg FramerConfig
	r   *bufio.Reader
	dl  deadliner
	now func() time.Time
}

// NewFramer wraps src. If src supports read deadlines (os.File on a
// pollable tty, net.Conn) both timeouts are enforced by the source;
// otherwise only SentenceTimeout is checked, between bytes.
func NewFramer(src io.Reader, cfg FramerConfig) *Framer {
	f := &Framer{cfg: cfg, r: bufio.NewReaderSize(src, MaxFrameLen), now: time.Now}
	if d, ok := src.(deadliner); ok {
		f.dl = d
	}
	return f
}

// ReadLine reads bytes into buf until a '\n' has been stored or
// len(buf)-1 bytes have been written, whichever comes first. buf[n] is
// set to 0. A line cut at capacity is returned without error; Check
// rejects it for its missing terminator.
//
// On timeout the bytes read so far are kept in buf[:n] and the error wraps
// ErrTimeout.
func (f *Framer) ReadLine(buf []byte) (int, error) {
	if len(buf) < 2 {
		return 0, fmt.Errorf("nmea: line buffer too small (%d bytes)", len(buf))
	}
	limit := len(buf) - 1
	n := 0
	defer func() { buf[n] = 0 }()

	start := f.now()
	if err := f.setDeadline(start, f.cfg.IdleTimeout); err != nil {
		return 0, err
	}
	var lineStart time.Time

	for n < limit {
		c, err := f.r.ReadByte()
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return n, fmt.Errorf("%w after %d bytes", ErrTimeout, n)
			}
			return n, err
		}
		now := f.now()
		if n == 0 {
			lineStart = now
			if err := f.setDeadline(lineStart, f.cfg.SentenceTimeout); err != nil {
				return n, err
			}
		}
		buf[n] = c
		n++
		if c == '\n' {
			return n, nil
		}
		if f.cfg.SentenceTimeout > 0 && now.Sub(lineStart) > f.cfg.SentenceTimeout {
			return n, fmt.Errorf("%w after %d bytes", ErrTimeout, n)
		}
	}
	return n, nil
}

// ReadFrame reads one line and returns a fresh copy of it.
func (f *Framer) ReadFrame() (Frame, error) {
	var buf [MaxFrameLen + 1]byte
	n, err := f.ReadLine(buf[:])
	if n == 0 {
		return nil, err
	}
	out := make(Frame, n)
	copy(out, buf[:n])
	return out, err
}

// Buffered returns a copy of the bytes already taken from the source but
// not yet returned in a line. A caller handing the source to another reader
// feeds these first.
func (f *Framer) Buffered() []byte {
	b, _ := f.r.Peek(f.r.Buffered())
	return append([]byte(nil), b...)
}

func (f *Framer) setDeadline(from time.Time, d time.Duration) error {
	if f.dl == nil {
		return nil
	}
	var t time.Time
	if d > 0 {
		t = from.Add(d)
	}
	if err := f.dl.SetReadDeadline(t); err != nil && !errors.Is(err, os.ErrNoDeadline) {
		return err
	}
	return nil
}
