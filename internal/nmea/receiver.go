package nmea

import (
	"sync/atomic"
)

// Mailbox is a single-slot, latest-wins hand-off between one producer and
// one consumer. Publishing never blocks; an unread frame is replaced by the
// newer one.
type Mailbox struct {
	ch      chan Frame
	dropped atomic.Uint64
}

func NewMailbox() *Mailbox {
	return &Mailbox{ch: make(chan Frame, 1)}
}

// Publish stores f, discarding any frame the consumer has not taken yet.
// Only one goroutine may publish.
func (m *Mailbox) Publish(f Frame) {
	select {
	case m.ch <- f:
		return
	default:
	}
	select {
	case <-m.ch:
		m.dropped.Add(1)
	default:
	}
	select {
	case m.ch <- f:
	default:
		m.dropped.Add(1)
	}
}

// C is the channel the consumer receives from.
func (m *Mailbox) C() <-chan Frame {
	return m.ch
}

// TryTake returns the pending frame, if any, without blocking.
func (m *Mailbox) TryTake() (Frame, bool) {
	select {
	case f := <-m.ch:
		return f, true
	default:
		return nil, false
	}
}

// Dropped counts frames overwritten before they were read.
func (m *Mailbox) Dropped() uint64 {
	return m.dropped.Load()
}

// ReceiverStats counts what the receiver has seen.
type ReceiverStats struct {
	Frames    uint64 `json:"frames"`
	Overflows uint64 `json:"overflows"`
	Dropped   uint64 `json:"dropped"`
}

// Receiver assembles frames from bytes delivered in arbitrary chunks, the
// way a byte-received interrupt would. The in-progress buffer is private;
// every completed line is copied into a new Frame before it is published,
// so the consumer never observes the buffer being refilled.
//
// A Receiver must be fed from a single goroutine.
type Receiver struct {
	buf        [MaxFrameLen + 1]byte
	n          int
	discarding bool
	out        *Mailbox

	frames    atomic.Uint64
	overflows atomic.Uint64
}

func NewReceiver(out *Mailbox) *Receiver {
	if out == nil {
		out = NewMailbox()
	}
	return &Receiver{out: out}
}

// Mailbox returns the mailbox completed frames are published to.
func (r *Receiver) Mailbox() *Mailbox {
	return r.out
}

// Feed accepts one byte. It returns true when b completed a frame.
func (r *Receiver) Feed(b byte) bool {
	if r.discarding {
		if b == '\n' {
			r.discarding = false
		}
		return false
	}
	// The last slot stays free, mirroring the text buffers this replaces.
	if r.n == MaxFrameLen {
		r.n = 0
		r.discarding = b != '\n'
		r.overflows.Add(1)
		return false
	}
	r.buf[r.n] = b
	r.n++
	if b != '\n' {
		return false
	}
	f := make(Frame, r.n)
	copy(f, r.buf[:r.n])
	r.n = 0
	r.frames.Add(1)
	r.out.Publish(f)
	return true
}

// Write feeds every byte of p. It never fails, so a Receiver can sit at the
// end of an io.Copy from a serial port.
func (r *Receiver) Write(p []byte) (int, error) {
	for _, b := range p {
		r.Feed(b)
	}
	return len(p), nil
}

// Reset discards the line in progress.
func (r *Receiver) Reset() {
	r.n = 0
	r.discarding = false
}

// Pending is the number of bytes buffered for the line in progress.
func (r *Receiver) Pending() int {
	return r.n
}

func (r *Receiver) Stats() ReceiverStats {
	return ReceiverStats{
		Frames:    r.frames.Load(),
		Overflows: r.overflows.Load(),
		Dropped:   r.out.Dropped(),
	}
}
