// Package gpio watches the trigger inputs (panic button, door contact) and
// drives the receiver power line through the Linux GPIO character device.
package gpio

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// Trigger identifies which input fired.
type Trigger int

const (
	Panic Trigger = iota + 1
	Door
)

func (t Trigger) String() string {
	switch t {
	case Panic:
		return "panic"
	case Door:
		return "door"
	default:
		return "unknown"
	}
}

// Event is one debounced rising edge.
type Event struct {
	Trigger Trigger
	Time    time.Time
}

// Config selects the input lines. A pin of 0 disables that input. An empty
// Chip means DefaultChip.
type Config struct {
	Chip     string
	PanicPin int
	DoorPin  int
	Debounce time.Duration
	Consumer string
}

// debouncer drops edges on a line that arrive within period of the last
// accepted one. Contact bounce on a push button is a burst of edges a few
// milliseconds apart.
type debouncer struct {
	period time.Duration

	mu   sync.Mutex
	last map[Trigger]time.Time
}

func newDebouncer(period time.Duration) *debouncer {
	return &debouncer{period: period, last: make(map[Trigger]time.Time)}
}

func (d *debouncer) accept(t Trigger, at time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if prev, ok := d.last[t]; ok && at.Sub(prev) < d.period {
		return false
	}
	d.last[t] = at
	return true
}

// Watcher delivers trigger events. Events are buffered; if the consumer
// falls behind, further edges are dropped rather than blocking the line
// event handler.
type Watcher struct {
	events chan Event
	deb    *debouncer
	close  func() error
	once   sync.Once
}

func newWatcher(debounce time.Duration) *Watcher {
	return &Watcher{events: make(chan Event, 8), deb: newDebouncer(debounce)}
}

func (w *Watcher) Events() <-chan Event {
	return w.events
}

func (w *Watcher) emit(t Trigger, at time.Time) {
	if !w.deb.accept(t, at) {
		return
	}
	select {
	case w.events <- Event{Trigger: t, Time: at}:
	default:
	}
}

// Close releases the lines. Events is not closed; the line handlers may
// still be draining.
func (w *Watcher) Close() error {
	if w == nil {
		return nil
	}
	var err error
	w.once.Do(func() {
		if w.close != nil {
			err = w.close()
		}
	})
	return err
}

func consumer(name string) string {
	if name == "" {
		return "fieldrelay"
	}
	return name
}

// DefaultChip is the GPIO chip carrying the 40-pin header lines.
func DefaultChip() string {
	return defaultChip(BoardModel(), chipExists)
}

func defaultChip(model string, exists func(string) bool) string {
	// Raspberry Pi 5 kernels before 6.6.45 put the header on the RP1 chip.
	if strings.Contains(model, "Raspberry Pi 5") && exists("gpiochip4") {
		return "gpiochip4"
	}
	return "gpiochip0"
}

func chipName(s string) string {
	if s == "" {
		return DefaultChip()
	}
	return s
}

// headerLine is the line name Raspberry Pi kernels give BCM pin n.
func headerLine(pin int) string {
	return "GPIO" + strconv.Itoa(pin)
}
