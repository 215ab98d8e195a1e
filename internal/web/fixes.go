package web

import (
	"sync"
	"time"

	"fieldrelay/internal/nmea"
)

// FixEvent is the websocket view of one decoded position.
type FixEvent struct {
	Kind        string  `json:"kind"`
	LatDeg      float64 `json:"lat_deg"`
	LonDeg      float64 `json:"lon_deg"`
	FixTime     string  `json:"fix_time,omitempty"`
	ReceivedUTC string  `json:"received_utc"`
}

func NewFixEvent(fix nmea.Fix, now time.Time) FixEvent {
	ev := FixEvent{
		Kind:        fix.Kind.String(),
		LatDeg:      fix.Lat,
		LonDeg:      fix.Lon,
		ReceivedUTC: now.UTC().Format(time.RFC3339Nano),
	}
	if fix.HasTime {
		ev.FixTime = fix.Time.String()
	}
	return ev
}

// FixBroadcaster fans fixes out to websocket clients. It keeps the most
// recent fix so a new subscriber gets a position immediately. Slow
// subscribers miss fixes; Publish never blocks.
type FixBroadcaster struct {
	mu       sync.RWMutex
	subs     map[int]chan FixEvent
	nextID   int
	last     FixEvent
	haveLast bool
}

func NewFixBroadcaster() *FixBroadcaster {
	return &FixBroadcaster{subs: make(map[int]chan FixEvent)}
}

func (b *FixBroadcaster) Subscribe(buffer int) (int, <-chan FixEvent) {
	if buffer <= 0 {
		buffer = 4
	}
	ch := make(chan FixEvent, buffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	if b.haveLast {
		ch <- b.last
	}
	b.mu.Unlock()
	return id, ch
}

func (b *FixBroadcaster) Unsubscribe(id int) {
	b.mu.Lock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
	b.mu.Unlock()
}

func (b *FixBroadcaster) Publish(fix nmea.Fix) {
	if b == nil {
		return
	}
	ev := NewFixEvent(fix, time.Now())
	b.mu.Lock()
	defer b.mu.Unlock()
	b.last, b.haveLast = ev, true
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers is the number of attached clients.
func (b *FixBroadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
