// Package relay turns trigger events and GPS fixes into outbound reports.
//
// A trigger (panic button, door contact, daily alarm) activates the relay.
// While active, each fix is sent at most once per MinInterval; after Burst
// successful sends every trigger is cleared and the receiver is powered
// down until the next activation.
package relay

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"fieldrelay/internal/geofence"
	"fieldrelay/internal/gpio"
	"fieldrelay/internal/nmea"
	"fieldrelay/internal/telemetry"
)

// PowerSwitch controls the receiver's supply. gps.Service implements it.
type PowerSwitch interface {
	SetPower(on bool) error
}

type Config struct {
	MinInterval time.Duration
	Burst       int

	// UTCOffset converts the receiver's UTC time of day to the local clock.
	UTCOffset time.Duration

	SendTimeout time.Duration

	Sink  telemetry.Sink
	Fence *geofence.Fence
	Power PowerSwitch

	// OnFix and OnReport, if set, observe every fix and every send attempt.
	OnFix    func(nmea.Fix)
	OnReport func(telemetry.Report, error)
}

type Snapshot struct {
	Active      string  `json:"active"`
	Seq         int     `json:"seq"`
	Sent        uint64  `json:"sent"`
	Failed      uint64  `json:"failed"`
	Bursts      uint64  `json:"bursts"`
	HaveFix     bool    `json:"have_fix"`
	LatDeg      float64 `json:"lat_deg,omitempty"`
	LonDeg      float64 `json:"lon_deg,omitempty"`
	LocalClock  string  `json:"local_clock,omitempty"`
	LastSentUTC string  `json:"last_sent_utc,omitempty"`
	LastError   string  `json:"last_error,omitempty"`
}

type Relay struct {
	cfg Config

	raise chan telemetry.Triggers

	mu       sync.Mutex
	active   telemetry.Triggers
	seq      int
	lastSend time.Time
	lastFix  nmea.Fix
	haveFix  bool
	clock    time.Duration
	hasClock bool
	snap     Snapshot

	now func() time.Time
}

func New(cfg Config) (*Relay, error) {
	if cfg.Sink == nil {
		return nil, fmt.Errorf("relay: sink is required")
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 5 * time.Second
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	return &Relay{cfg: cfg, raise: make(chan telemetry.Triggers, 8), now: time.Now}, nil
}

// Raise activates t. Safe to call from any goroutine; the trigger is applied
// by Run.
func (r *Relay) Raise(t telemetry.Triggers) {
	select {
	case r.raise <- t:
	default:
		// Run is behind; merge directly so the trigger is not lost.
		r.activate(t)
	}
}

// Run consumes fixes and trigger events until ctx is done. events may be nil
// when no inputs are wired.
func (r *Relay) Run(ctx context.Context, fixes <-chan nmea.Fix, events <-chan gpio.Event) error {
	// Acquire an initial fix so the local clock gets set.
	r.power(true)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-events:
			switch ev.Trigger {
			case gpio.Panic:
				r.activate(telemetry.TriggerPanic)
			case gpio.Door:
				r.activate(telemetry.TriggerDoor)
			}
		case t := <-r.raise:
			r.activate(t)
		case fix := <-fixes:
			r.handleFix(ctx, fix)
		}
	}
}

func (r *Relay) activate(t telemetry.Triggers) {
	r.mu.Lock()
	was := r.active
	r.active |= t
	r.snap.Active = r.active.String()
	r.mu.Unlock()
	if was == 0 {
		log.Printf("relay activated trigger=%s", t)
		r.power(true)
	}
}

func (r *Relay) handleFix(ctx context.Context, fix nmea.Fix) {
	now := r.now()
	if r.cfg.OnFix != nil {
		r.cfg.OnFix(fix)
	}

	r.mu.Lock()
	r.lastFix, r.haveFix = fix, true
	if fix.HasTime {
		r.clock = localClock(fix.Time, r.cfg.UTCOffset)
		r.hasClock = true
	}
	active := r.active
	due := active != 0 && (r.lastSend.IsZero() || now.Sub(r.lastSend) >= r.cfg.MinInterval)
	if due {
		// The gate advances on every attempt, failed or not.
		r.lastSend = now
		r.seq++
	}
	seq := r.seq
	r.updateLocked()
	r.mu.Unlock()

	if active == 0 {
		r.power(false)
		return
	}
	if !due {
		return
	}

	rep := telemetry.NewReport(fix, active, r.cfg.Fence, now)
	rep.Seq = seq
	sendCtx, cancel := context.WithTimeout(ctx, r.cfg.SendTimeout)
	err := r.cfg.Sink.Send(sendCtx, rep)
	cancel()

	delivered := telemetry.Delivered(err)
	cleared := false
	r.mu.Lock()
	if err != nil {
		r.snap.LastError = err.Error()
	}
	if delivered {
		r.snap.Sent++
		r.snap.LastSentUTC = now.UTC().Format(time.RFC3339Nano)
		if seq >= r.cfg.Burst {
			r.active = 0
			r.seq = 0
			r.snap.Bursts++
			cleared = true
		}
	} else {
		r.seq--
		r.snap.Failed++
	}
	r.updateLocked()
	r.mu.Unlock()

	if err != nil {
		log.Printf("relay send seq=%d trigger=%s err=%v", seq, active, err)
	}
	if r.cfg.OnReport != nil {
		r.cfg.OnReport(rep, err)
	}
	if cleared {
		log.Printf("relay burst complete trigger=%s sends=%d", active, seq)
		r.power(false)
	}
}

func (r *Relay) power(on bool) {
	if r.cfg.Power == nil {
		return
	}
	if err := r.cfg.Power.SetPower(on); err != nil {
		log.Printf("relay power on=%v err=%v", on, err)
	}
}

func (r *Relay) updateLocked() {
	r.snap.Active = r.active.String()
	r.snap.Seq = r.seq
	r.snap.HaveFix = r.haveFix
	if r.haveFix {
		r.snap.LatDeg = r.lastFix.Lat
		r.snap.LonDeg = r.lastFix.Lon
	}
	if r.hasClock {
		r.snap.LocalClock = formatClock(r.clock)
	}
}

// Active reports the current trigger set.
func (r *Relay) Active() telemetry.Triggers {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *Relay) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap
}

// localClock is the local time of day for a UTC time of day, wrapped into
// [0, 24h).
func localClock(t nmea.TimeOfDay, offset time.Duration) time.Duration {
	d := time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second + offset
	d %= 24 * time.Hour
	if d < 0 {
		d += 24 * time.Hour
	}
	return d
}

func formatClock(d time.Duration) string {
	s := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, s/60%60, s%60)
}
