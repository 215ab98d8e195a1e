package relay

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"fieldrelay/internal/telemetry"
)

func TestDailyAlarm_NextRun(t *testing.T) {
	zone := time.FixedZone("local", -5*3600)
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 9, 30, 0, 0, zone))
	a, err := NewDailyAlarm(12, 0, -5*time.Hour, clock, func() {})
	if err != nil {
		t.Fatalf("NewDailyAlarm() error: %v", err)
	}
	defer a.Close()
	a.Start()

	var next time.Time
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		next, err = a.NextRun()
		if err == nil && !next.IsZero() {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	want := time.Date(2024, 5, 1, 12, 0, 0, 0, zone)
	if !next.Equal(want) {
		t.Fatalf("next=%s want %s", next, want)
	}
}

func TestDailyAlarm_RaisesTrigger(t *testing.T) {
	sink := &fakeSink{}
	r, err := New(Config{Sink: sink})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	a, err := NewDailyAlarm(12, 0, 0, clockwork.NewFakeClock(), func() { r.Raise(telemetry.TriggerAlarm) })
	if err != nil {
		t.Fatalf("NewDailyAlarm() error: %v", err)
	}
	defer a.Close()

	a.run()
	select {
	case got := <-r.raise:
		if got.String() != "alarm" {
			t.Fatalf("raised %s", got)
		}
	default:
		t.Fatalf("alarm did not raise a trigger")
	}
}

func TestNewDailyAlarm_RejectsBadTime(t *testing.T) {
	if _, err := NewDailyAlarm(24, 0, 0, nil, func() {}); err == nil {
		t.Fatalf("expected error")
	}
}
