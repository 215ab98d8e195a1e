package web

import (
	"runtime"
	"runtime/debug"
	"sync/atomic"
	"time"

	"fieldrelay/internal/gps"
	"fieldrelay/internal/relay"
	"fieldrelay/internal/telemetry"
	"fieldrelay/internal/wifi"
)

// Status gathers the snapshots of the running components. Each source is
// optional and may be set once at startup.
type Status struct {
	startUnixNano int64

	gps   atomic.Pointer[func() gps.Snapshot]
	relay atomic.Pointer[func() relay.Snapshot]
	tcp   atomic.Pointer[func() telemetry.TCPSnapshot]
	alarm atomic.Pointer[func() (time.Time, error)]
	wifi  atomic.Pointer[func() (wifi.Status, error)]
	sinks atomic.Value // []string
}

func NewStatus() *Status {
	s := &Status{}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	s.sinks.Store([]string(nil))
	return s
}

func (s *Status) SetGPS(fn func() gps.Snapshot)          { s.gps.Store(&fn) }
func (s *Status) SetRelay(fn func() relay.Snapshot)      { s.relay.Store(&fn) }
func (s *Status) SetTCP(fn func() telemetry.TCPSnapshot) { s.tcp.Store(&fn) }
func (s *Status) SetAlarm(fn func() (time.Time, error))  { s.alarm.Store(&fn) }
func (s *Status) SetWiFi(fn func() (wifi.Status, error)) { s.wifi.Store(&fn) }
func (s *Status) SetSinks(names []string)                { s.sinks.Store(append([]string(nil), names...)) }

type StatusSnapshot struct {
	Service      string                 `json:"service"`
	Version      string                 `json:"version,omitempty"`
	GoVersion    string                 `json:"go_version"`
	NowUTC       string                 `json:"now_utc"`
	UptimeSec    int64                  `json:"uptime_sec"`
	Sinks        []string               `json:"sinks"`
	GPS          *gps.Snapshot          `json:"gps,omitempty"`
	Relay        *relay.Snapshot        `json:"relay,omitempty"`
	TCP          *telemetry.TCPSnapshot `json:"tcp,omitempty"`
	WiFi         *wifi.Status           `json:"wifi,omitempty"`
	NextAlarmUTC string                 `json:"next_alarm_utc,omitempty"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()

	snap := StatusSnapshot{
		Service:   "fieldrelay",
		GoVersion: runtime.Version(),
		NowUTC:    nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec: int64(nowUTC.Sub(start).Seconds()),
		Sinks:     s.sinks.Load().([]string),
	}
	if bi, ok := debug.ReadBuildInfo(); ok && bi != nil {
		snap.Version = bi.Main.Version
	}
	if fn := s.gps.Load(); fn != nil {
		v := (*fn)()
		snap.GPS = &v
	}
	if fn := s.relay.Load(); fn != nil {
		v := (*fn)()
		snap.Relay = &v
	}
	if fn := s.tcp.Load(); fn != nil {
		v := (*fn)()
		snap.TCP = &v
	}
	if fn := s.wifi.Load(); fn != nil {
		// Status errors still carry the interface name.
		v, _ := (*fn)()
		snap.WiFi = &v
	}
	if fn := s.alarm.Load(); fn != nil {
		if next, err := (*fn)(); err == nil && !next.IsZero() {
			snap.NextAlarmUTC = next.UTC().Format(time.RFC3339)
		}
	}
	return snap
}
