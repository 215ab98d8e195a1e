// Package telemetry builds position reports and ships them over the
// configured uplinks: LoRaWAN through an RN2903 modem, a TCP line
// collector, MQTT and UDP.
package telemetry

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"fieldrelay/internal/geofence"
	"fieldrelay/internal/nmea"
)

// Triggers is the set of reasons a report is being sent.
type Triggers uint8

const (
	TriggerPanic Triggers = 1 << iota
	TriggerDoor
	TriggerAlarm
)

func (t Triggers) Has(x Triggers) bool { return t&x != 0 }

func (t Triggers) String() string {
	if t == 0 {
		return "none"
	}
	var parts []string
	for _, n := range []struct {
		bit  Triggers
		name string
	}{{TriggerPanic, "panic"}, {TriggerDoor, "door"}, {TriggerAlarm, "alarm"}} {
		if t.Has(n.bit) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "+")
}

func (t Triggers) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// Report is one outbound position message.
type Report struct {
	Triggers Triggers `json:"event"`
	Panic    bool     `json:"panic"`
	Lat      float64  `json:"lat"`
	Lon      float64  `json:"lon"`

	// FixTime is the receiver's UTC time of day, when the sentence had one.
	FixTime string `json:"fix_time,omitempty"`

	// Seq counts sends within the current activation, starting at 1.
	Seq int `json:"seq"`

	Fence  *geofence.Position `json:"fence,omitempty"`
	SentAt time.Time          `json:"sent_at"`
}

// NewReport describes fix for the given triggers. fence may be nil.
func NewReport(fix nmea.Fix, trig Triggers, fence *geofence.Fence, now time.Time) Report {
	r := Report{
		Triggers: trig,
		Panic:    trig.Has(TriggerPanic),
		Lat:      fix.Lat,
		Lon:      fix.Lon,
		SentAt:   now.UTC(),
	}
	if fix.HasTime {
		r.FixTime = fmt.Sprintf("%02d%02d%02d", fix.Time.Hour(), fix.Time.Minute(), fix.Time.Second())
	}
	if fence != nil {
		pos := fence.Locate(fix.Lat, fix.Lon)
		r.Fence = &pos
	}
	return r
}

// LoRaText is the compact uplink payload: "<panic>, <lat>, <lon>".
func (r Report) LoRaText() string {
	return fmt.Sprintf("%d, %f, %f", btoi(r.Panic), r.Lat, r.Lon)
}

// CSV renders event,panic,lat,lon,hhmmss,in_fence,distance_km without a
// trailing newline. Fence columns are empty when no fence is configured.
func (r Report) CSV() string {
	inside, dist := "", ""
	if r.Fence != nil {
		inside = strconv.Itoa(btoi(r.Fence.Inside))
		if r.Fence.HasHome {
			dist = strconv.FormatFloat(r.Fence.DistanceKm, 'f', 3, 64)
		}
	}
	return strings.Join([]string{
		r.Triggers.String(),
		strconv.Itoa(btoi(r.Panic)),
		strconv.FormatFloat(r.Lat, 'f', 6, 64),
		strconv.FormatFloat(r.Lon, 'f', 6, 64),
		r.FixTime,
		inside,
		dist,
	}, ",")
}

func (r Report) JSON() ([]byte, error) {
	return json.Marshal(r)
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}
