package nmea

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
)

// TimeOfDay is a UTC time of day packed as HHMMSS.
type TimeOfDay uint32

func (t TimeOfDay) Hour() int   { return int(t / 10000) }
func (t TimeOfDay) Minute() int { return int(t/100) % 100 }
func (t TimeOfDay) Second() int { return int(t % 100) }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour(), t.Minute(), t.Second())
}

// Fix is a decoded position in signed decimal degrees.
type Fix struct {
	Kind    Kind      `json:"-"`
	Lat     float64   `json:"lat"`
	Lon     float64   `json:"lon"`
	Time    TimeOfDay `json:"time,omitempty"`
	HasTime bool      `json:"has_time"`
}

// GGAMode selects how GGA sentences are tokenised.
type GGAMode int

const (
	// GGAIndexed reads latitude/longitude from fields 2 and 4 with their
	// hemispheres in fields 3 and 5.
	GGAIndexed GGAMode = iota

	// GGAHemisphere treats the hemisphere letters as delimiters: the token
	// before the first N/S is the latitude and the token before the first
	// E/W is the longitude.
	GGAHemisphere
)

// ParseGGAMode maps a config string to a GGAMode.
func ParseGGAMode(s string) (GGAMode, error) {
	switch s {
	case "", "indexed":
		return GGAIndexed, nil
	case "hemisphere":
		return GGAHemisphere, nil
	default:
		return GGAIndexed, fmt.Errorf("unknown gga mode %q (want indexed or hemisphere)", s)
	}
}

// Decoder turns validated frames into fixes.
type Decoder struct {
	GGA GGAMode
}

// Decode decodes frame with the default decoder.
func Decode(frame Frame) (Fix, error) {
	return Decoder{}.Decode(frame)
}

// Decode extracts a fix from frame. The frame must already have passed
// Check. Errors are ErrUnrecognized, ErrNoFix or a *DecodeError.
func (d Decoder) Decode(frame Frame) (Fix, error) {
	kind := frame.Kind()
	if kind == Unrecognized {
		return Fix{}, ErrUnrecognized
	}
	fields := bytes.Split(frame.Payload(), []byte{','})

	var (
		fix Fix
		err error
	)
	switch kind {
	case RMC:
		fix, err = decodeRMC(fields)
	case GGA:
		if d.GGA == GGAHemisphere {
			fix, err = decodeGGAHemisphere(fields)
		} else {
			fix, err = decodeGGAIndexed(fields)
		}
	}
	if err != nil {
		return Fix{}, err
	}
	fix.Kind = kind
	if fix.Lat == 0 && fix.Lon == 0 {
		return Fix{}, ErrNoFix
	}
	return fix, nil
}

// RMC fields:
//
//	0: talker+type
//	1: time (hhmmss.ss)
//	2: status (A=active, V=void)
//	3: latitude (ddmm.mmmm)
//	4: N/S
//	5: longitude (dddmm.mmmm)
//	6: E/W
func decodeRMC(f [][]byte) (Fix, error) {
	if len(f) < 7 {
		return Fix{}, &DecodeError{Kind: RMC, Field: -1, Err: ErrTruncatedSentence}
	}
	if string(f[2]) == "V" {
		return Fix{}, ErrNoFix
	}
	lat, lon, err := latLon(RMC, f, 3, 5)
	if err != nil {
		return Fix{}, err
	}
	fix := Fix{Lat: lat, Lon: lon}
	if len(f[1]) > 0 {
		t, err := parseTimeOfDay(f[1])
		if err != nil {
			return Fix{}, &DecodeError{Kind: RMC, Field: 1, Value: string(f[1]), Err: ErrMalformedField}
		}
		fix.Time = t
		fix.HasTime = true
	}
	return fix, nil
}

// GGA fields:
//
//	0: talker+type
//	1: time
//	2: latitude
//	3: N/S
//	4: longitude
//	5: E/W
//	6: fix quality (0=invalid)
func decodeGGAIndexed(f [][]byte) (Fix, error) {
	if len(f) < 6 {
		return Fix{}, &DecodeError{Kind: GGA, Field: -1, Err: ErrTruncatedSentence}
	}
	if len(f) > 6 && string(f[6]) == "0" {
		return Fix{}, ErrNoFix
	}
	lat, lon, err := latLon(GGA, f, 2, 4)
	if err != nil {
		return Fix{}, err
	}
	return Fix{Lat: lat, Lon: lon}, nil
}

func decodeGGAHemisphere(f [][]byte) (Fix, error) {
	latIdx, lonIdx := -1, -1
	for i := 1; i < len(f); i++ {
		switch string(f[i]) {
		case "N", "S":
			if latIdx == -1 {
				latIdx = i - 1
			}
		case "E", "W":
			if lonIdx == -1 && latIdx != -1 {
				lonIdx = i - 1
			}
		}
	}
	if latIdx == -1 || lonIdx == -1 {
		// Cold-start sentences leave the hemispheres empty.
		if len(f) >= 6 && len(f[2]) == 0 && len(f[4]) == 0 {
			return Fix{}, ErrNoFix
		}
		return Fix{}, &DecodeError{Kind: GGA, Field: -1, Err: ErrTruncatedSentence}
	}
	if lonIdx+2 < len(f) && string(f[lonIdx+2]) == "0" {
		return Fix{}, ErrNoFix
	}
	lat, lon, err := latLonAt(GGA, f, latIdx, lonIdx)
	if err != nil {
		return Fix{}, err
	}
	return Fix{Lat: lat, Lon: lon}, nil
}

func latLon(kind Kind, f [][]byte, latIdx, lonIdx int) (float64, float64, error) {
	if len(f[latIdx]) == 0 && len(f[lonIdx]) == 0 {
		return 0, 0, ErrNoFix
	}
	return latLonAt(kind, f, latIdx, lonIdx)
}

func latLonAt(kind Kind, f [][]byte, latIdx, lonIdx int) (float64, float64, error) {
	lat, err := coordinate(kind, f, latIdx, 90, 'N', 'S')
	if err != nil {
		return 0, 0, err
	}
	lon, err := coordinate(kind, f, lonIdx, 180, 'E', 'W')
	if err != nil {
		return 0, 0, err
	}
	return lat, lon, nil
}

// coordinate converts f[i] (ddmm.mmmm / dddmm.mmmm) and its hemisphere in
// f[i+1] to signed decimal degrees.
func coordinate(kind Kind, f [][]byte, i int, limit float64, pos, neg byte) (float64, error) {
	raw := f[i]
	mag, ok := parseMagnitude(raw)
	if !ok {
		return 0, &DecodeError{Kind: kind, Field: i, Value: string(raw), Err: ErrMalformedField}
	}
	deg := math.Floor(mag / 100)
	minutes := mag - deg*100
	if minutes >= 60 {
		return 0, &DecodeError{Kind: kind, Field: i, Value: string(raw), Err: ErrMalformedField}
	}
	dec := deg + minutes/60
	if dec > limit {
		return 0, &DecodeError{Kind: kind, Field: i, Value: string(raw), Err: ErrMalformedField}
	}

	h := f[i+1]
	if len(h) != 1 || (h[0] != pos && h[0] != neg) {
		return 0, &DecodeError{Kind: kind, Field: i + 1, Value: string(h), Err: ErrMalformedField}
	}
	if h[0] == neg {
		dec = -dec
	}
	return dec, nil
}

// parseMagnitude accepts plain unsigned decimals only; strconv alone would
// also take signs, exponents, hex floats and "NaN".
func parseMagnitude(b []byte) (float64, bool) {
	if len(b) == 0 {
		return 0, false
	}
	dots := 0
	for _, c := range b {
		switch {
		case c >= '0' && c <= '9':
		case c == '.':
			dots++
		default:
			return 0, false
		}
	}
	if dots > 1 || (dots == 1 && len(b) == 1) {
		return 0, false
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseTimeOfDay(b []byte) (TimeOfDay, error) {
	if i := bytes.IndexByte(b, '.'); i >= 0 {
		b = b[:i]
	}
	if len(b) != 6 {
		return 0, fmt.Errorf("time %q: want hhmmss", b)
	}
	v, err := strconv.ParseUint(string(b), 10, 32)
	if err != nil {
		return 0, err
	}
	t := TimeOfDay(v)
	if t.Hour() > 23 || t.Minute() > 59 || t.Second() > 60 {
		return 0, fmt.Errorf("time %q out of range", b)
	}
	return t, nil
}
