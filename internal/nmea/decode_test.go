package nmea

import (
	"errors"
	"math"
	"strings"
	"testing"

	gonmea "github.com/adrianmo/go-nmea"
)

func almost(a, b float64) bool {
	return math.Abs(a-b) < 1e-4
}

func TestDecode_RMCReference(t *testing.T) {
	f := Frame("$GNRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A\r\n")
	fix, err := Decode(f)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if !almost(fix.Lat, 48.1173) || !almost(fix.Lon, 11.5167) {
		t.Fatalf("fix=%+v", fix)
	}
	if fix.Kind != RMC {
		t.Fatalf("kind=%s", fix.Kind)
	}
	if !fix.HasTime || fix.Time != 123519 {
		t.Fatalf("time=%v has=%v", fix.Time, fix.HasTime)
	}
	if fix.Time.Hour() != 12 || fix.Time.Minute() != 35 || fix.Time.Second() != 19 {
		t.Fatalf("time parts=%s", fix.Time)
	}
}

func TestDecode_RMCHemispheresNegate(t *testing.T) {
	f := sentence("GNRMC,123519,A,4807.038,S,01131.000,W,022.4,084.4,230394,003.1,W")
	fix, err := Decode(f)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if !almost(fix.Lat, -48.1173) || !almost(fix.Lon, -11.5167) {
		t.Fatalf("fix=%+v", fix)
	}
}

func TestDecode_MatchesGoNMEA(t *testing.T) {
	payloads := []string{
		"GNRMC,161229.487,A,0441.2345,N,07403.4567,W,0.13,309.62,120598,,",
		"GPRMC,081836,A,3751.65,S,14507.36,E,000.0,360.0,130998,011.3,E",
		"GNGGA,161229.487,0441.2345,N,07403.4567,W,1,07,1.0,2600.0,M,,,,0000",
		"GNGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,",
	}
	for _, p := range payloads {
		f := sentence(p)
		fix, err := Decode(f)
		if err != nil {
			t.Fatalf("Decode(%q) error: %v", p, err)
		}
		s, err := gonmea.Parse(strings.TrimSpace(string(f)))
		if err != nil {
			t.Fatalf("go-nmea Parse(%q) error: %v", p, err)
		}
		var lat, lon float64
		switch m := s.(type) {
		case gonmea.RMC:
			lat, lon = m.Latitude, m.Longitude
		case gonmea.GGA:
			lat, lon = m.Latitude, m.Longitude
		default:
			t.Fatalf("unexpected go-nmea type %T", s)
		}
		if !almost(fix.Lat, lat) || !almost(fix.Lon, lon) {
			t.Fatalf("%q: got %f,%f want %f,%f", p, fix.Lat, fix.Lon, lat, lon)
		}
	}
}

func TestDecode_GGAModesAgree(t *testing.T) {
	f := sentence("GNGGA,161229.487,0441.2345,N,07403.4567,W,1,07,1.0,2600.0,M,,,,0000")
	indexed, err := Decoder{GGA: GGAIndexed}.Decode(f)
	if err != nil {
		t.Fatalf("indexed: %v", err)
	}
	delimited, err := Decoder{GGA: GGAHemisphere}.Decode(f)
	if err != nil {
		t.Fatalf("hemisphere: %v", err)
	}
	if !almost(indexed.Lat, delimited.Lat) || !almost(indexed.Lon, delimited.Lon) {
		t.Fatalf("indexed=%+v delimited=%+v", indexed, delimited)
	}
	if !almost(indexed.Lat, 4.68724) || !almost(indexed.Lon, -74.05761) {
		t.Fatalf("indexed=%+v", indexed)
	}
	if indexed.HasTime {
		t.Fatalf("GGA carries no time capture")
	}
}

func TestDecode_GGAHemisphereSkipsEmptyLeadingFields(t *testing.T) {
	// Some receivers insert extra empty fields; the delimiter strategy
	// still finds the coordinates.
	f := sentence("GNGGA,161229.487,,0441.2345,N,07403.4567,W,1,07,1.0,2600.0,M,,,,")
	fix, err := Decoder{GGA: GGAHemisphere}.Decode(f)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if !almost(fix.Lat, 4.68724) || !almost(fix.Lon, -74.05761) {
		t.Fatalf("fix=%+v", fix)
	}
}

func TestDecode_GGAHemisphereSigns(t *testing.T) {
	cases := []struct {
		name     string
		payload  string
		lat, lon float64
	}{
		{"SouthEast", "GNGGA,123519,4807.038,S,01131.000,E,1,08,0.9,545.4,M,46.9,M,,", -48.1173, 11.5167},
		{"NorthWest", "GNGGA,123519,4807.038,N,01131.000,W,1,08,0.9,545.4,M,46.9,M,,", 48.1173, -11.5167},
		{"SouthWestShifted", "GNGGA,123519,,3751.65,S,14507.36,W,1,08,0.9,545.4,M,46.9,M,,", -37.8608, -145.1227},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fix, err := Decoder{GGA: GGAHemisphere}.Decode(sentence(tc.payload))
			if err != nil {
				t.Fatalf("Decode() error: %v", err)
			}
			if fix.Kind != GGA || !almost(fix.Lat, tc.lat) || !almost(fix.Lon, tc.lon) {
				t.Fatalf("fix=%+v want lat=%v lon=%v", fix, tc.lat, tc.lon)
			}
		})
	}
}

func TestDecode_NoFix(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		mode    GGAMode
	}{
		{name: "RMCVoid", payload: "GNRMC,,V,,,,,,,,,,N"},
		{name: "RMCZero", payload: "GNRMC,000000.00,A,0000.0000,N,00000.0000,E,0.0,0.0,010100,,"},
		{name: "GGAZero", payload: "GNGGA,000000.00,0000.0000,N,00000.0000,E,1,04,1.0,0.0,M,0.0,M,,"},
		{name: "GGAQualityZero", payload: "GNGGA,123519,4807.038,N,01131.000,E,0,00,99.9,,,,,,"},
		{name: "GGAEmpty", payload: "GNGGA,,,,,,0,00,99.99,,,,,,"},
		{name: "GGAEmptyHemisphereMode", payload: "GNGGA,,,,,,0,00,99.99,,,,,,", mode: GGAHemisphere},
		{name: "RMCActiveButEmpty", payload: "GNRMC,123519,A,,,,,,,230394,,"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decoder{GGA: tc.mode}.Decode(sentence(tc.payload))
			if !errors.Is(err, ErrNoFix) {
				t.Fatalf("err=%v want ErrNoFix", err)
			}
		})
	}
}

func TestDecode_Unrecognized(t *testing.T) {
	for _, p := range []string{
		"GNGSV,3,1,11,03,03,111,00",
		"GNVTG,084.4,T,,M,022.4,N,041.5,K,A",
		"PMTK001,314,3",
	} {
		_, err := Decode(sentence(p))
		if !errors.Is(err, ErrUnrecognized) {
			t.Fatalf("%q: err=%v", p, err)
		}
	}
}

func TestDecode_Errors(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    error
		field   int
	}{
		{name: "RMCTruncated", payload: "GNRMC,123519,A,4807.038", want: ErrTruncatedSentence, field: -1},
		{name: "GGATruncated", payload: "GNGGA,123519,4807.038,N", want: ErrTruncatedSentence, field: -1},
		{name: "LatNotNumber", payload: "GNRMC,123519,A,48O7.038,N,01131.000,E,,,,,", want: ErrMalformedField, field: 3},
		{name: "LatNaN", payload: "GNRMC,123519,A,NaN,N,01131.000,E,,,,,", want: ErrMalformedField, field: 3},
		{name: "LatSigned", payload: "GNRMC,123519,A,-4807.038,N,01131.000,E,,,,,", want: ErrMalformedField, field: 3},
		{name: "LonExponent", payload: "GNRMC,123519,A,4807.038,N,1e3,E,,,,,", want: ErrMalformedField, field: 5},
		{name: "MinutesOutOfRange", payload: "GNRMC,123519,A,4875.000,N,01131.000,E,,,,,", want: ErrMalformedField, field: 3},
		{name: "LatOver90", payload: "GNRMC,123519,A,9107.038,N,01131.000,E,,,,,", want: ErrMalformedField, field: 3},
		{name: "BadHemisphere", payload: "GNRMC,123519,A,4807.038,X,01131.000,E,,,,,", want: ErrMalformedField, field: 4},
		{name: "MissingHemisphere", payload: "GNRMC,123519,A,4807.038,,01131.000,E,,,,,", want: ErrMalformedField, field: 4},
		{name: "BadTime", payload: "GNRMC,12a519,A,4807.038,N,01131.000,E,,,,,", want: ErrMalformedField, field: 1},
		{name: "GGALonGarbage", payload: "GNGGA,123519,4807.038,N,abc,E,1,08,0.9,545.4,M,46.9,M,,", want: ErrMalformedField, field: 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(sentence(tc.payload))
			if !errors.Is(err, tc.want) {
				t.Fatalf("err=%v want %v", err, tc.want)
			}
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("expected *DecodeError, got %T", err)
			}
			if de.Field != tc.field {
				t.Fatalf("field=%d want %d", de.Field, tc.field)
			}
		})
	}
}

func TestKind(t *testing.T) {
	cases := map[string]Kind{
		"$GNRMC,": RMC,
		"$GPRMC,": RMC,
		"$GLGGA,": GGA,
		"$GNGGA,": GGA,
		"$GNGSV,": Unrecognized,
		"$PMTK00": Unrecognized,
		"$GNRMCX": Unrecognized,
		"GNRMC,1": Unrecognized,
		"$gnrmc,": Unrecognized,
		"$GN":     Unrecognized,
	}
	for in, want := range cases {
		if got := Frame(in).Kind(); got != want {
			t.Fatalf("Kind(%q)=%s want %s", in, got, want)
		}
	}
}

func TestParseGGAMode(t *testing.T) {
	if m, err := ParseGGAMode(""); err != nil || m != GGAIndexed {
		t.Fatalf("default mode: %v %v", m, err)
	}
	if m, err := ParseGGAMode("hemisphere"); err != nil || m != GGAHemisphere {
		t.Fatalf("hemisphere: %v %v", m, err)
	}
	if _, err := ParseGGAMode("columns"); err == nil {
		t.Fatalf("expected error")
	}
}
