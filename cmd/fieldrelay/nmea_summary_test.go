package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fieldrelay/internal/nmea"
)

func frame(t *testing.T, payload string) string {
	t.Helper()
	b, err := nmea.AppendFrame(nil, payload)
	if err != nil {
		t.Fatalf("AppendFrame(%q) error: %v", payload, err)
	}
	return string(b)
}

func TestSummarizeNMEALog(t *testing.T) {
	log := frame(t, "GNRMC,161229.487,A,0441.2345,N,07403.4567,W,0.13,309.62,120598,,") +
		frame(t, "GNGGA,161230.487,0441.3000,N,07403.5000,W,1,07,1.0,2600.0,M,,,,0000") +
		frame(t, "GNRMC,,V,,,,,,,,,,N") +
		frame(t, "GNGSV,3,1,11,03,03,111,00") +
		"$GNRMC,123519,A,4807.038,N,01131.000,E,,,,,*00\r\n" +
		"garbage\r\n" +
		"\r\n" +
		frame(t, "GNRMC,123519,A,48O7.038,N,01131.000,E,,,,,")

	s, err := summarizeNMEALog(strings.NewReader(log))
	if err != nil {
		t.Fatalf("summarizeNMEALog() error: %v", err)
	}
	if s.Lines != 7 || s.Fixes != 2 || s.NoFix != 1 || s.Ignored != 1 {
		t.Fatalf("summary=%+v", s)
	}
	if s.Checksum != 1 || s.Framing != 1 || s.Decode != 1 {
		t.Fatalf("errors=%+v", s)
	}
	if s.Sentences["GNRMC"] != 3 || s.Sentences["GNGSV"] != 1 {
		t.Fatalf("sentences=%v", s.Sentences)
	}
	if s.First.Kind != nmea.RMC || s.Last.Kind != nmea.GGA {
		t.Fatalf("first=%+v last=%+v", s.First, s.Last)
	}

	out := s.String()
	for _, want := range []string{"fixes: 2\n", "checksum_errors: 1\n", "  GNGGA: 1\n", "first_fix: 4.687242,-74.057612\n"} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary output missing %q:\n%s", want, out)
		}
	}
}

func TestRunSummary_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.nmea")
	if err := os.WriteFile(path, []byte(frame(t, "GNGGA,161229.487,0441.2345,N,07403.4567,W,1,07,1.0,2600.0,M,,,,0000")), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	var buf bytes.Buffer
	if err := runSummary(&buf, path); err != nil {
		t.Fatalf("runSummary() error: %v", err)
	}
	if !strings.Contains(buf.String(), "fixes: 1\n") {
		t.Fatalf("output=%q", buf.String())
	}
	if err := runSummary(&buf, filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatalf("expected open error")
	}
}
