package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"fieldrelay/internal/nmea"
)

// nmeaSummary tallies a captured receiver log, without a device attached.
type nmeaSummary struct {
	Lines     int
	Fixes     int
	NoFix     int
	Ignored   int
	Framing   int
	Checksum  int
	Decode    int
	Sentences map[string]int

	First, Last nmea.Fix
}

func summarizeNMEALog(r io.Reader) (nmeaSummary, error) {
	s := nmeaSummary{Sentences: map[string]int{}}
	fr := nmea.NewFramer(r, nmea.FramerConfig{})
	for {
		frame, err := fr.ReadFrame()
		if len(frame) > 0 {
			s.add(frame)
		}
		if errors.Is(err, io.EOF) {
			return s, nil
		}
		if err != nil {
			return s, err
		}
	}
}

func (s *nmeaSummary) add(frame nmea.Frame) {
	if len(bytes.TrimSpace(frame)) == 0 {
		return
	}
	s.Lines++
	if err := nmea.Check(frame); err != nil {
		if errors.Is(err, nmea.ErrChecksum) {
			s.Checksum++
		} else {
			s.Framing++
		}
		return
	}
	s.Sentences[sentenceID(frame)]++

	fix, err := nmea.Decode(frame)
	switch {
	case err == nil:
		if s.Fixes == 0 {
			s.First = fix
		}
		s.Last = fix
		s.Fixes++
	case errors.Is(err, nmea.ErrNoFix):
		s.NoFix++
	case errors.Is(err, nmea.ErrUnrecognized):
		s.Ignored++
	default:
		s.Decode++
	}
}

// sentenceID is the address field, e.g. "GNRMC" or "PMTK001".
func sentenceID(frame nmea.Frame) string {
	body := string(frame[1:])
	if i := strings.IndexAny(body, ",*"); i >= 0 {
		body = body[:i]
	}
	return body
}

func (s nmeaSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "lines: %d\n", s.Lines)
	fmt.Fprintf(&b, "fixes: %d\n", s.Fixes)
	fmt.Fprintf(&b, "no_fix: %d\n", s.NoFix)
	fmt.Fprintf(&b, "ignored: %d\n", s.Ignored)
	fmt.Fprintf(&b, "framing_errors: %d\n", s.Framing)
	fmt.Fprintf(&b, "checksum_errors: %d\n", s.Checksum)
	fmt.Fprintf(&b, "decode_errors: %d\n", s.Decode)
	if s.Fixes > 0 {
		fmt.Fprintf(&b, "first_fix: %.6f,%.6f\n", s.First.Lat, s.First.Lon)
		fmt.Fprintf(&b, "last_fix: %.6f,%.6f\n", s.Last.Lat, s.Last.Lon)
	}

	keys := make([]string, 0, len(s.Sentences))
	for k := range s.Sentences {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(&b, "sentences:\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "  %s: %d\n", k, s.Sentences[k])
	}
	return b.String()
}
