//go:build linux && (arm || arm64)

package gpio

import (
	"strings"
	"testing"
)

// These cases return before any chip is opened, so they run on a board
// without the trigger wiring.

func TestOpen_NoPins(t *testing.T) {
	if _, err := Open(Config{}); err == nil || !strings.Contains(err.Error(), "no trigger pins") {
		t.Fatalf("err=%v", err)
	}
}

func TestOpenOutput_InvalidPin(t *testing.T) {
	if _, err := OpenOutput("", 0, "fieldrelay-gps"); err == nil || !strings.Contains(err.Error(), "invalid output pin") {
		t.Fatalf("err=%v", err)
	}
}

func TestOutput_NilSafe(t *testing.T) {
	var o *Output
	if err := o.Set(true); err == nil {
		t.Fatalf("expected error from uninitialized output")
	}
	if err := o.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
}
