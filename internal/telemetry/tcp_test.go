package telemetry

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"
)

func TestTCP_SendsCSVLines(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error: %v", err)
	}
	defer ln.Close()

	lines := make(chan string, 4)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		sc := bufio.NewScanner(conn)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	c, err := NewTCP(TCPConfig{Addr: ln.Addr().String()})
	if err != nil {
		t.Fatalf("NewTCP() error: %v", err)
	}
	defer c.Close()

	for i := 0; i < 2; i++ {
		if err := c.Send(context.Background(), sampleReport()); err != nil {
			t.Fatalf("Send() error: %v", err)
		}
	}
	for i := 0; i < 2; i++ {
		select {
		case got := <-lines:
			if got != sampleReport().CSV() {
				t.Fatalf("line=%q", got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for line %d", i)
		}
	}
	snap := c.Snapshot()
	if snap.State != "connected" || snap.Lines != 2 || snap.LastSentUTC == "" {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestTCP_ReconnectDelay(t *testing.T) {
	c, err := NewTCP(TCPConfig{Addr: "collector.test:9000", ReconnectDelay: time.Minute})
	if err != nil {
		t.Fatalf("NewTCP() error: %v", err)
	}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	dials := 0
	c.dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
		dials++
		return nil, errors.New("connection refused")
	}

	if err := c.Send(context.Background(), sampleReport()); err == nil {
		t.Fatalf("expected dial error")
	}
	if err := c.Send(context.Background(), sampleReport()); err == nil || !strings.Contains(err.Error(), "not connected") {
		t.Fatalf("expected backoff error, got %v", err)
	}
	if dials != 1 {
		t.Fatalf("dials=%d want 1", dials)
	}
	now = now.Add(2 * time.Minute)
	_ = c.Send(context.Background(), sampleReport())
	if dials != 2 {
		t.Fatalf("dials=%d want 2", dials)
	}
	if snap := c.Snapshot(); snap.State != "error" || snap.LastError != "connection refused" {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestTCP_WriteErrorDropsConnection(t *testing.T) {
	server, client := net.Pipe()
	_ = server.Close()

	c, err := NewTCP(TCPConfig{Addr: "pipe"})
	if err != nil {
		t.Fatalf("NewTCP() error: %v", err)
	}
	c.dial = func(ctx context.Context, network, addr string) (net.Conn, error) { return client, nil }
	if err := c.Send(context.Background(), sampleReport()); err == nil {
		t.Fatalf("expected write error")
	}
	if snap := c.Snapshot(); snap.State != "disconnected" {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestNewTCP_RequiresAddr(t *testing.T) {
	if _, err := NewTCP(TCPConfig{}); err == nil {
		t.Fatalf("expected error")
	}
}
