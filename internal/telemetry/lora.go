package telemetry

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tarm/serial"
)

type LoRaConfig struct {
	Device string
	Baud   int

	// Port is the LoRaWAN FPort for uplinks (1..223).
	Port int

	// Timeout bounds each modem response. Airtime plus the RX windows can
	// take several seconds at low data rates.
	Timeout time.Duration
}

// LoRa drives a Microchip RN2903/RN2483 modem over its ASCII command
// interface. The modem is expected to hold ABP session keys already.
type LoRa struct {
	cfg  LoRaConfig
	port io.ReadWriteCloser
	rd   *bufio.Reader

	mu sync.Mutex

	// OnDownlink, if set, receives data the network sent in an RX window.
	OnDownlink func(port int, data []byte)
}

var errNoResponse = errors.New("lora: no response from modem")

// OpenLoRa opens the modem and joins the network with the stored ABP
// session.
func OpenLoRa(cfg LoRaConfig) (*LoRa, error) {
	if cfg.Baud == 0 {
		cfg.Baud = 57600
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	p, err := serial.OpenPort(&serial.Config{Name: cfg.Device, Baud: cfg.Baud, ReadTimeout: cfg.Timeout})
	if err != nil {
		return nil, fmt.Errorf("lora: open %s: %w", cfg.Device, err)
	}
	l := newLoRa(p, cfg)
	if err := l.Join(context.Background()); err != nil {
		_ = p.Close()
		return nil, err
	}
	log.Printf("lora joined device=%s port=%d", cfg.Device, cfg.Port)
	return l, nil
}

func newLoRa(rw io.ReadWriteCloser, cfg LoRaConfig) *LoRa {
	if cfg.Port == 0 {
		cfg.Port = 2
	}
	return &LoRa{cfg: cfg, port: rw, rd: bufio.NewReader(rw)}
}

func (l *LoRa) Name() string { return "lora" }

// Join activates the ABP session ("mac join abp").
func (l *LoRa) Join(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := l.command("mac join abp"); err != nil {
		return err
	}
	resp, err := l.readLine()
	if err != nil {
		return err
	}
	if resp != "accepted" {
		return fmt.Errorf("lora: join %s", resp)
	}
	return nil
}

// Send transmits the report's LoRa text as an unconfirmed uplink.
func (l *LoRa) Send(ctx context.Context, r Report) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	payload := hex.EncodeToString([]byte(r.LoRaText()))
	if err := l.command(fmt.Sprintf("mac tx uncnf %d %s", l.cfg.Port, payload)); err != nil {
		return err
	}

	// Second response arrives after the RX windows close.
	resp, err := l.readLine()
	if err != nil {
		return err
	}
	switch {
	case resp == "mac_tx_ok":
		return nil
	case strings.HasPrefix(resp, "mac_rx "):
		return l.downlink(resp)
	default:
		return fmt.Errorf("lora: tx %s", resp)
	}
}

// command writes cmd and expects the modem's immediate "ok".
func (l *LoRa) command(cmd string) error {
	if _, err := io.WriteString(l.port, cmd+"\r\n"); err != nil {
		return fmt.Errorf("lora: write: %w", err)
	}
	resp, err := l.readLine()
	if err != nil {
		return err
	}
	if resp != "ok" {
		return fmt.Errorf("lora: %s rejected: %s", verb(cmd), resp)
	}
	return nil
}

// verb is the command without its arguments, e.g. "mac tx".
func verb(cmd string) string {
	f := strings.Fields(cmd)
	if len(f) > 2 {
		f = f[:2]
	}
	return strings.Join(f, " ")
}

func (l *LoRa) readLine() (string, error) {
	line, err := l.rd.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && strings.TrimSpace(line) == "" {
			// tarm/serial reports a read timeout as a zero-length read.
			return "", errNoResponse
		}
		if !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("lora: read: %w", err)
		}
	}
	return strings.TrimSpace(line), nil
}

// downlink handles "mac_rx <port> <hex>".
func (l *LoRa) downlink(resp string) error {
	f := strings.Fields(resp)
	if len(f) != 3 {
		return fmt.Errorf("lora: malformed downlink %q", resp)
	}
	port, err := strconv.Atoi(f[1])
	if err != nil {
		return fmt.Errorf("lora: downlink port %q: %w", f[1], err)
	}
	data, err := hex.DecodeString(f[2])
	if err != nil {
		return fmt.Errorf("lora: downlink payload: %w", err)
	}
	if l.OnDownlink != nil {
		l.OnDownlink(port, data)
	} else {
		log.Printf("lora downlink port=%d data=%x", port, data)
	}
	return nil
}

func (l *LoRa) Close() error {
	if l == nil || l.port == nil {
		return nil
	}
	return l.port.Close()
}
