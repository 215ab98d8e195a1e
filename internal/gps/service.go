package gps

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"fieldrelay/internal/nmea"
)

// Config controls the GPS reader.
//
// The receiver is expected to be an MTK-family module (PMTK command set)
// on a 9600 baud UART, or any device gpsd can relay raw NMEA for.
//
// Device may be empty to auto-detect.
type Config struct {
	Enable bool

	// Source selects how GPS is ingested: "serial" or "gpsd".
	// When empty, defaults to "serial".
	Source string

	// GPSDAddr is host:port for gpsd when Source=="gpsd".
	GPSDAddr string

	Device string
	Baud   int

	// MaxLineBytes caps one sentence including CR LF. Zero means
	// nmea.MaxFrameLen.
	MaxLineBytes int

	Framer  nmea.FramerConfig
	GGAMode nmea.GGAMode

	// Commands are sent (and acknowledged) before position reports are
	// consumed. Serial source only.
	Commands []nmea.Command

	// Power, when set, switches the receiver supply.
	Power PowerSwitch
}

// PowerSwitch drives the receiver's enable line.
type PowerSwitch interface {
	Set(on bool) error
}

type Counters struct {
	Frames    uint64 `json:"frames"`
	Fixes     uint64 `json:"fixes"`
	NoFix     uint64 `json:"no_fix"`
	Ignored   uint64 `json:"ignored"`
	Framing   uint64 `json:"framing_errors"`
	Checksum  uint64 `json:"checksum_errors"`
	Decode    uint64 `json:"decode_errors"`
	Timeouts  uint64 `json:"timeouts"`
	Overflows uint64 `json:"overflows"`
	Dropped   uint64 `json:"dropped"`
}

type Snapshot struct {
	Enabled bool `json:"enabled"`
	Valid   bool `json:"valid"`
	Powered bool `json:"powered"`

	Source   string `json:"source,omitempty"`
	GPSDAddr string `json:"gpsd_addr,omitempty"`
	Device   string `json:"device,omitempty"`
	Baud     int    `json:"baud,omitempty"`

	LatDeg  float64 `json:"lat_deg,omitempty"`
	LonDeg  float64 `json:"lon_deg,omitempty"`
	FixKind string  `json:"fix_kind,omitempty"`
	FixTime string  `json:"fix_time,omitempty"`

	LastFixUTC string   `json:"last_fix_utc,omitempty"`
	Counters   Counters `json:"counters"`
	LastError  string   `json:"last_error,omitempty"`
}

type Service struct {
	cfg Config
	dec nmea.Decoder

	cancel context.CancelFunc
	wg     sync.WaitGroup

	last  atomic.Value // Snapshot
	rx    atomic.Pointer[nmea.Receiver]
	fixes chan nmea.Fix

	// reconfigure is set when power returns; the serial reader resends the
	// output commands once the receiver talks again.
	reconfigure atomic.Bool

	mu     sync.Mutex
	snap   Snapshot
	closer io.Closer

	open func(path string, baud int) (io.ReadWriteCloser, error)
	dial func(ctx context.Context, addr string) (net.Conn, error)
	now  func() time.Time
}

func New(cfg Config) *Service {
	cfg.Source = strings.ToLower(strings.TrimSpace(cfg.Source))
	if cfg.Source == "" {
		cfg.Source = "serial"
	}
	if cfg.Baud == 0 {
		cfg.Baud = 9600
	}
	if cfg.MaxLineBytes <= 0 || cfg.MaxLineBytes > nmea.MaxFrameLen {
		cfg.MaxLineBytes = nmea.MaxFrameLen
	}
	s := &Service{
		cfg:   cfg,
		dec:   nmea.Decoder{GGA: cfg.GGAMode},
		fixes: make(chan nmea.Fix, 1),
		open:  openSerial,
		dial:  dialGPSD,
		now:   time.Now,
	}
	s.snap = Snapshot{
		Enabled:  cfg.Enable,
		Powered:  cfg.Power == nil,
		Source:   cfg.Source,
		GPSDAddr: strings.TrimSpace(cfg.GPSDAddr),
		Device:   cfg.Device,
		Baud:     cfg.Baud,
	}
	s.last.Store(s.snap)
	return s
}

// Fixes delivers decoded positions. The channel holds one fix; a fix the
// consumer has not taken yet is replaced by the newer one.
func (s *Service) Fixes() <-chan nmea.Fix {
	return s.fixes
}

func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("gps service is nil")
	}
	if !s.cfg.Enable {
		return nil
	}
	if ctx == nil {
		return fmt.Errorf("ctx is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	if s.cfg.Power != nil {
		if err := s.cfg.Power.Set(true); err != nil {
			return fmt.Errorf("gps power on: %w", err)
		}
		s.snap.Powered = true
		s.last.Store(s.snap)
	}

	switch s.cfg.Source {
	case "gpsd":
		return s.startGPSDLocked(ctx)
	case "serial":
		return s.startSerialLocked(ctx)
	default:
		return fmt.Errorf("gps source %q not supported", s.cfg.Source)
	}
}

func (s *Service) startSerialLocked(ctx context.Context) error {
	device := strings.TrimSpace(s.cfg.Device)
	if device == "" {
		device = autoDetectDevice()
		if device == "" {
			s.setErrorLocked("gps auto-detect failed: no /dev/ttyACM*, /dev/ttyUSB* or /dev/serial0 found")
			return fmt.Errorf("gps auto-detect failed")
		}
	}

	port, err := s.open(device, s.cfg.Baud)
	if err != nil {
		s.setErrorLocked(fmt.Sprintf("gps open failed device=%s baud=%d: %v", device, s.cfg.Baud, err))
		return err
	}
	s.closer = port
	s.snap.Device = device
	s.last.Store(s.snap)

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	rx := nmea.NewReceiver(nil)
	s.rx.Store(rx)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.consume(childCtx, rx.Mailbox())
	}()
	go func() {
		defer s.wg.Done()
		defer func() { _ = port.Close() }()

		log.Printf("gps enabled device=%s baud=%d", device, s.cfg.Baud)
		s.configure(childCtx, port, device, rx, s.cfg.Commands)
		s.readSerial(childCtx, port, device, rx)
	}()
	return nil
}

// configure sends cmds and waits for their acks. A receiver that does not
// answer is still read from; the failure is only recorded. Bytes the framer
// read past the last ack are passed on to rx.
func (s *Service) configure(ctx context.Context, port io.ReadWriter, device string, rx *nmea.Receiver, cmds []nmea.Command) {
	if len(cmds) == 0 {
		return
	}
	fr := nmea.NewFramer(port, s.cfg.Framer)
	err := nmea.Configure(ctx, nmea.NewEncoder(port), fr, cmds...)
	rx.Reset()
	_, _ = rx.Write(fr.Buffered())
	if err != nil {
		log.Printf("gps configure failed device=%s: %v", device, err)
		s.setError(fmt.Sprintf("gps configure failed: %v", err))
		return
	}
	log.Printf("gps configured device=%s commands=%d", device, len(cmds))
}

// reconfigureCommands is the init sequence without restarts; a receiver
// that just powered up has already booted.
func (s *Service) reconfigureCommands() []nmea.Command {
	var out []nmea.Command
	for _, c := range s.cfg.Commands {
		if !c.Restart() {
			out = append(out, c)
		}
	}
	return out
}

// readSerial plays the role of the UART interrupt: every byte goes to the
// receiver, which hands completed lines to consume through its mailbox.
//
// IdleTimeout bounds each read and SentenceTimeout bounds a line from its
// first byte. When either expires the partial line is discarded so it is
// never glued onto the next sentence.
func (s *Service) readSerial(ctx context.Context, port io.ReadWriter, device string, rx *nmea.Receiver) {
	dl, _ := port.(interface{ SetReadDeadline(time.Time) error })
	sentence := s.cfg.Framer.SentenceTimeout
	buf := make([]byte, 64)
	// configure may have left a partial line in rx.
	lineStart := time.Now()
	for {
		if ctx.Err() != nil {
			return
		}
		if dl != nil {
			_ = dl.SetReadDeadline(s.readDeadline(time.Now(), lineStart, rx.Pending() > 0))
		}
		pending, frames := rx.Pending(), rx.Stats().Frames
		n, err := port.Read(buf)
		now := time.Now()
		if n > 0 {
			_, _ = rx.Write(buf[:n])
			completed := rx.Stats().Frames != frames
			if rx.Pending() > 0 && (pending == 0 || completed) {
				lineStart = now
			}
			if completed && s.reconfigure.CompareAndSwap(true, false) {
				s.configure(ctx, port, device, rx, s.reconfigureCommands())
				lineStart = time.Now()
			}
		}
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				s.timeout(rx, now.Sub(lineStart))
				continue
			}
			if ctx.Err() != nil {
				return
			}
			s.setError(fmt.Sprintf("gps read stopped: %v", err))
			return
		}
		// Sources without deadlines are only checked between reads.
		if dl == nil && sentence > 0 && rx.Pending() > 0 && now.Sub(lineStart) > sentence {
			s.timeout(rx, now.Sub(lineStart))
		}
	}
}

func (s *Service) readDeadline(now, lineStart time.Time, pending bool) time.Time {
	var t time.Time
	if idle := s.cfg.Framer.IdleTimeout; idle > 0 {
		t = now.Add(idle)
	}
	if st := s.cfg.Framer.SentenceTimeout; pending && st > 0 {
		if end := lineStart.Add(st); t.IsZero() || end.Before(t) {
			t = end
		}
	}
	return t
}

// timeout drops the line in progress, if any, and records the timeout.
func (s *Service) timeout(rx *nmea.Receiver, age time.Duration) {
	partial := rx.Pending()
	rx.Reset()
	s.update(func(sn *Snapshot) {
		sn.Counters.Timeouts++
		if partial > 0 {
			sn.LastError = fmt.Sprintf("gps timeout: dropped %d byte partial line after %s", partial, age.Round(time.Millisecond))
		} else {
			sn.LastError = "gps idle: no data within " + s.cfg.Framer.IdleTimeout.String()
		}
	})
}

func (s *Service) consume(ctx context.Context, mb *nmea.Mailbox) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-mb.C():
			s.handle(f)
		}
	}
}

func (s *Service) startGPSDLocked(ctx context.Context) error {
	addr := strings.TrimSpace(s.cfg.GPSDAddr)
	if addr == "" {
		addr = gpsdDefaultAddr
	}

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		log.Printf("gps enabled source=gpsd addr=%s", addr)
		backoff := 250 * time.Millisecond
		maxBackoff := 10 * time.Second

		for {
			select {
			case <-childCtx.Done():
				return
			default:
			}

			conn, err := s.dial(childCtx, addr)
			if err != nil {
				s.setError(fmt.Sprintf("gpsd dial failed addr=%s: %v", addr, err))
				t := backoff
				if t > maxBackoff {
					t = maxBackoff
				}
				select {
				case <-childCtx.Done():
					return
				case <-time.After(t):
				}
				if backoff < maxBackoff {
					backoff *= 2
				}
				continue
			}
			backoff = 250 * time.Millisecond

			s.mu.Lock()
			// Swap the closer so Close() can interrupt an active connection.
			s.closer = conn
			s.mu.Unlock()

			s.readGPSD(childCtx, conn)
			_ = conn.Close()
		}
	}()

	s.snap.Device = "gpsd"
	s.snap.GPSDAddr = addr
	s.last.Store(s.snap)
	return nil
}

func (s *Service) readGPSD(ctx context.Context, conn net.Conn) {
	if err := gpsdWatch(conn); err != nil {
		s.setError(fmt.Sprintf("gpsd watch failed: %v", err))
		return
	}
	fr := nmea.NewFramer(conn, s.cfg.Framer)
	// continuation is set while the rest of a cut or timed-out line is
	// still arriving.
	continuation := false
	for {
		if ctx.Err() != nil {
			return
		}
		frame, err := fr.ReadFrame()
		if err != nil && !errors.Is(err, nmea.ErrTimeout) {
			if ctx.Err() == nil {
				s.setError(fmt.Sprintf("gpsd read stopped: %v", err))
			}
			return
		}
		if err != nil {
			s.update(func(sn *Snapshot) { sn.Counters.Timeouts++ })
			continuation = continuation || len(frame) > 0
			continue
		}
		complete := frame[len(frame)-1] == '\n'
		if continuation {
			continuation = !complete
			continue
		}
		if !complete {
			continuation = true
			if frame[0] == '$' {
				s.update(func(sn *Snapshot) { sn.Counters.Overflows++ })
			}
			continue
		}
		// gpsd interleaves its own JSON reports with the relayed sentences.
		if frame[0] != '$' {
			continue
		}
		s.handle(frame)
	}
}

// handle validates and decodes one line and publishes the fix, if any.
func (s *Service) handle(frame nmea.Frame) {
	if len(frame) > s.cfg.MaxLineBytes {
		s.update(func(sn *Snapshot) { sn.Counters.Overflows++ })
		return
	}
	if err := nmea.Check(frame); err != nil {
		s.update(func(sn *Snapshot) {
			if errors.Is(err, nmea.ErrChecksum) {
				sn.Counters.Checksum++
			} else {
				sn.Counters.Framing++
			}
			sn.LastError = err.Error()
		})
		return
	}

	fix, err := s.dec.Decode(frame)
	switch {
	case err == nil:
	case errors.Is(err, nmea.ErrUnrecognized):
		s.update(func(sn *Snapshot) {
			sn.Counters.Frames++
			sn.Counters.Ignored++
		})
		return
	case errors.Is(err, nmea.ErrNoFix):
		s.update(func(sn *Snapshot) {
			sn.Counters.Frames++
			sn.Counters.NoFix++
			sn.Valid = false
		})
		return
	default:
		s.update(func(sn *Snapshot) {
			sn.Counters.Frames++
			sn.Counters.Decode++
			sn.LastError = err.Error()
		})
		return
	}

	now := s.now().UTC()
	s.update(func(sn *Snapshot) {
		sn.Counters.Frames++
		sn.Counters.Fixes++
		sn.Valid = true
		sn.LatDeg = fix.Lat
		sn.LonDeg = fix.Lon
		sn.FixKind = fix.Kind.String()
		if fix.HasTime {
			sn.FixTime = fix.Time.String()
		}
		sn.LastFixUTC = now.Format(time.RFC3339Nano)
	})
	s.publish(fix)
}

func (s *Service) publish(fix nmea.Fix) {
	select {
	case s.fixes <- fix:
		return
	default:
	}
	select {
	case <-s.fixes:
	default:
	}
	select {
	case s.fixes <- fix:
	default:
	}
}

// SetPower switches the receiver supply. Without a power switch the
// receiver is always on and this is a no-op.
func (s *Service) SetPower(on bool) error {
	if s == nil || s.cfg.Power == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap.Powered == on {
		return nil
	}
	if err := s.cfg.Power.Set(on); err != nil {
		return fmt.Errorf("gps power: %w", err)
	}
	s.snap.Powered = on
	s.last.Store(s.snap)
	// A module without backup power boots with its default sentence set.
	if on && s.cfg.Source == "serial" && len(s.cfg.Commands) > 0 {
		s.reconfigure.Store(true)
	}
	return nil
}

func (s *Service) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	closer := s.closer
	s.cancel = nil
	s.closer = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if closer != nil {
		_ = closer.Close()
	}
	s.wg.Wait()
}

func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	v := s.last.Load()
	if v == nil {
		return Snapshot{}
	}
	snap := v.(Snapshot)
	if rx := s.rx.Load(); rx != nil {
		st := rx.Stats()
		snap.Counters.Overflows += st.Overflows
		snap.Counters.Dropped += st.Dropped
	}
	return snap
}

func (s *Service) update(fn func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.snap)
	s.last.Store(s.snap)
}

func (s *Service) setError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setErrorLocked(msg)
}

func (s *Service) setErrorLocked(msg string) {
	s.snap.LastError = msg
	// Do not force Valid=false here; transient read issues shouldn't flip validity.
	s.last.Store(s.snap)
}

func autoDetectDevice() string {
	candidates := []string{}
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf("/dev/ttyACM%d", i))
	}
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf("/dev/ttyUSB%d", i))
	}
	candidates = append(candidates, "/dev/serial0")
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
