package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"fieldrelay/internal/geofence"
	"fieldrelay/internal/nmea"
)

type Config struct {
	GPS      GPSConfig      `yaml:"gps"`
	Triggers TriggersConfig `yaml:"triggers"`
	Relay    RelayConfig    `yaml:"relay"`
	Geofence GeofenceConfig `yaml:"geofence"`
	LoRa     LoRaConfig     `yaml:"lora"`
	TCP      TCPConfig      `yaml:"tcp"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	UDP      UDPConfig      `yaml:"udp"`
	WiFi     WiFiConfig     `yaml:"wifi"`
	Web      WebConfig      `yaml:"web"`
}

type GPSConfig struct {
	Enable bool `yaml:"enable"`

	// Source is "serial" (direct tty) or "gpsd" (raw NMEA relayed by gpsd).
	Source   string `yaml:"source"`
	Device   string `yaml:"device"`
	Baud     int    `yaml:"baud"`
	GPSDAddr string `yaml:"gpsd_addr"`

	MaxLineBytes    int           `yaml:"max_line_bytes"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	SentenceTimeout time.Duration `yaml:"sentence_timeout"`
	GGAMode         string        `yaml:"gga_mode"`

	// InitCommands are raw PMTK payloads sent before Output, e.g. "PMTK103".
	InitCommands []string      `yaml:"init_commands"`
	Output       []string      `yaml:"output"`
	UpdateRate   time.Duration `yaml:"update_rate"`

	// PowerPin is the GPIO line that powers the receiver; 0 means always on.
	// An empty Chip picks the board's header chip.
	PowerPin int    `yaml:"power_pin"`
	Chip     string `yaml:"chip"`
}

type TriggersConfig struct {
	Chip     string        `yaml:"chip"`
	PanicPin int           `yaml:"panic_pin"`
	DoorPin  int           `yaml:"door_pin"`
	Debounce time.Duration `yaml:"debounce"`

	// DailyReport is a local "HH:MM" time; empty disables the daily alarm.
	DailyReport string `yaml:"daily_report"`
}

type RelayConfig struct {
	MinInterval time.Duration `yaml:"min_interval"`
	Burst       int           `yaml:"burst"`
	UTCOffset   time.Duration `yaml:"utc_offset"`
}

type GeofenceConfig struct {
	Enable bool    `yaml:"enable"`
	MinLat float64 `yaml:"min_lat"`
	MaxLat float64 `yaml:"max_lat"`
	MinLon float64 `yaml:"min_lon"`
	MaxLon float64 `yaml:"max_lon"`

	HomeLat float64 `yaml:"home_lat"`
	HomeLon float64 `yaml:"home_lon"`
}

type LoRaConfig struct {
	Enable  bool          `yaml:"enable"`
	Device  string        `yaml:"device"`
	Baud    int           `yaml:"baud"`
	Port    int           `yaml:"port"`
	Timeout time.Duration `yaml:"timeout"`
}

type TCPConfig struct {
	Enable         bool          `yaml:"enable"`
	Addr           string        `yaml:"addr"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
}

type MQTTConfig struct {
	Enable   bool   `yaml:"enable"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
}

type UDPConfig struct {
	Enable bool   `yaml:"enable"`
	Dest   string `yaml:"dest"`
}

// WiFiConfig joins an access point at startup. Leave disabled when the
// network is managed outside fieldrelay.
type WiFiConfig struct {
	Enable    bool   `yaml:"enable"`
	Interface string `yaml:"interface"`
	SSID      string `yaml:"ssid"`
	Password  string `yaml:"password"`
}

type WebConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		var te *yaml.TypeError
		if errors.As(err, &te) && allUnknownFields(te.Errors) {
			return Config{}, fmt.Errorf("config contains unknown fields: %s", stripLines(te.Errors))
		}
		return Config{}, err
	}

	if err := applyGPS(&cfg.GPS); err != nil {
		return Config{}, err
	}
	if err := applyTriggers(&cfg.Triggers); err != nil {
		return Config{}, err
	}

	if cfg.Relay.MinInterval <= 0 {
		cfg.Relay.MinInterval = 5 * time.Second
	}
	if cfg.Relay.Burst <= 0 {
		cfg.Relay.Burst = 10
	}
	if cfg.Relay.UTCOffset < -14*time.Hour || cfg.Relay.UTCOffset > 14*time.Hour {
		return Config{}, fmt.Errorf("relay.utc_offset must be within +/-14h")
	}

	if cfg.Geofence.Enable {
		g := &cfg.Geofence
		// No explicit box: default to the Colombia preset.
		if g.MinLat == 0 && g.MaxLat == 0 && g.MinLon == 0 && g.MaxLon == 0 {
			c := geofence.Colombia
			g.MinLat, g.MaxLat, g.MinLon, g.MaxLon = c.MinLat, c.MaxLat, c.MinLon, c.MaxLon
		}
		if g.MinLat >= g.MaxLat || g.MinLon >= g.MaxLon {
			return Config{}, fmt.Errorf("geofence bounds must satisfy min < max")
		}
		if g.MinLat < -90 || g.MaxLat > 90 || g.MinLon < -180 || g.MaxLon > 180 {
			return Config{}, fmt.Errorf("geofence bounds out of range")
		}
	}

	if cfg.LoRa.Enable {
		if strings.TrimSpace(cfg.LoRa.Device) == "" {
			return Config{}, fmt.Errorf("lora.device is required when lora.enable is true")
		}
		if cfg.LoRa.Baud == 0 {
			cfg.LoRa.Baud = 57600
		}
		if cfg.LoRa.Port == 0 {
			cfg.LoRa.Port = 2
		}
		if cfg.LoRa.Port < 1 || cfg.LoRa.Port > 223 {
			return Config{}, fmt.Errorf("lora.port must be between 1 and 223")
		}
		if cfg.LoRa.Timeout <= 0 {
			cfg.LoRa.Timeout = 10 * time.Second
		}
	}

	if cfg.TCP.Enable {
		if strings.TrimSpace(cfg.TCP.Addr) == "" {
			return Config{}, fmt.Errorf("tcp.addr is required when tcp.enable is true")
		}
		if cfg.TCP.ReconnectDelay <= 0 {
			cfg.TCP.ReconnectDelay = 2 * time.Second
		}
	}

	if cfg.MQTT.Enable {
		if strings.TrimSpace(cfg.MQTT.Broker) == "" {
			return Config{}, fmt.Errorf("mqtt.broker is required when mqtt.enable is true")
		}
		if cfg.MQTT.ClientID == "" {
			cfg.MQTT.ClientID = "fieldrelay"
		}
		if cfg.MQTT.Topic == "" {
			cfg.MQTT.Topic = "fieldrelay/report"
		}
	}

	if cfg.UDP.Enable && strings.TrimSpace(cfg.UDP.Dest) == "" {
		return Config{}, fmt.Errorf("udp.dest is required when udp.enable is true")
	}

	if cfg.WiFi.Enable {
		if strings.TrimSpace(cfg.WiFi.SSID) == "" {
			return Config{}, fmt.Errorf("wifi.ssid is required when wifi.enable is true")
		}
		if cfg.WiFi.Interface == "" {
			cfg.WiFi.Interface = "wlan0"
		}
	}

	if cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8080"
	}

	return cfg, nil
}

func applyGPS(g *GPSConfig) error {
	g.Source = strings.ToLower(strings.TrimSpace(g.Source))
	switch g.Source {
	case "":
		g.Source = "serial"
	case "serial", "gpsd":
	default:
		return fmt.Errorf("gps.source must be 'serial' or 'gpsd'")
	}
	if g.Baud == 0 {
		g.Baud = 9600
	}
	if g.GPSDAddr == "" {
		g.GPSDAddr = "127.0.0.1:2947"
	}
	if g.MaxLineBytes == 0 {
		g.MaxLineBytes = nmea.MaxFrameLen
	}
	if g.MaxLineBytes < 16 || g.MaxLineBytes > nmea.MaxFrameLen {
		return fmt.Errorf("gps.max_line_bytes must be between 16 and %d", nmea.MaxFrameLen)
	}
	def := nmea.DefaultFramerConfig(g.Baud)
	if g.IdleTimeout <= 0 {
		g.IdleTimeout = def.IdleTimeout
	}
	if g.SentenceTimeout <= 0 {
		g.SentenceTimeout = def.SentenceTimeout
	}
	if _, err := nmea.ParseGGAMode(g.GGAMode); err != nil {
		return fmt.Errorf("gps.gga_mode: %v", err)
	}
	if len(g.Output) == 0 {
		g.Output = []string{"RMC", "GGA"}
	}
	if _, err := nmea.SetOutput(g.Output...); err != nil {
		return fmt.Errorf("gps.output: %v", err)
	}
	if g.UpdateRate != 0 {
		if _, err := nmea.SetUpdateInterval(g.UpdateRate); err != nil {
			return fmt.Errorf("gps.update_rate: %v", err)
		}
	}
	for _, c := range g.InitCommands {
		if !strings.HasPrefix(c, "PMTK") || strings.ContainsAny(c, "$*\r\n") {
			return fmt.Errorf("gps.init_commands: invalid command %q", c)
		}
	}
	if g.PowerPin < 0 {
		return fmt.Errorf("gps.power_pin must be >= 0")
	}
	return nil
}

func applyTriggers(t *TriggersConfig) error {
	if t.PanicPin < 0 || t.DoorPin < 0 {
		return fmt.Errorf("triggers pins must be >= 0")
	}
	if t.PanicPin != 0 && t.PanicPin == t.DoorPin {
		return fmt.Errorf("triggers.panic_pin and triggers.door_pin must differ")
	}
	if t.Debounce <= 0 {
		t.Debounce = 50 * time.Millisecond
	}
	if t.DailyReport != "" {
		if _, _, err := ParseClock(t.DailyReport); err != nil {
			return fmt.Errorf("triggers.daily_report: %v", err)
		}
	}
	return nil
}

var linePrefix = regexp.MustCompile(`^line \d+: `)

func allUnknownFields(errs []string) bool {
	for _, e := range errs {
		if !strings.Contains(e, " not found in type ") {
			return false
		}
	}
	return len(errs) > 0
}

func stripLines(errs []string) string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, linePrefix.ReplaceAllString(e, ""))
	}
	return strings.Join(out, "; ")
}

// ParseClock parses a "HH:MM" wall-clock time.
func ParseClock(s string) (hour, minute int, err error) {
	tm, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("want HH:MM, got %q", s)
	}
	return tm.Hour(), tm.Minute(), nil
}
