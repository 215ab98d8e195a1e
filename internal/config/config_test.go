package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fieldrelay/internal/geofence"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func requireErrEq(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", want)
	}
	if err.Error() != want {
		t.Fatalf("error=%q want %q", err.Error(), want)
	}
}

func TestLoad_EmptyFileUsesDefaults(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, ""))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.GPS.Source != "serial" || cfg.GPS.Baud != 9600 {
		t.Fatalf("gps=%+v", cfg.GPS)
	}
	if cfg.GPS.MaxLineBytes != 256 {
		t.Fatalf("max_line_bytes=%d", cfg.GPS.MaxLineBytes)
	}
	if cfg.GPS.IdleTimeout != 5*time.Second {
		t.Fatalf("idle_timeout=%s", cfg.GPS.IdleTimeout)
	}
	if cfg.GPS.SentenceTimeout <= time.Second {
		t.Fatalf("sentence_timeout=%s", cfg.GPS.SentenceTimeout)
	}
	if strings.Join(cfg.GPS.Output, ",") != "RMC,GGA" {
		t.Fatalf("output=%v", cfg.GPS.Output)
	}
	if cfg.Relay.MinInterval != 5*time.Second || cfg.Relay.Burst != 10 {
		t.Fatalf("relay=%+v", cfg.Relay)
	}
	if cfg.Triggers.Debounce != 50*time.Millisecond {
		t.Fatalf("debounce=%s", cfg.Triggers.Debounce)
	}
	if cfg.Web.Listen != ":8080" {
		t.Fatalf("listen=%q", cfg.Web.Listen)
	}
}

func TestLoad_FullConfig(t *testing.T) {
	body := `
gps:
  enable: true
  source: GPSD
  gpsd_addr: '10.0.0.2:2947'
  gga_mode: hemisphere
  init_commands: [PMTK103]
  output: [gga]
  update_rate: 1s
  power_pin: 4
triggers:
  panic_pin: 17
  door_pin: 27
  daily_report: '12:00'
relay:
  utc_offset: -5h
geofence:
  enable: true
  home_lat: 4.6097
  home_lon: -74.0817
lora:
  enable: true
  device: /dev/ttyUSB1
mqtt:
  enable: true
  broker: tcp://127.0.0.1:1883
wifi:
  enable: true
  ssid: field-ap
`
	cfg, err := Load(writeTempConfig(t, body))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.GPS.Source != "gpsd" || cfg.GPS.GPSDAddr != "10.0.0.2:2947" {
		t.Fatalf("gps=%+v", cfg.GPS)
	}
	if cfg.Relay.UTCOffset != -5*time.Hour {
		t.Fatalf("utc_offset=%s", cfg.Relay.UTCOffset)
	}
	if cfg.Geofence.MinLat != geofence.Colombia.MinLat || cfg.Geofence.MaxLon != geofence.Colombia.MaxLon {
		t.Fatalf("expected Colombia preset, got %+v", cfg.Geofence)
	}
	if cfg.LoRa.Baud != 57600 || cfg.LoRa.Port != 2 || cfg.LoRa.Timeout != 10*time.Second {
		t.Fatalf("lora=%+v", cfg.LoRa)
	}
	if cfg.MQTT.ClientID != "fieldrelay" || cfg.MQTT.Topic != "fieldrelay/report" {
		t.Fatalf("mqtt=%+v", cfg.MQTT)
	}
	if cfg.WiFi.Interface != "wlan0" || cfg.WiFi.SSID != "field-ap" {
		t.Fatalf("wifi=%+v", cfg.WiFi)
	}
	if cfg.Triggers.Chip != "" || cfg.GPS.Chip != "" {
		t.Fatalf("chip should stay empty for board auto-detection")
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "BadSource",
			body: "gps:\n  source: usb\n",
			want: "gps.source must be 'serial' or 'gpsd'",
		},
		{
			name: "LineTooLong",
			body: "gps:\n  max_line_bytes: 1024\n",
			want: "gps.max_line_bytes must be between 16 and 256",
		},
		{
			name: "BadGGAMode",
			body: "gps:\n  gga_mode: columns\n",
			want: `gps.gga_mode: unknown gga mode "columns" (want indexed or hemisphere)`,
		},
		{
			name: "BadOutput",
			body: "gps:\n  output: [ZDA]\n",
			want: `gps.output: nmea: unknown output sentence "ZDA"`,
		},
		{
			name: "FramedInitCommand",
			body: "gps:\n  init_commands: ['$PMTK103*30']\n",
			want: `gps.init_commands: invalid command "$PMTK103*30"`,
		},
		{
			name: "SamePins",
			body: "triggers:\n  panic_pin: 5\n  door_pin: 5\n",
			want: "triggers.panic_pin and triggers.door_pin must differ",
		},
		{
			name: "BadDailyReport",
			body: "triggers:\n  daily_report: noon\n",
			want: `triggers.daily_report: want HH:MM, got "noon"`,
		},
		{
			name: "UTCOffsetRange",
			body: "relay:\n  utc_offset: 20h\n",
			want: "relay.utc_offset must be within +/-14h",
		},
		{
			name: "InvertedFence",
			body: "geofence:\n  enable: true\n  min_lat: 10\n  max_lat: 5\n  min_lon: -80\n  max_lon: -70\n",
			want: "geofence bounds must satisfy min < max",
		},
		{
			name: "LoRaDevice",
			body: "lora:\n  enable: true\n",
			want: "lora.device is required when lora.enable is true",
		},
		{
			name: "LoRaPort",
			body: "lora:\n  enable: true\n  device: /dev/ttyUSB1\n  port: 224\n",
			want: "lora.port must be between 1 and 223",
		},
		{
			name: "TCPAddr",
			body: "tcp:\n  enable: true\n",
			want: "tcp.addr is required when tcp.enable is true",
		},
		{
			name: "MQTTBroker",
			body: "mqtt:\n  enable: true\n",
			want: "mqtt.broker is required when mqtt.enable is true",
		},
		{
			name: "UDPDest",
			body: "udp:\n  enable: true\n",
			want: "udp.dest is required when udp.enable is true",
		},
		{
			name: "WiFiSSID",
			body: "wifi:\n  enable: true\n",
			want: "wifi.ssid is required when wifi.enable is true",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeTempConfig(t, tc.body))
			requireErrEq(t, err, tc.want)
		})
	}
}

func TestLoad_RejectsUnknownField(t *testing.T) {
	path := writeTempConfig(t, "gps:\n  device: /dev/ttyS0\n  parity: even\n")
	_, err := Load(path)
	requireErrEq(t, err, "config contains unknown fields: field parity not found in type config.GPSConfig")
}

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock("07:45")
	if err != nil || h != 7 || m != 45 {
		t.Fatalf("h=%d m=%d err=%v", h, m, err)
	}
	if _, _, err := ParseClock("25:00"); err == nil {
		t.Fatalf("expected error")
	}
}
