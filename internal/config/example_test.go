package config

import (
	"path/filepath"
	"testing"
)

func TestLoad_ExampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "fieldrelay.yaml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.LoRa.Enable || cfg.LoRa.Baud != 57600 {
		t.Fatalf("lora=%+v", cfg.LoRa)
	}
	if cfg.Geofence.MaxLat == 0 {
		t.Fatalf("geofence preset not applied")
	}
}
