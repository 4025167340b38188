package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"BACKEND_WS_BASE", "API_KEY", "FPS", "JPEG_QUALITY", "FRAME_BUFFER_SIZE", "STREAM_MODE", "CAMERA_SOURCE", "PLOT_TIME_AXIS", "MQTT_BROKER"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.FPS != 30 {
		t.Fatalf("unexpected fps: %v", cfg.FPS)
	}
	if cfg.JPEGQuality != 70 {
		t.Fatalf("unexpected jpeg quality: %d", cfg.JPEGQuality)
	}
	if cfg.FrameBufferSize != 30 {
		t.Fatalf("unexpected frame buffer size: %d", cfg.FrameBufferSize)
	}
	if cfg.StreamMode != StreamModeWebSocket {
		t.Fatalf("unexpected stream mode: %q", cfg.StreamMode)
	}
	if cfg.DrainInterval != 50*time.Millisecond || cfg.DrainChunk != 3 || cfg.PlotWindow != 500 {
		t.Fatalf("unexpected drain settings: %v %d %d", cfg.DrainInterval, cfg.DrainChunk, cfg.PlotWindow)
	}
	if cfg.ClientID != "goClient" {
		t.Fatalf("unexpected client id: %q", cfg.ClientID)
	}
	if cfg.PlotTimeAxis != TimeAxisSynthetic {
		t.Fatalf("unexpected plot time axis: %q", cfg.PlotTimeAxis)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("FPS", "15")
	t.Setenv("JPEG_QUALITY", "90")
	t.Setenv("FRAME_BUFFER_SIZE", "8")
	t.Setenv("STREAM_MODE", "GRPC")
	t.Setenv("RECONNECT_INTERVAL", "2s")
	t.Setenv("LOG_JSON", "yes")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.FPS != 15 || cfg.JPEGQuality != 90 || cfg.FrameBufferSize != 8 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.StreamMode != StreamModeGRPC {
		t.Fatalf("unexpected stream mode: %q", cfg.StreamMode)
	}
	if cfg.ReconnectInterval != 2*time.Second {
		t.Fatalf("unexpected reconnect interval: %v", cfg.ReconnectInterval)
	}
	if !cfg.LogJSON {
		t.Fatalf("expected LogJSON")
	}
	if got := cfg.FramePeriod(); got < 66*time.Millisecond || got > 67*time.Millisecond {
		t.Fatalf("unexpected frame period: %v", got)
	}
}

func TestLoadIgnoresUnparsableValues(t *testing.T) {
	t.Setenv("FPS", "fast")
	t.Setenv("JPEG_QUALITY", "high")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.FPS != 30 || cfg.JPEGQuality != 70 {
		t.Fatalf("expected fallbacks, got fps=%v quality=%d", cfg.FPS, cfg.JPEGQuality)
	}
}

func TestValidateRejects(t *testing.T) {
	t.Setenv("JPEG_QUALITY", "")
	base, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	cases := map[string]func(*Config){
		"fps":          func(c *Config) { c.FPS = 0 },
		"quality":      func(c *Config) { c.JPEGQuality = 101 },
		"buffer":       func(c *Config) { c.FrameBufferSize = 0 },
		"mode":         func(c *Config) { c.StreamMode = "carrier-pigeon" },
		"ws base":      func(c *Config) { c.BackendWSBase = "" },
		"camera":       func(c *Config) { c.CameraSource = "scanner" },
		"axis":         func(c *Config) { c.PlotTimeAxis = "sideways" },
		"chunk":        func(c *Config) { c.DrainChunk = 0 },
		"window":       func(c *Config) { c.PlotWindow = 0 },
		"mqtt topic":   func(c *Config) { c.MQTTBroker = "tcp://broker:1883"; c.MQTTTopic = " " },
		"grpc address": func(c *Config) { c.StreamMode = StreamModeGRPC; c.BackendGRPCAddr = "" },
	}
	for name, mutate := range cases {
		cfg := base
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestTLSConfigDisabled(t *testing.T) {
	cfg := Config{}
	tlsCfg, err := cfg.TLSConfig()
	if err != nil || tlsCfg != nil {
		t.Fatalf("expected nil config, got %v %v", tlsCfg, err)
	}

	cfg = Config{TLSEnabled: true, TLSCertPath: "cert.pem"}
	if _, err := cfg.TLSConfig(); err == nil || !strings.Contains(err.Error(), "both TLS cert and key") {
		t.Fatalf("expected cert/key pairing error, got %v", err)
	}
}
