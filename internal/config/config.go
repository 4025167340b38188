package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type StreamMode string

const (
	StreamModeGRPC      StreamMode = "grpc"
	StreamModeWebSocket StreamMode = "websocket"
)

type CameraSource string

const (
	CameraSourceDevice    CameraSource = "device"
	CameraSourceSynthetic CameraSource = "synthetic"
)

type TimeAxis string

const (
	TimeAxisBackend   TimeAxis = "backend"
	TimeAxisSynthetic TimeAxis = "synthetic"
)

const HardcodedVersion = "V0.1"

type Config struct {
	BackendWSBase     string
	APIKey            string
	ClientID          string
	FPS               float64
	JPEGQuality       int
	FrameBufferSize   int
	CameraSource      CameraSource
	CameraIndex       int
	CameraWidth       int
	CameraHeight      int
	PreviewWidth      int
	StreamMode        StreamMode
	BackendGRPCAddr   string
	GRPCStreamMethod  string
	ReconnectInterval time.Duration
	WSWriteTimeout    time.Duration
	WSPingInterval    time.Duration
	TLSEnabled        bool
	TLSSkipVerify     bool
	TLSCAPath         string
	TLSCertPath       string
	TLSKeyPath        string
	LogJSON           bool
	LogLevel          string
	ShutdownTimeout   time.Duration
	DrainInterval     time.Duration
	DrainChunk        int
	PlotWindow        int
	PlotTimeAxis      TimeAxis
	ClockInterval     time.Duration
	SpeedInterval     time.Duration
	HealthInterval    time.Duration
	ProbeListenAddr   string
	FeedListenAddr    string
	MQTTBroker        string
	MQTTTopic         string
	MQTTClientID      string
	Version           string
}

func Load() (Config, error) {
	cfg := Config{
		BackendWSBase:     env("BACKEND_WS_BASE", "ws://127.0.0.1:8000"),
		APIKey:            env("API_KEY", ""),
		ClientID:          env("CLIENT_ID", "goClient"),
		FPS:               envFloat("FPS", 30),
		JPEGQuality:       envInt("JPEG_QUALITY", 70),
		FrameBufferSize:   envInt("FRAME_BUFFER_SIZE", 30),
		CameraSource:      CameraSource(strings.ToLower(env("CAMERA_SOURCE", string(CameraSourceDevice)))),
		CameraIndex:       envInt("CAMERA_INDEX", 0),
		CameraWidth:       envInt("CAMERA_WIDTH", 640),
		CameraHeight:      envInt("CAMERA_HEIGHT", 480),
		PreviewWidth:      envInt("PREVIEW_WIDTH", 320),
		StreamMode:        StreamMode(strings.ToLower(env("STREAM_MODE", string(StreamModeWebSocket)))),
		BackendGRPCAddr:   env("BACKEND_GRPC_ADDR", "127.0.0.1:50051"),
		GRPCStreamMethod:  env("GRPC_STREAM_METHOD", "/rppg.inference.v1.InferenceService/Stream"),
		ReconnectInterval: envDuration("RECONNECT_INTERVAL", 0),
		WSWriteTimeout:    envDuration("WS_WRITE_TIMEOUT", 5*time.Second),
		WSPingInterval:    envDuration("WS_PING_INTERVAL", 10*time.Second),
		TLSEnabled:        envBool("TLS_ENABLED", false),
		TLSSkipVerify:     envBool("TLS_SKIP_VERIFY", false),
		TLSCAPath:         env("TLS_CA_PATH", ""),
		TLSCertPath:       env("TLS_CERT_PATH", ""),
		TLSKeyPath:        env("TLS_KEY_PATH", ""),
		LogJSON:           envBool("LOG_JSON", false),
		LogLevel:          strings.ToLower(env("LOG_LEVEL", "info")),
		ShutdownTimeout:   envDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		DrainInterval:     envDuration("DRAIN_INTERVAL", 50*time.Millisecond),
		DrainChunk:        envInt("DRAIN_CHUNK", 3),
		PlotWindow:        envInt("PLOT_WINDOW", 500),
		PlotTimeAxis:      TimeAxis(strings.ToLower(env("PLOT_TIME_AXIS", string(TimeAxisSynthetic)))),
		ClockInterval:     envDuration("CLOCK_INTERVAL", 5*time.Second),
		SpeedInterval:     envDuration("SPEED_INTERVAL", 500*time.Millisecond),
		HealthInterval:    envDuration("HEALTH_INTERVAL", 10*time.Second),
		ProbeListenAddr:   env("PROBE_ADDR", "127.0.0.1:7444"),
		FeedListenAddr:    env("FEED_ADDR", ":8088"),
		MQTTBroker:        env("MQTT_BROKER", ""),
		MQTTTopic:         env("MQTT_TOPIC", "dashboard"),
		MQTTClientID:      env("MQTT_CLIENT_ID", "rppg-dashboard"),
		Version:           HardcodedVersion,
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.FPS <= 0 || c.FPS > 120 {
		return fmt.Errorf("FPS must be in (0, 120], got %v", c.FPS)
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("JPEG_QUALITY must be in [1, 100], got %d", c.JPEGQuality)
	}
	if c.FrameBufferSize < 1 {
		return errors.New("FRAME_BUFFER_SIZE must be > 0")
	}
	switch c.CameraSource {
	case CameraSourceDevice, CameraSourceSynthetic:
	default:
		return fmt.Errorf("unsupported camera source %q", c.CameraSource)
	}
	if c.CameraWidth <= 0 || c.CameraHeight <= 0 {
		return errors.New("CAMERA_WIDTH and CAMERA_HEIGHT must be > 0")
	}
	if c.PreviewWidth < 0 {
		return errors.New("PREVIEW_WIDTH must be >= 0")
	}
	switch c.StreamMode {
	case StreamModeGRPC, StreamModeWebSocket:
	default:
		return fmt.Errorf("unsupported stream mode %q", c.StreamMode)
	}
	if c.StreamMode == StreamModeWebSocket && c.BackendWSBase == "" {
		return errors.New("BACKEND_WS_BASE is required for websocket mode")
	}
	if c.StreamMode == StreamModeGRPC {
		if c.BackendGRPCAddr == "" {
			return errors.New("BACKEND_GRPC_ADDR is required for grpc mode")
		}
		if strings.TrimSpace(c.GRPCStreamMethod) == "" {
			return errors.New("GRPC_STREAM_METHOD is required for grpc mode")
		}
	}
	if c.ReconnectInterval < 0 {
		return errors.New("RECONNECT_INTERVAL must be >= 0")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("SHUTDOWN_TIMEOUT must be > 0")
	}
	if c.DrainInterval <= 0 || c.ClockInterval <= 0 || c.SpeedInterval <= 0 || c.HealthInterval <= 0 {
		return errors.New("timer intervals must be > 0")
	}
	if c.DrainChunk < 1 {
		return errors.New("DRAIN_CHUNK must be > 0")
	}
	if c.PlotWindow < 1 {
		return errors.New("PLOT_WINDOW must be > 0")
	}
	switch c.PlotTimeAxis {
	case TimeAxisBackend, TimeAxisSynthetic:
	default:
		return fmt.Errorf("unsupported plot time axis %q", c.PlotTimeAxis)
	}
	if c.MQTTBroker != "" && strings.TrimSpace(c.MQTTTopic) == "" {
		return errors.New("MQTT_TOPIC is required when MQTT_BROKER is set")
	}
	return nil
}

// FramePeriod is the target interval between captured frames.
func (c Config) FramePeriod() time.Duration {
	return time.Duration(float64(time.Second) / c.FPS)
}

func (c Config) TLSConfig() (*tls.Config, error) {
	if !c.TLSEnabled {
		return nil, nil
	}
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: c.TLSSkipVerify}
	if c.TLSCAPath != "" {
		caBytes, err := os.ReadFile(c.TLSCAPath)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caBytes) {
			return nil, errors.New("append CA cert failed")
		}
		tlsCfg.RootCAs = pool
	}
	if c.TLSCertPath != "" || c.TLSKeyPath != "" {
		if c.TLSCertPath == "" || c.TLSKeyPath == "" {
			return nil, errors.New("both TLS cert and key are required")
		}
		crt, err := tls.LoadX509KeyPair(c.TLSCertPath, c.TLSKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load mTLS cert/key: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{crt}
	}
	return tlsCfg, nil
}

func env(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return fallback
	}
	switch v {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
