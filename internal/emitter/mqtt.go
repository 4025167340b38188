package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"rppg-dashboard/internal/config"
	"rppg-dashboard/internal/model"
)

const (
	vitalsQoS      = 0
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
	disconnectMS   = 250
)

var ErrPublish = errors.New("mqtt publish failed")

// Publisher is the part of mqtt.Client the emitter needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type Stats struct {
	Published uint64
	Dropped   uint64
	Failed    uint64
}

// VitalsEmitter publishes vitals reports from its own goroutine so callers
// never block on the broker.
type VitalsEmitter struct {
	logger *slog.Logger
	pub    Publisher
	topic  string
	queue  chan model.Vitals

	published atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

func NewVitalsEmitter(logger *slog.Logger, pub Publisher, baseTopic string, buffer int) *VitalsEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer < 1 {
		buffer = 16
	}
	return &VitalsEmitter{
		logger: logger,
		pub:    pub,
		topic:  VitalsTopic(baseTopic),
		queue:  make(chan model.Vitals, buffer),
	}
}

func VitalsTopic(base string) string {
	return strings.TrimRight(base, "/") + "/vitals"
}

func (e *VitalsEmitter) Topic() string {
	return e.topic
}

// Offer queues v for publishing and reports false when the queue is full.
func (e *VitalsEmitter) Offer(v model.Vitals) bool {
	select {
	case e.queue <- v:
		return true
	default:
		e.dropped.Add(1)
		return false
	}
}

func (e *VitalsEmitter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case v := <-e.queue:
			if err := e.publish(v); err != nil {
				e.failed.Add(1)
				e.logger.Warn("vitals publish failed", "topic", e.topic, "error", err)
				continue
			}
			e.published.Add(1)
		}
	}
}

func (e *VitalsEmitter) publish(v model.Vitals) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal vitals: %w", err)
	}
	token := e.pub.Publish(e.topic, vitalsQoS, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w: timeout", ErrPublish)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrPublish, err)
	}
	return nil
}

func (e *VitalsEmitter) Stats() Stats {
	return Stats{Published: e.published.Load(), Dropped: e.dropped.Load(), Failed: e.failed.Load()}
}

// Connect dials the broker named by MQTT_BROKER. The client reconnects on its
// own after the first successful connect.
func Connect(ctx context.Context, cfg config.Config, logger *slog.Logger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTTBroker)
	opts.SetClientID(cfg.MQTTClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		logger.Info("mqtt connected", "broker", cfg.MQTTBroker, "client_id", cfg.MQTTClientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", "broker", cfg.MQTTBroker, "error", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	timer := time.NewTimer(connectTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("mqtt connect %s: timeout", cfg.MQTTBroker)
	case <-token.Done():
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.MQTTBroker, err)
	}
	return client, nil
}

// Disconnect gives in-flight publishes a short window to finish.
func Disconnect(client mqtt.Client) {
	if client != nil && client.IsConnected() {
		client.Disconnect(disconnectMS)
	}
}
