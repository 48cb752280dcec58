package publisher

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/tank-relay/internal/infrastructure/mqtt"
	"github.com/nerrad567/tank-relay/internal/radio"
)

// HealthStatus is the relay's overall state.
type HealthStatus string

// Health states.
const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStopping HealthStatus = "stopping"
)

// defaultHealthInterval applies when HealthReporterConfig leaves it unset.
const defaultHealthInterval = 30 * time.Second

// HealthPublisher publishes health messages. *mqtt.Client satisfies it.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// SerialSource reports acquisition counters. *radio.Acquirer satisfies it.
type SerialSource interface {
	Stats() radio.Stats
}

// SensorCounter reports how many sensors are known.
type SensorCounter interface {
	Len() int
}

// HealthMessage is the retained payload on tankrelay/{site}/health.
type HealthMessage struct {
	Status        HealthStatus `json:"status"`
	Reason        string       `json:"reason,omitempty"`
	Timestamp     time.Time    `json:"timestamp"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	Version       string       `json:"version"`
	Serial        radio.Stats  `json:"serial"`
	Sensors       SensorCounts `json:"sensors"`
}

// SensorCounts reports sensor totals in a health message.
type SensorCounts struct {
	Known      int `json:"known"`
	Registered int `json:"registered"`
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	Topics    mqtt.Topics
	Version   string
	Interval  time.Duration
	Publisher HealthPublisher
	Serial    SerialSource
	Store     SensorCounter
	Registry  SensorCounter
	Logger    Logger
}

// HealthReporter publishes the relay's health on a fixed interval.
type HealthReporter struct {
	cfg       HealthReporterConfig
	logger    Logger
	startTime time.Time
	now       func() time.Time

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewHealthReporter creates a reporter. Call Start to begin reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultHealthInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &HealthReporter{
		cfg:       cfg,
		logger:    logger,
		startTime: time.Now(),
		now:       time.Now,
		done:      make(chan struct{}),
	}
}

// Start begins periodic reporting until ctx is cancelled or Stop is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" message.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		if err := h.publish(HealthStopping, "relay shutting down"); err != nil {
			h.logger.Debug("final health publish failed", "error", err)
		}
	})
}

// PublishNow publishes the current health immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.Evaluate()
	return h.publish(status, reason)
}

// Evaluate returns the current status and, when degraded, why.
func (h *HealthReporter) Evaluate() (HealthStatus, string) {
	if h.cfg.Publisher == nil || !h.cfg.Publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}
	if h.cfg.Serial == nil || !h.cfg.Serial.Stats().Connected {
		return HealthDegraded, "serial channel closed"
	}
	return HealthHealthy, ""
}

// Message builds the health message without publishing it.
func (h *HealthReporter) Message(status HealthStatus, reason string) HealthMessage {
	now := h.now()
	msg := HealthMessage{
		Status:        status,
		Reason:        reason,
		Timestamp:     now.UTC(),
		UptimeSeconds: int64(now.Sub(h.startTime).Seconds()),
		Version:       h.cfg.Version,
	}
	if h.cfg.Serial != nil {
		msg.Serial = h.cfg.Serial.Stats()
	}
	if h.cfg.Store != nil {
		msg.Sensors.Known = h.cfg.Store.Len()
	}
	if h.cfg.Registry != nil {
		msg.Sensors.Registered = h.cfg.Registry.Len()
	}
	return msg
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logger.Warn("failed to publish initial health", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logger.Warn("failed to publish health", "error", err)
			}
		}
	}
}

// publish sends a retained health message at QoS 1.
func (h *HealthReporter) publish(status HealthStatus, reason string) error {
	if h.cfg.Publisher == nil {
		return nil
	}
	payload, err := json.Marshal(h.Message(status, reason))
	if err != nil {
		return err
	}
	return h.cfg.Publisher.Publish(h.cfg.Topics.BridgeHealth(), payload, 1, true)
}
