package main

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/nerrad567/tank-relay/internal/infrastructure/config"
	"github.com/nerrad567/tank-relay/internal/infrastructure/logging"
	"github.com/nerrad567/tank-relay/internal/infrastructure/mqtt"
)

// bridge holds the relay-level MQTT session that carries the bridge status
// and health topics. It is usable before the first successful connect:
// Publish returns mqtt.ErrNotConnected and IsConnected reports false.
type bridge struct {
	cfg    config.MQTTConfig
	topics mqtt.Topics
	log    *logging.Logger

	client atomic.Pointer[mqtt.Client]
}

func newBridge(cfg config.MQTTConfig, topics mqtt.Topics, log *logging.Logger) *bridge {
	return &bridge{cfg: cfg, topics: topics, log: log}
}

// connect dials the broker until it succeeds or ctx is cancelled. Failed
// attempts back off from reconnect.initial_delay up to reconnect.max_delay.
// Once connected, paho's auto-reconnect keeps the session alive.
func (b *bridge) connect(ctx context.Context) error {
	delay := seconds(b.cfg.Reconnect.InitialDelay, time.Second)
	maxDelay := seconds(b.cfg.Reconnect.MaxDelay, time.Minute)

	for {
		client, err := mqtt.Connect(ctx, b.cfg,
			mqtt.WithAvailability(b.topics.BridgeStatus()),
			mqtt.WithLogger(b.log),
		)
		if err == nil {
			client.SetOnConnect(func() {
				b.log.Info("MQTT reconnected")
			})
			client.SetOnDisconnect(func(err error) {
				b.log.Warn("MQTT disconnected", "error", err)
			})
			b.client.Store(client)
			b.log.Info("MQTT connected",
				"client_id", client.ClientID(),
				"status_topic", client.AvailabilityTopic(),
			)
			return nil
		}
		if ctx.Err() != nil {
			return nil //nolint:nilerr // shutdown during connect
		}

		b.log.Warn("MQTT connect failed, retrying", "error", err, "retry_in", delay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay = min(delay*2, maxDelay)
	}
}

// IsConnected reports whether the bridge session is up.
func (b *bridge) IsConnected() bool {
	c := b.client.Load()
	return c != nil && c.IsConnected()
}

// Publish sends on the bridge session.
func (b *bridge) Publish(topic string, payload []byte, qos byte, retained bool) error {
	c := b.client.Load()
	if c == nil {
		return mqtt.ErrNotConnected
	}
	return c.Publish(topic, payload, qos, retained)
}

// Close publishes "offline" on the status topic and disconnects.
func (b *bridge) Close() error {
	c := b.client.Swap(nil)
	if c == nil {
		return nil
	}
	return c.Close()
}

func seconds(n int, fallback time.Duration) time.Duration {
	if n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}
