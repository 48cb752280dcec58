package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/tank-relay/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for initial connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultKeepAlive applies when the config leaves keep_alive unset.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// lwtQoS is the QoS of the Last Will message.
	lwtQoS = 1

	tlsMinVersion = tls.VersionTLS12
)

// timeAfter is swapped in tests.
var timeAfter = time.After

// Option customises a single session created by Connect.
type Option func(*sessionOptions)

type sessionOptions struct {
	clientID          string
	availabilityTopic string
	logger            Logger
}

// WithClientID overrides cfg.Broker.ClientID for this session.
// Each concurrent session needs its own identifier or the broker will
// disconnect the older one.
func WithClientID(id string) Option {
	return func(o *sessionOptions) {
		o.clientID = id
	}
}

// WithAvailability sets the topic used for the session's Last Will and its
// online/offline announcements.
func WithAvailability(topic string) Option {
	return func(o *sessionOptions) {
		o.availabilityTopic = topic
	}
}

// WithLogger attaches a logger before the first connection event fires.
func WithLogger(l Logger) Option {
	return func(o *sessionOptions) {
		o.logger = l
	}
}

// buildClientOptions creates paho MQTT options from relay config.
//
// This configures:
//   - Broker URL (tcp:// or ssl:// based on TLS setting)
//   - Client ID and credentials
//   - Auto-reconnect with exponential backoff after the first connect
//   - Clean session mode
//
// Connect retry is left off: a failed first attempt is reported to the caller,
// who decides when to try again.
func buildClientOptions(cfg config.MQTTConfig, clientID string) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))

	opts.SetClientID(clientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	if cfg.Reconnect.MaxDelay > 0 {
		opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)
	}

	opts.SetConnectTimeout(defaultConnectTimeout)

	keepAlive := defaultKeepAlive
	if cfg.KeepAlive > 0 {
		keepAlive = time.Duration(cfg.KeepAlive) * time.Second
	}
	opts.SetKeepAlive(keepAlive)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
		})
	}

	return opts
}

// configureLWT sets the Last Will: the broker publishes a retained "offline"
// on topic if the session drops without a clean disconnect.
func configureLWT(opts *pahomqtt.ClientOptions, topic string) {
	opts.SetWill(topic, PayloadOffline, lwtQoS, true)
}
