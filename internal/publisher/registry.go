package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"sync"

	"github.com/nerrad567/tank-relay/internal/infrastructure/config"
	"github.com/nerrad567/tank-relay/internal/infrastructure/mqtt"
)

// Session is one sensor's connection to the broker.
// *mqtt.Client satisfies it.
type Session interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
	Close() error
}

// Dialer opens a new Session for a sensor.
type Dialer func(ctx context.Context, sensorID uint64) (Session, error)

// MQTTDialer returns a Dialer that opens a dedicated broker session per
// sensor. The client id is the configured base id suffixed with the sensor
// id, and the session's Last Will marks that sensor unavailable.
func MQTTDialer(cfg config.MQTTConfig, topics mqtt.Topics, logger mqtt.Logger) Dialer {
	return func(ctx context.Context, sensorID uint64) (Session, error) {
		client, err := mqtt.Connect(ctx, cfg,
			mqtt.WithClientID(cfg.Broker.ClientID+"_"+strconv.FormatUint(sensorID, 10)),
			mqtt.WithAvailability(topics.SensorAvailability(sensorID)),
			mqtt.WithLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// RegistrationObserver is told when a sensor's discovery descriptors have
// been published.
type RegistrationObserver interface {
	ObserveRegistration(sensorID uint64, err error)
}

// Handle is a sensor's publishing session. It lives until the Registry is
// closed.
type Handle struct {
	SensorID uint64

	session Session

	mu         sync.Mutex
	registered bool
}

// Registered reports whether discovery descriptors have been published.
func (h *Handle) Registered() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registered
}

// Session returns the underlying broker session.
func (h *Handle) Session() Session {
	return h.session
}

// entry is a registry slot. ready closes once the dial has finished; after
// that handle and err are read-only.
type entry struct {
	ready  chan struct{}
	handle *Handle
	err    error
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	Dial      Dialer
	Topics    mqtt.Topics
	QoS       byte
	Version   string
	Logger    Logger
	Observers []RegistrationObserver
}

// Registry creates and owns one Handle per sensor.
//
// GetOrCreate is atomic per sensor id: concurrent callers for the same id
// share a single dial. Registration happens at most once per Handle once it
// succeeds.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Registry struct {
	cfg    RegistryConfig
	logger Logger

	mu      sync.Mutex
	entries map[uint64]*entry
	closed  bool
}

// NewRegistry creates an empty Registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Registry{
		cfg:     cfg,
		logger:  logger,
		entries: make(map[uint64]*entry),
	}
}

// GetOrCreate returns the sensor's Handle, dialling and registering it on
// first use.
//
// Parameters:
//   - ctx: Bounds the dial and the wait for a concurrent dial
//   - sensorID: The tank sensor
//
// Returns:
//   - *Handle: A registered handle
//   - error: ErrDialFailed, ErrRegistrationFailed, ErrRegistryClosed or the
//     context error
func (r *Registry) GetOrCreate(ctx context.Context, sensorID uint64) (*Handle, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	e, ok := r.entries[sensorID]
	if !ok {
		e = &entry{ready: make(chan struct{})}
		r.entries[sensorID] = e
	}
	r.mu.Unlock()

	if !ok {
		r.dial(ctx, sensorID, e)
	}

	select {
	case <-e.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if e.err != nil {
		return nil, e.err
	}

	if err := r.register(e.handle); err != nil {
		return nil, err
	}
	return e.handle, nil
}

// dial fills e and closes e.ready. A failed entry is removed first so the
// next caller starts a fresh dial.
func (r *Registry) dial(ctx context.Context, sensorID uint64, e *entry) {
	defer close(e.ready)

	session, err := r.cfg.Dial(ctx, sensorID)
	if err != nil {
		r.mu.Lock()
		delete(r.entries, sensorID)
		r.mu.Unlock()
		e.err = fmt.Errorf("%w: sensor %d: %w", ErrDialFailed, sensorID, err)
		r.logger.Warn("sensor session dial failed", "sensor_id", sensorID, "error", err)
		return
	}

	r.mu.Lock()
	closed := r.closed
	if closed {
		delete(r.entries, sensorID)
	}
	r.mu.Unlock()
	if closed {
		session.Close()
		e.err = ErrRegistryClosed
		return
	}

	e.handle = &Handle{SensorID: sensorID, session: session}
	r.logger.Info("sensor session opened", "sensor_id", sensorID)
}

// register publishes the retained discovery descriptors once per handle.
func (r *Registry) register(h *Handle) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.registered {
		return nil
	}

	var errs []error
	for _, q := range Quantities {
		cfg := NewSensorConfig(r.cfg.Topics, h.SensorID, q, r.cfg.Version)
		payload, err := json.Marshal(cfg)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", q.Key, err))
			continue
		}
		topic := r.cfg.Topics.SensorConfig(h.SensorID, q.Key)
		if err := h.session.Publish(topic, payload, r.cfg.QoS, true); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", q.Key, err))
		}
	}

	if len(errs) > 0 {
		err := fmt.Errorf("%w: sensor %d: %w", ErrRegistrationFailed, h.SensorID, errors.Join(errs...))
		r.logger.Warn("discovery registration failed, will retry",
			"sensor_id", h.SensorID,
			"error", err,
		)
		r.notify(h.SensorID, err)
		return err
	}

	h.registered = true
	r.logger.Info("sensor registered with Home Assistant", "sensor_id", h.SensorID)
	r.notify(h.SensorID, nil)
	return nil
}

func (r *Registry) notify(sensorID uint64, err error) {
	for _, o := range r.cfg.Observers {
		o.ObserveRegistration(sensorID, err)
	}
}

// Lookup returns the handle for a sensor without creating one.
func (r *Registry) Lookup(sensorID uint64) (*Handle, bool) {
	r.mu.Lock()
	e, ok := r.entries[sensorID]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	select {
	case <-e.ready:
		return e.handle, e.handle != nil
	default:
		return nil, false
	}
}

// IDs returns the sensors with a live handle, ascending.
func (r *Registry) IDs() []uint64 {
	r.mu.Lock()
	var ids []uint64
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	slices.Sort(ids)

	live := ids[:0]
	for _, id := range ids {
		if _, ok := r.Lookup(id); ok {
			live = append(live, id)
		}
	}
	return live
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	return len(r.IDs())
}

// Close closes every session. Each publishes "offline" on its availability
// topic before disconnecting. Later GetOrCreate calls fail.
func (r *Registry) Close() error {
	r.mu.Lock()
	r.closed = true
	entries := maps.Clone(r.entries)
	r.mu.Unlock()

	var errs []error
	for id, e := range entries {
		<-e.ready
		if e.handle == nil {
			continue
		}
		if err := e.handle.session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("sensor %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
