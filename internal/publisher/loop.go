package publisher

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/tank-relay/internal/infrastructure/mqtt"
	"github.com/nerrad567/tank-relay/internal/telemetry"
)

// defaultInterval is the publication cadence when LoopConfig leaves it unset.
const defaultInterval = 5 * time.Second

// maxParallelSensors bounds how many sensors publish concurrently in one
// cycle.
const maxParallelSensors = 8

// Logger is the logging interface used by this package.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// PublishObserver is told the outcome of every state publish.
type PublishObserver interface {
	ObservePublish(sensorID uint64, quantity string, err error)
}

// Notifier receives the readings published in each cycle, for live
// consumers such as WebSocket clients. It must not block.
type Notifier interface {
	NotifyReadings(readings []telemetry.Reading)
}

// LoopConfig configures a publication Loop.
type LoopConfig struct {
	Store       *telemetry.Store
	Registry    *Registry
	Calibration telemetry.Calibration
	Topics      mqtt.Topics
	QoS         byte
	Interval    time.Duration
	Logger      Logger
	Observers   []PublishObserver
	Notifier    Notifier
}

// CycleResult summarises one publication pass.
type CycleResult struct {
	Sensors   int // sensors in the snapshot
	Published int // state messages accepted by the broker
	Failed    int // state messages or handles that failed
}

// Loop publishes the latest reading of every sensor on a fixed cadence.
// It never retries within a cycle; the next cycle publishes fresh values.
type Loop struct {
	cfg    LoopConfig
	logger Logger
}

// NewLoop creates a Loop. Call Run to start it.
func NewLoop(cfg LoopConfig) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Loop{cfg: cfg, logger: logger}
}

// Run publishes immediately, then every Interval, until ctx is cancelled.
// It always returns nil.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	l.Cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("publication stopped")
			return nil
		case <-ticker.C:
			l.Cycle(ctx)
		}
	}
}

// Cycle runs one publication pass over a snapshot of the store.
// A failure for one sensor never affects the others.
func (l *Loop) Cycle(ctx context.Context) CycleResult {
	snapshot := l.cfg.Store.GetAll()
	ids := make([]uint64, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	result := CycleResult{Sensors: len(ids)}
	var (
		mu        sync.Mutex
		published = make([]telemetry.Reading, 0, len(ids))
	)

	var g errgroup.Group
	g.SetLimit(maxParallelSensors)
	for _, id := range ids {
		reading := snapshot[id]
		g.Go(func() error {
			ok, failed := l.publishSensor(ctx, reading)
			mu.Lock()
			result.Published += ok
			result.Failed += failed
			if ok > 0 {
				published = append(published, reading)
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never return errors

	if l.cfg.Notifier != nil && len(published) > 0 {
		slices.SortFunc(published, func(a, b telemetry.Reading) int {
			return cmp.Compare(a.SensorID, b.SensorID)
		})
		l.cfg.Notifier.NotifyReadings(published)
	}

	if result.Sensors > 0 {
		l.logger.Debug("publication cycle complete",
			"sensors", result.Sensors,
			"published", result.Published,
			"failed", result.Failed,
		)
	}
	return result
}

// publishSensor publishes the three state messages for one reading and
// returns how many succeeded and failed.
func (l *Loop) publishSensor(ctx context.Context, r telemetry.Reading) (ok, failed int) {
	defer func() {
		if p := recover(); p != nil {
			l.logger.Error("publication panic recovered", "sensor_id", r.SensorID, "panic", p)
			failed++
		}
	}()

	h, err := l.cfg.Registry.GetOrCreate(ctx, r.SensorID)
	if err != nil {
		l.logger.Warn("sensor not publishable this cycle", "sensor_id", r.SensorID, "error", err)
		for _, o := range l.cfg.Observers {
			for _, q := range Quantities {
				o.ObservePublish(r.SensorID, q.Key, err)
			}
		}
		return 0, len(Quantities)
	}

	values := stateValues(r, l.cfg.Calibration)
	for _, q := range Quantities {
		err := l.publishState(h, q.Key, values[q.Key])
		for _, o := range l.cfg.Observers {
			o.ObservePublish(r.SensorID, q.Key, err)
		}
		if err != nil {
			failed++
			l.logger.Warn("state publish failed",
				"sensor_id", r.SensorID,
				"quantity", q.Key,
				"error", err,
			)
			continue
		}
		ok++
	}
	return ok, failed
}

func (l *Loop) publishState(h *Handle, key string, value any) error {
	payload, err := StatePayload(h.SensorID, key, value)
	if err != nil {
		return err
	}
	return h.session.Publish(l.cfg.Topics.SensorState(h.SensorID, key), payload, l.cfg.QoS, false)
}
