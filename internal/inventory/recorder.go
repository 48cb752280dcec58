package inventory

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/nerrad567/tank-relay/internal/radio"
	"github.com/nerrad567/tank-relay/internal/telemetry"
)

const (
	defaultQueueSize = 256
	writeTimeout     = 5 * time.Second
)

// Logger is the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

type event struct {
	reading *telemetry.Reading
	regID   uint64
	regErr  error
	at      time.Time
}

// Recorder feeds acquisition and registration events into a Repository.
//
// It implements radio.Observer and publisher.RegistrationObserver. Events
// are queued and written by Run, so observers never block on disk; when
// the queue is full the event is dropped and counted.
type Recorder struct {
	repo    Repository
	logger  Logger
	events  chan event
	dropped atomic.Int64
	now     func() time.Time
}

// NewRecorder creates a Recorder. Call Run to start writing.
func NewRecorder(repo Repository, logger Logger) *Recorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{
		repo:   repo,
		logger: logger,
		events: make(chan event, defaultQueueSize),
		now:    time.Now,
	}
}

// ObserveFrame queues accepted readings. Rejected frames are ignored.
func (r *Recorder) ObserveFrame(result string, reading *telemetry.Reading, _ bool) {
	if result != radio.ResultValid || reading == nil {
		return
	}
	rd := *reading
	r.enqueue(event{reading: &rd})
}

// ObserveFault is a no-op; faults are not persisted.
func (r *Recorder) ObserveFault(error) {}

// ObserveReopen is a no-op.
func (r *Recorder) ObserveReopen() {}

// ObserveRegistration queues a registration outcome.
func (r *Recorder) ObserveRegistration(sensorID uint64, err error) {
	r.enqueue(event{regID: sensorID, regErr: err, at: r.now()})
}

// Dropped returns how many events were discarded because the queue was full.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

func (r *Recorder) enqueue(ev event) {
	select {
	case r.events <- ev:
	default:
		r.dropped.Add(1)
	}
}

// Run writes queued events until ctx is cancelled, then drains what is
// already queued. It always returns nil; write errors are logged.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case ev := <-r.events:
			r.write(ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-r.events:
					r.write(ev)
				default:
					return nil
				}
			}
		}
	}
}

func (r *Recorder) write(ev event) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	var err error
	if ev.reading != nil {
		err = r.repo.RecordFrame(ctx, *ev.reading)
	} else {
		err = r.repo.RecordRegistration(ctx, ev.regID, ev.at, ev.regErr)
	}
	if err != nil {
		r.logger.Warn("inventory write failed", "error", err)
	}
}
