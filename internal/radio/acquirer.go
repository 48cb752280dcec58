package radio

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/tank-relay/internal/telemetry"
)

// Acquisition defaults.
const (
	// defaultMaxLineLength caps a single frame line. Real frames are under
	// 30 bytes; anything longer is line noise.
	defaultMaxLineLength = 256

	// defaultReadTimeout bounds one line read when Config leaves it unset.
	defaultReadTimeout = 2 * time.Second

	readChunkSize = 64
)

// failedOpenPause is the wait after an open attempt itself fails, so a
// missing device does not spin the loop.
var failedOpenPause = time.Second

// Frame outcomes reported to observers.
const (
	ResultValid     = "valid"
	ResultMalformed = "malformed"
	ResultChecksum  = "checksum"
)

// Logger is the logging interface used by the acquirer.
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

// Observer is told about every processed line and channel event.
// Implementations must not block; they run on the acquisition goroutine.
type Observer interface {
	// ObserveFrame is called once per non-empty line. reading is non-nil
	// only for ResultValid; wide reports a field beyond the sensor's
	// 16-bit encoding.
	ObserveFrame(result string, reading *telemetry.Reading, wide bool)

	// ObserveFault is called when the channel fails.
	ObserveFault(err error)

	// ObserveReopen is called when the channel is open again after a fault.
	ObserveReopen()
}

// Config configures an Acquirer.
type Config struct {
	// Open opens the serial channel. Required.
	Open Opener

	// Store receives every validated reading. Required.
	Store *telemetry.Store

	// Calibration converts distance to water level.
	Calibration telemetry.Calibration

	// ReadTimeout bounds the wait for one complete line.
	ReadTimeout time.Duration

	// ReopenDelay is a fixed pause between closing a faulted channel and
	// reopening it. Zero reopens immediately.
	ReopenDelay time.Duration

	// MaxLineLength caps the bytes collected for one line.
	MaxLineLength int

	Logger    Logger
	Observers []Observer
}

// Acquirer owns the serial channel and is the only writer to the Store.
//
// Each iteration reads at most one line, discards anything still buffered,
// and validates the line. Channel faults close and reopen the port with the
// same settings, forever. Anything else is logged and the loop continues.
type Acquirer struct {
	cfg    Config
	logger Logger
	now    func() time.Time

	portMu sync.Mutex
	port   Port

	state atomic.Int32

	framesValid     atomic.Uint64
	framesMalformed atomic.Uint64
	framesChecksum  atomic.Uint64
	framesWide      atomic.Uint64
	faults          atomic.Uint64
	reopens         atomic.Uint64
	panics          atomic.Uint64
	lastFrame       atomic.Int64 // unix nanoseconds of the last valid frame
}

// NewAcquirer validates cfg and returns an Acquirer. The channel is not
// opened until Run.
func NewAcquirer(cfg Config) (*Acquirer, error) {
	if cfg.Open == nil {
		return nil, fmt.Errorf("%w: opener is required", ErrInvalidConfig)
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidConfig)
	}
	if err := cfg.Calibration.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.MaxLineLength <= 0 {
		cfg.MaxLineLength = defaultMaxLineLength
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	return &Acquirer{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Run reads frames until ctx is cancelled. It always returns nil; channel
// problems are recovered from, never returned.
func (a *Acquirer) Run(ctx context.Context) error {
	defer a.closePort()

	// A cancelled context closes the port so a blocked Read returns early.
	stop := context.AfterFunc(ctx, a.closePort)
	defer stop()

	afterFault := false
	for ctx.Err() == nil {
		if !a.hasPort() {
			if err := a.openPort(); err != nil {
				a.logger.Error("opening radio channel failed",
					"error", err,
					"kind", describePortError(err),
				)
				if !sleepCtx(ctx, failedOpenPause) {
					break
				}
				continue
			}
			if afterFault {
				a.reopens.Add(1)
				for _, o := range a.cfg.Observers {
					o.ObserveReopen()
				}
				a.logger.Info("radio channel reopened")
			} else {
				a.logger.Info("radio channel opened")
			}
			afterFault = false
		}

		if err := a.step(); err != nil {
			if ctx.Err() != nil {
				break
			}
			a.handleFault(err)
			afterFault = true
			if !sleepCtx(ctx, a.cfg.ReopenDelay) {
				break
			}
		}
	}

	a.state.Store(int32(StateStopped))
	a.logger.Info("acquisition stopped")
	return nil
}

// step performs one read attempt and processes the result.
// It returns a non-nil error only for channel faults.
func (a *Acquirer) step() (err error) {
	defer func() {
		if r := recover(); r != nil {
			a.panics.Add(1)
			a.logger.Error("acquisition panic recovered",
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = nil
		}
	}()

	port := a.currentPort()
	if port == nil {
		return fmt.Errorf("%w: port closed", ErrChannelFault)
	}

	a.state.Store(int32(StateReading))
	raw, readErr := a.readLine(port)

	// Whatever arrived after the line belongs to a frame we cannot resync
	// to, so drop it.
	resetErr := port.ResetInputBuffer()

	if readErr != nil {
		return fmt.Errorf("%w: read: %w", ErrChannelFault, readErr)
	}
	if resetErr != nil {
		return fmt.Errorf("%w: reset input buffer: %w", ErrChannelFault, resetErr)
	}

	a.state.Store(int32(StateParsing))
	a.processLine(raw)
	a.state.Store(int32(StateIdle))
	return nil
}

// readLine collects bytes up to and including '\n'. It stops early, returning
// what it has, when a read times out, the line grows past MaxLineLength, or
// ReadTimeout elapses. Bytes after the terminator in the same chunk are
// discarded.
func (a *Acquirer) readLine(port Port) ([]byte, error) {
	deadline := a.now().Add(a.cfg.ReadTimeout)
	line := make([]byte, 0, readChunkSize)
	chunk := make([]byte, readChunkSize)

	for len(line) < a.cfg.MaxLineLength {
		n, err := port.Read(chunk)
		if n > 0 {
			for i := 0; i < n; i++ {
				line = append(line, chunk[i])
				if chunk[i] == '\n' {
					return line, nil
				}
			}
		}
		if err != nil {
			return line, err
		}
		if n == 0 || !a.now().Before(deadline) {
			return line, nil
		}
	}

	return line, nil
}

// processLine validates one line and stores the reading.
func (a *Acquirer) processLine(raw []byte) {
	text := telemetry.DecodeLine(raw)
	if text == "" {
		return
	}

	frame, err := telemetry.ParseFrame(text)
	if err != nil {
		a.framesMalformed.Add(1)
		a.logger.Warn("discarding malformed frame", "line", text, "error", err)
		a.notify(ResultMalformed, nil, false)
		return
	}

	valid, err := frame.Validate()
	if err != nil {
		a.framesChecksum.Add(1)
		args := []any{"line", text, "sensor_id", frame.SensorID, "error", err}
		var ce *telemetry.ChecksumError
		if errors.As(err, &ce) {
			args = append(args, "computed", ce.Computed, "received", ce.Received)
		}
		a.logger.Warn("discarding frame with bad checksum", args...)
		a.notify(ResultChecksum, nil, false)
		return
	}

	now := a.now()
	reading := telemetry.NewReading(valid, a.cfg.Calibration, now)
	a.cfg.Store.Put(reading)
	a.framesValid.Add(1)
	a.lastFrame.Store(now.UnixNano())

	wide := valid.EncodingWidthExceeded()
	if wide {
		a.framesWide.Add(1)
		a.logger.Warn("frame field exceeds sensor encoding width",
			"sensor_id", valid.SensorID,
			"line", text,
			"encoding_width_exceeded", true,
		)
	}

	a.logger.Debug("frame accepted",
		"sensor_id", reading.SensorID,
		"distance", reading.DistanceCM,
		"vcc", reading.VCCRaw,
		"water_level_percent", telemetry.RoundPercent(reading.WaterLevelPct),
	)

	a.notify(ResultValid, &reading, wide)
}

func (a *Acquirer) notify(result string, reading *telemetry.Reading, wide bool) {
	for _, o := range a.cfg.Observers {
		o.ObserveFrame(result, reading, wide)
	}
}

// handleFault closes the faulted channel. Run reopens it.
func (a *Acquirer) handleFault(err error) {
	a.faults.Add(1)
	a.state.Store(int32(StateFaultRecovery))
	a.logger.Error("radio channel fault, reopening",
		"error", err,
		"kind", describePortError(err),
	)
	for _, o := range a.cfg.Observers {
		o.ObserveFault(err)
	}
	a.closePort()
}

func (a *Acquirer) openPort() error {
	port, err := a.cfg.Open()
	if err != nil {
		return err
	}
	a.portMu.Lock()
	a.port = port
	a.portMu.Unlock()
	a.state.Store(int32(StateIdle))
	return nil
}

func (a *Acquirer) closePort() {
	a.portMu.Lock()
	port := a.port
	a.port = nil
	a.portMu.Unlock()

	if port != nil {
		if err := port.Close(); err != nil {
			a.logger.Debug("closing radio channel", "error", err)
		}
	}
}

func (a *Acquirer) currentPort() Port {
	a.portMu.Lock()
	defer a.portMu.Unlock()
	return a.port
}

func (a *Acquirer) hasPort() bool {
	return a.currentPort() != nil
}

// Connected reports whether the channel is currently open.
func (a *Acquirer) Connected() bool {
	return a.hasPort()
}

// State returns the acquisition state.
func (a *Acquirer) State() State {
	return State(a.state.Load())
}

// Stats returns a snapshot of the acquisition counters.
func (a *Acquirer) Stats() Stats {
	s := Stats{
		Connected:       a.Connected(),
		State:           a.State().String(),
		FramesValid:     a.framesValid.Load(),
		FramesMalformed: a.framesMalformed.Load(),
		FramesChecksum:  a.framesChecksum.Load(),
		FramesWide:      a.framesWide.Load(),
		Faults:          a.faults.Load(),
		Reopens:         a.reopens.Load(),
		Panics:          a.panics.Load(),
	}
	if ns := a.lastFrame.Load(); ns != 0 {
		t := time.Unix(0, ns).UTC()
		s.LastFrame = &t
	}
	return s
}

// sleepCtx waits for d or until ctx is done. It reports whether ctx is
// still live.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
