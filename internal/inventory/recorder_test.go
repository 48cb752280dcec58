package inventory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/tank-relay/internal/radio"
	"github.com/nerrad567/tank-relay/internal/telemetry"
)

func runRecorder(t *testing.T, rec *Recorder) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = rec.Run(ctx) //nolint:errcheck // always nil
	}()
	return func() {
		cancel()
		<-done
	}
}

func TestRecorder_WritesValidFramesOnly(t *testing.T) {
	repo := setupTestRepo(t)
	rec := NewRecorder(repo, nil)
	stop := runRecorder(t, rec)

	rd := telemetry.Reading{SensorID: 3, DistanceCM: 80, VCCRaw: 330, ObservedAt: time.Now()}
	rec.ObserveFrame(radio.ResultValid, &rd, false)
	rec.ObserveFrame(radio.ResultValid, &rd, true)
	rec.ObserveFrame(radio.ResultChecksum, nil, false)
	rec.ObserveFrame(radio.ResultMalformed, nil, false)
	rec.ObserveFault(errors.New("io"))
	rec.ObserveReopen()
	stop()

	list, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 || list[0].FrameCount != 2 {
		t.Errorf("List() = %+v, want sensor 3 with 2 frames", list)
	}
}

func TestRecorder_Registration(t *testing.T) {
	repo := setupTestRepo(t)
	rec := NewRecorder(repo, nil)
	stop := runRecorder(t, rec)

	rec.ObserveRegistration(5, nil)
	stop()

	s, err := repo.Get(context.Background(), 5)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !s.Registered {
		t.Error("Registered = false after successful registration")
	}
}

// A full queue drops rather than blocking the caller.
func TestRecorder_DropsWhenFull(t *testing.T) {
	rec := NewRecorder(nil, nil)

	rd := telemetry.Reading{SensorID: 1}
	for i := 0; i < defaultQueueSize+10; i++ {
		rec.ObserveFrame(radio.ResultValid, &rd, false)
	}
	if got := rec.Dropped(); got != 10 {
		t.Errorf("Dropped() = %d, want 10", got)
	}
}
