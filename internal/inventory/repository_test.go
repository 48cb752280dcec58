package inventory

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/tank-relay/internal/infrastructure/config"
	"github.com/nerrad567/tank-relay/internal/infrastructure/database"
	"github.com/nerrad567/tank-relay/internal/telemetry"
	"github.com/nerrad567/tank-relay/migrations"
)

func setupTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "inventory.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if _, err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func TestRecordFrame(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Minute)

	if err := repo.RecordFrame(ctx, telemetry.Reading{SensorID: 1, DistanceCM: 80, VCCRaw: 330, WaterLevelPct: 59.26, ObservedAt: t0}); err != nil {
		t.Fatalf("RecordFrame() error = %v", err)
	}
	if err := repo.RecordFrame(ctx, telemetry.Reading{SensorID: 1, DistanceCM: 90, VCCRaw: 329, WaterLevelPct: 51.85, ObservedAt: t1}); err != nil {
		t.Fatalf("RecordFrame() error = %v", err)
	}

	s, err := repo.Get(ctx, 1)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if s.FrameCount != 2 {
		t.Errorf("FrameCount = %d, want 2", s.FrameCount)
	}
	if !s.FirstSeen.Equal(t0) || !s.LastSeen.Equal(t1) {
		t.Errorf("FirstSeen/LastSeen = %v/%v, want %v/%v", s.FirstSeen, s.LastSeen, t0, t1)
	}
	if s.LastDistance == nil || *s.LastDistance != 90 {
		t.Errorf("LastDistance = %v, want 90", s.LastDistance)
	}
	if s.LastVCC == nil || *s.LastVCC != 329 {
		t.Errorf("LastVCC = %v, want 329", s.LastVCC)
	}
	if s.Registered {
		t.Error("Registered = true before any registration")
	}
}

// Ids above math.MaxInt64 survive the signed column.
func TestRecordFrame_LargeID(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	id := uint64(math.MaxUint64)
	if err := repo.RecordFrame(ctx, telemetry.Reading{SensorID: id, DistanceCM: math.MaxUint64}); err != nil {
		t.Fatalf("RecordFrame() error = %v", err)
	}
	s, err := repo.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if s.SensorID != id || *s.LastDistance != math.MaxUint64 {
		t.Errorf("round trip = %d/%d", s.SensorID, *s.LastDistance)
	}
}

func TestRecordRegistration(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	if err := repo.RecordFrame(ctx, telemetry.Reading{SensorID: 4, ObservedAt: at}); err != nil {
		t.Fatalf("RecordFrame() error = %v", err)
	}
	if err := repo.RecordRegistration(ctx, 4, at, errors.New("broker refused")); err != nil {
		t.Fatalf("RecordRegistration() error = %v", err)
	}

	s, _ := repo.Get(ctx, 4) //nolint:errcheck // asserted below
	if s.Registered || s.LastError != "broker refused" {
		t.Errorf("after failure: Registered=%v LastError=%q", s.Registered, s.LastError)
	}

	if err := repo.RecordRegistration(ctx, 4, at.Add(time.Second), nil); err != nil {
		t.Fatalf("RecordRegistration() error = %v", err)
	}
	s, _ = repo.Get(ctx, 4) //nolint:errcheck // asserted below
	if !s.Registered || s.LastError != "" || s.RegisteredAt == nil {
		t.Errorf("after success: %+v", s)
	}
	if s.FrameCount != 1 {
		t.Errorf("FrameCount = %d, want 1 (registration must not count frames)", s.FrameCount)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo := setupTestRepo(t)

	if _, err := repo.Get(context.Background(), 99); !errors.Is(err, ErrSensorNotFound) {
		t.Errorf("Get() error = %v, want ErrSensorNotFound", err)
	}
}

func TestList_SortedByID(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	for _, id := range []uint64{math.MaxUint64, 7, 2} {
		if err := repo.RecordFrame(ctx, telemetry.Reading{SensorID: id}); err != nil {
			t.Fatalf("RecordFrame(%d) error = %v", id, err)
		}
	}

	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("List() len = %d, want 3", len(list))
	}
	if list[0].SensorID != 2 || list[1].SensorID != 7 || list[2].SensorID != math.MaxUint64 {
		t.Errorf("List() order = %d, %d, %d", list[0].SensorID, list[1].SensorID, list[2].SensorID)
	}
}
