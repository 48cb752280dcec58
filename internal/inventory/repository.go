package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/tank-relay/internal/telemetry"
)

// timeLayout is how timestamps are stored in TEXT columns.
const timeLayout = time.RFC3339Nano

// Repository defines sensor inventory persistence.
type Repository interface {
	RecordFrame(ctx context.Context, r telemetry.Reading) error
	RecordRegistration(ctx context.Context, sensorID uint64, at time.Time, regErr error) error
	Get(ctx context.Context, sensorID uint64) (*Sensor, error)
	List(ctx context.Context) ([]Sensor, error)
}

// SQLiteRepository implements Repository on the sensors table.
//
// Sensor ids are uint64 on the wire; SQLite integers are signed, so ids are
// stored as their two's-complement int64 bit pattern and converted back on
// read. Ordering by id is therefore done in Go.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an already migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// RecordFrame upserts the sensor row for an accepted reading, bumping its
// frame count and latest values.
func (r *SQLiteRepository) RecordFrame(ctx context.Context, rd telemetry.Reading) error {
	seen := rd.ObservedAt
	if seen.IsZero() {
		seen = time.Now()
	}
	ts := seen.UTC().Format(timeLayout)

	const query = `INSERT INTO sensors
		(sensor_id, first_seen, last_seen, frame_count, last_distance, last_vcc, last_level_pct)
		VALUES (?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT(sensor_id) DO UPDATE SET
			last_seen = excluded.last_seen,
			frame_count = sensors.frame_count + 1,
			last_distance = excluded.last_distance,
			last_vcc = excluded.last_vcc,
			last_level_pct = excluded.last_level_pct`
	_, err := r.db.ExecContext(ctx, query,
		toKey(rd.SensorID), ts, ts,
		toKey(rd.DistanceCM), toKey(rd.VCCRaw), rd.WaterLevelPct)
	if err != nil {
		return fmt.Errorf("recording frame for sensor %d: %w", rd.SensorID, err)
	}
	return nil
}

// RecordRegistration stores the outcome of a discovery registration. A
// failure keeps any earlier success and only updates last_error.
func (r *SQLiteRepository) RecordRegistration(ctx context.Context, sensorID uint64, at time.Time, regErr error) error {
	ts := at.UTC().Format(timeLayout)

	var (
		query string
		args  []any
	)
	if regErr == nil {
		query = `INSERT INTO sensors (sensor_id, first_seen, last_seen, registered, registered_at)
			VALUES (?, ?, ?, 1, ?)
			ON CONFLICT(sensor_id) DO UPDATE SET
				registered = 1,
				registered_at = excluded.registered_at,
				last_error = NULL`
		args = []any{toKey(sensorID), ts, ts, ts}
	} else {
		query = `INSERT INTO sensors (sensor_id, first_seen, last_seen, last_error)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(sensor_id) DO UPDATE SET
				last_error = excluded.last_error`
		args = []any{toKey(sensorID), ts, ts, regErr.Error()}
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("recording registration for sensor %d: %w", sensorID, err)
	}
	return nil
}

// Get returns one sensor, or ErrSensorNotFound.
func (r *SQLiteRepository) Get(ctx context.Context, sensorID uint64) (*Sensor, error) {
	row := r.db.QueryRowContext(ctx, selectSensor+" WHERE sensor_id = ?", toKey(sensorID))
	s, err := scanSensor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSensorNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// List returns every sensor ordered by id.
func (r *SQLiteRepository) List(ctx context.Context) ([]Sensor, error) {
	rows, err := r.db.QueryContext(ctx, selectSensor)
	if err != nil {
		return nil, fmt.Errorf("querying sensors: %w", err)
	}
	defer rows.Close()

	var out []Sensor
	for rows.Next() {
		s, err := scanSensor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sensors: %w", err)
	}

	sortByID(out)
	return out, nil
}

const selectSensor = `SELECT sensor_id, first_seen, last_seen, frame_count,
	last_distance, last_vcc, last_level_pct, registered, registered_at, last_error
	FROM sensors`

type scanner interface {
	Scan(dest ...any) error
}

func scanSensor(sc scanner) (*Sensor, error) {
	var (
		id                  int64
		firstSeen, lastSeen string
		distance, vcc       sql.NullInt64
		level               sql.NullFloat64
		registered          int64
		registeredAt        sql.NullString
		lastErr             sql.NullString
		s                   Sensor
	)
	if err := sc.Scan(&id, &firstSeen, &lastSeen, &s.FrameCount,
		&distance, &vcc, &level, &registered, &registeredAt, &lastErr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning sensor row: %w", err)
	}

	s.SensorID = fromKey(id)
	s.FirstSeen, _ = time.Parse(timeLayout, firstSeen) //nolint:errcheck // written by RecordFrame
	s.LastSeen, _ = time.Parse(timeLayout, lastSeen)   //nolint:errcheck // written by RecordFrame
	if distance.Valid {
		v := fromKey(distance.Int64)
		s.LastDistance = &v
	}
	if vcc.Valid {
		v := fromKey(vcc.Int64)
		s.LastVCC = &v
	}
	if level.Valid {
		v := level.Float64
		s.LastLevelPct = &v
	}
	s.Registered = registered != 0
	if registeredAt.Valid {
		if t, err := time.Parse(timeLayout, registeredAt.String); err == nil {
			s.RegisteredAt = &t
		}
	}
	s.LastError = lastErr.String
	return &s, nil
}

func toKey(v uint64) int64   { return int64(v) } //nolint:gosec // bit pattern round-trips through fromKey
func fromKey(v int64) uint64 { return uint64(v) } //nolint:gosec // inverse of toKey
