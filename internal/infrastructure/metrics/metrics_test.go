package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nerrad567/tank-relay/internal/radio"
	"github.com/nerrad567/tank-relay/internal/telemetry"
)

type fixedCount int

func (c fixedCount) Len() int { return int(c) }

func TestObserveFrame(t *testing.T) {
	m := New()
	at := time.Unix(1772355600, 0)

	rd := &telemetry.Reading{SensorID: 1, DistanceCM: 80, VCCRaw: 330, WaterLevelPct: 59.259, ObservedAt: at}
	m.ObserveFrame(radio.ResultValid, rd, false)
	m.ObserveFrame(radio.ResultValid, rd, true)
	m.ObserveFrame(radio.ResultChecksum, nil, false)
	m.ObserveFrame(radio.ResultMalformed, nil, false)
	m.ObserveFrame(radio.ResultMalformed, nil, false)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"valid", testutil.ToFloat64(m.framesTotal.WithLabelValues(radio.ResultValid)), 2},
		{"checksum", testutil.ToFloat64(m.framesTotal.WithLabelValues(radio.ResultChecksum)), 1},
		{"malformed", testutil.ToFloat64(m.framesTotal.WithLabelValues(radio.ResultMalformed)), 2},
		{"wide", testutil.ToFloat64(m.framesWide), 1},
		{"level", testutil.ToFloat64(m.waterLevel.WithLabelValues("1")), 59.259},
		{"distance", testutil.ToFloat64(m.distance.WithLabelValues("1")), 80},
		{"vcc", testutil.ToFloat64(m.vcc.WithLabelValues("1")), 330},
		{"last observed", testutil.ToFloat64(m.lastObserved.WithLabelValues("1")), 1772355600},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestObserveChannelAndPublish(t *testing.T) {
	m := New()

	m.ObserveFault(errors.New("read failed"))
	m.ObserveReopen()
	m.ObservePublish(1, "vcc", nil)
	m.ObservePublish(1, "vcc", errors.New("not connected"))
	m.ObserveRegistration(1, nil)

	if got := testutil.ToFloat64(m.faultsTotal); got != 1 {
		t.Errorf("faults = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.reopensTotal); got != 1 {
		t.Errorf("reopens = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.publishesTotal.WithLabelValues("vcc", "ok")); got != 1 {
		t.Errorf("publishes ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.publishesTotal.WithLabelValues("vcc", "failed")); got != 1 {
		t.Errorf("publishes failed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.registrationsTotal.WithLabelValues("ok")); got != 1 {
		t.Errorf("registrations ok = %v, want 1", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.TrackSensors(fixedCount(3), fixedCount(2))
	m.ObserveFrame(radio.ResultValid, &telemetry.Reading{SensorID: 9, DistanceCM: 50}, false)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body) //nolint:errcheck // checked via contents

	for _, want := range []string{
		`tankrelay_serial_frames_total{result="valid"} 1`,
		`tankrelay_sensor_distance_cm{sensor_id="9"} 50`,
		`tankrelay_sensors_known 3`,
		`tankrelay_sensors_connected 2`,
		`go_goroutines`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
