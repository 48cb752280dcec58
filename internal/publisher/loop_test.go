package publisher

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/tank-relay/internal/infrastructure/mqtt"
	"github.com/nerrad567/tank-relay/internal/telemetry"
)

func newTestLoop(store *telemetry.Store, r *Registry, obs []PublishObserver, n Notifier) *Loop {
	return NewLoop(LoopConfig{
		Store:       store,
		Registry:    r,
		Calibration: testCal,
		Topics:      mqtt.Topics{},
		Interval:    10 * time.Millisecond,
		Observers:   obs,
		Notifier:    n,
	})
}

// Two sensors produce six state messages, each on its own sensor's topics.
func TestLoop_CyclePublishesEverySensor(t *testing.T) {
	store := telemetry.NewStore()
	store.Put(telemetry.Reading{SensorID: 1, DistanceCM: 80, VCCRaw: 330})
	store.Put(telemetry.Reading{SensorID: 2, DistanceCM: 100, VCCRaw: 310})

	d := newMockDialer()
	obs := newRecordingObserver()
	notifier := &recordingNotifier{}
	loop := newTestLoop(store, newTestRegistry(d), []PublishObserver{obs}, notifier)

	res := loop.Cycle(context.Background())

	if res.Sensors != 2 || res.Published != 6 || res.Failed != 0 {
		t.Errorf("Cycle() = %+v, want 2 sensors, 6 published", res)
	}

	want := map[uint64]map[string]string{
		1: {
			"homeassistant/sensor/tank_1/water_level_percent/state": `{"sensor_id":1,"water_level_percent":59.26}`,
			"homeassistant/sensor/tank_1/vcc/state":                 `{"sensor_id":1,"vcc":330}`,
			"homeassistant/sensor/tank_1/distance/state":            `{"sensor_id":1,"distance":80}`,
		},
		2: {
			"homeassistant/sensor/tank_2/water_level_percent/state": `{"sensor_id":2,"water_level_percent":44.44}`,
			"homeassistant/sensor/tank_2/vcc/state":                 `{"sensor_id":2,"vcc":310}`,
			"homeassistant/sensor/tank_2/distance/state":            `{"sensor_id":2,"distance":100}`,
		},
	}

	for id, topics := range want {
		states := d.session(id).states()
		if len(states) != 3 {
			t.Fatalf("sensor %d state publishes = %d, want 3", id, len(states))
		}
		for _, p := range states {
			wantPayload, ok := topics[p.Topic]
			if !ok {
				t.Errorf("sensor %d published on foreign topic %q", id, p.Topic)
				continue
			}
			if p.Payload != wantPayload {
				t.Errorf("%s payload = %s, want %s", p.Topic, p.Payload, wantPayload)
			}
		}
	}

	obs.mu.Lock()
	if obs.publishes["ok"] != 6 {
		t.Errorf("observed ok publishes = %d, want 6", obs.publishes["ok"])
	}
	obs.mu.Unlock()

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.cycles) != 1 || len(notifier.cycles[0]) != 2 {
		t.Fatalf("notifier cycles = %v", notifier.cycles)
	}
	if notifier.cycles[0][0].SensorID != 1 || notifier.cycles[0][1].SensorID != 2 {
		t.Error("notified readings not sorted by sensor id")
	}
}

// Registration happens once even across many cycles.
func TestLoop_RegistersOnce(t *testing.T) {
	store := telemetry.NewStore()
	store.Put(telemetry.Reading{SensorID: 1, DistanceCM: 80, VCCRaw: 330})

	d := newMockDialer()
	loop := newTestLoop(store, newTestRegistry(d), nil, nil)

	for i := 0; i < 4; i++ {
		loop.Cycle(context.Background())
	}

	s := d.session(1)
	if got := len(s.retained()); got != 3 {
		t.Errorf("discovery publishes = %d, want 3", got)
	}
	if got := len(s.states()); got != 12 {
		t.Errorf("state publishes = %d, want 12", got)
	}
}

// A sensor that cannot dial does not stop the others.
func TestLoop_FailureIsolation(t *testing.T) {
	store := telemetry.NewStore()
	store.Put(telemetry.Reading{SensorID: 1, DistanceCM: 80, VCCRaw: 330})
	store.Put(telemetry.Reading{SensorID: 2, DistanceCM: 100, VCCRaw: 310})
	store.Put(telemetry.Reading{SensorID: 3, DistanceCM: 120, VCCRaw: 300})

	d := newMockDialer()
	d.failFor[2] = 1
	d.prepare = func(id uint64, s *mockSession) {
		if id == 3 {
			s.failTopic = "/vcc/state"
		}
	}
	loop := newTestLoop(store, newTestRegistry(d), nil, nil)

	res := loop.Cycle(context.Background())

	// sensor 1: 3 ok; sensor 2: 3 failed; sensor 3: 2 ok, 1 failed
	if res.Published != 5 || res.Failed != 4 {
		t.Errorf("Cycle() = %+v, want 5 published, 4 failed", res)
	}
	if got := len(d.session(1).states()); got != 3 {
		t.Errorf("sensor 1 state publishes = %d, want 3", got)
	}
	for _, p := range d.session(3).states() {
		if strings.Contains(p.Topic, "/vcc/") {
			t.Errorf("failed topic recorded as published: %s", p.Topic)
		}
	}

	// Next cycle sensor 2 dials again and publishes.
	loop.Cycle(context.Background())
	if s := d.session(2); s == nil || len(s.states()) != 3 {
		t.Error("sensor 2 did not recover on the next cycle")
	}
}

func TestLoop_EmptyStore(t *testing.T) {
	d := newMockDialer()
	notifier := &recordingNotifier{}
	loop := newTestLoop(telemetry.NewStore(), newTestRegistry(d), nil, notifier)

	res := loop.Cycle(context.Background())
	if res != (CycleResult{}) {
		t.Errorf("Cycle() = %+v, want zero", res)
	}
	if len(notifier.cycles) != 0 {
		t.Error("notifier called for empty cycle")
	}
}

// The percentage is recomputed from the distance at publication time.
func TestLoop_RecomputesPercent(t *testing.T) {
	store := telemetry.NewStore()
	store.Put(telemetry.Reading{SensorID: 1, DistanceCM: 190, VCCRaw: 330, WaterLevelPct: 99})

	d := newMockDialer()
	loop := newTestLoop(store, newTestRegistry(d), nil, nil)
	loop.Cycle(context.Background())

	for _, p := range d.session(1).states() {
		if strings.HasSuffix(p.Topic, "water_level_percent/state") {
			if p.Payload != `{"sensor_id":1,"water_level_percent":-22.22}` {
				t.Errorf("payload = %s, want unclamped -22.22", p.Payload)
			}
			return
		}
	}
	t.Error("no water level state published")
}

func TestLoop_RunPublishesUntilCancelled(t *testing.T) {
	store := telemetry.NewStore()
	store.Put(telemetry.Reading{SensorID: 1, DistanceCM: 80, VCCRaw: 330})

	d := newMockDialer()
	loop := newTestLoop(store, newTestRegistry(d), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if s := d.session(1); s != nil && len(s.states()) >= 6 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Run() did not publish two cycles")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
