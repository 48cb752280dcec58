package publisher

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/nerrad567/tank-relay/internal/infrastructure/mqtt"
	"github.com/nerrad567/tank-relay/internal/telemetry"
)

var testCal = telemetry.Calibration{TankHeight: 190, MinLevel: 30, MaxLevel: 165}

type mockPublish struct {
	Topic    string
	Payload  string
	QoS      byte
	Retained bool
}

// mockSession records publishes. failNext makes that many publishes fail;
// failTopic makes every publish to a topic containing it fail.
type mockSession struct {
	mu        sync.Mutex
	published []mockPublish
	connected bool
	closed    bool
	failNext  int
	failTopic string
}

func newMockSession() *mockSession {
	return &mockSession{connected: true}
}

func (m *mockSession) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext > 0 {
		m.failNext--
		return mqtt.ErrPublishFailed
	}
	if m.failTopic != "" && strings.Contains(topic, m.failTopic) {
		return mqtt.ErrPublishFailed
	}
	if !m.connected {
		return mqtt.ErrNotConnected
	}
	m.published = append(m.published, mockPublish{Topic: topic, Payload: string(payload), QoS: qos, Retained: retained})
	return nil
}

func (m *mockSession) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockSession) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.connected = false
	return nil
}

func (m *mockSession) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mockPublish, len(m.published))
	copy(out, m.published)
	return out
}

func (m *mockSession) retained() []mockPublish {
	var out []mockPublish
	for _, p := range m.GetPublished() {
		if p.Retained {
			out = append(out, p)
		}
	}
	return out
}

func (m *mockSession) states() []mockPublish {
	var out []mockPublish
	for _, p := range m.GetPublished() {
		if !p.Retained {
			out = append(out, p)
		}
	}
	return out
}

// mockDialer hands out one mockSession per sensor and counts dials.
type mockDialer struct {
	mu       sync.Mutex
	sessions map[uint64]*mockSession
	dials    map[uint64]int
	failFor  map[uint64]int // remaining failing dials per sensor
	gate     chan struct{}  // when set, dials block until closed
	prepare  func(id uint64, s *mockSession)
}

func newMockDialer() *mockDialer {
	return &mockDialer{
		sessions: make(map[uint64]*mockSession),
		dials:    make(map[uint64]int),
		failFor:  make(map[uint64]int),
	}
}

func (d *mockDialer) Dial(ctx context.Context, id uint64) (Session, error) {
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials[id]++
	if d.failFor[id] > 0 {
		d.failFor[id]--
		return nil, errors.New("connection refused")
	}
	s := newMockSession()
	if d.prepare != nil {
		d.prepare(id, s)
	}
	d.sessions[id] = s
	return s, nil
}

func (d *mockDialer) session(id uint64) *mockSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions[id]
}

func (d *mockDialer) dialCount(id uint64) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials[id]
}

type recordingObserver struct {
	mu            sync.Mutex
	registrations map[uint64][]error
	publishes     map[string]int // "ok" / "failed"
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{
		registrations: make(map[uint64][]error),
		publishes:     make(map[string]int),
	}
}

func (r *recordingObserver) ObserveRegistration(id uint64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registrations[id] = append(r.registrations[id], err)
}

func (r *recordingObserver) ObservePublish(_ uint64, _ string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.publishes["failed"]++
	} else {
		r.publishes["ok"]++
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	cycles [][]telemetry.Reading
}

func (n *recordingNotifier) NotifyReadings(rs []telemetry.Reading) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cycles = append(n.cycles, rs)
}
