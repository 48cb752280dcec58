package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/tank-relay/internal/inventory"
	"github.com/nerrad567/tank-relay/internal/telemetry"
)

// SensorReading is the API view of a reading. The percentage is recomputed
// from the distance and rounded exactly as it is published over MQTT.
type SensorReading struct {
	SensorID          uint64    `json:"sensor_id"`
	WaterLevelPercent float64   `json:"water_level_percent"`
	Distance          uint64    `json:"distance"`
	VCC               uint64    `json:"vcc"`
	ObservedAt        time.Time `json:"observed_at"`
}

func newSensorReading(r telemetry.Reading, cal telemetry.Calibration) SensorReading {
	return SensorReading{
		SensorID:          r.SensorID,
		WaterLevelPercent: telemetry.RoundPercent(cal.Percent(r.DistanceCM)),
		Distance:          r.DistanceCM,
		VCC:               r.VCCRaw,
		ObservedAt:        r.ObservedAt,
	}
}

// noDataBody is the legacy /data response when nothing has been received.
var noDataBody = map[string]string{"error": "No data available"}

// handleLegacyData serves GET /data[?sensor_id=N]. Without sensor_id the
// lowest-numbered sensor is returned. An empty store (or an unknown id)
// yields 200 with {"error":"No data available"}.
func (s *Server) handleLegacyData(w http.ResponseWriter, r *http.Request) {
	var (
		reading telemetry.Reading
		ok      bool
	)

	if raw := r.URL.Query().Get("sensor_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeBadRequest(w, "sensor_id must be a non-negative integer")
			return
		}
		reading, ok = s.deps.Store.Get(id)
	} else if ids := s.deps.Store.IDs(); len(ids) > 0 {
		reading, ok = s.deps.Store.Get(ids[0])
	}

	if !ok {
		writeJSON(w, http.StatusOK, noDataBody)
		return
	}
	writeJSON(w, http.StatusOK, newSensorReading(reading, s.deps.Calibration))
}

// handleListSensors returns every live reading ordered by sensor id.
func (s *Server) handleListSensors(w http.ResponseWriter, _ *http.Request) {
	all := s.deps.Store.GetAll()
	out := make([]SensorReading, 0, len(all))
	for _, id := range s.deps.Store.IDs() {
		if rd, ok := all[id]; ok {
			out = append(out, newSensorReading(rd, s.deps.Calibration))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sensors": out,
		"count":   len(out),
	})
}

// handleGetSensor returns one live reading.
func (s *Server) handleGetSensor(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeBadRequest(w, "sensor id must be a non-negative integer")
		return
	}
	rd, ok := s.deps.Store.Get(id)
	if !ok {
		writeNotFound(w, "no reading for sensor "+strconv.FormatUint(id, 10))
		return
	}
	writeJSON(w, http.StatusOK, newSensorReading(rd, s.deps.Calibration))
}

// handleListInventory returns the persistent sensor inventory.
func (s *Server) handleListInventory(w http.ResponseWriter, r *http.Request) {
	if s.deps.Inventory == nil {
		writeUnavailable(w, "sensor inventory is disabled")
		return
	}
	sensors, err := s.deps.Inventory.List(r.Context())
	if err != nil {
		s.logger.Error("listing inventory failed", "error", err)
		writeInternalError(w, "failed to list inventory")
		return
	}
	if sensors == nil {
		sensors = []inventory.Sensor{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sensors": sensors,
		"count":   len(sensors),
	})
}

// handleHealth reports broker and serial connectivity.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	mqttUp := s.deps.MQTT != nil && s.deps.MQTT.IsConnected()
	serialUp := s.deps.Serial != nil && s.deps.Serial.Stats().Connected

	status := "ok"
	if !mqttUp || !serialUp {
		status = "degraded"
	}

	connected := 0
	if s.deps.Registry != nil {
		connected = s.deps.Registry.Len()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":           status,
		"version":          s.deps.Version,
		"mqtt_connected":   mqttUp,
		"serial_connected": serialUp,
		"sensors": map[string]int{
			"known":     s.deps.Store.Len(),
			"connected": connected,
		},
	})
}
