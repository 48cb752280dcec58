package publisher

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/nerrad567/tank-relay/internal/infrastructure/mqtt"
	"github.com/nerrad567/tank-relay/internal/telemetry"
)

// Quantity keys. Each is both the JSON field in the state payload and the
// object id in the topic.
const (
	QuantityWaterLevel = "water_level_percent"
	QuantityVCC        = "vcc"
	QuantityDistance   = "distance"
)

// Quantity describes one Home Assistant sensor entity of a tank.
type Quantity struct {
	Key         string
	Name        string
	Unit        string
	DeviceClass string
	Icon        string
}

// Quantities are the entities announced and published for every tank, in
// publication order.
var Quantities = []Quantity{
	{Key: QuantityWaterLevel, Name: "Water Level", Unit: "%", Icon: "mdi:water-percent"},
	{Key: QuantityVCC, Name: "VCC Voltage", Unit: "V", DeviceClass: "voltage"},
	{Key: QuantityDistance, Name: "Distance", Unit: "cm", DeviceClass: "distance"},
}

// DeviceInfo is the Home Assistant device registry block shared by the
// entities of one tank, so they group under a single device page.
type DeviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

// SensorConfig is the retained discovery payload for one entity.
type SensorConfig struct {
	Name              string     `json:"name"`
	UniqueID          string     `json:"unique_id"`
	ObjectID          string     `json:"object_id,omitempty"`
	StateTopic        string     `json:"state_topic"`
	AvailabilityTopic string     `json:"availability_topic,omitempty"`
	Device            DeviceInfo `json:"device"`
	Icon              string     `json:"icon,omitempty"`
	DeviceClass       string     `json:"device_class,omitempty"`
	UnitOfMeasurement string     `json:"unit_of_measurement,omitempty"`
	StateClass        string     `json:"state_class,omitempty"`
	ValueTemplate     string     `json:"value_template"`
}

// NewDeviceInfo builds the device block for a tank sensor.
func NewDeviceInfo(topics mqtt.Topics, sensorID uint64, version string) DeviceInfo {
	return DeviceInfo{
		Identifiers:  []string{topics.NodeID(sensorID)},
		Name:         "Tank " + strconv.FormatUint(sensorID, 10),
		Manufacturer: "Tank Relay",
		Model:        "HC-12 ultrasonic level sensor",
		SWVersion:    version,
	}
}

// NewSensorConfig builds the discovery descriptor for one quantity of a tank.
func NewSensorConfig(topics mqtt.Topics, sensorID uint64, q Quantity, version string) SensorConfig {
	node := topics.NodeID(sensorID)
	return SensorConfig{
		Name:              fmt.Sprintf("Tank %d %s", sensorID, q.Name),
		UniqueID:          node + "_" + q.Key,
		ObjectID:          node + "_" + q.Key,
		StateTopic:        topics.SensorState(sensorID, q.Key),
		AvailabilityTopic: topics.SensorAvailability(sensorID),
		Device:            NewDeviceInfo(topics, sensorID, version),
		Icon:              q.Icon,
		DeviceClass:       q.DeviceClass,
		UnitOfMeasurement: q.Unit,
		StateClass:        "measurement",
		ValueTemplate:     fmt.Sprintf("{{ value_json.%s }}", q.Key),
	}
}

// StatePayload encodes {"sensor_id":<id>,"<key>":<value>} with sensor_id
// first, matching what the tank dashboards already parse.
func StatePayload(sensorID uint64, key string, value any) ([]byte, error) {
	v, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", key, err)
	}
	k, err := json.Marshal(key)
	if err != nil {
		return nil, fmt.Errorf("encoding key %s: %w", key, err)
	}
	out := make([]byte, 0, 32+len(k)+len(v))
	out = append(out, `{"sensor_id":`...)
	out = strconv.AppendUint(out, sensorID, 10)
	out = append(out, ',')
	out = append(out, k...)
	out = append(out, ':')
	out = append(out, v...)
	out = append(out, '}')
	return out, nil
}

// stateValues returns the published value of each quantity for r.
// The level is recomputed from the distance with the current calibration.
func stateValues(r telemetry.Reading, cal telemetry.Calibration) map[string]any {
	return map[string]any{
		QuantityWaterLevel: telemetry.RoundPercent(cal.Percent(r.DistanceCM)),
		QuantityVCC:        r.VCCRaw,
		QuantityDistance:   r.DistanceCM,
	}
}
