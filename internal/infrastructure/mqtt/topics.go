package mqtt

import (
	"fmt"
	"strconv"
)

// Topic defaults.
const (
	DefaultDiscoveryPrefix = "homeassistant"
	DefaultNodePrefix      = "tank_"

	// TopicPrefixRelay is the base for the relay's own topics.
	TopicPrefixRelay = "tankrelay"

	// ComponentSensor is the Home Assistant component for every tank entity.
	ComponentSensor = "sensor"
)

// Topics builds the topics for tank sensors and the relay itself.
// The zero value uses the default prefixes.
//
//	topics := mqtt.Topics{}
//	topics.SensorState(1, "distance")
//	// Returns: "homeassistant/sensor/tank_1/distance/state"
type Topics struct {
	DiscoveryPrefix string
	NodePrefix      string
	SiteID          string
}

func (t Topics) discoveryPrefix() string {
	if t.DiscoveryPrefix == "" {
		return DefaultDiscoveryPrefix
	}
	return t.DiscoveryPrefix
}

func (t Topics) nodePrefix() string {
	if t.NodePrefix == "" {
		return DefaultNodePrefix
	}
	return t.NodePrefix
}

// NodeID returns the Home Assistant node id for a sensor.
//
// Example: tank_1
func (t Topics) NodeID(sensorID uint64) string {
	return t.nodePrefix() + strconv.FormatUint(sensorID, 10)
}

// SensorBase returns the topic root shared by all entities of a sensor.
//
// Example: homeassistant/sensor/tank_1
func (t Topics) SensorBase(sensorID uint64) string {
	return fmt.Sprintf("%s/%s/%s", t.discoveryPrefix(), ComponentSensor, t.NodeID(sensorID))
}

// SensorConfig returns the discovery descriptor topic for one quantity.
//
// Example: homeassistant/sensor/tank_1/water_level_percent/config
func (t Topics) SensorConfig(sensorID uint64, quantity string) string {
	return fmt.Sprintf("%s/%s/config", t.SensorBase(sensorID), quantity)
}

// SensorState returns the state topic for one quantity.
//
// Example: homeassistant/sensor/tank_1/vcc/state
func (t Topics) SensorState(sensorID uint64, quantity string) string {
	return fmt.Sprintf("%s/%s/state", t.SensorBase(sensorID), quantity)
}

// SensorAvailability returns the availability topic for a sensor's session.
//
// Example: homeassistant/sensor/tank_1/availability
func (t Topics) SensorAvailability(sensorID uint64) string {
	return t.SensorBase(sensorID) + "/availability"
}

// BridgeStatus returns the relay's retained online/offline topic.
//
// Example: tankrelay/garden/status
func (t Topics) BridgeStatus() string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixRelay, t.SiteID)
}

// BridgeHealth returns the relay's retained health report topic.
//
// Example: tankrelay/garden/health
func (t Topics) BridgeHealth() string {
	return fmt.Sprintf("%s/%s/health", TopicPrefixRelay, t.SiteID)
}
