// Package mqtt provides MQTT client connectivity for Tank Relay.
//
// This package manages:
//   - Broker sessions with auto-reconnect after the first connect
//   - Message publishing with QoS and payload validation
//   - Last Will and Testament on a per-session availability topic
//   - Topic builders for Home Assistant discovery and relay status
//
// # Sessions
//
// The relay opens one bridge session for its own status and health, and one
// dedicated session per tank sensor so that each tank's availability follows
// its own Last Will:
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT,
//	    mqtt.WithClientID("tank_water_level_sensor_1"),
//	    mqtt.WithAvailability(mqtt.Topics{}.SensorAvailability(1)),
//	)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.Publish(mqtt.Topics{}.SensorState(1, "distance"), []byte(`{"sensor_id":1,"distance":80}`), 0, false)
//
// # Security Considerations
//
//   - Set cfg.Broker.TLS for brokers outside the local host
//   - Credentials come from config or MQTT_USERNAME / MQTT_PASSWORD
package mqtt
