// Package api implements the relay's HTTP status server.
//
// Routes:
//
//	GET /                     status page (internal/panel)
//	GET /data[?sensor_id=N]   latest reading, legacy single-sensor shape
//	GET /api/v1/health        MQTT and serial connectivity
//	GET /api/v1/sensors       every live reading, ordered by id
//	GET /api/v1/sensors/{id}  one live reading
//	GET /api/v1/inventory     persistent sensor inventory (database enabled)
//	GET /metrics              Prometheus exposition (metrics enabled)
//	GET /ws                   WebSocket feed of published readings
//
// The server is read-only: it never writes to the reading store or the
// broker. All routes pass through request ID, logging and panic recovery
// middleware.
//
// The server follows the same lifecycle pattern as other components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
