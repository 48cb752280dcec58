// Package panel serves the relay's status page as an embedded asset.
//
// The page polls /api/v1/sensors and shows the latest water level, distance
// and supply value for every tank, falling back to the single-reading
// /data endpoint when the API list is unavailable.
package panel
