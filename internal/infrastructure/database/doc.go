// Package database opens the relay's SQLite file and applies schema
// migrations.
//
// The database is optional. It holds the sensor inventory (first and last
// seen, frame counts, registration state) so operators can see which
// transmitters have been heard across restarts. Readings themselves stay in
// memory.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
