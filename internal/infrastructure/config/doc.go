// Package config handles loading and validating Tank Relay configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Loading an optional .env file for local deployments
//   - Overriding with environment variables
//   - Validation of required fields and tank calibration
//
// Security Considerations:
//   - MQTT credentials should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml", true)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Serial.Device)
package config
