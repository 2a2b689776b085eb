// Package config handles loading and validating the fireplace bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields and value ranges
//   - Default value handling
//
// Security Considerations:
//   - Broker and device passwords should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Configuration is loaded once at startup; the rest of the bridge treats it
// as an immutable, already-validated value.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Device.ID)
package config
