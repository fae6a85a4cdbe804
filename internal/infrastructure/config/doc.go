// Package config handles loading and validating the playout worker configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (NEBULA_*)
//   - Per-channel defaults (engine, fps, CasparCG ports and layers)
//   - Validation of required fields
//
// A configuration that names an unknown engine, repeats a channel id or
// points a channel at a storage that is not declared fails validation. The
// worker treats that as fatal and exits without retrying.
//
// Usage:
//
//	cfg, err := config.Load("/etc/nebula/playout.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, ch := range cfg.Channels {
//	    fmt.Println(ch.ID, ch.Engine, ch.Caspar.Host)
//	}
package config
