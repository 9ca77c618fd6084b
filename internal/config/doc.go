// Package config loads, normalizes, and validates the TOML configuration
// that drives the encoding and burning pipeline.
package config
