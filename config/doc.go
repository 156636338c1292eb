// Package config loads runtime configuration from YAML with sensible
// defaults for every knob. Absent fields keep their defaults, so a partial
// file tuning a single subsystem is valid.
package config
