// Package config provides environment-based configuration.
//
// Loads settings from environment variables into a Config struct and
// validates that required fields are present.
package config
