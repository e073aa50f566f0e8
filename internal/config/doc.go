// Package config defines the application configuration structure and
// loading logic. Settings come from environment variables with the
// DISPATCH_ prefix, optionally layered over a config.yaml file, and are
// validated before use.
package config
