package config

import (
	"context"
	"fmt"
)

// Watcher enables live configuration updates
type Watcher interface {
	// Watch starts watching the configuration file for changes.
	// The callback receives every valid reloaded configuration.
	Watch(ctx context.Context, callback func(*Config)) error
}

// Option defines a configuration option that can be passed to NewLoader
type Option func(*options) error

type options struct {
	configPath string
	envPrefix  string
}

// WithConfigFile specifies an explicit configuration file path
func WithConfigFile(path string) Option {
	return func(o *options) error {
		o.configPath = path
		return nil
	}
}

// WithEnvPrefix specifies a custom environment variable prefix
// Default is "DECKFANCTL"
func WithEnvPrefix(prefix string) Option {
	return func(o *options) error {
		o.envPrefix = prefix
		return nil
	}
}

// LogLevel represents valid logging levels
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// IsValid returns whether the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
		return true
	default:
		return false
	}
}

func (l LogLevel) String() string {
	return string(l)
}

// ValidationError represents a configuration validation error
type ValidationError interface {
	error
	// Field returns the name of the invalid field
	Field() string
	// Value returns the invalid value
	Value() any
	// Reason returns why the value is invalid
	Reason() string
}

type fieldError struct {
	field  string
	value  any
	reason string
}

func (e *fieldError) Error() string {
	return fmt.Sprintf("%s = %v: %s", e.field, e.value, e.reason)
}

func (e *fieldError) Field() string  { return e.field }
func (e *fieldError) Value() any     { return e.value }
func (e *fieldError) Reason() string { return e.reason }
