package config

import "fmt"

// ConfigurationError reports a required value that is missing or invalid.
// It is fatal for the current operation and never retried.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s %s", e.Key, e.Reason)
}

func missing(key string) error {
	return &ConfigurationError{Key: key, Reason: "is not set"}
}

func invalid(key, reason string) error {
	return &ConfigurationError{Key: key, Reason: reason}
}
