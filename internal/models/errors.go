package models

import (
	"errors"
	"fmt"
)

// Error classes. Wrapped errors keep these reachable through errors.Is.
var (
	// ErrConfig marks invalid call options, detected before any file is read.
	ErrConfig = errors.New("configuration error")
	// ErrNoMatch marks an input that resolved to zero files.
	ErrNoMatch = errors.New("no matching files")
	// ErrDirectory marks an input naming a directory instead of files.
	ErrDirectory = errors.New("path is a directory")
	// ErrFormat marks malformed content in a structured file.
	ErrFormat = errors.New("malformed content")
	// ErrConverter marks a failed or missing external converter.
	ErrConverter = errors.New("converter failed")
)

// ConfigError describes one invalid option.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfig }

// NewConfigError creates a ConfigError for field.
func NewConfigError(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// FileError ties a per-file failure to the file it happened in.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }
