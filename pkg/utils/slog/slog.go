// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package slog provides utilities for creating and propagating [slog.Logger]
// instances.
package slog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/gardener/tgw-inspection/pkg/core/config"
)

// ErrInvalidLogLevel is an error, which is returned when an invalid log level
// has been configured.
var ErrInvalidLogLevel = errors.New("invalid log level")

// ErrInvalidLogFormat is an error, which is returned when an invalid log format
// has been configured.
var ErrInvalidLogFormat = errors.New("invalid log format")

// LogLevel represents the log level.
type LogLevel string

var (
	// LevelInfo specifies INFO log level.
	LevelInfo LogLevel = "info"
	// LevelWarn specifies WARN log level.
	LevelWarn LogLevel = "warn"
	// LevelError specifies ERROR log level.
	LevelError LogLevel = "error"
	// LevelDebug specifies DEBUG log level.
	LevelDebug LogLevel = "debug"
)

// LogFormat represents the format of log events.
type LogFormat string

var (
	// FormatText specifies text log format.
	FormatText LogFormat = "text"
	// FormatJSON specifies JSON log format.
	FormatJSON LogFormat = "json"
)

// NewFromConfig creates a new [slog.Logger] based on the provided
// [config.LoggingConfig] settings. The returned logger outputs to the given
// [io.Writer].
func NewFromConfig(w io.Writer, conf config.LoggingConfig) (*slog.Logger, error) {
	// Defaults, if we don't have any logging settings
	logLevel := LevelInfo
	logFormat := FormatText

	if conf.Level != "" {
		logLevel = LogLevel(conf.Level)
	}

	if conf.Format != "" {
		logFormat = LogFormat(conf.Format)
	}

	levels := map[LogLevel]slog.Level{
		LevelInfo:  slog.LevelInfo,
		LevelWarn:  slog.LevelWarn,
		LevelError: slog.LevelError,
		LevelDebug: slog.LevelDebug,
	}

	level, ok := levels[logLevel]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidLogLevel, logLevel)
	}

	var handler slog.Handler
	handlerOpts := &slog.HandlerOptions{
		AddSource: conf.AddSource,
		Level:     level,
	}

	switch logFormat {
	case FormatText:
		handler = slog.NewTextHandler(w, handlerOpts)
	case FormatJSON:
		handler = slog.NewJSONHandler(w, handlerOpts)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidLogFormat, logFormat)
	}

	attrs := make([]slog.Attr, 0, len(conf.Attributes))
	for k, v := range conf.Attributes {
		attrs = append(attrs, slog.String(k, v))
	}
	logger := slog.New(handler.WithAttrs(attrs))

	return logger, nil
}

// loggerKey is the key used to store a [slog.Logger] in a [context.Context].
type loggerKey struct{}

// WithLogger returns a copy of ctx, which carries the given logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the [slog.Logger] embedded in the context, or the
// default logger if the context carries none.
func FromContext(ctx context.Context) *slog.Logger {
	logger, ok := ctx.Value(loggerKey{}).(*slog.Logger)
	if !ok || logger == nil {
		return slog.Default()
	}

	return logger
}
