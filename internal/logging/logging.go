// Package logging provides the structured logging setup shared by every
// package in the agent: a logrus logger configured from LoggerConfig, and
// a ContextLogger that accumulates fields across a cycle or stage.
package logging

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// LoggerConfig controls the base logrus.Logger construction.
type LoggerConfig struct {
	Level     string // debug, info, warn, error
	Format    string // json, text
	Service   string
	Version   string
	AddCaller bool
	Output    io.Writer
}

// DefaultLoggerConfig returns sane defaults for local development.
func DefaultLoggerConfig() LoggerConfig {
	return LoggerConfig{
		Level:   "info",
		Format:  "text",
		Service: "riverwatch-agent",
		Output:  os.Stdout,
	}
}

// NewLogger builds a *logrus.Logger from the given config.
func NewLogger(cfg LoggerConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	logger.SetReportCaller(cfg.AddCaller)

	if cfg.Output != nil {
		logger.SetOutput(cfg.Output)
	}

	return logger
}

// ContextLogger wraps a *logrus.Logger plus a fixed set of fields,
// analogous to a child logger scoped to one cycle or stage.
type ContextLogger struct {
	logger *logrus.Logger
	fields logrus.Fields
}

// NewContextLogger wraps logger with the service identity fields.
func NewContextLogger(logger *logrus.Logger, service, version string) *ContextLogger {
	return &ContextLogger{
		logger: logger,
		fields: logrus.Fields{"service": service, "version": version},
	}
}

// WithField returns a derived ContextLogger carrying an additional field.
func (c *ContextLogger) WithField(key string, value interface{}) *ContextLogger {
	fields := make(logrus.Fields, len(c.fields)+1)
	for k, v := range c.fields {
		fields[k] = v
	}
	fields[key] = value
	return &ContextLogger{logger: c.logger, fields: fields}
}

// WithFields returns a derived ContextLogger carrying additional fields.
func (c *ContextLogger) WithFields(fields map[string]interface{}) *ContextLogger {
	merged := make(logrus.Fields, len(c.fields)+len(fields))
	for k, v := range c.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &ContextLogger{logger: c.logger, fields: merged}
}

// WithError returns a derived ContextLogger carrying the error field.
func (c *ContextLogger) WithError(err error) *ContextLogger {
	return c.WithField("error", err)
}

type requestIDKey struct{}

// WithContext extracts a run_id from ctx (if set via ContextWithRunID) and
// attaches it as a field.
func (c *ContextLogger) WithContext(ctx context.Context) *ContextLogger {
	if runID, ok := ctx.Value(requestIDKey{}).(string); ok && runID != "" {
		return c.WithField("run_id", runID)
	}
	return c
}

// ContextWithRunID attaches a run_id to ctx for later extraction by
// WithContext.
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, runID)
}

func (c *ContextLogger) entry() *logrus.Entry {
	return c.logger.WithFields(c.fields)
}

func (c *ContextLogger) Debug(args ...interface{}) { c.entry().Debug(args...) }
func (c *ContextLogger) Debugf(format string, args ...interface{}) { c.entry().Debugf(format, args...) }
func (c *ContextLogger) Info(args ...interface{})  { c.entry().Info(args...) }
func (c *ContextLogger) Infof(format string, args ...interface{})  { c.entry().Infof(format, args...) }
func (c *ContextLogger) Warn(args ...interface{})  { c.entry().Warn(args...) }
func (c *ContextLogger) Warnf(format string, args ...interface{})  { c.entry().Warnf(format, args...) }
func (c *ContextLogger) Error(args ...interface{}) { c.entry().Error(args...) }
func (c *ContextLogger) Errorf(format string, args ...interface{}) { c.entry().Errorf(format, args...) }
