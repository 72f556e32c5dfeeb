// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package logging wraps zap into the small structured-logging interface
// used across the campaign engine.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the structured logger surface every component depends on.
// Components take this interface, never *zap.Logger directly, so tests
// can substitute NewTestLogger without touching call sites.
type Logger interface {
	Debugf(template string, args ...interface{})
	Debugw(msg string, keysAndValues ...interface{})
	Infof(template string, args ...interface{})
	Warnf(template string, args ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorf(template string, args ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
	Fatalf(template string, args ...interface{})
	With(keysAndValues ...interface{}) Logger
	Sync() error
}

type zapLogger struct {
	s *zap.SugaredLogger
}

// Options configures NewApplicationLogger.
type Options struct {
	Level      string // debug, info, warn, error
	FilePath   string // empty disables file sink
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// NewApplicationLogger builds the zap-backed logger used by the process.
// With FilePath set it tees to a lumberjack-rotated file alongside stderr.
func NewApplicationLogger(opts Options) (Logger, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		_ = level.Set(opts.Level)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderCfg)

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level),
	}
	if opts.FilePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    firstNonZero(opts.MaxSizeMB, 100),
			MaxBackups: firstNonZero(opts.MaxBackups, 5),
			MaxAge:     firstNonZero(opts.MaxAgeDays, 28),
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(rotator), level))
	}

	core := zapcore.NewTee(cores...)
	base := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	return &zapLogger{s: base.Sugar()}, nil
}

// NewTestLogger returns a Logger suitable for unit tests: no file sink,
// debug level, writes to stderr.
func NewTestLogger() Logger {
	l, _ := NewApplicationLogger(Options{Level: "debug"})
	return l
}

func firstNonZero(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func (l *zapLogger) Debugf(template string, args ...interface{}) { l.s.Debugf(template, args...) }
func (l *zapLogger) Debugw(msg string, kv ...interface{})        { l.s.Debugw(msg, kv...) }
func (l *zapLogger) Infof(template string, args ...interface{})  { l.s.Infof(template, args...) }
func (l *zapLogger) Warnf(template string, args ...interface{})  { l.s.Warnf(template, args...) }
func (l *zapLogger) Warnw(msg string, kv ...interface{})         { l.s.Warnw(msg, kv...) }
func (l *zapLogger) Errorf(template string, args ...interface{}) { l.s.Errorf(template, args...) }
func (l *zapLogger) Errorw(msg string, kv ...interface{})        { l.s.Errorw(msg, kv...) }
func (l *zapLogger) Fatalf(template string, args ...interface{}) { l.s.Fatalf(template, args...) }
func (l *zapLogger) Sync() error                                 { return l.s.Sync() }

func (l *zapLogger) With(kv ...interface{}) Logger {
	return &zapLogger{s: l.s.With(kv...)}
}
