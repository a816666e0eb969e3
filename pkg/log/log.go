// Copyright 2018 Comcast Cable Communications Management, LLC
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log is the leveled, structured logging facade used by every
// package in this module. It wraps zerolog, formats records in ECS layout
// via ecszerolog, and optionally rotates to a file sink via lumberjack.
package log

import (
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"go.elastic.co/ecszerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu      sync.Mutex
	base    = ecszerolog.New(os.Stderr).With().Timestamp().Logger()
	current atomic.Value // stores zerolog.Logger
)

func init() {
	current.Store(base)
}

// Config controls where and at what level the package-level logger writes.
type Config struct {
	Level zerolog.Level

	// FilePath, when non-empty, routes output through a rotating file
	// sink instead of stderr.
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Configure replaces the package-level logger. It is safe to call at
// startup before any consumer or client is constructed; it is not intended
// to be called concurrently with logging calls.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()

	var w io.Writer = os.Stderr
	if cfg.FilePath != "" {
		w = &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    orDefault(cfg.MaxSizeMB, 100),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
			MaxAge:     orDefault(cfg.MaxAgeDays, 28),
		}
	}

	l := ecszerolog.New(w, ecszerolog.Level(cfg.Level)).With().Timestamp().Logger()
	current.Store(l)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func logger() zerolog.Logger {
	return current.Load().(zerolog.Logger)
}

// With returns a child logger carrying the given structured fields, useful
// for tagging every log line emitted by a single consumer or watcher with
// its topic/subscription name.
func With(fields map[string]interface{}) zerolog.Logger {
	ctx := logger().With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return ctx.Logger()
}

// Debugf logs a formatted message at debug level.
func Debugf(format string, args ...interface{}) {
	logger().Debug().Msgf(format, args...)
}

// Infof logs a formatted message at info level.
func Infof(format string, args ...interface{}) {
	logger().Info().Msgf(format, args...)
}

// Warnf logs a formatted message at warn level.
func Warnf(format string, args ...interface{}) {
	logger().Warn().Msgf(format, args...)
}

// Errorf logs a formatted message at error level.
func Errorf(format string, args ...interface{}) {
	logger().Error().Msgf(format, args...)
}
