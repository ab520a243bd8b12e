// Copyright 2018 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package seclog is the sentry's process-wide logging facade, wrapping
// logrus so every subsystem logs through one configured sink instead of
// reaching for log.Printf directly.
package seclog

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	root     = logrus.New()
	initOnce sync.Once
)

// Init configures the root logger. json selects the JSON formatter
// (production); otherwise a human-readable text formatter is used. It is
// safe to call Init multiple times; only the first call has effect.
func Init(json bool, level logrus.Level) {
	initOnce.Do(func() {
		root.SetOutput(os.Stderr)
		root.SetLevel(level)
		if json {
			root.SetFormatter(&logrus.JSONFormatter{})
		} else {
			root.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		}
	})
}

// Logger is a per-task logging handle: every entry it emits carries the
// owning task's id as a structured field.
type Logger struct {
	entry *logrus.Entry
}

// ForTask returns a Logger tagging every entry with the given task id.
func ForTask(tid int32) *Logger {
	return &Logger{entry: root.WithField("tid", tid)}
}

// Global returns a Logger with no task affinity, for process-wide events
// (memory file accounting, device registry, dispatch-level panics).
func Global() *Logger {
	return &Logger{entry: logrus.NewEntry(root)}
}

// Debugf logs at debug level.
func (l *Logger) Debugf(format string, args ...any) { l.entry.Debugf(format, args...) }

// Infof logs at info level.
func (l *Logger) Infof(format string, args ...any) { l.entry.Infof(format, args...) }

// Warningf logs at warning level.
func (l *Logger) Warningf(format string, args ...any) { l.entry.Warningf(format, args...) }

// Errorf logs at error level.
func (l *Logger) Errorf(format string, args ...any) { l.entry.Errorf(format, args...) }

// WithField returns a derived Logger with an additional structured field.
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

var global = Global()

// Debugf logs at debug level on the process-wide logger.
func Debugf(format string, args ...any) { global.Debugf(format, args...) }

// Infof logs at info level on the process-wide logger.
func Infof(format string, args ...any) { global.Infof(format, args...) }

// Warningf logs at warning level on the process-wide logger.
func Warningf(format string, args ...any) { global.Warningf(format, args...) }

// Errorf logs at error level on the process-wide logger.
func Errorf(format string, args ...any) { global.Errorf(format, args...) }
