// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Tetragon

package logger

import (
	"github.com/sirupsen/logrus"
)

// DebugLogger logs at debug level, or at info level when tracing is
// enabled. There is no way to have selective information level per
// sub-system, so per-record tracing of the codec goes through this type.
type DebugLogger struct {
	logger       logrus.FieldLogger
	debugEnabled bool
}

func NewDebugLogger(logger logrus.FieldLogger, debugEnabled bool) *DebugLogger {
	return &DebugLogger{
		logger:       logger,
		debugEnabled: debugEnabled,
	}
}

// WithFields returns a DebugLogger that adds fields to every message.
func (d *DebugLogger) WithFields(fields logrus.Fields) *DebugLogger {
	return &DebugLogger{
		logger:       d.logger.WithFields(fields),
		debugEnabled: d.debugEnabled,
	}
}

func (d *DebugLogger) Debug(args ...any) {
	if d.debugEnabled {
		d.logger.Info(args...)
	} else {
		d.logger.Debug(args...)
	}
}

func (d *DebugLogger) Debugf(format string, args ...any) {
	if d.debugEnabled {
		d.logger.Infof(format, args...)
	} else {
		d.logger.Debugf(format, args...)
	}
}
