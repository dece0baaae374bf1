// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Tetragon

package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// DefaultLogger is the logger used by the codec and the CLI. Stdout carries
// command output, so it writes to stderr.
var DefaultLogger = newDefaultLogger()

// Options selects the level and format of DefaultLogger.
type Options struct {
	Level  logrus.Level
	Format Format
}

// DefaultOptions logs text at info level.
func DefaultOptions() Options {
	return Options{Level: logrus.InfoLevel, Format: FormatText}
}

func newDefaultLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(formatter(FormatText))
	l.SetLevel(logrus.InfoLevel)
	return l
}

func formatter(format Format) logrus.Formatter {
	if format == FormatJSON {
		return &logrus.JSONFormatter{}
	}
	return &logrus.TextFormatter{DisableColors: true}
}

// ParseOptions validates the configured level and format. Empty values keep
// the defaults.
func ParseOptions(level, format string) (Options, error) {
	o := DefaultOptions()
	if level != "" {
		l, err := logrus.ParseLevel(level)
		if err != nil {
			return o, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		o.Level = l
	}
	if format != "" {
		switch f := Format(strings.ToLower(format)); f {
		case FormatText, FormatJSON:
			o.Format = f
		default:
			return o, fmt.Errorf("invalid log format %q, expected %q or %q", format, FormatText, FormatJSON)
		}
	}
	return o, nil
}

// SetupLogging applies o to DefaultLogger. debug overrides the level.
func SetupLogging(o Options, debug bool) {
	DefaultLogger.SetFormatter(formatter(o.Format))
	if debug {
		DefaultLogger.SetLevel(logrus.DebugLevel)
	} else {
		DefaultLogger.SetLevel(o.Level)
	}

	// keep libraries logging through the logrus default logger quiet
	logrus.SetLevel(logrus.PanicLevel)
}

// SetOutput redirects DefaultLogger.
func SetOutput(w io.Writer) {
	DefaultLogger.SetOutput(w)
}

func GetLogLevel() logrus.Level {
	return DefaultLogger.GetLevel()
}

// GetLogger returns DefaultLogger as a FieldLogger.
func GetLogger() logrus.FieldLogger {
	return DefaultLogger
}
