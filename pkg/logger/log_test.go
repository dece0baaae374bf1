// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Tetragon

package logger

import (
	"bytes"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restoreDefaultLogger(t *testing.T) {
	level := GetLogLevel()
	formatter := DefaultLogger.Formatter
	t.Cleanup(func() {
		DefaultLogger.SetLevel(level)
		DefaultLogger.SetFormatter(formatter)
		SetOutput(os.Stderr)
	})
}

func TestParseOptions(t *testing.T) {
	o, err := ParseOptions("warning", "JSON")
	require.NoError(t, err)
	assert.Equal(t, Options{Level: logrus.WarnLevel, Format: FormatJSON}, o)

	o, err = ParseOptions("", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultOptions(), o)

	_, err = ParseOptions("loud", "")
	require.Error(t, err)
	_, err = ParseOptions("", "xml")
	require.Error(t, err)
}

func TestSetupLogging(t *testing.T) {
	restoreDefaultLogger(t)

	o, err := ParseOptions("warning", "json")
	require.NoError(t, err)
	SetupLogging(o, false)
	assert.Equal(t, logrus.WarnLevel, GetLogLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, DefaultLogger.Formatter)

	var buf bytes.Buffer
	SetOutput(&buf)
	GetLogger().Info("hidden")
	GetLogger().WithField("handle", 2).Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"handle":2`)

	// debug overrides the level
	SetupLogging(o, true)
	assert.Equal(t, logrus.DebugLevel, GetLogLevel())
}

func TestDebugLogger(t *testing.T) {
	l := logrus.New()
	var buf bytes.Buffer
	l.SetOutput(&buf)
	l.SetLevel(logrus.InfoLevel)

	NewDebugLogger(l, false).Debugf("quiet %d", 1)
	assert.Empty(t, buf.String())

	NewDebugLogger(l, true).WithFields(logrus.Fields{"kind": "stmt"}).Debug("traced")
	assert.Contains(t, buf.String(), "traced")
	assert.Contains(t, buf.String(), "kind=stmt")
}
