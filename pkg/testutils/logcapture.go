// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Tetragon

package testutils

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

type LogCapturer struct {
	TB  testing.TB
	Log *logrus.Logger
}

func (tl LogCapturer) Write(p []byte) (n int, err error) {
	// Since we are calling T.Log() here, we want to avoid appending multiple "\n", so
	// trim whatever was added by the inner logger.
	s := strings.TrimRight(string(p), "\n")
	tl.TB.Log(s)
	return len(p), nil
}

// CaptureLog redirects the output of l to testing.Log at debug level until
// the end of the test.
func CaptureLog(tb testing.TB, l *logrus.Logger) {
	lc := &LogCapturer{
		TB:  tb,
		Log: l,
	}

	origOut, origLevel := l.Out, l.GetLevel()
	tb.Cleanup(func() {
		l.SetOutput(origOut)
		l.SetLevel(origLevel)
	})

	l.SetOutput(lc)
	l.SetLevel(logrus.DebugLevel)
}
