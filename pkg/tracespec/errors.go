// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Tetragon

package tracespec

import (
	"errors"

	"github.com/cilium/tracespec/pkg/growbuf"
)

var (
	// ErrCorrupt is returned when a container violates its structure:
	// unexpected section names, dangling handles, cycles or truncated
	// records.
	ErrCorrupt = errors.New("corrupt container")

	// ErrInvariant is returned when the program graph itself is broken,
	// e.g. an ECB whose action was never emitted.
	ErrInvariant = errors.New("program invariant violated")

	// ErrResource is returned when a table or the container cannot grow
	// any further.
	ErrResource = errors.New("resource exhausted")
)

// errorReason maps an error returned by Encode or Decode to a short label.
func errorReason(err error) string {
	switch {
	case errors.Is(err, ErrCorrupt):
		return "corrupt"
	case errors.Is(err, ErrInvariant):
		return "invariant"
	case errors.Is(err, ErrResource), errors.Is(err, growbuf.ErrOverflow):
		return "resource"
	}
	return "io"
}
