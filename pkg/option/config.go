// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Tetragon

package option

import (
	"debug/elf"
	"os"

	"github.com/cilium/tracespec/pkg/logger"
)

// Config contains all the configuration used by tracespec.
var Config = config{
	// Initialize global defaults below.

	ByteOrder: elf.ELFDATA2LSB,

	LogOpts: logger.DefaultOptions(),
}

type config struct {
	Debug bool

	// encoding
	ByteOrder       elf.Data
	OptionTableSize int
	OptionTableMax  int
	Output          string
	OutputPerms     os.FileMode
	Jobs            int
	Trace           bool

	// decoding
	Targets       []string
	MatchHostname bool

	MetricsTextfile string

	LogOpts logger.Options
}
