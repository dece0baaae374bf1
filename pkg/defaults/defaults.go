// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Tetragon

package defaults

const (
	// DefaultSpecDir is the default directory holding encoded tracing specs
	DefaultSpecDir = "/var/ddtrace/"

	// DefaultSpecFile is the default name of an encoded tracing spec
	DefaultSpecFile = "tracing_spec.elf"

	// DefaultSpecFileExt is appended to input names when encoding several
	// programs at once
	DefaultSpecFileExt = ".elf"

	// DefaultConfDir is the directory holding tracespec.yaml
	DefaultConfDir = "/etc/tracespec/"

	// DefaultConfDropIn is the drop-in directory with one file per option
	DefaultConfDropIn = DefaultConfDir + "tracespec.conf.d/"

	// DefaultConfFile is the name of the configuration file
	DefaultConfFile = "tracespec.yaml"

	// DefaultSpecPermission is the default access permission of written
	// spec files
	DefaultSpecPermission = "600"

	// DefaultOptionTableSize is the initial size of the encoded option table
	DefaultOptionTableSize = "4K"

	// DefaultOptionTableMax caps the encoded option table
	DefaultOptionTableMax = "1M"
)

// Package managers may ship drop-in configuration directories in these
// locations. They are read before DefaultConfDropIn.
var PackageConfDropIns = []string{
	"/usr/lib/tracespec/tracespec.conf.d/",
	"/usr/local/lib/tracespec/tracespec.conf.d/",
}
