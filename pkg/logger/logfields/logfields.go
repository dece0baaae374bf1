// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Tetragon

package logfields

const (
	// LogSubsys is the field denoting the subsystem when logging
	LogSubsys = "subsys"

	// Error is the Go error
	Error = "error"

	// Handle is a container record handle
	Handle = "handle"

	// Kind is the kind of a container record
	Kind = "kind"

	// Statement is the handle of a statement record
	Statement = "stmt"

	// Target is a probe target name
	Target = "target"

	// Option is an option name
	Option = "option"

	File = "file"

	Size = "size"
)
