// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Tetragon

package main

import (
	"github.com/spf13/cobra"

	"github.com/cilium/tracespec/cmd/tracespec/decode"
	"github.com/cilium/tracespec/cmd/tracespec/encode"
	"github.com/cilium/tracespec/cmd/tracespec/inspect"
	"github.com/cilium/tracespec/cmd/tracespec/version"
)

func addCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(encode.New())
	rootCmd.AddCommand(decode.New())
	rootCmd.AddCommand(inspect.New())
	rootCmd.AddCommand(version.New())
}
