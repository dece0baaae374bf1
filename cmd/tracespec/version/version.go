// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Tetragon

package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cilium/tracespec/pkg/version"
)

var build bool

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "CLI version: %s\n", version.Version)
			if build {
				version.ReadBuildInfo().Print(cmd.OutOrStdout())
			}
		},
	}
	cmd.Flags().BoolVarP(&build, "build", "b", false, "Show CLI build information")
	return cmd
}
