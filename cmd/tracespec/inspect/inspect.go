// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Tetragon

package inspect

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cilium/tracespec/pkg/defaults"
	"github.com/cilium/tracespec/pkg/strutils"
	"github.com/cilium/tracespec/pkg/tracespec"
)

const examples = `  # List the sections and the statement chain of a container
  tracespec inspect spec.elf

  # Pipe uncolored output
  tracespec inspect --color=never spec.elf | less`

func New() *cobra.Command {
	var colorMode string

	cmd := &cobra.Command{
		Use:     "inspect [tracing_spec.elf]",
		Short:   "Print the structure of a tracing spec container",
		Example: examples,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := ParseColorMode(colorMode)
			if err != nil {
				return err
			}
			path := filepath.Join(defaults.DefaultSpecDir, defaults.DefaultSpecFile)
			if len(args) == 1 {
				path = args[0]
			}

			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			s, err := tracespec.Inspect(f)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			return Print(cmd.OutOrStdout(), s, mode)
		},
	}
	cmd.Flags().StringVar(&colorMode, "color", string(Auto), "Colorize output (always, never or auto)")
	return cmd
}

// Print writes a human readable form of s to w.
func Print(w io.Writer, s *tracespec.Summary, mode ColorMode) error {
	c := newColorer(mode)

	c.header.Fprintln(w, "Container")
	fmt.Fprintf(w, "  byte order:      %s\n", s.ByteOrder)
	fmt.Fprintf(w, "  DOF version:     %d\n", s.Root.DOFVersion)
	fmt.Fprintf(w, "  resolver flags:  %#x\n", s.Root.ResolverFlags)
	fmt.Fprintf(w, "  option table:    %d\n", s.Root.Options)
	fmt.Fprintf(w, "  statements:      %d %v\n", len(s.Statements), s.Statements)
	fmt.Fprintln(w)

	c.header.Fprintln(w, "Sections")
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "  IDX\tNAME\tTYPE\tSIZE")
	for _, sec := range s.Sections {
		name := c.other.Sprint(sec.Name)
		if sec.Record {
			name = c.record.Sprint(sec.Name)
		}
		fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\n", sec.Index, name, sec.Type, strutils.SizeWithSuffix(int(sec.Size)))
	}
	return tw.Flush()
}
