// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Tetragon

package encode

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cilium/tracespec/pkg/defaults"
	"github.com/cilium/tracespec/pkg/fileutils"
	"github.com/cilium/tracespec/pkg/logger"
	"github.com/cilium/tracespec/pkg/logger/logfields"
	"github.com/cilium/tracespec/pkg/option"
	"github.com/cilium/tracespec/pkg/progspec"
	"github.com/cilium/tracespec/pkg/strutils"
	"github.com/cilium/tracespec/pkg/tracespec"
)

const examples = `  # Encode a program description into the default spec file
  tracespec encode program.yaml

  # Encode several programs in parallel, writing a.elf and b.elf
  tracespec encode -j 4 a.yaml b.yaml

  # Encode for a big endian consumer
  tracespec encode --byte-order=big -o /tmp/spec.elf program.yaml`

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "encode <program.yaml>...",
		Short:   "Encode program descriptions into tracing spec containers",
		Example: examples,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 1 && cmd.Flags().Changed(option.KeyOutput) {
				return fmt.Errorf("--%s needs a single input, got %d", option.KeyOutput, len(args))
			}
			return Files(cmd.Context(), args)
		},
	}
	option.AddEncodeFlags(cmd.Flags())
	return cmd
}

// OutputPath returns where the container encoded from in is written when n
// programs are encoded at once.
func OutputPath(in string, n int) string {
	if n == 1 && option.Config.Output != "" {
		return option.Config.Output
	}
	return strings.TrimSuffix(in, filepath.Ext(in)) + defaults.DefaultSpecFileExt
}

// Files encodes every input, at most option.Config.Jobs at a time. The
// first failure cancels the inputs not started yet.
func Files(ctx context.Context, inputs []string) error {
	g, ctx := errgroup.WithContext(ctx)
	if option.Config.Jobs > 0 {
		g.SetLimit(option.Config.Jobs)
	}
	for _, in := range inputs {
		in := in
		out := OutputPath(in, len(inputs))
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return File(in, out)
		})
	}
	return g.Wait()
}

// File encodes the program described in in and writes it to out.
func File(in, out string) error {
	log := logger.GetLogger().WithField(logfields.File, in)

	conf, err := progspec.ProgramFromYAMLFilename(in)
	if err != nil {
		return err
	}
	p, err := conf.Program()
	if err != nil {
		return fmt.Errorf("%s: %w", in, err)
	}

	b, err := tracespec.Encode(p,
		tracespec.WithLogger(log),
		tracespec.WithByteOrder(option.Config.ByteOrder),
		tracespec.WithOptionTableSize(option.Config.OptionTableSize, option.Config.OptionTableMax),
		tracespec.WithTrace(option.Config.Trace),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", in, err)
	}

	perm := option.Config.OutputPerms
	if perm == 0 {
		perm, _ = fileutils.RegularFilePerms(defaults.DefaultSpecPermission)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	if err := fileutils.WriteFileAtomic(out, b, perm); err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"output":       out,
		"program":      conf.Metadata.Name,
		"statements":   len(p.Statements),
		logfields.Size: strutils.SizeWithSuffix(len(b)),
	}).Info("Encoded program")
	return nil
}
