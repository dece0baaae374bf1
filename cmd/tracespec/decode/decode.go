// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Tetragon

package decode

import (
	"io"
	"path/filepath"
	"slices"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cilium/tracespec/pkg/defaults"
	"github.com/cilium/tracespec/pkg/logger"
	"github.com/cilium/tracespec/pkg/logger/logfields"
	"github.com/cilium/tracespec/pkg/option"
	"github.com/cilium/tracespec/pkg/progspec"
	"github.com/cilium/tracespec/pkg/tracespec"
)

const examples = `  # Decode the default spec file, keeping every statement
  tracespec decode

  # Keep only the statements for this host
  tracespec decode --hostname /var/ddtrace/tracing_spec.elf

  # Keep the statements of all VMs
  tracespec decode --target 'vm*' spec.elf`

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "decode [tracing_spec.elf]",
		Short:   "Decode a tracing spec container and print it as a program description",
		Example: examples,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := filepath.Join(defaults.DefaultSpecDir, defaults.DefaultSpecFile)
			if len(args) == 1 {
				path = args[0]
			}
			res, err := option.Config.Resolver()
			if err != nil {
				return err
			}
			return File(cmd.OutOrStdout(), path, res)
		},
	}
	option.AddDecodeFlags(cmd.Flags())
	return cmd
}

// File decodes the container at path, keeping the statements res accepts,
// and writes the result to w as YAML.
func File(w io.Writer, path string, res tracespec.Resolver) error {
	log := logger.GetLogger().WithField(logfields.File, path)

	p, report, err := tracespec.DecodeFile(path, res, nil,
		tracespec.WithLogger(log),
		tracespec.WithTrace(option.Config.Trace),
	)
	if err != nil {
		return err
	}
	LogReport(log, report)

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	conf, err := progspec.FromProgram(name, p)
	if err != nil {
		return err
	}
	data, err := conf.YAML()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func sorted(s mapset.Set[string]) []string {
	ret := s.ToSlice()
	slices.Sort(ret)
	return ret
}

// LogReport logs what a decode kept and pruned.
func LogReport(log logrus.FieldLogger, r *tracespec.Report) {
	for _, s := range r.Statements {
		log.WithFields(logrus.Fields{
			logfields.Handle: s.Handle,
			logfields.Target: s.Target,
			"accepted":       s.Accepted,
		}).Debug("Resolved statement")
	}
	for _, o := range r.Options {
		log.WithField(logfields.Option, o.Name).Debugf("Applied option %q", o.Arg)
	}
	log.WithFields(logrus.Fields{
		"accepted":        len(r.Accepted()),
		"rejected":        len(r.Rejected()),
		"acceptedTargets": sorted(r.AcceptedTargets),
		"rejectedTargets": sorted(r.RejectedTargets),
		"prunedActions":   r.PrunedActions,
		"resolverFlags":   r.ResolverFlags,
	}).Info("Decoded tracing spec")
}
