// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Tetragon

package main

import (
	"os"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cilium/tracespec/pkg/defaults"
	"github.com/cilium/tracespec/pkg/logger"
	"github.com/cilium/tracespec/pkg/metrics"
	"github.com/cilium/tracespec/pkg/metrics/metricsconfig"
	"github.com/cilium/tracespec/pkg/option"
)

var metricsOnce sync.Once

func main() {
	if err := New().Execute(); err != nil {
		os.Exit(1)
	}
}

func New() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "tracespec",
		Short:        "Encode, decode and inspect tracing spec containers",
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// cmd.Flags() holds the inherited persistent flags too
			if err := viper.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			if err := readConfigSettings(defaults.DefaultConfDir, defaults.DefaultConfDropIn, defaults.PackageConfDropIns); err != nil {
				return err
			}
			if err := option.ReadAndSetFlags(); err != nil {
				return err
			}

			logger.SetupLogging(option.Config.LogOpts, option.Config.Debug)

			if option.Config.MetricsTextfile != "" {
				metricsOnce.Do(func() {
					metricsconfig.InitAllMetrics(metrics.GetRegistry())
				})
			}
			return nil
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if option.Config.MetricsTextfile == "" {
				return nil
			}
			return metrics.WriteTextfile(metrics.GetRegistry(), option.Config.MetricsTextfile)
		},
	}
	// by default, it fallbacks to stderr
	rootCmd.SetOut(os.Stdout)

	addCommands(rootCmd)
	option.AddFlags(rootCmd.PersistentFlags())
	return rootCmd
}
