// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Tetragon

package option

import (
	"debug/elf"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/cilium/tracespec/pkg/defaults"
	"github.com/cilium/tracespec/pkg/fileutils"
	"github.com/cilium/tracespec/pkg/logger"
	"github.com/cilium/tracespec/pkg/strutils"
)

const (
	KeyConfigDir = "config-dir"
	KeyDebug     = "debug"

	KeyLogLevel  = "log-level"
	KeyLogFormat = "log-format"

	KeyByteOrder       = "byte-order"
	KeyOptionTableSize = "option-table-size"
	KeyOptionTableMax  = "option-table-max"
	KeyOutput          = "output"
	KeyOutputPerm      = "output-perm"
	KeyJobs            = "jobs"
	KeyTrace           = "trace"

	KeyTarget   = "target"
	KeyHostname = "hostname"

	KeyMetricsTextfile = "metrics-textfile"
)

func ReadAndSetFlags() error {
	Config.Debug = viper.GetBool(KeyDebug)
	Config.Trace = viper.GetBool(KeyTrace)
	Config.Output = viper.GetString(KeyOutput)
	Config.MatchHostname = viper.GetBool(KeyHostname)
	Config.MetricsTextfile = viper.GetString(KeyMetricsTextfile)

	var err error

	if Config.LogOpts, err = logger.ParseOptions(viper.GetString(KeyLogLevel), viper.GetString(KeyLogFormat)); err != nil {
		return err
	}
	if Config.ByteOrder, err = ParseByteOrder(viper.GetString(KeyByteOrder)); err != nil {
		return fmt.Errorf("failed to parse byte-order value: %w", err)
	}
	// encode-only keys are empty when running other commands
	if v := viper.GetString(KeyOptionTableSize); v != "" {
		if Config.OptionTableSize, err = strutils.ParseSize(v); err != nil {
			return fmt.Errorf("failed to parse option-table-size value: %w", err)
		}
	}
	if v := viper.GetString(KeyOptionTableMax); v != "" {
		if Config.OptionTableMax, err = strutils.ParseSize(v); err != nil {
			return fmt.Errorf("failed to parse option-table-max value: %w", err)
		}
	}
	if Config.OptionTableMax != 0 && Config.OptionTableSize > Config.OptionTableMax {
		return fmt.Errorf("option-table-size %d exceeds option-table-max %d", Config.OptionTableSize, Config.OptionTableMax)
	}

	if v := viper.GetString(KeyOutputPerm); v != "" {
		// RegularFilePerms returns a safe default alongside the error
		perm, err := fileutils.RegularFilePerms(v)
		if err != nil {
			logger.GetLogger().WithError(err).WithField(KeyOutputPerm, v).
				Warnf("Failed to parse output file permissions, using %#o", perm.Perm())
		}
		Config.OutputPerms = perm
	}

	Config.Jobs = viper.GetInt(KeyJobs)
	if Config.Jobs <= 0 {
		Config.Jobs = runtime.GOMAXPROCS(0)
	}

	var targets []string
	if err = viper.UnmarshalKey(KeyTarget, &targets, viper.DecodeHook(stringToSliceHookFunc(","))); err != nil {
		return fmt.Errorf("failed to parse target value: %w", err)
	}
	Config.Targets = targets
	return nil
}

// ParseByteOrder parses the name of a container byte order.
func ParseByteOrder(s string) (elf.Data, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "little", "le", "lsb":
		return elf.ELFDATA2LSB, nil
	case "big", "be", "msb":
		return elf.ELFDATA2MSB, nil
	}
	return elf.ELFDATANONE, fmt.Errorf("unknown byte order %q", s)
}

// stringToSliceHookFunc returns a DecodeHookFunc that converts string to []string
// by splitting on the given sep and removing all leading and trailing white spaces.
// Empty elements are dropped.
func stringToSliceHookFunc(sep string) mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String || t != reflect.SliceOf(f) {
			return data, nil
		}

		outSlice := []string{}
		for _, s := range strings.Split(data.(string), sep) {
			if s = strings.TrimSpace(s); s != "" {
				outSlice = append(outSlice, s)
			}
		}
		return outSlice, nil
	}
}

// ReadDirConfig reads a configuration directory holding one file per
// option. The file name is the option key and its trimmed content the value.
func ReadDirConfig(dirName string) (map[string]any, error) {
	entries, err := os.ReadDir(dirName)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dirName, err)
	}

	m := make(map[string]any, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		path := filepath.Join(dirName, e.Name())
		st, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if !st.Mode().IsRegular() {
			continue
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		m[e.Name()] = strings.TrimSpace(string(b))
	}
	return m, nil
}

// AddFlags adds the global flags to flags.
func AddFlags(flags *pflag.FlagSet) {
	flags.String(KeyConfigDir, "", "Configuration directory that contains a file for each option")
	flags.BoolP(KeyDebug, "d", false, "Enable debug messages. Equivalent to '--log-level=debug'")
	flags.String(KeyLogLevel, "info", "Set log level")
	flags.String(KeyLogFormat, "text", "Set log format")
	flags.String(KeyMetricsTextfile, "", "Write metrics in text exposition format to this file on exit. Disabled by default")
}

// AddEncodeFlags adds the flags of the encode command to flags.
func AddEncodeFlags(flags *pflag.FlagSet) {
	flags.StringP(KeyOutput, "o", filepath.Join(defaults.DefaultSpecDir, defaults.DefaultSpecFile), "Output file. Only valid with a single input")
	flags.String(KeyOutputPerm, defaults.DefaultSpecPermission, "Access permissions on written spec files")
	flags.String(KeyByteOrder, "little", "Byte order of the container (little or big)")
	flags.String(KeyOptionTableSize, defaults.DefaultOptionTableSize, "Initial size of the option table")
	flags.String(KeyOptionTableMax, defaults.DefaultOptionTableMax, "Maximum size of the option table. Pass 0 for no limit")
	flags.IntP(KeyJobs, "j", 0, "Number of programs encoded in parallel. Defaults to GOMAXPROCS")
	flags.Bool(KeyTrace, false, "Log every emitted record")
}

// AddDecodeFlags adds the flags of the decode command to flags.
func AddDecodeFlags(flags *pflag.FlagSet) {
	flags.StringSlice(KeyTarget, nil, "Glob patterns of the targets to keep. Statements without a target are always kept")
	flags.Bool(KeyHostname, false, "Keep the statements targeting the local host name")
	flags.Bool(KeyTrace, false, "Log every read record")
}
