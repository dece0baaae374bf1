// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Tetragon

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/cilium/tracespec/pkg/defaults"
	"github.com/cilium/tracespec/pkg/logger"
	"github.com/cilium/tracespec/pkg/option"
)

func readConfigFile(path string, file string) error {
	filePath := filepath.Join(path, file)
	st, err := os.Stat(filePath)
	if err != nil {
		return err
	}
	if !st.Mode().IsRegular() {
		return fmt.Errorf("failed to read config file '%s' not a regular file", file)
	}

	viper.AddConfigPath(path)
	return viper.MergeInConfig()
}

func readConfigDir(path string) error {
	st, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !st.IsDir() {
		return fmt.Errorf("'%s' is not a directory", path)
	}

	cm, err := option.ReadDirConfig(path)
	if err != nil {
		return err
	}
	if err := viper.MergeConfigMap(cm); err != nil {
		return fmt.Errorf("merge config failed %w", err)
	}
	return nil
}

// readConfigSettings merges, from lowest to highest priority, the package
// drop-ins, tracespec.yaml in the working directory, the one in
// defaultConfDir, the defaultConfDropIn directory and --config-dir.
// Environment variables and flags override all of them.
func readConfigSettings(defaultConfDir string, defaultConfDropIn string, dropInsDir []string) error {
	log := logger.GetLogger()

	viper.SetEnvPrefix("tracespec")
	replacer := strings.NewReplacer("-", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	viper.SetConfigName(strings.TrimSuffix(defaults.DefaultConfFile, filepath.Ext(defaults.DefaultConfFile)))
	viper.SetConfigType("yaml")

	// missing default locations are fine
	for _, dir := range dropInsDir {
		if err := readConfigDir(dir); err != nil && !os.IsNotExist(err) {
			log.WithError(err).WithField("dir", dir).Warn("Failed to read config drop-in directory")
		}
	}
	for _, dir := range []string{".", defaultConfDir} {
		if err := readConfigFile(dir, defaults.DefaultConfFile); err != nil && !os.IsNotExist(err) {
			log.WithError(err).WithField("dir", dir).Warn("Failed to read config file")
		}
	}
	if err := readConfigDir(defaultConfDropIn); err != nil && !os.IsNotExist(err) {
		log.WithError(err).WithField("dir", defaultConfDropIn).Warn("Failed to read config drop-in directory")
	}

	if viper.IsSet(option.KeyConfigDir) {
		configDir := viper.GetString(option.KeyConfigDir)
		// viper.IsSet could return true on an empty string reset
		if configDir != "" {
			if err := readConfigDir(configDir); err != nil {
				return fmt.Errorf("failed to read config from directory %s: %w", configDir, err)
			}
			log.WithField(option.KeyConfigDir, configDir).Info("Loaded config from directory")
		}
	}
	return nil
}
