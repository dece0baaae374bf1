// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Tetragon

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cilium/tracespec/pkg/logger"
	"github.com/cilium/tracespec/pkg/logger/logfields"
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// GetRegistry returns the process wide registry. Collectors are registered
// on it by metricsconfig.InitAllMetrics.
func GetRegistry() *prometheus.Registry {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
	})
	return registry
}

// WriteTextfile writes the metrics gathered from g to path in the text
// exposition format, for node_exporter's textfile collector.
func WriteTextfile(g prometheus.Gatherer, path string) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return err
	}
	logger.GetLogger().WithField(logfields.File, path).Debug("Wrote metrics textfile")
	return nil
}
