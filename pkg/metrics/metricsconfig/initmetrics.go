// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Tetragon

package metricsconfig

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/cilium/tracespec/pkg/metrics/tracespecmetrics"
	"github.com/cilium/tracespec/pkg/version"
)

func InitAllMetrics(registry *prometheus.Registry) {
	tracespecmetrics.InitMetrics(registry)

	registry.MustRegister(version.NewBuildInfoCollector())

	// register common third-party collectors
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}
