// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Tetragon

package tracespecmetrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cilium/tracespec/pkg/metrics/consts"
)

const (
	OpEncode = "encode"
	OpDecode = "decode"

	ResultAccepted = "accepted"
	ResultRejected = "rejected"
)

var (
	ContainersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   consts.MetricsNamespace,
		Name:        "containers_total",
		Help:        "The total number of containers encoded or decoded.",
		ConstLabels: nil,
	}, []string{"op"})

	ErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   consts.MetricsNamespace,
		Name:        "errors_total",
		Help:        "The total number of failed encodes and decodes, by reason.",
		ConstLabels: nil,
	}, []string{"op", "reason"})

	StatementsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   consts.MetricsNamespace,
		Name:        "statements_total",
		Help:        "The total number of decoded statements, by resolver result.",
		ConstLabels: nil,
	}, []string{"result"})

	ActionsPrunedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   consts.MetricsNamespace,
		Name:        "actions_pruned_total",
		Help:        "The total number of actions removed with rejected statements.",
		ConstLabels: nil,
	})

	OptionTableGrowsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   consts.MetricsNamespace,
		Name:        "option_table_grows_total",
		Help:        "The total number of option table reallocations while encoding.",
		ConstLabels: nil,
	})

	ContainerSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   consts.MetricsNamespace,
		Name:        "container_size_bytes",
		Help:        "The size of encoded containers.",
		Buckets:     prometheus.ExponentialBuckets(512, 4, 10),
		ConstLabels: nil,
	})
)

func InitMetrics(registry *prometheus.Registry) {
	registry.MustRegister(ContainersTotal)
	registry.MustRegister(ErrorsTotal)
	registry.MustRegister(StatementsTotal)
	registry.MustRegister(ActionsPrunedTotal)
	registry.MustRegister(OptionTableGrowsTotal)
	registry.MustRegister(ContainerSize)

	// Initialize metrics with labels
	for _, op := range []string{OpEncode, OpDecode} {
		ContainersTotal.WithLabelValues(op).Add(0)
	}
	for _, res := range []string{ResultAccepted, ResultRejected} {
		StatementsTotal.WithLabelValues(res).Add(0)
	}
}
