// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Namespace is the namespace component of the fully qualified metric name
const Namespace = "tgw_inspection"

// DefaultRegistry is the default [prometheus.Registry] for metrics.
var DefaultRegistry = prometheus.NewPedanticRegistry()

var (
	// InvocationsTotal is a metric, which gets incremented each time a
	// handler has completed an invocation.
	InvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "invocations_total",
			Help:      "Total number of handler invocations partitioned by outcome",
		},
		[]string{"handler", "outcome"},
	)

	// InvocationDurationSeconds is a metric, which tracks the duration of
	// handler invocations.
	InvocationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "invocation_duration_seconds",
			Help:      "Duration of handler invocations in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"handler"},
	)

	// CallbackFailuresTotal is a metric, which gets incremented each time
	// a custom resource response could not be delivered.
	CallbackFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "callback_failures_total",
			Help:      "Total number of custom resource responses which failed to be delivered",
		},
	)
)

// Outcome labels used with [InvocationsTotal].
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"

	// OutcomeReportedFailure is the outcome of custom resource
	// invocations, which completed by reporting FAILED to CloudFormation.
	OutcomeReportedFailure = "reported_failure"
)

// OutcomeOf returns the outcome of an invocation, which returned the given
// error.
func OutcomeOf(err error) string {
	if err != nil {
		return OutcomeFailed
	}

	return OutcomeSuccess
}

// ObserveInvocation records a completed invocation of the given handler.
func ObserveInvocation(handler, outcome string, elapsed time.Duration) {
	InvocationsTotal.WithLabelValues(handler, outcome).Inc()
	InvocationDurationSeconds.WithLabelValues(handler).Observe(elapsed.Seconds())
}

// Push pushes the metrics from [DefaultRegistry] to the Pushgateway at the
// given URL. Short-lived functions are not scraped, so they have to push
// their metrics before being frozen.
func Push(ctx context.Context, url, job string) error {
	return push.New(url, job).
		Gatherer(DefaultRegistry).
		PushContext(ctx)
}

// init registers collectors with the [DefaultRegistry].
func init() {
	DefaultRegistry.MustRegister(
		InvocationsTotal,
		InvocationDurationSeconds,
		CallbackFailuresTotal,

		// Standard Go metrics
		collectors.NewGoCollector(),
	)
}
