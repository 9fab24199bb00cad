// Copyright 2025 Sylos contributors
// SPDX-License-Identifier: LGPL-2.1-or-later

package nestedset

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// operationsTotal counts engine operations by result
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nestedset_operations_total",
		Help: "Total nested set operations by operation and result",
	}, []string{"op", "result"})

	// operationDuration tracks operation latency including the store transaction
	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "nestedset_operation_duration_seconds",
		Help:    "Nested set operation duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~800ms
	}, []string{"op"})

	// rowsShifted counts rows rewritten by bulk bound and depth updates
	rowsShifted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nestedset_rows_shifted_total",
		Help: "Rows rewritten by bulk bound and depth updates",
	}, []string{"op"})

	// movesVetoed counts moves cancelled by a listener
	movesVetoed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nestedset_moves_vetoed_total",
		Help: "Moves cancelled by a moving listener",
	})
)

var tracer = otel.Tracer("github.com/Project-Sylos/Sylos-NestedSet/pkg/nestedset")

// startOp opens a span for op and returns a finisher that records the
// outcome in both the span and the Prometheus metrics.
func startOp(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "nestedset."+op, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		if err != nil {
			operationsTotal.WithLabelValues(op, "error").Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			operationsTotal.WithLabelValues(op, "ok").Inc()
		}
		span.End()
	}
}
