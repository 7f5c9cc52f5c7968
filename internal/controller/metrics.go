package controller

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/remedyd/internal/controller"

// loopMetrics holds the controller's OpenTelemetry counters.
type loopMetrics struct {
	cycles    metric.Int64Counter
	issues    metric.Int64Counter
	fixes     metric.Int64Counter
	publishes metric.Int64Counter
}

// newLoopMetrics initializes the counters. Creation failures are logged and
// leave the counter nil; recording functions tolerate that.
func newLoopMetrics(logger *zap.Logger) *loopMetrics {
	meter := otel.Meter(instrumentationName)
	m := &loopMetrics{}
	var err error

	m.cycles, err = meter.Int64Counter(
		"remedyd.controller.cycles_total",
		metric.WithDescription("Total number of poll cycles"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		logger.Warn("failed to create cycle counter", zap.Error(err))
	}

	m.issues, err = meter.Int64Counter(
		"remedyd.controller.issues_total",
		metric.WithDescription("Total number of classified issues"),
		metric.WithUnit("{issue}"),
	)
	if err != nil {
		logger.Warn("failed to create issue counter", zap.Error(err))
	}

	m.fixes, err = meter.Int64Counter(
		"remedyd.controller.fixes_applied_total",
		metric.WithDescription("Total number of fixes that changed the working tree"),
		metric.WithUnit("{fix}"),
	)
	if err != nil {
		logger.Warn("failed to create fix counter", zap.Error(err))
	}

	m.publishes, err = meter.Int64Counter(
		"remedyd.controller.publishes_total",
		metric.WithDescription("Total number of publish attempts"),
		metric.WithUnit("{publish}"),
	)
	if err != nil {
		logger.Warn("failed to create publish counter", zap.Error(err))
	}

	return m
}

func (m *loopMetrics) recordCycle(ctx context.Context) {
	if m.cycles != nil {
		m.cycles.Add(ctx, 1)
	}
}

func (m *loopMetrics) recordIssue(ctx context.Context, issueType string) {
	if m.issues != nil {
		m.issues.Add(ctx, 1, metric.WithAttributes(attribute.String("issue_type", issueType)))
	}
}

func (m *loopMetrics) recordFix(ctx context.Context, issueType string) {
	if m.fixes != nil {
		m.fixes.Add(ctx, 1, metric.WithAttributes(attribute.String("issue_type", issueType)))
	}
}

func (m *loopMetrics) recordPublish(ctx context.Context, result string) {
	if m.publishes != nil {
		m.publishes.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	}
}
