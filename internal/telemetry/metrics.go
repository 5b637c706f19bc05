package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/rubberband-os/rubberband"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Workflow metrics
	WorkflowRunsTotal metric.Int64Counter
	WorkflowFailures  metric.Int64Counter
	StepDuration      metric.Float64Histogram

	// Cleanup metrics
	OrganizationsDeletedTotal metric.Int64Counter
	OrphanedIdentitiesTotal   metric.Int64Counter

	// Session metrics
	SessionsStartedTotal metric.Int64Counter
	SignInFailuresTotal  metric.Int64Counter

	// Notification metrics
	NotificationErrorsTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.WorkflowRunsTotal, _ = meter.Int64Counter(
		"rubberband.workflow.runs.total",
		metric.WithDescription("Total number of provisioning and deprovisioning runs by outcome"),
		metric.WithUnit("{run}"),
	)

	m.WorkflowFailures, _ = meter.Int64Counter(
		"rubberband.workflow.failures.total",
		metric.WithDescription("Total number of workflow step failures by error type"),
		metric.WithUnit("{failure}"),
	)

	m.StepDuration, _ = meter.Float64Histogram(
		"rubberband.workflow.step.duration",
		metric.WithDescription("Duration of individual workflow steps"),
		metric.WithUnit("ms"),
	)

	m.OrganizationsDeletedTotal, _ = meter.Int64Counter(
		"rubberband.organizations.deleted.total",
		metric.WithDescription("Total number of organizations removed because their last member left"),
		metric.WithUnit("{organization}"),
	)

	// identities that survive a failed deprovision and need an operator
	m.OrphanedIdentitiesTotal, _ = meter.Int64Counter(
		"rubberband.identities.orphaned.total",
		metric.WithDescription("Total number of identities left behind after their data was deleted"),
		metric.WithUnit("{identity}"),
	)

	m.SessionsStartedTotal, _ = meter.Int64Counter(
		"rubberband.sessions.started.total",
		metric.WithDescription("Total number of sessions started"),
		metric.WithUnit("{session}"),
	)

	m.SignInFailuresTotal, _ = meter.Int64Counter(
		"rubberband.signin.failures.total",
		metric.WithDescription("Total number of rejected sign in attempts"),
		metric.WithUnit("{attempt}"),
	)

	m.NotificationErrorsTotal, _ = meter.Int64Counter(
		"rubberband.notifications.errors.total",
		metric.WithDescription("Total number of notifications that could not be delivered"),
		metric.WithUnit("{notification}"),
	)

	return m
}

// RecordStep records the duration and outcome of one workflow step.
func (m *Metrics) RecordStep(ctx context.Context, workflowName, step, outcome string, d time.Duration) {
	m.StepDuration.Record(ctx, float64(d.Microseconds())/1000,
		metric.WithAttributes(
			attribute.String("workflow", workflowName),
			attribute.String("step", step),
			attribute.String("outcome", outcome),
		),
	)
}

// RecordFailure counts a typed step failure.
func (m *Metrics) RecordFailure(ctx context.Context, workflowName, errorType string) {
	m.WorkflowFailures.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("workflow", workflowName),
			attribute.String("error_type", errorType),
		),
	)
}

// RecordRun counts a finished workflow run.
func (m *Metrics) RecordRun(ctx context.Context, workflowName, state string) {
	m.WorkflowRunsTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("workflow", workflowName),
			attribute.String("state", state),
		),
	)
}
