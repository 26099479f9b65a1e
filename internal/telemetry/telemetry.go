// Package telemetry records traces and metrics for analysis runs, the
// scheduler and protocol requests.
//
// Spans and OpenTelemetry instruments go through the global providers, which
// are no-ops unless the process installs real ones. Scheduler counters are
// Prometheus collectors registered with the default registry and exposed by
// Handler.
package telemetry

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentation = "github.com/jward/soarls"

var (
	tracer = otel.Tracer(instrumentation)
	meter  = otel.Meter(instrumentation)
)

var (
	submitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "soarls",
		Subsystem: "scheduler",
		Name:      "submits_total",
		Help:      "Analysis submissions, by whether they replaced a pending one.",
	}, []string{"coalesced"})

	runsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "soarls",
		Subsystem: "scheduler",
		Name:      "runs_total",
		Help:      "Completed analysis runs.",
	})

	runSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "soarls",
		Subsystem: "scheduler",
		Name:      "run_duration_seconds",
		Help:      "Wall time of analysis runs.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
	})
)

var (
	analysisDuration metric.Float64Histogram
	analysedFiles    metric.Int64Histogram
	diagnosticsTotal metric.Int64Counter
	requestDuration  metric.Float64Histogram
	requestTotal     metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error
		if analysisDuration, err = meter.Float64Histogram("soarls_analysis_duration_seconds",
			metric.WithDescription("Duration of project analysis runs"),
			metric.WithUnit("s")); err != nil {
			metricsErr = err
			return
		}
		if analysedFiles, err = meter.Int64Histogram("soarls_analysis_files",
			metric.WithDescription("Files reached by an analysis run")); err != nil {
			metricsErr = err
			return
		}
		if diagnosticsTotal, err = meter.Int64Counter("soarls_diagnostics_total",
			metric.WithDescription("Diagnostics produced by analysis runs")); err != nil {
			metricsErr = err
			return
		}
		if requestDuration, err = meter.Float64Histogram("soarls_request_duration_seconds",
			metric.WithDescription("Duration of protocol requests"),
			metric.WithUnit("s")); err != nil {
			metricsErr = err
			return
		}
		if requestTotal, err = meter.Int64Counter("soarls_request_total",
			metric.WithDescription("Protocol requests handled")); err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// StartRun opens the span of one analysis run.
func StartRun(ctx context.Context, entry string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Analysis.Run", trace.WithAttributes(attribute.String("soarls.entry_point", entry)))
}

// EndRun records the outcome of a run and ends its span.
func EndRun(ctx context.Context, span trace.Span, files, diagnostics int, elapsed time.Duration) {
	span.SetAttributes(
		attribute.Int("soarls.files", files),
		attribute.Int("soarls.diagnostics", diagnostics),
	)
	span.End()
	if err := initMetrics(); err != nil {
		return
	}
	analysisDuration.Record(ctx, elapsed.Seconds())
	analysedFiles.Record(ctx, int64(files))
	diagnosticsTotal.Add(ctx, int64(diagnostics))
}

// StartRequest opens the span of one protocol request.
func StartRequest(ctx context.Context, method string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "LSP."+method, trace.WithAttributes(attribute.String("lsp.method", method)))
}

// EndRequest records the outcome of a request and ends its span.
func EndRequest(ctx context.Context, span trace.Span, method string, elapsed time.Duration, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	if mErr := initMetrics(); mErr != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.Bool("success", err == nil),
	)
	requestDuration.Record(ctx, elapsed.Seconds(), attrs)
	requestTotal.Add(ctx, 1, attrs)
}

// SchedulerObserver feeds scheduler activity into the Prometheus
// collectors.
type SchedulerObserver struct{}

// Submitted counts a submission.
func (SchedulerObserver) Submitted(_ string, coalesced bool) {
	submitsTotal.WithLabelValues(strconv.FormatBool(coalesced)).Inc()
}

// Completed counts a finished run.
func (SchedulerObserver) Completed(_ string, elapsed time.Duration) {
	runsTotal.Inc()
	runSeconds.Observe(elapsed.Seconds())
}

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
