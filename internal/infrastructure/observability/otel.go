package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/zatekoja/medical-mirrors"

// Metrics holds the pipeline's instruments
type Metrics struct {
	FilesDownloaded    metric.Int64Counter
	BytesDownloaded    metric.Int64Counter
	DownloadFailures   metric.Int64Counter
	RecordsParsed      metric.Int64Counter
	RecordsSkipped     metric.Int64Counter
	ParseFailures      metric.Int64Counter
	ValidationFailures metric.Int64Counter
	RowsUpserted       metric.Int64Counter
	GroupsConsolidated metric.Int64Counter
	SearchDuration     metric.Float64Histogram
	RequestDuration    metric.Float64Histogram
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
	metricsErr  error
)

// Setup initializes OpenTelemetry
func Setup(ctx context.Context, serviceName, serviceVersion, endpoint string) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tracerProvider.Shutdown, nil
}

// InitMetrics initializes pipeline metrics once; later calls return the same set.
func InitMetrics() (*Metrics, error) {
	metricsOnce.Do(func() {
		metrics, metricsErr = newMetrics(otel.Meter(instrumentationName))
	})
	return metrics, metricsErr
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.FilesDownloaded, "mirrors.download.files", "Files downloaded to completion"},
		{&m.BytesDownloaded, "mirrors.download.bytes", "Bytes written by downloads"},
		{&m.DownloadFailures, "mirrors.download.failures", "Failed download attempts"},
		{&m.RecordsParsed, "mirrors.parse.records", "Records produced by parsers"},
		{&m.RecordsSkipped, "mirrors.parse.skipped", "Entries skipped for missing natural keys"},
		{&m.ParseFailures, "mirrors.parse.failures", "Files or chunks that failed to parse"},
		{&m.ValidationFailures, "mirrors.validate.failures", "Records rejected by validation"},
		{&m.RowsUpserted, "mirrors.store.upserts", "Rows written by natural-key upsert"},
		{&m.GroupsConsolidated, "mirrors.consolidate.groups", "Generic-name groups consolidated"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}

	searchDuration, err := meter.Float64Histogram(
		"mirrors.search.duration",
		metric.WithDescription("Full-text search duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	m.SearchDuration = searchDuration

	requestDuration, err := meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	m.RequestDuration = requestDuration

	return m, nil
}

// StartSpan starts a new trace span
func StartSpan(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer(instrumentationName)
	return tracer.Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// RecordError records an error in the current span
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
}

// Add increments a counter with a source/table attribute; nil-safe.
func Add(ctx context.Context, counter metric.Int64Counter, n int64, key, value string) {
	if counter == nil || n == 0 {
		return
	}
	counter.Add(ctx, n, metric.WithAttributes(attribute.String(key, value)))
}

// RecordDuration records a histogram sample in milliseconds; nil-safe.
func RecordDuration(ctx context.Context, hist metric.Float64Histogram, d time.Duration, attrs ...attribute.KeyValue) {
	if hist == nil {
		return
	}
	hist.Record(ctx, float64(d.Milliseconds()), metric.WithAttributes(attrs...))
}
