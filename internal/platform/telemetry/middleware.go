package telemetry

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/jsamuelsen/quotevault/internal/platform/telemetry"

// TraceIDHeader carries the request's trace id back to the client.
const TraceIDHeader = "X-Trace-ID"

type httpInstruments struct {
	requestDuration metric.Float64Histogram
	requestTotal    metric.Int64Counter
	activeRequests  metric.Int64UpDownCounter
}

func newHTTPInstruments() (*httpInstruments, error) {
	meter := otel.Meter(instrumentationName)

	requestDuration, err := meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	requestTotal, err := meter.Int64Counter(
		"http.server.request.total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	activeRequests, err := meter.Int64UpDownCounter(
		"http.server.active_requests",
		metric.WithDescription("Number of active HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	return &httpInstruments{
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		activeRequests:  activeRequests,
	}, nil
}

// Middleware records OTel request metrics per route and echoes the trace id
// in TraceIDHeader. Run it after TracingMiddleware so a span exists.
func Middleware() gin.HandlerFunc {
	instruments, err := newHTTPInstruments()
	if err != nil {
		otel.Handle(err)
	}

	return func(c *gin.Context) {
		start := time.Now()
		ctx := c.Request.Context()

		route := attribute.String("http.route", c.FullPath())
		method := attribute.String("http.method", c.Request.Method)

		if instruments != nil {
			instruments.activeRequests.Add(ctx, 1, metric.WithAttributes(method, route))
			defer instruments.activeRequests.Add(ctx, -1, metric.WithAttributes(method, route))
		}

		if span := trace.SpanFromContext(ctx); span.SpanContext().HasTraceID() {
			c.Header(TraceIDHeader, span.SpanContext().TraceID().String())
		}

		c.Next()

		if instruments != nil {
			attrs := metric.WithAttributes(method, route, attribute.Int("http.status_code", c.Writer.Status()))
			instruments.requestDuration.Record(ctx, time.Since(start).Seconds(), attrs)
			instruments.requestTotal.Add(ctx, 1, attrs)
		}
	}
}

// TracingMiddleware starts a server span per request using the global provider.
func TracingMiddleware(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName)
}
