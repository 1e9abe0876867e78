package observability

import (
	"context"
	"encoding/binary"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/Abhranil-01/dsport-backend-api/internal/platform/requestctx"
)

const cloudTraceHeader = "X-Cloud-Trace-Context"

// Span attribute keys for the order domain. The enduser keys follow the OpenTelemetry names.
const (
	AttrOrderID     = attribute.Key("dsport.order.id")
	AttrEndUserID   = attribute.Key("enduser.id")
	AttrEndUserRole = attribute.Key("enduser.role")
)

// orderRouteParam is the chi parameter that carries an order id on order and invoice routes.
const orderRouteParam = "orderId"

var tracer = otel.Tracer("github.com/Abhranil-01/dsport-backend-api/internal/platform/observability")

// TraceMiddleware continues a Cloud Trace context when the header is present, starts a server span
// and stores the trace on the request context. Once the router has matched, the span is renamed
// to the route pattern and tagged with the order id from the path.
func TraceMiddleware(projectID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if remote, ok := parseCloudTrace(r.Header.Get(cloudTraceHeader)); ok {
				ctx = trace.ContextWithRemoteSpanContext(ctx, remote)
			}

			ctx, span := tracer.Start(ctx, "HTTP "+SanitizeMethod(r.Method),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(requestAttributes(r)...))
			defer span.End()

			sc := span.SpanContext()
			info := requestctx.TraceInfo{
				TraceID:   sc.TraceID().String(),
				SpanID:    sc.SpanID().String(),
				Sampled:   sc.IsSampled(),
				ProjectID: projectID,
			}
			if header := formatCloudTrace(info); header != "" {
				w.Header().Set(cloudTraceHeader, header)
			}

			r = r.WithContext(requestctx.WithTrace(ctx, info))
			next.ServeHTTP(w, r)

			route := routePattern(r)
			span.SetName(SanitizeMethod(r.Method) + " " + SanitizeRoute(route))
			if orderID := orderIDFromRoute(r); orderID != "" {
				span.SetAttributes(AttrOrderID.String(orderID))
			}
		})
	}
}

// AnnotateIdentity tags the current span with the authenticated caller.
func AnnotateIdentity(ctx context.Context, uid string, admin bool) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	role := "customer"
	if admin {
		role = "admin"
	}
	span.SetAttributes(AttrEndUserID.String(SanitizeUserID(uid)), AttrEndUserRole.String(role))
}

// AnnotateOrder tags the current span with an order id that did not come from the path, such as
// the id of a freshly placed order.
func AnnotateOrder(ctx context.Context, orderID string) {
	if orderID = SanitizeOrderID(orderID); orderID == "" {
		return
	}
	trace.SpanFromContext(ctx).SetAttributes(AttrOrderID.String(orderID))
}

func orderIDFromRoute(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return ""
	}
	return SanitizeOrderID(rctx.URLParam(orderRouteParam))
}

// parseCloudTrace reads "TRACE_ID/SPAN_ID;o=OPTIONS". SPAN_ID is decimal on Google front ends;
// hex ids from other proxies are accepted too.
func parseCloudTrace(header string) (trace.SpanContext, bool) {
	traceHex, rest, found := strings.Cut(strings.TrimSpace(header), "/")
	if !found || len(traceHex) != 32 {
		return trace.SpanContext{}, false
	}
	traceID, err := trace.TraceIDFromHex(traceHex)
	if err != nil {
		return trace.SpanContext{}, false
	}
	spanPart, options, _ := strings.Cut(rest, ";")
	spanID, ok := parseSpanID(strings.TrimSpace(spanPart))
	if !ok {
		return trace.SpanContext{}, false
	}

	var flags trace.TraceFlags
	for _, opt := range strings.Split(options, ";") {
		if strings.TrimSpace(opt) == "o=1" {
			flags = trace.FlagsSampled
		}
	}
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: flags,
		Remote:     true,
	}), true
}

func parseSpanID(value string) (trace.SpanID, bool) {
	if value == "" {
		return trace.SpanID{}, false
	}
	var id trace.SpanID
	if n, err := strconv.ParseUint(value, 10, 64); err == nil {
		binary.BigEndian.PutUint64(id[:], n)
		return id, id.IsValid()
	}
	if len(value) > 16 {
		return trace.SpanID{}, false
	}
	id, err := trace.SpanIDFromHex(strings.Repeat("0", 16-len(value)) + value)
	if err != nil {
		return trace.SpanID{}, false
	}
	return id, id.IsValid()
}

func formatCloudTrace(info requestctx.TraceInfo) string {
	if info.TraceID == "" || info.SpanID == "" {
		return ""
	}
	sampled := 0
	if info.Sampled {
		sampled = 1
	}
	return fmt.Sprintf("%s/%s;o=%d", info.TraceID, info.SpanID, sampled)
}

func requestAttributes(r *http.Request) []attribute.KeyValue {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	attrs := []attribute.KeyValue{
		semconv.HTTPRequestMethodKey.String(SanitizeMethod(r.Method)),
		semconv.URLScheme(scheme),
	}
	if r.URL != nil && r.URL.Path != "" {
		attrs = append(attrs, semconv.URLPath(SanitizeRoute(r.URL.Path)))
	}
	if r.Host != "" {
		attrs = append(attrs, semconv.ServerAddress(sanitizeString(r.Host, hostLimit)))
	}
	if ua := r.UserAgent(); ua != "" {
		attrs = append(attrs, semconv.UserAgentOriginal(sanitizeString(ua, defaultLimit)))
	}
	return attrs
}
