// Package httpmiddleware contains the net/http middleware chain of the API
// server.
package httpmiddleware

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Middleware wraps a handler.
type Middleware func(http.Handler) http.Handler

// Wrap applies middlewares to h. The first middleware is the outermost one.
func Wrap(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// RouteFinder returns the route pattern matching r, or "" when no route
// matches.
type RouteFinder func(r *http.Request) string

// MakeRouteFinder creates a RouteFinder that looks patterns up in routes
// without serving the request.
func MakeRouteFinder(routes chi.Routes) RouteFinder {
	return func(r *http.Request) string {
		rctx := chi.NewRouteContext()
		if !routes.Match(rctx, r.Method, r.URL.Path) {
			return ""
		}
		return rctx.RoutePattern()
	}
}

func routeName(find RouteFinder, r *http.Request) string {
	if find == nil {
		return r.Method
	}
	if p := find(r); p != "" {
		return r.Method + " " + p
	}
	return r.Method + " unmatched"
}

// InjectLogger puts lg into the request context, tagged with the request id
// when RequestID ran before it.
func InjectLogger(lg *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqLg := lg
			if id := RequestIDFromContext(r.Context()); id != "" {
				reqLg = lg.With(zap.String("request_id", id))
			}
			ctx := zctx.Base(r.Context(), reqLg)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LogRequests logs every finished request with its route and status.
func LogRequests(find RouteFinder) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			lg := zctx.From(r.Context())
			fields := []zap.Field{
				zap.String("route", routeName(find, r)),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			}
			switch {
			case status >= http.StatusInternalServerError:
				lg.Warn("Request failed", fields...)
			default:
				lg.Debug("Request", fields...)
			}
		})
	}
}

// Instrument traces and measures requests. Spans are named after the route
// pattern so path parameters do not explode cardinality.
func Instrument(service string, find RouteFinder, mp metric.MeterProvider, tp trace.TracerProvider) Middleware {
	opts := []otelhttp.Option{
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return routeName(find, r)
		}),
	}
	if mp != nil {
		opts = append(opts, otelhttp.WithMeterProvider(mp))
	}
	if tp != nil {
		opts = append(opts, otelhttp.WithTracerProvider(tp))
	}
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, service, opts...)
	}
}

// Labeler adds the http.route attribute to otelhttp metrics. It must run
// inside Instrument.
func Labeler(find RouteFinder) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if find != nil {
				if p := find(r); p != "" {
					l, _ := otelhttp.LabelerFromContext(r.Context())
					l.Add(attribute.String("http.route", p))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Timeout bounds the request context.
func Timeout(d time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
