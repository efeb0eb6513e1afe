package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWrap_Order(t *testing.T) {
	var calls []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls = append(calls, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Wrap(okHandler(), mark("outer"), mark("inner"))
	serve(h, nil)
	assert.Equal(t, []string{"outer", "inner"}, calls)
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	w := serve(h, nil)
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get(RequestIDHeader))

	w = serve(h, func(r *http.Request) { r.Header.Set(RequestIDHeader, "req-42") })
	assert.Equal(t, "req-42", seen)
	assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))

	serve(h, func(r *http.Request) { r.Header.Set(RequestIDHeader, "bad\x01id") })
	assert.NotEqual(t, "bad\x01id", seen)
}

func TestInjectLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	h := Wrap(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		zctx.From(r.Context()).Info("Handled")
	}), RequestID(), InjectLogger(zap.New(core)))

	serve(h, func(r *http.Request) { r.Header.Set(RequestIDHeader, "req-7") })
	entries := logs.FilterMessage("Handled").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "req-7", entries[0].ContextMap()["request_id"])
}

func TestRecovery(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	h := Wrap(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), InjectLogger(zap.New(core)), Recovery())

	w := serve(h, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":{"code":"internal","message":"internal server error"}}`, w.Body.String())
	assert.Equal(t, 1, logs.FilterMessage("Panic recovered").Len())
}

func TestRouteFinder(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/orders/{id}", func(http.ResponseWriter, *http.Request) {})
	find := MakeRouteFinder(r)

	req := httptest.NewRequest(http.MethodGet, "/api/orders/o-1", nil)
	assert.Equal(t, "/api/orders/{id}", find(req))
	assert.Equal(t, "GET /api/orders/{id}", routeName(find, req))

	req = httptest.NewRequest(http.MethodGet, "/nope", nil)
	assert.Empty(t, find(req))
	assert.Equal(t, "GET unmatched", routeName(find, req))
}

func TestLogRequests(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := chi.NewRouter()
	r.Get("/api/orders/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Get("/api/fail", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	h := Wrap(r, InjectLogger(zap.New(core)), LogRequests(MakeRouteFinder(r)))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/orders/o-1", nil))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/fail", nil))

	req := logs.FilterMessage("Request").All()
	require.Len(t, req, 1)
	assert.Equal(t, "GET /api/orders/{id}", req[0].ContextMap()["route"])
	assert.EqualValues(t, http.StatusTeapot, req[0].ContextMap()["status"])
	assert.Equal(t, 1, logs.FilterMessage("Request failed").Len())
}

func TestCORS(t *testing.T) {
	h := CORS(CORSConfig{AllowOrigins: []string{"https://Shop.example"}, MaxAge: 600})(okHandler())

	t.Run("Preflight", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodOptions, "/api/cart", nil)
		req.Header.Set("Origin", "https://shop.example")
		req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
		h.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "https://Shop.example", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPatch)
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-Owner-ID")
		assert.Equal(t, "600", w.Header().Get("Access-Control-Max-Age"))
	})
	t.Run("Disallowed", func(t *testing.T) {
		w := serve(h, func(r *http.Request) { r.Header.Set("Origin", "https://evil.example") })
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Origin", w.Header().Get("Vary"))
	})
	t.Run("Credentials", func(t *testing.T) {
		h := CORS(CORSConfig{AllowCredentials: true})(okHandler())
		w := serve(h, func(r *http.Request) { r.Header.Set("Origin", "https://a.example") })
		assert.Equal(t, "https://a.example", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	})
}
