package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig configures CORS.
type CORSConfig struct {
	// AllowOrigins lists allowed origins. Empty or "*" allows any origin.
	AllowOrigins []string `yaml:"allow_origins"`
	// AllowMethods defaults to the methods the API routes use.
	AllowMethods []string `yaml:"allow_methods"`
	// AllowHeaders defaults to the API's request headers. When set to an
	// empty list explicitly the preflight's requested headers are echoed.
	AllowHeaders  []string `yaml:"allow_headers"`
	ExposeHeaders []string `yaml:"expose_headers"`
	// AllowCredentials disables the "*" origin; the request origin is
	// echoed instead.
	AllowCredentials bool `yaml:"allow_credentials"`
	// MaxAge is the preflight cache time in seconds. Negative sends "0".
	MaxAge int `yaml:"max_age"`
}

var (
	defaultAllowMethods = []string{
		http.MethodGet, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions,
	}
	defaultAllowHeaders = []string{
		"Content-Type", "X-API-Key", "X-Owner-ID", RequestIDHeader,
	}
)

// CORS handles preflight requests and decorates actual cross-origin
// responses.
func CORS(cfg CORSConfig) Middleware {
	allowAll := len(cfg.AllowOrigins) == 0
	allowed := make(map[string]string, len(cfg.AllowOrigins)) // lowercase -> configured
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			allowAll = true
			continue
		}
		allowed[strings.ToLower(o)] = o
	}
	echoOrigin := cfg.AllowCredentials && allowAll

	if cfg.AllowMethods == nil {
		cfg.AllowMethods = defaultAllowMethods
	}
	if cfg.AllowHeaders == nil {
		cfg.AllowHeaders = defaultAllowHeaders
	}
	allowMethods := strings.Join(cfg.AllowMethods, ", ")
	allowHeaders := strings.Join(cfg.AllowHeaders, ", ")
	exposeHeaders := strings.Join(cfg.ExposeHeaders, ", ")

	var maxAge string
	switch {
	case cfg.MaxAge > 0:
		maxAge = strconv.Itoa(cfg.MaxAge)
	case cfg.MaxAge < 0:
		maxAge = "0"
	}

	match := func(origin string) string {
		switch {
		case echoOrigin:
			return origin
		case allowAll:
			return "*"
		}
		return allowed[strings.ToLower(origin)]
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			origin := r.Header.Get("Origin")
			if origin == "" {
				if !allowAll || echoOrigin {
					h.Add("Vary", "Origin")
				}
				next.ServeHTTP(w, r)
				return
			}
			allowOrigin := match(origin)

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Add("Vary", "Origin")
				h.Add("Vary", "Access-Control-Request-Method")
				h.Add("Vary", "Access-Control-Request-Headers")
				if allowOrigin != "" {
					h.Set("Access-Control-Allow-Origin", allowOrigin)
					h.Set("Access-Control-Allow-Methods", allowMethods)
					if allowHeaders != "" {
						h.Set("Access-Control-Allow-Headers", allowHeaders)
					} else if rh := r.Header.Get("Access-Control-Request-Headers"); rh != "" {
						h.Set("Access-Control-Allow-Headers", rh)
					}
					if cfg.AllowCredentials {
						h.Set("Access-Control-Allow-Credentials", "true")
					}
					if maxAge != "" {
						h.Set("Access-Control-Max-Age", maxAge)
					}
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if !allowAll || echoOrigin {
				h.Add("Vary", "Origin")
			}
			if allowOrigin != "" {
				h.Set("Access-Control-Allow-Origin", allowOrigin)
				if cfg.AllowCredentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
				if exposeHeaders != "" {
					h.Set("Access-Control-Expose-Headers", exposeHeaders)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
