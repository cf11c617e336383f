package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
)

// CORSConfig supplies the CORS policy. api.CORSConfig implements it.
type CORSConfig interface {
	GetAllowedOrigins() []string
	GetAllowedMethods() []string
	GetAllowedHeaders() []string
	GetMaxAge() int
}

// corsPolicy is CORSConfig with the header values rendered once.
type corsPolicy struct {
	anyOrigin bool
	origins   map[string]struct{}
	methods   string
	headers   string
	maxAge    string
}

func newCORSPolicy(config CORSConfig) *corsPolicy {
	origins := config.GetAllowedOrigins()

	p := &corsPolicy{
		anyOrigin: slices.Contains(origins, "*"),
		origins:   make(map[string]struct{}, len(origins)),
		methods:   strings.Join(config.GetAllowedMethods(), ", "),
		headers:   strings.Join(config.GetAllowedHeaders(), ", "),
	}

	for _, origin := range origins {
		p.origins[origin] = struct{}{}
	}

	if maxAge := config.GetMaxAge(); maxAge > 0 {
		p.maxAge = strconv.Itoa(maxAge)
	}

	return p
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin, or "" when
// the origin is not allowed.
func (p *corsPolicy) allowOrigin(origin string) string {
	if p.anyOrigin {
		return "*"
	}

	if _, ok := p.origins[origin]; ok {
		return origin
	}

	return ""
}

// CORS answers preflight requests itself and decorates every other response with
// the allowed origin. The correlation ID header is exposed to browser clients.
func CORS(config CORSConfig) func(http.Handler) http.Handler {
	policy := newCORSPolicy(config)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := w.Header()
			origin := r.Header.Get("Origin")

			if !policy.anyOrigin {
				header.Add("Vary", "Origin")
			}

			allowed := policy.allowOrigin(origin)
			if allowed != "" {
				header.Set("Access-Control-Allow-Origin", allowed)
				header.Set("Access-Control-Expose-Headers", CorrelationIDHeader)
			}

			if r.Method != http.MethodOptions || r.Header.Get("Access-Control-Request-Method") == "" {
				next.ServeHTTP(w, r)

				return
			}

			if allowed != "" {
				if policy.methods != "" {
					header.Set("Access-Control-Allow-Methods", policy.methods)
				}

				if policy.headers != "" {
					header.Set("Access-Control-Allow-Headers", policy.headers)
				}

				if policy.maxAge != "" {
					header.Set("Access-Control-Max-Age", policy.maxAge)
				}
			}

			w.WriteHeader(http.StatusNoContent)
		})
	}
}
