package auth

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/emberwatch/fireline/internal/httputil"
)

// publicPaths never require a bearer token. /ws/events is public because
// browser WebSocket clients cannot set an Authorization header.
var publicPaths = map[string]bool{
	"/":          true,
	"/health":    true,
	"/readiness": true,
	"/metrics":   true,
	"/ws/events": true,
}

// isPublic also exempts the operator debug tree, which is protected at the
// deployment layer instead.
func isPublic(path string) bool {
	return publicPaths[path] || strings.HasPrefix(path, "/debug/")
}

// Middleware enforces bearer authentication on non-public routes.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublic(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" && s.config.DevMode {
			w.Header().Set("X-Auth-Warning", "No authentication in dev mode")
			next.ServeHTTP(w, r)
			return
		}

		const prefix = "Bearer "
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			w.Header().Set("WWW-Authenticate", "Bearer")
			httputil.WriteJSONError(w, http.StatusUnauthorized, "Missing or invalid authorization header")
			return
		}

		claims, err := s.ValidateToken(header[len(prefix):])
		if err != nil {
			w.Header().Set("WWW-Authenticate", "Bearer")
			httputil.WriteJSONError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// rateLimitExempt paths are skipped so probes cannot starve themselves.
var rateLimitExempt = map[string]bool{
	"/health":    true,
	"/readiness": true,
	"/metrics":   true,
}

// visitorIdleTTL is how long an idle client's limiter survives.
const visitorIdleTTL = 3 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a per-client-IP token bucket across the API.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor

	limit rate.Limit
	burst int

	windowSeconds int
}

// NewRateLimiter allows maxRequests per windowSeconds for each client IP,
// with bursts up to the full window allowance.
func NewRateLimiter(maxRequests, windowSeconds int) *RateLimiter {
	return &RateLimiter{
		visitors:      make(map[string]*visitor),
		limit:         rate.Limit(float64(maxRequests) / float64(windowSeconds)),
		burst:         maxRequests,
		windowSeconds: windowSeconds,
	}
}

func (rl *RateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = now

	if len(rl.visitors) > 1024 {
		for key, vv := range rl.visitors {
			if now.Sub(vv.lastSeen) > visitorIdleTTL {
				delete(rl.visitors, key)
			}
		}
	}
	return v.limiter
}

// Middleware rejects clients over their allowance with a 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rateLimitExempt[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}

		if !rl.getLimiter(ip).Allow() {
			w.Header().Set("Retry-After", strconv.Itoa(rl.windowSeconds))
			httputil.WriteJSONError(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
