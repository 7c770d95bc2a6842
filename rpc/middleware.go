package rpc

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"cyberswap/observability"
)

type contextKey string

const ctxKeyRequestID contextKey = "rpc.request_id"

// RequestIDHeader carries the request id on requests and responses.
const RequestIDHeader = "X-Request-ID"

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyRequestID, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		elapsed := time.Since(start)
		observability.HTTP().Observe(route, recorder.status, elapsed)
		s.logger.Debug("request served",
			"request_id", requestIDFrom(r.Context()),
			"method", r.Method,
			"route", route,
			"status", recorder.status,
			"duration_ms", elapsed.Milliseconds())
	})
}

// RateLimiter throttles clients by remote address.
type RateLimiter struct {
	logger *slog.Logger
	limit  rate.Limit
	burst  int
	ttl    time.Duration
	now    func() time.Time

	mu       sync.Mutex
	visitors map[string]*visitor
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows perSecond requests with the given burst per client.
// It returns nil, disabling throttling, when perSecond is not positive.
func NewRateLimiter(perSecond float64, burst int, logger *slog.Logger) *RateLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{
		logger:   logger,
		limit:    rate.Limit(perSecond),
		burst:    burst,
		ttl:      5 * time.Minute,
		now:      time.Now,
		visitors: make(map[string]*visitor),
	}
}

// Wrap rejects requests to route that are over the client's budget with 429.
func (l *RateLimiter) Wrap(route string, next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := clientID(r)
		if !l.allow(id) {
			observability.HTTP().RecordThrottle(route)
			l.logger.Warn("request throttled", "client", id, "route", route)
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) allow(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.ttl {
			delete(l.visitors, key)
		}
	}
	v, ok := l.visitors[id]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[id] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func clientID(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if parsed := net.ParseIP(first); parsed != nil {
			return parsed.String()
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
