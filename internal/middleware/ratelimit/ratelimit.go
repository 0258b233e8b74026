// Package ratelimit throttles how often one client may open an alert stream.
package ratelimit

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"fintrack/internal/cache"
	applog "fintrack/internal/log"
)

const window = time.Minute

// Limiter allows RequestsPerMinute requests per client in fixed one-minute
// windows. Idle clients age out of a bounded LRU.
type Limiter struct {
	mu                sync.Mutex
	clients           *cache.LRUCache[string, clientInfo]
	requestsPerMinute int
	now               func() time.Time
}

type clientInfo struct {
	windowStart time.Time
	requests    int
}

// Config holds rate limiter configuration
type Config struct {
	RequestsPerMinute int
	MaxClients        int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		MaxClients:        10000,
	}
}

func NewLimiter(config Config) *Limiter {
	def := DefaultConfig()
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = def.RequestsPerMinute
	}
	if config.MaxClients <= 0 {
		config.MaxClients = def.MaxClients
	}
	return &Limiter{
		clients:           cache.NewLRUCache[string, clientInfo](config.MaxClients, 2*window),
		requestsPerMinute: config.RequestsPerMinute,
		now:               time.Now,
	}
}

// Allow records one request from clientIP and reports whether it fits the
// current window.
func (rl *Limiter) Allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	client, ok := rl.clients.Get(clientIP)
	if !ok || now.Sub(client.windowStart) >= window {
		client = clientInfo{windowStart: now}
	}
	client.requests++
	rl.clients.Set(clientIP, client)

	return client.requests <= rl.requestsPerMinute
}

// Clients exposes the tracked clients so a cache.Manager can sweep them.
func (rl *Limiter) Clients() cache.Cleaner {
	return rl.clients
}

// ClientIP returns the first X-Forwarded-For address when present, otherwise
// the connection's remote host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(first) != nil {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware rejects requests over the limit with 429.
func (rl *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := ClientIP(r)
		if !rl.Allow(clientIP) {
			slog.WarnContext(r.Context(), "Rate limit exceeded",
				applog.FieldComponent, applog.ComponentNotify,
				"client_ip", clientIP,
				"path", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
