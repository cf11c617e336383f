package middleware

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	burstCapacityMultiplier    = 2
	maxClients                 = 100
	defaultGlobalRPS           = 100
	defaultClientRPS           = 50
	defaultUnAuthRPS           = 10
	clientWarningRatio         = 0.8
	rateLimiterCleanupInterval = 5 * time.Minute
	rateLimiterIdleTimeout     = 1 * time.Hour
)

type (
	// RateLimiter decides whether a request may proceed.
	RateLimiter interface {
		// Allow reports whether a request from clientID is within limits.
		// clientID is empty for unauthenticated requests.
		Allow(clientID string) bool
	}

	// InMemoryRateLimiter is a token-bucket RateLimiter with a global bucket and one
	// bucket per client, plus a shared bucket for unauthenticated requests.
	//
	// Client buckets idle longer than IdleTimeout are dropped by a background loop;
	// call Close to stop it.
	InMemoryRateLimiter struct {
		global          *rate.Limiter
		unauthenticated *rate.Limiter
		logger          *slog.Logger

		mu        sync.RWMutex
		perClient map[string]*clientLimiter

		clientRPS   int
		clientBurst int
		idleTimeout time.Duration
		maxClients  int

		cleanupTicker *time.Ticker
		done          chan struct{}
		closeOnce     sync.Once
	}

	clientLimiter struct {
		limiter    *rate.Limiter
		mu         sync.Mutex
		lastAccess time.Time
	}
)

// NewInMemoryRateLimiter creates a rate limiter from cfg and starts its cleanup loop.
//
//	rl := NewInMemoryRateLimiter(&Config{GlobalRPS: 100, ClientRPS: 50, UnAuthRPS: 10}, logger)
//	defer rl.Close()
func NewInMemoryRateLimiter(cfg *Config, logger *slog.Logger) *InMemoryRateLimiter {
	if logger == nil {
		logger = slog.Default()
	}

	idleTimeout := cfg.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = rateLimiterIdleTimeout
	}

	limitOfClients := cfg.MaxClients
	if limitOfClients <= 0 {
		limitOfClients = maxClients
	}

	rl := &InMemoryRateLimiter{
		global:          rate.NewLimiter(rate.Limit(cfg.GlobalRPS), computeBurstCapacity(cfg.GlobalRPS, cfg.GlobalBurst)),
		unauthenticated: rate.NewLimiter(rate.Limit(cfg.UnAuthRPS), computeBurstCapacity(cfg.UnAuthRPS, cfg.UnAuthBurst)),
		logger:          logger,
		perClient:       make(map[string]*clientLimiter),
		clientRPS:       cfg.ClientRPS,
		clientBurst:     computeBurstCapacity(cfg.ClientRPS, cfg.ClientBurst),
		idleTimeout:     idleTimeout,
		maxClients:      limitOfClients,
		done:            make(chan struct{}),
	}

	cleanupInterval := cfg.CleanupInterval
	if cleanupInterval <= 0 {
		cleanupInterval = rateLimiterCleanupInterval
	}

	rl.cleanupTicker = time.NewTicker(cleanupInterval)

	go rl.cleanupLoop()

	return rl
}

// computeBurstCapacity returns burstOverride when set, otherwise 2 × rate.
//
//	computeBurstCapacity(100, 0)   // 200
//	computeBurstCapacity(100, 500) // 500
func computeBurstCapacity(rate, burstOverride int) int {
	if burstOverride > 0 {
		return burstOverride
	}

	return rate * burstCapacityMultiplier
}

// Allow checks the global bucket first, then the client's (or the unauthenticated) bucket.
func (rl *InMemoryRateLimiter) Allow(clientID string) bool {
	if !rl.global.Allow() {
		return false
	}

	if clientID == "" {
		return rl.unauthenticated.Allow()
	}

	cl := rl.clientLimiter(clientID)

	cl.mu.Lock()
	cl.lastAccess = time.Now()
	cl.mu.Unlock()

	return cl.limiter.Allow()
}

func (rl *InMemoryRateLimiter) clientLimiter(clientID string) *clientLimiter {
	rl.mu.RLock()
	cl, ok := rl.perClient[clientID]
	rl.mu.RUnlock()

	if ok {
		return cl
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if cl, ok = rl.perClient[clientID]; ok {
		return cl
	}

	cl = &clientLimiter{
		limiter:    rate.NewLimiter(rate.Limit(rl.clientRPS), rl.clientBurst),
		lastAccess: time.Now(),
	}
	rl.perClient[clientID] = cl

	if count := len(rl.perClient); count >= int(float64(rl.maxClients)*clientWarningRatio) {
		rl.logger.Warn("rate limiter approaching max clients limit",
			slog.Int("current_clients", count),
			slog.Int("max_clients", rl.maxClients),
		)
	}

	return cl
}

// Close stops the cleanup loop. It is safe to call more than once.
func (rl *InMemoryRateLimiter) Close() {
	rl.closeOnce.Do(func() {
		rl.cleanupTicker.Stop()
		close(rl.done)
	})
}

func (rl *InMemoryRateLimiter) cleanupLoop() {
	for {
		select {
		case <-rl.cleanupTicker.C:
			rl.cleanup()
		case <-rl.done:
			return
		}
	}
}

// cleanup removes client buckets that have not been used within the idle timeout.
func (rl *InMemoryRateLimiter) cleanup() {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for clientID, cl := range rl.perClient {
		cl.mu.Lock()
		idle := now.Sub(cl.lastAccess)
		cl.mu.Unlock()

		if idle > rl.idleTimeout {
			delete(rl.perClient, clientID)
		}
	}
}

// clients returns the number of tracked client buckets.
func (rl *InMemoryRateLimiter) clients() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	return len(rl.perClient)
}

// RateLimit returns a middleware that answers 429 with an RFC 7807 body when limiter
// rejects a request. It must run after Authenticate to see the client ID.
func RateLimit(limiter RateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := ""
			if clientCtx, ok := GetClientContext(r.Context()); ok {
				clientID = clientCtx.ClientID
			}

			if !limiter.Allow(clientID) {
				logger.Warn("rate limit exceeded",
					slog.String("client_id", clientID),
					slog.String("correlation_id", GetCorrelationID(r.Context())),
					slog.String("path", r.URL.Path),
				)

				writeProblem(w, r, logger, http.StatusTooManyRequests,
					"Rate limit exceeded. Please retry after some time.")

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
