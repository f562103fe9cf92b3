package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/pharmds-ddi-server/internal/domain"
)

// maxTrackedClients bounds the number of per-client limiters kept in memory.
const maxTrackedClients = 10000

// RateLimiter hands out a token bucket per client IP.
type RateLimiter struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	clients *lru.Cache[string, *rate.Limiter]
}

// NewRateLimiter creates a limiter allowing rps requests per second per
// client with the given burst.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = int(math.Max(1, math.Ceil(rps)))
	}
	// Size is a positive constant; New only fails on size <= 0.
	clients, _ := lru.New[string, *rate.Limiter](maxTrackedClients)
	return &RateLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		clients: clients,
	}
}

// Allow reports whether client may make a request now.
func (rl *RateLimiter) Allow(client string) bool {
	return rl.limiter(client).Allow()
}

func (rl *RateLimiter) limiter(client string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if l, ok := rl.clients.Get(client); ok {
		return l
	}
	l := rate.NewLimiter(rl.limit, rl.burst)
	rl.clients.Add(client, l)
	return l
}

// Middleware rejects requests over the limit with 429.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP()) {
			c.Header("Retry-After", strconv.Itoa(rl.retryAfterSeconds()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, domain.NewAPIError(
				domain.CodeRateLimit, "rate limit exceeded", nil, GetCorrelationID(c)))
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) retryAfterSeconds() int {
	if rl.limit <= 0 {
		return 60
	}
	return int(math.Max(1, math.Ceil(1/float64(rl.limit))))
}

// RateLimit builds the middleware from configuration. A disabled config
// yields a pass-through handler.
func RateLimit(cfg domain.RateLimitConfig) gin.HandlerFunc {
	if !cfg.Enabled || cfg.RequestsPerSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return NewRateLimiter(cfg.RequestsPerSecond, cfg.Burst).Middleware()
}
