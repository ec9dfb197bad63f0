package middleware

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Route costs reflect what a request fans out into downstream. A generator
// run holds an LLM slot for minutes and an analyze enqueue schedules a
// multi-phase pipeline, so they drain a client's bucket much faster than
// plain CRUD.
const (
	costDefault  = 1
	costAnalyze  = 5
	costGenerate = 10
)

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// RateLimiter is a per-client token bucket with route-weighted costs.
// Clients are keyed by remote address; RealIP runs earlier in the chain so
// the address is the caller, not the proxy.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64 // tokens refilled per second
	burst   float64
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		buckets: make(map[string]*bucket),
		rate:    rps,
		burst:   float64(burst),
	}
	go rl.evictIdle()
	return rl
}

func requestCost(path string) float64 {
	switch {
	case strings.Contains(path, "/generate/"):
		return costGenerate
	case strings.HasSuffix(path, "/analyze"):
		return costAnalyze
	default:
		return costDefault
	}
}

func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cost := requestCost(r.URL.Path)

		rl.mu.Lock()
		b, ok := rl.buckets[r.RemoteAddr]
		if !ok {
			b = &bucket{tokens: rl.burst}
			rl.buckets[r.RemoteAddr] = b
		} else {
			b.tokens = math.Min(rl.burst, b.tokens+time.Since(b.lastSeen).Seconds()*rl.rate)
		}
		b.lastSeen = time.Now()

		if b.tokens < cost {
			wait := int(math.Ceil((cost - b.tokens) / rl.rate))
			rl.mu.Unlock()
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(wait))
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
			return
		}
		b.tokens -= cost
		rl.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) evictIdle() {
	for {
		time.Sleep(time.Minute)
		rl.mu.Lock()
		for addr, b := range rl.buckets {
			if time.Since(b.lastSeen) > 3*time.Minute {
				delete(rl.buckets, addr)
			}
		}
		rl.mu.Unlock()
	}
}
