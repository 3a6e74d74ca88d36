package webui

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleClientTTL is how long a client's bucket is kept after its last submission.
const idleClientTTL = 10 * time.Minute

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiter applies a token bucket per client address.
type clientLimiter struct {
	clients map[string]*clientBucket
	now     func() time.Time
	limit   rate.Limit
	burst   int
	mu      sync.Mutex
}

// newClientLimiter allows perMinute submissions per client, bursting up to perMinute.
// A non-positive perMinute returns nil, which allows everything.
func newClientLimiter(perMinute int) *clientLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &clientLimiter{
		clients: make(map[string]*clientBucket),
		now:     time.Now,
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   perMinute,
	}
}

// Admit reports whether key has a token available without taking it.
// Call commit once the submission is accepted to spend the token.
func (l *clientLimiter) Admit(key string) (commit func(), ok bool) {
	if l == nil {
		return func() {}, true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.evictLocked(now)

	bucket, found := l.clients[key]
	if !found {
		bucket = &clientBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = bucket
	}
	bucket.lastSeen = now
	if bucket.limiter.TokensAt(now) < 1 {
		return func() {}, false
	}
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		bucket.limiter.AllowN(l.now(), 1)
	}, true
}

func (l *clientLimiter) evictLocked(now time.Time) {
	for key, bucket := range l.clients {
		if now.Sub(bucket.lastSeen) > idleClientTTL {
			delete(l.clients, key)
		}
	}
}

// clientKey identifies the submitting client by host, ignoring the port.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
