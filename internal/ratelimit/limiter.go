package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const windowSize = 60 * time.Second

// Limiter gates dispatch attempts per actor and per provider pool.
//
// Actors are limited by a sliding window of request timestamps over the last
// 60 seconds. Pools are limited by a token bucket that refills continuously.
// A request is admitted only when both have room; a denial never consumes a
// token or records a timestamp, so there is no partial consumption.
type Limiter struct {
	mu            sync.Mutex
	perActorLimit int
	poolCapacity  int
	refillRate    float64
	actors        map[string][]time.Time
	pools         map[string]*rate.Limiter

	// now is swappable for tests.
	now func() time.Time
}

func New(perActorLimit, poolCapacity int, refillRate float64) *Limiter {
	return &Limiter{
		perActorLimit: perActorLimit,
		poolCapacity:  poolCapacity,
		refillRate:    refillRate,
		actors:        make(map[string][]time.Time),
		pools:         make(map[string]*rate.Limiter),
		now:           time.Now,
	}
}

// CanProceed reports whether a dispatch for actorID against poolID is
// admitted right now. On admission it records the actor timestamp and
// consumes one pool token as a single decision.
func (l *Limiter) CanProceed(actorID, poolID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	window := l.trimmed(actorID, now)
	if len(window) >= l.perActorLimit {
		l.actors[actorID] = window
		return false
	}

	pool, ok := l.pools[poolID]
	if !ok {
		pool = rate.NewLimiter(rate.Limit(l.refillRate), l.poolCapacity)
		l.pools[poolID] = pool
	}
	// AllowN only consumes on success, so a pool denial leaves the actor
	// window untouched as well.
	if !pool.AllowN(now, 1) {
		l.actors[actorID] = window
		return false
	}

	l.actors[actorID] = append(window, now)
	return true
}

// BackoffSeconds returns how long the caller should sleep before retrying a
// denied dispatch: the time until the actor's oldest window entry ages out,
// at least 1 second and at most the window size.
func (l *Limiter) BackoffSeconds(actorID string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	window := l.trimmed(actorID, now)
	l.actors[actorID] = window

	if len(window) == 0 {
		return 1.0
	}
	backoff := window[0].Add(windowSize).Sub(now).Seconds()
	if backoff < 1.0 {
		return 1.0
	}
	if backoff > windowSize.Seconds() {
		return windowSize.Seconds()
	}
	return backoff
}

// trimmed drops actor timestamps older than the window. Caller holds l.mu.
func (l *Limiter) trimmed(actorID string, now time.Time) []time.Time {
	window := l.actors[actorID]
	cutoff := now.Add(-windowSize)
	i := 0
	for i < len(window) && !window[i].After(cutoff) {
		i++
	}
	return window[i:]
}
