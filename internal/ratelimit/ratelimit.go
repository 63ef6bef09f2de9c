package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	pruneInterval = 5 * time.Minute
	idleAfter     = 10 * time.Minute
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter enforces a per-user message budget. Each user gets their own
// token bucket refilled across the configured window; the admin is
// exempt.
type Limiter struct {
	mu    sync.Mutex
	users map[int64]*entry

	refill  rate.Limit
	burst   int
	adminID int64
}

// New creates a Limiter that allows limit messages per user per window.
func New(limit int, window time.Duration, adminID int64) *Limiter {
	return &Limiter{
		users:   make(map[int64]*entry),
		refill:  rate.Every(window / time.Duration(limit)),
		burst:   limit,
		adminID: adminID,
	}
}

// Allow reports whether the user may send another message now. When
// denied, the returned duration is how long the user should wait. A
// denied message does not consume budget.
func (l *Limiter) Allow(userID int64) (bool, time.Duration) {
	if l.adminID != 0 && userID == l.adminID {
		return true, 0
	}

	l.mu.Lock()
	e, ok := l.users[userID]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.refill, l.burst)}
		l.users[userID] = e
	}
	e.lastSeen = time.Now()
	l.mu.Unlock()

	r := e.limiter.Reserve()
	if !r.OK() {
		return false, 0
	}

	if delay := r.Delay(); delay > 0 {
		// Return the token so the denial itself does not push the
		// user further into the future.
		r.Cancel()
		return false, delay
	}

	return true, 0
}

// Run prunes idle user buckets until ctx is canceled.
func (l *Limiter) Run(ctx context.Context) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.prune(time.Now())
		}
	}
}

func (l *Limiter) prune(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for id, e := range l.users {
		if now.Sub(e.lastSeen) > idleAfter {
			delete(l.users, id)
		}
	}
}

func (l *Limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.users)
}
