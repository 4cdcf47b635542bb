package service

import (
	"sync"
	"time"
)

type userLimiter struct {
	mu   sync.Mutex
	next map[string]time.Time
	win  time.Duration
	now  func() time.Time
}

func newUserLimiter(window time.Duration) *userLimiter {
	return &userLimiter{next: map[string]time.Time{}, win: window, now: time.Now}
}

// Allow devuelve false y lo que falta si el usuario sigue en cooldown.
func (l *userLimiter) Allow(userID string) (bool, time.Duration) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if until, ok := l.next[userID]; ok && now.Before(until) {
		return false, until.Sub(now)
	}
	l.next[userID] = now.Add(l.win)
	return true, 0
}
