package adapter

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/JakeFAU/board-collector/internal/collector"
)

// Refresher obtains fresh session cookies, typically by loading a warm-up page.
type Refresher func(ctx context.Context) ([]*http.Cookie, error)

// Session caches cookies for one adapter and refreshes them lazily once they
// expire. A zero TTL means the cookies never expire once fetched.
type Session struct {
	mu        sync.Mutex
	refresh   Refresher
	ttl       time.Duration
	clock     collector.Clock
	cookies   []*http.Cookie
	expiresAt time.Time
	loaded    bool
}

// NewSession constructs a Session.
func NewSession(refresh Refresher, ttl time.Duration, clock collector.Clock) *Session {
	return &Session{refresh: refresh, ttl: ttl, clock: clock}
}

// Cookies returns the cached cookies, refreshing them first when they are
// missing or expired.
func (s *Session) Cookies(ctx context.Context) ([]*http.Cookie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	if s.loaded && (s.ttl <= 0 || now.Before(s.expiresAt)) {
		return s.cookies, nil
	}
	cookies, err := s.refresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh session: %w", err)
	}
	s.cookies = cookies
	s.loaded = true
	s.expiresAt = now.Add(s.ttl)
	return s.cookies, nil
}

// Invalidate drops the cached cookies so the next call refreshes them.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = false
	s.cookies = nil
}
