package adapter

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/board-collector/internal/collector"
)

type stubAdapter struct{}

func (stubAdapter) Crawl(context.Context, time.Time) ([]collector.Item, error) {
	return nil, nil
}

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	return f.now
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Register("b", stubAdapter{}))
	require.NoError(t, r.Register("a", stubAdapter{}))
	require.Error(t, r.Register("a", stubAdapter{}))
	require.Error(t, r.Register("", stubAdapter{}))
	require.Error(t, r.Register("c", nil))

	_, ok := r.Lookup("a")
	require.True(t, ok)
	_, ok = r.Lookup("zzz")
	require.False(t, ok)
	require.Equal(t, []string{"a", "b"}, r.Names())
}

func TestSessionRefreshesLazily(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1000, 0)}
	calls := 0
	s := NewSession(func(context.Context) ([]*http.Cookie, error) {
		calls++
		return []*http.Cookie{{Name: "sid", Value: string(rune('a' + calls - 1))}}, nil
	}, time.Minute, clock)

	ctx := context.Background()
	cookies, err := s.Cookies(ctx)
	require.NoError(t, err)
	require.Equal(t, "a", cookies[0].Value)

	clock.now = clock.now.Add(30 * time.Second)
	cookies, err = s.Cookies(ctx)
	require.NoError(t, err)
	require.Equal(t, "a", cookies[0].Value)
	require.Equal(t, 1, calls)

	clock.now = clock.now.Add(time.Minute)
	cookies, err = s.Cookies(ctx)
	require.NoError(t, err)
	require.Equal(t, "b", cookies[0].Value)

	s.Invalidate()
	_, err = s.Cookies(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestSessionRefreshError(t *testing.T) {
	t.Parallel()

	s := NewSession(func(context.Context) ([]*http.Cookie, error) {
		return nil, errors.New("warmup failed")
	}, 0, &fakeClock{})
	_, err := s.Cookies(context.Background())
	require.ErrorContains(t, err, "refresh session")
}

func TestResult(t *testing.T) {
	t.Parallel()

	require.False(t, OK(collector.Item{Link: "/x"}).Skipped())
	skip := Skip("missing link")
	require.True(t, skip.Skipped())
	require.Equal(t, "missing link", skip.Reason)
}
