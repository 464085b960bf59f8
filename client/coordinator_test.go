// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeToken builds an unsigned JWT with the given expiry. The coordinator
// never verifies signatures, so a fake signature part is enough.
func fakeToken(t *testing.T, exp time.Time) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload, err := json.Marshal(map[string]any{"exp": exp.Unix()})
	require.NoError(t, err)
	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + ".sig"
}

type stubRefresher struct {
	calls   atomic.Int64
	delay   time.Duration
	err     error
	session *Session
}

func (s *stubRefresher) Refresh(_ context.Context, _ string) (*Session, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.session, nil
}

func TestTokenNoSession(t *testing.T) {
	co := NewCoordinator(&stubRefresher{})

	token, err := co.Token(context.Background())
	require.NoError(t, err)
	assert.Empty(t, token, "no session means unauthenticated, not an error")
}

func TestTokenFreshPassesThrough(t *testing.T) {
	fresh := fakeToken(t, time.Now().Add(time.Hour))
	refresher := &stubRefresher{}
	co := NewCoordinator(refresher)
	co.SetSession(&Session{AccessToken: fresh, RefreshToken: "rt"})

	token, err := co.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fresh, token)
	assert.EqualValues(t, 0, refresher.calls.Load())
}

func TestTokenRefreshesInsideBuffer(t *testing.T) {
	stale := fakeToken(t, time.Now().Add(time.Minute))
	renewed := fakeToken(t, time.Now().Add(time.Hour))
	refresher := &stubRefresher{session: &Session{AccessToken: renewed, RefreshToken: "rt2"}}
	co := NewCoordinator(refresher)
	co.SetSession(&Session{AccessToken: stale, RefreshToken: "rt1"})

	token, err := co.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, renewed, token)
	assert.EqualValues(t, 1, refresher.calls.Load())
	assert.Equal(t, "rt2", co.Session().RefreshToken)
}

func TestTokenSingleFlight(t *testing.T) {
	stale := fakeToken(t, time.Now().Add(time.Minute))
	renewed := fakeToken(t, time.Now().Add(time.Hour))
	refresher := &stubRefresher{
		delay:   50 * time.Millisecond,
		session: &Session{AccessToken: renewed, RefreshToken: "rt2"},
	}
	co := NewCoordinator(refresher)
	co.SetSession(&Session{AccessToken: stale, RefreshToken: "rt1"})

	const concurrency = 32
	var wg sync.WaitGroup
	tokens := make([]string, concurrency)
	errs := make([]error, concurrency)
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = co.Token(context.Background())
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, refresher.calls.Load(),
		"concurrent requests share one network refresh")
	for i := 0; i < concurrency; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, renewed, tokens[i])
	}
}

func TestTokenRefreshFailureDrainsAllWaiters(t *testing.T) {
	stale := fakeToken(t, time.Now().Add(time.Minute))
	refresher := &stubRefresher{
		delay: 50 * time.Millisecond,
		err:   errors.New("401"),
	}
	co := NewCoordinator(refresher)
	co.SetSession(&Session{AccessToken: stale, RefreshToken: "rt1"})

	const concurrency = 16
	var wg sync.WaitGroup
	errs := make([]error, concurrency)
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = co.Token(context.Background())
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, refresher.calls.Load())
	for i := 0; i < concurrency; i++ {
		assert.ErrorIs(t, errs[i], ErrSessionExpired,
			"every queued request fails with the same terminal error")
	}
	assert.Nil(t, co.Session(), "failed refresh clears local credentials")
}

func TestTokenWaiterHonorsContext(t *testing.T) {
	stale := fakeToken(t, time.Now().Add(time.Minute))
	renewed := fakeToken(t, time.Now().Add(time.Hour))
	refresher := &stubRefresher{
		delay:   200 * time.Millisecond,
		session: &Session{AccessToken: renewed, RefreshToken: "rt2"},
	}
	co := NewCoordinator(refresher)
	co.SetSession(&Session{AccessToken: stale, RefreshToken: "rt1"})

	// First caller holds the refresh.
	go func() { _, _ = co.Token(context.Background()) }()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := co.Token(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTokenExpiryDecode(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	got, err := tokenExpiry(fakeToken(t, exp))
	require.NoError(t, err)
	assert.True(t, got.Equal(exp))

	_, err = tokenExpiry("garbage")
	assert.Error(t, err)
	_, err = tokenExpiry("a.b.c")
	assert.Error(t, err)
}
