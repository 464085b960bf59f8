// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package client

import (
	"context"
	"sync"
	"time"
)

// DefaultRefreshBuffer is how close to expiry an access token may get before
// an outbound request triggers a refresh.
const DefaultRefreshBuffer = 5 * time.Minute

// Refresher performs the network refresh call. Satisfied by *Client.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
}

type tokenResult struct {
	token string
	err   error
}

// Coordinator hands out access tokens for outbound requests and refreshes
// the session at most once per expiry window, no matter how many requests
// notice the stale token at the same time.
type Coordinator struct {
	refresher Refresher
	buffer    time.Duration
	now       func() time.Time

	mu         sync.Mutex
	session    *Session
	refreshing bool
	waiters    []chan tokenResult
}

// NewCoordinator creates a coordinator around a refresher.
func NewCoordinator(refresher Refresher) *Coordinator {
	return &Coordinator{
		refresher: refresher,
		buffer:    DefaultRefreshBuffer,
		now:       time.Now,
	}
}

// SetSession stores a session obtained from login or registration.
func (co *Coordinator) SetSession(session *Session) {
	co.mu.Lock()
	defer co.mu.Unlock()
	co.session = session
}

// Session returns the stored session, or nil.
func (co *Coordinator) Session() *Session {
	co.mu.Lock()
	defer co.mu.Unlock()
	return co.session
}

// Clear drops the stored session.
func (co *Coordinator) Clear() {
	co.mu.Lock()
	defer co.mu.Unlock()
	co.session = nil
}

// Token returns an access token safe to attach to an outbound request.
//
// With no session it returns "" and no error; the caller proceeds
// unauthenticated. A token comfortably before expiry is returned as is. A
// token inside the refresh buffer triggers exactly one refresh; concurrent
// callers queue and are woken in arrival order with the new token. A failed
// refresh clears the session and fails the caller and every waiter with
// ErrSessionExpired.
func (co *Coordinator) Token(ctx context.Context) (string, error) {
	co.mu.Lock()

	if co.session == nil {
		co.mu.Unlock()
		return "", nil
	}

	expiry, err := tokenExpiry(co.session.AccessToken)
	if err == nil && co.now().Add(co.buffer).Before(expiry) {
		token := co.session.AccessToken
		co.mu.Unlock()
		return token, nil
	}

	if co.refreshing {
		waiter := make(chan tokenResult, 1)
		co.waiters = append(co.waiters, waiter)
		co.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case res := <-waiter:
			return res.token, res.err
		}
	}

	co.refreshing = true
	refreshToken := co.session.RefreshToken
	co.mu.Unlock()

	session, err := co.refresher.Refresh(ctx, refreshToken)

	co.mu.Lock()
	co.refreshing = false
	waiters := co.waiters
	co.waiters = nil

	if err != nil {
		co.session = nil
		co.mu.Unlock()
		for _, w := range waiters {
			w <- tokenResult{err: ErrSessionExpired}
		}
		return "", ErrSessionExpired
	}

	co.session = session
	co.mu.Unlock()
	for _, w := range waiters {
		w <- tokenResult{token: session.AccessToken}
	}
	return session.AccessToken, nil
}
