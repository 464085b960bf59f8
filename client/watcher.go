// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package client

import (
	"context"
	"time"
)

// DefaultWatchInterval is how often the watcher inspects the stored session.
const DefaultWatchInterval = 30 * time.Second

// Watcher periodically inspects the remaining lifetime of the stored access
// token so clients that make no requests still notice expiry. It never
// refreshes; that stays with the Coordinator.
type Watcher struct {
	coordinator *Coordinator
	interval    time.Duration
	buffer      time.Duration
	now         func() time.Time

	// ExpiringSoon fires when the token's remaining lifetime drops inside
	// the buffer. Informational.
	ExpiringSoon func(remaining time.Duration)
	// Expired fires once when the token is past expiry; the stored session
	// is cleared first, so the caller can redirect to login.
	Expired func()
}

// NewWatcher creates a watcher over the coordinator's session.
func NewWatcher(coordinator *Coordinator) *Watcher {
	return &Watcher{
		coordinator: coordinator,
		interval:    DefaultWatchInterval,
		buffer:      DefaultRefreshBuffer,
		now:         time.Now,
	}
}

// Run checks on every tick until the context is canceled.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *Watcher) check() {
	session := w.coordinator.Session()
	if session == nil {
		return
	}
	expiry, err := tokenExpiry(session.AccessToken)
	if err != nil {
		return
	}

	remaining := expiry.Sub(w.now())
	switch {
	case remaining <= 0:
		w.coordinator.Clear()
		if w.Expired != nil {
			w.Expired()
		}
	case remaining <= w.buffer:
		if w.ExpiringSoon != nil {
			w.ExpiringSoon(remaining)
		}
	}
}
