// Package service orchestrates the send pipeline and the background
// reconciliation between the in-memory session store, the offline cache,
// and the remote conversation backend.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nimbleworks/chatrelay/internal/cache"
	"github.com/nimbleworks/chatrelay/internal/domain"
	"github.com/nimbleworks/chatrelay/internal/policy"
	"github.com/nimbleworks/chatrelay/internal/remote"
	"github.com/nimbleworks/chatrelay/internal/state"
)

// ErrSessionNotFound marks lookups for session ids this process has never
// seen, locally or remotely.
var ErrSessionNotFound = errors.New("session not found")

// Service wires the session store, offline cache, remote backend, and
// credential policy together.
type Service struct {
	state  *state.Store
	cache  *cache.Cache
	remote remote.API
	policy *policy.Engine

	userID string

	syncInterval time.Duration
	syncMinGap   time.Duration
	backoff      Backoff

	onSyncFailure func(error)

	mu         sync.Mutex
	syncing    bool
	lastSync   time.Time
	storedKeys domain.CredentialSet

	// Overridable in tests so backoff waits never touch the wall clock.
	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// Config carries the tunables for a Service. Zero values fall back to the
// defaults below.
type Config struct {
	UserID        string
	SyncInterval  time.Duration
	SyncMinGap    time.Duration
	MaxAttempts   int
	BackoffBase   time.Duration
	OnSyncFailure func(error)
}

const (
	defaultSyncInterval = 5 * time.Minute
	defaultSyncMinGap   = time.Minute
	defaultMaxAttempts  = 3
	defaultBackoffBase  = time.Second
)

// New creates a Service.
func New(st *state.Store, c *cache.Cache, api remote.API, pol *policy.Engine, cfg Config) *Service {
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = defaultSyncInterval
	}
	if cfg.SyncMinGap <= 0 {
		cfg.SyncMinGap = defaultSyncMinGap
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoffBase
	}
	if cfg.UserID == "" {
		cfg.UserID = "default_user"
	}

	return &Service{
		state:         st,
		cache:         c,
		remote:        api,
		policy:        pol,
		userID:        cfg.UserID,
		syncInterval:  cfg.SyncInterval,
		syncMinGap:    cfg.SyncMinGap,
		backoff:       Backoff{Base: cfg.BackoffBase, MaxAttempts: cfg.MaxAttempts},
		onSyncFailure: cfg.OnSyncFailure,
		now:           time.Now,
		after:         time.After,
	}
}

// State exposes the session store for read-side consumers.
func (s *Service) State() *state.Store {
	return s.state
}

// StoreAPIKey writes one provider credential through to the backend and
// refreshes the locally held set so the next send resolves against it even
// before a sync pass runs.
func (s *Service) StoreAPIKey(ctx context.Context, provider, key string) error {
	if err := s.remote.SetAPIKey(ctx, provider, key); err != nil {
		return fmt.Errorf("failed to store credential for %s: %w", provider, err)
	}

	s.mu.Lock()
	if s.storedKeys == nil {
		s.storedKeys = domain.CredentialSet{}
	}
	s.storedKeys[provider] = key
	s.mu.Unlock()
	return nil
}

// newLocalID mints a provisional identifier for an entity that has not yet
// been acknowledged by the backend.
func newLocalID() string {
	return domain.LocalIDPrefix + uuid.New().String()[:8]
}
