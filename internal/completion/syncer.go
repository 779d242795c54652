package completion

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/zyedidia/generic/mapset"

	"github.com/joeblew999/plat-wikimap/internal/logger"
	"github.com/joeblew999/plat-wikimap/internal/metrics"
)

var (
	// ErrNoConflict is returned by Resolve when no decision is pending.
	ErrNoConflict = errors.New("no completion conflict pending")
	// ErrAccountUnavailable wraps account store failures.
	ErrAccountUnavailable = errors.New("account completion store unavailable")
)

// Conflict is a pending decision between differing local and account sets.
type Conflict struct {
	Local   []string `json:"local" doc:"Keys completed in local storage"`
	Account []string `json:"account" doc:"Keys completed on the account"`
}

// StartResult is the outcome of the initial load.
type StartResult struct {
	// Apply lists the keys to tag completed now.
	Apply []string
	// Conflict is set when the user must choose how to merge.
	Conflict *Conflict
	// Notice explains a fallback to local-only storage.
	Notice string
}

// Syncer keeps a local and an optional account store in step. Completion
// changes made while a conflict is pending are held and folded into the
// resolved set.
type Syncer struct {
	mu      sync.Mutex
	local   Store
	account Store
	offline bool
	pending *Conflict
	interim map[string]bool
	log     *logrus.Entry
}

// NewSyncer returns a syncer. account may be nil for local-only storage.
func NewSyncer(local, account Store) *Syncer {
	return &Syncer{
		local:   local,
		account: account,
		interim: make(map[string]bool),
		log:     logger.Log.WithField("component", "completion"),
	}
}

// Start loads both stores and decides what to apply.
func (s *Syncer) Start(ctx context.Context) (StartResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	local, err := s.local.Load(ctx)
	if err != nil {
		return StartResult{}, err
	}
	if s.account == nil {
		return StartResult{Apply: local}, nil
	}

	account, err := s.account.Load(ctx)
	if err != nil {
		s.goOffline(err)
		return StartResult{Apply: local, Notice: fmt.Sprintf("%v; using local progress only", ErrAccountUnavailable)}, nil
	}

	switch {
	case equal(local, account):
		return StartResult{Apply: local}, nil
	case len(local) == 0:
		if err := s.local.Save(ctx, account); err != nil {
			return StartResult{}, err
		}
		return StartResult{Apply: account}, nil
	case len(account) == 0:
		if err := s.account.Save(ctx, local); err != nil {
			s.goOffline(err)
			return StartResult{Apply: local, Notice: fmt.Sprintf("%v; using local progress only", ErrAccountUnavailable)}, nil
		}
		return StartResult{Apply: local}, nil
	}

	s.pending = &Conflict{Local: local, Account: account}
	s.log.WithFields(logrus.Fields{"local": len(local), "account": len(account)}).Info("completion conflict pending")
	return StartResult{Conflict: s.pending}, nil
}

// Pending returns the unresolved conflict, or nil.
func (s *Syncer) Pending() *Conflict {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Resolve applies the user's choice once, writes the result to both stores
// and returns the keys to tag completed. The conflict stays pending until
// the local store accepts the result, so a failed save can be retried.
func (s *Syncer) Resolve(ctx context.Context, choice Choice) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return nil, ErrNoConflict
	}
	keys := fold(Merge(s.pending.Local, s.pending.Account, choice), s.interim)
	if err := s.local.Save(ctx, keys); err != nil {
		return nil, fmt.Errorf("saving resolved completion: %w", err)
	}
	s.pending = nil
	s.interim = make(map[string]bool)

	if !s.offline {
		if err := s.account.Save(ctx, keys); err != nil {
			s.goOffline(err)
		}
	}
	s.log.WithFields(logrus.Fields{"choice": choice, "keys": len(keys)}).Info("completion conflict resolved")
	return keys, nil
}

// Record persists one completion change. An account failure switches the
// syncer to local-only storage and is returned wrapped in
// ErrAccountUnavailable.
func (s *Syncer) Record(ctx context.Context, key string, completed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending != nil {
		s.interim[key] = completed
		return nil
	}
	if err := apply(ctx, s.local, key, completed); err != nil {
		return err
	}
	if s.account == nil || s.offline {
		return nil
	}
	if err := apply(ctx, s.account, key, completed); err != nil {
		s.goOffline(err)
		return fmt.Errorf("%w: %v", ErrAccountUnavailable, err)
	}
	return nil
}

// Offline reports whether the account store was dropped after a failure.
func (s *Syncer) Offline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offline
}

func (s *Syncer) goOffline(err error) {
	s.offline = true
	metrics.CompletionSyncFailTotal.Inc()
	s.log.WithError(err).Warn("account completion store failed, falling back to local")
}

func apply(ctx context.Context, st Store, key string, completed bool) error {
	if completed {
		return st.Add(ctx, key)
	}
	return st.Remove(ctx, key)
}

func fold(keys []string, changes map[string]bool) []string {
	set := mapset.New[string]()
	for _, k := range keys {
		set.Put(k)
	}
	for k, done := range changes {
		if done {
			set.Put(k)
		} else {
			set.Remove(k)
		}
	}
	return sorted(set)
}
