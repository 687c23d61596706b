package profile

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/theracowch/cowch/pkg/logger"
	"github.com/theracowch/cowch/pkg/metrics"
	"github.com/theracowch/cowch/pkg/storage"
)

// Logical storage keys.
const (
	ProfileKey = "therapy_profile"
	HistoryKey = "full_history"
)

// Store is the per-user profile repository. Every read-modify-write of a
// user's data runs under that user's lock.
type Store struct {
	adapter      *storage.Adapter
	now          func() time.Time
	historyLimit int
	locks        *keyedMutex
}

type StoreOption func(*Store)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithHistoryLimit overrides how many history entries are retained.
func WithHistoryLimit(limit int) StoreOption {
	return func(s *Store) {
		if limit > 0 {
			s.historyLimit = limit
		}
	}
}

func NewStore(adapter *storage.Adapter, opts ...StoreOption) *Store {
	s := &Store{
		adapter:      adapter,
		now:          time.Now,
		historyLimit: MaxHistoryEntries,
		locks:        newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the store's current time.
func (s *Store) Now() time.Time {
	return s.now()
}

func (s *Store) GetProfile(ctx context.Context, userID string) TherapyProfile {
	return s.loadProfile(ctx, userID)
}

// SaveProfile stamps updated and persists p.
func (s *Store) SaveProfile(ctx context.Context, userID string, p TherapyProfile) bool {
	unlock := s.locks.Lock(userID)
	defer unlock()
	return s.saveProfile(ctx, userID, p)
}

// Update runs fn on the latest stored profile under the user's lock. The
// result is saved only when fn returns true.
func (s *Store) Update(ctx context.Context, userID string, fn func(p TherapyProfile) (TherapyProfile, bool)) (TherapyProfile, bool) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	current := s.loadProfile(ctx, userID)
	next, changed := fn(current)
	if !changed {
		return current, false
	}
	next = next.normalize(s.now())
	if !s.saveProfile(ctx, userID, next) {
		return next, false
	}
	return next, true
}

func (s *Store) GetFullHistory(ctx context.Context, userID string) []HistoryEntry {
	return s.loadHistory(ctx, userID)
}

// AddToHistory appends msg to the user's history and bumps the profile's
// message counters. The updated history is returned.
func (s *Store) AddToHistory(ctx context.Context, userID string, msg Message) []HistoryEntry {
	unlock := s.locks.Lock(userID)
	defer unlock()

	now := s.now()
	history := s.loadHistory(ctx, userID)
	history = append(history, HistoryEntry{
		ID:        uuid.NewString(),
		Role:      msg.Role,
		Content:   msg.Content,
		Timestamp: now,
	})
	history = trimHistory(history, s.historyLimit)
	s.adapter.Save(ctx, s.adapter.Key(userID, HistoryKey), history)

	p := s.loadProfile(ctx, userID)
	p.MessagesSinceCompression++
	p.MessageCount++
	s.saveProfile(ctx, userID, p)

	logger.DebugCF("profile", "Message appended to history", map[string]interface{}{
		"user":                       userID,
		"role":                       msg.Role,
		"history_len":                len(history),
		"messages_since_compression": p.MessagesSinceCompression,
	})
	return history
}

// RecordImagineEngagement increments the counter for an IMAGINE domain.
// Unknown domains are ignored and report false.
func (s *Store) RecordImagineEngagement(ctx context.Context, userID, domain string) bool {
	key, ok := ImagineKey(domain)
	if !ok {
		logger.DebugCF("profile", "Ignoring unknown IMAGINE domain", map[string]interface{}{
			"user":   userID,
			"domain": domain,
		})
		return false
	}
	_, saved := s.Update(ctx, userID, func(p TherapyProfile) (TherapyProfile, bool) {
		p.Imagine.Increment(key)
		return p, true
	})
	if saved {
		metrics.ImagineEngagementsTotal.WithLabelValues(key).Inc()
	}
	return saved
}

// ClearAllData removes both the profile and the history for the user.
func (s *Store) ClearAllData(ctx context.Context, userID string) bool {
	unlock := s.locks.Lock(userID)
	defer unlock()

	okProfile := s.adapter.Clear(ctx, s.adapter.Key(userID, ProfileKey))
	okHistory := s.adapter.Clear(ctx, s.adapter.Key(userID, HistoryKey))
	logger.InfoCF("profile", "Cleared user data", map[string]interface{}{"user": userID})
	return okProfile && okHistory
}

// Users lists users with stored data.
func (s *Store) Users(ctx context.Context) []string {
	return s.adapter.Users(ctx)
}

func (s *Store) loadProfile(ctx context.Context, userID string) TherapyProfile {
	now := s.now()
	p := storage.Load(ctx, s.adapter, s.adapter.Key(userID, ProfileKey), func() TherapyProfile {
		return EmptyProfile(now)
	})
	return p.normalize(now)
}

func (s *Store) saveProfile(ctx context.Context, userID string, p TherapyProfile) bool {
	p.Updated = s.now()
	return s.adapter.Save(ctx, s.adapter.Key(userID, ProfileKey), p)
}

func (s *Store) loadHistory(ctx context.Context, userID string) []HistoryEntry {
	h := storage.Load(ctx, s.adapter, s.adapter.Key(userID, HistoryKey), func() []HistoryEntry {
		return []HistoryEntry{}
	})
	if h == nil {
		h = []HistoryEntry{}
	}
	return trimHistory(h, s.historyLimit)
}

// keyedMutex hands out one mutex per key and forgets it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) Lock(key string) func() {
	key = strings.TrimSpace(key)

	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
