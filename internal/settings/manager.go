package settings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"chanqueue-bot/internal/schedule"
	"chanqueue-bot/internal/storage"

	"github.com/rs/zerolog/log"
)

// DocumentKey is the persistence key of the settings snapshot.
const DocumentKey = "settings"

// Manager owns the live settings. Readers take snapshots; writers go through Update, which
// validates and persists the new value before publishing it.
type Manager struct {
	mu        sync.RWMutex
	backend   storage.Store
	loc       *time.Location
	tolerance time.Duration
	current   Settings
}

// NewManager returns a manager holding initial until Load replaces it with persisted state.
func NewManager(backend storage.Store, loc *time.Location, tolerance time.Duration, initial Settings) *Manager {
	if loc == nil {
		loc = time.Local
	}
	return &Manager{backend: backend, loc: loc, tolerance: tolerance, current: initial.clone()}
}

// Load restores the persisted snapshot. A missing or malformed document keeps the initial settings;
// a persisted channel target overrides the configured one only when set.
func (m *Manager) Load(ctx context.Context) error {
	data, err := m.backend.Load(ctx, DocumentKey)
	if errors.Is(err, storage.ErrNotFound) {
		log.Info().Msg("no saved settings, using defaults")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	loaded, err := Decode(data, m.loc)
	if err != nil {
		log.Warn().Err(err).Msg("malformed settings document, using defaults")
		return nil
	}

	m.mu.Lock()
	if loaded.ChannelTarget == "" {
		loaded.ChannelTarget = m.current.ChannelTarget
	}
	m.current = loaded
	m.mu.Unlock()
	log.Info().Str("channel", loaded.ChannelTarget).Msg("settings loaded")
	return nil
}

// Location returns the time zone all clock times are evaluated in.
func (m *Manager) Location() *time.Location { return m.loc }

// Snapshot returns a copy of the current settings.
func (m *Manager) Snapshot() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.clone()
}

// Policy returns the scheduling policy derived from the current settings.
func (m *Manager) Policy() schedule.Policy {
	return m.PolicyFor(m.Snapshot())
}

// PolicyFor derives the scheduling policy of a snapshot using the manager's zone and tolerance.
func (m *Manager) PolicyFor(s Settings) schedule.Policy {
	return s.Policy(m.loc, m.tolerance)
}

// Update applies fn to a copy of the settings. If fn fails or the result is invalid nothing changes.
// The new settings take effect even when persisting them fails; the error is still returned.
func (m *Manager) Update(ctx context.Context, fn func(*Settings) error) (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.current.clone()
	if err := fn(&next); err != nil {
		return m.current.clone(), err
	}
	if err := next.Validate(); err != nil {
		return m.current.clone(), err
	}
	m.current = next
	return next.clone(), m.persistLocked(ctx)
}

// MarkPublished records a successful publish at the given instant.
func (m *Manager) MarkPublished(ctx context.Context, at time.Time) error {
	_, err := m.Update(ctx, func(s *Settings) error {
		s.LastPublishAt = at
		return nil
	})
	return err
}

// Save persists the current settings.
func (m *Manager) Save(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.persistLocked(ctx)
}

func (m *Manager) persistLocked(ctx context.Context) error {
	data, err := Encode(m.current)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := m.backend.Save(ctx, DocumentKey, data); err != nil {
		return fmt.Errorf("persist settings: %w", err)
	}
	return nil
}
