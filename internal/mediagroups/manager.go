// Package mediagroups collects the messages of a Telegram album, which arrive as separate updates,
// and hands them over as one batch once the album has settled.
package mediagroups

import (
	"context"
	"sort"
	"sync"
	"time"

	"chanqueue-bot/internal/queue"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultProcessDelay is how long after the first part a group is finalized.
	DefaultProcessDelay = time.Second
	// DefaultMaxGroupSize limits the number of parts stored per group.
	DefaultMaxGroupSize = 10
)

// Part is one message of an album.
type Part struct {
	MessageID  int
	SenderID   int64
	ChatID     int64
	Attachment queue.Attachment
	Caption    string
}

// ProcessFunc receives a finalized group, parts ordered by message id.
type ProcessFunc func(ctx context.Context, groupID string, parts []Part) error

type groupState struct {
	mu    sync.Mutex
	parts []Part
	timer *time.Timer
	done  bool // taken for processing, no longer accepts parts
}

// Manager buffers album parts per group id.
type Manager struct {
	groups  sync.Map // map[string]*groupState
	delay   time.Duration
	maxSize int
	process ProcessFunc
}

// NewManager creates a manager that calls process delay after the first part of each group arrives.
func NewManager(delay time.Duration, process ProcessFunc) *Manager {
	if delay <= 0 {
		delay = DefaultProcessDelay
	}
	return &Manager{delay: delay, maxSize: DefaultMaxGroupSize, process: process}
}

// Add stores a part. The first part of a group arms the debounce timer; later parts never re-arm it.
func (m *Manager) Add(groupID string, part Part) {
	if groupID == "" {
		return
	}
	state := m.liveState(groupID)
	defer state.mu.Unlock()

	for _, p := range state.parts {
		if p.MessageID == part.MessageID {
			return
		}
	}
	if len(state.parts) >= m.maxSize {
		log.Warn().Str("group", groupID).Int("message", part.MessageID).Msg("media group limit reached, part dropped")
		return
	}
	state.parts = append(state.parts, part)
	log.Debug().Str("group", groupID).Int("parts", len(state.parts)).Msg("media group part stored")

	if state.timer == nil {
		state.timer = time.AfterFunc(m.delay, func() {
			m.finalize(context.Background(), groupID)
		})
	}
}

// liveState returns the locked buffer of groupID. A buffer that was taken for processing between
// the lookup and the lock is replaced by a fresh one, so a late part starts a new batch.
func (m *Manager) liveState(groupID string) *groupState {
	for {
		val, _ := m.groups.LoadOrStore(groupID, &groupState{parts: make([]Part, 0, m.maxSize)})
		state := val.(*groupState)
		state.mu.Lock()
		if !state.done {
			return state
		}
		state.mu.Unlock()
		m.groups.CompareAndDelete(groupID, state)
	}
}

// Flush finalizes a group immediately. It reports false when the group is unknown or already done.
func (m *Manager) Flush(ctx context.Context, groupID string) bool {
	return m.finalize(ctx, groupID)
}

// Shutdown finalizes every pending group and returns how many were processed.
func (m *Manager) Shutdown(ctx context.Context) int {
	var ids []string
	m.groups.Range(func(key, _ any) bool {
		ids = append(ids, key.(string))
		return true
	})
	n := 0
	for _, id := range ids {
		if m.finalize(ctx, id) {
			n++
		}
	}
	log.Info().Int("groups", n).Msg("media group manager stopped")
	return n
}

// Pending returns the number of groups still buffering.
func (m *Manager) Pending() int {
	n := 0
	m.groups.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (m *Manager) finalize(ctx context.Context, groupID string) bool {
	parts := m.takeGroup(groupID)
	if len(parts) == 0 {
		return false
	}
	log.Debug().Str("group", groupID).Int("parts", len(parts)).Msg("processing media group")
	if err := m.process(ctx, groupID, parts); err != nil {
		log.Error().Err(err).Str("group", groupID).Msg("failed to process media group")
		sentry.CaptureException(err)
	}
	return true
}

// takeGroup removes the group and returns its parts. Only one caller ever gets a group's parts.
func (m *Manager) takeGroup(groupID string) []Part {
	val, loaded := m.groups.LoadAndDelete(groupID)
	if !loaded {
		return nil
	}
	state := val.(*groupState)

	state.mu.Lock()
	defer state.mu.Unlock()
	state.done = true
	if state.timer != nil {
		state.timer.Stop()
		state.timer = nil
	}
	parts := append([]Part(nil), state.parts...)
	sort.Slice(parts, func(i, j int) bool { return parts[i].MessageID < parts[j].MessageID })
	return parts
}
