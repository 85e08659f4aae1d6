// Package scheduler runs the publication loop: it decides when the head of the queue may go out,
// sends it to the channel and tells the submitters how it went.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"chanqueue-bot/internal/database"
	"chanqueue-bot/internal/locales"
	"chanqueue-bot/internal/publisher"
	"chanqueue-bot/internal/queue"
	"chanqueue-bot/internal/settings"

	"github.com/getsentry/sentry-go"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/rs/zerolog/log"
)

// State is the externally visible phase of the scheduler.
type State int32

const (
	Idle State = iota
	WaitingForSlot
	Publishing
)

func (s State) String() string {
	switch s {
	case WaitingForSlot:
		return "waiting"
	case Publishing:
		return "publishing"
	default:
		return "idle"
	}
}

// Config holds the loop timings.
type Config struct {
	IdleInterval time.Duration // poll period while nothing can be published
	MaxWait      time.Duration // longest single sleep, so settings changes are picked up
	Cooldown     time.Duration // pause after a publish
	FaultBackoff time.Duration // pause after a failed cycle or a recovered panic
	MaxAttempts  int           // failures before an item is quarantined, 0 for unlimited
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		IdleInterval: 15 * time.Second,
		MaxWait:      30 * time.Second,
		Cooldown:     3 * time.Second,
		FaultBackoff: 30 * time.Second,
		MaxAttempts:  5,
	}
}

var (
	ErrBusy       = errors.New("a publish is already in progress")
	ErrQueueEmpty = errors.New("queue is empty")
	ErrNoChannel  = errors.New("channel is not set")
	ErrNotReady   = errors.New("publishing is not allowed right now")
)

// Deps holds the collaborators of a Service.
type Deps struct {
	Queue     *queue.Store
	Settings  *settings.Manager
	Publisher publisher.ChannelPublisher
	Notifier  publisher.UserNotifier
	PostLog   database.PostLogger
	Localizer *i18n.Localizer
	Config    Config
}

// Service is the publication scheduler.
type Service struct {
	queue     *queue.Store
	settings  *settings.Manager
	publisher publisher.ChannelPublisher
	notifier  publisher.UserNotifier
	postLog   database.PostLogger
	localizer *i18n.Localizer
	cfg       Config

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	state    atomic.Int32
	inFlight atomic.Bool
	cycleMu  sync.Mutex
	wake     chan struct{}
}

// New creates a Service from its dependencies.
func New(deps Deps) (*Service, error) {
	if deps.Queue == nil {
		return nil, fmt.Errorf("queue store cannot be nil")
	}
	if deps.Settings == nil {
		return nil, fmt.Errorf("settings manager cannot be nil")
	}
	if deps.Publisher == nil {
		return nil, fmt.Errorf("channel publisher cannot be nil")
	}
	if deps.Notifier == nil {
		return nil, fmt.Errorf("user notifier cannot be nil")
	}
	if deps.Localizer == nil {
		return nil, fmt.Errorf("localizer cannot be nil")
	}
	if deps.PostLog == nil {
		deps.PostLog = database.LogOnlyPostLogger{}
	}
	cfg := deps.Config
	def := DefaultConfig()
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = def.IdleInterval
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = def.MaxWait
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.FaultBackoff <= 0 {
		cfg.FaultBackoff = def.FaultBackoff
	}
	if cfg.MaxAttempts < 0 {
		cfg.MaxAttempts = 0
	}

	return &Service{
		queue:     deps.Queue,
		settings:  deps.Settings,
		publisher: deps.Publisher,
		notifier:  deps.Notifier,
		postLog:   deps.PostLog,
		localizer: deps.Localizer,
		cfg:       cfg,
		now:       time.Now,
		sleep:     sleepCtx,
		wake:      make(chan struct{}, 1),
	}, nil
}

// State returns the current phase.
func (s *Service) State() State { return State(s.state.Load()) }

// InFlight reports whether a publish is being sent right now.
func (s *Service) InFlight() bool { return s.inFlight.Load() }

func (s *Service) setState(st State) { s.state.Store(int32(st)) }

// Wake makes the loop re-evaluate immediately, e.g. after a settings change.
func (s *Service) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run drives the loop until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	log.Info().Msg("scheduler started")
	for {
		wait := s.step(ctx)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.setState(Idle)
			log.Info().Msg("scheduler stopped")
			return
		case <-s.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// step evaluates the schedule once, publishes if due, and returns how long to sleep.
func (s *Service) step(ctx context.Context) (wait time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			sentry.CurrentHub().Recover(r)
			log.Error().Interface("panic", r).Msg("scheduler cycle panicked")
			s.setState(Idle)
			wait = s.cfg.FaultBackoff
		}
	}()

	d := s.decide(s.now(), s.settings.Snapshot())
	if !d.ready {
		if d.dormant {
			s.setState(Idle)
		} else {
			s.setState(WaitingForSlot)
		}
		return s.clamp(d.wait)
	}

	_, err := s.runCycle(ctx, false)
	switch {
	case err == nil:
		return s.cfg.Cooldown
	case errors.Is(err, ErrBusy), errors.Is(err, ErrNotReady), errors.Is(err, ErrQueueEmpty):
		return s.cfg.Cooldown
	case errors.Is(err, context.Canceled):
		return s.cfg.Cooldown
	default:
		return s.cfg.FaultBackoff
	}
}

func (s *Service) clamp(wait time.Duration) time.Duration {
	if wait <= 0 {
		return s.cfg.Cooldown
	}
	if wait > s.cfg.MaxWait {
		return s.cfg.MaxWait
	}
	return wait
}

// decision is the outcome of evaluating the gates at one instant.
type decision struct {
	ready   bool
	dormant bool          // nothing to wait for: paused, no channel, empty queue or no cadence
	slot    time.Time     // exact-mode slot being served, zero in interval mode
	wait    time.Duration // time until the next evaluation is worthwhile
	reason  string
}

func (s *Service) decide(now time.Time, snap settings.Settings) decision {
	idle := decision{dormant: true, wait: s.cfg.IdleInterval}
	switch {
	case !snap.PostingEnabled:
		idle.reason = "posting disabled"
		return idle
	case snap.ChannelTarget == "":
		idle.reason = "no channel"
		return idle
	case s.queue.Len() == 0:
		idle.reason = "queue empty"
		return idle
	}

	p := s.settings.PolicyFor(snap)
	wait, ok := p.Next(now, snap.LastPublishAt)
	if !ok {
		idle.reason = "no interval"
		return idle
	}
	if wait > 0 {
		return decision{wait: wait, reason: "waiting"}
	}

	at := now
	var slot time.Time
	if p.ExactTiming {
		due, isDue := p.DueSlot(now, snap.LastPublishAt)
		if !isDue {
			return decision{wait: s.cfg.IdleInterval, reason: "no due slot"}
		}
		slot, at = due, due
	}
	if allowed, why := p.Allowed(at); !allowed {
		return decision{wait: p.NextAllowed(now).Sub(now), reason: why.String()}
	}
	return decision{ready: true, slot: slot}
}

// runCycle publishes the head of the queue. Unless forced, the gates are re-checked under the
// cycle lock. A due slot that is still slightly ahead is waited for before sending.
func (s *Service) runCycle(ctx context.Context, forced bool) (queue.Item, error) {
	release, ok := s.acquire()
	if !ok {
		return queue.Item{}, ErrBusy
	}
	defer release()

	snap := s.settings.Snapshot()
	if snap.ChannelTarget == "" {
		return queue.Item{}, ErrNoChannel
	}

	if !forced {
		now := s.now()
		d := s.decide(now, snap)
		if !d.ready {
			return queue.Item{}, fmt.Errorf("%w: %s", ErrNotReady, d.reason)
		}
		if !d.slot.IsZero() && d.slot.After(now) {
			log.Debug().Time("slot", d.slot).Msg("waiting for slot")
			if err := s.sleep(ctx, d.slot.Sub(now)); err != nil {
				return queue.Item{}, err
			}
		}
	}

	head, ok := s.queue.Head()
	if !ok {
		return queue.Item{}, ErrQueueEmpty
	}
	return head, s.publishLocked(ctx, snap, head, forced)
}

// acquire takes the cycle lock without blocking and marks a publish as in flight.
func (s *Service) acquire() (release func(), ok bool) {
	if !s.cycleMu.TryLock() {
		return nil, false
	}
	s.inFlight.Store(true)
	s.setState(Publishing)
	return func() {
		s.inFlight.Store(false)
		s.setState(Idle)
		s.cycleMu.Unlock()
	}, true
}

// publishLocked sends a queued item and confirms the channel still answers. Only then is the
// publish recorded and the item dequeued; any failure leaves the item where it is.
func (s *Service) publishLocked(ctx context.Context, snap settings.Settings, item queue.Item, forced bool) error {
	attemptAt := s.now()
	if err := s.send(ctx, snap, item); err != nil {
		return s.handleFailure(ctx, snap, item, attemptAt, forced, err)
	}

	if err := s.settings.MarkPublished(ctx, s.now()); err != nil {
		log.Error().Err(err).Msg("failed to persist last publish time")
		sentry.CaptureException(err)
	}
	s.dequeue(ctx, item.ID)

	log.Info().Str("item", item.ID).Str("type", item.TypeName()).Bool("forced", forced).Msg("published")
	s.logPost(ctx, snap, item, attemptAt, item.Attempts+1, forced, nil)
	s.notify(ctx, snap, item.Submitters, "MsgNotifyPublished", nil)
	return nil
}

// send dispatches item to the channel and checks that the channel is reachable afterwards.
func (s *Service) send(ctx context.Context, snap settings.Settings, item queue.Item) error {
	if err := publisher.Dispatch(ctx, s.publisher, snap.ChannelTarget, item, snap.Signature()); err != nil {
		return err
	}
	if _, err := s.publisher.ChannelInfo(ctx, snap.ChannelTarget); err != nil {
		log.Warn().Err(err).Str("channel", snap.ChannelTarget).Msg("channel unreachable after publish")
		return fmt.Errorf("reachability check: %w", err)
	}
	return nil
}

// dequeue removes a published item, normally the head. An item moved by an operator meanwhile
// is removed from its new position.
func (s *Service) dequeue(ctx context.Context, id string) {
	_, popped, err := s.queue.PopFront(ctx, id)
	if err == nil && !popped {
		var removed bool
		_, removed, err = s.queue.Remove(ctx, id)
		if err == nil && !removed {
			log.Warn().Str("item", id).Msg("published item was no longer queued")
		}
	}
	if err != nil {
		log.Error().Err(err).Str("item", id).Msg("failed to persist queue after publish")
		sentry.CaptureException(err)
	}
}

func (s *Service) handleFailure(ctx context.Context, snap settings.Settings, head queue.Item, at time.Time, forced bool, cause error) error {
	log.Error().Err(cause).Str("item", head.ID).Str("type", head.TypeName()).Msg("publish failed")
	sentry.CaptureException(fmt.Errorf("publish %s: %w", head.ID, cause))

	attempts, quarantined, err := s.queue.RecordFailure(ctx, head.ID, cause, s.cfg.MaxAttempts)
	if err != nil {
		log.Error().Err(err).Str("item", head.ID).Msg("failed to persist failure")
	}
	s.logPost(ctx, snap, head, at, attempts, forced, cause)

	data := map[string]interface{}{"Attempt": attempts, "Error": cause.Error()}
	if quarantined {
		log.Warn().Str("item", head.ID).Int("attempts", attempts).Msg("item quarantined")
		s.notify(ctx, snap, head.Submitters, "MsgNotifyQuarantined", data)
	} else {
		s.notify(ctx, snap, head.Submitters, "MsgNotifyFailed", data)
	}
	return fmt.Errorf("publish %s: %w", head.ID, cause)
}

func (s *Service) logPost(ctx context.Context, snap settings.Settings, item queue.Item, at time.Time, attempt int, forced bool, cause error) {
	entry := database.PostLogEntry(item, snap.ChannelTarget, at, attempt, forced, cause)
	if err := s.postLog.LogPublication(ctx, entry); err != nil {
		log.Warn().Err(err).Str("item", item.ID).Msg("failed to record publication")
	}
}

func (s *Service) notify(ctx context.Context, snap settings.Settings, users []int64, msgID string, data map[string]interface{}) {
	if !snap.NotificationsEnabled || len(users) == 0 {
		return
	}
	text := locales.Msg(s.localizer, msgID, data)
	for _, id := range users {
		if err := s.notifier.SendDirectMessage(ctx, id, text); err != nil {
			log.Warn().Err(err).Int64("user", id).Msg("failed to notify submitter")
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
