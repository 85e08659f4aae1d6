// Package bot runs the Telegram update loop and routes operator messages to the handlers.
package bot

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"chanqueue-bot/pkg/telegoapi"

	"github.com/getsentry/sentry-go"
	"github.com/mymmrac/telego"
	"github.com/rs/zerolog/log"
	"go.uber.org/ratelimit"
)

// processingTimeout bounds the handling of a single update.
const processingTimeout = 30 * time.Second

// UpdateHandler handles routed operator messages.
type UpdateHandler interface {
	IsAllowed(user *telego.User) bool
	HandleDenied(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error
	HandleCommand(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error
	HandleMedia(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error
}

// Bot wraps the update loop.
type Bot struct {
	bot         telegoapi.BotAPI
	updatesChan <-chan telego.Update
	debug       bool
	handler     UpdateHandler
	isCommand   func(text string) bool
	ratelimiter ratelimit.Limiter
}

// BotDeps holds the dependencies required by the Bot.
type BotDeps struct {
	Bot         telegoapi.BotAPI
	UpdatesChan <-chan telego.Update
	Debug       bool
	Handler     UpdateHandler
	IsCommand   func(text string) bool
}

// New creates a new Bot instance from its dependencies.
func New(deps BotDeps) (*Bot, error) {
	if deps.Bot == nil {
		return nil, fmt.Errorf("telego bot (BotAPI) instance cannot be nil")
	}
	if deps.Handler == nil {
		return nil, fmt.Errorf("message handler cannot be nil")
	}
	if deps.UpdatesChan == nil {
		return nil, fmt.Errorf("updates channel cannot be nil")
	}
	if deps.IsCommand == nil {
		return nil, fmt.Errorf("command detector cannot be nil")
	}
	return &Bot{
		bot:         deps.Bot,
		updatesChan: deps.UpdatesChan,
		debug:       deps.Debug,
		handler:     deps.Handler,
		isCommand:   deps.IsCommand,
		ratelimiter: ratelimit.New(20),
	}, nil
}

// processUpdate routes one update. Panics are recovered and reported.
func (b *Bot) processUpdate(ctx context.Context, update telego.Update) {
	b.ratelimiter.Take()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("stack", string(debug.Stack())).Int("update_id", update.UpdateID).Msg("panic recovered in processUpdate")
			sentry.CurrentHub().Recover(r)
			sentry.Flush(2 * time.Second)
		}
	}()

	if update.Message == nil {
		if b.debug {
			log.Debug().Int("update_id", update.UpdateID).Msg("ignoring non-message update")
		}
		return
	}
	message := *update.Message
	if message.From == nil {
		log.Debug().Int("message_id", message.MessageID).Int64("chat_id", message.Chat.ID).Msg("ignoring message without sender")
		return
	}

	processingCtx, cancel := context.WithTimeout(ctx, processingTimeout)
	defer cancel()

	var (
		kind string
		err  error
	)
	switch {
	case !b.handler.IsAllowed(message.From):
		kind = "denied"
		err = b.handler.HandleDenied(processingCtx, b.bot, message)
	case b.isCommand(message.Text):
		kind = "command"
		err = b.handler.HandleCommand(processingCtx, b.bot, message)
	default:
		kind = "media"
		err = b.handler.HandleMedia(processingCtx, b.bot, message)
	}

	logger := log.With().Str("kind", kind).Int64("user_id", message.From.ID).Int("message_id", message.MessageID).Logger()
	if err != nil {
		logger.Error().Err(err).Msg("handler error")
		sentry.CaptureException(fmt.Errorf("%s handler (user %d): %w", kind, message.From.ID, err))
		return
	}
	if b.debug {
		logger.Debug().Msg("update handled")
	}
}

// Start processes updates until ctx is done or the updates channel closes.
func (b *Bot) Start(ctx context.Context) {
	log.Info().Msg("listening for updates")

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("context done, stopping update processing")
			return
		case update, ok := <-b.updatesChan:
			if !ok {
				log.Info().Msg("updates channel closed")
				return
			}
			wg.Add(1)
			go func(up telego.Update) {
				defer wg.Done()
				b.processUpdate(ctx, up)
			}(update)
		}
	}
}
