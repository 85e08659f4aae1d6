package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chanqueue-bot/internal/queue"
	"chanqueue-bot/pkg/telegoapi"

	"github.com/codeGROOVE-dev/retry"
	"github.com/mymmrac/telego"
	ta "github.com/mymmrac/telego/telegoapi"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/rs/zerolog/log"
)

const (
	defaultAttempts   = 4
	defaultRetryDelay = time.Second
	maxRetryDelay     = 30 * time.Second
	maxRetryAfter     = 2 * time.Minute
)

// Telegram implements ChannelPublisher and UserNotifier on top of the Bot API. Rate-limit replies
// (HTTP 429) are retried after the delay Telegram asks for.
type Telegram struct {
	bot        telegoapi.BotAPI
	attempts   uint
	retryDelay time.Duration
}

// Option configures Telegram.
type Option func(*Telegram)

// WithRetry overrides the number of attempts per call and the base delay between them.
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(t *Telegram) {
		if attempts > 0 {
			t.attempts = attempts
		}
		if delay > 0 {
			t.retryDelay = delay
		}
	}
}

// NewTelegram wraps bot.
func NewTelegram(bot telegoapi.BotAPI, opts ...Option) *Telegram {
	t := &Telegram{bot: bot, attempts: defaultAttempts, retryDelay: defaultRetryDelay}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func chatID(target string) (telego.ChatID, error) {
	t, err := ParseTarget(target)
	if err != nil {
		return telego.ChatID{}, err
	}
	if t.Username != "" {
		return tu.Username(t.Username), nil
	}
	return tu.ID(t.ID), nil
}

func (t *Telegram) SendPhoto(ctx context.Context, target, fileID, caption string) error {
	id, err := chatID(target)
	if err != nil {
		return err
	}
	params := tu.Photo(id, tu.FileFromID(fileID)).WithCaption(caption).WithParseMode(telego.ModeHTML)
	return t.call(ctx, "sendPhoto", func() error {
		_, err := t.bot.SendPhoto(ctx, params)
		return err
	})
}

func (t *Telegram) SendVideo(ctx context.Context, target, fileID, caption string) error {
	id, err := chatID(target)
	if err != nil {
		return err
	}
	params := tu.Video(id, tu.FileFromID(fileID)).WithCaption(caption).WithParseMode(telego.ModeHTML)
	return t.call(ctx, "sendVideo", func() error {
		_, err := t.bot.SendVideo(ctx, params)
		return err
	})
}

func (t *Telegram) SendAnimation(ctx context.Context, target, fileID, caption string) error {
	id, err := chatID(target)
	if err != nil {
		return err
	}
	params := tu.Animation(id, tu.FileFromID(fileID)).WithCaption(caption).WithParseMode(telego.ModeHTML)
	return t.call(ctx, "sendAnimation", func() error {
		_, err := t.bot.SendAnimation(ctx, params)
		return err
	})
}

func (t *Telegram) SendDocument(ctx context.Context, target, fileID, caption string) error {
	id, err := chatID(target)
	if err != nil {
		return err
	}
	params := tu.Document(id, tu.FileFromID(fileID)).WithCaption(caption).WithParseMode(telego.ModeHTML)
	return t.call(ctx, "sendDocument", func() error {
		_, err := t.bot.SendDocument(ctx, params)
		return err
	})
}

// SendMediaGroup sends items as one album with caption on the first element. Albums accept photos,
// videos and documents only, so gifs travel as documents.
func (t *Telegram) SendMediaGroup(ctx context.Context, target string, items []queue.Attachment, caption string) error {
	id, err := chatID(target)
	if err != nil {
		return err
	}
	media := make([]telego.InputMedia, 0, len(items))
	for i, a := range items {
		c := ""
		if i == 0 {
			c = caption
		}
		media = append(media, inputMedia(a, c))
	}
	params := tu.MediaGroup(id, media...)
	return t.call(ctx, "sendMediaGroup", func() error {
		_, err := t.bot.SendMediaGroup(ctx, params)
		return err
	})
}

func inputMedia(a queue.Attachment, caption string) telego.InputMedia {
	file := tu.FileFromID(a.FileID)
	switch a.Kind {
	case queue.KindPhoto:
		m := tu.MediaPhoto(file)
		if caption != "" {
			m = m.WithCaption(caption).WithParseMode(telego.ModeHTML)
		}
		return m
	case queue.KindVideo:
		m := tu.MediaVideo(file)
		if caption != "" {
			m = m.WithCaption(caption).WithParseMode(telego.ModeHTML)
		}
		return m
	default:
		m := tu.MediaDocument(file)
		if caption != "" {
			m = m.WithCaption(caption).WithParseMode(telego.ModeHTML)
		}
		return m
	}
}

// ChannelInfo fetches the chat and its member count. It doubles as a reachability check.
func (t *Telegram) ChannelInfo(ctx context.Context, target string) (ChannelInfo, error) {
	id, err := chatID(target)
	if err != nil {
		return ChannelInfo{}, err
	}
	var chat *telego.ChatFullInfo
	err = t.call(ctx, "getChat", func() error {
		var err error
		chat, err = t.bot.GetChat(ctx, &telego.GetChatParams{ChatID: id})
		return err
	})
	if err != nil {
		return ChannelInfo{}, err
	}

	info := ChannelInfo{ID: chat.ID, Title: chat.Title, Username: chat.Username, Type: chat.Type}
	count, err := t.bot.GetChatMemberCount(ctx, &telego.GetChatMemberCountParams{ChatID: id})
	if err != nil {
		log.Debug().Err(err).Str("target", target).Msg("member count unavailable")
	} else if count != nil {
		info.Members = *count
	}
	return info, nil
}

// SendDirectMessage sends an HTML message to a user.
func (t *Telegram) SendDirectMessage(ctx context.Context, userID int64, text string) error {
	params := tu.Message(tu.ID(userID), text).WithParseMode(telego.ModeHTML)
	return t.call(ctx, "sendMessage", func() error {
		_, err := t.bot.SendMessage(ctx, params)
		return err
	})
}

func (t *Telegram) call(ctx context.Context, method string, fn func() error) error {
	err := retry.Do(
		func() error {
			err := fn()
			if wait, ok := RetryAfter(err); ok {
				log.Warn().Str("method", method).Dur("retry_after", wait).Msg("rate limited by Telegram")
				if serr := sleep(ctx, wait); serr != nil {
					return retry.Unrecoverable(serr)
				}
			}
			return err
		},
		retry.Attempts(t.attempts),
		retry.Delay(t.retryDelay),
		retry.MaxDelay(maxRetryDelay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			log.Debug().Str("method", method).Uint("attempt", n).Err(err).Msg("retrying Telegram call")
		}),
		retry.RetryIf(IsRetryable),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

// RetryAfter extracts the delay requested by a 429 reply.
func RetryAfter(err error) (time.Duration, bool) {
	var apiErr *ta.Error
	if !errors.As(err, &apiErr) || apiErr.ErrorCode != 429 {
		return 0, false
	}
	wait := time.Second
	if apiErr.Parameters != nil && apiErr.Parameters.RetryAfter > 0 {
		wait = time.Duration(apiErr.Parameters.RetryAfter) * time.Second
	}
	if wait > maxRetryAfter {
		wait = maxRetryAfter
	}
	return wait, true
}

// IsRetryable reports whether a failed call may succeed when repeated: rate limits, server errors
// and transport failures are retried, other API rejections are not.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *ta.Error
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode == 429 || apiErr.ErrorCode >= 500
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
