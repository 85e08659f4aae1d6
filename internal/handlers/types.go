package handlers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chanqueue-bot/internal/auth"
	"chanqueue-bot/internal/mediagroups"
	"chanqueue-bot/internal/publisher"
	"chanqueue-bot/internal/queue"
	"chanqueue-bot/internal/settings"
	"chanqueue-bot/pkg/telegoapi"

	"github.com/mymmrac/telego"
)

// CommandFunc handles one bot command.
type CommandFunc func(ctx context.Context, bot telegoapi.BotAPI, message telego.Message) error

// Command maps a command string to its description key and handler.
type Command struct {
	Command     string // the command without the slash, e.g. "start"
	Description string // locale key of the description shown in the Telegram menu
	Handler     CommandFunc
}

// Deps holds the dependencies of a MessageHandler.
type Deps struct {
	Bot             telegoapi.BotAPI
	Queue           *queue.Store
	Settings        *settings.Manager
	Scheduler       Scheduler
	Publisher       publisher.ChannelPublisher
	AllowList       *auth.AllowList
	MediaGroupDelay time.Duration
}

// MessageHandler handles operator messages: commands, media submissions and album parts.
type MessageHandler struct {
	bot         telegoapi.BotAPI
	queue       *queue.Store
	settings    *settings.Manager
	scheduler   Scheduler
	publisher   publisher.ChannelPublisher
	allowList   *auth.AllowList
	mediaGroups MediaGroupCollector

	// directPost holds the users whose next single media skips the queue (see /post).
	directPost sync.Map // map[int64]struct{}

	commands []Command
	now      func() time.Time
}

// NewMessageHandler creates a MessageHandler and its album collector.
func NewMessageHandler(deps Deps) (*MessageHandler, error) {
	switch {
	case deps.Bot == nil:
		return nil, fmt.Errorf("bot cannot be nil")
	case deps.Queue == nil:
		return nil, fmt.Errorf("queue store cannot be nil")
	case deps.Settings == nil:
		return nil, fmt.Errorf("settings manager cannot be nil")
	case deps.Scheduler == nil:
		return nil, fmt.Errorf("scheduler cannot be nil")
	case deps.Publisher == nil:
		return nil, fmt.Errorf("channel publisher cannot be nil")
	case deps.AllowList == nil:
		return nil, fmt.Errorf("allow-list cannot be nil")
	}

	h := &MessageHandler{
		bot:       deps.Bot,
		queue:     deps.Queue,
		settings:  deps.Settings,
		scheduler: deps.Scheduler,
		publisher: deps.Publisher,
		allowList: deps.AllowList,
		now:       time.Now,
	}
	h.mediaGroups = mediagroups.NewManager(deps.MediaGroupDelay, h.ProcessMediaGroup)

	h.commands = []Command{
		{Command: "start", Description: "CmdStartDesc", Handler: h.HandleStart},
		{Command: "help", Description: "CmdHelpDesc", Handler: h.HandleHelp},
		{Command: "status", Description: "CmdStatusDesc", Handler: h.HandleStatus},
		{Command: "schedule", Description: "CmdScheduleDesc", Handler: h.HandleSchedule},
		{Command: "checktime", Description: "CmdCheckTimeDesc", Handler: h.HandleCheckTime},
		{Command: "queue", Description: "CmdQueueDesc", Handler: h.HandleQueue},
		{Command: "interval", Description: "CmdIntervalDesc", Handler: h.HandleInterval},
		{Command: "settime", Description: "CmdSetTimeDesc", Handler: h.HandleSetTime},
		{Command: "days", Description: "CmdDaysDesc", Handler: h.HandleDays},
		{Command: "startdate", Description: "CmdStartDateDesc", Handler: h.HandleStartDate},
		{Command: "clearstart", Description: "CmdClearStartDesc", Handler: h.HandleClearStart},
		{Command: "toggle", Description: "CmdToggleDesc", Handler: h.HandleTogglePosting},
		{Command: "toggletime", Description: "CmdToggleTimeDesc", Handler: h.HandleToggleWindow},
		{Command: "toggledays", Description: "CmdToggleDaysDesc", Handler: h.HandleToggleDays},
		{Command: "toggleexact", Description: "CmdToggleExactDesc", Handler: h.HandleToggleExact},
		{Command: "togglenotify", Description: "CmdToggleNotifyDesc", Handler: h.HandleToggleNotify},
		{Command: "setchannel", Description: "CmdSetChannelDesc", Handler: h.HandleSetChannel},
		{Command: "channel", Description: "CmdChannelDesc", Handler: h.HandleChannel},
		{Command: "title", Description: "CmdTitleDesc", Handler: h.HandleTitle},
		{Command: "settitle", Description: "CmdSetTitleDesc", Handler: h.HandleSetTitle},
		{Command: "clear", Description: "CmdClearDesc", Handler: h.HandleClear},
		{Command: "remove", Description: "CmdRemoveDesc", Handler: h.HandleRemove},
		{Command: "random", Description: "CmdRandomDesc", Handler: h.HandleRandom},
		{Command: "postnow", Description: "CmdPostNowDesc", Handler: h.HandlePostNow},
		{Command: "postfile", Description: "CmdPostFileDesc", Handler: h.HandlePostFile},
		{Command: "postall", Description: "CmdPostAllDesc", Handler: h.HandlePostAll},
		{Command: "post", Description: "CmdPostDesc", Handler: h.HandlePost},
		{Command: "retryfailed", Description: "CmdRetryFailedDesc", Handler: h.HandleRetryFailed},
	}
	return h, nil
}

// GetCommandHandler returns the handler of command, or nil if it is unknown.
func (h *MessageHandler) GetCommandHandler(command string) CommandFunc {
	for _, cmd := range h.commands {
		if cmd.Command == command {
			return cmd.Handler
		}
	}
	return nil
}

// Commands returns the registered commands.
func (h *MessageHandler) Commands() []Command {
	return append([]Command(nil), h.commands...)
}

// IsAllowed reports whether user may operate the bot.
func (h *MessageHandler) IsAllowed(user *telego.User) bool {
	return user != nil && h.allowList.IsAllowed(user.ID)
}

// Shutdown finalizes albums that are still being collected.
func (h *MessageHandler) Shutdown(ctx context.Context) int {
	return h.mediaGroups.Shutdown(ctx)
}
