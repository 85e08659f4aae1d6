package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"chanqueue-bot/bot"
	"chanqueue-bot/internal/auth"
	"chanqueue-bot/internal/config"
	"chanqueue-bot/internal/database"
	"chanqueue-bot/internal/digest"
	"chanqueue-bot/internal/handlers"
	"chanqueue-bot/internal/health"
	"chanqueue-bot/internal/locales"
	"chanqueue-bot/internal/logging"
	"chanqueue-bot/internal/publisher"
	"chanqueue-bot/internal/queue"
	"chanqueue-bot/internal/scheduler"
	"chanqueue-bot/internal/settings"
	"chanqueue-bot/internal/storage"

	"github.com/getsentry/sentry-go"
	"github.com/mymmrac/telego"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bot",
	RunE:  runBot,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runBot(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	logging.Setup(cfg.LogLevel, cfg.AppEnv == "development")

	if err := locales.Init(cfg.DefaultLanguage); err != nil {
		return fmt.Errorf("init locales: %w", err)
	}

	err = sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      cfg.AppEnv,
		Release:          cfg.Version,
		EnableTracing:    true,
		TracesSampleRate: 1.0,
		Debug:            cfg.Debug,
	})
	if err != nil {
		return fmt.Errorf("sentry.Init: %w", err)
	}
	defer sentry.Flush(2 * time.Second)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		sentry.CaptureException(err)
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("closing storage")
		}
	}()

	var postLog database.PostLogger = database.LogOnlyPostLogger{}
	if ms, ok := store.(*storage.MongoStore); ok {
		postLog = database.NewMongoPostLogger(ms.Database())
	}

	initial := settings.Defaults()
	initial.ChannelTarget = cfg.ChannelID
	if cfg.SettingsSeedFile != "" {
		seed, err := settings.LoadSeed(cfg.SettingsSeedFile)
		if err != nil {
			return err
		}
		if err := seed.Apply(&initial); err != nil {
			return fmt.Errorf("apply settings seed: %w", err)
		}
	}
	settingsMgr := settings.NewManager(store, cfg.Location, cfg.SlotTolerance, initial)
	if err := settingsMgr.Load(ctx); err != nil {
		return err
	}
	queueStore := queue.NewStore(store)
	if err := queueStore.Load(ctx); err != nil {
		return err
	}

	var tgBot *telego.Bot
	if cfg.Debug {
		tgBot, err = telego.NewBot(cfg.BotToken, telego.WithDefaultDebugLogger())
	} else {
		tgBot, err = telego.NewBot(cfg.BotToken, telego.WithDefaultLogger(false, false))
	}
	if err != nil {
		sentry.CaptureException(err)
		return fmt.Errorf("create telego bot: %w", err)
	}
	me, err := tgBot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("get bot info: %w", err)
	}
	log.Info().Str("username", me.Username).Int("operators", len(cfg.AllowedUsers)).Msg("bot authorized")

	tg := publisher.NewTelegram(tgBot)
	allowList := auth.NewAllowList(cfg.AllowedUsers...)

	sched, err := scheduler.New(scheduler.Deps{
		Queue:     queueStore,
		Settings:  settingsMgr,
		Publisher: tg,
		Notifier:  tg,
		PostLog:   postLog,
		Localizer: locales.Default(),
		Config:    scheduler.Config{MaxAttempts: cfg.MaxPublishAttempts},
	})
	if err != nil {
		return err
	}

	handler, err := handlers.NewMessageHandler(handlers.Deps{
		Bot:             tgBot,
		Queue:           queueStore,
		Settings:        settingsMgr,
		Scheduler:       sched,
		Publisher:       tg,
		AllowList:       allowList,
		MediaGroupDelay: cfg.MediaGroupDelay,
	})
	if err != nil {
		return err
	}

	updates, err := tgBot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}
	appBot, err := bot.New(bot.BotDeps{
		Bot:         tgBot,
		UpdatesChan: updates,
		Debug:       cfg.Debug,
		Handler:     handler,
		IsCommand:   handlers.IsCommand,
	})
	if err != nil {
		return err
	}

	var digestJob *digest.Digest
	if cfg.DigestSchedule != "" {
		digestJob, err = digest.New(digest.Deps{
			Schedule:  cfg.DigestSchedule,
			Queue:     queueStore,
			Settings:  settingsMgr,
			Forecast:  sched,
			Notifier:  tg,
			Operators: allowList.Operators(),
		})
		if err != nil {
			return err
		}
		digestJob.Start()
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		appBot.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		app := health.NewApp(healthSource{queue: queueStore, scheduler: sched}, cfg.Version)
		if err := health.Serve(ctx, app, ":"+cfg.Port); err != nil {
			log.Error().Err(err).Msg("health server stopped")
		}
	}()

	log.Info().Str("channel", settingsMgr.Snapshot().ChannelTarget).Int("queue", queueStore.Len()).Msg("bot started")
	<-ctx.Done()
	log.Info().Msg("shutting down")
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if n := handler.Shutdown(shutdownCtx); n > 0 {
		log.Info().Int("groups", n).Msg("pending media groups queued")
	}
	if digestJob != nil {
		digestJob.Stop(shutdownCtx)
	}
	if err := settingsMgr.Save(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("saving settings")
	}
	if err := queueStore.Save(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("saving queue")
	}
	log.Info().Msg("shutdown complete")
	return nil
}

type healthSource struct {
	queue     *queue.Store
	scheduler *scheduler.Service
}

func (h healthSource) QueueLength() int       { return h.queue.Len() }
func (h healthSource) QuarantinedCount() int  { return len(h.queue.Quarantined()) }
func (h healthSource) SchedulerState() string { return h.scheduler.State().String() }
