package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ducth/stallbot/internal/approval"
	"github.com/ducth/stallbot/internal/browser"
	"github.com/ducth/stallbot/internal/channels/telegram"
	"github.com/ducth/stallbot/internal/config"
	"github.com/ducth/stallbot/internal/debounce"
	"github.com/ducth/stallbot/internal/digest"
	"github.com/ducth/stallbot/internal/engine"
	"github.com/ducth/stallbot/internal/meetuplog"
	"github.com/ducth/stallbot/internal/pipeline"
	"github.com/ducth/stallbot/internal/store"
	"github.com/ducth/stallbot/internal/telemetry"
)

// uiRef breaks the construction cycle between the approval coordinator
// (which needs a UI) and the Telegram bot (which needs the coordinator).
type uiRef struct {
	mu sync.Mutex
	ui approval.UI
}

func (r *uiRef) set(ui approval.UI) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ui = ui
}

func (r *uiRef) Present(ctx context.Context, req approval.Request) error {
	r.mu.Lock()
	ui := r.ui
	r.mu.Unlock()
	if ui == nil {
		return errors.New("approval ui not ready")
	}
	return ui.Present(ctx, req)
}

func runDaemon() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if cfg.Engine.APIKey == "" {
		slog.Error("STALLBOT_ENGINE_API_KEY is not set")
		os.Exit(1)
	}
	if cfg.Telegram.Token == "" || cfg.Telegram.AdminChatID == 0 {
		slog.Error("telegram not configured; run `stallbot onboard` and set STALLBOT_TELEGRAM_TOKEN")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTraces, err := telemetry.Setup(ctx, cfg.Telemetry, Version)
	if err != nil {
		slog.Error("telemetry setup failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTraces(flushCtx); err != nil {
			slog.Warn("trace flush failed", "error", err)
		}
	}()

	st, err := store.Open(cfg.DBPath())
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	products, err := config.LoadProducts(cfg.ProductConfigPath())
	if err != nil {
		slog.Error("failed to load product config", "error", err)
		os.Exit(1)
	}

	loc := cfg.Location()
	meetups := meetuplog.New(cfg.MeetupsPath(), loc)

	ref := &uiRef{}
	coord := approval.New(ref, cfg.Pipeline.ApprovalTimeout.Std())

	bot, err := telegram.New(cfg.Telegram, coord, products)
	if err != nil {
		slog.Error("failed to create telegram bot", "error", err)
		os.Exit(1)
	}
	ref.set(bot)

	var dig pipeline.DigestTicker
	if cfg.Digest.Enabled {
		d, err := digest.New(cfg.Digest.Cron, meetups, bot)
		if err != nil {
			slog.Error("invalid digest config", "error", err)
			os.Exit(1)
		}
		dig = d
	}

	if _, err := os.Stat(cfg.CookiesPath()); err != nil {
		slog.Error("no saved browser session; run `stallbot login` first", "path", cfg.CookiesPath())
		os.Exit(1)
	}
	sess := browser.NewSession(cfg.Browser, cfg.CookiesPath())
	if err := sess.Start(ctx); err != nil {
		slog.Error("failed to start browser session", "error", err)
		os.Exit(1)
	}
	defer sess.Close()

	driver, err := pipeline.New(cfg.Pipeline, pipeline.Deps{
		Store:     st,
		Scheduler: debounce.New(),
		Engine:    engine.NewClient(cfg.Engine, loc),
		Approver:  coord,
		Observer:  browser.NewObserver(sess, cfg.Browser.MaxThreads),
		Sender:    browser.NewSender(sess, cfg.Browser),
		Products:  products,
		Meetups:   meetups,
		Notifier:  bot,
		Digest:    dig,
		Location:  loc,
	})
	if err != nil {
		slog.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	if err := bot.Start(ctx); err != nil {
		slog.Error("failed to start telegram bot", "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := driver.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		return products.Watch(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return bot.Stop(stopCtx)
	})

	slog.Info("stallbot running", "version", Version, "data_dir", cfg.DataDir)
	if err := g.Wait(); err != nil {
		slog.Error("daemon exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("graceful shutdown complete")
}
