package system

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/julianstephens/salonbot/internal/allocator"
	"github.com/julianstephens/salonbot/internal/bot"
	"github.com/julianstephens/salonbot/internal/cli"
	"github.com/julianstephens/salonbot/internal/config"
	"github.com/julianstephens/salonbot/internal/constants"
	"github.com/julianstephens/salonbot/internal/health"
	"github.com/julianstephens/salonbot/internal/lockfile"
	"github.com/julianstephens/salonbot/internal/logger"
	"github.com/julianstephens/salonbot/internal/notifier"
	"github.com/julianstephens/salonbot/internal/ratelimit"
	"github.com/julianstephens/salonbot/internal/telegram"
)

var newTelegramClient = telegram.New

type ServeCmd struct {
	Token         string        `help:"Telegram bot token (falls back to the OS keyring)." env:"TELEGRAM_TOKEN"`
	Port          string        `help:"Port for the keep-alive HTTP server." env:"PORT" default:"5000"`
	RedisURL      string        `name:"redis-url" help:"Redis URL for shared rate limiting (in-memory when empty)." env:"REDIS_URL"`
	RateLimit     int           `name:"rate-limit" help:"Updates allowed per user per window (0 disables)." default:"30"`
	RateWindow    time.Duration `name:"rate-window" help:"Rate limit window." default:"1m"`
	NotifyWebhook string        `name:"notify-webhook" help:"Also post admin notifications to this URL." env:"SALONBOT_NOTIFY_WEBHOOK"`
	NotifySecret  string        `name:"notify-secret" help:"Shared secret sent with webhook notifications." env:"SALONBOT_NOTIFY_SECRET"`
	SessionTTL    time.Duration `name:"session-ttl" help:"Discard conversations idle for this long (0 keeps them)." default:"30m"`
	Lockfile      string        `help:"Lockfile path (defaults to the config directory)."`

	cli.EventFlags `embed:""`
}

func (c *ServeCmd) settings(ctx *cli.Context) config.Serve {
	lock := c.Lockfile
	if lock == "" {
		lock = filepath.Join(ctx.Config.ConfigDir(), constants.LockfileName)
	}
	return config.Serve{
		Token:         c.Token,
		Port:          c.Port,
		RedisURL:      c.RedisURL,
		RateLimit:     c.RateLimit,
		RateWindow:    c.RateWindow,
		WebhookURL:    c.NotifyWebhook,
		WebhookSecret: c.NotifySecret,
		SessionTTL:    c.SessionTTL,
		SweepEvery:    c.SessionTTL / 2,
		LockfilePath:  lock,
	}
}

func (c *ServeCmd) Run(ctx *cli.Context) error {
	if err := logger.Init(logger.Config{Debug: ctx.Config.Debug, ConfigDir: ctx.Config.ConfigDir(), Console: true}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serve(runCtx, ctx, c.settings(ctx), c.EventFlags)
}

func serve(runCtx context.Context, ctx *cli.Context, cfg config.Serve, ev cli.EventFlags) error {
	lock, err := lockfile.Acquire(cfg.LockfilePath, cfg.Port)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("Failed to release lockfile", "path", lock.Path(), "error", err)
		}
	}()

	if err := ctx.Store.Load(); err != nil {
		return fmt.Errorf("failed to load store: %w", err)
	}
	ctx.PerformAutomaticBackup()

	token, err := config.ResolveToken(cfg.Token)
	if err != nil {
		return err
	}
	client := newTelegramClient(token)
	me, err := client.GetMe(runCtx)
	if err != nil {
		return fmt.Errorf("failed to reach Telegram: %w", err)
	}
	logger.Info("Connected to Telegram", "bot", me.UserName)

	cat, err := ctx.Catalog()
	if err != nil {
		return err
	}
	if len(ctx.Config.Admins()) == 0 {
		logger.Warn("No administrators configured; new appointments will not be announced")
	}
	fanout := notifier.NewFanout(adminNotifier(client, cfg), ctx.Config.Admins(), cat)

	pub, err := ev.Publisher()
	if err != nil {
		return fmt.Errorf("failed to configure event publisher: %w", err)
	}
	defer func() {
		if err := pub.Close(); err != nil {
			logger.Warn("Failed to flush appointment events", "error", err)
		}
	}()

	limiter, closeLimiter, err := newLimiter(runCtx, cfg)
	if err != nil {
		return err
	}
	defer closeLimiter()

	rt, err := ctx.NewRuntime(cli.RuntimeOptions{
		Publisher:  pub,
		Listeners:  []allocator.Listener{fanout},
		SessionTTL: cfg.SessionTTL,
	})
	if err != nil {
		return err
	}
	go rt.Registry.Run(runCtx, cfg.SweepEvery)

	checks := []health.Check{{Name: "store", Check: ctx.Store.Ping}}
	if rc := ev.ReadyCheck(); rc != nil {
		checks = append(checks, health.Check{Name: "kafka", Check: rc})
	}
	healthErr := make(chan error, 1)
	go func() { healthErr <- health.Serve(runCtx, cfg.Addr(), health.NewMux(checks...)) }()

	b := bot.New(client, rt.Router, bot.WithLimiter(limiter))
	runErr := b.Run(runCtx)

	// Pending admin notifications finish before the process exits.
	fanout.Wait()

	if err := <-healthErr; err != nil && runErr == nil {
		runErr = err
	}
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	logger.Info("Bot stopped")
	return runErr
}

func adminNotifier(client *telegram.Client, cfg config.Serve) notifier.Notifier {
	direct := telegram.Notifier{Client: client}
	if cfg.WebhookURL == "" {
		return direct
	}
	return notifier.Multi{direct, &notifier.Webhook{URL: cfg.WebhookURL, Secret: cfg.WebhookSecret}}
}

// newLimiter prefers the shared Redis window and falls back to memory.
func newLimiter(ctx context.Context, cfg config.Serve) (ratelimit.Limiter, func(), error) {
	if cfg.RateLimit <= 0 {
		return ratelimit.Unlimited{}, func() {}, nil
	}
	window := cfg.RateWindow
	if window <= 0 {
		window = constants.DefaultRateWindow
	}

	if cfg.RedisURL != "" {
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		rdb, err := ratelimit.Dial(dialCtx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Rate limiting through Redis", "limit", cfg.RateLimit, "window", window)
		return ratelimit.NewRedis(rdb, cfg.RateLimit, window, constants.AppName+":rl"), func() { _ = rdb.Close() }, nil
	}

	mem := ratelimit.NewMemory(cfg.RateLimit, window)
	sweepCtx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(window)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				mem.Sweep()
			}
		}
	}()
	return mem, cancel, nil
}
