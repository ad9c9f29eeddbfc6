package system

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alecthomas/kong"

	"github.com/julianstephens/salonbot/internal/cli"
	"github.com/julianstephens/salonbot/internal/config"
	"github.com/julianstephens/salonbot/internal/constants"
	"github.com/julianstephens/salonbot/internal/notifier"
	"github.com/julianstephens/salonbot/internal/ratelimit"
	"github.com/julianstephens/salonbot/internal/storage/sqlite"
	"github.com/julianstephens/salonbot/internal/telegram"
)

func fakeTelegram(t *testing.T, polled chan<- struct{}) *httptest.Server {
	t.Helper()
	var once atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Salon","username":"salon_bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			if once.CompareAndSwap(false, true) {
				close(polled)
			}
			select {
			case <-r.Context().Done():
			case <-time.After(20 * time.Millisecond):
			}
			_, _ = w.Write([]byte(`{"ok":true,"result":[]}`))
		default:
			_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestServe_StartsAndStopsCleanly(t *testing.T) {
	polled := make(chan struct{})
	srv := fakeTelegram(t, polled)

	orig := newTelegramClient
	newTelegramClient = func(token string, opts ...telegram.Option) *telegram.Client {
		return orig(token, append(opts, telegram.WithBaseURL(srv.URL))...)
	}
	t.Cleanup(func() { newTelegramClient = orig })

	dir := t.TempDir()
	store := sqlite.NewStore(filepath.Join(dir, "salonbot.db"))
	if err := store.Init(); err != nil {
		t.Fatal(err)
	}
	store.Close()
	ctx := newTestContext(t, store)

	lockPath := filepath.Join(dir, "salonbot.lock")
	cfg := config.Serve{Token: "123:abc", Port: "0", RateLimit: 5, RateWindow: time.Minute, LockfilePath: lockPath}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(runCtx, ctx, cfg, cli.EventFlags{}) }()

	select {
	case <-polled:
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("bot never polled for updates")
	}
	if _, err := os.Stat(lockPath); err != nil {
		t.Errorf("lockfile not held while running: %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop after cancellation")
	}

	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Errorf("lockfile not released: %v", err)
	}
	mgr, _ := ctx.Backups()
	backups, err := mgr.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(backups) != 1 {
		t.Errorf("startup backups = %d, want 1", len(backups))
	}
}

func TestNewLimiter(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Serve
		want string
	}{
		{name: "disabled", cfg: config.Serve{RateLimit: 0}, want: "unlimited"},
		{name: "memory", cfg: config.Serve{RateLimit: 3, RateWindow: time.Second}, want: "memory"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, closeFn, err := newLimiter(context.Background(), tt.cfg)
			if err != nil {
				t.Fatal(err)
			}
			defer closeFn()
			switch l.(type) {
			case ratelimit.Unlimited:
				if tt.want != "unlimited" {
					t.Errorf("got Unlimited, want %s", tt.want)
				}
			case *ratelimit.Memory:
				if tt.want != "memory" {
					t.Errorf("got Memory, want %s", tt.want)
				}
			default:
				t.Errorf("unexpected limiter %T", l)
			}
		})
	}
}

func TestNewLimiter_BadRedisURL(t *testing.T) {
	if _, _, err := newLimiter(context.Background(), config.Serve{RateLimit: 3, RedisURL: "not-a-url"}); err == nil {
		t.Error("expected error for invalid redis url")
	}
}

func TestAdminNotifier(t *testing.T) {
	client := telegram.New("123:abc")

	if _, ok := adminNotifier(client, config.Serve{}).(telegram.Notifier); !ok {
		t.Error("expected direct Telegram notifier without a webhook")
	}
	multi, ok := adminNotifier(client, config.Serve{WebhookURL: "http://example.invalid/hook"}).(notifier.Multi)
	if !ok || len(multi) != 2 {
		t.Errorf("expected Telegram plus webhook, got %#v", multi)
	}
}

func TestServeSettings_DefaultLockfile(t *testing.T) {
	store := sqlite.NewStore(filepath.Join(t.TempDir(), "salonbot.db"))
	ctx := newTestContext(t, store)

	cfg := (&ServeCmd{SessionTTL: 10 * time.Minute}).settings(ctx)
	if cfg.LockfilePath != filepath.Join(ctx.Config.ConfigDir(), "salonbot.lock") {
		t.Errorf("LockfilePath = %q", cfg.LockfilePath)
	}
	if cfg.SweepEvery != 5*time.Minute {
		t.Errorf("SweepEvery = %v, want 5m", cfg.SweepEvery)
	}
}

func TestServeCmd_FlagDefaults(t *testing.T) {
	var root struct {
		Serve ServeCmd `cmd:""`
	}
	parser, err := kong.New(&root, kong.Vars{"kafka_topic": constants.DefaultKafkaTopic})
	if err != nil {
		t.Fatalf("kong.New: %v", err)
	}
	if _, err := parser.Parse([]string{"serve"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if root.Serve.SessionTTL != 30*time.Minute {
		t.Errorf("session-ttl default = %v, want 30m", root.Serve.SessionTTL)
	}
	if root.Serve.RateLimit != 30 || root.Serve.RateWindow != time.Minute {
		t.Errorf("rate limit defaults = %d per %v", root.Serve.RateLimit, root.Serve.RateWindow)
	}

	if _, err := parser.Parse([]string{"serve", "--session-ttl=0"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if root.Serve.SessionTTL != 0 {
		t.Errorf("--session-ttl=0 parsed as %v", root.Serve.SessionTTL)
	}
}
