package config

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/julianstephens/salonbot/internal/constants"
	"github.com/julianstephens/salonbot/internal/keyring"
)

func withHome(t *testing.T, home string) {
	t.Helper()
	orig := userHomeDirFunc
	userHomeDirFunc = func() (string, error) { return home, nil }
	t.Cleanup(func() { userHomeDirFunc = orig })
}

func TestParseAdminIDs(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []string
		wantErr bool
	}{
		{name: "empty", raw: "", want: []string{}},
		{name: "single", raw: "111", want: []string{"111"}},
		{name: "spaces and blanks", raw: " 111, ,222 ,", want: []string{"111", "222"}},
		{name: "duplicates", raw: "111,222,111", want: []string{"111", "222"}},
		{name: "not a number", raw: "111,bob", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAdminIDs(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAdminIDs() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAdminID) {
					t.Errorf("error = %v, want ErrInvalidAdminID", err)
				}
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseAdminIDs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	withHome(t, "/home/salon")

	tests := []struct {
		in   string
		want string
	}{
		{in: "~", want: "/home/salon"},
		{in: "~/.config/salonbot/salonbot.db", want: "/home/salon/.config/salonbot/salonbot.db"},
		{in: "/var/lib/salonbot.db", want: "/var/lib/salonbot.db"},
		{in: "data/appointments.json", want: "data/appointments.json"},
	}
	for _, tt := range tests {
		got, err := ExpandPath(tt.in)
		if err != nil {
			t.Fatalf("ExpandPath(%q) error: %v", tt.in, err)
		}
		if got != filepath.FromSlash(tt.want) {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNew(t *testing.T) {
	withHome(t, "/home/salon")

	cfg, err := New(Params{Admins: "1,2", SlotCapacity: 1})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if cfg.Store != filepath.FromSlash("/home/salon/.config/salonbot/salonbot.db") {
		t.Errorf("Store = %q", cfg.Store)
	}
	if cfg.ConfigDir() != filepath.FromSlash("/home/salon/.config/salonbot") {
		t.Errorf("ConfigDir() = %q", cfg.ConfigDir())
	}
	if !cfg.IsRelational() {
		t.Error("default store should be relational")
	}

	admins := cfg.Admins()
	admins[0] = "999"
	if cfg.Admins()[0] != "1" {
		t.Error("Admins() must return a copy")
	}
}

func TestNew_ConnectionStringKeptVerbatim(t *testing.T) {
	withHome(t, "/home/salon")
	const dsn = "postgres://salon@localhost:5432/salon"

	cfg, err := New(Params{Store: dsn})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if cfg.Store != dsn {
		t.Errorf("Store = %q, want %q", cfg.Store, dsn)
	}
	if cfg.ConfigDir() != filepath.FromSlash("/home/salon/.config/salonbot") {
		t.Errorf("ConfigDir() = %q", cfg.ConfigDir())
	}
}

func TestNew_SecretStore(t *testing.T) {
	withHome(t, "/home/salon")

	cfg, err := New(Params{Store: SecretStore})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if cfg.Store != SecretStore || !cfg.IsRelational() {
		t.Errorf("Store = %q, relational = %v", cfg.Store, cfg.IsRelational())
	}
	if cfg.ConfigDir() != filepath.FromSlash("/home/salon/.config/salonbot") {
		t.Errorf("ConfigDir() = %q", cfg.ConfigDir())
	}
}

func TestNew_JSONStore(t *testing.T) {
	cfg, err := New(Params{Store: "/tmp/appointments.json"})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if cfg.IsRelational() {
		t.Error("json store reported as relational")
	}
}

func TestNew_Invalid(t *testing.T) {
	if _, err := New(Params{SlotCapacity: -1}); !errors.Is(err, ErrInvalidCapacity) {
		t.Errorf("negative capacity error = %v", err)
	}
	if _, err := New(Params{Admins: "x"}); !errors.Is(err, ErrInvalidAdminID) {
		t.Errorf("bad admin error = %v", err)
	}
}

func TestResolveToken(t *testing.T) {
	origEnv, origKeyring := getenvFunc, keyringGetFunc
	t.Cleanup(func() { getenvFunc, keyringGetFunc = origEnv, origKeyring })

	tests := []struct {
		name    string
		flag    string
		env     string
		stored  string
		kerr    error
		want    string
		wantErr error
	}{
		{name: "flag wins", flag: "flag", env: "env", stored: "ring", want: "flag"},
		{name: "env next", env: "env", stored: "ring", want: "env"},
		{name: "keyring last", stored: "ring", want: "ring"},
		{name: "nothing", kerr: keyring.ErrNotFound, wantErr: ErrNoToken},
		{name: "keyring broken", kerr: keyring.ErrKeyringUnavailable, wantErr: ErrNoToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			getenvFunc = func(key string) string {
				if key == constants.EnvToken {
					return tt.env
				}
				return ""
			}
			keyringGetFunc = func(keyring.Secret) (string, error) { return tt.stored, tt.kerr }

			got, err := ResolveToken(tt.flag)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ResolveToken() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveToken() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolveToken() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestServeAddr(t *testing.T) {
	if got := (Serve{}).Addr(); got != ":"+constants.DefaultPort {
		t.Errorf("Addr() = %q", got)
	}
	if got := (Serve{Port: "8080"}).Addr(); got != ":8080" {
		t.Errorf("Addr() = %q", got)
	}
}
