package keyring

import (
	"errors"
	"testing"

	gokeyring "github.com/zalando/go-keyring"
)

func TestSetAndGet(t *testing.T) {
	tests := []struct {
		name   string
		secret Secret
		value  string
	}{
		{name: "connection string", secret: ConnectionString, value: "postgres://salon@localhost:5432/salon?sslmode=disable"},
		{name: "bot token", secret: BotToken, value: "123456:ABC-DEF"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gokeyring.MockInit()

			if err := Set(tt.secret, "  "+tt.value+"\n"); err != nil {
				t.Fatalf("Set() failed: %v", err)
			}
			got, err := Get(tt.secret)
			if err != nil {
				t.Fatalf("Get() failed: %v", err)
			}
			if got != tt.value {
				t.Errorf("Get() = %q, want %q", got, tt.value)
			}
		})
	}
}

func TestSecretsAreIndependent(t *testing.T) {
	gokeyring.MockInit()

	if err := Set(BotToken, "token"); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if _, err := GetConnectionString(); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetConnectionString() error = %v, want ErrNotFound", err)
	}
}

func TestSetEmpty(t *testing.T) {
	gokeyring.MockInit()

	if err := SetConnectionString(" "); err == nil {
		t.Error("SetConnectionString(\" \") should return an error")
	}
}

func TestDelete(t *testing.T) {
	gokeyring.MockInit()

	if err := SetConnectionString("postgres://salon@localhost/salon"); err != nil {
		t.Fatalf("SetConnectionString() failed: %v", err)
	}
	if err := DeleteConnectionString(); err != nil {
		t.Fatalf("DeleteConnectionString() failed: %v", err)
	}
	if _, err := GetConnectionString(); !errors.Is(err, ErrNotFound) {
		t.Errorf("after delete, error = %v, want ErrNotFound", err)
	}
	if err := Delete(BotToken); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete(missing) error = %v, want ErrNotFound", err)
	}
}

func TestIsAvailable(t *testing.T) {
	gokeyring.MockInit()
	if !IsAvailable() {
		t.Error("mock keyring should be available")
	}

	gokeyring.MockInitWithError(errors.New("no dbus"))
	if IsAvailable() {
		t.Error("failing keyring should be unavailable")
	}
	if _, err := Get(BotToken); !errors.Is(err, ErrKeyringUnavailable) {
		t.Errorf("Get() error = %v, want ErrKeyringUnavailable", err)
	}
}

func TestSecretString(t *testing.T) {
	if BotToken.String() != "Telegram bot token" {
		t.Errorf("BotToken.String() = %q", BotToken.String())
	}
	if Secret("other").String() != "other" {
		t.Errorf("unknown secret String() = %q", Secret("other").String())
	}
}
