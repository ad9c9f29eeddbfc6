package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/julianstephens/salonbot/internal/catalog"
	"github.com/julianstephens/salonbot/internal/models"
)

func TestWebhook_Notify(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if r.Header.Get("X-Salonbot-Secret") != "test-secret" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("Unauthorized"))
			return
		}
		var payload WebhookPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if payload.Text == "fail" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if payload.AdminID != "100" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	tests := []struct {
		name    string
		secret  string
		text    string
		wantErr bool
	}{
		{"success", "test-secret", "hello", false},
		{"missing secret", "", "hello", true},
		{"wrong secret", "wrong-secret", "hello", true},
		{"server error", "test-secret", "fail", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &Webhook{URL: server.URL, Secret: tt.secret}
			err := w.Notify(context.Background(), "100", tt.text)
			if (err != nil) != tt.wantErr {
				t.Errorf("Notify() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWebhook_Unauthorized_IncludesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("Unauthorized"))
	}))
	defer server.Close()

	err := (&Webhook{URL: server.URL}).Notify(context.Background(), "1", "hi")
	if err == nil || !strings.Contains(err.Error(), "401") || !strings.Contains(err.Error(), "Unauthorized") {
		t.Errorf("error = %v", err)
	}
}

type recording struct {
	mu   sync.Mutex
	seen []string
	fail map[string]bool
}

func (r *recording) Notify(ctx context.Context, adminID, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, adminID+"|"+message)
	if r.fail[adminID] {
		return errors.New("chat not found")
	}
	return nil
}

func TestFanout_NotifiesEveryAdmin(t *testing.T) {
	rec := &recording{fail: map[string]bool{"200": true}}
	f := NewFanout(rec, []string{"100", "200", "300"}, catalog.Default())

	f.AppointmentCreated(context.Background(), models.Appointment{
		ID: 5, ServiceRef: "manicure", Date: "2026-10-16", Time: "10:30", ClientName: "Anna", ClientPhone: "5551234", Comment: "none",
	})
	f.Wait()

	if len(rec.seen) != 3 {
		t.Fatalf("got %d deliveries, want 3", len(rec.seen))
	}
	var admins []string
	for _, s := range rec.seen {
		admins = append(admins, strings.SplitN(s, "|", 2)[0])
		if !strings.Contains(s, "#5") || !strings.Contains(s, "Anna") || !strings.Contains(s, "5551234") {
			t.Errorf("message missing details: %q", s)
		}
	}
	sort.Strings(admins)
	if strings.Join(admins, ",") != "100,200,300" {
		t.Errorf("admins = %v", admins)
	}
}

func TestFanout_DoesNotBlockCaller(t *testing.T) {
	release := make(chan struct{})
	slow := Func(func(ctx context.Context, adminID, message string) error {
		<-release
		return nil
	})
	f := NewFanout(slow, []string{"1"}, catalog.Default())

	done := make(chan struct{})
	go func() {
		f.AppointmentCreated(context.Background(), models.Appointment{ID: 1})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("AppointmentCreated blocked on delivery")
	}
	close(release)
	f.Wait()
}

func TestFanout_Timeout(t *testing.T) {
	var gotErr error
	var mu sync.Mutex
	blocking := Func(func(ctx context.Context, adminID, message string) error {
		<-ctx.Done()
		mu.Lock()
		gotErr = ctx.Err()
		mu.Unlock()
		return ctx.Err()
	})
	f := NewFanout(blocking, []string{"1"}, catalog.Default())
	f.timeout = 10 * time.Millisecond

	f.AppointmentCreated(context.Background(), models.Appointment{ID: 1})
	f.Wait()

	mu.Lock()
	defer mu.Unlock()
	if !errors.Is(gotErr, context.DeadlineExceeded) {
		t.Errorf("ctx error = %v, want deadline exceeded", gotErr)
	}
}

func TestMulti_ReturnsFirstError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	ok := Func(func(context.Context, string, string) error { calls++; return nil })
	bad := Func(func(context.Context, string, string) error { calls++; return boom })

	if err := (Multi{ok, bad, ok}).Notify(context.Background(), "1", "x"); !errors.Is(err, boom) {
		t.Errorf("error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}
