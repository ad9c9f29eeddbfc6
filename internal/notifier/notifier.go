// Package notifier tells administrators about new appointments.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/julianstephens/salonbot/internal/catalog"
	"github.com/julianstephens/salonbot/internal/constants"
	"github.com/julianstephens/salonbot/internal/logger"
	"github.com/julianstephens/salonbot/internal/models"
	"github.com/julianstephens/salonbot/internal/utils"
)

// Notifier delivers one message to one administrator.
type Notifier interface {
	Notify(ctx context.Context, adminID, message string) error
}

type Func func(ctx context.Context, adminID, message string) error

func (f Func) Notify(ctx context.Context, adminID, message string) error { return f(ctx, adminID, message) }

// Log writes notifications to the application log. It backs the console
// transport, which has no remote recipients.
type Log struct{}

func (Log) Notify(_ context.Context, adminID, message string) error {
	logger.Info("Admin notification", "admin", adminID, "message", message)
	return nil
}

// Multi sends through every notifier and returns the first error.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, adminID, message string) error {
	var first error
	for _, n := range m {
		if err := n.Notify(ctx, adminID, message); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type WebhookPayload struct {
	AdminID string `json:"admin_id"`
	Text    string `json:"text"`
}

// Webhook posts each notification as JSON to a fixed URL.
type Webhook struct {
	URL    string
	Secret string
	Client *http.Client
}

func (w *Webhook) Notify(ctx context.Context, adminID, message string) error {
	jsonData, err := json.Marshal(WebhookPayload{AdminID: adminID, Text: message})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if w.Secret != "" {
		req.Header.Set("X-Salonbot-Secret", w.Secret)
	}

	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
	return fmt.Errorf("notification failed with status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
}

// Fanout notifies every administrator of each committed appointment. Each
// delivery runs in its own goroutine bounded by a timeout; failures are logged.
type Fanout struct {
	notifier Notifier
	admins   []string
	catalog  *catalog.Catalog
	timeout  time.Duration
	wg       sync.WaitGroup
}

func NewFanout(n Notifier, admins []string, cat *catalog.Catalog) *Fanout {
	return &Fanout{notifier: n, admins: admins, catalog: cat, timeout: constants.NotifyTimeout}
}

// AppointmentCreated satisfies allocator.Listener. It returns without waiting
// for delivery.
func (f *Fanout) AppointmentCreated(_ context.Context, a models.Appointment) {
	msg := Message(f.catalog, a)
	for _, admin := range f.admins {
		f.wg.Add(1)
		go func(admin string) {
			defer f.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
			defer cancel()
			if err := f.notifier.Notify(ctx, admin, msg); err != nil {
				logger.Warn("Failed to notify admin", "admin", admin, "appointment", a.ID, "error", err)
			}
		}(admin)
	}
}

// Wait blocks until in-flight deliveries finish.
func (f *Fanout) Wait() {
	f.wg.Wait()
}

// Message is the text administrators receive for a new appointment.
func Message(cat *catalog.Catalog, a models.Appointment) string {
	return fmt.Sprintf("🔔 New appointment #%d!\n\nService: %s\nDate: %s\nTime: %s\nName: %s\nPhone: %s\nComment: %s",
		a.ID, cat.ServiceName(a.ServiceRef), utils.DisplayDate(a.Date), a.Time, a.ClientName, a.ClientPhone, a.Comment)
}
