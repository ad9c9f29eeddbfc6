package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/julianstephens/salonbot/internal/models"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafka_Publish(t *testing.T) {
	w := &fakeWriter{}
	k := &Kafka{writer: w, topic: "salon.test"}
	at := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	e := New(Rescheduled, "100", models.Appointment{ID: 7, Time: "14:00"}, at)

	if err := k.Publish(context.Background(), e); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(w.msgs))
	}
	msg := w.msgs[0]
	if msg.Topic != "salon.test" || string(msg.Key) != "7" {
		t.Errorf("topic/key = %q/%q", msg.Topic, msg.Key)
	}

	var got Event
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("payload is not json: %v", err)
	}
	if got.ID != e.ID || got.Type != Rescheduled || got.Appointment.Time != "14:00" {
		t.Errorf("decoded %+v", got)
	}

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers["event_id"] != e.ID || headers["event_type"] != string(Rescheduled) {
		t.Errorf("headers = %v", headers)
	}
}

func TestKafka_PublishError(t *testing.T) {
	boom := errors.New("broker down")
	k := &Kafka{writer: &fakeWriter{err: boom}, topic: "t"}
	err := k.Publish(context.Background(), New(Created, "1", models.Appointment{ID: 1}, time.Now()))
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want wrapped %v", err, boom)
	}
}

func TestNewKafka_RequiresBrokers(t *testing.T) {
	if _, err := NewKafka(" , ", "topic"); err == nil {
		t.Error("expected error for empty broker list")
	}
	if _, err := NewKafka("localhost:9092", ""); err == nil {
		t.Error("expected error for empty topic")
	}
}

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" a:1, ,b:2 ")
	if len(got) != 2 || got[0] != "a:1" || got[1] != "b:2" {
		t.Errorf("SplitBrokers = %v", got)
	}
}

func TestNew_ClonesAppointment(t *testing.T) {
	now := time.Now()
	a := models.Appointment{ID: 3}
	a.MarkCancelled(models.CancelledByAdmin, now)
	e := New(Cancelled, "9", a, now)
	*a.CancelledBy = models.CancelledByClient
	if *e.Appointment.CancelledBy != models.CancelledByAdmin {
		t.Error("event shares pointers with the source appointment")
	}
	if e.ID == "" {
		t.Error("event id not assigned")
	}
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	_ = r.Publish(context.Background(), Event{Type: Created})
	evs := r.Events()
	evs[0].Type = Cancelled
	if r.Events()[0].Type != Created {
		t.Error("Events returned shared slice")
	}
}

type stalledPublisher struct {
	Noop
	hadDeadline bool
}

func (p *stalledPublisher) Publish(ctx context.Context, _ Event) error {
	_, p.hadDeadline = ctx.Deadline()
	<-ctx.Done()
	return ctx.Err()
}

func TestWithTimeout(t *testing.T) {
	p := &stalledPublisher{}
	bounded := WithTimeout(p, 20*time.Millisecond)

	start := time.Now()
	err := bounded.Publish(context.Background(), New(Created, "1", models.Appointment{ID: 1}, start))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Publish error = %v, want deadline exceeded", err)
	}
	if !p.hadDeadline {
		t.Error("publisher saw no deadline")
	}
	if time.Since(start) > 2*time.Second {
		t.Error("Publish outlived its timeout")
	}

	if got := WithTimeout(p, 0); got != Publisher(p) {
		t.Errorf("WithTimeout(p, 0) = %#v, want p unchanged", got)
	}
}
