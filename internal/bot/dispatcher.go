package bot

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/julianstephens/salonbot/internal/logger"
)

// dispatcher runs one worker per chat so updates from one chat are handled
// in arrival order while different chats proceed in parallel.
type dispatcher struct {
	mu      sync.Mutex
	workers map[int64]chan tgbotapi.Update
	inbox   int
	idle    time.Duration
	handle  func(ctx context.Context, u tgbotapi.Update)
	closed  bool
	wg      sync.WaitGroup
}

func newDispatcher(inbox int, idle time.Duration, handle func(context.Context, tgbotapi.Update)) *dispatcher {
	return &dispatcher{
		workers: map[int64]chan tgbotapi.Update{},
		inbox:   inbox,
		idle:    idle,
		handle:  handle,
	}
}

// submit and close are called from the polling goroutine only.
func (d *dispatcher) submit(ctx context.Context, chatID int64, u tgbotapi.Update) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	ch, ok := d.workers[chatID]
	if !ok {
		ch = make(chan tgbotapi.Update, d.inbox)
		d.workers[chatID] = ch
		d.wg.Add(1)
		// Workers outlive the polling context so queued updates still get replies.
		go d.work(context.WithoutCancel(ctx), chatID, ch)
	}
	select {
	case ch <- u:
		d.mu.Unlock()
		return
	default:
	}
	d.mu.Unlock()

	// A full inbox keeps its worker alive, so the blocking send below always
	// has a reader.
	select {
	case ch <- u:
	case <-ctx.Done():
	}
}

func (d *dispatcher) work(ctx context.Context, chatID int64, ch chan tgbotapi.Update) {
	defer d.wg.Done()
	timer := time.NewTimer(d.idle)
	defer timer.Stop()

	for {
		select {
		case u, ok := <-ch:
			if !ok {
				return
			}
			d.safeHandle(ctx, chatID, u)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(d.idle)
		case <-timer.C:
			d.mu.Lock()
			if len(ch) == 0 {
				delete(d.workers, chatID)
				d.mu.Unlock()
				return
			}
			d.mu.Unlock()
			timer.Reset(d.idle)
		}
	}
}

func (d *dispatcher) safeHandle(ctx context.Context, chatID int64, u tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Recovered from panic while handling update", "chat", chatID, "update", u.UpdateID, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	d.handle(ctx, u)
}

func (d *dispatcher) active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.workers)
}

// close stops accepting updates. Workers drain their inboxes and exit.
func (d *dispatcher) close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for id, ch := range d.workers {
		close(ch)
		delete(d.workers, id)
	}
}

// wait blocks until every worker has exited.
func (d *dispatcher) wait() {
	d.wg.Wait()
}
