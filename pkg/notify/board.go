package notify

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MarkReadFunc marks a notification read on the server.
type MarkReadFunc func(ctx context.Context, id int64) error

// AlertBoard tracks the visible alerts. Each alert disappears after its
// timeout unless dismissed or acted on first; every way out of the board marks
// a server notification read.
type AlertBoard struct {
	ctx      context.Context
	markRead MarkReadFunc
	onChange func([]Alert)

	mu      sync.Mutex
	entries map[int64]*boardEntry
	closed  bool
	wg      sync.WaitGroup
}

type boardEntry struct {
	alert   Alert
	shownAt time.Time
	timer   *time.Timer
}

// NewAlertBoard creates a board. markRead may be nil. onChange receives the
// visible alerts, oldest first, after every change.
func NewAlertBoard(ctx context.Context, markRead MarkReadFunc, onChange func([]Alert)) *AlertBoard {
	return &AlertBoard{
		ctx:      ctx,
		markRead: markRead,
		onChange: onChange,
		entries:  make(map[int64]*boardEntry),
	}
}

// Show makes an alert visible and arms its timeout. Showing a key that is
// already visible is a no-op.
func (b *AlertBoard) Show(a Alert) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	key := a.Key()
	if _, exists := b.entries[key]; exists {
		b.mu.Unlock()
		return
	}
	entry := &boardEntry{alert: a, shownAt: time.Now()}
	b.entries[key] = entry
	if a.Timeout > 0 {
		b.wg.Add(1)
		entry.timer = time.AfterFunc(a.Timeout, func() {
			defer b.wg.Done()
			b.remove(key, false)
		})
	}
	visible := b.visibleLocked()
	b.mu.Unlock()

	b.changed(visible)
}

// Dismiss removes an alert before its timeout.
func (b *AlertBoard) Dismiss(key int64) bool {
	_, ok := b.remove(key, true)
	return ok
}

// Act removes an alert because the user followed it. The alert is returned
// so the caller can navigate to its link.
func (b *AlertBoard) Act(key int64) (Alert, bool) {
	return b.remove(key, true)
}

// Visible returns the visible alerts, oldest first.
func (b *AlertBoard) Visible() []Alert {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.visibleLocked()
}

// Close cancels all pending timeouts and waits for in-flight mark-read calls.
func (b *AlertBoard) Close() {
	b.mu.Lock()
	b.closed = true
	for key, entry := range b.entries {
		if entry.timer != nil && entry.timer.Stop() {
			b.wg.Done()
		}
		delete(b.entries, key)
	}
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *AlertBoard) remove(key int64, stopTimer bool) (Alert, bool) {
	b.mu.Lock()
	entry, ok := b.entries[key]
	if !ok {
		b.mu.Unlock()
		return Alert{}, false
	}
	delete(b.entries, key)
	if stopTimer && entry.timer != nil && entry.timer.Stop() {
		b.wg.Done()
	}
	visible := b.visibleLocked()
	sendRead := !entry.alert.Local && b.markRead != nil && !b.closed
	if sendRead {
		b.wg.Add(1)
	}
	b.mu.Unlock()

	if sendRead {
		go func() {
			defer b.wg.Done()
			_ = b.markRead(b.ctx, entry.alert.Notification.ID)
		}()
	}
	b.changed(visible)
	return entry.alert, true
}

func (b *AlertBoard) visibleLocked() []Alert {
	entries := make([]*boardEntry, 0, len(b.entries))
	for _, e := range b.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].shownAt.Equal(entries[j].shownAt) {
			return entries[i].alert.Key() < entries[j].alert.Key()
		}
		return entries[i].shownAt.Before(entries[j].shownAt)
	})
	out := make([]Alert, len(entries))
	for i, e := range entries {
		out[i] = e.alert
	}
	return out
}

func (b *AlertBoard) changed(visible []Alert) {
	if b.onChange != nil {
		b.onChange(visible)
	}
}
