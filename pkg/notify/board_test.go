package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/grovetools/livesync/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyTimeouts(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 8*time.Second, p.Timeout(api.SeverityInfo))
	assert.Equal(t, 8*time.Second, p.Timeout(api.SeverityWarning))
	assert.Equal(t, 12*time.Second, p.Timeout(api.SeverityError))

	custom := Policy{BaseTimeout: 2 * time.Second, ErrorFactor: 2}
	assert.Equal(t, 4*time.Second, custom.Timeout(api.SeverityError))

	assert.Equal(t, 12*time.Second, Policy{}.Timeout(api.SeverityError), "zero policy falls back to defaults")
}

func TestLocalAlertKeysAreNegative(t *testing.T) {
	p := DefaultPolicy()
	a := p.LocalAlert(api.SeverityWarning, "Refresh failing", "")
	b := p.LocalAlert(api.SeverityInfo, "Live stream disconnected", "")

	assert.True(t, a.Local)
	assert.Less(t, a.Key(), int64(0))
	assert.NotEqual(t, a.Key(), b.Key())
}

type readRecorder struct {
	mu  sync.Mutex
	ids []int64
}

func (r *readRecorder) markRead(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
	return nil
}

func (r *readRecorder) get() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.ids...)
}

func TestAlertBoardTimeout(t *testing.T) {
	rec := &readRecorder{}
	board := NewAlertBoard(context.Background(), rec.markRead, nil)
	defer board.Close()

	board.Show(Alert{Notification: api.Notification{ID: 1}, Timeout: 10 * time.Millisecond})
	board.Show(Alert{Notification: api.Notification{ID: 2}, Timeout: time.Hour})
	board.Show(Alert{Notification: api.Notification{ID: 2}, Timeout: time.Hour})
	assert.Len(t, board.Visible(), 2)

	require.Eventually(t, func() bool { return len(board.Visible()) == 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return len(rec.get()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []int64{1}, rec.get(), "auto-dismiss marks read")
}

func TestAlertBoardDismissAndAct(t *testing.T) {
	rec := &readRecorder{}
	var changes int
	var mu sync.Mutex
	board := NewAlertBoard(context.Background(), rec.markRead, func([]Alert) {
		mu.Lock()
		changes++
		mu.Unlock()
	})

	p := DefaultPolicy()
	board.Show(p.NewAlert(api.Notification{ID: 7, Link: "P2", LinkType: "project"}))
	board.Show(p.NewAlert(api.Notification{ID: 8}))
	local := p.LocalAlert(api.SeverityInfo, "Live stream disconnected", "")
	board.Show(local)

	acted, ok := board.Act(7)
	require.True(t, ok)
	assert.Equal(t, "P2", acted.Notification.Link)

	assert.True(t, board.Dismiss(8))
	assert.False(t, board.Dismiss(8))
	assert.True(t, board.Dismiss(local.Key()))

	board.Close()
	assert.ElementsMatch(t, []int64{7, 8}, rec.get(), "local alerts are never marked read")
	assert.Empty(t, board.Visible())

	mu.Lock()
	assert.Equal(t, 6, changes)
	mu.Unlock()
}

func TestAlertBoardCloseStopsTimers(t *testing.T) {
	rec := &readRecorder{}
	board := NewAlertBoard(context.Background(), rec.markRead, nil)
	board.Show(Alert{Notification: api.Notification{ID: 1}, Timeout: 20 * time.Millisecond})
	board.Close()

	time.Sleep(40 * time.Millisecond)
	assert.Empty(t, rec.get())

	board.Show(Alert{Notification: api.Notification{ID: 2}, Timeout: time.Millisecond})
	assert.Empty(t, board.Visible(), "closed board ignores new alerts")
}
