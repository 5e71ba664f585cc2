package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/grovetools/livesync/pkg/api"
	"github.com/grovetools/livesync/pkg/keypath"
	"github.com/grovetools/livesync/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"pgregory.net/rapid"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClient struct {
	mu      sync.Mutex
	unread  []api.Notification
	bySev   []api.Count
	read    []int64
	polls   int
	readErr error
	readAll []string
	dismiss []int64
}

func (c *fakeClient) setUnread(ids ...int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unread = nil
	for _, id := range ids {
		c.unread = append(c.unread, api.Notification{ID: id, Severity: api.SeverityInfo, Title: "n", ProjectID: "P1"})
	}
}

func (c *fakeClient) Unread(ctx context.Context) (*api.UnreadResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.polls++
	out := make([]api.Notification, len(c.unread))
	copy(out, c.unread)
	return &api.UnreadResponse{Notifications: out, Total: len(out), BySeverity: c.bySev}, nil
}

func (c *fakeClient) MarkRead(ctx context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.read = append(c.read, id)
	return c.readErr
}

func (c *fakeClient) Dismiss(ctx context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dismiss = append(c.dismiss, id)
	return nil
}

func (c *fakeClient) ReadAll(ctx context.Context, projectID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readAll = append(c.readAll, projectID)
	return nil
}

func (c *fakeClient) pollCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.polls
}

func ids(alerts []Alert) []int64 {
	out := make([]int64, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, a.Notification.ID)
	}
	return out
}

func TestPollDedup(t *testing.T) {
	client := &fakeClient{}
	feed, err := NewFeed(client, nil)
	require.NoError(t, err)
	ctx := context.Background()

	client.setUnread(3, 1, 2)
	alerts, err := feed.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids(alerts), "alerts are emitted in ascending id order")

	client.setUnread(2, 3, 4)
	alerts, err = feed.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{4}, ids(alerts))
	assert.Equal(t, int64(4), feed.LastSeenID())

	// An old id reappearing is never reported again.
	client.setUnread(1)
	alerts, err = feed.Poll(ctx)
	require.NoError(t, err)
	assert.Empty(t, alerts)
	assert.Equal(t, int64(4), feed.LastSeenID())
}

func TestDedupProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		client := &fakeClient{}
		feed, err := NewFeed(client, nil)
		if err != nil {
			t.Fatal(err)
		}

		seen := make(map[int64]bool)
		var last int64
		polls := rapid.IntRange(1, 10).Draw(t, "polls")
		for i := 0; i < polls; i++ {
			batch := rapid.SliceOfN(rapid.Int64Range(1, 50), 0, 8).Draw(t, "batch")
			client.setUnread(batch...)
			alerts, err := feed.Poll(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			for _, a := range alerts {
				id := a.Notification.ID
				if seen[id] {
					t.Fatalf("id %d reported twice", id)
				}
				if id <= last {
					t.Fatalf("id %d reported after %d", id, last)
				}
				seen[id] = true
				last = id
			}
			if feed.LastSeenID() < last {
				t.Fatalf("lastSeenId decreased")
			}
		}
	})
}

func TestIngest(t *testing.T) {
	client := &fakeClient{}
	var emitted []int64
	feed, err := NewFeed(client, nil, WithAlertHandler(func(a Alert) {
		emitted = append(emitted, a.Notification.ID)
	}))
	require.NoError(t, err)

	_, ok := feed.Ingest(api.Notification{ID: 5, Severity: api.SeverityError})
	assert.True(t, ok)
	_, ok = feed.Ingest(api.Notification{ID: 5})
	assert.False(t, ok)

	client.setUnread(4, 5, 6)
	_, err = feed.Poll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int64{5, 6}, emitted)
}

func TestMute(t *testing.T) {
	client := &fakeClient{}
	feed, err := NewFeed(client, []string{"P7", "*/info"})
	require.NoError(t, err)

	client.mu.Lock()
	client.unread = []api.Notification{
		{ID: 1, ProjectID: "P7", Severity: api.SeverityError},
		{ID: 2, ProjectID: "P1", Severity: api.SeverityInfo},
		{ID: 3, ProjectID: "P1", Severity: api.SeverityWarning},
	}
	client.mu.Unlock()

	alerts, err := feed.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, ids(alerts))
	assert.Equal(t, int64(3), feed.LastSeenID(), "muted notifications still advance the cursor")
}

func TestCursorPersistence(t *testing.T) {
	prefs := state.Open(t.TempDir() + "/prefs.yml")
	client := &fakeClient{}

	feed, err := NewFeed(client, nil, WithCursorStore(prefs))
	require.NoError(t, err)
	client.setUnread(10, 11)
	_, err = feed.Poll(context.Background())
	require.NoError(t, err)

	// A new process starts from the persisted cursor.
	restarted, err := NewFeed(client, nil, WithCursorStore(state.Open(prefs.Path())))
	require.NoError(t, err)
	assert.Equal(t, int64(11), restarted.LastSeenID())
	alerts, err := restarted.Poll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, alerts)

	restarted.ResetCursor()
	alerts, err = restarted.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 11}, ids(alerts))
}

func TestPublishesCounts(t *testing.T) {
	store := keypath.New()
	client := &fakeClient{bySev: []api.Count{{Severity: api.SeverityError, Count: 2}, {Severity: api.SeverityInfo, Count: 1}}}
	client.setUnread(1, 2, 3)
	feed, err := NewFeed(client, nil, WithStore(store))
	require.NoError(t, err)

	_, err = feed.Poll(context.Background())
	require.NoError(t, err)

	v, _ := store.Get(PathUnread)
	assert.Equal(t, 3, v)
	assert.Equal(t, map[string]interface{}{"error": 2, "info": 1}, store.GetMap(PathBySeverity))
	v, _ = store.Get(PathLastSeen)
	assert.Equal(t, int64(3), v)

	feed.SetUnreadCount(9)
	v, _ = store.Get(PathUnread)
	assert.Equal(t, 9, v)
}

func TestStartStop(t *testing.T) {
	client := &fakeClient{}
	client.setUnread(1)
	var mu sync.Mutex
	var emitted []int64
	feed, err := NewFeed(client, nil, WithAlertHandler(func(a Alert) {
		mu.Lock()
		emitted = append(emitted, a.Notification.ID)
		mu.Unlock()
	}))
	require.NoError(t, err)

	feed.Start(context.Background(), 5*time.Millisecond)
	require.Eventually(t, func() bool { return client.pollCount() >= 3 }, time.Second, time.Millisecond)
	feed.Stop()
	feed.Stop()
	feed.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{1}, emitted)
}

func TestActions(t *testing.T) {
	client := &fakeClient{}
	feed, err := NewFeed(client, nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, feed.MarkRead(ctx, 3))
	require.NoError(t, feed.MarkRead(ctx, -1), "local alerts are never sent")
	require.NoError(t, feed.Dismiss(ctx, 4))
	require.NoError(t, feed.ReadAll(ctx, "P1"))

	assert.Equal(t, []int64{3}, client.read)
	assert.Equal(t, []int64{4}, client.dismiss)
	assert.Equal(t, []string{"P1"}, client.readAll)
}
