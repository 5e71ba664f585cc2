package reconcile

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/grovetools/livesync/errors"
	"github.com/grovetools/livesync/pkg/api"
	"github.com/grovetools/livesync/pkg/keypath"
	"github.com/grovetools/livesync/pkg/notify"
	"github.com/grovetools/livesync/pkg/snapshot"
	"github.com/grovetools/livesync/pkg/stream"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClient struct {
	mu       sync.Mutex
	calls    map[string]int
	gates    map[string]chan struct{}
	started  chan string
	err      error
	messages []snapshot.ConversationMessage
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		calls:   map[string]int{},
		gates:   map[string]chan struct{}{},
		started: make(chan string, 64),
	}
}

// gate makes Dashboard calls for id block until the returned func is called.
func (c *fakeClient) gate(id string) func() {
	ch := make(chan struct{})
	c.mu.Lock()
	c.gates[id] = ch
	c.mu.Unlock()
	return func() { close(ch) }
}

func (c *fakeClient) Dashboard(ctx context.Context, projectID string) (*snapshot.Dashboard, error) {
	c.mu.Lock()
	c.calls[projectID]++
	gate := c.gates[projectID]
	err := c.err
	c.mu.Unlock()

	select {
	case c.started <- projectID:
	default:
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return dashboardFor(projectID), nil
}

func (c *fakeClient) Conversation(ctx context.Context, projectID, taskID string) ([]snapshot.ConversationMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messages, nil
}

func (c *fakeClient) GitWatchURL(projectID string) string {
	return "http://test/api/project/" + projectID + "/git/watch"
}

func (c *fakeClient) TaskLiveURL(projectID, taskID string) string {
	return "http://test/api/project/" + projectID + "/task/" + taskID + "/live"
}

func (c *fakeClient) callCount(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[id]
}

func dashboardFor(id string) *snapshot.Dashboard {
	return &snapshot.Dashboard{
		Version:   snapshot.Version,
		ProjectID: id,
		Meta:      snapshot.Meta{Project: "project " + id, ProjectID: snapshot.ID(id)},
		Metrics:   snapshot.Metrics{Throughput: snapshot.Throughput{Done: 1, Total: 2, Percent: 50}},
		Waves:     []snapshot.Wave{},
	}
}

type fakeStreams struct {
	mu       sync.Mutex
	opened   []string
	closed   []string
	handlers map[string]stream.Handler
}

func newFakeStreams() *fakeStreams {
	return &fakeStreams{handlers: map[string]stream.Handler{}}
}

func (s *fakeStreams) Open(key, url string, handler stream.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = append(s.opened, key)
	s.handlers[key] = handler
}

func (s *fakeStreams) Close(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = append(s.closed, key)
}

func (s *fakeStreams) openedKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.opened...)
}

func (s *fakeStreams) closedKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.closed...)
}

func (s *fakeStreams) handler(key string) stream.Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handlers[key]
}

type fakePrefs struct {
	mu       sync.Mutex
	selected []string
}

func (p *fakePrefs) SetSelectedProject(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.selected = append(p.selected, id)
	return nil
}

type notices struct {
	mu     sync.Mutex
	alerts []notify.Alert
}

func (n *notices) add(a notify.Alert) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
}

func (n *notices) list() []notify.Alert {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Alert(nil), n.alerts...)
}

type fixture struct {
	r       *Reconciler
	store   *keypath.Store
	client  *fakeClient
	streams *fakeStreams
	prefs   *fakePrefs
	notices *notices
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store:   keypath.New(),
		client:  newFakeClient(),
		streams: newFakeStreams(),
		prefs:   &fakePrefs{},
		notices: &notices{},
	}
	base := []Option{
		WithInterval(time.Hour),
		WithLive(true),
		WithPrefs(f.prefs),
		WithNotice(f.notices.add),
		WithClock(func() time.Time { return time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC) }),
	}
	f.r = New(f.client, f.store, f.streams, append(base, opts...)...)

	ctx, cancel := context.WithCancel(context.Background())
	f.r.Start(ctx)
	t.Cleanup(func() {
		cancel()
		f.r.Stop()
		f.r.Wait()
	})
	return f
}

func (f *fixture) dashboardProject() string {
	return f.store.GetString(PathDashboard + ".projectId")
}

func TestTransitionSameIDIsNoop(t *testing.T) {
	f := newFixture(t)

	f.r.Transition("P1")
	f.r.Transition("P1")

	assert.Equal(t, []string{"project:P1"}, f.streams.openedKeys())
	assert.Equal(t, []string{"P1"}, f.prefs.selected)
	_, _, gen := f.r.Selected()
	assert.Equal(t, uint64(1), gen)
}

func TestTransitionFetchesImmediately(t *testing.T) {
	f := newFixture(t)

	f.r.Transition("P1")

	require.Eventually(t, func() bool { return f.dashboardProject() == "P1" },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, "project P1", f.store.GetString("dashboard.meta.project"))
	assert.Equal(t, "P1", f.store.GetString("selection.projectId"))
}

func TestTransitionClosesOldStream(t *testing.T) {
	f := newFixture(t)

	f.r.Transition("A")
	f.r.Transition("B")

	assert.Equal(t, []string{"project:A", "project:B"}, f.streams.openedKeys())
	assert.Equal(t, []string{"project:A"}, f.streams.closedKeys())
	assert.Equal(t, "project:B", f.r.StreamKey())
}

func TestTransitionWithoutLiveOpensNoStream(t *testing.T) {
	f := newFixture(t, WithLive(false))

	f.r.Transition("P1")
	assert.Empty(t, f.streams.openedKeys())
}

func TestApplyPollResultDiscardsStale(t *testing.T) {
	f := newFixture(t)

	f.r.Transition("A")
	_, _, genA := f.r.Selected()
	f.r.Transition("B")
	_, _, genB := f.r.Selected()

	assert.False(t, f.r.ApplyPollResult("A", genA, dashboardFor("A")))
	assert.NotEqual(t, "A", f.dashboardProject())

	assert.True(t, f.r.ApplyPollResult("B", genB, dashboardFor("B")))
	assert.Equal(t, "B", f.dashboardProject())
}

func TestApplyPollResultDiscardsEarlierGenerationOfSameID(t *testing.T) {
	f := newFixture(t)

	f.r.Transition("A")
	_, _, first := f.r.Selected()
	f.r.Transition("B")
	f.r.Transition("A")

	assert.False(t, f.r.ApplyPollResult("A", first, dashboardFor("A")))
}

func TestInFlightFetchForOldSelectionIsDiscarded(t *testing.T) {
	f := newFixture(t)

	var mu sync.Mutex
	var seen []string
	unsubscribe := f.store.Subscribe(PathDashboard, func(v any) {
		if m, ok := v.(map[string]any); ok {
			if id, ok := m["projectId"].(string); ok {
				mu.Lock()
				seen = append(seen, id)
				mu.Unlock()
			}
		}
	})
	defer unsubscribe()

	release := f.client.gate("A")
	f.r.Transition("A")
	require.Equal(t, "A", <-f.client.started)

	f.r.Transition("B")
	release()

	require.Eventually(t, func() bool { return f.dashboardProject() == "B" },
		time.Second, 5*time.Millisecond)
	f.r.Stop()
	f.r.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.NotContains(t, seen, "A")
}

func TestGitChangeMarksDirtyAndRefreshes(t *testing.T) {
	f := newFixture(t)

	f.r.Transition("P1")
	require.Eventually(t, func() bool { return f.dashboardProject() == "P1" },
		time.Second, 5*time.Millisecond)
	before := f.client.callCount("P1")

	handler := f.streams.handler("project:P1")
	require.NotNil(t, handler)
	handler(stream.Event{Key: "project:P1", Type: EventGitChange, Data: []byte(`{"type":"git-change","projectId":"P1"}`)})

	v, _ := f.store.Get(PathLiveGitDirty)
	assert.Equal(t, true, v)
	assert.Equal(t, "2026-10-18T12:00:00Z", f.store.GetString(PathLiveLastEventAt))
	require.Eventually(t, func() bool { return f.client.callCount("P1") > before },
		time.Second, 5*time.Millisecond)
}

func TestPollSnapshotWinsOverLiveOverlay(t *testing.T) {
	f := newFixture(t, WithInterval(time.Hour))

	f.r.Transition("P1")
	_, _, gen := f.r.Selected()

	ok := f.r.ApplyStreamEvent("P1", gen, stream.Event{Key: "project:P1", Type: EventGitChange, Data: []byte(`{"type":"git-change"}`)})
	require.True(t, ok)

	require.True(t, f.r.ApplyPollResult("P1", gen, dashboardFor("P1")))
	v, _ := f.store.Get(PathLiveGitDirty)
	assert.Equal(t, false, v)
}

func TestUnchangedRefreshClearsGitDirty(t *testing.T) {
	f := newFixture(t)

	f.r.Transition("P1")
	require.Eventually(t, func() bool { return f.dashboardProject() == "P1" },
		time.Second, 5*time.Millisecond)
	_, _, gen := f.r.Selected()

	require.True(t, f.r.ApplyStreamEvent("P1", gen, stream.Event{Key: "project:P1", Type: EventGitChange, Data: []byte(`{"type":"git-change"}`)}))

	// The refresh triggered by the git change returns the same dashboard.
	require.Eventually(t, func() bool {
		v, _ := f.store.Get(PathLiveGitDirty)
		return v == false
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "P1", f.dashboardProject())

	assert.False(t, f.r.ConfirmUnchanged("P0", gen))
}

func TestServerErrorPayloadOfOtherShapeIsIgnored(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	f := newFixture(t, WithLogger(logrus.NewEntry(logger)))

	f.r.Transition("P1")
	require.NoError(t, f.r.SelectTask("P1", "T9"))
	handler := f.streams.handler("task:P1/T9")
	handler(stream.Event{Key: "task:P1/T9", Data: []byte(`{"error":{"code":500}}`)})

	assert.Equal(t, "task:P1/T9", f.r.StreamKey())
	assert.Empty(t, f.notices.list())

	logged := false
	for _, entry := range hook.AllEntries() {
		if entry.Message == "Stream event payload did not decode" {
			logged = true
		}
	}
	assert.True(t, logged)
}

// Closing a stream waits for its handler, which takes the reconciler's lock.
// Switching projects while that handler runs must not deadlock.
func TestTransitionWhileHandlerRuns(t *testing.T) {
	store := keypath.New()
	client := newFakeClient()
	streams := &blockingStreams{fakeStreams: newFakeStreams()}
	r := New(client, store, streams, WithInterval(time.Hour), WithLive(true))
	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	defer func() {
		cancel()
		r.Stop()
		r.Wait()
	}()

	r.Transition("A")
	_, _, gen := r.Selected()

	streams.inHandler = make(chan struct{})
	streams.release = make(chan struct{})
	streams.closing = make(chan struct{})
	done := make(chan bool)
	go func() {
		streams.track(func() {
			done <- r.ApplyStreamEvent("A", gen, stream.Event{Key: "project:A", Type: EventConnected, Data: []byte(`{"type":"connected"}`)})
		})
	}()
	<-streams.inHandler

	switched := make(chan struct{})
	go func() {
		r.Transition("B")
		close(switched)
	}()
	<-streams.closing
	close(streams.release)

	select {
	case <-switched:
	case <-time.After(2 * time.Second):
		t.Fatal("transition blocked on the running handler")
	}
	<-done
	assert.Equal(t, "project:B", r.StreamKey())
}

// blockingStreams makes Close wait for a tracked handler, like stream.Manager.
type blockingStreams struct {
	*fakeStreams
	inHandler chan struct{}
	release   chan struct{}
	closing   chan struct{}
	once      sync.Once
	running   sync.WaitGroup
}

func (s *blockingStreams) track(fn func()) {
	s.running.Add(1)
	defer s.running.Done()
	close(s.inHandler)
	<-s.release
	fn()
}

func (s *blockingStreams) Close(key string) {
	if s.closing != nil {
		s.once.Do(func() { close(s.closing) })
	}
	s.running.Wait()
	s.fakeStreams.Close(key)
}

func TestApplyStreamEventGuards(t *testing.T) {
	f := newFixture(t)

	f.r.Transition("A")
	_, _, genA := f.r.Selected()
	f.r.Transition("B")
	_, _, genB := f.r.Selected()

	assert.False(t, f.r.ApplyStreamEvent("A", genA, stream.Event{Key: "project:A", Type: EventGitChange, Data: []byte(`{}`)}))
	assert.False(t, f.r.ApplyStreamEvent("B", genB, stream.Event{Key: "project:A", Type: EventGitChange, Data: []byte(`{}`)}))
	_, ok := f.store.Get(PathLiveGitDirty)
	assert.False(t, ok)

	assert.True(t, f.r.ApplyStreamEvent("B", genB, stream.Event{Key: "project:B", Type: "unknown", Data: []byte(`{"type":"unknown"}`)}))
}

func TestSelectTaskStreamsConversation(t *testing.T) {
	f := newFixture(t)
	f.client.messages = []snapshot.ConversationMessage{
		{ID: "1", Role: "user", Content: "start", Timestamp: "2026-10-18 10:00:00"},
	}

	f.r.Transition("P1")
	require.NoError(t, f.r.SelectTask("P1", "T1"))
	assert.Equal(t, "task:P1/T1", f.r.StreamKey())
	assert.Contains(t, f.streams.closedKeys(), "project:P1")

	require.Eventually(t, func() bool {
		v, _ := f.store.Get(PathLiveConversation)
		list, _ := v.([]any)
		return len(list) == 1
	}, time.Second, 5*time.Millisecond)

	handler := f.streams.handler("task:P1/T1")
	handler(stream.Event{Key: "task:P1/T1", Type: EventInitial,
		Data: []byte(`{"type":"initial","message":{"id":1,"role":"user","content":"start","tool_name":null,"timestamp":"2026-10-18 10:00:00"}}`)})
	handler(stream.Event{Key: "task:P1/T1", Type: EventMessage,
		Data: []byte(`{"type":"message","message":{"id":2,"role":"assistant","tool_name":"Bash","timestamp":"2026-10-18 10:00:02"}}`)})
	handler(stream.Event{Key: "task:P1/T1", Type: EventMessage,
		Data: []byte(`{"type":"message","message":{"role":"assistant"}}`)})

	v, _ := f.store.Get(PathLiveConversation)
	list := v.([]any)
	require.Len(t, list, 2)
	second := list[1].(map[string]any)
	assert.Equal(t, "2", second["id"])
	assert.Equal(t, "Bash", second["toolName"])

	require.NoError(t, f.r.SelectTask("P1", ""))
	assert.Equal(t, "project:P1", f.r.StreamKey())
}

func TestSelectTaskRejectsOtherProject(t *testing.T) {
	f := newFixture(t)

	f.r.Transition("P1")
	err := f.r.SelectTask("P2", "T1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeStaleResult))
}

func TestStreamDisconnectedRaisesOneNotice(t *testing.T) {
	f := newFixture(t)

	f.r.Transition("P1")
	err := errors.StreamUnrecoverable("project:P1", fmt.Errorf("stream returned status 404"))
	f.r.StreamDisconnected("project:P1", err)
	f.r.StreamDisconnected("project:P1", err)

	alerts := f.notices.list()
	require.Len(t, alerts, 1)
	assert.True(t, alerts[0].Local)
	assert.Equal(t, api.SeverityInfo, alerts[0].Notification.Severity)
	assert.Equal(t, "Live stream disconnected", alerts[0].Notification.Title)
	assert.Equal(t, "", f.r.StreamKey())
}

func TestServerErrorEventClosesStream(t *testing.T) {
	f := newFixture(t)

	f.r.Transition("P1")
	require.NoError(t, f.r.SelectTask("P1", "T9"))
	handler := f.streams.handler("task:P1/T9")
	handler(stream.Event{Key: "task:P1/T9", Data: []byte(`{"error":"Task not found"}`)})

	assert.Equal(t, "", f.r.StreamKey())
	require.Eventually(t, func() bool {
		for _, key := range f.streams.closedKeys() {
			if key == "task:P1/T9" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
	alerts := f.notices.list()
	require.Len(t, alerts, 1)
	assert.Contains(t, alerts[0].Notification.Message, "Task not found")
}

func TestRepeatedRefreshFailuresRaiseAlert(t *testing.T) {
	f := newFixture(t, WithFailureThreshold(3))
	f.client.err = errors.HTTPStatus("GET /api/project/P1/dashboard", 500, "")

	f.r.Transition("P1")
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_ = f.r.Poller().Poll(ctx)
	}

	require.Eventually(t, func() bool {
		for _, a := range f.notices.list() {
			if a.Notification.Title == "Dashboard refresh failing" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	count := 0
	for _, a := range f.notices.list() {
		if a.Notification.Title == "Dashboard refresh failing" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestTransitionToEmptyClearsSelection(t *testing.T) {
	f := newFixture(t)

	f.r.Transition("P1")
	require.Eventually(t, func() bool { return f.dashboardProject() == "P1" },
		time.Second, 5*time.Millisecond)

	f.r.Transition("")
	assert.False(t, f.r.Poller().Running())
	assert.Equal(t, "", f.r.StreamKey())
	assert.Empty(t, f.store.GetMap(PathDashboard))
	assert.Equal(t, []string{"P1", ""}, f.prefs.selected)
}
