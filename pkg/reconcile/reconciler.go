// Package reconcile owns the selected project and decides whether results
// from the poller and the live stream still apply to it.
package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/grovetools/livesync/errors"
	"github.com/grovetools/livesync/logging"
	"github.com/grovetools/livesync/pkg/api"
	"github.com/grovetools/livesync/pkg/keypath"
	"github.com/grovetools/livesync/pkg/notify"
	"github.com/grovetools/livesync/pkg/poller"
	"github.com/grovetools/livesync/pkg/snapshot"
	"github.com/grovetools/livesync/pkg/stream"
	"github.com/sirupsen/logrus"
)

// DefaultInterval is the dashboard refresh interval.
const DefaultInterval = 30 * time.Second

// Store paths written by the reconciler.
const (
	PathSelection        = "selection"
	PathDashboard        = "dashboard"
	PathLive             = "live"
	PathLiveConnected    = "live.connected"
	PathLiveGitDirty     = "live.gitDirty"
	PathLiveLastEventAt  = "live.lastEventAt"
	PathLiveConversation = "live.conversation"
)

// Stream event types.
const (
	EventConnected = "connected"
	EventGitChange = "git-change"
	EventInitial   = "initial"
	EventMessage   = "message"
)

// dashboardOverlay lists the live fields a dashboard snapshot supersedes.
var dashboardOverlay = []string{"gitDirty"}

// Client is the subset of the REST client the reconciler needs.
type Client interface {
	Dashboard(ctx context.Context, projectID string) (*snapshot.Dashboard, error)
	Conversation(ctx context.Context, projectID, taskID string) ([]snapshot.ConversationMessage, error)
	GitWatchURL(projectID string) string
	TaskLiveURL(projectID, taskID string) string
}

// Streams is the subset of stream.Manager the reconciler needs. Close does
// not return while the closed stream's handler is running, so handlers never
// call it themselves.
type Streams interface {
	Open(key, url string, handler stream.Handler)
	Close(key string)
}

// Prefs persists the selection.
type Prefs interface {
	SetSelectedProject(id string) error
}

// ProjectKey is the stream key of a project's git activity.
func ProjectKey(projectID string) string {
	return "project:" + projectID
}

// TaskKey is the stream key of a task's live conversation.
func TaskKey(projectID, taskID string) string {
	return "task:" + projectID + "/" + taskID
}

// Reconciler is the only component that decides whether a result is still
// current. Every guard check and the store write it protects happen under mu.
//
// Store listeners run while mu is held and must not call back into the
// Reconciler synchronously. Streams are opened and closed under streamMu
// with mu released, because closing a stream waits for its handler, which
// takes mu.
type Reconciler struct {
	client  Client
	store   *keypath.Store
	streams Streams
	prefs   Prefs
	policy  notify.Policy
	notice  func(notify.Alert)
	logger  *logrus.Entry
	now     func() time.Time

	interval  time.Duration
	jitter    float64
	threshold int
	live      bool

	poller *poller.Poller

	streamMu sync.Mutex

	mu        sync.Mutex
	ctx       context.Context
	selected  string
	task      string
	gen       uint64
	streamKey string

	wg sync.WaitGroup
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithInterval sets the dashboard refresh interval.
func WithInterval(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithJitter spreads refresh ticks by ±ratio of the interval.
func WithJitter(ratio float64) Option {
	return func(r *Reconciler) { r.jitter = ratio }
}

// WithFailureThreshold sets how many consecutive refresh failures raise an alert.
func WithFailureThreshold(n int) Option {
	return func(r *Reconciler) { r.threshold = n }
}

// WithLive opens the project's git activity stream on every transition.
func WithLive(live bool) Option {
	return func(r *Reconciler) { r.live = live }
}

// WithPrefs persists the selected project.
func WithPrefs(p Prefs) Option {
	return func(r *Reconciler) { r.prefs = p }
}

// WithPolicy sets the display policy of local notices.
func WithPolicy(p notify.Policy) Option {
	return func(r *Reconciler) { r.policy = p }
}

// WithNotice sets the callback receiving local notices (refresh failing,
// stream disconnected).
func WithNotice(fn func(notify.Alert)) Option {
	return func(r *Reconciler) { r.notice = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *logrus.Entry) Option {
	return func(r *Reconciler) { r.logger = logger }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// New creates a Reconciler with nothing selected.
func New(client Client, store *keypath.Store, streams Streams, opts ...Option) *Reconciler {
	r := &Reconciler{
		client:   client,
		store:    store,
		streams:  streams,
		policy:   notify.DefaultPolicy(),
		now:      time.Now,
		interval: DefaultInterval,
		ctx:      context.Background(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logging.NewLogger("reconcile")
	}

	r.poller = poller.New("dashboard", r.fetch, r.applyResult,
		poller.WithJitter(r.jitter),
		poller.WithFailureThreshold(r.threshold),
		poller.WithAlert(r.refreshFailing),
		poller.WithUnchanged(r.confirmResult),
		poller.WithLogger(r.logger),
	)
	return r
}

// Poller returns the dashboard poller.
func (r *Reconciler) Poller() *poller.Poller {
	return r.poller
}

// Start binds the reconciler to ctx. Pollers started by later transitions
// stop when ctx is cancelled.
func (r *Reconciler) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctx = ctx
	if r.selected != "" && !r.poller.Running() {
		r.poller.Start(ctx, r.interval)
		r.poller.TriggerNow()
	}
}

// Stop stops polling and closes the stream. The selection is kept.
func (r *Reconciler) Stop() {
	r.streamMu.Lock()
	defer r.streamMu.Unlock()

	r.mu.Lock()
	r.poller.Stop()
	closeKey := r.detachStreamLocked()
	r.mu.Unlock()

	r.switchStream(closeKey, nil)
}

// Wait blocks until the poller and background fetches have returned.
func (r *Reconciler) Wait() {
	r.poller.Wait()
	r.wg.Wait()
}

// Selected returns the selected project, task and generation.
func (r *Reconciler) Selected() (projectID, taskID string, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selected, r.task, r.gen
}

// StreamKey returns the key of the stream the reconciler expects events from.
func (r *Reconciler) StreamKey() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.streamKey
}

// Transition selects newID. Selecting the current project is a no-op. An
// empty id clears the selection.
func (r *Reconciler) Transition(newID string) {
	r.streamMu.Lock()
	defer r.streamMu.Unlock()

	r.mu.Lock()
	if newID == r.selected {
		r.mu.Unlock()
		return
	}
	oldID := r.selected

	r.poller.Stop()
	closeKey := r.detachStreamLocked()

	r.gen++
	r.selected = newID
	r.task = ""
	r.poller.ResetBaseline()

	r.store.Set(PathSelection, r.selectionLocked())
	r.store.Set(PathLive, map[string]interface{}{})
	r.store.Set(PathDashboard, map[string]interface{}{})

	var open *streamOpen
	if newID != "" {
		r.poller.Start(r.ctx, r.interval)
		if r.live {
			open = r.attachStreamLocked(ProjectKey(newID), r.client.GitWatchURL(newID))
		}
		r.poller.TriggerNow()
	}
	gen := r.gen
	r.mu.Unlock()

	r.switchStream(closeKey, open)

	r.logger.WithFields(logrus.Fields{
		"from":       oldID,
		"to":         newID,
		"generation": gen,
	}).Info("Selection changed")

	if r.prefs != nil {
		if err := r.prefs.SetSelectedProject(newID); err != nil {
			r.logger.WithError(err).Warn("Failed to persist selected project")
		}
	}
}

// SelectTask opens the live conversation of taskID within the selected
// project and seeds it from the conversation endpoint. An empty taskID
// returns to the project stream.
func (r *Reconciler) SelectTask(projectID, taskID string) error {
	r.streamMu.Lock()
	defer r.streamMu.Unlock()

	r.mu.Lock()
	if projectID != r.selected || projectID == "" {
		current := r.selected
		r.mu.Unlock()
		return errors.Stale(projectID, current)
	}
	if taskID == r.task {
		r.mu.Unlock()
		return nil
	}

	closeKey := r.detachStreamLocked()
	r.task = taskID
	r.store.Set(PathSelection, r.selectionLocked())
	r.store.Set(PathLiveConversation, []interface{}{})

	var open *streamOpen
	switch {
	case taskID != "":
		open = r.attachStreamLocked(TaskKey(projectID, taskID), r.client.TaskLiveURL(projectID, taskID))
		gen := r.gen
		ctx := r.ctx
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.seedConversation(ctx, projectID, gen, taskID)
		}()
	case r.live:
		open = r.attachStreamLocked(ProjectKey(projectID), r.client.GitWatchURL(projectID))
	}
	r.mu.Unlock()

	r.switchStream(closeKey, open)
	return nil
}

func (r *Reconciler) seedConversation(ctx context.Context, projectID string, gen uint64, taskID string) {
	messages, err := r.client.Conversation(ctx, projectID, taskID)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.WithError(err).WithField("task", taskID).Warn("Failed to load conversation")
		}
		return
	}
	r.ApplyConversation(projectID, gen, taskID, messages)
}

// ApplyConversation merges a fetched conversation into live.conversation if
// projectID, gen and taskID are still selected.
func (r *Reconciler) ApplyConversation(forID string, gen uint64, taskID string, messages []snapshot.ConversationMessage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.currentLocked(forID, gen) || r.task != taskID {
		r.logStale(forID, r.selected, gen)
		return false
	}
	for _, msg := range messages {
		r.appendMessageLocked(msg)
	}
	return true
}

// ApplyPollResult writes snap to the dashboard subtree if forID and gen are
// still current. The snapshot supersedes the live fields it carries.
func (r *Reconciler) ApplyPollResult(forID string, gen uint64, snap *snapshot.Dashboard) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.currentLocked(forID, gen) {
		r.logStale(forID, r.selected, gen)
		return false
	}
	r.store.Set(PathDashboard, snap.ToMap())
	r.clearOverlayLocked()
	return true
}

// ConfirmUnchanged records that a refresh of forID returned the dashboard
// already shown. The live fields a snapshot supersedes are cleared all the
// same, since the refresh they asked for has happened.
func (r *Reconciler) ConfirmUnchanged(forID string, gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.currentLocked(forID, gen) {
		r.logStale(forID, r.selected, gen)
		return false
	}
	r.clearOverlayLocked()
	return true
}

func (r *Reconciler) clearOverlayLocked() {
	live := r.store.GetMap(PathLive)
	patch := map[string]interface{}{}
	for _, field := range dashboardOverlay {
		if v, ok := live[field]; ok && v != false {
			patch[field] = false
		}
	}
	if len(patch) > 0 {
		r.store.Update(PathLive, patch)
	}
}

type streamPayload struct {
	Message json.RawMessage `json:"message"`
	Error   string          `json:"error"`
}

// ApplyStreamEvent merges an incremental event into the live subtree if
// forID and gen are still current and the event came from the expected
// stream. Unknown event types are ignored.
func (r *Reconciler) ApplyStreamEvent(forID string, gen uint64, ev stream.Event) bool {
	r.mu.Lock()
	if !r.currentLocked(forID, gen) || ev.Key != r.streamKey {
		current := r.selected
		r.mu.Unlock()
		r.logStale(forID, current, gen)
		return false
	}

	var payload streamPayload
	if err := ev.Decode(&payload); err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{"key": ev.Key, "type": ev.Type}).
			Debug("Stream event payload did not decode")
	}

	refresh := false
	serverError := ""
	switch ev.Type {
	case EventConnected:
		r.store.Set(PathLiveConnected, true)
	case EventGitChange:
		r.store.Set(PathLiveGitDirty, true)
		refresh = true
	case EventInitial, EventMessage:
		if len(payload.Message) > 0 && string(payload.Message) != "null" {
			msg, err := snapshot.DecodeMessage(payload.Message)
			if err != nil {
				r.logger.WithError(err).WithField("key", ev.Key).Warn("Dropping malformed conversation message")
				break
			}
			r.appendMessageLocked(*msg)
		}
	case "":
		serverError = payload.Error
	default:
		r.logger.WithFields(logrus.Fields{"key": ev.Key, "type": ev.Type}).Trace("Ignoring stream event")
	}
	if serverError == "" {
		r.store.Set(PathLiveLastEventAt, r.now().UTC().Format(time.RFC3339Nano))
	} else {
		r.streamKey = ""
		r.store.Set(PathLiveConnected, false)
		// The handler cannot close its own stream; see Streams.
		r.wg.Add(1)
		go r.closeDetached(ev.Key)
	}
	r.mu.Unlock()

	if refresh {
		r.poller.TriggerNow()
	}
	if serverError != "" {
		r.reportDisconnect(ev.Key, errors.StreamUnrecoverable(ev.Key, fmt.Errorf("%s", serverError)))
	}
	return true
}

// closeDetached closes a stream the reconciler already stopped expecting
// events from, unless it has been reopened since.
func (r *Reconciler) closeDetached(key string) {
	defer r.wg.Done()
	r.streamMu.Lock()
	defer r.streamMu.Unlock()

	r.mu.Lock()
	reopened := r.streamKey == key
	r.mu.Unlock()
	if !reopened {
		r.streams.Close(key)
	}
}

// StreamDisconnected handles an unrecoverable stream failure. The stream is
// not reopened until the selection changes.
func (r *Reconciler) StreamDisconnected(key string, err error) {
	r.mu.Lock()
	if key != r.streamKey {
		r.mu.Unlock()
		return
	}
	r.streamKey = ""
	r.store.Set(PathLiveConnected, false)
	r.mu.Unlock()

	r.reportDisconnect(key, err)
}

func (r *Reconciler) reportDisconnect(key string, err error) {
	r.logger.WithError(err).WithField("key", key).Info("Live stream disconnected")
	if r.notice != nil {
		r.notice(r.policy.LocalAlert(api.SeverityInfo, "Live stream disconnected", err.Error()))
	}
}

// RefreshNow requests an immediate dashboard fetch.
func (r *Reconciler) RefreshNow() {
	r.poller.TriggerNow()
}

func (r *Reconciler) fetch(ctx context.Context) (poller.Result, error) {
	r.mu.Lock()
	id, gen := r.selected, r.gen
	r.mu.Unlock()

	result := poller.Result{ResourceID: id, Generation: gen}
	if id == "" {
		return result, errors.New(errors.ErrCodeInvalidInput, "no project selected")
	}
	d, err := r.client.Dashboard(ctx, id)
	if err != nil {
		return result, err
	}
	result.Snapshot = d
	return result, nil
}

func (r *Reconciler) applyResult(res poller.Result) bool {
	d, ok := res.Snapshot.(*snapshot.Dashboard)
	if !ok {
		return false
	}
	return r.ApplyPollResult(res.ResourceID, res.Generation, d)
}

func (r *Reconciler) confirmResult(res poller.Result) {
	r.ConfirmUnchanged(res.ResourceID, res.Generation)
}

func (r *Reconciler) refreshFailing(failures int, err error) {
	r.mu.Lock()
	id := r.selected
	r.mu.Unlock()
	if r.notice == nil || id == "" {
		return
	}
	r.notice(r.policy.LocalAlert(api.SeverityWarning,
		"Dashboard refresh failing",
		fmt.Sprintf("%d consecutive refreshes of %s failed: %v", failures, id, err)))
}

func (r *Reconciler) currentLocked(forID string, gen uint64) bool {
	return forID != "" && forID == r.selected && gen == r.gen
}

func (r *Reconciler) logStale(forID, current string, gen uint64) {
	r.logger.WithError(errors.Stale(forID, current)).
		WithField("generation", gen).
		Debug("Discarding stale result")
}

func (r *Reconciler) selectionLocked() map[string]interface{} {
	return map[string]interface{}{
		"projectId":  r.selected,
		"taskId":     r.task,
		"generation": r.gen,
	}
}

type streamOpen struct {
	key     string
	url     string
	handler stream.Handler
}

// attachStreamLocked makes key the expected stream. The caller opens it with
// switchStream once mu is released.
func (r *Reconciler) attachStreamLocked(key, url string) *streamOpen {
	forID, gen := r.selected, r.gen
	r.streamKey = key
	return &streamOpen{
		key: key,
		url: url,
		handler: func(ev stream.Event) {
			r.ApplyStreamEvent(forID, gen, ev)
		},
	}
}

// detachStreamLocked stops expecting events from the current stream and
// returns its key for switchStream to close.
func (r *Reconciler) detachStreamLocked() string {
	key := r.streamKey
	r.streamKey = ""
	return key
}

// switchStream must be called with streamMu held and mu released.
func (r *Reconciler) switchStream(closeKey string, open *streamOpen) {
	if closeKey != "" {
		r.streams.Close(closeKey)
	}
	if open != nil {
		r.streams.Open(open.key, open.url, open.handler)
	}
}

func (r *Reconciler) appendMessageLocked(msg snapshot.ConversationMessage) {
	var list []interface{}
	if v, ok := r.store.Get(PathLiveConversation); ok {
		list, _ = v.([]interface{})
	}
	id := string(msg.ID)
	for _, item := range list {
		if m, ok := item.(map[string]interface{}); ok && m["id"] == id {
			return
		}
	}
	r.store.Set(PathLiveConversation, append(list, msg.ToMap()))
}
