// Package notify turns the server's unread notifications into a deduplicated
// stream of alerts.
package notify

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/grovetools/livesync/errors"
	"github.com/grovetools/livesync/logging"
	"github.com/grovetools/livesync/pkg/api"
	"github.com/grovetools/livesync/pkg/keypath"
	"github.com/grovetools/livesync/pkg/poller"
	"github.com/moby/patternmatcher"
	"github.com/sirupsen/logrus"
)

// DefaultInterval is the unread polling interval.
const DefaultInterval = 10 * time.Second

// Store paths the feed publishes to.
const (
	PathUnread     = "notifications.unread"
	PathBySeverity = "notifications.bySeverity"
	PathLastSeen   = "notifications.lastSeenId"
)

// Client is the subset of the REST client the feed needs.
type Client interface {
	Unread(ctx context.Context) (*api.UnreadResponse, error)
	MarkRead(ctx context.Context, id int64) error
	Dismiss(ctx context.Context, id int64) error
	ReadAll(ctx context.Context, projectID string) error
}

// CursorStore persists the last seen notification id.
type CursorStore interface {
	LoadCursor() (int64, error)
	SaveCursor(id int64) error
}

// Feed reports each notification id at most once, in ascending order.
type Feed struct {
	client  Client
	policy  Policy
	store   *keypath.Store
	cursor  CursorStore
	mute    *patternmatcher.PatternMatcher
	onAlert func(Alert)
	logger  *logrus.Entry

	mu       sync.Mutex
	lastSeen int64

	poller *poller.Poller
}

// Option configures a Feed.
type Option func(*Feed)

// WithPolicy sets the display policy used for emitted alerts.
func WithPolicy(p Policy) Option {
	return func(f *Feed) { f.policy = p }
}

// WithStore publishes unread counts into s.
func WithStore(s *keypath.Store) Option {
	return func(f *Feed) { f.store = s }
}

// WithCursorStore persists lastSeenId across runs.
func WithCursorStore(c CursorStore) Option {
	return func(f *Feed) { f.cursor = c }
}

// WithAlertHandler sets the callback receiving every emitted alert.
func WithAlertHandler(fn func(Alert)) Option {
	return func(f *Feed) { f.onAlert = fn }
}

// WithLogger overrides the feed's logger.
func WithLogger(logger *logrus.Entry) Option {
	return func(f *Feed) { f.logger = logger }
}

// NewFeed creates a Feed. mutePatterns are matched against
// "<projectId>/<severity>", so "P7" mutes a whole project and "*/info" mutes
// info notifications everywhere. Muted notifications advance the cursor but
// raise no alert.
func NewFeed(client Client, mutePatterns []string, opts ...Option) (*Feed, error) {
	f := &Feed{
		client: client,
		policy: DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = logging.NewLogger("notify")
	}
	if len(mutePatterns) > 0 {
		pm, err := patternmatcher.New(mutePatterns)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "invalid notification mute pattern")
		}
		f.mute = pm
	}
	if f.cursor != nil {
		id, err := f.cursor.LoadCursor()
		if err != nil {
			f.logger.WithError(err).Warn("Failed to load notification cursor")
		}
		f.lastSeen = id
	}

	f.poller = poller.New("notifications", f.fetch, f.apply, poller.WithLogger(f.logger))
	return f, nil
}

// LastSeenID returns the highest notification id reported so far.
func (f *Feed) LastSeenID() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastSeen
}

// ResetCursor forgets lastSeenId so every unread notification is reported
// again. Use after the server's id sequence was reset.
func (f *Feed) ResetCursor() {
	f.mu.Lock()
	f.lastSeen = 0
	f.persistLocked()
	f.mu.Unlock()
	f.poller.ResetBaseline()
}

// Poll fetches unread notifications and returns the alerts for ids not seen
// before.
func (f *Feed) Poll(ctx context.Context) ([]Alert, error) {
	resp, err := f.client.Unread(ctx)
	if err != nil {
		return nil, err
	}
	return f.process(resp), nil
}

// Start polls every interval until Stop or ctx is done.
func (f *Feed) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	f.poller.Start(ctx, interval)
	f.poller.TriggerNow()
}

// Stop halts polling. It is idempotent.
func (f *Feed) Stop() {
	f.poller.Stop()
}

// Wait blocks until in-flight polls have returned.
func (f *Feed) Wait() {
	f.poller.Wait()
}

func (f *Feed) fetch(ctx context.Context) (poller.Result, error) {
	resp, err := f.client.Unread(ctx)
	if err != nil {
		return poller.Result{}, err
	}
	return poller.Result{ResourceID: "notifications", Snapshot: resp}, nil
}

func (f *Feed) apply(r poller.Result) bool {
	resp, ok := r.Snapshot.(*api.UnreadResponse)
	if !ok {
		return false
	}
	f.process(resp)
	return true
}

func (f *Feed) process(resp *api.UnreadResponse) []Alert {
	f.publishCounts(resp)

	items := make([]Notification, len(resp.Notifications))
	copy(items, resp.Notifications)
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })

	var alerts []Alert
	f.mu.Lock()
	before := f.lastSeen
	for _, n := range items {
		if alert, ok := f.admitLocked(n); ok {
			alerts = append(alerts, alert)
		}
	}
	if f.lastSeen != before {
		f.persistLocked()
	}
	f.mu.Unlock()

	f.emit(alerts)
	return alerts
}

// Ingest applies the same dedup to a notification pushed over the stream.
func (f *Feed) Ingest(n Notification) (Alert, bool) {
	f.mu.Lock()
	before := f.lastSeen
	alert, ok := f.admitLocked(n)
	if f.lastSeen != before {
		f.persistLocked()
	}
	f.mu.Unlock()

	if ok {
		f.emit([]Alert{alert})
	}
	return alert, ok
}

// SetUnreadCount publishes a pushed unread count.
func (f *Feed) SetUnreadCount(count int) {
	if f.store != nil {
		f.store.Set(PathUnread, count)
	}
}

// admitLocked advances the cursor past n and reports whether n should be
// shown. The caller holds f.mu.
func (f *Feed) admitLocked(n Notification) (Alert, bool) {
	if n.ID <= f.lastSeen {
		return Alert{}, false
	}
	f.lastSeen = n.ID

	if f.muted(n) {
		f.logger.WithField("id", n.ID).Debug("Notification muted")
		return Alert{}, false
	}
	return f.policy.NewAlert(n), true
}

func (f *Feed) muted(n Notification) bool {
	if f.mute == nil {
		return false
	}
	project := n.ProjectID
	if project == "" {
		project = "-"
	}
	severity := string(n.Severity)
	if severity == "" {
		severity = string(api.SeverityInfo)
	}
	matched, err := f.mute.MatchesOrParentMatches(project + "/" + severity)
	if err != nil {
		f.logger.WithError(err).Debug("Mute pattern match failed")
		return false
	}
	return matched
}

func (f *Feed) emit(alerts []Alert) {
	if f.onAlert == nil {
		return
	}
	for _, a := range alerts {
		f.onAlert(a)
	}
}

// persistLocked writes lastSeen while f.mu is held so the persisted cursor
// never moves backwards.
func (f *Feed) persistLocked() {
	id := f.lastSeen
	if f.store != nil {
		f.store.Set(PathLastSeen, id)
	}
	if f.cursor == nil {
		return
	}
	if err := f.cursor.SaveCursor(id); err != nil {
		f.logger.WithError(err).Warn("Failed to persist notification cursor")
	}
}

func (f *Feed) publishCounts(resp *api.UnreadResponse) {
	if f.store == nil {
		return
	}
	bySeverity := make(map[string]interface{}, len(resp.BySeverity))
	for _, c := range resp.BySeverity {
		bySeverity[string(c.Severity)] = c.Count
	}
	f.store.Set(PathUnread, resp.Total)
	f.store.Set(PathBySeverity, bySeverity)
}

// MarkRead marks a notification read on the server. Local dedup state is
// unaffected by the outcome.
func (f *Feed) MarkRead(ctx context.Context, id int64) error {
	if id <= 0 {
		return nil
	}
	if err := f.client.MarkRead(ctx, id); err != nil {
		f.logger.WithError(err).WithField("id", id).Debug("Mark read failed")
		return err
	}
	return nil
}

// Dismiss hides a notification on the server.
func (f *Feed) Dismiss(ctx context.Context, id int64) error {
	if id <= 0 {
		return nil
	}
	return f.client.Dismiss(ctx, id)
}

// ReadAll marks all notifications read, optionally for one project.
func (f *Feed) ReadAll(ctx context.Context, projectID string) error {
	return f.client.ReadAll(ctx, projectID)
}
