// Package session wires the store, poller, notification feed, streams and
// reconciler of one livesync session into a single context object.
package session

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/grovetools/livesync/config"
	"github.com/grovetools/livesync/logging"
	"github.com/grovetools/livesync/pkg/api"
	"github.com/grovetools/livesync/pkg/keypath"
	"github.com/grovetools/livesync/pkg/notify"
	"github.com/grovetools/livesync/pkg/reconcile"
	"github.com/grovetools/livesync/pkg/stream"
	"github.com/grovetools/livesync/state"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Store paths owned by the session.
const (
	PathAlerts = "alerts"
	PathTheme  = "prefs.theme"
)

// Options configures a Session.
type Options struct {
	Config *config.Config
	// Prefs is the preference store. Nil uses state.Default().
	Prefs *state.Store
	// HTTPClient overrides the REST client's transport.
	HTTPClient *http.Client
	// SSE overrides the stream transport for http(s) URLs.
	SSE stream.Transport
	// OnAlerts receives the visible alerts after every change.
	OnAlerts func([]notify.Alert)
	// WatchPrefs follows changes other processes make to the preference file.
	WatchPrefs bool
	// TaskID is followed once Run has selected the initial project.
	TaskID string
}

// Session owns every long-lived component. It replaces process-wide state:
// everything a view needs is reached through it.
type Session struct {
	ID         string
	Config     *config.Config
	Store      *keypath.Store
	Client     *api.Client
	Prefs      *state.Store
	Streams    *stream.Manager
	Push       *stream.Manager
	Feed       *notify.Feed
	Board      *notify.AlertBoard
	Reconciler *reconcile.Reconciler

	watchPrefs bool
	taskID     string
	onAlerts   func([]notify.Alert)
	logger     *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
}

// New builds a session from cfg. Nothing runs until Run is called.
func New(opts Options) (*Session, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = &config.Config{}
		cfg.SetDefaults()
	}
	prefs := opts.Prefs
	if prefs == nil {
		prefs = state.Default()
	}

	s := &Session{
		ID:         uuid.NewString(),
		Config:     cfg,
		Prefs:      prefs,
		watchPrefs: opts.WatchPrefs,
		taskID:     opts.TaskID,
		onAlerts:   opts.OnAlerts,
		logger:     logging.NewLogger("session"),
	}
	s.logger = s.logger.WithField("session", s.ID)
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.Store = keypath.New(keypath.WithLogger(logging.NewLogger("store")))
	s.Store.Set(PathTheme, initialTheme(cfg, prefs))

	clientOpts := []api.Option{
		api.WithToken(cfg.Server.Token),
		api.WithTimeout(cfg.Server.Timeout.Std()),
		api.WithSessionID(s.ID),
	}
	if cfg.Server.Retries != nil {
		clientOpts = append(clientOpts, api.WithRetries(*cfg.Server.Retries, api.DefaultRetryDelay))
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, api.WithHTTPClient(opts.HTTPClient))
	}
	s.Client = api.New(cfg.Server.BaseURL, clientOpts...)

	policy := notify.Policy{
		BaseTimeout: cfg.Notifications.AlertTimeout.Std(),
		ErrorFactor: cfg.Notifications.ErrorFactor,
	}

	s.Board = notify.NewAlertBoard(s.ctx, s.Client.MarkRead, s.alertsChanged)

	sse := opts.SSE
	if sse == nil {
		sse = stream.NewSSETransport(cfg.Stream.Retry.Std(), cfg.Stream.MaxReconnects)
	}
	streamOpts := []stream.Option{
		stream.WithSSETransport(sse),
		stream.WithHeader(s.Client.Header()),
	}

	feed, err := notify.NewFeed(s.Client, cfg.Notifications.Mute,
		notify.WithPolicy(policy),
		notify.WithStore(s.Store),
		notify.WithCursorStore(prefs),
		notify.WithAlertHandler(s.Board.Show),
	)
	if err != nil {
		return nil, err
	}
	s.Feed = feed
	s.Push = stream.NewManager(append(streamOpts, stream.WithOnDisconnect(s.pushDisconnected))...)

	s.Streams = stream.NewManager(append(streamOpts, stream.WithOnDisconnect(func(key string, err error) {
		s.Reconciler.StreamDisconnected(key, err)
	}))...)
	s.Reconciler = reconcile.New(s.Client, s.Store, s.Streams,
		reconcile.WithInterval(cfg.Intervals.Dashboard.Std()),
		reconcile.WithJitter(cfg.Intervals.Jitter),
		reconcile.WithFailureThreshold(cfg.Intervals.FailureThreshold),
		reconcile.WithLive(cfg.LiveEnabled()),
		reconcile.WithPrefs(prefs),
		reconcile.WithPolicy(policy),
		reconcile.WithNotice(s.Board.Show),
	)

	return s, nil
}

// Run starts every component, selects projectID (or the persisted selection
// when empty) and blocks until ctx is cancelled or a component fails.
func (s *Session) Run(ctx context.Context, projectID string) error {
	g, ctx := errgroup.WithContext(ctx)

	if s.watchPrefs {
		watcher, err := state.NewWatcher(s.Prefs, 0, s.prefsChanged)
		if err != nil {
			s.logger.WithError(err).Warn("Preference watcher unavailable")
		} else {
			g.Go(func() error { return watcher.Run(ctx) })
		}
	}

	s.Reconciler.Start(ctx)
	s.Feed.Start(ctx, s.Config.Intervals.Notifications.Std())
	if s.Config.PushEnabled() {
		s.Push.Open(notify.StreamKey, s.Client.NotificationStreamURL(), s.Feed.HandleEvent)
	}
	g.Go(func() error {
		_, err := s.Feed.Poll(ctx)
		if err != nil && ctx.Err() == nil {
			s.logger.WithError(err).Debug("Initial notification poll failed")
		}
		return nil
	})

	if projectID == "" {
		projectID = s.Prefs.SelectedProject()
	}
	if projectID != "" {
		s.Reconciler.Transition(projectID)
		if s.taskID != "" {
			if err := s.Reconciler.SelectTask(projectID, s.taskID); err != nil {
				s.logger.WithError(err).Warn("Could not follow task")
			}
		}
	}
	s.logger.WithField("project", projectID).Info("Session started")

	g.Go(func() error {
		<-ctx.Done()
		s.Close()
		return nil
	})
	return g.Wait()
}

// Select switches the session to projectID.
func (s *Session) Select(projectID string) {
	s.Reconciler.Transition(projectID)
}

// SelectTask follows the live conversation of a task in the selected project.
func (s *Session) SelectTask(projectID, taskID string) error {
	return s.Reconciler.SelectTask(projectID, taskID)
}

// Close stops every component, waits for their goroutines and resets the
// store, dropping its subscriptions. It is safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.Reconciler.Stop()
		s.Feed.Stop()
		s.Streams.Shutdown()
		s.Push.Shutdown()
		s.cancel()
		s.Board.Close()

		s.Reconciler.Wait()
		s.Feed.Wait()
		s.Streams.Wait()
		s.Push.Wait()
		s.Store.Reset()
		s.logger.Debug("Session closed")
	})
}

// Refresh fetches the selected project's dashboard now.
func (s *Session) Refresh() {
	s.Reconciler.RefreshNow()
}

// DismissAlert hides a visible alert and marks it read.
func (s *Session) DismissAlert(key int64) bool {
	return s.Board.Dismiss(key)
}

// OpenAlert removes a visible alert because the user followed it and
// returns it so the caller can show its link.
func (s *Session) OpenAlert(key int64) (notify.Alert, bool) {
	return s.Board.Act(key)
}

// SetTheme persists the theme preference and publishes it.
func (s *Session) SetTheme(name string) error {
	if err := s.Prefs.Set(state.KeyTheme, name); err != nil {
		return err
	}
	s.Store.Set(PathTheme, name)
	return nil
}

// initialTheme prefers the persisted preference over the configured theme.
func initialTheme(cfg *config.Config, prefs *state.Store) string {
	if theme, err := prefs.GetString(state.KeyTheme); err == nil && theme != "" {
		return theme
	}
	if cfg.TUI.Theme != "" {
		return cfg.TUI.Theme
	}
	return state.DefaultTheme
}

func (s *Session) alertsChanged(alerts []notify.Alert) {
	list := make([]interface{}, 0, len(alerts))
	for _, a := range alerts {
		list = append(list, map[string]interface{}{
			"key":      a.Key(),
			"severity": string(a.Notification.Severity),
			"title":    a.Notification.Title,
			"message":  a.Notification.Message,
			"link":     a.Notification.Link,
			"project":  a.Notification.ProjectName,
			"local":    a.Local,
		})
	}
	s.Store.Set(PathAlerts, list)
	if s.onAlerts != nil {
		s.onAlerts(alerts)
	}
}

func (s *Session) prefsChanged(st state.State) {
	theme, _ := st[state.KeyTheme].(string)
	if theme == "" {
		theme = state.DefaultTheme
	}
	if s.Store.GetString(PathTheme) != theme {
		s.Store.Set(PathTheme, theme)
	}
}

func (s *Session) pushDisconnected(key string, err error) {
	// Polling keeps the feed correct without the push stream.
	s.logger.WithError(err).Info("Notification push stream disconnected, polling only")
}
