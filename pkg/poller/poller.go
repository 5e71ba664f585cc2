// Package poller runs a fetch on a fixed interval and applies the result only
// when it differs from the last applied one.
package poller

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/grovetools/livesync/errors"
	"github.com/grovetools/livesync/logging"
	"github.com/grovetools/livesync/pkg/snapshot"
	"github.com/sirupsen/logrus"
)

// DefaultFailureThreshold is the number of consecutive failed ticks after
// which a single alert is raised.
const DefaultFailureThreshold = 3

// Result is a fetched snapshot tagged with the selection it was issued for.
type Result struct {
	ResourceID string
	Generation uint64
	Snapshot   interface{}
}

// FetchFunc fetches one snapshot. It captures the selection at issue time.
type FetchFunc func(ctx context.Context) (Result, error)

// ApplyFunc applies a changed snapshot and reports whether it was accepted.
// A rejected result (stale selection) does not become the new baseline.
type ApplyFunc func(Result) bool

// Poller is a ticker-driven, diff-aware fetch loop.
type Poller struct {
	name      string
	fetch     FetchFunc
	apply     ApplyFunc
	onRender  func(Result)
	onSame    func(Result)
	onAlert   func(failures int, err error)
	threshold int
	jitter    float64
	logger    *logrus.Entry

	mu          sync.Mutex
	baseline    string
	failures    int
	alerted     bool
	running     bool
	runCtx      context.Context
	cancel      context.CancelFunc
	lastApplied time.Time

	// applyMu serializes compare-apply-record so two overlapping ticks
	// cannot both apply the same snapshot.
	applyMu  sync.Mutex
	inflight sync.WaitGroup
}

// Option configures a Poller.
type Option func(*Poller)

// WithRender sets the callback invoked after an accepted apply.
func WithRender(fn func(Result)) Option {
	return func(p *Poller) { p.onRender = fn }
}

// WithUnchanged sets the callback invoked when a fetch returns the snapshot
// already applied.
func WithUnchanged(fn func(Result)) Option {
	return func(p *Poller) { p.onSame = fn }
}

// WithAlert sets the callback invoked once when consecutive failures reach
// the threshold.
func WithAlert(fn func(failures int, err error)) Option {
	return func(p *Poller) { p.onAlert = fn }
}

// WithFailureThreshold overrides DefaultFailureThreshold.
func WithFailureThreshold(n int) Option {
	return func(p *Poller) {
		if n > 0 {
			p.threshold = n
		}
	}
}

// WithJitter spreads ticks by ±ratio of the interval.
func WithJitter(ratio float64) Option {
	return func(p *Poller) { p.jitter = clampJitterRatio(ratio) }
}

// WithLogger overrides the poller's logger.
func WithLogger(logger *logrus.Entry) Option {
	return func(p *Poller) { p.logger = logger }
}

// New creates a Poller. name is used in logs.
func New(name string, fetch FetchFunc, apply ApplyFunc, opts ...Option) *Poller {
	p := &Poller{
		name:      name,
		fetch:     fetch,
		apply:     apply,
		threshold: DefaultFailureThreshold,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logging.NewLogger("poller")
	}
	p.logger = p.logger.WithField("poller", name)
	return p
}

// Start begins ticking every interval. Each tick fetches in its own
// goroutine; a slow fetch never delays the next tick. Calling Start on a
// running poller is a no-op.
func (p *Poller) Start(ctx context.Context, interval time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running || interval <= 0 {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.runCtx = runCtx
	p.cancel = cancel
	p.running = true

	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		p.loop(runCtx, interval)
	}()
}

func (p *Poller) loop(ctx context.Context, interval time.Duration) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	timer := time.NewTimer(jitteredIntervalWithSample(interval, p.jitter, rng.Float64()))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			p.spawn(ctx)
			timer.Reset(jitteredIntervalWithSample(interval, p.jitter, rng.Float64()))
		}
	}
}

func (p *Poller) spawn(ctx context.Context) {
	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		_ = p.Poll(ctx)
	}()
}

// Stop cancels the timer and any in-flight fetch. It is idempotent, safe
// before Start, and does not wait for in-flight ticks (see Wait).
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	p.cancel()
	p.running = false
	p.runCtx = nil
	p.cancel = nil
}

// Wait blocks until the loop and all in-flight ticks have returned.
func (p *Poller) Wait() {
	p.inflight.Wait()
}

// Running reports whether the poller is started.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// TriggerNow runs an immediate out-of-band tick. It is a no-op when the
// poller is stopped.
func (p *Poller) TriggerNow() {
	p.mu.Lock()
	ctx := p.runCtx
	p.mu.Unlock()

	if ctx == nil {
		return
	}
	p.spawn(ctx)
}

// ResetBaseline forgets the last applied fingerprint so the next successful
// fetch is applied unconditionally.
func (p *Poller) ResetBaseline() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.baseline = ""
}

// Failures returns the current consecutive failure count.
func (p *Poller) Failures() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures
}

// LastApplied returns when a snapshot was last accepted.
func (p *Poller) LastApplied() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastApplied
}

// Poll runs a single fetch-compare-apply cycle synchronously. Fetch errors
// are counted and returned but never stop the poller.
func (p *Poller) Poll(ctx context.Context) error {
	result, err := p.fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.recordFailure(err)
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	fingerprint, err := snapshot.Fingerprint(result.Snapshot)
	if err != nil {
		err = errors.Malformed(p.name, err)
		p.recordFailure(err)
		return err
	}
	p.recordSuccess()

	p.applyMu.Lock()
	defer p.applyMu.Unlock()

	p.mu.Lock()
	unchanged := fingerprint == p.baseline
	p.mu.Unlock()
	if unchanged {
		p.logger.WithField("resource", result.ResourceID).Trace("Snapshot unchanged")
		if p.onSame != nil {
			p.onSame(result)
		}
		return nil
	}

	if !p.apply(result) {
		p.logger.WithFields(logrus.Fields{
			"resource":   result.ResourceID,
			"generation": result.Generation,
		}).Debug("Snapshot rejected")
		return nil
	}

	p.mu.Lock()
	p.baseline = fingerprint
	p.lastApplied = time.Now()
	p.mu.Unlock()

	if p.onRender != nil {
		p.onRender(result)
	}
	return nil
}

func (p *Poller) recordFailure(err error) {
	p.mu.Lock()
	p.failures++
	failures := p.failures
	raise := failures >= p.threshold && !p.alerted
	if raise {
		p.alerted = true
	}
	p.mu.Unlock()

	entry := p.logger.WithError(err).WithField("failures", failures)
	if errors.IsTransient(err) {
		entry.Debug("Tick failed")
	} else {
		entry.Warn("Tick failed")
	}

	if raise && p.onAlert != nil {
		p.onAlert(failures, err)
	}
}

func (p *Poller) recordSuccess() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures = 0
	p.alerted = false
}

func clampJitterRatio(ratio float64) float64 {
	if ratio < 0 {
		return 0
	}
	if ratio > 0.5 {
		return 0.5
	}
	return ratio
}

func jitteredIntervalWithSample(base time.Duration, jitterRatio, sample float64) time.Duration {
	if base <= 0 {
		return 0
	}
	jitterRatio = clampJitterRatio(jitterRatio)
	if jitterRatio == 0 {
		return base
	}
	if sample < 0 {
		sample = 0
	} else if sample > 1 {
		sample = 1
	}
	factor := 1 + ((sample*2)-1)*jitterRatio
	delay := time.Duration(float64(base) * factor)
	if delay < time.Millisecond {
		return time.Millisecond
	}
	return delay
}
