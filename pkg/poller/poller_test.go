package poller

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/grovetools/livesync/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSource struct {
	mu       sync.Mutex
	snapshot map[string]interface{}
	err      error
	fetches  int
}

func (f *fakeSource) set(snap map[string]interface{}, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshot = snap
	f.err = err
}

func (f *fakeSource) fetch(ctx context.Context) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.err != nil {
		return Result{}, f.err
	}
	return Result{ResourceID: "P1", Generation: 1, Snapshot: f.snapshot}, nil
}

func (f *fakeSource) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func TestPollAppliesOnlyChanges(t *testing.T) {
	src := &fakeSource{}
	src.set(map[string]interface{}{"waves": []interface{}{"w1"}}, nil)

	applied := 0
	rendered := 0
	p := New("dashboard", src.fetch, func(Result) bool {
		applied++
		return true
	}, WithRender(func(Result) { rendered++ }))
	ctx := context.Background()

	require.NoError(t, p.Poll(ctx))
	require.NoError(t, p.Poll(ctx))
	assert.Equal(t, 1, applied, "identical snapshot must apply once")
	assert.Equal(t, 1, rendered)

	src.set(map[string]interface{}{"waves": []interface{}{"w1", "w2"}}, nil)
	require.NoError(t, p.Poll(ctx))
	assert.Equal(t, 2, applied)
	assert.False(t, p.LastApplied().IsZero())

	p.ResetBaseline()
	require.NoError(t, p.Poll(ctx))
	assert.Equal(t, 3, applied, "reset baseline must re-apply")
}

func TestPollReportsUnchangedSnapshot(t *testing.T) {
	src := &fakeSource{}
	src.set(map[string]interface{}{"waves": []interface{}{"w1"}}, nil)

	var same []Result
	p := New("dashboard", src.fetch, func(Result) bool { return true },
		WithUnchanged(func(r Result) { same = append(same, r) }))
	ctx := context.Background()

	require.NoError(t, p.Poll(ctx))
	assert.Empty(t, same)

	require.NoError(t, p.Poll(ctx))
	require.Len(t, same, 1)
	assert.Equal(t, "P1", same[0].ResourceID)
	assert.Equal(t, uint64(1), same[0].Generation)
}

func TestRejectedResultIsNotBaseline(t *testing.T) {
	src := &fakeSource{}
	src.set(map[string]interface{}{"a": 1}, nil)

	accept := false
	applied := 0
	p := New("dashboard", src.fetch, func(Result) bool {
		applied++
		return accept
	})

	require.NoError(t, p.Poll(context.Background()))
	accept = true
	require.NoError(t, p.Poll(context.Background()))
	assert.Equal(t, 2, applied)
}

func TestFailureAlertThreshold(t *testing.T) {
	src := &fakeSource{}
	src.set(nil, errors.HTTPStatus("GET /api/project/P1/dashboard", 503, ""))

	var alerts []int
	p := New("dashboard", src.fetch, func(Result) bool { return true },
		WithAlert(func(failures int, err error) { alerts = append(alerts, failures) }))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		assert.Error(t, p.Poll(ctx))
	}
	assert.Equal(t, []int{3}, alerts, "alert must be raised once per failure streak")
	assert.Equal(t, 5, p.Failures())

	src.set(map[string]interface{}{"ok": true}, nil)
	require.NoError(t, p.Poll(ctx))
	assert.Zero(t, p.Failures())

	src.set(nil, fmt.Errorf("boom"))
	for i := 0; i < 3; i++ {
		_ = p.Poll(ctx)
	}
	assert.Equal(t, []int{3, 3}, alerts)
}

func TestFailureKeepsLastApplied(t *testing.T) {
	src := &fakeSource{}
	src.set(map[string]interface{}{"v": 1}, nil)
	var last Result
	p := New("dashboard", src.fetch, func(r Result) bool {
		last = r
		return true
	})

	require.NoError(t, p.Poll(context.Background()))
	src.set(nil, fmt.Errorf("timeout"))
	_ = p.Poll(context.Background())

	assert.Equal(t, map[string]interface{}{"v": 1}, last.Snapshot)
}

func TestStartStop(t *testing.T) {
	src := &fakeSource{}
	src.set(map[string]interface{}{"v": 1}, nil)
	var applied int32
	p := New("dashboard", src.fetch, func(Result) bool {
		atomic.AddInt32(&applied, 1)
		return true
	})

	// Stop before Start is safe.
	p.Stop()

	ctx := context.Background()
	p.Start(ctx, 5*time.Millisecond)
	p.Start(ctx, time.Millisecond) // no-op
	assert.True(t, p.Running())

	require.Eventually(t, func() bool { return src.count() >= 3 }, time.Second, time.Millisecond)

	p.Stop()
	p.Stop()
	p.Wait()
	assert.False(t, p.Running())

	after := src.count()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, src.count(), "no fetches after Stop")
	assert.Equal(t, int32(1), atomic.LoadInt32(&applied))
}

func TestTriggerNow(t *testing.T) {
	src := &fakeSource{}
	src.set(map[string]interface{}{"v": 1}, nil)
	p := New("dashboard", src.fetch, func(Result) bool { return true })

	p.TriggerNow()
	p.Wait()
	assert.Zero(t, src.count(), "TriggerNow on a stopped poller is a no-op")

	p.Start(context.Background(), time.Hour)
	p.TriggerNow()
	require.Eventually(t, func() bool { return src.count() == 1 }, time.Second, time.Millisecond)
	p.Stop()
	p.Wait()
}

func TestSlowFetchDoesNotBlockTicks(t *testing.T) {
	release := make(chan struct{})
	var started int32
	fetch := func(ctx context.Context) (Result, error) {
		atomic.AddInt32(&started, 1)
		select {
		case <-release:
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
		return Result{Snapshot: 1}, nil
	}
	p := New("slow", fetch, func(Result) bool { return true })

	p.Start(context.Background(), 5*time.Millisecond)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&started) >= 3 }, time.Second, time.Millisecond)
	p.Stop()
	close(release)
	p.Wait()
	assert.Zero(t, p.Failures(), "cancelled fetches are not failures")
}

func TestJitteredInterval(t *testing.T) {
	base := 30 * time.Second
	assert.Equal(t, base, jitteredIntervalWithSample(base, 0, 0.9))
	assert.Equal(t, 24*time.Second, jitteredIntervalWithSample(base, 0.2, 0))
	assert.Equal(t, 36*time.Second, jitteredIntervalWithSample(base, 0.2, 1))
	assert.Equal(t, 15*time.Second, jitteredIntervalWithSample(base, 0.9, 0), "ratio is clamped")
	assert.Zero(t, jitteredIntervalWithSample(0, 0.2, 0.5))
}
