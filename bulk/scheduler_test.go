package bulk

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeRefresher struct {
	updated    atomic.Bool
	checkErr   atomic.Bool
	shouldLoad atomic.Bool

	checks int32
	loads  int32
}

func (f *fakeRefresher) CheckUpstreamUpdated(context.Context) (bool, error) {
	atomic.AddInt32(&f.checks, 1)
	if f.checkErr.Load() {
		return false, errors.New("catalog unreachable")
	}
	return f.updated.Load(), nil
}

func (f *fakeRefresher) ShouldLoad(context.Context) (bool, error) {
	return f.shouldLoad.Load(), nil
}

func (f *fakeRefresher) Load(context.Context) error {
	atomic.AddInt32(&f.loads, 1)
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	var deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestSchedulerDisabledIsNoop(t *testing.T) {
	var fake = &fakeRefresher{}
	var s = StartScheduler(fake, false, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	s.Stop()
	require.Zero(t, atomic.LoadInt32(&fake.checks))
}

func TestSchedulerLoadsWhenUpstreamUpdated(t *testing.T) {
	var fake = &fakeRefresher{}
	fake.updated.Store(true)

	var s = StartScheduler(fake, true, 10*time.Millisecond)
	defer s.Stop()

	waitFor(t, func() bool { return atomic.LoadInt32(&fake.loads) >= 1 })
}

func TestSchedulerSkipsWhenUnchanged(t *testing.T) {
	var fake = &fakeRefresher{}

	var s = StartScheduler(fake, true, 10*time.Millisecond)
	defer s.Stop()

	waitFor(t, func() bool { return atomic.LoadInt32(&fake.checks) >= 3 })
	require.Zero(t, atomic.LoadInt32(&fake.loads))
}

func TestSchedulerFallsBackToTimeBasedCheck(t *testing.T) {
	var fake = &fakeRefresher{}
	fake.checkErr.Store(true)
	fake.shouldLoad.Store(true)

	var s = StartScheduler(fake, true, 10*time.Millisecond)
	defer s.Stop()

	waitFor(t, func() bool { return atomic.LoadInt32(&fake.loads) >= 1 })
}

func TestSchedulerFirstTickWaitsFullInterval(t *testing.T) {
	var fake = &fakeRefresher{}
	fake.updated.Store(true)

	var s = StartScheduler(fake, true, 250*time.Millisecond)
	defer s.Stop()

	time.Sleep(50 * time.Millisecond)
	require.Zero(t, atomic.LoadInt32(&fake.checks))
}

func TestSchedulerStopDrains(t *testing.T) {
	var fake = &fakeRefresher{}
	var s = StartScheduler(fake, true, time.Hour)

	var done = make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}
