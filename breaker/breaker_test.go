package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func testBreaker(t *testing.T) (*Breaker, *time.Time) {
	t.Helper()
	var b = New("test", Config{
		FailureThreshold:    3,
		SuccessThreshold:    2,
		OpenTimeout:         time.Minute,
		HalfOpenMaxRequests: 2,
	})
	var clock = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return clock }
	return b, &clock
}

func fail(b *Breaker) error { return b.Call(func() error { return errBoom }) }

func succeed(b *Breaker) error { return b.Call(func() error { return nil }) }

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	var b, _ = testBreaker(t)

	require.ErrorIs(t, fail(b), errBoom)
	require.ErrorIs(t, fail(b), errBoom)
	require.Equal(t, Closed, b.State())

	require.ErrorIs(t, fail(b), errBoom)
	require.Equal(t, Open, b.State())
}

func TestOpenRejectsWithoutCalling(t *testing.T) {
	var b, _ = testBreaker(t)
	for i := 0; i < 3; i++ {
		fail(b)
	}

	var called bool
	var err = b.Call(func() error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, ErrOpen)
	require.False(t, called)
}

func TestSuccessResetsFailureStreak(t *testing.T) {
	var b, _ = testBreaker(t)

	fail(b)
	fail(b)
	require.NoError(t, succeed(b))

	// The streak restarts: two more failures stay under the threshold.
	fail(b)
	fail(b)
	require.Equal(t, Closed, b.State())
}

func TestHalfOpenAfterTimeout(t *testing.T) {
	var b, clock = testBreaker(t)
	for i := 0; i < 3; i++ {
		fail(b)
	}

	*clock = clock.Add(59 * time.Second)
	require.Equal(t, Open, b.State())

	*clock = clock.Add(time.Second)
	require.Equal(t, HalfOpen, b.State())
}

func TestHalfOpenClosesAfterSuccessThreshold(t *testing.T) {
	var b, clock = testBreaker(t)
	for i := 0; i < 3; i++ {
		fail(b)
	}
	*clock = clock.Add(time.Minute)

	require.NoError(t, succeed(b))
	require.Equal(t, HalfOpen, b.State())
	require.NoError(t, succeed(b))
	require.Equal(t, Closed, b.State())
}

func TestHalfOpenReopensOnFailure(t *testing.T) {
	var b, clock = testBreaker(t)
	for i := 0; i < 3; i++ {
		fail(b)
	}
	*clock = clock.Add(time.Minute)

	require.NoError(t, succeed(b))
	require.ErrorIs(t, fail(b), errBoom)
	require.Equal(t, Open, b.State())

	// A reopen restarts the timeout from the failed probe.
	*clock = clock.Add(30 * time.Second)
	require.Equal(t, Open, b.State())
	*clock = clock.Add(30 * time.Second)
	require.Equal(t, HalfOpen, b.State())
}

func TestHalfOpenCapsConcurrentProbes(t *testing.T) {
	var b, clock = testBreaker(t)
	for i := 0; i < 3; i++ {
		fail(b)
	}
	*clock = clock.Add(time.Minute)

	// Hold two probes in flight; a third is rejected while they run.
	var release = make(chan struct{})
	var rejected = make(chan error, 1)
	var admitted = make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		go b.Call(func() error {
			admitted <- struct{}{}
			<-release
			return nil
		})
	}
	<-admitted
	<-admitted

	go func() { rejected <- b.Call(func() error { return nil }) }()
	require.ErrorIs(t, <-rejected, ErrOpen)
	close(release)
}

func TestDefaultsApplyToNonPositiveConfig(t *testing.T) {
	var b = New("test", Config{})
	require.Equal(t, DefaultConfig(), b.cfg)
}

func TestMetricsSnapshot(t *testing.T) {
	var b, _ = testBreaker(t)
	fail(b)
	fail(b)

	var m = b.Metrics()
	require.Equal(t, "test", m.Name)
	require.Equal(t, "closed", m.State)
	require.Equal(t, 2, m.Failures)

	fail(b)
	require.Equal(t, "open", b.Metrics().State)
}
