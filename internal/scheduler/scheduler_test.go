package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/dynodom/internal/odom"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type countingTarget struct {
	configured atomic.Bool
	updates    atomic.Int64
	work       func()
}

func (c *countingTarget) Update() {
	c.updates.Add(1)
	if c.work != nil {
		c.work()
	}
}

func (c *countingTarget) Configured() bool { return c.configured.Load() }

func newConfigured() *countingTarget {
	tgt := &countingTarget{}
	tgt.configured.Store(true)
	return tgt
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default", DefaultConfig(), false},
		{"lower bound", Config{FrequencyHz: 50}, false},
		{"upper bound", Config{FrequencyHz: 1000}, false},
		{"too slow", Config{FrequencyHz: 10}, true},
		{"too fast", Config{FrequencyHz: 2000}, true},
		{"negative jitter", Config{FrequencyHz: 100, MaxJitter: -time.Microsecond}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	assert.Equal(t, 100, cfg.FrequencyHz)
	assert.True(t, cfg.AutoStart)
	assert.Equal(t, 500*time.Microsecond, cfg.MaxJitter)
	assert.Equal(t, 10*time.Millisecond, cfg.Interval())
}

func TestStartRequiresSensors(t *testing.T) {
	t.Parallel()

	s, err := New(&countingTarget{}, DefaultConfig())
	require.NoError(t, err)

	assert.ErrorIs(t, s.Start(), ErrSensorsNotConfigured)
	assert.ErrorIs(t, s.Pause(), ErrNotRunning)
	assert.ErrorIs(t, s.UpdateConfig(Config{FrequencyHz: 1}), ErrInvalidConfig)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := New(newConfigured(), Config{FrequencyHz: 0})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDeadlineDiscipline(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{t: time.Unix(0, 0)}
	tgt := newConfigured()
	tgt.work = func() { clk.Advance(200 * time.Microsecond) }

	s, err := New(tgt, DefaultConfig(), WithClock(clk.Now))
	require.NoError(t, err)
	s.apply(Command{Kind: CmdStart})

	interval := s.Config().Interval()
	first := s.Deadline()
	for n := 1; n <= 50; n++ {
		clk.Set(s.Deadline())
		wait := s.cycle()
		assert.Equal(t, time.Duration(n)*interval, s.Deadline().Sub(first), "cycle %d", n)
		assert.Equal(t, interval-200*time.Microsecond, wait)
	}

	st := s.Stats()
	assert.EqualValues(t, 50, st.UpdatesCompleted)
	assert.Zero(t, st.JitterViolations)
	assert.Equal(t, 200*time.Microsecond, st.MinUpdateTime)
	assert.Equal(t, 200*time.Microsecond, st.MaxUpdateTime)
	assert.Equal(t, 200*time.Microsecond, st.AverageUpdateTime())
}

func TestLateCycleReanchors(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{t: time.Unix(0, 0)}
	tgt := newConfigured()
	s, err := New(tgt, DefaultConfig(), WithClock(clk.Now))
	require.NoError(t, err)
	s.apply(Command{Kind: CmdStart})

	deadline := s.Deadline()
	clk.Set(deadline.Add(3 * time.Millisecond))
	s.cycle()

	assert.EqualValues(t, 1, s.Stats().JitterViolations)
	assert.Equal(t, clk.Now().Add(10*time.Millisecond), s.Deadline())

	// within tolerance is not late
	clk.Set(s.Deadline().Add(400 * time.Microsecond))
	s.cycle()
	assert.EqualValues(t, 1, s.Stats().JitterViolations)
}

func TestNotDueDoesNotUpdate(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{t: time.Unix(0, 0)}
	tgt := newConfigured()
	s, err := New(tgt, DefaultConfig(), WithClock(clk.Now))
	require.NoError(t, err)
	s.apply(Command{Kind: CmdStart})
	s.cycle()

	clk.Advance(4 * time.Millisecond)
	wait := s.cycle()
	assert.Equal(t, 6*time.Millisecond, wait)
	assert.EqualValues(t, 1, tgt.updates.Load())
}

func TestPauseResumeStop(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{t: time.Unix(0, 0)}
	tgt := newConfigured()
	s, err := New(tgt, DefaultConfig(), WithClock(clk.Now))
	require.NoError(t, err)

	assert.Equal(t, IdlePoll, s.cycle(), "stopped scheduler idles")

	s.apply(Command{Kind: CmdStart})
	s.cycle()
	s.apply(Command{Kind: CmdPause})
	assert.True(t, s.Stats().Paused)

	clk.Advance(time.Second)
	assert.Equal(t, IdlePoll, s.cycle())
	assert.EqualValues(t, 1, tgt.updates.Load())

	s.apply(Command{Kind: CmdResume})
	assert.Equal(t, clk.Now(), s.Deadline(), "resume re-anchors the deadline")
	s.cycle()
	assert.EqualValues(t, 2, tgt.updates.Load())
	assert.Zero(t, s.Stats().JitterViolations)

	s.apply(Command{Kind: CmdStop})
	st := s.Stats()
	assert.False(t, st.Running)
	assert.False(t, st.Paused)
}

func TestOneCommandPerPoll(t *testing.T) {
	t.Parallel()

	s, err := New(newConfigured(), DefaultConfig())
	require.NoError(t, err)

	require.NoError(t, s.Send(context.Background(), Command{Kind: CmdStart}))
	require.NoError(t, s.Send(context.Background(), Command{Kind: CmdPause}))

	s.poll()
	st := s.Stats()
	assert.True(t, st.Running)
	assert.False(t, st.Paused)

	s.poll()
	assert.True(t, s.Stats().Paused)

	s.poll()
	assert.True(t, s.Stats().Paused, "empty queue is a no-op")
}

func TestQueueFull(t *testing.T) {
	t.Parallel()

	s, err := New(newConfigured(), DefaultConfig())
	require.NoError(t, err)

	for i := 0; i < QueueSize; i++ {
		require.NoError(t, s.Start())
	}
	assert.ErrorIs(t, s.Start(), ErrQueueFull)
}

func TestSendBlocksUntilContextDone(t *testing.T) {
	t.Parallel()

	s, err := New(newConfigured(), DefaultConfig())
	require.NoError(t, err)

	for i := 0; i < QueueSize; i++ {
		require.NoError(t, s.Send(context.Background(), Command{Kind: CmdPause}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Send(ctx, Command{Kind: CmdStart}), context.DeadlineExceeded)

	done, stop := context.WithCancel(context.Background())
	stop()
	assert.ErrorIs(t, s.Send(done, Command{Kind: CmdStart}), context.Canceled)
}

func TestSendAppliesOnPoll(t *testing.T) {
	t.Parallel()

	s, err := New(newConfigured(), DefaultConfig())
	require.NoError(t, err)
	s.apply(Command{Kind: CmdStart})

	require.NoError(t, s.Send(context.Background(), Command{Kind: CmdPause}))
	assert.False(t, s.Stats().Paused, "queued commands wait for the loop")
	s.poll()
	assert.True(t, s.Stats().Paused)
}

func TestStartRejectsEmptySensorSet(t *testing.T) {
	t.Parallel()

	e := odom.New()
	e.Configure(odom.Sensors{})
	s, err := New(e, DefaultConfig())
	require.NoError(t, err)

	assert.ErrorIs(t, s.Start(), ErrSensorsNotConfigured)
}

func TestUpdateConfigApplies(t *testing.T) {
	t.Parallel()

	s, err := New(newConfigured(), DefaultConfig())
	require.NoError(t, err)

	cfg := Config{FrequencyHz: 200, MaxJitter: time.Millisecond}
	require.NoError(t, s.UpdateConfig(cfg))
	s.poll()
	assert.Equal(t, cfg, s.Config())
}

func TestRunLoop(t *testing.T) {
	t.Parallel()

	tgt := newConfigured()
	s, err := New(tgt, DefaultConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return tgt.updates.Load() >= 5 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, s.Stats().Running)

	require.NoError(t, s.Pause())
	require.Eventually(t, func() bool { return s.Stats().Paused }, time.Second, 5*time.Millisecond)
	frozen := tgt.updates.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, frozen, tgt.updates.Load())

	require.NoError(t, s.Resume())
	require.Eventually(t, func() bool { return tgt.updates.Load() > frozen }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, s.Stats().Running)
}

func TestRunWithoutAutoStart(t *testing.T) {
	t.Parallel()

	tgt := newConfigured()
	cfg := DefaultConfig()
	cfg.AutoStart = false
	s, err := New(tgt, cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	err = s.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, tgt.updates.Load())
}
