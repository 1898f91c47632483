package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 5*time.Minute, cfg.Interval)
	assert.Equal(t, time.Minute, cfg.JobTimeout)
	assert.False(t, cfg.RunOnStart)
}

func TestScheduler_Register(t *testing.T) {
	s := NewScheduler(DefaultConfig(), zap.NewNop())
	noop := func(context.Context) error { return nil }

	require.NoError(t, s.Register(NewJob("evict", noop)))
	err := s.Register(NewJob("evict", noop))
	assert.ErrorIs(t, err, ErrDuplicateJob)

	states := s.States()
	require.Len(t, states, 1)
	assert.Equal(t, JobStatusPending, states[0].Status)
	assert.Equal(t, 0, states[0].Runs)
}

func TestScheduler_RunOnceRecordsOutcomes(t *testing.T) {
	s := NewScheduler(DefaultConfig(), nil)

	var order []string
	require.NoError(t, s.Register(NewJob("b-fails", func(context.Context) error {
		order = append(order, "b-fails")
		return errors.New("disk full")
	})))
	require.NoError(t, s.Register(NewJob("a-works", func(context.Context) error {
		order = append(order, "a-works")
		return nil
	})))
	require.NoError(t, s.Register(NewJob("c-panics", func(context.Context) error {
		order = append(order, "c-panics")
		panic("boom")
	})))

	s.RunOnce(context.Background())
	s.RunOnce(context.Background())

	assert.Equal(t, []string{"b-fails", "a-works", "c-panics", "b-fails", "a-works", "c-panics"}, order)

	states := s.States()
	require.Len(t, states, 3)

	assert.Equal(t, "a-works", states[0].Name)
	assert.Equal(t, JobStatusSuccess, states[0].Status)
	assert.Equal(t, 2, states[0].Runs)
	assert.Equal(t, 0, states[0].Failures)
	assert.NotNil(t, states[0].CompletedAt)

	assert.Equal(t, JobStatusFailed, states[1].Status)
	assert.Equal(t, "disk full", states[1].Error)
	assert.Equal(t, 2, states[1].Failures)

	assert.Equal(t, JobStatusFailed, states[2].Status)
	assert.Contains(t, states[2].Error, ErrJobPanicked.Error())
	assert.Contains(t, states[2].Error, "boom")
}

func TestScheduler_JobTimeout(t *testing.T) {
	s := NewScheduler(Config{Interval: time.Hour, JobTimeout: 20 * time.Millisecond}, nil)
	require.NoError(t, s.Register(NewJob("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})))

	s.RunOnce(context.Background())

	states := s.States()
	require.Len(t, states, 1)
	assert.Equal(t, JobStatusFailed, states[0].Status)
	assert.Equal(t, context.DeadlineExceeded.Error(), states[0].Error)
}

func TestScheduler_StartTicksUntilStopped(t *testing.T) {
	s := NewScheduler(Config{Interval: 10 * time.Millisecond, JobTimeout: time.Second, RunOnStart: true}, nil)

	var runs atomic.Int32
	require.NoError(t, s.Register(NewJob("tick", func(context.Context) error {
		runs.Add(1)
		return nil
	})))

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	assert.ErrorIs(t, s.Register(NewJob("late", func(context.Context) error { return nil })), ErrSchedulerRunning)

	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.False(t, s.IsRunning())

	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, runs.Load())

	// stopping twice is a no-op
	assert.NoError(t, s.Stop(ctx))
}

func TestScheduler_StartRejectsInvalidConfig(t *testing.T) {
	s := NewScheduler(Config{}, nil)
	assert.ErrorIs(t, s.Start(context.Background()), ErrInvalidConfig)
	assert.False(t, s.IsRunning())
}
