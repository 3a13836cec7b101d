package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRunsAndStops(t *testing.T) {
	s := NewScheduler(nil)
	var runs atomic.Int32
	require.NoError(t, s.Every("tick", time.Second, func(ctx context.Context) {
		runs.Add(1)
	}))

	s.Start()
	require.Eventually(t, func() bool { return runs.Load() > 0 }, 3*time.Second, 20*time.Millisecond)
	s.Stop()
	s.Stop()
}

func TestSchedulerRejectsNonPositiveInterval(t *testing.T) {
	s := NewScheduler(nil)
	assert.Error(t, s.Every("bad", 0, func(context.Context) {}))
}
