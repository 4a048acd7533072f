package api_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/hotel-loyalty-engine/api"
	"github.com/warp/hotel-loyalty-engine/loyalty"
)

type countingExpirer struct {
	calls atomic.Int32
	asOf  atomic.Value
	err   error
}

func (c *countingExpirer) ExpireAll(_ context.Context, asOf time.Time) (loyalty.SweepResult, error) {
	c.calls.Add(1)
	c.asOf.Store(asOf)
	return loyalty.SweepResult{Members: 3, Changed: 1, Points: 40}, c.err
}

func TestExpirationScheduler_RunOnce(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	exp := &countingExpirer{}
	s := api.NewExpirationScheduler(exp, nil)
	s.Clock = func() time.Time { return fixed }

	res, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(40), res.Points)
	assert.Equal(t, fixed, exp.asOf.Load())
}

func TestExpirationScheduler_RunOnceError(t *testing.T) {
	exp := &countingExpirer{err: errors.New("db down")}
	s := api.NewExpirationScheduler(exp, nil)

	_, err := s.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestExpirationScheduler_StartRunsImmediatelyAndStops(t *testing.T) {
	exp := &countingExpirer{}
	s := api.NewExpirationScheduler(exp, nil)
	s.CheckInterval = 10 * time.Millisecond

	s.Start()
	assert.Eventually(t, func() bool { return exp.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	s.Stop()

	after := exp.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, exp.calls.Load(), "no runs after Stop")
}

func TestExpirationScheduler_Disabled(t *testing.T) {
	exp := &countingExpirer{}
	s := api.NewExpirationScheduler(exp, nil)
	s.Enabled = false

	s.Start()
	s.Stop()
	assert.Equal(t, int32(0), exp.calls.Load())
}
