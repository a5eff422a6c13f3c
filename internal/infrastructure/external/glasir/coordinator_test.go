package glasir

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAIMDCoordinator_AdditiveIncrease(t *testing.T) {
	c := NewAIMDCoordinator(AIMDConfig{
		InitialLimit:  4,
		MinLimit:      2,
		MaxLimit:      6,
		SuccessWindow: 3,
	})

	c.ReportSuccess()
	c.ReportSuccess()
	assert.Equal(t, 4, c.Limit(), "window not yet earned")

	c.ReportSuccess()
	assert.Equal(t, 5, c.Limit())

	for i := 0; i < 9; i++ {
		c.ReportSuccess()
	}
	assert.Equal(t, 6, c.Limit(), "limit never exceeds the ceiling")
}

func TestAIMDCoordinator_MultiplicativeDecrease(t *testing.T) {
	c := NewAIMDCoordinator(AIMDConfig{
		InitialLimit:  16,
		MinLimit:      2,
		MaxLimit:      20,
		SuccessWindow: 5,
	})

	c.ReportFailure()
	assert.Equal(t, 8, c.Limit())

	c.ReportFailure()
	c.ReportFailure()
	c.ReportFailure()
	assert.Equal(t, 2, c.Limit(), "limit never drops below the floor")
}

func TestAIMDCoordinator_FailureResetsStreak(t *testing.T) {
	c := NewAIMDCoordinator(AIMDConfig{
		InitialLimit:  4,
		MinLimit:      2,
		MaxLimit:      8,
		SuccessWindow: 3,
	})

	c.ReportSuccess()
	c.ReportSuccess()
	c.ReportFailure()
	assert.Equal(t, 2, c.Limit())

	c.ReportSuccess()
	c.ReportSuccess()
	assert.Equal(t, 2, c.Limit(), "earlier successes do not carry over a failure")

	c.ReportSuccess()
	assert.Equal(t, 3, c.Limit())
}

func TestAIMDCoordinator_AcquireBlocksAtLimit(t *testing.T) {
	c := NewAIMDCoordinator(AIMDConfig{
		InitialLimit:  1,
		MinLimit:      1,
		MaxLimit:      1,
		SuccessWindow: 1,
	})

	require.NoError(t, c.Acquire(context.Background()))

	blocked := make(chan error, 1)
	go func() {
		blocked <- c.Acquire(context.Background())
	}()

	select {
	case err := <-blocked:
		t.Fatalf("second acquire should block, got %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	c.Release()
	select {
	case err := <-blocked:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("release did not wake the waiter")
	}
}

func TestAIMDCoordinator_AcquireHonorsContext(t *testing.T) {
	c := NewAIMDCoordinator(AIMDConfig{
		InitialLimit:  1,
		MinLimit:      1,
		MaxLimit:      1,
		SuccessWindow: 1,
	})
	require.NoError(t, c.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAIMDCoordinator_ConfigSanitized(t *testing.T) {
	c := NewAIMDCoordinator(AIMDConfig{InitialLimit: 0, MinLimit: 0, MaxLimit: -1, SuccessWindow: 0})
	assert.Equal(t, 1, c.Limit())
}
