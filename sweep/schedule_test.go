package sweep

import (
	"context"
	"errors"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRunsOnceWithoutSpec(t *testing.T) {
	s, err := NewScheduler("")
	require.NoError(t, err)

	runs := 0
	err = s.Run(context.Background(), logr.Discard(), func(context.Context) error {
		runs++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, runs)
}

func TestSchedulerPropagatesSingleRunError(t *testing.T) {
	s, err := NewScheduler("")
	require.NoError(t, err)

	want := errors.New("sweep failed")
	err = s.Run(context.Background(), logr.Discard(), func(context.Context) error { return want })
	assert.ErrorIs(t, err, want)
}

func TestSchedulerRejectsInvalidSpec(t *testing.T) {
	_, err := NewScheduler("not a cron spec")
	assert.Error(t, err)
}

func TestSchedulerStopsOnContextCancel(t *testing.T) {
	s, err := NewScheduler("* * * * *")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = s.Run(ctx, logr.Discard(), func(context.Context) error {
		t.Fatal("must not run after cancellation")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
