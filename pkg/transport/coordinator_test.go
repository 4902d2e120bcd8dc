package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinatorSerializes(t *testing.T) {
	coord := NewCoordinator()

	require.NoError(t, coord.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := coord.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "second acquire must wait for release")

	coord.Release()
	require.NoError(t, coord.Acquire(context.Background()))
	coord.Release()
}

func TestCoordinatorHandsOffToWaiter(t *testing.T) {
	coord := NewCoordinator()
	require.NoError(t, coord.Acquire(context.Background()))

	acquired := make(chan error, 1)
	go func() {
		acquired <- coord.Acquire(context.Background())
	}()

	select {
	case <-acquired:
		t.Fatal("waiter must not acquire while held")
	case <-time.After(50 * time.Millisecond):
	}

	coord.Release()
	select {
	case err := <-acquired:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired after release")
	}
	coord.Release()
}

func TestCoordinatorReleaseWithoutAcquirePanics(t *testing.T) {
	coord := NewCoordinator()
	assert.Panics(t, func() { coord.Release() })
}
