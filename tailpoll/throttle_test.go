package tailpoll_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/txnfeed/txnfeed/tailpoll"
)

func TestWaitReturnsImmediatelyWithoutObservation(t *testing.T) {
	var th = tailpoll.New(time.Hour)
	var start = time.Now()
	require.NoError(t, th.Wait(context.Background(), "t9.cp"))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestWaitReturnsImmediatelyOnDifferentCursor(t *testing.T) {
	var th = tailpoll.New(time.Hour)
	th.Observe("t9.cp", time.Now())
	require.NoError(t, th.Wait(context.Background(), "other.cp"))
}

func TestWaitSleepsRemainderOnMatchingCursor(t *testing.T) {
	var th = tailpoll.New(80 * time.Millisecond)
	var observedAt = time.Now()
	th.Observe("t9.cp", observedAt)

	var start = time.Now()
	require.NoError(t, th.Wait(context.Background(), "t9.cp"))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond-time.Since(observedAt)-5*time.Millisecond)
}

func TestWaitHonorsContextCancellation(t *testing.T) {
	var th = tailpoll.New(time.Hour)
	th.Observe("t9.cp", time.Now())

	var ctx, cancel = context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	var err = th.Wait(ctx, "t9.cp")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestObserveOverwritesPreviousRecord(t *testing.T) {
	var th = tailpoll.New(time.Hour)
	th.Observe("a", time.Now())
	th.Observe("b", time.Now())
	require.Equal(t, "b", th.Current().Checkpoint)
}
