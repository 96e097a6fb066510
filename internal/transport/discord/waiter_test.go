package discord

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplyWaiter_Deliver(t *testing.T) {
	w := NewReplyWaiter()
	got := make(chan string, 1)
	go func() {
		reply, err := w.Await(context.Background(), "c:u", time.Second)
		assert.NoError(t, err)
		got <- reply
	}()

	require.Eventually(t, func() bool { return w.Pending() == 1 }, time.Second, time.Millisecond)
	assert.False(t, w.Deliver("c:other", "ignored"))
	assert.True(t, w.Deliver("c:u", "hello"))
	assert.Equal(t, "hello", <-got)
	assert.Zero(t, w.Pending())
}

func TestReplyWaiter_DeliverWithoutWaiter(t *testing.T) {
	w := NewReplyWaiter()
	assert.False(t, w.Deliver("c:u", "nobody listens"))
}

func TestReplyWaiter_Timeout(t *testing.T) {
	w := NewReplyWaiter()
	_, err := w.Await(context.Background(), "c:u", 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrReplyTimeout)
	assert.Zero(t, w.Pending())
}

func TestReplyWaiter_ContextCancelled(t *testing.T) {
	w := NewReplyWaiter()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := w.Await(ctx, "c:u", time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, w.Pending())
}

func TestReplyWaiter_SecondWaitOnSameKeyIsRejected(t *testing.T) {
	w := NewReplyWaiter()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = w.Await(context.Background(), "c:u", time.Second)
	}()
	require.Eventually(t, func() bool { return w.Pending() == 1 }, time.Second, time.Millisecond)

	_, err := w.Await(context.Background(), "c:u", time.Second)
	assert.ErrorIs(t, err, ErrAlreadyWaiting)

	// A different author in the same channel waits independently.
	_, err = w.Await(context.Background(), "c:u2", 5*time.Millisecond)
	assert.ErrorIs(t, err, ErrReplyTimeout)

	w.Deliver("c:u", "done")
	<-done
	assert.Zero(t, w.Pending())
}
