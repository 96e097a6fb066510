package discord

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrReplyTimeout is returned when nobody answered within the wait window.
var ErrReplyTimeout = errors.New("timed out waiting for reply")

// ErrAlreadyWaiting is returned when a reply for the same key is already awaited.
var ErrAlreadyWaiting = errors.New("already waiting for a reply")

type pendingReply struct {
	ch chan string
}

// ReplyWaiter hands the next message of one author in one channel to a waiting command.
type ReplyWaiter struct {
	mu      sync.Mutex
	pending map[string]*pendingReply
}

func NewReplyWaiter() *ReplyWaiter {
	return &ReplyWaiter{pending: make(map[string]*pendingReply)}
}

func replyKey(channelID, authorID string) string {
	return channelID + ":" + authorID
}

// Await blocks until Deliver is called for key, the timeout elapses or ctx ends. The
// slot is always released before Await returns.
func (w *ReplyWaiter) Await(ctx context.Context, key string, timeout time.Duration) (string, error) {
	p := &pendingReply{ch: make(chan string, 1)}
	w.mu.Lock()
	if _, busy := w.pending[key]; busy {
		w.mu.Unlock()
		return "", ErrAlreadyWaiting
	}
	w.pending[key] = p
	w.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var cause error
	select {
	case reply := <-p.ch:
		return reply, nil
	case <-timer.C:
		cause = ErrReplyTimeout
	case <-ctx.Done():
		cause = ctx.Err()
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending[key] == p {
		delete(w.pending, key)
		return "", cause
	}
	// Deliver claimed the slot just before the deadline; its reply is already buffered.
	return <-p.ch, nil
}

// Deliver passes content to the waiter for key. It reports whether a waiter took it.
func (w *ReplyWaiter) Deliver(key, content string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.pending[key]
	if !ok {
		return false
	}
	delete(w.pending, key)
	p.ch <- content
	return true
}

// Pending returns the number of outstanding waits.
func (w *ReplyWaiter) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}
