// ABOUTME: Bounded single-producer/single-consumer request channel
// ABOUTME: Lets the real-time render goroutine ask the control goroutine to act without blocking
package mqueue

import (
	"context"
	"sync/atomic"
)

// Request is a message kind carried by the channel
type Request uint8

const (
	// Reopen asks the control goroutine to reopen the sink at the desired rate
	Reopen Request = iota + 1
)

// String returns the request name
func (r Request) String() string {
	switch r {
	case Reopen:
		return "reopen"
	default:
		return "unknown"
	}
}

// Channel is a bounded request channel.
//
// A slot is occupied from TryPost until the consumer calls Done, so with
// depth 1 at most one request is ever in flight, including the one being
// handled. TryPost never blocks and never allocates.
type Channel struct {
	queue chan Request
	slots chan struct{}
	held  atomic.Int32
}

// NewChannel creates a channel with room for depth outstanding requests.
// Depth below one is raised to one.
func NewChannel(depth int) *Channel {
	if depth < 1 {
		depth = 1
	}
	return &Channel{
		queue: make(chan Request, depth),
		slots: make(chan struct{}, depth),
	}
}

// TryPost enqueues req if a slot is free and reports whether it did
func (c *Channel) TryPost(req Request) bool {
	select {
	case c.slots <- struct{}{}:
	default:
		return false
	}
	c.held.Add(1)
	// queue has the same depth as slots, so this cannot block
	c.queue <- req
	return true
}

// Receive blocks until a request arrives or ctx ends.
// The caller must call Done once the request has been handled.
func (c *Channel) Receive(ctx context.Context) (Request, error) {
	select {
	case req := <-c.queue:
		return req, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// TryReceive returns a request if one is queued
func (c *Channel) TryReceive() (Request, bool) {
	select {
	case req := <-c.queue:
		return req, true
	default:
		return 0, false
	}
}

// Done acknowledges a handled request and frees its slot.
// Calling Done with no request outstanding is a no-op.
func (c *Channel) Done() {
	for {
		n := c.held.Load()
		if n <= 0 {
			return
		}
		if c.held.CompareAndSwap(n, n-1) {
			<-c.slots
			return
		}
	}
}

// Pending returns the number of occupied slots, queued or being handled
func (c *Channel) Pending() int {
	return int(c.held.Load())
}
