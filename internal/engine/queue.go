package engine

import (
	"context"
	"sync"
)

// command is an administrative action executed by the Run goroutine.
// reply is nil for fire-and-forget commands.
type command struct {
	name  string
	run   func(ctx context.Context) error
	reply chan error
}

// commandQueue is a thread-safe FIFO of commands.
//
// HTTP handlers and CLI code enqueue from their own goroutines; only the
// engine's Run loop dequeues. A size-1 signal channel lets Run wait on the
// queue in a select alongside context cancellation.
type commandQueue struct {
	mu       sync.Mutex
	commands []command
	closed   bool
	signal   chan struct{}
}

func newCommandQueue() *commandQueue {
	return &commandQueue{
		commands: make([]command, 0, 16),
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue appends cmd. It returns false once the queue is closed.
func (q *commandQueue) Enqueue(cmd command) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.commands = append(q.commands, cmd)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the oldest command without blocking.
func (q *commandQueue) TryDequeue() (command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.commands) == 0 {
		return command{}, false
	}
	cmd := q.commands[0]
	// Clear the slot so the closure can be collected.
	q.commands[0] = command{}
	if len(q.commands) == 1 {
		q.commands = q.commands[:0]
	} else {
		q.commands = q.commands[1:]
	}
	return cmd, true
}

// Wait returns a channel that receives when commands may be available.
// It is closed when the queue is closed.
func (q *commandQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of pending commands.
func (q *commandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.commands)
}

// Close stops accepting commands and wakes the waiter.
func (q *commandQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
