// Package actor provides a single-writer mailbox: every operation submitted to
// a Mailbox runs on one goroutine, one at a time, in arrival order.
package actor

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// ErrStopped is returned for operations submitted after Stop.
var ErrStopped = errors.New("actor stopped")

const defaultMailboxSize = 256

// Mailbox serialises closures onto a single goroutine.
type Mailbox struct {
	inbox    chan func()
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	logger   *slog.Logger
}

// NewMailbox starts a mailbox that queues up to size pending operations.
func NewMailbox(size int, logger *slog.Logger) *Mailbox {
	if size <= 0 {
		size = defaultMailboxSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Mailbox{
		inbox:  make(chan func(), size),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger,
	}
	go m.run()
	return m
}

func (m *Mailbox) run() {
	defer close(m.done)
	for {
		select {
		case <-m.quit:
			return
		case fn := <-m.inbox:
			m.invoke(fn)
		}
	}
}

func (m *Mailbox) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Actor operation panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn()
}

// Do runs fn on the mailbox goroutine and waits for it to finish.
// It must not be called from inside another operation of the same mailbox.
func (m *Mailbox) Do(ctx context.Context, fn func()) error {
	reply := make(chan struct{})
	wrapped := func() {
		defer close(reply)
		fn()
	}

	select {
	case m.inbox <- wrapped:
	case <-m.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-reply:
		return nil
	case <-m.done:
		select {
		case <-reply:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		// fn stays queued and will still run; the caller just stops waiting.
		return ctx.Err()
	}
}

// Post queues fn without waiting. It reports false if the mailbox is stopped.
func (m *Mailbox) Post(fn func()) bool {
	select {
	case <-m.quit:
		return false
	default:
	}
	select {
	case m.inbox <- fn:
		return true
	case <-m.quit:
		return false
	}
}

// AfterFunc posts fn into the mailbox once d has elapsed. Stopping the
// returned timer cancels it; after the mailbox stops the callback is inert.
func (m *Mailbox) AfterFunc(d time.Duration, fn func()) *time.Timer {
	return time.AfterFunc(d, func() {
		m.Post(fn)
	})
}

// Every posts fn into the mailbox every interval until the mailbox stops.
// A tick is skipped rather than queued twice when the previous one has not
// been picked up yet.
func (m *Mailbox) Every(interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	pending := make(chan struct{}, 1)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-m.quit:
				return
			case <-ticker.C:
				select {
				case pending <- struct{}{}:
				default:
					continue
				}
				if !m.Post(func() {
					<-pending
					fn()
				}) {
					return
				}
			}
		}
	}()
}

// Stop halts the mailbox. Queued operations that have not started are
// discarded and their callers receive ErrStopped.
func (m *Mailbox) Stop() {
	m.stopOnce.Do(func() {
		close(m.quit)
	})
	<-m.done
}

// stopped reports whether Stop has been called.
func (m *Mailbox) stopped() bool {
	select {
	case <-m.quit:
		return true
	default:
		return false
	}
}
