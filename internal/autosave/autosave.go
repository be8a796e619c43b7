// Package autosave coalesces rapid edits into a single delayed write.
package autosave

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// SaveFunc persists the latest content.
type SaveFunc func(ctx context.Context, content string) error

var ErrClosed = errors.New("autosave closed")

// Debouncer is a trailing-edge debounce: every Schedule restarts the timer and
// replaces the pending content, so only the last edit of a burst is written.
// Writes never overlap, which keeps them in edit order at the backend.
type Debouncer struct {
	delay   time.Duration
	save    SaveFunc
	timeout time.Duration
	logger  *log.Logger
	onError func(error)

	mu      sync.Mutex
	timer   *time.Timer
	pending *string
	closed  bool
	lastErr error

	saveMu sync.Mutex
}

type Option func(*Debouncer)

func WithLogger(l *log.Logger) Option {
	return func(d *Debouncer) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithErrorHandler is called when a timer-driven save fails.
func WithErrorHandler(fn func(error)) Option {
	return func(d *Debouncer) { d.onError = fn }
}

// WithSaveTimeout bounds timer-driven saves, which have no caller context.
func WithSaveTimeout(timeout time.Duration) Option {
	return func(d *Debouncer) { d.timeout = timeout }
}

func New(delay time.Duration, save SaveFunc, opts ...Option) *Debouncer {
	d := &Debouncer{
		delay:   delay,
		save:    save,
		timeout: 30 * time.Second,
		logger:  log.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Schedule records content as the pending write and restarts the delay,
// canceling any write that has not started yet.
func (d *Debouncer) Schedule(content string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.pending = &content
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fire)
	return nil
}

// Pending reports whether an edit is waiting for its timer.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

// LastError is the error of the most recent failed save, if any.
func (d *Debouncer) LastError() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr
}

// Flush writes any pending content now and waits for an in-flight write.
func (d *Debouncer) Flush(ctx context.Context) error {
	content, ok := d.take()
	if !ok {
		d.saveMu.Lock()
		d.saveMu.Unlock()
		return nil
	}
	return d.write(ctx, content)
}

// Cancel drops the pending content without writing it.
func (d *Debouncer) Cancel() {
	d.take()
}

// Close flushes the pending write and rejects further edits.
func (d *Debouncer) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return d.Flush(ctx)
}

func (d *Debouncer) take() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.pending == nil {
		return "", false
	}
	content := *d.pending
	d.pending = nil
	return content, true
}

func (d *Debouncer) fire() {
	content, ok := d.take()
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.write(ctx, content); err != nil {
		d.logger.Printf("autosave: write failed: %v", err)
		if d.onError != nil {
			d.onError(err)
		}
	}
}

func (d *Debouncer) write(ctx context.Context, content string) error {
	d.saveMu.Lock()
	defer d.saveMu.Unlock()
	err := d.save(ctx, content)
	d.mu.Lock()
	d.lastErr = err
	d.mu.Unlock()
	return err
}
