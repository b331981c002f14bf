// Package store describes the real-time key-value service the dashboard talks
// to. Backends live in sub-packages; callers only see these interfaces.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
)

var (
	// ErrClosed is returned by operations on a closed store or subscription.
	ErrClosed = errors.New("store: closed")
	// ErrPermissionDenied means the backend revoked or refused a listener.
	ErrPermissionDenied = errors.New("store: permission denied")
	// ErrInvalidPath rejects empty or malformed paths.
	ErrInvalidPath = errors.New("store: invalid path")
)

// Snapshot is the value of one path at a point in time.
// Data is nil when nothing is stored there.
type Snapshot struct {
	Path string
	Data json.RawMessage
}

// Exists reports whether the path held a value.
func (s Snapshot) Exists() bool {
	d := strings.TrimSpace(string(s.Data))
	return d != "" && d != "null"
}

// Event is one notification on a subscription: either a snapshot or an error.
type Event struct {
	Snapshot Snapshot
	Err      error
}

// Subscription is a cancellable stream of events for one path.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

type Subscriber interface {
	// Subscribe delivers the current value right away, then every change.
	Subscribe(ctx context.Context, path string) (Subscription, error)
}

type Updater interface {
	// Update merges fields into the document at path, leaving siblings alone.
	Update(ctx context.Context, path string, fields map[string]any) error
}

type Setter interface {
	// Set replaces the whole document at path.
	Set(ctx context.Context, path string, value any) error
}

// Store is the full capability set a backend provides.
type Store interface {
	Subscriber
	Updater
	Setter
	Close() error
}

// CleanPath trims slashes and rejects empty paths.
func CleanPath(p string) (string, error) {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" || strings.Contains(p, "//") {
		return "", ErrInvalidPath
	}
	return p, nil
}

const feedBuffer = 16

// Feed is a Subscription backends push into. Send blocks while the buffer is
// full so no change is dropped; it gives up once the feed is closed.
type Feed struct {
	ch      chan Event
	done    chan struct{}
	once    sync.Once
	onClose func()
}

// NewFeed returns an open feed. onClose, if set, runs once on Close.
func NewFeed(onClose func()) *Feed {
	return &Feed{
		ch:      make(chan Event, feedBuffer),
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

func (f *Feed) Events() <-chan Event { return f.ch }

// Done is closed when the subscriber detaches.
func (f *Feed) Done() <-chan struct{} { return f.done }

// Send delivers ev unless the feed or ctx is done. Returns false if dropped.
func (f *Feed) Send(ctx context.Context, ev Event) bool {
	select {
	case <-f.done:
		return false
	default:
	}
	select {
	case f.ch <- ev:
		return true
	case <-f.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// Close detaches the subscriber. The events channel is never closed by Close
// itself; producers call Finish when they stop sending.
func (f *Feed) Close() error {
	f.once.Do(func() {
		close(f.done)
		if f.onClose != nil {
			f.onClose()
		}
	})
	return nil
}

// Finish closes the events channel. Only the single producer may call it,
// and only after its last Send.
func (f *Feed) Finish() {
	close(f.ch)
}
