// Package memory is an in-process store. Every path is an independent
// document; subscribers of a path see only that document.
package memory

import (
	"context"
	"encoding/json"
	"sync"

	"smart_bottle/internal/store"
)

type Store struct {
	mu     sync.Mutex
	docs   map[string]any
	subs   map[string]map[*store.Feed]struct{}
	closed bool
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		docs: make(map[string]any),
		subs: make(map[string]map[*store.Feed]struct{}),
	}
}

func (s *Store) Subscribe(ctx context.Context, path string) (store.Subscription, error) {
	p, err := store.CleanPath(path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, store.ErrClosed
	}

	var feed *store.Feed
	feed = store.NewFeed(func() { s.detach(p, feed) })
	if s.subs[p] == nil {
		s.subs[p] = make(map[*store.Feed]struct{})
	}
	s.subs[p][feed] = struct{}{}

	// a fresh feed has room, this never blocks
	feed.Send(ctx, store.Event{Snapshot: s.snapshotLocked(p)})
	return feed, nil
}

func (s *Store) Update(ctx context.Context, path string, fields map[string]any) error {
	p, err := store.CleanPath(path)
	if err != nil {
		return err
	}
	norm, err := normalize(fields)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}

	doc, _ := s.docs[p].(map[string]any)
	if doc == nil {
		doc = make(map[string]any)
	}
	if m, ok := norm.(map[string]any); ok {
		for k, v := range m {
			if v == nil {
				delete(doc, k)
				continue
			}
			doc[k] = v
		}
	}
	if len(doc) == 0 {
		delete(s.docs, p)
	} else {
		s.docs[p] = doc
	}
	s.publishLocked(ctx, p)
	return nil
}

func (s *Store) Set(ctx context.Context, path string, value any) error {
	p, err := store.CleanPath(path)
	if err != nil {
		return err
	}
	norm, err := normalize(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}

	if norm == nil {
		delete(s.docs, p)
	} else {
		s.docs[p] = norm
	}
	s.publishLocked(ctx, p)
	return nil
}

// Close ends every subscription by closing its events channel.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var feeds []*store.Feed
	for _, set := range s.subs {
		for f := range set {
			feeds = append(feeds, f)
		}
	}
	s.subs = make(map[string]map[*store.Feed]struct{})
	s.mu.Unlock()

	// no Send can race with this: every Send happens under mu with closed unset
	for _, f := range feeds {
		f.Finish()
	}
	return nil
}

func (s *Store) detach(path string, f *store.Feed) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.subs[path]; ok {
		delete(set, f)
		if len(set) == 0 {
			delete(s.subs, path)
		}
	}
}

func (s *Store) publishLocked(ctx context.Context, path string) {
	snap := s.snapshotLocked(path)
	for f := range s.subs[path] {
		f.Send(ctx, store.Event{Snapshot: snap})
	}
}

func (s *Store) snapshotLocked(path string) store.Snapshot {
	v, ok := s.docs[path]
	if !ok {
		return store.Snapshot{Path: path}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return store.Snapshot{Path: path}
	}
	return store.Snapshot{Path: path, Data: b}
}

// normalize round-trips through JSON so stored values look exactly like
// what a remote backend would hand back.
func normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
