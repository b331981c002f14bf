// Package sqlitestore serves the store API from a local SQLite file, for
// running the dashboard and the simulated bottle without a hosted service.
// Subscriptions poll the document version.
package sqlitestore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"smart_bottle/internal/models"
	"smart_bottle/internal/repository"
	"smart_bottle/internal/store"
)

const defaultPoll = time.Second

type Store struct {
	docs repository.DocumentRepo
	db   *sql.DB // owned, closed by Close; nil when built from a repo
	poll time.Duration

	mu     sync.Mutex
	closed bool
	stop   chan struct{}
	wg     sync.WaitGroup
}

var _ store.Store = (*Store)(nil)

// New builds a store over an existing repository.
func New(docs repository.DocumentRepo, poll time.Duration) *Store {
	if poll <= 0 {
		poll = defaultPoll
	}
	return &Store{docs: docs, poll: poll, stop: make(chan struct{})}
}

// Open owns db and closes it on Close.
func Open(db *sql.DB, poll time.Duration) *Store {
	s := New(repository.NewRepository(db).Documents, poll)
	s.db = db
	return s
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

	feed := store.NewFeed(nil)
	s.wg.Add(1)
	go s.watch(ctx, p, feed)
	return feed, nil
}

// watch is the single producer for feed.
func (s *Store) watch(ctx context.Context, path string, feed *store.Feed) {
	defer s.wg.Done()
	defer feed.Finish()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	var (
		last     models.Document
		first    = true
		failing  bool
		interval = time.NewTicker(s.poll)
	)
	defer interval.Stop()

	check := func() bool {
		doc, err := s.docs.Load(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			// one error per outage, not one per poll
			if !failing {
				failing = true
				return feed.Send(ctx, store.Event{Err: err})
			}
			return true
		}
		changed := first || failing || doc.Version != last.Version || !bytes.Equal(doc.Body, last.Body)
		first, failing, last = false, false, doc
		if !changed {
			return true
		}
		return feed.Send(ctx, store.Event{Snapshot: store.Snapshot{Path: path, Data: json.RawMessage(doc.Body)}})
	}

	if !check() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-feed.Done():
			return
		case <-interval.C:
			if !check() {
				return
			}
		}
	}
}

func (s *Store) Update(ctx context.Context, path string, fields map[string]any) error {
	p, err := store.CleanPath(path)
	if err != nil {
		return err
	}
	if s.isClosed() {
		return store.ErrClosed
	}
	_, err = s.docs.Merge(ctx, p, fields)
	return err
}

func (s *Store) Set(ctx context.Context, path string, value any) error {
	p, err := store.CleanPath(path)
	if err != nil {
		return err
	}
	if s.isClosed() {
		return store.ErrClosed
	}
	var body []byte
	if value != nil {
		if body, err = json.Marshal(value); err != nil {
			return err
		}
	}
	_, err = s.docs.Replace(ctx, p, body)
	return err
}

// Close stops all pollers and closes the owned database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.stop)
	s.mu.Unlock()

	s.wg.Wait()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
