// Package firebase talks to a Firebase Realtime Database over its REST API:
// streaming reads via text/event-stream, PATCH for partial updates and PUT
// for whole-document writes.
package firebase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"smart_bottle/internal/store"

	"github.com/r3labs/sse/v2"
	"gopkg.in/cenkalti/backoff.v1"
)

const (
	defaultRetry        = 3 * time.Second
	defaultWriteTimeout = 10 * time.Second
	maxErrorBody        = 512
)

var errNoURL = errors.New("firebase: database URL is required")

type Client struct {
	base   *url.URL
	auth   string
	retry  time.Duration
	writes *http.Client
	reads  *http.Client // no timeout, streams stay open

	mu     sync.Mutex
	closed bool
	stop   chan struct{}
	wg     sync.WaitGroup
}

var _ store.Store = (*Client)(nil)

type Option func(*Client)

// WithAuth sends token as the ?auth= query parameter on every request.
func WithAuth(token string) Option {
	return func(c *Client) { c.auth = token }
}

// WithRetry sets the delay between stream reconnect attempts.
func WithRetry(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.retry = d
		}
	}
}

// WithHTTPClient replaces the client used for both reads and writes.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.writes = hc
		c.reads = hc
	}
}

// New validates the database URL; it does not dial.
func New(databaseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, errNoURL
	}
	u, err := url.Parse(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("firebase: parse database URL: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("firebase: unsupported scheme %q", u.Scheme)
	}
	c := &Client{
		base:   u,
		retry:  defaultRetry,
		writes: &http.Client{Timeout: defaultWriteTimeout},
		reads:  &http.Client{},
		stop:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// endpoint builds <base>/<path>.json[?auth=...].
func (c *Client) endpoint(path string) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + path + ".json"
	if c.auth != "" {
		q := u.Query()
		q.Set("auth", c.auth)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (c *Client) Subscribe(ctx context.Context, path string) (store.Subscription, error) {
	p, err := store.CleanPath(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, store.ErrClosed
	}

	feed := store.NewFeed(nil)
	c.wg.Add(1)
	go c.follow(ctx, p, feed)
	return feed, nil
}

// follow keeps one stream open for feed, reconnecting after transport
// failures. A revoked listener ends the subscription.
func (c *Client) follow(ctx context.Context, path string, feed *store.Feed) {
	defer c.wg.Done()
	defer feed.Finish()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.stop:
		case <-feed.Done():
		case <-ctx.Done():
		}
		cancel()
	}()

	for {
		err := c.listen(ctx, path, feed)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		if !feed.Send(ctx, store.Event{Err: err}) {
			return
		}
		if errors.Is(err, store.ErrPermissionDenied) {
			return
		}

		t := time.NewTimer(c.retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// putEvent is the payload of put and patch events.
type putEvent struct {
	Path string `json:"path"`
	Data any    `json:"data"`
}

// newStream builds a single-attempt event stream client; follow owns the
// reconnect policy.
func (c *Client) newStream(path string) *sse.Client {
	return sse.NewClient(c.endpoint(path), func(sc *sse.Client) {
		sc.Connection = c.reads
		sc.ReconnectStrategy = &backoff.StopBackOff{}
		sc.ResponseValidator = func(_ *sse.Client, resp *http.Response) error {
			if err := statusError(resp); err != nil {
				_ = resp.Body.Close()
				return err
			}
			return nil
		}
	})
}

// listen runs a single stream until it fails or the server closes it. A nil
// return means the server ended the stream.
func (c *Client) listen(ctx context.Context, path string, feed *store.Feed) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	var (
		tree   any
		failed error
	)
	fail := func(err error) {
		if failed == nil {
			failed = err
		}
		stop()
	}

	err := c.newStream(path).SubscribeRawWithContext(ctx, func(msg *sse.Event) {
		if failed != nil {
			return
		}
		name := string(msg.Event)
		switch name {
		case "put", "patch":
			var pe putEvent
			if err := json.Unmarshal(msg.Data, &pe); err != nil {
				fail(fmt.Errorf("firebase: decode %s event: %w", name, err))
				return
			}
			if name == "put" {
				tree = applyPut(tree, pe.Path, pe.Data)
			} else {
				tree = applyPatch(tree, pe.Path, pe.Data)
			}
			snap, err := snapshotOf(path, tree)
			if err != nil {
				fail(err)
				return
			}
			if !feed.Send(ctx, store.Event{Snapshot: snap}) {
				fail(context.Canceled)
			}
		case "keep-alive":
		case "cancel":
			fail(fmt.Errorf("%w: listener cancelled by security rules", store.ErrPermissionDenied))
		case "auth_revoked":
			fail(fmt.Errorf("%w: auth token revoked", store.ErrPermissionDenied))
		}
	})
	if failed != nil {
		return failed
	}
	if err != nil {
		if errors.Is(err, store.ErrPermissionDenied) {
			return err
		}
		return fmt.Errorf("firebase: stream: %w", err)
	}
	return nil
}

func snapshotOf(path string, tree any) (store.Snapshot, error) {
	if tree == nil {
		return store.Snapshot{Path: path}, nil
	}
	b, err := json.Marshal(tree)
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("firebase: encode snapshot: %w", err)
	}
	return store.Snapshot{Path: path, Data: b}, nil
}

// Update issues a PATCH, which only touches the named children.
func (c *Client) Update(ctx context.Context, path string, fields map[string]any) error {
	return c.write(ctx, http.MethodPatch, path, fields)
}

// Set issues a PUT, replacing the document.
func (c *Client) Set(ctx context.Context, path string, value any) error {
	return c.write(ctx, http.MethodPut, path, value)
}

func (c *Client) write(ctx context.Context, method, path string, body any) error {
	p, err := store.CleanPath(path)
	if err != nil {
		return err
	}
	if c.isClosed() {
		return store.ErrClosed
	}
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("firebase: encode body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(p), bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.writes.Do(req)
	if err != nil {
		return fmt.Errorf("firebase: %s %s: %w", method, p, err)
	}
	defer resp.Body.Close()
	if err := statusError(resp); err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// statusError maps non-2xx responses to errors. The body is read only on
// failure; callers own closing it.
func statusError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	detail := strings.TrimSpace(string(msg))
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s %s", store.ErrPermissionDenied, resp.Status, detail)
	default:
		return fmt.Errorf("firebase: unexpected status %s: %s", resp.Status, detail)
	}
}

// Close ends every stream and waits for them to stop.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.stop)
	c.mu.Unlock()

	c.wg.Wait()
	return nil
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
