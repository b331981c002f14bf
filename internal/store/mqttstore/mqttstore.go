// Package mqttstore maps the store API onto retained MQTT messages.
//
// A document lives at topic <path> as one retained JSON object, and each
// field may also live at <path>/<field> as a retained JSON value. Update
// publishes per-field topics only, so it never clobbers siblings. A
// subscription overlays field topics on the whole-document topic.
package mqttstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"smart_bottle/internal/store"
)

const (
	defaultTimeout = 10 * time.Second
	clientIDPrefix = "smart-bottle-"
)

var errTimeout = errors.New("mqtt: operation timed out")

type Options struct {
	Broker   string // e.g. tcp://localhost:1883
	ClientID string // random when empty
	QoS      byte
	Timeout  time.Duration
}

type Store struct {
	client  mqtt.Client
	qos     byte
	timeout time.Duration

	mu     sync.Mutex
	subs   map[*subscription]struct{}
	closed bool
}

var _ store.Store = (*Store)(nil)

// Dial connects to the broker and returns a ready store.
func Dial(opts Options) (*Store, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.ClientID == "" {
		opts.ClientID = clientIDPrefix + uuid.NewString()
	}

	s := &Store{
		qos:     opts.QoS,
		timeout: opts.Timeout,
		subs:    make(map[*subscription]struct{}),
	}

	co := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(opts.Timeout).
		SetConnectionLostHandler(s.onConnectionLost).
		SetOnConnectHandler(s.onConnect)

	s.client = mqtt.NewClient(co)
	if err := s.wait(s.client.Connect()); err != nil {
		return nil, fmt.Errorf("mqtt: connect %s: %w", opts.Broker, err)
	}
	return s, nil
}

// newWithClient is used by tests to inject a client.
func newWithClient(c mqtt.Client, qos byte, timeout time.Duration) *Store {
	return &Store{client: c, qos: qos, timeout: timeout, subs: make(map[*subscription]struct{})}
}

func (s *Store) wait(tok mqtt.Token) error {
	if !tok.WaitTimeout(s.timeout) {
		return errTimeout
	}
	return tok.Error()
}

// subscription assembles one document from its topics.
type subscription struct {
	path string
	feed *store.Feed
	ctx  context.Context

	mu     sync.Mutex
	doc    map[string]any // from the whole-document topic
	fields map[string]any // from per-field topics, win over doc
}

func (s *Store) Subscribe(ctx context.Context, path string) (store.Subscription, error) {
	p, err := store.CleanPath(path)
	if err != nil {
		return nil, err
	}

	sub := &subscription{path: p, ctx: ctx, fields: make(map[string]any)}
	sub.feed = store.NewFeed(func() { s.detach(sub) })

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, store.ErrClosed
	}
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	// the absent value goes first, retained messages follow if any exist
	sub.feed.Send(ctx, store.Event{Snapshot: store.Snapshot{Path: p}})

	if err := s.wait(s.client.SubscribeMultiple(sub.filters(s.qos), sub.handle)); err != nil {
		s.detachLocked(sub)
		return nil, fmt.Errorf("mqtt: subscribe %s: %w", p, err)
	}
	return sub.feed, nil
}

func (sub *subscription) filters(qos byte) map[string]byte {
	return map[string]byte{sub.path: qos, sub.path + "/+": qos}
}

// handle is called from paho's router goroutine.
func (sub *subscription) handle(_ mqtt.Client, msg mqtt.Message) {
	snap, ok := sub.apply(msg.Topic(), msg.Payload())
	if !ok {
		return
	}
	sub.feed.Send(sub.ctx, store.Event{Snapshot: snap})
}

// apply folds one message into the document. It returns false for
// topics that don't belong to this subscription.
func (sub *subscription) apply(topic string, payload []byte) (store.Snapshot, bool) {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	switch {
	case topic == sub.path:
		var doc map[string]any
		if len(payload) > 0 {
			// non-object payloads clear the document
			_ = json.Unmarshal(payload, &doc)
		}
		sub.doc = doc
	case strings.HasPrefix(topic, sub.path+"/"):
		field := strings.TrimPrefix(topic, sub.path+"/")
		if field == "" || strings.Contains(field, "/") {
			return store.Snapshot{}, false
		}
		var v any
		if len(payload) == 0 || json.Unmarshal(payload, &v) != nil || v == nil {
			delete(sub.fields, field)
		} else {
			sub.fields[field] = v
		}
	default:
		return store.Snapshot{}, false
	}
	return sub.snapshotLocked(), true
}

func (sub *subscription) snapshotLocked() store.Snapshot {
	merged := make(map[string]any, len(sub.doc)+len(sub.fields))
	for k, v := range sub.doc {
		merged[k] = v
	}
	for k, v := range sub.fields {
		merged[k] = v
	}
	if len(merged) == 0 {
		return store.Snapshot{Path: sub.path}
	}
	b, err := json.Marshal(merged)
	if err != nil {
		return store.Snapshot{Path: sub.path}
	}
	return store.Snapshot{Path: sub.path, Data: b}
}

// Update publishes each field to its own retained topic.
func (s *Store) Update(ctx context.Context, path string, fields map[string]any) error {
	p, err := store.CleanPath(path)
	if err != nil {
		return err
	}
	if s.isClosed() {
		return store.ErrClosed
	}
	for k, v := range fields {
		var payload []byte
		if v != nil {
			if payload, err = json.Marshal(v); err != nil {
				return fmt.Errorf("mqtt: encode field %q: %w", k, err)
			}
		}
		// an empty retained payload deletes the field
		if err := s.publish(ctx, p+"/"+k, payload); err != nil {
			return err
		}
	}
	return nil
}

// Set publishes the whole document as one retained message.
func (s *Store) Set(ctx context.Context, path string, value any) error {
	p, err := store.CleanPath(path)
	if err != nil {
		return err
	}
	if s.isClosed() {
		return store.ErrClosed
	}
	var payload []byte
	if value != nil {
		if payload, err = json.Marshal(value); err != nil {
			return fmt.Errorf("mqtt: encode document: %w", err)
		}
	}
	return s.publish(ctx, p, payload)
}

func (s *Store) publish(ctx context.Context, topic string, payload []byte) error {
	tok := s.client.Publish(topic, s.qos, true, payload)
	select {
	case <-tok.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.timeout):
		return fmt.Errorf("mqtt: publish %s: %w", topic, errTimeout)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt: publish %s: %w", topic, err)
	}
	return nil
}

func (s *Store) onConnectionLost(_ mqtt.Client, err error) {
	for _, sub := range s.active() {
		sub.feed.Send(sub.ctx, store.Event{Err: fmt.Errorf("mqtt: connection lost: %w", err)})
	}
}

// onConnect restores subscriptions after an automatic reconnect.
func (s *Store) onConnect(c mqtt.Client) {
	for _, sub := range s.active() {
		tok := c.SubscribeMultiple(sub.filters(s.qos), sub.handle)
		go func(sub *subscription, tok mqtt.Token) {
			if err := s.wait(tok); err != nil {
				sub.feed.Send(sub.ctx, store.Event{Err: fmt.Errorf("mqtt: resubscribe %s: %w", sub.path, err)})
			}
		}(sub, tok)
	}
}

func (s *Store) active() []*subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*subscription, 0, len(s.subs))
	for sub := range s.subs {
		out = append(out, sub)
	}
	return out
}

func (s *Store) detach(sub *subscription) {
	if s.detachLocked(sub) && s.client.IsConnected() {
		f := sub.filters(s.qos)
		topics := make([]string, 0, len(f))
		for t := range f {
			topics = append(topics, t)
		}
		_ = s.wait(s.client.Unsubscribe(topics...))
	}
}

func (s *Store) detachLocked(sub *subscription) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[sub]; !ok {
		return false
	}
	delete(s.subs, sub)
	return true
}

// Close detaches all subscriptions and disconnects.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	subs := make([]*subscription, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subs = make(map[*subscription]struct{})
	s.mu.Unlock()

	for _, sub := range subs {
		_ = sub.feed.Close()
	}
	s.client.Disconnect(250)
	return nil
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
