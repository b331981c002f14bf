// Package display holds the dashboard's visible state.
//
// A View is the full set of slots a client renders. Writers change it through
// Update, which applies a batch of slot writes as one step; readers either
// poll View or Subscribe to receive a copy after every change.
package display

import (
	"sync"
)

// View is everything the dashboard shows.
type View struct {
	Temperature   string  `json:"temperature"`
	Setpoint      string  `json:"setpoint"`
	Mode          string  `json:"mode"`
	Heater        string  `json:"heater"`
	Cooler        string  `json:"cooler"`
	Status        string  `json:"status"`
	SliderValue   float64 `json:"slider_value"`
	SliderReadout string  `json:"slider_readout"`
	// Version grows by one per Update.
	Version uint64 `json:"version"`
}

// Surface is what the service layer draws on.
type Surface interface {
	// Update runs fn against the current view. Observers see either none or
	// all of fn's writes.
	Update(fn func(v *View))
	View() View
}

// Board is the in-process Surface. It fans every change out to subscribers,
// keeping only the newest view for a subscriber that falls behind.
type Board struct {
	mu   sync.Mutex
	view View
	subs map[chan View]struct{}
}

var _ Surface = (*Board)(nil)

// NewBoard returns a board showing initial.
func NewBoard(initial View) *Board {
	return &Board{
		view: initial,
		subs: make(map[chan View]struct{}),
	}
}

func (b *Board) Update(fn func(v *View)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	next := b.view
	fn(&next)
	next.Version = b.view.Version + 1
	b.view = next

	for ch := range b.subs {
		publish(ch, next)
	}
}

func (b *Board) View() View {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.view
}

// Subscribe returns a channel that receives the current view immediately and
// then every later one. Call cancel to stop; the channel is closed by cancel.
func (b *Board) Subscribe() (<-chan View, func()) {
	ch := make(chan View, 1)

	b.mu.Lock()
	ch <- b.view
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, cancel
}

// publish replaces a pending stale view with v. Caller holds b.mu, which is
// the only place ch is written, so the second send cannot block.
func publish(ch chan View, v View) {
	select {
	case ch <- v:
	default:
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}
