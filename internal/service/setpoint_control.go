package service

import (
	"context"
	"math"
	"strconv"

	"smart_bottle"
	"smart_bottle/internal/display"

	"github.com/google/uuid"
)

// SetpointControl owns the slider. Dragging and syncing only touch the
// display; committing is the single path that writes to the store.
type SetpointControl struct {
	deps Deps
}

func NewSetpointControl(deps Deps) *SetpointControl {
	return &SetpointControl{deps: deps.withDefaults()}
}

// Drag follows the user's hand. No network I/O.
func (s *SetpointControl) Drag(v float64) {
	s.deps.Display.Update(func(view *display.View) { s.place(view, v) })
}

// Sync moves the slider to a value reported by the device without
// committing it back.
func (s *SetpointControl) Sync(v float64) {
	s.deps.Display.Update(func(view *display.View) { s.place(view, v) })
}

// Commit moves the slider to v and fires one partial update of the control
// document. The result is logged and also sent on the returned channel,
// which callers are free to ignore.
func (s *SetpointControl) Commit(ctx context.Context, v float64) <-chan error {
	res := make(chan error, 1)

	var value float64
	s.deps.Display.Update(func(view *display.View) {
		value = s.place(view, v)
		if s.deps.Store == nil {
			view.Status = StatusNotInitialized
		}
	})

	if s.deps.Store == nil {
		s.deps.Log.Warnw("setpoint_commit_skipped", "setpoint", value, "err", ErrNotInitialized)
		res <- ErrNotInitialized
		return res
	}

	cmd := smart_bottle.ControlCommand{Setpoint: value}
	commitID := uuid.NewString()
	go func() {
		err := s.deps.Store.Update(ctx, s.deps.Paths.Control, cmd.Fields())
		if err != nil {
			s.deps.Log.Errorw("setpoint_write_failed", "commit_id", commitID, "path", s.deps.Paths.Control, "setpoint", value, "err", err)
		} else {
			s.deps.Log.Infow("setpoint_write_ok", "commit_id", commitID, "path", s.deps.Paths.Control, "setpoint", value)
		}
		res <- err
	}()
	return res
}

// place writes the clamped value and its readout into view.
func (s *SetpointControl) place(view *display.View, v float64) float64 {
	v = s.clamp(v)
	view.SliderValue = v
	view.SliderReadout = readout(v)
	return v
}

func (s *SetpointControl) clamp(v float64) float64 {
	if math.IsNaN(v) {
		return s.deps.Slider.Min
	}
	return math.Max(s.deps.Slider.Min, math.Min(s.deps.Slider.Max, v))
}

// readout prints the slider value the way a range input reports it.
func readout(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
