package service

import (
	"context"
	"math"
	"strconv"

	"smart_bottle"
	"smart_bottle/internal/display"
	"smart_bottle/internal/store"
)

const (
	indicatorActive   = "active"
	indicatorInactive = "inactive"
)

// TelemetryView keeps the display in step with the device's telemetry.
type TelemetryView struct {
	deps    Deps
	control *SetpointControl
}

func NewTelemetryView(deps Deps, control *SetpointControl) *TelemetryView {
	deps = deps.withDefaults()
	if control == nil {
		control = NewSetpointControl(deps)
	}
	return &TelemetryView{deps: deps, control: control}
}

// Run follows the telemetry path until ctx is done or the stream ends.
// Without a store it only reports the failure and returns.
func (t *TelemetryView) Run(ctx context.Context) {
	if t.deps.Store == nil {
		t.setStatus(StatusNotInitialized)
		t.deps.Log.Errorw("telemetry_not_started", "err", ErrNotInitialized)
		return
	}

	t.setStatus(StatusConnected)
	sub, err := t.deps.Store.Subscribe(ctx, t.deps.Paths.Telemetry)
	if err != nil {
		t.setStatus(StatusTelemetryError)
		t.deps.Log.Errorw("telemetry_subscribe_failed", "path", t.deps.Paths.Telemetry, "err", err)
		return
	}
	defer func() { _ = sub.Close() }()

	t.deps.Log.Infow("telemetry_subscribed", "path", t.deps.Paths.Telemetry)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				t.setStatus(StatusTelemetryError)
				t.deps.Log.Warnw("telemetry_stream_closed", "path", t.deps.Paths.Telemetry)
				return
			}
			t.handle(ev)
		}
	}
}

func (t *TelemetryView) handle(ev store.Event) {
	if ev.Err != nil {
		// keep whatever is on screen
		t.setStatus(StatusTelemetryError)
		t.deps.Log.Errorw("telemetry_stream_error", "path", t.deps.Paths.Telemetry, "err", ev.Err)
		return
	}

	snap, err := smart_bottle.ParseTelemetry(ev.Snapshot.Data)
	if err != nil {
		// not an object: same as nothing reported
		t.deps.Log.Debugw("telemetry_malformed", "path", ev.Snapshot.Path, "err", err)
		snap = nil
	}
	t.render(snap, StatusConnected)
}

// Render projects snap onto the display in one step. A nil snapshot shows
// placeholders everywhere.
func (t *TelemetryView) Render(snap *smart_bottle.TelemetrySnapshot) {
	t.render(snap, "")
}

// render is Render that may also set the status slot in the same step.
func (t *TelemetryView) render(snap *smart_bottle.TelemetrySnapshot, status string) {
	t.deps.Display.Update(func(v *display.View) {
		if status != "" {
			v.Status = status
		}
		if snap == nil {
			v.Temperature = Placeholder
			v.Setpoint = Placeholder
			v.Mode = Placeholder
			v.Heater = Placeholder
			v.Cooler = Placeholder
			return
		}

		v.Temperature = decimal(snap.Temperature)
		v.Setpoint = decimal(snap.Setpoint)
		v.Mode = text(snap.Mode)
		v.Heater = indicator(snap.Heater)
		v.Cooler = indicator(snap.Cooler)
		if v.Setpoint != Placeholder {
			t.control.place(v, *snap.Setpoint)
		}
	})
}

func (t *TelemetryView) setStatus(status string) {
	t.deps.Display.Update(func(v *display.View) { v.Status = status })
}

func decimal(f *float64) string {
	if f == nil || math.IsNaN(*f) || math.IsInf(*f, 0) {
		return Placeholder
	}
	return strconv.FormatFloat(*f, 'f', 1, 64)
}

func text(s *string) string {
	if s == nil || *s == "" {
		return Placeholder
	}
	return *s
}

func indicator(b *bool) string {
	if b != nil && *b {
		return indicatorActive
	}
	return indicatorInactive
}
