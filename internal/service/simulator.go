package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"time"

	"smart_bottle"
	"smart_bottle/internal/store"
)

// ----------- Simulation constants -----------
const (
	AmbientC     = 25.0 // ambient temperature °C
	HysteresisC  = 0.5  // dead band around the setpoint
	StepCPerTick = 0.08 // heater/cooler effect per tick
	AmbientLeak  = 0.01 // share of the gap to ambient closed per tick

	// cloud setpoints closer than this to the local one are ignored
	setpointEpsilon = 0.001
)

var errBadInterval = errors.New("simulator intervals must be positive")

// ModeSim is reported by a simulated device.
const ModeSim = "SIM"

// deviceState is what the bottle knows about itself.
type deviceState struct {
	Temperature float64
	Setpoint    float64
	Heater      bool
	Cooler      bool
}

// SimulatorService behaves like the bottle firmware in simulation mode: an
// on/off controller around a leaky thermal model, publishing telemetry every
// tick and picking up setpoint changes from the control path.
type SimulatorService struct {
	deps Deps
	poll time.Duration
	now  func() time.Time

	mu     sync.Mutex
	st     deviceState
	remote *float64 // latest control setpoint, nil until seen
}

// NewSimulatorService returns a simulator starting at ambient with the
// slider's initial setpoint.
func NewSimulatorService(deps Deps, poll time.Duration) *SimulatorService {
	deps = deps.withDefaults()
	return &SimulatorService{
		deps: deps,
		poll: poll,
		now:  time.Now,
		st:   deviceState{Temperature: AmbientC, Setpoint: deps.Slider.Initial},
	}
}

// Run ticks at the given interval until ctx is canceled.
func (s *SimulatorService) Run(ctx context.Context, tick time.Duration) {
	if s.deps.Store == nil {
		s.deps.Log.Warnw("simulator_not_started", "err", ErrNotInitialized)
		return
	}
	if tick <= 0 || s.poll <= 0 {
		s.deps.Log.Errorw("simulator_not_started", "tick", tick, "control_poll", s.poll, "err", errBadInterval)
		return
	}
	started := s.now()

	sub, err := s.deps.Store.Subscribe(ctx, s.deps.Paths.Control)
	if err != nil {
		s.deps.Log.Errorw("simulator_control_subscribe_failed", "path", s.deps.Paths.Control, "err", err)
	} else {
		defer func() { _ = sub.Close() }()
		s.adoptInitial(ctx, sub)
		go s.watchControl(ctx, sub)
	}

	t := time.NewTicker(tick)
	defer t.Stop()
	poll := time.NewTicker(s.poll)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
			s.applyRemote()
		case now := <-t.C:
			s.mu.Lock()
			s.st = advance(s.st)
			doc := telemetryDoc(s.st, now.Sub(started))
			s.mu.Unlock()

			if err := s.deps.Store.Set(ctx, s.deps.Paths.Telemetry, doc); err != nil && ctx.Err() == nil {
				s.deps.Log.Errorw("simulator_publish_failed", "path", s.deps.Paths.Telemetry, "err", err)
			}
		}
	}
}

// adoptInitial takes the cloud setpoint once at boot and writes the result
// back so control and telemetry agree.
func (s *SimulatorService) adoptInitial(ctx context.Context, sub store.Subscription) {
	select {
	case <-ctx.Done():
		return
	case ev, ok := <-sub.Events():
		if ok && ev.Err == nil {
			if v, found := controlSetpoint(ev.Snapshot.Data); found {
				s.mu.Lock()
				s.st.Setpoint = v
				s.mu.Unlock()
			}
		}
	}

	s.mu.Lock()
	sp := s.st.Setpoint
	s.mu.Unlock()
	cmd := smart_bottle.ControlCommand{Setpoint: sp}
	if err := s.deps.Store.Update(ctx, s.deps.Paths.Control, cmd.Fields()); err != nil {
		s.deps.Log.Errorw("simulator_seed_control_failed", "path", s.deps.Paths.Control, "err", err)
		return
	}
	s.deps.Log.Infow("simulator_started", "setpoint", sp)
}

// watchControl records the newest control setpoint; applyRemote picks it up.
func (s *SimulatorService) watchControl(ctx context.Context, sub store.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if ev.Err != nil {
				s.deps.Log.Warnw("simulator_control_error", "err", ev.Err)
				continue
			}
			if v, found := controlSetpoint(ev.Snapshot.Data); found {
				s.mu.Lock()
				s.remote = &v
				s.mu.Unlock()
			}
		}
	}
}

// applyRemote takes the last seen control setpoint if it moved.
func (s *SimulatorService) applyRemote() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.remote == nil || math.Abs(*s.remote-s.st.Setpoint) <= setpointEpsilon {
		return false
	}
	s.st.Setpoint = *s.remote
	s.deps.Log.Infow("simulator_setpoint_applied", "setpoint", s.st.Setpoint)
	return true
}

// advance runs one controller decision and one physics step.
func advance(st deviceState) deviceState {
	e := st.Setpoint - st.Temperature
	st.Heater = e > HysteresisC
	st.Cooler = e < -HysteresisC

	if st.Heater {
		st.Temperature += StepCPerTick
	}
	if st.Cooler {
		st.Temperature -= StepCPerTick
	}
	st.Temperature += (AmbientC - st.Temperature) * AmbientLeak
	return st
}

func telemetryDoc(st deviceState, uptime time.Duration) map[string]any {
	return map[string]any{
		"temperature": round2(st.Temperature),
		"setpoint":    round2(st.Setpoint),
		"heater":      duty(st.Heater),
		"cooler":      duty(st.Cooler),
		"mode":        ModeSim,
		"ts":          int64(uptime / time.Second),
	}
}

// controlSetpoint reads setpoint out of a control document.
func controlSetpoint(raw json.RawMessage) (float64, bool) {
	cmd, err := smart_bottle.ParseControl(raw)
	if err != nil || cmd == nil {
		return 0, false
	}
	return cmd.Setpoint, true
}

// helpers
func duty(on bool) int {
	if on {
		return 1
	}
	return 0
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
