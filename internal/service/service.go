package service

import (
	"context"
	"errors"
	"time"

	"smart_bottle"
	"smart_bottle/internal/display"
	"smart_bottle/internal/logger"
	"smart_bottle/internal/store"
)

// Status slot values.
const (
	StatusConnected      = "Connected"
	StatusTelemetryError = "Telemetry error"
	StatusNotInitialized = "Not initialized"
)

// Placeholder is shown for readings the device didn't report.
const Placeholder = "--"

// ErrNotInitialized is returned when the store failed to start.
var ErrNotInitialized = errors.New("store not initialized")

// Paths are the two store locations the dashboard uses.
type Paths struct {
	Telemetry string
	Control   string
}

// DefaultPaths matches the firmware's layout.
func DefaultPaths() Paths {
	return Paths{Telemetry: smart_bottle.TelemetryPath, Control: smart_bottle.ControlPath}
}

// Slider bounds the setpoint widget.
type Slider struct {
	Min     float64
	Max     float64
	Initial float64
}

// Deps is built once in main and handed to every component. A nil Display
// gets a private board.
type Deps struct {
	// Store is nil when the backend could not be constructed.
	Store   store.Store
	Display display.Surface
	Log     *logger.Logger
	Paths   Paths
	Slider  Slider
}

func (d Deps) withDefaults() Deps {
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	if d.Display == nil {
		d.Display = display.NewBoard(display.View{})
	}
	if d.Paths.Telemetry == "" {
		d.Paths.Telemetry = smart_bottle.TelemetryPath
	}
	if d.Paths.Control == "" {
		d.Paths.Control = smart_bottle.ControlPath
	}
	if d.Slider.Min >= d.Slider.Max {
		d.Slider.Min, d.Slider.Max = 0, 100
	}
	return d
}

// Telemetry mirrors the device's telemetry document onto the display.
type Telemetry interface {
	Run(ctx context.Context)
	Render(snap *smart_bottle.TelemetrySnapshot)
}

// Control is the setpoint widget.
type Control interface {
	Drag(v float64)
	Commit(ctx context.Context, v float64) <-chan error
	Sync(v float64)
}

// Simulator plays the device against the store.
// Stop via context cancellation in main() for graceful shutdown.
type Simulator interface {
	Run(ctx context.Context, tick time.Duration)
}

// Display is the read side of the board, used by the HTTP layer.
type Display interface {
	View() display.View
	Subscribe() (<-chan display.View, func())
}

// Service aggregates all sub-services.
type Service struct {
	Telemetry
	Control
	Simulator
	Display
}

// NewService wires the components around one Deps. The simulator is only
// built when simPoll > 0 and a store is available. A nil board falls back to
// deps.Display when it can be read.
func NewService(deps Deps, board Display, simPoll time.Duration) *Service {
	deps = deps.withDefaults()
	if board == nil {
		board, _ = deps.Display.(Display)
	}
	control := NewSetpointControl(deps)

	s := &Service{
		Telemetry: NewTelemetryView(deps, control),
		Control:   control,
		Display:   board,
	}
	if simPoll > 0 && deps.Store != nil {
		s.Simulator = NewSimulatorService(deps, simPoll)
	}
	return s
}
