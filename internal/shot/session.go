// Package shot runs the stroke lifecycle on top of the tick controller: aiming, hitting,
// stepping until the ball settles or drops, and replaying from the tee.
package shot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"minigolf/engine/internal/course"
	"minigolf/engine/internal/input"
	"minigolf/engine/internal/logging"
	"minigolf/engine/internal/physics"
	"minigolf/engine/internal/simulation"
)

var (
	// ErrShotInProgress is returned when a stroke is requested while the ball is moving.
	ErrShotInProgress = errors.New("shot in progress")
	// ErrBallHoled is returned when a stroke is requested after the ball dropped.
	ErrBallHoled = errors.New("ball already holed")
)

// DefaultMaxShotTicks stops a stroke that never settles.
const DefaultMaxShotTicks = 20000

// EventType names a lifecycle transition.
type EventType string

const (
	EventHit     EventType = "hit"
	EventBounce  EventType = "bounce"
	EventHoled   EventType = "holed"
	EventStopped EventType = "stopped"
	EventReset   EventType = "reset"
)

// Frame is the ball state committed by one tick of a stroke.
type Frame struct {
	SessionID string            `json:"session_id"`
	Shot      int               `json:"shot"`
	Tick      int               `json:"tick"`
	State     physics.BallState `json:"state"`
}

// Event marks a lifecycle transition. Reason is set when a stroke is cut short.
type Event struct {
	SessionID string            `json:"session_id"`
	Type      EventType         `json:"type"`
	Shot      int               `json:"shot"`
	Tick      int               `json:"tick"`
	State     physics.BallState `json:"state"`
	Aim       Aim               `json:"aim"`
	Reason    string            `json:"reason,omitempty"`
}

// Sink receives frames and events in commit order. Implementations must not call back
// into the session.
type Sink interface {
	PublishFrame(Frame)
	PublishEvent(Event)
}

// Snapshot is a read-only view of the session.
type Snapshot struct {
	SessionID string            `json:"session_id"`
	Course    string            `json:"course"`
	Shot      int               `json:"shot"`
	Tick      int               `json:"tick"`
	InMotion  bool              `json:"in_motion"`
	State     physics.BallState `json:"state"`
	Aim       Aim               `json:"aim"`
}

// Option configures a Session at construction time.
type Option func(*Session)

// WithSessionID overrides the generated identifier.
func WithSessionID(id string) Option {
	return func(s *Session) {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			s.id = trimmed
		}
	}
}

// WithMaxShotTicks bounds how long a single stroke may run.
func WithMaxShotTicks(limit int) Option {
	return func(s *Session) {
		if limit > 0 {
			s.maxTicks = limit
		}
	}
}

// WithSink registers a sink at construction time.
func WithSink(sink Sink) Option {
	return func(s *Session) {
		if sink != nil {
			s.sinks = append(s.sinks, sink)
		}
	}
}

// WithMonitor reports tick outcomes to a monitor.
func WithMonitor(monitor *simulation.TickMonitor) Option {
	return func(s *Session) {
		s.monitor = monitor
	}
}

// WithLogger overrides the global logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAim overrides the starting aim.
func WithAim(aim Aim) Option {
	return func(s *Session) {
		s.aim = Aim{}.adjustPower(aim.Power).turn(aim.Azimuth).tilt(aim.Elevation)
	}
}

// Session owns one ball on one course. It is safe for concurrent use.
type Session struct {
	// publishMu is taken before mu and held until sinks have seen the commit.
	publishMu sync.Mutex
	mu        sync.Mutex

	id         string
	course     course.Course
	controller *simulation.Controller
	maxTicks   int
	monitor    *simulation.TickMonitor
	logger     *logging.Logger
	sinks      []Sink

	state    physics.BallState
	aim      Aim
	inMotion bool
	shot     int
	tick     int
}

// NewSession validates the physics and course and places the ball on the tee.
func NewSession(cfg physics.Config, c course.Course, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("physics: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("course: %w", err)
	}
	s := &Session{
		id:         uuid.NewString(),
		course:     c,
		controller: simulation.NewController(cfg, c.Obstacles(), c.Hole),
		maxTicks:   DefaultMaxShotTicks,
		logger:     logging.L(),
		state:      physics.InitialBallState(),
		aim:        DefaultAim(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = s.logger.With(logging.String("session_id", s.id), logging.String("course", c.Name))
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Course returns the course the session plays on.
func (s *Session) Course() course.Course {
	return s.course
}

// Physics returns the tunables the session simulates with.
func (s *Session) Physics() physics.Config {
	return s.controller.Config()
}

// AddSink registers a sink for subsequent frames and events.
func (s *Session) AddSink(sink Sink) {
	if sink == nil {
		return
	}
	s.mu.Lock()
	s.sinks = append(s.sinks, sink)
	s.mu.Unlock()
}

// Apply executes a decoded player command.
func (s *Session) Apply(cmd input.Command) error {
	step := AngleStep
	if cmd.Fast {
		step *= FastMultiplier
	}
	switch cmd.Type {
	case input.CommandPowerUp:
		s.adjust(func(a Aim) Aim { return a.adjustPower(PowerStep) })
	case input.CommandPowerDown:
		s.adjust(func(a Aim) Aim { return a.adjustPower(-PowerStep) })
	case input.CommandAimLeft:
		s.adjust(func(a Aim) Aim { return a.turn(step) })
	case input.CommandAimRight:
		s.adjust(func(a Aim) Aim { return a.turn(-step) })
	case input.CommandAimUp:
		s.adjust(func(a Aim) Aim { return a.tilt(AngleStep) })
	case input.CommandAimDown:
		s.adjust(func(a Aim) Aim { return a.tilt(-AngleStep) })
	case input.CommandHit:
		return s.Hit()
	case input.CommandReplay:
		s.Replay()
	default:
		return fmt.Errorf("%w: %q", input.ErrUnknownCommand, cmd.Type)
	}
	return nil
}

func (s *Session) adjust(change func(Aim) Aim) {
	s.mu.Lock()
	s.aim = change(s.aim)
	s.mu.Unlock()
}

// Aim returns the current aim.
func (s *Session) Aim() Aim {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aim
}

// Hit launches the ball with the current aim. The ball must be at rest and not holed.
func (s *Session) Hit() error {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	s.mu.Lock()
	switch {
	case s.state.Regime == physics.Holed:
		s.mu.Unlock()
		return ErrBallHoled
	case s.inMotion:
		s.mu.Unlock()
		return ErrShotInProgress
	}
	cfg := s.controller.Config()
	s.state.Velocity = physics.LaunchVelocity(cfg.MaxLaunchSpeed, s.aim.Power, s.aim.Elevation, s.aim.Azimuth)
	s.inMotion = true
	s.shot++
	s.tick = 0
	event := s.eventLocked(EventHit, "")
	sinks := s.sinks
	s.mu.Unlock()

	s.logger.Info("shot hit", logging.Int("shot", event.Shot), logging.Float64("power", event.Aim.Power),
		logging.Float64("azimuth", event.Aim.Azimuth), logging.Float64("elevation", event.Aim.Elevation))
	publishEvents(sinks, event)
	return nil
}

// Step advances a moving ball by one tick. It does nothing between strokes.
func (s *Session) Step() {
	s.advance()
}

// advance reports whether the ball is still moving after the tick.
func (s *Session) advance() bool {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	s.mu.Lock()
	if !s.inMotion {
		s.mu.Unlock()
		return false
	}
	outcome := s.controller.Advance(s.state)
	s.state = outcome.State
	s.tick++
	frame := Frame{SessionID: s.id, Shot: s.shot, Tick: s.tick, State: s.state}

	var events []Event
	if outcome.Contact == physics.ContactSurface && outcome.Prediction == physics.Free {
		events = append(events, s.eventLocked(EventBounce, ""))
	}
	//1.- The stroke ends when the ball drops, settles or runs out of ticks.
	switch {
	case s.state.Regime == physics.Holed:
		s.inMotion = false
		events = append(events, s.eventLocked(EventHoled, ""))
	case physics.IsStill(s.state.Velocity):
		s.inMotion = false
		events = append(events, s.eventLocked(EventStopped, ""))
	case s.tick >= s.maxTicks:
		s.inMotion = false
		events = append(events, s.eventLocked(EventStopped, "max_ticks"))
	}
	moving := s.inMotion
	sinks := s.sinks
	s.mu.Unlock()

	s.monitor.Record(outcome)
	for _, sink := range sinks {
		sink.PublishFrame(frame)
	}
	publishEvents(sinks, events...)
	for _, event := range events {
		switch event.Type {
		case EventHoled:
			s.logger.Info("ball holed", logging.Int("shot", event.Shot), logging.Int("tick", event.Tick))
		case EventStopped:
			s.logger.Info("ball stopped", logging.Int("shot", event.Shot), logging.Int("tick", event.Tick),
				logging.Any("position", event.State.Position), logging.String("reason", event.Reason))
		}
	}
	return moving
}

// Play steps the current stroke to completion, checking ctx between batches of ticks.
func (s *Session) Play(ctx context.Context) (Snapshot, error) {
	for i := 0; ; i++ {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return s.Snapshot(), err
			}
		}
		if !s.advance() {
			return s.Snapshot(), nil
		}
	}
}

// Replay returns the ball to the tee and restores the replay aim.
func (s *Session) Replay() {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	s.mu.Lock()
	s.state = physics.InitialBallState()
	s.inMotion = false
	s.shot = 0
	s.tick = 0
	s.aim = Aim{Power: ReplayPower, Elevation: DefaultElevation}
	event := s.eventLocked(EventReset, "")
	sinks := s.sinks
	s.mu.Unlock()

	s.logger.Debug("ball reset")
	publishEvents(sinks, event)
}

// Snapshot copies the current session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		SessionID: s.id,
		Course:    s.course.Name,
		Shot:      s.shot,
		Tick:      s.tick,
		InMotion:  s.inMotion,
		State:     s.state,
		Aim:       s.aim,
	}
}

func (s *Session) eventLocked(kind EventType, reason string) Event {
	return Event{
		SessionID: s.id,
		Type:      kind,
		Shot:      s.shot,
		Tick:      s.tick,
		State:     s.state,
		Aim:       s.aim,
		Reason:    reason,
	}
}

func publishEvents(sinks []Sink, events ...Event) {
	for _, event := range events {
		for _, sink := range sinks {
			sink.PublishEvent(event)
		}
	}
}
