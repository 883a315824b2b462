package shot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"minigolf/engine/internal/course"
	"minigolf/engine/internal/input"
	"minigolf/engine/internal/logging"
	"minigolf/engine/internal/physics"
	"minigolf/engine/internal/simulation"
)

type recordingSink struct {
	mu       sync.Mutex
	frames   []Frame
	events   []Event
	sequence []string
}

func (r *recordingSink) PublishFrame(frame Frame) {
	r.mu.Lock()
	r.frames = append(r.frames, frame)
	r.sequence = append(r.sequence, fmt.Sprintf("frame:%d", frame.Tick))
	r.mu.Unlock()
}

func (r *recordingSink) PublishEvent(event Event) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.sequence = append(r.sequence, "event:"+string(event.Type))
	r.mu.Unlock()
}

func (r *recordingSink) order() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sequence...)
}

// stallingWriter holds the first log line containing match until release is closed.
type stallingWriter struct {
	match   []byte
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (w *stallingWriter) Write(p []byte) (int, error) {
	if bytes.Contains(p, w.match) {
		w.once.Do(func() {
			close(w.entered)
			<-w.release
		})
	}
	return len(p), nil
}

func (w *stallingWriter) Sync() error { return nil }

func (r *recordingSink) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]EventType, 0, len(r.events))
	for _, event := range r.events {
		types = append(types, event.Type)
	}
	return types
}

func flatCourse() course.Course {
	return course.Course{Name: "flat", Hole: mgl64.Vec3{50, 0, 50}}
}

func newSession(t *testing.T, c course.Course, opts ...Option) (*Session, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	session, err := NewSession(physics.DefaultConfig(), c, append([]Option{WithSink(sink)}, opts...)...)
	require.NoError(t, err)
	return session, sink
}

func TestNewSessionDefaults(t *testing.T) {
	session, _ := newSession(t, course.Reference())
	_, err := uuid.Parse(session.ID())
	require.NoError(t, err)

	snapshot := session.Snapshot()
	assert.Equal(t, physics.InitialBallState(), snapshot.State)
	assert.Equal(t, DefaultAim(), snapshot.Aim)
	assert.False(t, snapshot.InMotion)
	assert.Equal(t, course.ReferenceName, snapshot.Course)
}

func TestNewSessionRejectsInvalidInputs(t *testing.T) {
	bad := physics.DefaultConfig()
	bad.Gravity = 0
	_, err := NewSession(bad, course.Reference())
	assert.Error(t, err)

	_, err = NewSession(physics.DefaultConfig(), course.Course{Name: "", Hole: mgl64.Vec3{}})
	assert.Error(t, err)
}

func TestCommandsAdjustAim(t *testing.T) {
	session, _ := newSession(t, course.Reference(), WithSessionID("fixed"))
	assert.Equal(t, "fixed", session.ID())

	//1.- Power is already at its ceiling.
	require.NoError(t, session.Apply(input.Command{Type: input.CommandPowerUp}))
	assert.InDelta(t, 1.0, session.Aim().Power, 1e-12)
	require.NoError(t, session.Apply(input.Command{Type: input.CommandPowerDown}))
	assert.InDelta(t, 1-PowerStep, session.Aim().Power, 1e-12)

	require.NoError(t, session.Apply(input.Command{Type: input.CommandAimLeft}))
	assert.InDelta(t, AngleStep, session.Aim().Azimuth, 1e-12)
	require.NoError(t, session.Apply(input.Command{Type: input.CommandAimRight, Fast: true}))
	assert.InDelta(t, AngleStep-FastMultiplier*AngleStep, session.Aim().Azimuth, 1e-12)

	require.NoError(t, session.Apply(input.Command{Type: input.CommandAimUp}))
	assert.InDelta(t, DefaultElevation+AngleStep, session.Aim().Elevation, 1e-12)
	for i := 0; i < 30; i++ {
		require.NoError(t, session.Apply(input.Command{Type: input.CommandAimDown}))
	}
	assert.Equal(t, 0.0, session.Aim().Elevation)

	err := session.Apply(input.Command{Type: "spin"})
	assert.True(t, errors.Is(err, input.ErrUnknownCommand))
}

func TestAimWrapsAzimuth(t *testing.T) {
	aim := DefaultAim()
	for i := 0; i < 50; i++ {
		aim = aim.turn(AngleStep * FastMultiplier)
	}
	assert.LessOrEqual(t, math.Abs(aim.Azimuth), math.Pi)
}

func TestShotRunsUntilBallStops(t *testing.T) {
	monitor := simulation.NewTickMonitor()
	session, sink := newSession(t, flatCourse(), WithMonitor(monitor))

	require.NoError(t, session.Hit())
	//1.- A second stroke is refused until the first one finishes.
	assert.ErrorIs(t, session.Hit(), ErrShotInProgress)

	snapshot, err := session.Play(context.Background())
	require.NoError(t, err)
	assert.False(t, snapshot.InMotion)
	assert.Equal(t, 1, snapshot.Shot)
	assert.True(t, physics.IsStill(snapshot.State.Velocity))
	assert.NotEqual(t, physics.Holed, snapshot.State.Regime)
	assert.Greater(t, snapshot.State.Position.Z(), 10.0)

	types := sink.types()
	require.NotEmpty(t, types)
	assert.Equal(t, EventHit, types[0])
	assert.Equal(t, EventStopped, types[len(types)-1])
	assert.Contains(t, types, EventBounce)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.frames, snapshot.Tick)
	for i, frame := range sink.frames {
		assert.Equal(t, i+1, frame.Tick)
		assert.GreaterOrEqual(t, frame.State.Position.Y(), 1.0)
	}
	assert.Greater(t, monitor.Snapshot().Bounces, 0)
}

func TestStepIsNoOpBetweenShots(t *testing.T) {
	session, sink := newSession(t, flatCourse())
	session.Step()
	assert.Equal(t, 0, session.Snapshot().Tick)
	assert.Empty(t, sink.frames)
}

func TestBallDropsAndStaysHoled(t *testing.T) {
	//1.- The tee sits exactly above this hole, so the first tick captures the ball.
	c := course.Course{Name: "ace", Hole: mgl64.Vec3{0, 0, 0}}
	session, sink := newSession(t, c)

	require.NoError(t, session.Hit())
	snapshot, err := session.Play(context.Background())
	require.NoError(t, err)
	assert.Equal(t, physics.Holed, snapshot.State.Regime)
	assert.Equal(t, c.Hole, snapshot.State.Position)
	assert.Equal(t, 1, snapshot.Tick)
	assert.Equal(t, []EventType{EventHit, EventHoled}, sink.types())

	assert.ErrorIs(t, session.Hit(), ErrBallHoled)
	assert.ErrorIs(t, session.Apply(input.Command{Type: input.CommandHit}), ErrBallHoled)
}

func TestMaxShotTicksStopsStroke(t *testing.T) {
	session, sink := newSession(t, flatCourse(), WithMaxShotTicks(3))
	require.NoError(t, session.Hit())
	snapshot, err := session.Play(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, snapshot.Tick)
	assert.False(t, snapshot.InMotion)

	sink.mu.Lock()
	last := sink.events[len(sink.events)-1]
	sink.mu.Unlock()
	assert.Equal(t, EventStopped, last.Type)
	assert.Equal(t, "max_ticks", last.Reason)

	//2.- The next stroke starts from wherever the ball was left.
	require.NoError(t, session.Hit())
	assert.Equal(t, 2, session.Snapshot().Shot)
}

func TestReplayResetsBallAndAim(t *testing.T) {
	session, sink := newSession(t, flatCourse(), WithMaxShotTicks(5))
	require.NoError(t, session.Apply(input.Command{Type: input.CommandAimLeft}))
	require.NoError(t, session.Hit())
	_, err := session.Play(context.Background())
	require.NoError(t, err)

	require.NoError(t, session.Apply(input.Command{Type: input.CommandReplay}))
	snapshot := session.Snapshot()
	assert.Equal(t, physics.InitialBallState(), snapshot.State)
	assert.Equal(t, Aim{Power: ReplayPower, Elevation: DefaultElevation}, snapshot.Aim)
	assert.Equal(t, 0, snapshot.Shot)
	types := sink.types()
	assert.Equal(t, EventReset, types[len(types)-1])
}

func TestPlayHonoursCancellation(t *testing.T) {
	session, _ := newSession(t, flatCourse())
	require.NoError(t, session.Hit())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	snapshot, err := session.Play(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, snapshot.InMotion)
}

func TestSinksSeeHitBeforeConcurrentTick(t *testing.T) {
	writer := &stallingWriter{match: []byte(`"shot hit"`), entered: make(chan struct{}), release: make(chan struct{})}
	session, sink := newSession(t, flatCourse(), WithLogger(logging.NewWithSyncer(writer, zapcore.InfoLevel)))

	hitDone := make(chan error, 1)
	go func() { hitDone <- session.Hit() }()
	select {
	case <-writer.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("hit never logged")
	}

	//1.- The hit is committed but not yet published; a tick must wait for it.
	stepDone := make(chan struct{})
	go func() {
		session.Step()
		close(stepDone)
	}()
	select {
	case <-stepDone:
		t.Fatal("tick completed while the hit was still being published")
	case <-time.After(50 * time.Millisecond):
	}

	close(writer.release)
	require.NoError(t, <-hitDone)
	select {
	case <-stepDone:
	case <-time.After(2 * time.Second):
		t.Fatal("tick never completed")
	}
	assert.Equal(t, []string{"event:hit", "frame:1"}, sink.order())
}
