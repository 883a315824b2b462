package physics

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testHole = mgl64.Vec3{0, 0, 30}

func TestHoleCaptureRequiresRolling(t *testing.T) {
	cfg := DefaultConfig()
	prev := mgl64.Vec3{0, 1, 27}
	velocity := mgl64.Vec3{0, 0, 2}

	assert.True(t, HoleCapture(cfg, Rolling, prev, velocity, testHole))
	//1.- The identical path in flight never drops in.
	assert.False(t, HoleCapture(cfg, Free, prev, velocity, testHole))
	assert.False(t, HoleCapture(cfg, Holed, prev, velocity, testHole))
}

func TestHoleCaptureSpeedGate(t *testing.T) {
	cfg := DefaultConfig()
	prev := mgl64.Vec3{0, 1, 25}
	velocity := mgl64.Vec3{0, 0, 6}
	//1.- The segment crosses the capture sphere but the ball is too fast.
	assert.False(t, HoleCapture(cfg, Rolling, prev, velocity, testHole))

	contact := Detect(cfg, prev.Add(velocity), Rolling, prev, velocity, testHole, nil)
	assert.NotEqual(t, ContactHole, contact.Kind)
}

func TestHoleCaptureMissesWhenPathIsWide(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, HoleCapture(cfg, Rolling, mgl64.Vec3{3, 1, 27}, mgl64.Vec3{0, 0, 2}, testHole))
	//1.- A ball at rest far away cannot drop in; one resting inside the sphere can.
	assert.False(t, HoleCapture(cfg, Rolling, mgl64.Vec3{0, 1, 0}, mgl64.Vec3{}, testHole))
	assert.True(t, HoleCapture(cfg, Rolling, mgl64.Vec3{0, 1, 29.5}, mgl64.Vec3{}, testHole))
}

func TestDetectNeverReportsHoleWhileAirborne(t *testing.T) {
	cfg := DefaultConfig()
	above := testHole.Add(Up)
	paths := []struct {
		prev     mgl64.Vec3
		velocity mgl64.Vec3
	}{
		{prev: mgl64.Vec3{0, 1.5, 29}, velocity: mgl64.Vec3{0, -0.2, 1}},
		{prev: mgl64.Vec3{0, 3, 30}, velocity: mgl64.Vec3{0, -2, 0}},
		{prev: above.Sub(mgl64.Vec3{0, 0, 0.5}), velocity: mgl64.Vec3{0, 0, 1}},
	}
	for _, path := range paths {
		candidate := path.prev.Add(path.velocity).Add(mgl64.Vec3{0, -cfg.Gravity / 2, 0})
		contact := Detect(cfg, candidate, Free, path.prev, path.velocity, testHole, nil)
		assert.NotEqual(t, ContactHole, contact.Kind, "path %+v", path)
	}
}

func TestDetectFirstListedHillWins(t *testing.T) {
	cfg := DefaultConfig()
	first := Ellipsoid(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{2, 2, 2})
	second := Ellipsoid(mgl64.Vec3{0, 1, 0}, mgl64.Vec3{2, 2, 2})
	prev := mgl64.Vec3{0.5, 6, 0}
	velocity := mgl64.Vec3{0, -3.5, 0}
	candidate := prev.Add(velocity)
	require.True(t, first.Contains(candidate))
	require.True(t, second.Contains(candidate))

	//1.- The second hill is touched earlier, but list order decides.
	contact := Detect(cfg, candidate, Rolling, prev, velocity, testHole, []Obstacle{first, second})
	require.Equal(t, ContactSurface, contact.Kind)
	assert.InDelta(t, math.Sqrt(8.75), contact.Point.Y(), 1e-9)

	swapped := Detect(cfg, candidate, Rolling, prev, velocity, testHole, []Obstacle{second, first})
	assert.InDelta(t, 1+math.Sqrt(8.75), swapped.Point.Y(), 1e-9)
}

func TestDetectHillNormalPointsOutward(t *testing.T) {
	cfg := DefaultConfig()
	hill := Ellipsoid(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{2, 2, 2})
	prev := mgl64.Vec3{0.5, 6, 0}
	velocity := mgl64.Vec3{0, -3.5, 0}
	contact := Detect(cfg, prev.Add(velocity), Rolling, prev, velocity, testHole, []Obstacle{hill})
	require.Equal(t, ContactSurface, contact.Kind)
	expected := normalized(contact.Point)
	assert.InDelta(t, 0, Norm(normalized(contact.Normal).Sub(expected)), 1e-9)
}

func TestDetectGroundAndNone(t *testing.T) {
	cfg := DefaultConfig()
	prev := mgl64.Vec3{0, 1.3, 0}
	velocity := mgl64.Vec3{0.1, -0.5, 0}
	candidate := prev.Add(velocity).Add(mgl64.Vec3{0, -cfg.Gravity / 2, 0})

	contact := Detect(cfg, candidate, Free, prev, velocity, testHole, nil)
	require.Equal(t, ContactSurface, contact.Kind)
	assert.Equal(t, PlaneNormal, contact.Normal)
	assert.InDelta(t, 1, contact.Point.Y(), 1e-9)

	high := Detect(cfg, mgl64.Vec3{0, 4, 0}, Free, mgl64.Vec3{0, 5, 0}, mgl64.Vec3{0, -1, 0}, testHole, nil)
	assert.Equal(t, ContactNone, high.Kind)
}

func TestDetectPlaneObstacleInList(t *testing.T) {
	cfg := DefaultConfig()
	prev := mgl64.Vec3{0, 1, 0}
	velocity := mgl64.Vec3{0.05, 0, 0}
	contact := Detect(cfg, prev.Add(velocity), Rolling, prev, velocity, testHole, []Obstacle{Plane()})
	require.Equal(t, ContactSurface, contact.Kind)
	assert.Equal(t, prev.Add(velocity), contact.Point)
}
