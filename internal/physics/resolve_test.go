package physics

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalBasisIsOrthonormal(t *testing.T) {
	normals := []mgl64.Vec3{
		{0, 1, 0},
		{0.3, 2, -0.4},
		{0, 0, -5},
		{3, 0, 0},
		{-1, 0, 0},
	}
	for _, normal := range normals {
		basis := NormalBasis(normal)
		residual := basis.Mul3(basis.Transpose()).Sub(mgl64.Ident3())
		//1.- Rows must be unit length and mutually orthogonal, even for x-aligned normals.
		for i, entry := range residual {
			assert.InDelta(t, 0, entry, 1e-12, "normal %v entry %d", normal, i)
		}
		assert.InDelta(t, 0, Norm(basis.Row(0).Sub(normalized(normal))), 1e-12)
	}
}

func TestBounceDampsVerticalDrop(t *testing.T) {
	cfg := DefaultConfig()
	velocity := mgl64.Vec3{0, -0.4, 0}
	bounced := Bounce(cfg, mgl64.Vec3{0, 1.3, 0}, velocity, Free, mgl64.Vec3{0, 1, 0}, PlaneNormal)
	assert.InDelta(t, 0, bounced.X(), 1e-12)
	assert.InDelta(t, 0.2, bounced.Y(), 1e-12)
	assert.InDelta(t, 0, bounced.Z(), 1e-12)
}

func TestBounceScalesTangentialComponents(t *testing.T) {
	cfg := DefaultConfig()
	velocity := mgl64.Vec3{0.03, -0.4, -0.02}
	bounced := Bounce(cfg, mgl64.Vec3{0, 1, 0}, velocity, Rolling, mgl64.Vec3{0.03, 1, -0.02}, PlaneNormal)
	assert.InDelta(t, 0.0297, bounced.X(), 1e-12)
	assert.InDelta(t, 0.2, bounced.Y(), 1e-12)
	assert.InDelta(t, -0.0198, bounced.Z(), 1e-12)
}

func TestBounceBacksOutGravityForFreeFlight(t *testing.T) {
	cfg := DefaultConfig()
	prev := mgl64.Vec3{0, 1.5, 0}
	velocity := mgl64.Vec3{0.02, -0.6, 0}
	point := GroundIntersection(cfg, prev, velocity, Free)
	contactTime := point.X() / velocity.X()
	bounced := Bounce(cfg, prev, velocity, Free, point, PlaneNormal)

	impactY := velocity.Y() - cfg.Gravity/2*contactTime*contactTime
	assert.InDelta(t, -0.5*impactY, bounced.Y(), 1e-12)
	assert.InDelta(t, 0.99*velocity.X(), bounced.X(), 1e-12)
}

func TestBounceOffSlopeKeepsSpeedBounded(t *testing.T) {
	cfg := DefaultConfig()
	normal := mgl64.Vec3{0, 1, 1}
	velocity := mgl64.Vec3{0, -0.5, 0}
	bounced := Bounce(cfg, mgl64.Vec3{0, 2, 0}, velocity, Rolling, mgl64.Vec3{0, 1, 0}, normal)
	//1.- The reflected ball leaves away from the slope.
	require.Greater(t, bounced.Dot(normal), 0.0)
	assert.Less(t, Norm(bounced), Norm(velocity))
}

func TestRollRemovesNormalComponent(t *testing.T) {
	cfg := DefaultConfig()
	normal := mgl64.Vec3{0.2, 1, 0.1}
	rolled := Roll(cfg, mgl64.Vec3{0.05, 0.02, -0.03}, normal)
	assert.InDelta(t, 0, rolled.Dot(normalized(normal)), 1e-12)

	//1.- At rest on flat ground gravity is cancelled entirely.
	assert.InDelta(t, 0, Norm(Roll(cfg, mgl64.Vec3{}, PlaneNormal)), 1e-15)
}

func TestLaunchVelocityAndStillness(t *testing.T) {
	v := LaunchVelocity(0.2, 0.5, 0, 1.3)
	assert.InDelta(t, 0, v.X(), 1e-12)
	assert.InDelta(t, 0.1, v.Y(), 1e-12)
	assert.InDelta(t, 0, v.Z(), 1e-12)

	forward := LaunchVelocity(0.2, 1, 1.5707963267948966, 0)
	assert.InDelta(t, 0.2, forward.Z(), 1e-12)
	assert.InDelta(t, 0, forward.Y(), 1e-12)

	assert.True(t, IsStill(mgl64.Vec3{1e-5, -1e-5, 0}))
	assert.False(t, IsStill(mgl64.Vec3{0, 0, 2e-4}))
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	cfg := DefaultConfig()
	cfg.Gravity = 0
	cfg.BounceFactor = 1.5
	cfg.SolverIterations = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gravity")
	assert.Contains(t, err.Error(), "bounce factor")
	assert.Contains(t, err.Error(), "solver iterations")
}

func TestRegimeTextRoundTrip(t *testing.T) {
	for _, regime := range []Regime{Free, Rolling, Holed} {
		text, err := regime.MarshalText()
		require.NoError(t, err)
		var decoded Regime
		require.NoError(t, decoded.UnmarshalText(text))
		assert.Equal(t, regime, decoded)
	}
	var bad Regime
	assert.Error(t, bad.UnmarshalText([]byte("sliding")))
}
