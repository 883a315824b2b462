package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// basisDegenerate is the cross product length below which the reference vector is swapped.
const basisDegenerate = 1e-9

var (
	basisReference = mgl64.Vec3{1, 0, 0}
	basisFallback  = mgl64.Vec3{0, 0, 1}
)

// NormalBasis returns a rotation whose first row is the unit normal. Multiplying a world
// vector by the matrix expresses it as (normal, tangent, bitangent) components; the
// transpose maps back.
func NormalBasis(normal mgl64.Vec3) mgl64.Mat3 {
	x := normalized(normal)
	y := x.Cross(basisReference)
	//1.- Normals parallel to the x axis need a different reference vector.
	if Norm(y) < basisDegenerate {
		y = x.Cross(basisFallback)
	}
	y = normalized(y)
	z := x.Cross(y)
	return mgl64.Mat3FromRows(x, y, z)
}

// reshape scales velocity by factors expressed in the normal basis.
func reshape(velocity, normal, factors mgl64.Vec3) mgl64.Vec3 {
	basis := NormalBasis(normal)
	local := Pairwise(basis.Mul3x1(velocity), factors)
	return basis.Transpose().Mul3x1(local)
}

// Bounce returns the velocity after the ball hits a surface at point with the given normal.
// The normal component is reflected and damped; tangential components lose friction.
func Bounce(cfg Config, prevPosition, prevVelocity mgl64.Vec3, regime Regime, point, normal mgl64.Vec3) mgl64.Vec3 {
	impact := impactVelocity(cfg, prevPosition, prevVelocity, regime, point)
	return reshape(impact, normal, mgl64.Vec3{-cfg.BounceFactor, cfg.FrictionFactor, cfg.FrictionFactor})
}

// Roll applies one tick of gravity, then removes the velocity component along normal and
// applies friction to the rest.
func Roll(cfg Config, velocity, normal mgl64.Vec3) mgl64.Vec3 {
	falling := velocity.Add(GravityStep(cfg))
	return reshape(falling, normal, mgl64.Vec3{0, cfg.FrictionFactor, cfg.FrictionFactor})
}

// impactVelocity backs out the velocity at the moment of contact.
func impactVelocity(cfg Config, prevPosition, prevVelocity mgl64.Vec3, regime Regime, point mgl64.Vec3) mgl64.Vec3 {
	if regime != Free {
		return prevVelocity
	}
	//1.- Horizontal motion is uniform, so either horizontal axis times the flight.
	t := 0.0
	switch {
	case math.Abs(prevVelocity.X()) > Epsilon:
		t = (point.X() - prevPosition.X()) / prevVelocity.X()
	case math.Abs(prevVelocity.Z()) > Epsilon:
		t = (point.Z() - prevPosition.Z()) / prevVelocity.Z()
	}
	//2.- Remove the gravity-induced vertical change accumulated before contact.
	return prevVelocity.Sub(mgl64.Vec3{0, cfg.halfGravity() * t * t, 0})
}
