package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// EllipsoidIntersection returns the ball centre at the moment it first touches the
// obstacle while travelling from prevCenter towards candidate.
//
// The surface is quadratic in position and the flight path is quadratic in time, so the
// hit is found by refinement: intersect the straight segment with the inflated ellipsoid,
// project the true trajectory onto the tangent plane at that estimate, and restart the
// segment from the projected point. Rolling balls move in a straight line, so the first
// linear estimate is already exact.
func EllipsoidIntersection(cfg Config, obstacle Obstacle, prevCenter, candidate, prevVelocity mgl64.Vec3, regime Regime) mgl64.Vec3 {
	//1.- Work in the ellipsoid frame with radii grown by the ball radius.
	end := candidate.Sub(obstacle.Center)
	prev := prevCenter.Sub(obstacle.Center)
	radii := inflated(obstacle.Dimensions)
	scale := inverse(radii)

	estimate := segmentHit(prev, end, scale)
	if regime != Free {
		return estimate.Add(obstacle.Center)
	}
	iterations := cfg.SolverIterations
	if iterations <= 0 {
		iterations = DefaultSolverIterations
	}
	for i := 1; i < iterations; i++ {
		//2.- Pull the estimate onto the parabola and shorten the remaining segment.
		start := trajectoryHit(cfg, prev, prevVelocity, estimate, EllipsoidNormal(radii, estimate))
		estimate = segmentHit(start, end, scale)
	}
	//3.- Translate the final estimate back into world coordinates.
	return estimate.Add(obstacle.Center)
}

// segmentHit intersects the segment start→end with the unit sphere in the scaled frame.
func segmentHit(start, end, scale mgl64.Vec3) mgl64.Vec3 {
	direction := Pairwise(end.Sub(start), scale)
	origin := Pairwise(start, scale)
	a := direction.Dot(direction)
	b := 2 * direction.Dot(origin)
	c := origin.Dot(origin) - 1
	t0, t1, ok := SolveQuadratic(a, b, c)
	if !ok {
		return start
	}
	first := Mix(start, end, t0)
	second := Mix(start, end, t1)
	//1.- Crossings under the visible hemisphere are not reachable from above the ground.
	if first.Y() < -Epsilon {
		return second
	}
	return first
}

// trajectoryHit intersects the ballistic path from prev with the tangent plane through
// estimate and keeps the crossing nearest the estimate.
func trajectoryHit(cfg Config, prev, velocity, estimate, normal mgl64.Vec3) mgl64.Vec3 {
	accel := ballisticOffset(cfg)
	a := normal.Dot(accel)
	b := normal.Dot(velocity)
	c := normal.Dot(prev.Sub(estimate))
	t0, t1, ok := SolveQuadratic(a, b, c)
	if !ok {
		return estimate
	}
	first := pathAt(prev, velocity, accel, t0)
	second := pathAt(prev, velocity, accel, t1)
	if Norm(first.Sub(estimate)) < Norm(second.Sub(estimate)) {
		return first
	}
	return second
}

// pathAt evaluates origin + velocity·t + accel·t².
func pathAt(origin, velocity, accel mgl64.Vec3, t float64) mgl64.Vec3 {
	return origin.Add(velocity.Mul(t)).Add(accel.Mul(t * t))
}

// GroundIntersection returns the ball centre where it reaches the ground plane.
// The plane is axis aligned so the contact time has a closed form.
func GroundIntersection(cfg Config, prevCenter, prevVelocity mgl64.Vec3, regime Regime) mgl64.Vec3 {
	vy := prevVelocity.Y()
	if regime == Free {
		//1.- Solve y + vy·t - g/2·t² = 1 for the later root.
		discriminant := math.Max(vy*vy+2*cfg.Gravity*(prevCenter.Y()-groundHeight), 0)
		t := (vy + math.Sqrt(discriminant)) / cfg.Gravity
		return pathAt(prevCenter, prevVelocity, ballisticOffset(cfg), t)
	}
	//2.- Rolling motion is linear and rarely has vertical speed; default to a full tick.
	t := 1.0
	if math.Abs(vy) >= Epsilon {
		t = math.Max(1, (groundHeight-prevCenter.Y())/vy)
	}
	return pathAt(prevCenter, prevVelocity, mgl64.Vec3{}, t)
}
