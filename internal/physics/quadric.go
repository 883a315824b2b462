package physics

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

const (
	// Epsilon absorbs floating point noise in containment, root range and speed checks.
	Epsilon = 1e-4

	// groundHeight is the ball-centre height when a unit ball rests on the ground plane.
	groundHeight = 1.0
)

// ObstacleKind distinguishes ellipsoidal hills from planes.
type ObstacleKind uint8

const (
	// KindEllipsoid is an axis-aligned ellipsoid described by its semi-axis radii.
	KindEllipsoid ObstacleKind = iota
	// KindPlane is the ground plane; it carries no radii.
	KindPlane
)

func (k ObstacleKind) String() string {
	switch k {
	case KindEllipsoid:
		return "ellipsoid"
	case KindPlane:
		return "plane"
	default:
		return fmt.Sprintf("obstacle(%d)", uint8(k))
	}
}

// Obstacle is a piece of immutable course geometry.
type Obstacle struct {
	Kind       ObstacleKind
	Center     mgl64.Vec3
	Dimensions mgl64.Vec3
}

// Ellipsoid builds a hill obstacle.
func Ellipsoid(center, dimensions mgl64.Vec3) Obstacle {
	return Obstacle{Kind: KindEllipsoid, Center: center, Dimensions: dimensions}
}

// Plane builds a ground obstacle.
func Plane() Obstacle {
	return Obstacle{Kind: KindPlane}
}

// Contains reports whether a ball centred at point touches or penetrates the obstacle.
func (o Obstacle) Contains(point mgl64.Vec3) bool {
	if o.Kind == KindPlane {
		return PlaneContains(point)
	}
	return EllipsoidContains(o.Dimensions, o.Center, point)
}

// NormalAt returns the un-normalised outward normal at a surface point in world space.
func (o Obstacle) NormalAt(point mgl64.Vec3) mgl64.Vec3 {
	if o.Kind == KindPlane {
		return PlaneNormal
	}
	return EllipsoidNormal(o.Dimensions, point.Sub(o.Center))
}

// inflated grows each semi-axis by the unit ball radius.
func inflated(dimensions mgl64.Vec3) mgl64.Vec3 {
	return dimensions.Add(mgl64.Vec3{1, 1, 1})
}

// inverse returns the component-wise reciprocal.
func inverse(v mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{1 / v[0], 1 / v[1], 1 / v[2]}
}

// EllipsoidContains maps point into the frame where the ellipsoid, inflated by the ball
// radius, is the unit sphere and tests the resulting length against one.
func EllipsoidContains(dimensions, center, point mgl64.Vec3) bool {
	//1.- Translate to the ellipsoid centre then scale by the inflated radii.
	local := Pairwise(point.Sub(center), inverse(inflated(dimensions)))
	//2.- Allow a small tolerance so surface points count as contact.
	return Norm(local)-1 < Epsilon
}

// EllipsoidNormal is the gradient direction of an origin-centred ellipsoid at point.
// The result is not normalised.
func EllipsoidNormal(dimensions, point mgl64.Vec3) mgl64.Vec3 {
	var normal mgl64.Vec3
	for i := 0; i < 3; i++ {
		normal[i] = point[i] * dimensions[(i+1)%3] * dimensions[(i+2)%3] / dimensions[i]
	}
	return normal
}

// PlaneContains reports whether a unit ball centred at point touches the ground.
func PlaneContains(point mgl64.Vec3) bool {
	return point.Y() <= groundHeight
}

// PlaneNormal is the constant ground normal.
var PlaneNormal = Up
