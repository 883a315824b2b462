package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Up is the ground normal and the direction opposing gravity.
var Up = mgl64.Vec3{0, 1, 0}

// Pairwise multiplies two vectors component by component.
func Pairwise(a, b mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}

// Mix linearly interpolates from a towards b by t.
func Mix(a, b mgl64.Vec3, t float64) mgl64.Vec3 {
	return a.Add(b.Sub(a).Mul(t))
}

// Norm returns the Euclidean length of v.
func Norm(v mgl64.Vec3) float64 {
	return math.Sqrt(v.Dot(v))
}

// normalized returns a unit vector, or the zero vector when v has no length.
func normalized(v mgl64.Vec3) mgl64.Vec3 {
	length := Norm(v)
	if length == 0 {
		return mgl64.Vec3{}
	}
	return v.Mul(1 / length)
}

// GravityStep is the velocity change applied by one tick of gravity.
func GravityStep(cfg Config) mgl64.Vec3 {
	return mgl64.Vec3{0, -cfg.Gravity, 0}
}

// ballisticOffset is the position change caused by gravity over one full tick.
func ballisticOffset(cfg Config) mgl64.Vec3 {
	return mgl64.Vec3{0, -cfg.halfGravity(), 0}
}

// SolveQuadratic returns both roots of a·t² + b·t + c = 0, smaller first when a > 0.
// Negative discriminants produced by rounding at tangency are clamped to zero. A vanishing
// leading coefficient degrades to the linear root; ok is false only when neither a nor b
// constrains t.
func SolveQuadratic(a, b, c float64) (t0, t1 float64, ok bool) {
	if a == 0 {
		//1.- Without a quadratic term the equation is linear or has no unique root.
		if b == 0 {
			return 0, 0, false
		}
		root := -c / b
		return root, root, true
	}
	//2.- Clamp the discriminant so tangent trajectories still yield a double root.
	discriminant := math.Max(b*b-4*a*c, 0)
	sqrt := math.Sqrt(discriminant)
	return (-b - sqrt) / (2 * a), (-b + sqrt) / (2 * a), true
}
