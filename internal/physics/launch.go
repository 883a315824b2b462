package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// LaunchVelocity converts shot parameters into an initial velocity. Elevation is measured
// from the vertical axis and azimuth from the +z axis towards +x.
func LaunchVelocity(maxSpeed, power, elevation, azimuth float64) mgl64.Vec3 {
	speed := maxSpeed * power
	sinElevation := math.Sin(elevation)
	return mgl64.Vec3{
		speed * sinElevation * math.Sin(azimuth),
		speed * math.Cos(elevation),
		speed * sinElevation * math.Cos(azimuth),
	}
}

// IsStill reports whether every velocity component is below the rest threshold.
func IsStill(velocity mgl64.Vec3) bool {
	for i := 0; i < 3; i++ {
		if math.Abs(velocity[i]) > Epsilon {
			return false
		}
	}
	return true
}
