package shot

import "math"

const (
	// PowerStep is the change applied by one power command.
	PowerStep = 0.075
	// AngleStep is the change applied by one aim command (4 degrees).
	AngleStep = 2 * math.Pi / 90
	// FastMultiplier scales AngleStep for fast azimuth commands.
	FastMultiplier = 10

	// InitialPower is the power a fresh session starts with.
	InitialPower = 1.0
	// ReplayPower is the power restored by a replay.
	ReplayPower = 0.5
	// DefaultElevation is the launch angle from vertical.
	DefaultElevation = math.Pi / 6
	// MaxElevation keeps shots from being aimed into the ground.
	MaxElevation = math.Pi / 2
)

// Aim holds the shot parameters chosen between strokes. Power is a fraction of the
// maximum launch speed. Azimuth is measured from +z towards +x and Elevation from +y.
type Aim struct {
	Power     float64 `json:"power"`
	Azimuth   float64 `json:"azimuth"`
	Elevation float64 `json:"elevation"`
}

// DefaultAim is the aim a new session starts with.
func DefaultAim() Aim {
	return Aim{Power: InitialPower, Elevation: DefaultElevation}
}

func (a Aim) adjustPower(delta float64) Aim {
	a.Power = clamp(a.Power+delta, 0, 1)
	return a
}

func (a Aim) turn(delta float64) Aim {
	//1.- Keep the azimuth in (-π, π] so it never drifts through repeated turns.
	a.Azimuth = math.Remainder(a.Azimuth+delta, 2*math.Pi)
	return a
}

func (a Aim) tilt(delta float64) Aim {
	a.Elevation = clamp(a.Elevation+delta, 0, MaxElevation)
	return a
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
