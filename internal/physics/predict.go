package physics

import "github.com/go-gl/mathgl/mgl64"

// Predict proposes the end-of-tick state assuming the ball keeps its current regime.
// Collisions are not resolved here; the tick controller feeds the prediction to Detect.
func Predict(cfg Config, state BallState, hole mgl64.Vec3, obstacles []Obstacle) Prediction {
	position := state.Position
	velocity := state.Velocity

	//1.- A ball resting exactly above the hole is captured without moving.
	if position == hole.Add(Up) {
		return Prediction{Regime: Holed, Position: hole}
	}

	halfTick := position.Add(velocity.Mul(0.5)).Add(ballisticOffset(cfg).Mul(0.25))

	//2.- Staying inside a hill for half a tick means the ball is rolling on it.
	for _, obstacle := range obstacles {
		if obstacle.Contains(position) && obstacle.Contains(halfTick) {
			return rolling(cfg, position, velocity, obstacle.NormalAt(position))
		}
	}

	//3.- The same test against the ground plane.
	if PlaneContains(position) && PlaneContains(halfTick) {
		return rolling(cfg, position, velocity, PlaneNormal)
	}

	//4.- Otherwise the ball flies; gravity is added to velocity after collision handling.
	return Prediction{
		Regime:   Free,
		Position: position.Add(velocity).Add(ballisticOffset(cfg)),
		Velocity: velocity,
	}
}

func rolling(cfg Config, position, velocity, normal mgl64.Vec3) Prediction {
	rolled := Roll(cfg, velocity, normal)
	return Prediction{Regime: Rolling, Position: position.Add(rolled), Velocity: rolled}
}
