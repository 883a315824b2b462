package simulation

import (
	"github.com/go-gl/mathgl/mgl64"

	"minigolf/engine/internal/physics"
)

// Outcome is the committed state of one tick together with what the ball touched.
type Outcome struct {
	State   physics.BallState
	Contact physics.ContactKind
	// Prediction is the regime the ball was in before collision handling.
	Prediction physics.Regime
}

// Tick advances the ball by one step. Holed balls are returned unchanged.
func Tick(cfg physics.Config, state physics.BallState, obstacles []physics.Obstacle, hole mgl64.Vec3) physics.BallState {
	return Advance(cfg, state, obstacles, hole).State
}

// Advance runs predict, detect and resolve for a single tick and reports the outcome.
func Advance(cfg physics.Config, state physics.BallState, obstacles []physics.Obstacle, hole mgl64.Vec3) Outcome {
	switch state.Regime {
	case physics.Holed:
		//1.- The hole is terminal; nothing moves the ball again.
		return Outcome{State: state, Contact: physics.ContactNone, Prediction: physics.Holed}
	case physics.Free, physics.Rolling:
	default:
		return Outcome{State: state, Contact: physics.ContactNone, Prediction: state.Regime}
	}

	prediction := physics.Predict(cfg, state, hole, obstacles)
	if prediction.Regime == physics.Holed {
		return Outcome{State: holed(hole), Contact: physics.ContactHole, Prediction: physics.Holed}
	}

	//2.- Check the predicted move against the hole, the hills and the ground.
	contact := physics.Detect(cfg, prediction.Position, prediction.Regime, state.Position, prediction.Velocity, hole, obstacles)

	var next physics.BallState
	switch contact.Kind {
	case physics.ContactNone:
		velocity := prediction.Velocity
		if prediction.Regime == physics.Free {
			velocity = velocity.Add(physics.GravityStep(cfg))
		}
		next = physics.BallState{Position: prediction.Position, Velocity: velocity, Regime: prediction.Regime}
	case physics.ContactHole:
		return Outcome{State: holed(hole), Contact: physics.ContactHole, Prediction: prediction.Regime}
	case physics.ContactSurface:
		//3.- Every bounce returns the ball to flight, even off a surface it was rolling on.
		velocity := physics.Bounce(cfg, state.Position, prediction.Velocity, prediction.Regime, contact.Point, contact.Normal)
		next = physics.BallState{Position: contact.Point, Velocity: velocity, Regime: physics.Free}
	default:
		next = state
	}
	next.Position = aboveGround(next.Position)
	return Outcome{State: next, Contact: contact.Kind, Prediction: prediction.Regime}
}

func holed(hole mgl64.Vec3) physics.BallState {
	return physics.BallState{Position: hole, Regime: physics.Holed}
}

// aboveGround removes rounding error that would leave the centre under the ground plane.
func aboveGround(position mgl64.Vec3) mgl64.Vec3 {
	if position.Y() < 1 {
		position[1] = 1
	}
	return position
}

// Controller binds physics tunables and course geometry so callers only pass the state.
type Controller struct {
	cfg       physics.Config
	obstacles []physics.Obstacle
	hole      mgl64.Vec3
}

// NewController copies the obstacle list so later mutation by the caller has no effect.
func NewController(cfg physics.Config, obstacles []physics.Obstacle, hole mgl64.Vec3) *Controller {
	copied := make([]physics.Obstacle, len(obstacles))
	copy(copied, obstacles)
	return &Controller{cfg: cfg, obstacles: copied, hole: hole}
}

// Config exposes the physics tunables in use.
func (c *Controller) Config() physics.Config {
	return c.cfg
}

// Hole returns the hole location.
func (c *Controller) Hole() mgl64.Vec3 {
	return c.hole
}

// Advance runs one tick against the bound course.
func (c *Controller) Advance(state physics.BallState) Outcome {
	return Advance(c.cfg, state, c.obstacles, c.hole)
}
