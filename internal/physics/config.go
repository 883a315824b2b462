package physics

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

const (
	// DefaultGravity is the downward velocity change applied per tick.
	DefaultGravity = 0.001
	// DefaultBounceFactor scales the reflected normal velocity on impact.
	DefaultBounceFactor = 0.5
	// DefaultFrictionFactor scales tangential velocity on impact and while rolling.
	DefaultFrictionFactor = 0.99
	// DefaultMaxLaunchSpeed is the launch speed at full power in distance units per tick.
	DefaultMaxLaunchSpeed = 0.2

	// DefaultSolverIterations controls the fixed-point refinement passes for ellipsoid hits.
	DefaultSolverIterations = 5
	// DefaultCaptureSpeedLimit rejects hole captures for balls moving faster than this.
	DefaultCaptureSpeedLimit = 5.0
)

// DefaultCaptureRadius is the distance from the point above the hole that counts as a drop in.
var DefaultCaptureRadius = math.Sqrt2

// Config carries the tunables consumed by every tick. It is passed explicitly so tests can
// run alternate constants without global state.
type Config struct {
	Gravity           float64 `json:"gravity" yaml:"gravity"`
	BounceFactor      float64 `json:"bounce_factor" yaml:"bounce_factor"`
	FrictionFactor    float64 `json:"friction_factor" yaml:"friction_factor"`
	MaxLaunchSpeed    float64 `json:"max_launch_speed" yaml:"max_launch_speed"`
	SolverIterations  int     `json:"solver_iterations" yaml:"solver_iterations"`
	CaptureRadius     float64 `json:"capture_radius" yaml:"capture_radius"`
	CaptureSpeedLimit float64 `json:"capture_speed_limit" yaml:"capture_speed_limit"`
}

// DefaultConfig returns the constants of the reference course.
func DefaultConfig() Config {
	return Config{
		Gravity:           DefaultGravity,
		BounceFactor:      DefaultBounceFactor,
		FrictionFactor:    DefaultFrictionFactor,
		MaxLaunchSpeed:    DefaultMaxLaunchSpeed,
		SolverIterations:  DefaultSolverIterations,
		CaptureRadius:     DefaultCaptureRadius,
		CaptureSpeedLimit: DefaultCaptureSpeedLimit,
	}
}

// Validate reports every invalid tunable in a single error.
func (c Config) Validate() error {
	var problems []string
	//1.- Gravity must be strictly positive because the ground solver divides by it.
	if !(c.Gravity > 0) || math.IsInf(c.Gravity, 0) {
		problems = append(problems, fmt.Sprintf("gravity must be positive, got %v", c.Gravity))
	}
	if !(c.BounceFactor >= 0) || c.BounceFactor > 1 {
		problems = append(problems, fmt.Sprintf("bounce factor must be within [0,1], got %v", c.BounceFactor))
	}
	if !(c.FrictionFactor >= 0) || c.FrictionFactor > 1 {
		problems = append(problems, fmt.Sprintf("friction factor must be within [0,1], got %v", c.FrictionFactor))
	}
	if !(c.MaxLaunchSpeed > 0) || math.IsInf(c.MaxLaunchSpeed, 0) {
		problems = append(problems, fmt.Sprintf("max launch speed must be positive, got %v", c.MaxLaunchSpeed))
	}
	//2.- Solver constants only need to be usable, not physically meaningful.
	if c.SolverIterations <= 0 {
		problems = append(problems, fmt.Sprintf("solver iterations must be positive, got %d", c.SolverIterations))
	}
	if !(c.CaptureRadius > 0) {
		problems = append(problems, fmt.Sprintf("capture radius must be positive, got %v", c.CaptureRadius))
	}
	if !(c.CaptureSpeedLimit >= 0) {
		problems = append(problems, fmt.Sprintf("capture speed limit must be non-negative, got %v", c.CaptureSpeedLimit))
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// halfGravity is the per-tick ballistic position offset (0, -g/2, 0).
func (c Config) halfGravity() float64 {
	return c.Gravity / 2
}
