package physics

import (
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
)

// Regime classifies how the ball moves during a tick.
type Regime uint8

const (
	// Free is ballistic flight under gravity.
	Free Regime = iota
	// Rolling is constrained to a surface, losing normal velocity every tick.
	Rolling
	// Holed is terminal: the ball rests in the hole with zero velocity.
	Holed
)

func (r Regime) String() string {
	switch r {
	case Free:
		return "free"
	case Rolling:
		return "rolling"
	case Holed:
		return "holed"
	default:
		return fmt.Sprintf("regime(%d)", uint8(r))
	}
}

// MarshalText encodes the regime using its lowercase name.
func (r Regime) MarshalText() ([]byte, error) {
	switch r {
	case Free, Rolling, Holed:
		return []byte(r.String()), nil
	default:
		return nil, fmt.Errorf("unknown regime %d", uint8(r))
	}
}

// UnmarshalText decodes a regime name.
func (r *Regime) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "free":
		*r = Free
	case "rolling":
		*r = Rolling
	case "holed":
		*r = Holed
	default:
		return fmt.Errorf("unknown regime %q", string(text))
	}
	return nil
}

// BallState is the complete dynamic state of the ball between ticks.
type BallState struct {
	Position mgl64.Vec3 `json:"position"`
	Velocity mgl64.Vec3 `json:"velocity"`
	Regime   Regime     `json:"regime"`
}

// InitialBallState is the tee position used at course reset.
func InitialBallState() BallState {
	return BallState{Position: mgl64.Vec3{0, 1, 0}, Regime: Free}
}

// ContactKind tags the result of collision detection.
type ContactKind uint8

const (
	// ContactNone means the tick completes without touching geometry.
	ContactNone ContactKind = iota
	// ContactHole means the ball drops into the hole.
	ContactHole
	// ContactSurface means the ball touches a hill or the ground.
	ContactSurface
)

func (k ContactKind) String() string {
	switch k {
	case ContactNone:
		return "none"
	case ContactHole:
		return "hole"
	case ContactSurface:
		return "surface"
	default:
		return fmt.Sprintf("contact(%d)", uint8(k))
	}
}

// Contact describes the first geometry touched during a tick. Point and Normal are only
// meaningful for ContactSurface; Normal is not guaranteed to be unit length.
type Contact struct {
	Kind   ContactKind
	Point  mgl64.Vec3
	Normal mgl64.Vec3
}

// Prediction is the tentative end-of-tick state assuming the current regime continues.
type Prediction struct {
	Regime   Regime
	Position mgl64.Vec3
	Velocity mgl64.Vec3
}
