package physics

import "github.com/go-gl/mathgl/mgl64"

// Detect returns the first geometry the ball touches while moving from prevPosition to
// candidate. The hole is checked first, then hills in list order, then the ground. The
// first matching hill wins even when a later one would be touched earlier.
func Detect(cfg Config, candidate mgl64.Vec3, regime Regime, prevPosition, prevVelocity, hole mgl64.Vec3, obstacles []Obstacle) Contact {
	//1.- A rolling ball that crosses the capture sphere drops in before anything else.
	if HoleCapture(cfg, regime, prevPosition, prevVelocity, hole) {
		return Contact{Kind: ContactHole}
	}
	//2.- Hills are resolved in declaration order.
	for _, obstacle := range obstacles {
		if !obstacle.Contains(candidate) {
			continue
		}
		if obstacle.Kind == KindPlane {
			return groundContact(cfg, prevPosition, prevVelocity, regime)
		}
		point := EllipsoidIntersection(cfg, obstacle, prevPosition, candidate, prevVelocity, regime)
		//3.- Step one ball radius towards the centre to sample the normal on the real surface.
		touch := point.Add(normalized(obstacle.Center.Sub(point)))
		return Contact{Kind: ContactSurface, Point: point, Normal: obstacle.NormalAt(touch)}
	}
	//4.- The ground is implicit in every course.
	if PlaneContains(candidate) {
		return groundContact(cfg, prevPosition, prevVelocity, regime)
	}
	return Contact{Kind: ContactNone}
}

func groundContact(cfg Config, prevPosition, prevVelocity mgl64.Vec3, regime Regime) Contact {
	return Contact{
		Kind:   ContactSurface,
		Point:  GroundIntersection(cfg, prevPosition, prevVelocity, regime),
		Normal: PlaneNormal,
	}
}

// HoleCapture reports whether a rolling ball passes close enough to the hole to drop in
// during the tick. Airborne balls and balls above the capture speed never drop in.
func HoleCapture(cfg Config, regime Regime, prevPosition, prevVelocity, hole mgl64.Vec3) bool {
	if regime != Rolling {
		return false
	}
	if Norm(prevVelocity) > cfg.CaptureSpeedLimit {
		return false
	}
	//1.- Find when the segment prev→prev+v is one capture radius from the point above the hole.
	offset := prevPosition.Sub(hole.Add(Up))
	a := prevVelocity.Dot(prevVelocity)
	b := 2 * offset.Dot(prevVelocity)
	c := offset.Dot(offset) - cfg.CaptureRadius*cfg.CaptureRadius
	if a == 0 {
		//2.- A ball at rest is captured only if it already sits inside the sphere.
		return c <= 0
	}
	//3.- The discriminant over 4a is r² minus the squared closest approach; a clearly
	// negative value means the path never enters the sphere.
	if b*b-4*a*c < -4*a*Epsilon {
		return false
	}
	t0, t1, _ := SolveQuadratic(a, b, c)
	return withinTick(t0) || withinTick(t1)
}

func withinTick(t float64) bool {
	return t >= -Epsilon && t <= 1+Epsilon
}
