package graph

import (
	"math"
	"time"
)

// Traits are the kinematic limits shared by every robot of a fleet.
type Traits struct {
	LinearVelocity      float64
	LinearAcceleration  float64
	AngularVelocity     float64
	AngularAcceleration float64
	FootprintRadius     float64
	VicinityRadius      float64
}

// DefaultTraits match the fallback values used by fleet adapters when no
// parameters are supplied.
func DefaultTraits() Traits {
	return Traits{
		LinearVelocity:      0.7,
		LinearAcceleration:  0.3,
		AngularVelocity:     0.5,
		AngularAcceleration: 1.5,
		FootprintRadius:     0.5,
		VicinityRadius:      1.5,
	}
}

// TravelTime estimates how long it takes to turn from yaw0 towards yaw1 and
// drive the straight-line distance between p0 and p1. Acceleration phases are
// folded in as a half-ramp on each end.
func (t Traits) TravelTime(p0 Vec2, yaw0 float64, p1 Vec2, yaw1 float64) time.Duration {
	dist := p1.Sub(p0).Norm()
	turn := math.Abs(wrapAngle(yaw1 - yaw0))

	seconds := 0.0
	if t.LinearVelocity > 0 {
		seconds += dist / t.LinearVelocity
		if t.LinearAcceleration > 0 && dist > 0 {
			seconds += t.LinearVelocity / t.LinearAcceleration
		}
	}
	if t.AngularVelocity > 0 {
		seconds += turn / t.AngularVelocity
	}
	return time.Duration(seconds * float64(time.Second))
}

func wrapAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a < -math.Pi {
		a += 2 * math.Pi
	}
	return a
}
