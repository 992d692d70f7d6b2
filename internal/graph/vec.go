package graph

import "math"

// Vec2 is a point or direction in a map frame.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (v Vec2) Add(o Vec2) Vec2 { return Vec2{v.X + o.X, v.Y + o.Y} }

func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{v.X - o.X, v.Y - o.Y} }

func (v Vec2) Scale(s float64) Vec2 { return Vec2{v.X * s, v.Y * s} }

func (v Vec2) Dot(o Vec2) float64 { return v.X*o.X + v.Y*o.Y }

func (v Vec2) Norm() float64 { return math.Hypot(v.X, v.Y) }

// DistanceToSegment returns the distance from p to the segment a→b and the
// position of the projection along the segment, clamped to [0, |b-a|].
func DistanceToSegment(p, a, b Vec2) (dist, along float64) {
	ab := b.Sub(a)
	length := ab.Norm()
	if length < 1e-8 {
		return p.Sub(a).Norm(), 0
	}
	along = p.Sub(a).Dot(ab) / length
	along = math.Max(0, math.Min(length, along))
	closest := a.Add(ab.Scale(along / length))
	return p.Sub(closest).Norm(), along
}
