// Package path evaluates intermediate Cartesian positions between
// waypoints. The functions are pure: they read the caller's point buffer
// and never keep it.
package path

import (
	"errors"
	"fmt"
	"math"
)

var ErrInsufficientPoints = errors.New("insufficient points")

// Point is a Cartesian position in micrometres.
type Point struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

func (p Point) Add(o Point) Point {
	return Point{X: p.X + o.X, Y: p.Y + o.Y, Z: p.Z + o.Z}
}

func (p Point) Sub(o Point) Point {
	return Point{X: p.X - o.X, Y: p.Y - o.Y, Z: p.Z - o.Z}
}

func Distance(a, b Point) float64 {
	d := b.Sub(a)
	return math.Sqrt(d.X*d.X + d.Y*d.Y + d.Z*d.Z)
}

type Kind uint8

const (
	PointTransit Kind = iota
	Linear
	CatmullRomSpline
)

func (k Kind) String() string {
	switch k {
	case PointTransit:
		return "point"
	case Linear:
		return "line"
	case CatmullRomSpline:
		return "catmull"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Required is the number of control points an evaluation of kind reads.
func Required(kind Kind) int {
	switch kind {
	case PointTransit:
		return 1
	case Linear:
		return 2
	case CatmullRomSpline:
		return 4
	}
	return math.MaxInt
}

func insufficient(kind Kind, got int) error {
	return fmt.Errorf("%w: %s needs %d, got %d", ErrInsufficientPoints, kind, Required(kind), got)
}

// Transit returns points[0] regardless of t.
func Transit(points []Point, t float64) (Point, error) {
	if len(points) < 1 {
		return Point{}, insufficient(PointTransit, len(points))
	}
	return points[0], nil
}

// Line interpolates between points[0] and points[1]. The endpoints are
// returned as stored for t of exactly 0 and 1 so chained segments meet
// without drift.
func Line(points []Point, t float64) (Point, error) {
	if len(points) < 2 {
		return Point{}, insufficient(Linear, len(points))
	}
	if t == 0.0 {
		return points[0], nil
	}
	if t == 1.0 {
		return points[1], nil
	}

	p0, p1 := points[0], points[1]
	return Point{
		X: p0.X + t*(p1.X-p0.X),
		Y: p0.Y + t*(p1.Y-p0.Y),
		Z: p0.Z + t*(p1.Z-p0.Z),
	}, nil
}

// CatmullRom evaluates the uniform Catmull-Rom segment between points[1]
// and points[2], using points[0] and points[3] as tangent controls.
//
// The basis is expanded in closed form rather than as a matrix product:
//
//	q(t) = 0.5 * ( 2*p1
//	             + (-p0 + p2) * t
//	             + (2*p0 - 5*p1 + 4*p2 - p3) * t^2
//	             + (-p0 + 3*p1 - 3*p2 + p3) * t^3 )
//
// t outside [0,1] extrapolates.
func CatmullRom(points []Point, t float64) (Point, error) {
	if len(points) < 4 {
		return Point{}, insufficient(CatmullRomSpline, len(points))
	}
	if t == 0.0 {
		return points[1], nil
	}
	if t == 1.0 {
		return points[2], nil
	}

	t2 := t * t
	t3 := t2 * t
	p0, p1, p2, p3 := points[0], points[1], points[2], points[3]
	return Point{
		X: catmull(p0.X, p1.X, p2.X, p3.X, t, t2, t3),
		Y: catmull(p0.Y, p1.Y, p2.Y, p3.Y, t, t2, t3),
		Z: catmull(p0.Z, p1.Z, p2.Z, p3.Z, t, t2, t3),
	}, nil
}

func catmull(p0, p1, p2, p3, t, t2, t3 float64) float64 {
	return 0.5 * ((2 * p1) +
		(-p0+p2)*t +
		(2*p0-5*p1+4*p2-p3)*t2 +
		(-p0+3*p1-3*p2+p3)*t3)
}

// Evaluate dispatches on kind.
func Evaluate(kind Kind, points []Point, t float64) (Point, error) {
	switch kind {
	case PointTransit:
		return Transit(points, t)
	case Linear:
		return Line(points, t)
	case CatmullRomSpline:
		return CatmullRom(points, t)
	}
	return Point{}, fmt.Errorf("unknown path kind %d", uint8(kind))
}

// End is the anchor an evaluation of kind reaches at t=1.
func End(kind Kind, points []Point) (Point, error) {
	return Evaluate(kind, points, 1.0)
}
