package position

import "math"

type Shape string

const (
	ShapeRect   Shape = "rect"
	ShapeCircle Shape = "circle"
)

type Kind string

const (
	KindRequired  Kind = "required"
	KindForbidden Kind = "forbidden"
)

// Zone is a single geometric restriction on the print head position.
// Rectangles use X1,Y1,X2,Y2 as opposite corners in any order, circles use
// CenterX,CenterY,Radius.
type Zone struct {
	Shape Shape
	Kind  Kind

	X1, Y1, X2, Y2 float64

	CenterX, CenterY, Radius float64
}

func Rect(kind Kind, x1, y1, x2, y2 float64) Zone {
	return Zone{Shape: ShapeRect, Kind: kind, X1: x1, Y1: y1, X2: x2, Y2: y2}
}

func Circle(kind Kind, centerX, centerY, radius float64) Zone {
	return Zone{Shape: ShapeCircle, Kind: kind, CenterX: centerX, CenterY: centerY, Radius: radius}
}

// Contains reports whether (x, y) lies strictly inside the zone.
// Points on an edge, corner or on the circle itself are outside.
func (z Zone) Contains(x, y float64) bool {
	switch z.Shape {
	case ShapeRect:
		xmin, xmax := math.Min(z.X1, z.X2), math.Max(z.X1, z.X2)
		ymin, ymax := math.Min(z.Y1, z.Y2), math.Max(z.Y1, z.Y2)
		return xmin < x && x < xmax && ymin < y && y < ymax
	case ShapeCircle:
		return math.Hypot(x-z.CenterX, y-z.CenterY) < z.Radius
	default:
		return false
	}
}
