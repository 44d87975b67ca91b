package mcmcda

import (
	"math"
)

// Point is a 2-D position or displacement.
type Point struct {
	X float64
	Y float64
}

// NewPoint is shorthand for Point{X: x, Y: y}
func NewPoint(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Add returns p + other
func (p Point) Add(other Point) Point {
	return Point{X: p.X + other.X, Y: p.Y + other.Y}
}

// Sub returns p - other
func (p Point) Sub(other Point) Point {
	return Point{X: p.X - other.X, Y: p.Y - other.Y}
}

// Scale returns p multiplied by scalar s
func (p Point) Scale(s float64) Point {
	return Point{X: p.X * s, Y: p.Y * s}
}

// Norm returns euclidean length of p
func (p Point) Norm() float64 {
	return math.Hypot(p.X, p.Y)
}

// euclideanDistance is the distance a target travels between positions p1 and p2
func euclideanDistance(p1, p2 Point) float64 {
	return p2.Sub(p1).Norm()
}

// meanPoint returns centroid of given points. Zero point for empty input.
func meanPoint(points []Point) Point {
	if len(points) == 0 {
		return Point{}
	}
	sum := Point{}
	for _, pt := range points {
		sum = sum.Add(pt)
	}
	return sum.Scale(1.0 / float64(len(points)))
}
