// internal/humanoid/vector.go
package humanoid

import (
	"image"
	"math"
)

// Vector2D represents a point or vector in 2D space.
type Vector2D struct {
	X, Y float64
}

func vec(p image.Point) Vector2D {
	return Vector2D{X: float64(p.X), Y: float64(p.Y)}
}

// Add returns the vector sum of v and other.
func (v Vector2D) Add(other Vector2D) Vector2D {
	return Vector2D{X: v.X + other.X, Y: v.Y + other.Y}
}

// Sub returns the vector difference of v and other.
func (v Vector2D) Sub(other Vector2D) Vector2D {
	return Vector2D{X: v.X - other.X, Y: v.Y - other.Y}
}

// Mul returns the vector v scaled by the scalar factor.
func (v Vector2D) Mul(scalar float64) Vector2D {
	return Vector2D{X: v.X * scalar, Y: v.Y * scalar}
}

// Mag calculates the magnitude (length) of the vector.
func (v Vector2D) Mag() float64 {
	return math.Hypot(v.X, v.Y)
}

// Perp returns the vector rotated by 90 degrees, normalised.
func (v Vector2D) Perp() Vector2D {
	mag := v.Mag()
	if mag < 1e-9 {
		return Vector2D{}
	}
	return Vector2D{X: -v.Y / mag, Y: v.X / mag}
}

// Dist calculates the Euclidean distance between v and other (treated as points).
func (v Vector2D) Dist(other Vector2D) float64 {
	return math.Hypot(v.X-other.X, v.Y-other.Y)
}

// Point rounds to integer screen coordinates.
func (v Vector2D) Point() image.Point {
	return image.Point{X: int(math.Round(v.X)), Y: int(math.Round(v.Y))}
}
