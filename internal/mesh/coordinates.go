package mesh

import "math"

// Coordinates place a station on the simulated air, in metres from an
// arbitrary origin in the arena.
type Coordinates struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

func (c Coordinates) DistanceTo(other Coordinates) float64 {
	return math.Hypot(c.X-other.X, c.Y-other.Y)
}

func CreateCoordinates(x, y float64) Coordinates {
	return Coordinates{X: x, Y: y}
}
