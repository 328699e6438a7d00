package models

type Direction string

const (
	DirectionRising   Direction = "rising"
	DirectionStable   Direction = "stable"
	DirectionDropping Direction = "dropping"
)

// DefaultDirectionThreshold is the change in mg/dL over the forecast horizon
// beyond which glucose is considered to be moving.
const DefaultDirectionThreshold = 8.0

type DirectionInfo struct {
	Direction Direction
	Arrow     string
	Label     string
}

var directions = map[Direction]DirectionInfo{
	DirectionRising:   {Direction: DirectionRising, Arrow: "↑", Label: "Rising"},
	DirectionStable:   {Direction: DirectionStable, Arrow: "→", Label: "Stable"},
	DirectionDropping: {Direction: DirectionDropping, Arrow: "↓", Label: "Dropping"},
}

// DirectionClassifier maps a predicted change to a direction.
// The zero value uses DefaultDirectionThreshold.
type DirectionClassifier struct {
	Threshold float64
}

func (c DirectionClassifier) threshold() float64 {
	if c.Threshold <= 0 {
		return DefaultDirectionThreshold
	}
	return c.Threshold
}

// Classify takes delta = predicted - current. Both bounds are exclusive.
func (c DirectionClassifier) Classify(delta float64) DirectionInfo {
	t := c.threshold()
	switch {
	case delta > t:
		return directions[DirectionRising]
	case delta < -t:
		return directions[DirectionDropping]
	default:
		return directions[DirectionStable]
	}
}
