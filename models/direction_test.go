package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDirectionClassifier_Classify(t *testing.T) {
	tests := []struct {
		delta    float64
		expected Direction
		arrow    string
	}{
		{delta: 9, expected: DirectionRising, arrow: "↑"},
		{delta: -9, expected: DirectionDropping, arrow: "↓"},
		{delta: 0, expected: DirectionStable, arrow: "→"},
		{delta: 8, expected: DirectionStable, arrow: "→"},
		{delta: -8, expected: DirectionStable, arrow: "→"},
		{delta: 8.01, expected: DirectionRising, arrow: "↑"},
		{delta: -8.01, expected: DirectionDropping, arrow: "↓"},
	}
	c := DirectionClassifier{}
	for _, tt := range tests {
		info := c.Classify(tt.delta)
		assert.Equal(t, tt.expected, info.Direction, "delta %v", tt.delta)
		assert.Equal(t, tt.arrow, info.Arrow, "delta %v", tt.delta)
		assert.NotEmpty(t, info.Label)
	}
}

func TestDirectionClassifier_CustomThreshold(t *testing.T) {
	c := DirectionClassifier{Threshold: 15}
	assert.Equal(t, DirectionStable, c.Classify(9).Direction)
	assert.Equal(t, DirectionRising, c.Classify(15.5).Direction)
	assert.Equal(t, DirectionDropping, c.Classify(-20).Direction)
}
