package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFallbackPredict_SinglePoint(t *testing.T) {
	p := FallbackPredict([]float64{123}, DirectionClassifier{})

	assert.Equal(t, 123.0, p.PredictedGlucose)
	assert.Equal(t, DirectionStable, p.Direction)
	assert.Equal(t, "→", p.DirectionArrow)
	assert.Equal(t, FallbackConfidence, p.Confidence)
	assert.Equal(t, ModelFallback, p.ModelUsed)
	assert.Equal(t, []string{"Statistical extrapolation (ML service unavailable)"}, p.Factors)
	assert.Empty(t, p.RiskAlert)
	assert.NotEmpty(t, p.Recommendation)
}

// The horizon is half an average sampling step, whatever the real spacing of
// the readings: [120, 130, 145] predicts 145 + (25/2)*0.5.
func TestFallbackPredict_HalfStepExtrapolation(t *testing.T) {
	p := FallbackPredict([]float64{120, 130, 145}, DirectionClassifier{})

	assert.Equal(t, 151.25, p.PredictedGlucose)
	assert.Equal(t, DirectionStable, p.Direction) // delta 6.25
	assert.Equal(t, 0.45, p.Confidence)
	assert.Equal(t, "fallback", p.ModelUsed)
}

func TestFallbackPredict_Clamping(t *testing.T) {
	tests := []struct {
		name     string
		values   []float64
		expected float64
	}{
		{name: "steep rise", values: []float64{100, 600}, expected: 400},
		{name: "steep drop", values: []float64{400, 20}, expected: 40},
		{name: "rise from top of range", values: []float64{399, 400}, expected: 400},
		{name: "single low value", values: []float64{20}, expected: 40},
		{name: "single high value", values: []float64{600}, expected: 400},
		{name: "in range", values: []float64{100, 110}, expected: 115},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := FallbackPredict(tt.values, DirectionClassifier{})
			assert.Equal(t, tt.expected, p.PredictedGlucose)
			assert.GreaterOrEqual(t, p.PredictedGlucose, MinPredictedMgdl)
			assert.LessOrEqual(t, p.PredictedGlucose, MaxPredictedMgdl)
		})
	}
}

func TestFallbackPredict_RiskAlerts(t *testing.T) {
	low := FallbackPredict([]float64{80, 60}, DirectionClassifier{})
	assert.Equal(t, 50.0, low.PredictedGlucose)
	assert.Equal(t, lowRiskAlert, low.RiskAlert)
	assert.Equal(t, DirectionDropping, low.Direction)

	high := FallbackPredict([]float64{170, 200}, DirectionClassifier{})
	assert.Equal(t, 215.0, high.PredictedGlucose)
	assert.Equal(t, highRiskAlert, high.RiskAlert)
	assert.Equal(t, DirectionRising, high.Direction)

	edge := FallbackPredict([]float64{70}, DirectionClassifier{})
	assert.Empty(t, edge.RiskAlert, "70 is not below 70")
}

func TestFallbackPredict_NoValues(t *testing.T) {
	p := FallbackPredict(nil, DirectionClassifier{})
	assert.Equal(t, ModelFallback, p.ModelUsed)
	assert.Equal(t, DirectionStable, p.Direction)
}
