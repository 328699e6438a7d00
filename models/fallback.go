package models

import "math"

const (
	FallbackConfidence = 0.45
	MinPredictedMgdl   = 40.0
	MaxPredictedMgdl   = 400.0
	LowAlertMgdl       = 70.0
	HighAlertMgdl      = 180.0

	fallbackFactor         = "Statistical extrapolation (ML service unavailable)"
	fallbackRecommendation = "Limited data available, this forecast is based on your recent trend only. Keep logging readings for more accurate predictions."
	lowRiskAlert           = "Glucose may drop below 70 mg/dL soon. Consider a snack and check again shortly."
	highRiskAlert          = "Glucose may rise above 180 mg/dL soon. Stay hydrated and follow your care plan."
)

// FallbackPredict extrapolates the next value from oldest-first readings when
// the forecast model cannot be used.
//
// The horizon is half of one average sampling step, not 30 wall-clock minutes:
// sparse or dense readings stretch or shrink the real look-ahead.
func FallbackPredict(values []float64, classifier DirectionClassifier) Prediction {
	p := Prediction{
		Timeframe:      ForecastTimeframeLabel,
		Recommendation: fallbackRecommendation,
		ModelUsed:      ModelFallback,
		Factors:        []string{fallbackFactor},
		Confidence:     FallbackConfidence,
	}
	n := len(values)
	if n == 0 {
		info := classifier.Classify(0)
		p.Direction, p.DirectionArrow, p.DirectionLabel = info.Direction, info.Arrow, info.Label
		return p
	}

	current := values[n-1]
	predicted := current
	if n >= 2 {
		slope := (values[n-1] - values[0]) / math.Max(float64(n-1), 1)
		predicted = current + slope*0.5
	}
	predicted = math.Min(math.Max(predicted, MinPredictedMgdl), MaxPredictedMgdl)
	p.PredictedGlucose = predicted

	switch {
	case predicted < LowAlertMgdl:
		p.RiskAlert = lowRiskAlert
	case predicted > HighAlertMgdl:
		p.RiskAlert = highRiskAlert
	}

	info := classifier.Classify(predicted - current)
	p.Direction, p.DirectionArrow, p.DirectionLabel = info.Direction, info.Arrow, info.Label
	return p
}
