package models

type HbA1cCategory string

const (
	HbA1cNormal      HbA1cCategory = "normal"
	HbA1cPrediabetic HbA1cCategory = "prediabetic"
	HbA1cDiabetic    HbA1cCategory = "diabetic"
)

const (
	HbA1cMinReadings = 14
	// ADAG: eAG(mg/dL) = 28.7 * A1c - 46.7
	adagSlope     = 28.7
	adagIntercept = 46.7
)

type HbA1cEstimate struct {
	Category HbA1cCategory `json:"category"`
	Value    float64       `json:"hba1c"`
}

type HbA1cReport struct {
	Estimate          *HbA1cEstimate `json:"estimate"`
	HasData           bool           `json:"hasData"`
	SufficientData    bool           `json:"sufficientData"`
	ReadingsAvailable int            `json:"readingsAvailable"`
	ReadingsRequired  int            `json:"readingsRequired"`
}

// EstimateHbA1c converts average glucose to an estimated HbA1c (%), rounded to
// one decimal. It returns false below HbA1cMinReadings values.
func EstimateHbA1c(values []float64) (HbA1cEstimate, bool) {
	if len(values) < HbA1cMinReadings {
		return HbA1cEstimate{}, false
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	avg := sum / float64(len(values))
	value := round1((avg + adagIntercept) / adagSlope)
	return HbA1cEstimate{Value: value, Category: hba1cCategory(value)}, true
}

func hba1cCategory(v float64) HbA1cCategory {
	switch {
	case v < 5.7:
		return HbA1cNormal
	case v < 6.5:
		return HbA1cPrediabetic
	default:
		return HbA1cDiabetic
	}
}
