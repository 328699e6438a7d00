package models

import "fmt"

type TrendDirection string

const (
	TrendRising    TrendDirection = "rising"
	TrendStable    TrendDirection = "stable"
	TrendDeclining TrendDirection = "declining"
)

// TrendDeadBand is the week-over-week change, in percent, that still counts as stable.
const TrendDeadBand = 5.0

const noRiskPeriod = "No high-risk periods detected"

var riskPeriods = map[ReadingType]string{
	ReadingTypeFasting:    "Fasting readings are most often above range. Morning highs may point to overnight patterns.",
	ReadingTypeBeforeMeal: "Pre-meal readings are most often above range.",
	ReadingTypeAfterMeal:  "Post-meal readings are most often above range. Meal size and carbs may be a factor.",
	ReadingTypeBedtime:    "Bedtime readings are most often above range. Evening snacks may be a factor.",
	ReadingTypeRandom:     "Readings taken at random times are most often above range.",
	ReadingTypeOther:      "Readings marked as other are most often above range.",
}

var trendRecommendations = map[TrendDirection]string{
	TrendRising:    "Your average glucose is higher than last week. Review recent meals, activity and medication timing.",
	TrendDeclining: "Your average glucose is lower than last week. Keep up what is working and watch for lows.",
	TrendStable:    "Your glucose is steady compared to last week. Keep following your current routine.",
}

type TrendResult struct {
	PreviousAverage  *float64       `json:"previousAverage"`
	PercentageChange *float64       `json:"percentageChange"`
	Direction        TrendDirection `json:"direction"`
	RiskPeriod       string         `json:"riskPeriod"`
	Recommendation   string         `json:"recommendation"`
	CurrentAverage   float64        `json:"currentAverage"`
	TotalReadings    int            `json:"totalReadings"`
}

type TrendReport struct {
	Trend   *TrendResult `json:"trend"`
	HasData bool         `json:"hasData"`
}

// AnalyzeTrend compares this week's readings with last week's.
// It returns false when the current week has no readings.
func AnalyzeTrend(current []Reading, previous []Reading) (TrendResult, bool) {
	if len(current) == 0 {
		return TrendResult{}, false
	}

	currentAvg := meanValue(current)
	result := TrendResult{
		Direction:      TrendStable,
		CurrentAverage: round1(currentAvg),
		TotalReadings:  len(current),
		RiskPeriod:     riskPeriod(current),
	}

	if len(previous) > 0 {
		previousAvg := meanValue(previous)
		change := (currentAvg - previousAvg) * 100 / previousAvg
		switch {
		case change > TrendDeadBand:
			result.Direction = TrendRising
		case change < -TrendDeadBand:
			result.Direction = TrendDeclining
		}
		prev := round1(previousAvg)
		pct := round1(change)
		result.PreviousAverage = &prev
		result.PercentageChange = &pct
	}

	result.Recommendation = trendRecommendations[result.Direction]
	return result, true
}

// riskPeriod finds the reading type with the most high readings. Ties go to
// the type seen first, in the order readings were passed.
func riskPeriod(readings []Reading) string {
	counts := make(map[ReadingType]int)
	var seen []ReadingType
	for _, r := range readings {
		if r.Value <= HighAlertMgdl {
			continue
		}
		t := r.Type
		if t == "" {
			t = ReadingTypeRandom
		}
		if _, ok := counts[t]; !ok {
			seen = append(seen, t)
		}
		counts[t]++
	}
	if len(seen) == 0 {
		return noRiskPeriod
	}

	top := seen[0]
	for _, t := range seen[1:] {
		if counts[t] > counts[top] {
			top = t
		}
	}
	if desc, ok := riskPeriods[top]; ok {
		return desc
	}
	return fmt.Sprintf("Readings of type %s are most often above range.", top)
}

func meanValue(readings []Reading) float64 {
	if len(readings) == 0 {
		return 0
	}
	var sum float64
	for _, r := range readings {
		sum += r.Value
	}
	return sum / float64(len(readings))
}
