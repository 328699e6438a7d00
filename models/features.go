package models

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	MedicationLookback = 6 * time.Hour
	MealLookback       = 4 * time.Hour
)

type FeatureReading struct {
	RecordedAt      time.Time   `json:"recordedAt"`
	MedicationTaken *bool       `json:"medicationTaken,omitempty"`
	Type            ReadingType `json:"readingType,omitempty"`
	MealContext     string      `json:"mealContext,omitempty"`
	ActivityContext string      `json:"activityContext,omitempty"`
	Value           float64     `json:"value"`
	HourOfDay       int         `json:"hourOfDay"`
	DayOfWeek       int         `json:"dayOfWeek"` // 0 = Sunday
}

type RecentMedication struct {
	MedicationType  string  `json:"medicationType"`
	DoseUnit        string  `json:"doseUnit"`
	Dosage          float64 `json:"dosage"`
	HoursSinceTaken float64 `json:"hoursSinceTaken"`
}

type RecentMeal struct {
	CarbsEstimate  *float64 `json:"carbsEstimate,omitempty"`
	MealType       string   `json:"mealType"`
	HoursSinceMeal float64  `json:"hoursSinceMeal"`
}

// FeatureBundle is the normalised input for a forecast model.
type FeatureBundle struct {
	LastMealHoursAgo  *float64
	Profile           HealthProfile
	Readings          []FeatureReading // oldest first
	RecentMedications []RecentMedication
	RecentMeals       []RecentMeal
	CurrentGlucose    float64
}

// Values returns the reading values, oldest first.
func (b *FeatureBundle) Values() []float64 {
	values := make([]float64, len(b.Readings))
	for i, r := range b.Readings {
		values[i] = r.Value
	}
	return values
}

type FeatureBuilder struct {
	EventRepository
	ProfileRepository
}

// Build assembles features from readings (newest first, as fetched) plus the
// meals, medication doses and profile of the user. Missing optional context is
// never an error; only repository failures are.
func (b FeatureBuilder) Build(ctx context.Context, userID string, readings []Reading, now time.Time) (*FeatureBundle, error) {
	bundle := &FeatureBundle{
		Readings:          make([]FeatureReading, 0, len(readings)),
		RecentMedications: []RecentMedication{},
		RecentMeals:       []RecentMeal{},
	}

	for i := len(readings) - 1; i >= 0; i-- {
		r := readings[i]
		bundle.Readings = append(bundle.Readings, FeatureReading{
			RecordedAt:      r.RecordedAt,
			MedicationTaken: r.MedicationTaken,
			Type:            r.Type,
			MealContext:     r.MealContext,
			ActivityContext: r.ActivityContext,
			Value:           r.Value,
			HourOfDay:       r.RecordedAt.Hour(),
			DayOfWeek:       int(r.RecordedAt.Weekday()),
		})
	}
	if len(readings) > 0 {
		bundle.CurrentGlucose = readings[0].Value
	}

	if b.ProfileRepository != nil {
		profile, err := b.FetchProfile(ctx, userID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("features cannot fetch profile: %w", err)
		}
		if profile != nil {
			bundle.Profile = *profile
		}
	}

	if b.EventRepository == nil {
		bundle.LastMealHoursAgo = lastMealFromReadings(readings, now)
		return bundle, nil
	}

	doses, err := b.FetchMedicationDoses(ctx, userID, SeriesQuery{Since: now.Add(-MedicationLookback)})
	if err != nil {
		return nil, fmt.Errorf("features cannot fetch medication doses: %w", err)
	}
	for _, d := range doses {
		bundle.RecentMedications = append(bundle.RecentMedications, RecentMedication{
			MedicationType:  d.MedicationType,
			DoseUnit:        d.DoseUnit,
			Dosage:          d.Dosage,
			HoursSinceTaken: hoursSince(now, d.TakenAt),
		})
	}

	meals, err := b.FetchMeals(ctx, userID, SeriesQuery{Since: now.Add(-MealLookback)})
	if err != nil {
		return nil, fmt.Errorf("features cannot fetch meals: %w", err)
	}
	for _, m := range meals {
		bundle.RecentMeals = append(bundle.RecentMeals, RecentMeal{
			CarbsEstimate:  m.CarbsEstimate,
			MealType:       m.MealType,
			HoursSinceMeal: hoursSince(now, m.Time),
		})
	}

	if len(meals) > 0 {
		// meals are newest first
		h := hoursSince(now, meals[0].Time)
		bundle.LastMealHoursAgo = &h
	} else {
		bundle.LastMealHoursAgo = lastMealFromReadings(readings, now)
	}

	return bundle, nil
}

// lastMealFromReadings looks for the newest reading that was taken around a meal.
func lastMealFromReadings(readings []Reading, now time.Time) *float64 {
	for _, r := range readings {
		if r.Type == ReadingTypeAfterMeal || r.MealContext != "" {
			h := hoursSince(now, r.RecordedAt)
			return &h
		}
	}
	return nil
}

func hoursSince(now time.Time, t time.Time) float64 {
	return round1(now.Sub(t).Hours())
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
