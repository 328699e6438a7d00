package models

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("models: no resource could be found")
var ErrInvalidReading = errors.New("models: invalid reading")
var ErrInvalidEvent = errors.New("models: invalid event")

type ReadingType string

const (
	ReadingTypeFasting    ReadingType = "fasting"
	ReadingTypeBeforeMeal ReadingType = "before_meal"
	ReadingTypeAfterMeal  ReadingType = "after_meal"
	ReadingTypeBedtime    ReadingType = "bedtime"
	ReadingTypeRandom     ReadingType = "random"
	ReadingTypeOther      ReadingType = "other"
)

func (t ReadingType) IsValid() bool {
	switch t {
	case ReadingTypeFasting, ReadingTypeBeforeMeal, ReadingTypeAfterMeal,
		ReadingTypeBedtime, ReadingTypeRandom, ReadingTypeOther:
		return true
	}
	return false
}

// accepted glucose range for a logged reading, mg/dL
const (
	MinReadingMgdl = 20
	MaxReadingMgdl = 600
)

// Reading is a single user-logged glucose measurement.
type Reading struct {
	RecordedAt      time.Time
	CreatedTime     time.Time
	MedicationTaken *bool
	Oid             string
	UserID          string
	Unit            string
	Type            ReadingType // may be empty for imported data
	MealContext     string
	ActivityContext string
	Value           float64 // mg/dL
}

// Validate checks a reading before it is stored.
func (r Reading) Validate() error {
	if r.UserID == "" {
		return fmt.Errorf("%w: missing user", ErrInvalidReading)
	}
	if r.Value < MinReadingMgdl || r.Value > MaxReadingMgdl {
		return fmt.Errorf("%w: value %.1f outside %d-%d", ErrInvalidReading, r.Value, MinReadingMgdl, MaxReadingMgdl)
	}
	if r.Type != "" && !r.Type.IsValid() {
		return fmt.Errorf("%w: unknown reading type %q", ErrInvalidReading, r.Type)
	}
	if r.RecordedAt.IsZero() {
		return fmt.Errorf("%w: missing recorded time", ErrInvalidReading)
	}
	return nil
}

type MealEvent struct {
	Time          time.Time
	CarbsEstimate *float64
	Oid           string
	UserID        string
	MealType      string
}

func (m MealEvent) Validate() error {
	if m.UserID == "" {
		return fmt.Errorf("%w: missing user", ErrInvalidEvent)
	}
	if m.MealType == "" {
		return fmt.Errorf("%w: missing meal type", ErrInvalidEvent)
	}
	if m.CarbsEstimate != nil && *m.CarbsEstimate < 0 {
		return fmt.Errorf("%w: negative carbs", ErrInvalidEvent)
	}
	if m.Time.IsZero() {
		return fmt.Errorf("%w: missing meal time", ErrInvalidEvent)
	}
	return nil
}

type MedicationDose struct {
	TakenAt        time.Time
	Oid            string
	UserID         string
	MedicationType string
	DoseUnit       string
	Dosage         float64
}

func (d MedicationDose) Validate() error {
	if d.UserID == "" {
		return fmt.Errorf("%w: missing user", ErrInvalidEvent)
	}
	if d.MedicationType == "" {
		return fmt.Errorf("%w: missing medication type", ErrInvalidEvent)
	}
	if d.Dosage <= 0 {
		return fmt.Errorf("%w: dosage must be positive", ErrInvalidEvent)
	}
	if d.TakenAt.IsZero() {
		return fmt.Errorf("%w: missing time taken", ErrInvalidEvent)
	}
	return nil
}

// HealthProfile holds optional per-user context for forecasts.
type HealthProfile struct {
	ActivityLevel *string
	OnMedication  *bool
	DiabetesType  *string
}

type SortOrder int

const (
	NewestFirst SortOrder = iota
	OldestFirst
)

// SeriesQuery selects a time window of a user's series.
// Since is inclusive, Before is exclusive; zero values leave that side unbounded.
// Limit <= 0 means no limit. The limit is applied after ordering.
type SeriesQuery struct {
	Since  time.Time
	Before time.Time
	Limit  int
	Order  SortOrder
}

func (q SeriesQuery) Contains(t time.Time) bool {
	if !q.Since.IsZero() && t.Before(q.Since) {
		return false
	}
	if !q.Before.IsZero() && !t.Before(q.Before) {
		return false
	}
	return true
}

// ReadingRepository returns an empty slice, not an error, when a user has no readings.
type ReadingRepository interface {
	FetchReadings(ctx context.Context, userID string, q SeriesQuery) ([]Reading, error)
}

type ReadingWriter interface {
	CreateReadings(ctx context.Context, readings []Reading) ([]Reading, error)
}

type EventRepository interface {
	FetchMeals(ctx context.Context, userID string, q SeriesQuery) ([]MealEvent, error)
	FetchMedicationDoses(ctx context.Context, userID string, q SeriesQuery) ([]MedicationDose, error)
}

type ProfileRepository interface {
	FetchProfile(ctx context.Context, userID string) (*HealthProfile, error)
}

type EventWriter interface {
	CreateMeals(ctx context.Context, meals []MealEvent) ([]MealEvent, error)
	CreateMedicationDoses(ctx context.Context, doses []MedicationDose) ([]MedicationDose, error)
}
