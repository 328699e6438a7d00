package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReading_Validate(t *testing.T) {
	valid := Reading{UserID: "u1", Value: 120, Type: ReadingTypeFasting, RecordedAt: time.Now()}
	assert.NoError(t, valid.Validate())

	untyped := valid
	untyped.Type = ""
	assert.NoError(t, untyped.Validate())

	tests := []struct {
		name   string
		modify func(r *Reading)
	}{
		{name: "no user", modify: func(r *Reading) { r.UserID = "" }},
		{name: "too low", modify: func(r *Reading) { r.Value = 19 }},
		{name: "too high", modify: func(r *Reading) { r.Value = 601 }},
		{name: "bad type", modify: func(r *Reading) { r.Type = "lunchtime" }},
		{name: "no time", modify: func(r *Reading) { r.RecordedAt = time.Time{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.modify(&r)
			assert.ErrorIs(t, r.Validate(), ErrInvalidReading)
		})
	}
}

func TestSeriesQuery_Contains(t *testing.T) {
	now := time.Date(2024, 11, 28, 12, 0, 0, 0, time.UTC)
	q := SeriesQuery{Since: now.Add(-time.Hour), Before: now}

	assert.True(t, q.Contains(now.Add(-time.Hour)))
	assert.True(t, q.Contains(now.Add(-time.Minute)))
	assert.False(t, q.Contains(now))
	assert.False(t, q.Contains(now.Add(-2*time.Hour)))
	assert.True(t, SeriesQuery{}.Contains(now))
}

func TestEvent_Validate(t *testing.T) {
	now := time.Now()
	carbs := 40.0
	negative := -1.0

	assert.NoError(t, MealEvent{UserID: "u1", MealType: "lunch", CarbsEstimate: &carbs, Time: now}.Validate())
	assert.ErrorIs(t, MealEvent{UserID: "u1", Time: now}.Validate(), ErrInvalidEvent)
	assert.ErrorIs(t, MealEvent{UserID: "u1", MealType: "lunch", CarbsEstimate: &negative, Time: now}.Validate(), ErrInvalidEvent)
	assert.ErrorIs(t, MealEvent{MealType: "lunch", Time: now}.Validate(), ErrInvalidEvent)

	assert.NoError(t, MedicationDose{UserID: "u1", MedicationType: "metformin", Dosage: 500, DoseUnit: "mg", TakenAt: now}.Validate())
	assert.ErrorIs(t, MedicationDose{UserID: "u1", MedicationType: "metformin", TakenAt: now}.Validate(), ErrInvalidEvent)
	assert.ErrorIs(t, MedicationDose{UserID: "u1", Dosage: 1, TakenAt: now}.Validate(), ErrInvalidEvent)
}
