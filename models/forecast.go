package models

import (
	"context"
	"time"
)

// TriggerEvent is why a forecast was requested. Anything other than
// TriggerAuto is an explicit log event and bypasses the forecast cache.
type TriggerEvent string

const (
	TriggerAuto             TriggerEvent = "auto"
	TriggerReadingLogged    TriggerEvent = "reading_logged"
	TriggerMealLogged       TriggerEvent = "meal_logged"
	TriggerMedicationLogged TriggerEvent = "medication_logged"
	TriggerManual           TriggerEvent = "manual"
)

const (
	ForecastTimeframeLabel = "30 minutes"
	ModelFallback          = "fallback"
	// MaxForecastReadings is how many recent readings feed a forecast.
	MaxForecastReadings   = 20
	DefaultForecastMaxAge = 30 * time.Minute
	DefaultModelTimeout   = 8 * time.Second
)

func ParseTriggerEvent(s string) TriggerEvent {
	if s == "" {
		return TriggerAuto
	}
	return TriggerEvent(s)
}

func (t TriggerEvent) IsAuto() bool {
	return t == TriggerAuto
}

// ForecastRecord is one entry of a user's append-only forecast log.
// The newest record for a user is the active forecast.
type ForecastRecord struct {
	CreatedTime                time.Time    `json:"createdAt"`
	ID                         string       `json:"id"`
	UserID                     string       `json:"userId"`
	Direction                  Direction    `json:"direction"`
	DirectionArrow             string       `json:"directionArrow"`
	DirectionLabel             string       `json:"directionLabel"`
	TimeframeLabel             string       `json:"timeframe"`
	Recommendation             string       `json:"recommendation"`
	RiskAlert                  string       `json:"riskAlert,omitempty"`
	ModelUsed                  string       `json:"modelUsed"`
	TriggerEvent               TriggerEvent `json:"triggerEvent"`
	ContributingFactors        []string     `json:"contributingFactors"`
	PredictedGlucose           float64      `json:"predictedGlucose"`
	Confidence                 float64      `json:"confidence"`
	CurrentGlucoseAtPrediction float64      `json:"currentGlucoseAtPrediction"`
}

// Prediction is the output of a forecast model, external or fallback.
type Prediction struct {
	Direction        Direction
	DirectionArrow   string
	DirectionLabel   string
	Timeframe        string
	Recommendation   string
	RiskAlert        string
	ModelUsed        string
	Factors          []string
	Suggestions      []string
	PredictedGlucose float64
	Confidence       float64
}

type ForecastResult struct {
	Prediction *ForecastPrediction `json:"prediction"`
	HasData    bool                `json:"hasData"`
}

type ForecastPrediction struct {
	PredictionTimestamp time.Time `json:"predictionTimestamp"`
	Suggestions         []string  `json:"suggestions,omitempty"`
	ForecastRecord
	Cached    bool `json:"cached"`
	Persisted bool `json:"persisted"`
}

type ForecastRepository interface {
	FetchLatestForecast(ctx context.Context, userID string) (*ForecastRecord, error)
	// InsertForecast appends a record and returns it as stored, with its ID set.
	InsertForecast(ctx context.Context, record ForecastRecord) (*ForecastRecord, error)
}

// ForecastModel is the external inference service.
type ForecastModel interface {
	Predict(ctx context.Context, features *FeatureBundle) (*Prediction, error)
}

// ForecastNotifier is told about every forecast that was stored.
type ForecastNotifier interface {
	ForecastCreated(ctx context.Context, record ForecastRecord)
}
