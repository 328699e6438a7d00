package repository

import (
	"context"
	"errors"
	"github.com/adamlounds/glucoscope/models"
	inferencestore "github.com/adamlounds/glucoscope/stores/inference"
)

var ErrInferenceUnconfigured = errors.New("inference service is not configured")

type InferenceStore interface {
	Predict(ctx context.Context, req inferencestore.Request) (*inferencestore.Response, error)
}

// InferenceRepository is a models.ForecastModel backed by the external
// inference service.
type InferenceRepository struct {
	store InferenceStore
}

// NewInferenceRepository accepts a nil store, in which case every prediction
// fails with ErrInferenceUnconfigured.
func NewInferenceRepository(store InferenceStore) *InferenceRepository {
	return &InferenceRepository{store: store}
}

func (r *InferenceRepository) Predict(ctx context.Context, features *models.FeatureBundle) (*models.Prediction, error) {
	if r.store == nil {
		return nil, ErrInferenceUnconfigured
	}

	req := inferencestore.Request{
		LastMealHoursAgo:  features.LastMealHoursAgo,
		DiabetesType:      features.Profile.DiabetesType,
		OnMedication:      features.Profile.OnMedication,
		ActivityLevel:     features.Profile.ActivityLevel,
		Readings:          features.Readings,
		RecentMedications: features.RecentMedications,
		RecentMeals:       features.RecentMeals,
		CurrentGlucose:    features.CurrentGlucose,
	}
	res, err := r.store.Predict(ctx, req)
	if err != nil {
		return nil, err
	}

	return &models.Prediction{
		Direction:        models.Direction(res.Direction),
		DirectionArrow:   res.DirectionArrow,
		DirectionLabel:   res.DirectionLabel,
		Timeframe:        res.Timeframe,
		Recommendation:   res.Recommendation,
		RiskAlert:        res.RiskAlert,
		ModelUsed:        res.ModelUsed,
		Factors:          res.Factors,
		Suggestions:      res.Suggestions,
		PredictedGlucose: *res.PredictedGlucose,
		Confidence:       *res.Confidence,
	}, nil
}
