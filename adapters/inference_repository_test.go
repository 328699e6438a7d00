package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/adamlounds/glucoscope/models"
	inferencestore "github.com/adamlounds/glucoscope/stores/inference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockInferenceStore struct {
	predictFn func(ctx context.Context, req inferencestore.Request) (*inferencestore.Response, error)
}

func (m *mockInferenceStore) Predict(ctx context.Context, req inferencestore.Request) (*inferencestore.Response, error) {
	return m.predictFn(ctx, req)
}

func TestInferenceRepository_Predict(t *testing.T) {
	predicted, confidence := 171.0, 0.7
	diabetesType := "type1"
	store := &mockInferenceStore{predictFn: func(_ context.Context, req inferencestore.Request) (*inferencestore.Response, error) {
		assert.Equal(t, 150.0, req.CurrentGlucose)
		assert.Equal(t, "type1", *req.DiabetesType)
		assert.Len(t, req.Readings, 2)
		return &inferencestore.Response{
			PredictedGlucose: &predicted,
			Confidence:       &confidence,
			Direction:        "rising",
			DirectionArrow:   "↑",
			ModelUsed:        "gbm",
			Factors:          []string{"carbs"},
		}, nil
	}}
	repo := NewInferenceRepository(store)

	p, err := repo.Predict(contextWithSilentLogger(), &models.FeatureBundle{
		Profile:        models.HealthProfile{DiabetesType: &diabetesType},
		Readings:       []models.FeatureReading{{Value: 140}, {Value: 150}},
		CurrentGlucose: 150,
	})

	require.NoError(t, err)
	assert.Equal(t, 171.0, p.PredictedGlucose)
	assert.Equal(t, 0.7, p.Confidence)
	assert.Equal(t, models.DirectionRising, p.Direction)
	assert.Equal(t, "gbm", p.ModelUsed)
	assert.Equal(t, []string{"carbs"}, p.Factors)
}

func TestInferenceRepository_Errors(t *testing.T) {
	_, err := NewInferenceRepository(nil).Predict(contextWithSilentLogger(), &models.FeatureBundle{})
	assert.ErrorIs(t, err, ErrInferenceUnconfigured)

	failing := &mockInferenceStore{predictFn: func(context.Context, inferencestore.Request) (*inferencestore.Response, error) {
		return nil, errors.New("503")
	}}
	_, err = NewInferenceRepository(failing).Predict(contextWithSilentLogger(), &models.FeatureBundle{})
	assert.ErrorContains(t, err, "503")
}
