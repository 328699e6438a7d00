package models

import (
	"context"
	"errors"
	"fmt"
	slogctx "github.com/veqryn/slog-context"
	"log/slog"
	"time"
)

// ForecastService produces near-term glucose forecasts for one user at a time.
type ForecastService struct {
	Readings   ReadingRepository
	Forecasts  ForecastRepository
	Features   FeatureBuilder
	Model      ForecastModel    // optional, fallback predictor is used without it
	Notifier   ForecastNotifier // optional
	Classifier DirectionClassifier
	MaxAge     time.Duration
	// ModelTimeout bounds a single call to Model. It is never retried.
	ModelTimeout time.Duration
	Now          func() time.Time
}

func (s *ForecastService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *ForecastService) modelTimeout() time.Duration {
	if s.ModelTimeout <= 0 {
		return DefaultModelTimeout
	}
	return s.ModelTimeout
}

// Forecast returns the active forecast for userID, recomputing it when the
// cache policy says it is stale. Only a failure to read readings or features
// is returned as an error.
func (s *ForecastService) Forecast(ctx context.Context, userID string, trigger TriggerEvent) (*ForecastResult, error) {
	log := slogctx.FromCtx(ctx)
	now := s.now()

	readings, err := s.Readings.FetchReadings(ctx, userID, SeriesQuery{Limit: MaxForecastReadings, Order: NewestFirst})
	if err != nil {
		return nil, fmt.Errorf("forecast cannot fetch readings: %w", err)
	}
	if len(readings) == 0 {
		log.Debug("forecast: no readings", slog.String("userID", userID))
		return &ForecastResult{HasData: false}, nil
	}

	lastForecast, err := s.Forecasts.FetchLatestForecast(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Warn("forecast cannot fetch latest forecast, recomputing", slog.Any("error", err))
		}
		lastForecast = nil
	}

	state := EvaluateCachePolicy(trigger, lastForecast, readings[0].RecordedAt, now, s.MaxAge)
	log.Debug("forecast cache policy",
		slog.String("userID", userID),
		slog.String("trigger", string(trigger)),
		slog.String("state", state.String()),
	)
	if state == CacheFresh {
		return &ForecastResult{
			HasData: true,
			Prediction: &ForecastPrediction{
				ForecastRecord:      *lastForecast,
				Cached:              true,
				Persisted:           true,
				PredictionTimestamp: now,
			},
		}, nil
	}

	features, err := s.Features.Build(ctx, userID, readings, now)
	if err != nil {
		return nil, fmt.Errorf("forecast cannot build features: %w", err)
	}

	p := s.predict(ctx, features)
	if p.Direction == "" {
		info := s.Classifier.Classify(p.PredictedGlucose - features.CurrentGlucose)
		p.Direction, p.DirectionArrow, p.DirectionLabel = info.Direction, info.Arrow, info.Label
	}
	if p.Timeframe == "" {
		p.Timeframe = ForecastTimeframeLabel
	}
	if p.Factors == nil {
		p.Factors = []string{}
	}

	record := ForecastRecord{
		CreatedTime:                now,
		UserID:                     userID,
		Direction:                  p.Direction,
		DirectionArrow:             p.DirectionArrow,
		DirectionLabel:             p.DirectionLabel,
		TimeframeLabel:             p.Timeframe,
		Recommendation:             p.Recommendation,
		RiskAlert:                  p.RiskAlert,
		ModelUsed:                  p.ModelUsed,
		TriggerEvent:               trigger,
		ContributingFactors:        p.Factors,
		PredictedGlucose:           p.PredictedGlucose,
		Confidence:                 p.Confidence,
		CurrentGlucoseAtPrediction: features.CurrentGlucose,
	}

	prediction := &ForecastPrediction{
		ForecastRecord:      record,
		Suggestions:         p.Suggestions,
		PredictionTimestamp: now,
	}
	if stored := s.persist(ctx, record); stored != nil {
		prediction.ForecastRecord = *stored
		prediction.Persisted = true
	}

	return &ForecastResult{HasData: true, Prediction: prediction}, nil
}

// predict asks the model once, falling back to extrapolation on any failure.
func (s *ForecastService) predict(ctx context.Context, features *FeatureBundle) Prediction {
	log := slogctx.FromCtx(ctx)
	if s.Model == nil {
		return FallbackPredict(features.Values(), s.Classifier)
	}

	modelCtx, cancel := context.WithTimeout(ctx, s.modelTimeout())
	defer cancel()

	t1 := time.Now()
	p, err := s.Model.Predict(modelCtx, features)
	if err != nil || p == nil {
		log.Warn("forecast model failed, using fallback",
			slog.Any("error", err),
			slog.Int64("duration_ms", time.Since(t1).Milliseconds()),
		)
		return FallbackPredict(features.Values(), s.Classifier)
	}
	log.Debug("forecast model ok",
		slog.String("modelUsed", p.ModelUsed),
		slog.Int64("duration_ms", time.Since(t1).Milliseconds()),
	)
	return *p
}

// persist stores the record best-effort. A failure is logged and nil returned;
// the forecast is still served.
func (s *ForecastService) persist(ctx context.Context, record ForecastRecord) *ForecastRecord {
	log := slogctx.FromCtx(ctx)
	writeCtx := context.WithoutCancel(ctx)

	stored, err := s.Forecasts.InsertForecast(writeCtx, record)
	if err != nil {
		log.Warn("forecast cannot be stored", slog.String("userID", record.UserID), slog.Any("error", err))
		return nil
	}
	if s.Notifier != nil {
		s.Notifier.ForecastCreated(writeCtx, *stored)
	}
	return stored
}
