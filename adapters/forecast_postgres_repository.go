package repository

import (
	"context"
	"errors"
	"fmt"
	"github.com/adamlounds/glucoscope/models"
	pgstore "github.com/adamlounds/glucoscope/stores/postgres"
	"github.com/jackc/pgx/v5"
	slogctx "github.com/veqryn/slog-context"
	"log/slog"
	"time"
)

const forecastSchema = `
CREATE TABLE IF NOT EXISTS forecast (
	id                            text PRIMARY KEY,
	user_id                       text NOT NULL,
	created_time                  timestamptz NOT NULL,
	predicted_glucose             double precision NOT NULL,
	confidence                    double precision NOT NULL,
	current_glucose_at_prediction double precision NOT NULL,
	direction                     text NOT NULL,
	direction_arrow               text NOT NULL,
	direction_label               text NOT NULL,
	timeframe                     text NOT NULL,
	recommendation                text NOT NULL,
	risk_alert                    text NOT NULL DEFAULT '',
	model_used                    text NOT NULL,
	trigger_event                 text NOT NULL,
	contributing_factors          text[] NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS forecast_user_created_idx ON forecast (user_id, created_time DESC, id DESC);
`

// pgQuerier is the part of *pgxpool.Pool the forecast log uses.
type pgQuerier interface {
	pgstore.Execer
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresForecastRepository keeps the forecast log in postgres. Rows are
// only ever inserted.
type PostgresForecastRepository struct {
	db  pgQuerier
	ids *forecastIDs
}

func NewPostgresForecastRepository(pg *pgstore.PostgresStore) *PostgresForecastRepository {
	return newPostgresForecastRepository(pg.DB)
}

func newPostgresForecastRepository(db pgQuerier) *PostgresForecastRepository {
	return &PostgresForecastRepository{db: db, ids: newForecastIDs()}
}

func (p PostgresForecastRepository) Migrate(ctx context.Context) error {
	return pgstore.EnsureSchema(ctx, p.db, "forecast", forecastSchema)
}

func (p PostgresForecastRepository) FetchLatestForecast(ctx context.Context, userID string) (*models.ForecastRecord, error) {
	row := p.db.QueryRow(ctx, `SELECT
	id, user_id, created_time, predicted_glucose, confidence, current_glucose_at_prediction,
	direction, direction_arrow, direction_label, timeframe, recommendation, risk_alert,
	model_used, trigger_event, contributing_factors
	FROM forecast
	WHERE user_id = $1
	ORDER BY created_time DESC, id DESC LIMIT 1`, userID)

	var f models.ForecastRecord
	var direction, trigger string
	err := row.Scan(&f.ID, &f.UserID, &f.CreatedTime, &f.PredictedGlucose, &f.Confidence, &f.CurrentGlucoseAtPrediction,
		&direction, &f.DirectionArrow, &f.DirectionLabel, &f.TimeframeLabel, &f.Recommendation, &f.RiskAlert,
		&f.ModelUsed, &trigger, &f.ContributingFactors)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("pg FetchLatestForecast: %w", err)
	}
	f.Direction = models.Direction(direction)
	f.TriggerEvent = models.TriggerEvent(trigger)
	return &f, nil
}

func (p PostgresForecastRepository) InsertForecast(ctx context.Context, record models.ForecastRecord) (*models.ForecastRecord, error) {
	log := slogctx.FromCtx(ctx)
	if record.CreatedTime.IsZero() {
		record.CreatedTime = time.Now()
	}
	record.ID = p.ids.next(record.CreatedTime)
	factors := record.ContributingFactors
	if factors == nil {
		factors = []string{}
	}

	_, err := p.db.Exec(ctx, `INSERT INTO forecast (
	id, user_id, created_time, predicted_glucose, confidence, current_glucose_at_prediction,
	direction, direction_arrow, direction_label, timeframe, recommendation, risk_alert,
	model_used, trigger_event, contributing_factors
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		record.ID, record.UserID, record.CreatedTime, record.PredictedGlucose, record.Confidence, record.CurrentGlucoseAtPrediction,
		string(record.Direction), record.DirectionArrow, record.DirectionLabel, record.TimeframeLabel, record.Recommendation, record.RiskAlert,
		record.ModelUsed, string(record.TriggerEvent), factors)
	if err != nil {
		return nil, fmt.Errorf("pg InsertForecast: %w", err)
	}
	log.Debug("pg inserted forecast", slog.String("id", record.ID), slog.String("userID", record.UserID))
	return &record, nil
}
