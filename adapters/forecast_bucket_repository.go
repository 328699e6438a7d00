package repository

import (
	"context"
	"encoding/json"
	"github.com/adamlounds/glucoscope/models"
	slogctx "github.com/veqryn/slog-context"
	"io"
	"log/slog"
	"time"
)

// BucketForecastRepository is the append-only forecast log, kept in memory
// and synced to the bucket like readings are.
type BucketForecastRepository struct {
	BucketStore BucketStoreInterface
	series      *bucketSeries[models.ForecastRecord]
	ids         *forecastIDs
}

func NewBucketForecastRepository(bs BucketStoreInterface) *BucketForecastRepository {
	return &BucketForecastRepository{
		BucketStore: bs,
		series: newBucketSeries(bs, "forecasts",
			func(f models.ForecastRecord) time.Time { return f.CreatedTime },
			func(f models.ForecastRecord) string { return f.ID },
			encodeForecasts,
			decodeForecasts,
		),
		ids: newForecastIDs(),
	}
}

func encodeForecasts(records []models.ForecastRecord) ([]byte, error) {
	return json.Marshal(records)
}

func decodeForecasts(r io.Reader) ([]models.ForecastRecord, error) {
	var records []models.ForecastRecord
	err := json.NewDecoder(r).Decode(&records)
	return records, err
}

func (p *BucketForecastRepository) Boot(ctx context.Context) error {
	return p.series.boot(ctx, time.Now())
}

// Wait blocks until pending bucket writes have finished.
func (p *BucketForecastRepository) Wait() {
	p.series.wait()
}

// FetchLatestForecast returns the active forecast of a user, the newest
// record in the log.
func (p *BucketForecastRepository) FetchLatestForecast(ctx context.Context, userID string) (*models.ForecastRecord, error) {
	var latest *models.ForecastRecord
	p.series.scan(models.SeriesQuery{}, func(f models.ForecastRecord) bool {
		if f.UserID != userID {
			return true
		}
		latest = &f
		return false
	})
	if latest == nil {
		return nil, models.ErrNotFound
	}
	return latest, nil
}

func (p *BucketForecastRepository) InsertForecast(ctx context.Context, record models.ForecastRecord) (*models.ForecastRecord, error) {
	log := slogctx.FromCtx(ctx)
	now := time.Now()
	if record.CreatedTime.IsZero() {
		record.CreatedTime = now
	}
	record.ID = p.ids.next(record.CreatedTime)

	if p.series.add(ctx, now, []models.ForecastRecord{record}) {
		p.series.syncInBackground(ctx, now)
	}
	log.Debug("inserted forecast",
		slog.String("id", record.ID),
		slog.String("userID", record.UserID),
		slog.String("modelUsed", record.ModelUsed),
	)
	return &record, nil
}
