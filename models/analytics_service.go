package models

import (
	"context"
	"fmt"
	slogctx "github.com/veqryn/slog-context"
	"log/slog"
	"time"
)

const (
	DefaultHbA1cFetchLimit = 1000
	DefaultRangeLowMgdl    = 70.0
	DefaultRangeHighMgdl   = 180.0
	trendWindow            = 7 * 24 * time.Hour
)

type TimeInRangeResult struct {
	LowMgdl        float64 `json:"lowMgdl"`
	HighMgdl       float64 `json:"highMgdl"`
	BelowPercent   float64 `json:"belowPercent"`
	InRangePercent float64 `json:"inRangePercent"`
	AbovePercent   float64 `json:"abovePercent"`
	TotalReadings  int     `json:"totalReadings"`
}

type TimeInRangeReport struct {
	TimeInRange *TimeInRangeResult `json:"timeInRange"`
	HasData     bool               `json:"hasData"`
	Days        int                `json:"days"`
}

// TimeInRange splits readings into below, within and above [low, high].
// Both bounds are in range.
func TimeInRange(readings []Reading, low float64, high float64) TimeInRangeResult {
	result := TimeInRangeResult{LowMgdl: low, HighMgdl: high, TotalReadings: len(readings)}
	if len(readings) == 0 {
		return result
	}
	var below, in, above int
	for _, r := range readings {
		switch {
		case r.Value < low:
			below++
		case r.Value > high:
			above++
		default:
			in++
		}
	}
	n := float64(len(readings))
	result.BelowPercent = round1(float64(below) * 100 / n)
	result.InRangePercent = round1(float64(in) * 100 / n)
	result.AbovePercent = round1(float64(above) * 100 / n)
	return result
}

// AnalyticsService computes read-side insights over a user's readings.
type AnalyticsService struct {
	Readings        ReadingRepository
	HbA1cFetchLimit int
	RangeLowMgdl    float64
	RangeHighMgdl   float64
	Now             func() time.Time
}

func (s *AnalyticsService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// WeeklyTrend compares the last 7 days with the 7 days before.
func (s *AnalyticsService) WeeklyTrend(ctx context.Context, userID string) (*TrendReport, error) {
	log := slogctx.FromCtx(ctx)
	now := s.now()
	weekAgo := now.Add(-trendWindow)

	current, err := s.Readings.FetchReadings(ctx, userID, SeriesQuery{Since: weekAgo})
	if err != nil {
		return nil, fmt.Errorf("trend cannot fetch current week: %w", err)
	}
	if len(current) == 0 {
		return &TrendReport{HasData: false}, nil
	}
	previous, err := s.Readings.FetchReadings(ctx, userID, SeriesQuery{Since: weekAgo.Add(-trendWindow), Before: weekAgo})
	if err != nil {
		return nil, fmt.Errorf("trend cannot fetch previous week: %w", err)
	}

	result, ok := AnalyzeTrend(current, previous)
	if !ok {
		return &TrendReport{HasData: false}, nil
	}
	log.Debug("trend analyzed",
		slog.String("userID", userID),
		slog.String("direction", string(result.Direction)),
		slog.Int("currentReadings", len(current)),
		slog.Int("previousReadings", len(previous)),
	)
	return &TrendReport{HasData: true, Trend: &result}, nil
}

// EstimateHbA1c uses the user's full history, up to HbA1cFetchLimit readings.
func (s *AnalyticsService) EstimateHbA1c(ctx context.Context, userID string) (*HbA1cReport, error) {
	limit := s.HbA1cFetchLimit
	if limit <= 0 {
		limit = DefaultHbA1cFetchLimit
	}
	readings, err := s.Readings.FetchReadings(ctx, userID, SeriesQuery{Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("hba1c cannot fetch readings: %w", err)
	}

	report := &HbA1cReport{
		HasData:           len(readings) > 0,
		ReadingsAvailable: len(readings),
		ReadingsRequired:  HbA1cMinReadings,
	}
	values := make([]float64, len(readings))
	for i, r := range readings {
		values[i] = r.Value
	}
	estimate, ok := EstimateHbA1c(values)
	if !ok {
		return report, nil
	}
	report.SufficientData = true
	report.Estimate = &estimate
	return report, nil
}

// TimeInRange reports the share of readings in the target band over the last days.
func (s *AnalyticsService) TimeInRange(ctx context.Context, userID string, days int) (*TimeInRangeReport, error) {
	low, high := s.RangeLowMgdl, s.RangeHighMgdl
	if low <= 0 {
		low = DefaultRangeLowMgdl
	}
	if high <= 0 {
		high = DefaultRangeHighMgdl
	}
	since := s.now().Add(-time.Duration(days) * 24 * time.Hour)
	readings, err := s.Readings.FetchReadings(ctx, userID, SeriesQuery{Since: since})
	if err != nil {
		return nil, fmt.Errorf("time in range cannot fetch readings: %w", err)
	}
	report := &TimeInRangeReport{Days: days, HasData: len(readings) > 0}
	if !report.HasData {
		return report, nil
	}
	tir := TimeInRange(readings, low, high)
	report.TimeInRange = &tir
	return report, nil
}
