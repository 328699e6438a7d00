package controllers

import (
	"context"
	"errors"
	"github.com/adamlounds/glucoscope/middleware"
	"github.com/adamlounds/glucoscope/models"
	"github.com/go-chi/render"
	slogctx "github.com/veqryn/slog-context"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

type ForecastService interface {
	Forecast(ctx context.Context, userID string, trigger models.TriggerEvent) (*models.ForecastResult, error)
}

type InsightsService interface {
	WeeklyTrend(ctx context.Context, userID string) (*models.TrendReport, error)
	EstimateHbA1c(ctx context.Context, userID string) (*models.HbA1cReport, error)
	TimeInRange(ctx context.Context, userID string, days int) (*models.TimeInRangeReport, error)
}

type ReadingRepository interface {
	models.ReadingRepository
	models.ReadingWriter
}

type ApiV1 struct {
	Forecasts ForecastService
	Insights  InsightsService
	Readings  ReadingRepository
	Events    models.EventWriter
}

const (
	defaultListCount    = 20
	maxListCount        = 1000
	defaultRangeDays    = 14
	maxRangeDays        = 90
	mmolToMgdl          = 18.0
	unitMmol            = "mmol/L"
	unitMgdl            = "mg/dL"
	errNoUserForRequest = "credentials are not linked to a user"
)

// userFromRequest returns the user the caller acts for. It writes a 403 and
// returns false when there is none.
func userFromRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		http.Error(w, errNoUserForRequest, http.StatusForbidden)
		return "", false
	}
	return userID, true
}

// Forecast serves /api/v1/forecast?trigger=auto
func (a ApiV1) Forecast(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogctx.FromCtx(ctx)
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}

	trigger := models.ParseTriggerEvent(r.URL.Query().Get("trigger"))
	result, err := a.Forecasts.Forecast(ctx, userID, trigger)
	if err != nil {
		log.Error("forecast failed", slog.String("userID", userID), slog.Any("error", err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	render.JSON(w, r, result)
}

type readingResponse struct {
	RecordedAt      time.Time          `json:"recordedAt"`
	CreatedTime     time.Time          `json:"createdAt"`
	MedicationTaken *bool              `json:"medicationTaken,omitempty"`
	Oid             string             `json:"_id"`
	Unit            string             `json:"unit"`
	Type            models.ReadingType `json:"readingType,omitempty"`
	MealContext     string             `json:"mealContext,omitempty"`
	ActivityContext string             `json:"activityContext,omitempty"`
	Value           float64            `json:"value"`
}

func newReadingResponse(r models.Reading) readingResponse {
	return readingResponse{
		RecordedAt:      r.RecordedAt,
		CreatedTime:     r.CreatedTime,
		MedicationTaken: r.MedicationTaken,
		Oid:             r.Oid,
		Unit:            r.Unit,
		Type:            r.Type,
		MealContext:     r.MealContext,
		ActivityContext: r.ActivityContext,
		Value:           r.Value,
	}
}

// ListReadings serves /api/v1/readings?count=20, newest first
func (a ApiV1) ListReadings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogctx.FromCtx(ctx)
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}

	count, err := strconv.Atoi(r.URL.Query().Get("count"))
	if err != nil {
		if r.URL.Query().Get("count") != "" {
			http.Error(w, "count must be an integer", http.StatusBadRequest)
			return
		}
		count = defaultListCount
	}
	if count < 1 || count > maxListCount {
		http.Error(w, "count must be between 1 and 1000", http.StatusBadRequest)
		return
	}

	readings, err := a.Readings.FetchReadings(ctx, userID, models.SeriesQuery{Limit: count})
	if err != nil {
		log.Error("cannot list readings", slog.Any("error", err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	response := make([]readingResponse, len(readings))
	for i, reading := range readings {
		response[i] = newReadingResponse(reading)
	}
	render.JSON(w, r, response)
}

type readingRequest struct {
	RecordedAt      *time.Time         `json:"recordedAt"`
	MedicationTaken *bool              `json:"medicationTaken"`
	Unit            string             `json:"unit"`
	Type            models.ReadingType `json:"readingType"`
	MealContext     string             `json:"mealContext"`
	ActivityContext string             `json:"activityContext"`
	Value           float64            `json:"value"`
}

type createReadingsResponse struct {
	Forecast *models.ForecastResult `json:"forecast,omitempty"`
	Readings []readingResponse      `json:"readings"`
}

// CreateReadings stores a batch of readings and recomputes the forecast.
// POST /api/v1/readings [{"value": 132, "readingType": "before_meal"}]
func (a ApiV1) CreateReadings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogctx.FromCtx(ctx)
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}

	var req []readingRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req) == 0 {
		http.Error(w, "no readings supplied", http.StatusBadRequest)
		return
	}

	now := time.Now()
	readings := make([]models.Reading, len(req))
	for i, rr := range req {
		value := rr.Value
		switch rr.Unit {
		case "", unitMgdl:
		case unitMmol:
			value = rr.Value * mmolToMgdl
		default:
			http.Error(w, "unit must be mg/dL or mmol/L", http.StatusBadRequest)
			return
		}
		recordedAt := now
		if rr.RecordedAt != nil {
			recordedAt = *rr.RecordedAt
		}
		readings[i] = models.Reading{
			RecordedAt:      recordedAt,
			MedicationTaken: rr.MedicationTaken,
			UserID:          userID,
			Unit:            unitMgdl,
			Type:            rr.Type,
			MealContext:     rr.MealContext,
			ActivityContext: rr.ActivityContext,
			Value:           value,
		}
	}

	created, err := a.Readings.CreateReadings(ctx, readings)
	if err != nil {
		if errors.Is(err, models.ErrInvalidReading) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Error("cannot create readings", slog.Any("error", err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	response := createReadingsResponse{Readings: make([]readingResponse, len(created))}
	for i, reading := range created {
		response.Readings[i] = newReadingResponse(reading)
	}
	response.Forecast = a.forecastAfterLog(ctx, userID, models.TriggerReadingLogged)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response)
}

// forecastAfterLog recomputes the forecast after new data was logged. The
// data is already stored, so a failure here only drops the forecast.
func (a ApiV1) forecastAfterLog(ctx context.Context, userID string, trigger models.TriggerEvent) *models.ForecastResult {
	log := slogctx.FromCtx(ctx)
	if a.Forecasts == nil {
		return nil
	}
	result, err := a.Forecasts.Forecast(ctx, userID, trigger)
	if err != nil {
		log.Warn("cannot forecast after log", slog.String("trigger", string(trigger)), slog.Any("error", err))
		return nil
	}
	return result
}

type mealRequest struct {
	Time          *time.Time `json:"time"`
	CarbsEstimate *float64   `json:"carbsEstimate"`
	MealType      string     `json:"mealType"`
}

type mealResponse struct {
	Time          time.Time `json:"time"`
	CarbsEstimate *float64  `json:"carbsEstimate,omitempty"`
	Oid           string    `json:"_id"`
	MealType      string    `json:"mealType"`
}

type createMealsResponse struct {
	Forecast *models.ForecastResult `json:"forecast,omitempty"`
	Meals    []mealResponse         `json:"meals"`
}

// CreateMeals stores meals. POST /api/v1/meals [{"mealType": "lunch", "carbsEstimate": 45}]
func (a ApiV1) CreateMeals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogctx.FromCtx(ctx)
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}

	var req []mealRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req) == 0 {
		http.Error(w, "no meals supplied", http.StatusBadRequest)
		return
	}

	now := time.Now()
	meals := make([]models.MealEvent, len(req))
	for i, m := range req {
		t := now
		if m.Time != nil {
			t = *m.Time
		}
		meals[i] = models.MealEvent{Time: t, CarbsEstimate: m.CarbsEstimate, UserID: userID, MealType: m.MealType}
	}

	created, err := a.Events.CreateMeals(ctx, meals)
	if err != nil {
		if errors.Is(err, models.ErrInvalidEvent) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Error("cannot create meals", slog.Any("error", err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	response := createMealsResponse{Meals: make([]mealResponse, len(created))}
	for i, m := range created {
		response.Meals[i] = mealResponse{Time: m.Time, CarbsEstimate: m.CarbsEstimate, Oid: m.Oid, MealType: m.MealType}
	}
	response.Forecast = a.forecastAfterLog(ctx, userID, models.TriggerMealLogged)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response)
}

type medicationRequest struct {
	TakenAt        *time.Time `json:"takenAt"`
	MedicationType string     `json:"medicationType"`
	DoseUnit       string     `json:"doseUnit"`
	Dosage         float64    `json:"dosage"`
}

type medicationResponse struct {
	TakenAt        time.Time `json:"takenAt"`
	Oid            string    `json:"_id"`
	MedicationType string    `json:"medicationType"`
	DoseUnit       string    `json:"doseUnit"`
	Dosage         float64   `json:"dosage"`
}

type createMedicationsResponse struct {
	Forecast    *models.ForecastResult `json:"forecast,omitempty"`
	Medications []medicationResponse   `json:"medications"`
}

// CreateMedications stores medication doses.
// POST /api/v1/medications [{"medicationType": "metformin", "dosage": 500, "doseUnit": "mg"}]
func (a ApiV1) CreateMedications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogctx.FromCtx(ctx)
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}

	var req []medicationRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req) == 0 {
		http.Error(w, "no medications supplied", http.StatusBadRequest)
		return
	}

	now := time.Now()
	doses := make([]models.MedicationDose, len(req))
	for i, m := range req {
		t := now
		if m.TakenAt != nil {
			t = *m.TakenAt
		}
		doses[i] = models.MedicationDose{
			TakenAt:        t,
			UserID:         userID,
			MedicationType: m.MedicationType,
			DoseUnit:       m.DoseUnit,
			Dosage:         m.Dosage,
		}
	}

	created, err := a.Events.CreateMedicationDoses(ctx, doses)
	if err != nil {
		if errors.Is(err, models.ErrInvalidEvent) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Error("cannot create medication doses", slog.Any("error", err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	response := createMedicationsResponse{Medications: make([]medicationResponse, len(created))}
	for i, d := range created {
		response.Medications[i] = medicationResponse{
			TakenAt:        d.TakenAt,
			Oid:            d.Oid,
			MedicationType: d.MedicationType,
			DoseUnit:       d.DoseUnit,
			Dosage:         d.Dosage,
		}
	}
	response.Forecast = a.forecastAfterLog(ctx, userID, models.TriggerMedicationLogged)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response)
}

// Trend serves /api/v1/insights/trend
func (a ApiV1) Trend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogctx.FromCtx(ctx)
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}
	report, err := a.Insights.WeeklyTrend(ctx, userID)
	if err != nil {
		log.Error("trend failed", slog.Any("error", err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	render.JSON(w, r, report)
}

// HbA1c serves /api/v1/insights/hba1c
func (a ApiV1) HbA1c(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogctx.FromCtx(ctx)
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}
	report, err := a.Insights.EstimateHbA1c(ctx, userID)
	if err != nil {
		log.Error("hba1c failed", slog.Any("error", err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	render.JSON(w, r, report)
}

// TimeInRange serves /api/v1/insights/time-in-range?days=14
func (a ApiV1) TimeInRange(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogctx.FromCtx(ctx)
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}

	days := defaultRangeDays
	if d := r.URL.Query().Get("days"); d != "" {
		var err error
		days, err = strconv.Atoi(d)
		if err != nil || days < 1 || days > maxRangeDays {
			http.Error(w, "days must be between 1 and 90", http.StatusBadRequest)
			return
		}
	}

	report, err := a.Insights.TimeInRange(ctx, userID, days)
	if err != nil {
		log.Error("time in range failed", slog.Any("error", err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	render.JSON(w, r, report)
}
