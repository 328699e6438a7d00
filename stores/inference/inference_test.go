package inferencestore

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/adamlounds/glucoscope/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contextWithSilentLogger() context.Context {
	return slogctx.NewCtx(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newTestStore(t *testing.T, handler http.HandlerFunc) *InferenceStore {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	s, err := New(srv.URL+"/v1", time.Second)
	require.NoError(t, err)
	return s
}

func TestPredict(t *testing.T) {
	var got Request
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/predict", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"predictedGlucose":162.5,"direction":"rising","directionArrow":"↑","directionLabel":"Rising",
			"confidence":0.82,"timeframe":"30 minutes","recommendation":"Consider a short walk",
			"factors":["recent meal"],"modelUsed":"lstm_v3","suggestions":["drink water"]}`))
	})

	lastMeal := 1.5
	res, err := s.Predict(contextWithSilentLogger(), Request{
		LastMealHoursAgo: &lastMeal,
		Readings:         []models.FeatureReading{{Value: 140, HourOfDay: 9, DayOfWeek: 4}},
		CurrentGlucose:   140,
	})

	require.NoError(t, err)
	assert.Equal(t, 162.5, *res.PredictedGlucose)
	assert.Equal(t, 0.82, *res.Confidence)
	assert.Equal(t, "lstm_v3", res.ModelUsed)
	assert.Equal(t, "rising", res.Direction)
	assert.Equal(t, []string{"recent meal"}, res.Factors)

	assert.Equal(t, 140.0, got.CurrentGlucose)
	require.Len(t, got.Readings, 1)
	assert.Equal(t, 9, got.Readings[0].HourOfDay)
	assert.Equal(t, 1.5, *got.LastMealHoursAgo)
}

func TestPredict_Failures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		expected error
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `{"error":"boom"}`, expected: ErrNon2xx},
		{name: "not json", status: http.StatusOK, body: `<html>`, expected: ErrMalformedResponse},
		{name: "missing predictedGlucose", status: http.StatusOK, body: `{"confidence":0.5,"modelUsed":"m"}`, expected: ErrMalformedResponse},
		{name: "confidence too high", status: http.StatusOK, body: `{"predictedGlucose":120,"confidence":1.5,"modelUsed":"m"}`, expected: ErrMalformedResponse},
		{name: "missing confidence", status: http.StatusOK, body: `{"predictedGlucose":120,"modelUsed":"m"}`, expected: ErrMalformedResponse},
		{name: "missing modelUsed", status: http.StatusOK, body: `{"predictedGlucose":120,"confidence":0.5}`, expected: ErrMalformedResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			res, err := s.Predict(contextWithSilentLogger(), Request{CurrentGlucose: 120})
			assert.Nil(t, res)
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestPredict_Timeout(t *testing.T) {
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	ctx, cancel := context.WithTimeout(contextWithSilentLogger(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Predict(ctx, Request{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNew_RejectsBadURL(t *testing.T) {
	_, err := New("ftp://example.com", time.Second)
	assert.Error(t, err)
	_, err = New("://nope", time.Second)
	assert.Error(t, err)
}
