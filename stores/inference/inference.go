package inferencestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/adamlounds/glucoscope/models"
	slogctx "github.com/veqryn/slog-context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"path"
	"time"
)

var ErrNon2xx = errors.New("inferencestore: non-2xx response")
var ErrMalformedResponse = errors.New("inferencestore: malformed response")

const userAgent = "glucoscope/0.1"

// Request is the feature bundle as the inference service expects it.
type Request struct {
	LastMealHoursAgo  *float64                  `json:"lastMealHoursAgo"`
	DiabetesType      *string                   `json:"diabetesType"`
	OnMedication      *bool                     `json:"onMedication"`
	ActivityLevel     *string                   `json:"activityLevel"`
	Readings          []models.FeatureReading   `json:"readings"`
	RecentMedications []models.RecentMedication `json:"recentMedications"`
	RecentMeals       []models.RecentMeal       `json:"recentMeals"`
	CurrentGlucose    float64                   `json:"currentGlucose"`
}

// Response is a prediction from the inference service. Required numbers are
// pointers so a missing field can be told apart from zero.
type Response struct {
	PredictedGlucose *float64 `json:"predictedGlucose"`
	Confidence       *float64 `json:"confidence"`
	Direction        string   `json:"direction"`
	DirectionArrow   string   `json:"directionArrow"`
	DirectionLabel   string   `json:"directionLabel"`
	Timeframe        string   `json:"timeframe"`
	Recommendation   string   `json:"recommendation"`
	RiskAlert        string   `json:"riskAlert"`
	ModelUsed        string   `json:"modelUsed"`
	Factors          []string `json:"factors"`
	Suggestions      []string `json:"suggestions"`
}

func (r Response) Validate() error {
	if r.PredictedGlucose == nil {
		return fmt.Errorf("%w: missing predictedGlucose", ErrMalformedResponse)
	}
	if r.Confidence == nil || *r.Confidence < 0 || *r.Confidence > 1 {
		return fmt.Errorf("%w: confidence missing or outside [0,1]", ErrMalformedResponse)
	}
	if r.ModelUsed == "" {
		return fmt.Errorf("%w: missing modelUsed", ErrMalformedResponse)
	}
	return nil
}

type InferenceStore struct {
	URL    *url.URL
	Client *http.Client
}

func New(baseURL string, timeout time.Duration) (*InferenceStore, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("inferencestore cannot parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("inferencestore url must be http(s), got %q", baseURL)
	}
	return &InferenceStore{URL: u, Client: &http.Client{Timeout: timeout}}, nil
}

// Predict makes a single call to the inference service. It is never retried.
func (s *InferenceStore) Predict(ctx context.Context, req Request) (*Response, error) {
	log := slogctx.FromCtx(ctx)

	u := *s.URL
	u.Path = path.Join(u.Path, "predict")

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("Predict cannot marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("Predict cannot NewRequestWithContext: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)

	t1 := time.Now()
	res, err := s.Client.Do(httpReq)
	if err != nil {
		var dnsError *net.DNSError
		if errors.As(err, &dnsError) {
			log.Info("Predict DNSError", slog.Any("error", dnsError))
			return nil, fmt.Errorf("Predict inference service NOT FOUND: %w", err)
		}
		return nil, fmt.Errorf("Predict cannot Do req: %w", err)
	}
	defer res.Body.Close()
	log.Debug("Predict response",
		slog.Int("code", res.StatusCode),
		slog.Int64("duration_ms", time.Since(t1).Milliseconds()),
	)

	if res.StatusCode < 200 || res.StatusCode > 299 {
		// drain a little of the body so the connection can be reused
		_, _ = io.CopyN(io.Discard, res.Body, 4096)
		return nil, fmt.Errorf("%w: %d", ErrNon2xx, res.StatusCode)
	}

	var prediction Response
	if err := json.NewDecoder(res.Body).Decode(&prediction); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if err := prediction.Validate(); err != nil {
		return nil, err
	}
	return &prediction, nil
}
