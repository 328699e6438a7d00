package repository

import (
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/adamlounds/glucoscope/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestNewBucketReadingRepository(t *testing.T) {
	mockStore := &MockBucketStore{}
	repo := NewBucketReadingRepository(mockStore)

	assert.NotNil(t, repo)
	assert.Equal(t, mockStore, repo.BucketStore)
	assert.NotNil(t, repo.series)
}

func TestBucketReadingRepository_Load(t *testing.T) {
	mockStore := &MockBucketStore{}
	repo := NewBucketReadingRepository(mockStore)
	day := `[{"recordedAt":"2024-11-28T09:30:00Z","createdAt":"2024-11-28T09:31:00Z","_id":"674708e0575df739a9711a40","userId":"u1","readingType":"fasting","value":105}]`
	mockStore.On("Get", mock.Anything, "readings-day/2024-11-28.json").Return(io.NopCloser(strings.NewReader(day)), nil)

	err := repo.series.load(contextWithSilentLogger(), "readings-day/2024-11-28.json")

	require.NoError(t, err)
	mockStore.AssertExpectations(t)
	require.Len(t, repo.series.items, 1)
	assert.Equal(t, 105.0, repo.series.items[0].Value)
	assert.Equal(t, models.ReadingTypeFasting, repo.series.items[0].Type)

	readings, err := repo.FetchReadings(contextWithSilentLogger(), "u1", models.SeriesQuery{})
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, "674708e0575df739a9711a40", readings[0].Oid)
	assert.Equal(t, "mg/dL", readings[0].Unit)
}

func seedReadings(repo *BucketReadingRepository) {
	u1 := repo.users.id("u1")
	u2 := repo.users.id("u2")
	repo.series.items = []memReading{
		{Oid: "u1-lastyear", UserID: u1, Value: 100, RecordedAt: lastYear},
		{Oid: "u1-samemonth", UserID: u1, Value: 110, RecordedAt: sameMonth},
		{Oid: "u2-samemonth", UserID: u2, Value: 200, RecordedAt: sameMonth.Add(time.Hour)},
		{Oid: "u1-sameday", UserID: u1, Value: 120, RecordedAt: sameDay},
		{Oid: "u1-recent", UserID: u1, Value: 130, RecordedAt: recent},
	}
}

func oids(readings []models.Reading) []string {
	out := make([]string, len(readings))
	for i, r := range readings {
		out[i] = r.Oid
	}
	return out
}

func TestBucketReadingRepository_FetchReadings(t *testing.T) {
	repo := NewBucketReadingRepository(&MockBucketStore{})
	seedReadings(repo)
	ctx := contextWithSilentLogger()

	tests := []struct {
		name     string
		userID   string
		q        models.SeriesQuery
		expected []string
	}{
		{name: "everything, newest first", userID: "u1", expected: []string{"u1-recent", "u1-sameday", "u1-samemonth", "u1-lastyear"}},
		{name: "limit", userID: "u1", q: models.SeriesQuery{Limit: 2}, expected: []string{"u1-recent", "u1-sameday"}},
		{name: "oldest first with limit", userID: "u1", q: models.SeriesQuery{Limit: 2, Order: models.OldestFirst}, expected: []string{"u1-lastyear", "u1-samemonth"}},
		{name: "window", userID: "u1", q: models.SeriesQuery{Since: sameMonth, Before: recent}, expected: []string{"u1-sameday", "u1-samemonth"}},
		{name: "other user", userID: "u2", expected: []string{"u2-samemonth"}},
		{name: "unknown user", userID: "nobody", expected: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			readings, err := repo.FetchReadings(ctx, tt.userID, tt.q)
			require.NoError(t, err)
			assert.NotNil(t, readings)
			assert.Equal(t, tt.expected, oids(readings))
		})
	}
}

func TestBucketReadingRepository_AddToMemStore(t *testing.T) {
	mockStore := &MockBucketStore{}
	repo := NewBucketReadingRepository(mockStore)
	mockStore.On("Upload", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	// calling with no readings does not error
	created := repo.addToMemStore(contextWithSilentLogger(), now, []models.Reading{})
	assert.Empty(t, created)

	readings := []models.Reading{
		{UserID: "u1", Value: 100, Type: models.ReadingTypeRandom, RecordedAt: recent},
		{UserID: "u1", Oid: "old-oid", Value: 150, Type: models.ReadingTypeAfterMeal, MealContext: "pasta", RecordedAt: sameDay},
	}
	created = repo.addToMemStore(contextWithSilentLogger(), now, readings)
	repo.Wait()

	// readings returned in the same order as they were passed
	require.Len(t, created, 2)
	assert.NotEmpty(t, created[0].Oid, "reading is assigned an Oid")
	assert.Len(t, created[0].Oid, 24)
	assert.Equal(t, "old-oid", created[1].Oid)
	assert.Equal(t, now, created[0].CreatedTime)

	// memory store is kept sorted by reading time
	require.Len(t, repo.series.items, 2)
	assert.Equal(t, "old-oid", repo.series.items[0].Oid)
	assert.Equal(t, created[0].Oid, repo.series.items[1].Oid)

	mockStore.AssertCalled(t, "Upload", mock.Anything, "readings-day/2024-11-28.json", mock.Anything)
}

func TestBucketReadingRepository_CreateReadingsValidates(t *testing.T) {
	repo := NewBucketReadingRepository(&MockBucketStore{})

	_, err := repo.CreateReadings(contextWithSilentLogger(), []models.Reading{
		{UserID: "u1", Value: 120, RecordedAt: recent},
		{UserID: "u1", Value: 900, RecordedAt: recent},
	})

	assert.ErrorIs(t, err, models.ErrInvalidReading)
	assert.Empty(t, repo.series.items, "nothing is stored when one reading is invalid")
}

func TestBucketReadingRepository_Encode(t *testing.T) {
	repo := NewBucketReadingRepository(&MockBucketStore{})
	taken := true
	b, err := repo.encode([]memReading{
		{Oid: "abc", UserID: repo.users.id("u9"), Value: 142, Type: models.ReadingTypeBedtime, MedicationTaken: &taken, RecordedAt: sameDay, CreatedTime: now},
	})
	require.NoError(t, err)

	var stored []map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &stored))
	require.Len(t, stored, 1)
	assert.Equal(t, "u9", stored[0]["userId"])
	assert.Equal(t, "bedtime", stored[0]["readingType"])
	assert.Equal(t, true, stored[0]["medicationTaken"])
	assert.Equal(t, 142.0, stored[0]["value"])
}
