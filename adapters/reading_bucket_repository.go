package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/adamlounds/glucoscope/models"
	slogctx "github.com/veqryn/slog-context"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"io"
	"log/slog"
	"sync"
	"time"
)

const unitMgdl = "mg/dL"

// memReading is the in-memory form of a reading. User ids are interned, as
// every reading belongs to one of very few users.
type memReading struct {
	RecordedAt      time.Time
	CreatedTime     time.Time
	MedicationTaken *bool
	Oid             string
	Type            models.ReadingType
	MealContext     string
	ActivityContext string
	Value           float64
	UserID          int
}

type storedReading struct {
	RecordedAt      time.Time          `json:"recordedAt"`
	CreatedTime     time.Time          `json:"createdAt"`
	MedicationTaken *bool              `json:"medicationTaken,omitempty"`
	Oid             string             `json:"_id"`
	UserID          string             `json:"userId"`
	Type            models.ReadingType `json:"readingType,omitempty"`
	MealContext     string             `json:"mealContext,omitempty"`
	ActivityContext string             `json:"activityContext,omitempty"`
	Value           float64            `json:"value"`
}

// userTable interns user ids.
type userTable struct {
	names     []string
	idsByName map[string]int
	lock      sync.RWMutex
}

func newUserTable() *userTable {
	return &userTable{idsByName: make(map[string]int)}
}

func (u *userTable) id(name string) int {
	u.lock.Lock()
	defer u.lock.Unlock()
	id, ok := u.idsByName[name]
	if !ok {
		id = len(u.names)
		u.names = append(u.names, name)
		u.idsByName[name] = id
	}
	return id
}

func (u *userTable) lookup(name string) (int, bool) {
	u.lock.RLock()
	defer u.lock.RUnlock()
	id, ok := u.idsByName[name]
	return id, ok
}

func (u *userTable) name(id int) string {
	u.lock.RLock()
	defer u.lock.RUnlock()
	return u.names[id]
}

type BucketReadingRepository struct {
	BucketStore BucketStoreInterface
	users       *userTable
	series      *bucketSeries[memReading]
}

func NewBucketReadingRepository(bs BucketStoreInterface) *BucketReadingRepository {
	p := &BucketReadingRepository{BucketStore: bs, users: newUserTable()}
	p.series = newBucketSeries(bs, "readings",
		func(r memReading) time.Time { return r.RecordedAt },
		func(r memReading) string { return r.Oid },
		p.encode,
		p.decode,
	)
	return p
}

// Boot fetches recent readings into memory, typically at server startup
func (p *BucketReadingRepository) Boot(ctx context.Context) error {
	log := slogctx.FromCtx(ctx)
	if err := p.series.boot(ctx, time.Now()); err != nil {
		return err
	}
	log.Info("boot: readings loaded",
		slog.Int("numReadings", p.series.count()),
		slog.Int("memBytes", p.series.memBytes()),
	)
	return nil
}

// Wait blocks until pending bucket writes have finished.
func (p *BucketReadingRepository) Wait() {
	p.series.wait()
}

func (p *BucketReadingRepository) encode(readings []memReading) ([]byte, error) {
	stored := make([]storedReading, len(readings))
	for i, r := range readings {
		stored[i] = storedReading{
			RecordedAt:      r.RecordedAt,
			CreatedTime:     r.CreatedTime,
			MedicationTaken: r.MedicationTaken,
			Oid:             r.Oid,
			UserID:          p.users.name(r.UserID),
			Type:            r.Type,
			MealContext:     r.MealContext,
			ActivityContext: r.ActivityContext,
			Value:           r.Value,
		}
	}
	return json.Marshal(stored)
}

func (p *BucketReadingRepository) decode(r io.Reader) ([]memReading, error) {
	var stored []storedReading
	if err := json.NewDecoder(r).Decode(&stored); err != nil {
		return nil, err
	}
	readings := make([]memReading, len(stored))
	for i, s := range stored {
		readings[i] = memReading{
			RecordedAt:      s.RecordedAt,
			CreatedTime:     s.CreatedTime,
			MedicationTaken: s.MedicationTaken,
			Oid:             s.Oid,
			Type:            s.Type,
			MealContext:     s.MealContext,
			ActivityContext: s.ActivityContext,
			Value:           s.Value,
			UserID:          p.users.id(s.UserID),
		}
	}
	return readings, nil
}

func (p *BucketReadingRepository) toModel(r memReading, userID string) models.Reading {
	return models.Reading{
		RecordedAt:      r.RecordedAt,
		CreatedTime:     r.CreatedTime,
		MedicationTaken: r.MedicationTaken,
		Oid:             r.Oid,
		UserID:          userID,
		Unit:            unitMgdl,
		Type:            r.Type,
		MealContext:     r.MealContext,
		ActivityContext: r.ActivityContext,
		Value:           r.Value,
	}
}

// FetchReadings returns the readings of one user inside the query window.
func (p *BucketReadingRepository) FetchReadings(ctx context.Context, userID string, q models.SeriesQuery) ([]models.Reading, error) {
	readings := []models.Reading{}
	uid, ok := p.users.lookup(userID)
	if !ok {
		return readings, nil
	}

	// with newest-first ordering the limit can stop the scan early
	earlyLimit := q.Order == models.NewestFirst && q.Limit > 0
	p.series.scan(q, func(r memReading) bool {
		if r.UserID != uid {
			return true
		}
		readings = append(readings, p.toModel(r, userID))
		return !earlyLimit || len(readings) < q.Limit
	})
	return applyOrderAndLimit(readings, q), nil
}

// CreateReadings validates and stores readings, returning them with their
// Oid and CreatedTime set. Nothing is stored if any reading is invalid.
func (p *BucketReadingRepository) CreateReadings(ctx context.Context, readings []models.Reading) ([]models.Reading, error) {
	for i, r := range readings {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("reading %d: %w", i, err)
		}
	}
	now := time.Now()
	created := p.addToMemStore(ctx, now, readings)
	return created, nil
}

func (p *BucketReadingRepository) addToMemStore(ctx context.Context, now time.Time, readings []models.Reading) []models.Reading {
	log := slogctx.FromCtx(ctx)
	created := make([]models.Reading, 0, len(readings))
	if len(readings) == 0 {
		return created
	}

	mem := make([]memReading, 0, len(readings))
	for _, r := range readings {
		// Preserve oid on import
		oid := r.Oid
		if oid == "" {
			oid = primitive.NewObjectIDFromTimestamp(now).Hex()
		}
		m := memReading{
			RecordedAt:      r.RecordedAt,
			CreatedTime:     now,
			MedicationTaken: r.MedicationTaken,
			Oid:             oid,
			Type:            r.Type,
			MealContext:     r.MealContext,
			ActivityContext: r.ActivityContext,
			Value:           r.Value,
			UserID:          p.users.id(r.UserID),
		}
		mem = append(mem, m)
		created = append(created, p.toModel(m, r.UserID))
	}

	if p.series.add(ctx, now, mem) {
		p.series.syncInBackground(ctx, now)
	}
	log.Info("inserted readings", slog.Int("totalReadings", p.series.count()), slog.Int("numInserted", len(mem)))
	return created
}
