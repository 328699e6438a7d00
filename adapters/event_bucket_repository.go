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
	"time"
)

type memMeal struct {
	Time          time.Time
	CarbsEstimate *float64
	Oid           string
	MealType      string
	UserID        int
}

type storedMeal struct {
	Time          time.Time `json:"time"`
	CarbsEstimate *float64  `json:"carbsEstimate,omitempty"`
	Oid           string    `json:"_id"`
	UserID        string    `json:"userId"`
	MealType      string    `json:"mealType"`
}

type memDose struct {
	TakenAt        time.Time
	Oid            string
	MedicationType string
	DoseUnit       string
	Dosage         float64
	UserID         int
}

type storedDose struct {
	TakenAt        time.Time `json:"takenAt"`
	Oid            string    `json:"_id"`
	UserID         string    `json:"userId"`
	MedicationType string    `json:"medicationType"`
	DoseUnit       string    `json:"doseUnit"`
	Dosage         float64   `json:"dosage"`
}

// BucketEventRepository stores meals and medication doses, each in its own
// partitioned series.
type BucketEventRepository struct {
	BucketStore BucketStoreInterface
	users       *userTable
	meals       *bucketSeries[memMeal]
	doses       *bucketSeries[memDose]
}

func NewBucketEventRepository(bs BucketStoreInterface) *BucketEventRepository {
	p := &BucketEventRepository{BucketStore: bs, users: newUserTable()}
	p.meals = newBucketSeries(bs, "meals",
		func(m memMeal) time.Time { return m.Time },
		func(m memMeal) string { return m.Oid },
		p.encodeMeals,
		p.decodeMeals,
	)
	p.doses = newBucketSeries(bs, "medications",
		func(d memDose) time.Time { return d.TakenAt },
		func(d memDose) string { return d.Oid },
		p.encodeDoses,
		p.decodeDoses,
	)
	return p
}

func (p *BucketEventRepository) Boot(ctx context.Context) error {
	now := time.Now()
	if err := p.meals.boot(ctx, now); err != nil {
		return err
	}
	return p.doses.boot(ctx, now)
}

// Wait blocks until pending bucket writes have finished.
func (p *BucketEventRepository) Wait() {
	p.meals.wait()
	p.doses.wait()
}

func (p *BucketEventRepository) encodeMeals(meals []memMeal) ([]byte, error) {
	stored := make([]storedMeal, len(meals))
	for i, m := range meals {
		stored[i] = storedMeal{
			Time:          m.Time,
			CarbsEstimate: m.CarbsEstimate,
			Oid:           m.Oid,
			UserID:        p.users.name(m.UserID),
			MealType:      m.MealType,
		}
	}
	return json.Marshal(stored)
}

func (p *BucketEventRepository) decodeMeals(r io.Reader) ([]memMeal, error) {
	var stored []storedMeal
	if err := json.NewDecoder(r).Decode(&stored); err != nil {
		return nil, err
	}
	meals := make([]memMeal, len(stored))
	for i, s := range stored {
		meals[i] = memMeal{
			Time:          s.Time,
			CarbsEstimate: s.CarbsEstimate,
			Oid:           s.Oid,
			MealType:      s.MealType,
			UserID:        p.users.id(s.UserID),
		}
	}
	return meals, nil
}

func (p *BucketEventRepository) encodeDoses(doses []memDose) ([]byte, error) {
	stored := make([]storedDose, len(doses))
	for i, d := range doses {
		stored[i] = storedDose{
			TakenAt:        d.TakenAt,
			Oid:            d.Oid,
			UserID:         p.users.name(d.UserID),
			MedicationType: d.MedicationType,
			DoseUnit:       d.DoseUnit,
			Dosage:         d.Dosage,
		}
	}
	return json.Marshal(stored)
}

func (p *BucketEventRepository) decodeDoses(r io.Reader) ([]memDose, error) {
	var stored []storedDose
	if err := json.NewDecoder(r).Decode(&stored); err != nil {
		return nil, err
	}
	doses := make([]memDose, len(stored))
	for i, s := range stored {
		doses[i] = memDose{
			TakenAt:        s.TakenAt,
			Oid:            s.Oid,
			MedicationType: s.MedicationType,
			DoseUnit:       s.DoseUnit,
			Dosage:         s.Dosage,
			UserID:         p.users.id(s.UserID),
		}
	}
	return doses, nil
}

// FetchMeals returns the meals of one user inside the query window, newest
// first unless the query asks otherwise.
func (p *BucketEventRepository) FetchMeals(ctx context.Context, userID string, q models.SeriesQuery) ([]models.MealEvent, error) {
	meals := []models.MealEvent{}
	uid, ok := p.users.lookup(userID)
	if !ok {
		return meals, nil
	}
	p.meals.scan(q, func(m memMeal) bool {
		if m.UserID == uid {
			meals = append(meals, models.MealEvent{
				Time:          m.Time,
				CarbsEstimate: m.CarbsEstimate,
				Oid:           m.Oid,
				UserID:        userID,
				MealType:      m.MealType,
			})
		}
		return true
	})
	return applyOrderAndLimit(meals, q), nil
}

func (p *BucketEventRepository) FetchMedicationDoses(ctx context.Context, userID string, q models.SeriesQuery) ([]models.MedicationDose, error) {
	doses := []models.MedicationDose{}
	uid, ok := p.users.lookup(userID)
	if !ok {
		return doses, nil
	}
	p.doses.scan(q, func(d memDose) bool {
		if d.UserID == uid {
			doses = append(doses, models.MedicationDose{
				TakenAt:        d.TakenAt,
				Oid:            d.Oid,
				UserID:         userID,
				MedicationType: d.MedicationType,
				DoseUnit:       d.DoseUnit,
				Dosage:         d.Dosage,
			})
		}
		return true
	})
	return applyOrderAndLimit(doses, q), nil
}

func (p *BucketEventRepository) CreateMeals(ctx context.Context, meals []models.MealEvent) ([]models.MealEvent, error) {
	for i, m := range meals {
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("meal %d: %w", i, err)
		}
	}
	log := slogctx.FromCtx(ctx)
	now := time.Now()

	created := make([]models.MealEvent, 0, len(meals))
	mem := make([]memMeal, 0, len(meals))
	for _, m := range meals {
		if m.Oid == "" {
			m.Oid = primitive.NewObjectIDFromTimestamp(now).Hex()
		}
		mem = append(mem, memMeal{
			Time:          m.Time,
			CarbsEstimate: m.CarbsEstimate,
			Oid:           m.Oid,
			MealType:      m.MealType,
			UserID:        p.users.id(m.UserID),
		})
		created = append(created, m)
	}

	if p.meals.add(ctx, now, mem) {
		p.meals.syncInBackground(ctx, now)
	}
	log.Info("inserted meals", slog.Int("numInserted", len(mem)))
	return created, nil
}

func (p *BucketEventRepository) CreateMedicationDoses(ctx context.Context, doses []models.MedicationDose) ([]models.MedicationDose, error) {
	for i, d := range doses {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("medication dose %d: %w", i, err)
		}
	}
	log := slogctx.FromCtx(ctx)
	now := time.Now()

	created := make([]models.MedicationDose, 0, len(doses))
	mem := make([]memDose, 0, len(doses))
	for _, d := range doses {
		if d.Oid == "" {
			d.Oid = primitive.NewObjectIDFromTimestamp(now).Hex()
		}
		mem = append(mem, memDose{
			TakenAt:        d.TakenAt,
			Oid:            d.Oid,
			MedicationType: d.MedicationType,
			DoseUnit:       d.DoseUnit,
			Dosage:         d.Dosage,
			UserID:         p.users.id(d.UserID),
		})
		created = append(created, d)
	}

	if p.doses.add(ctx, now, mem) {
		p.doses.syncInBackground(ctx, now)
	}
	log.Info("inserted medication doses", slog.Int("numInserted", len(mem)))
	return created, nil
}
