package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/adamlounds/glucoscope/models"
	slogctx "github.com/veqryn/slog-context"
	"log/slog"
	"sync"
)

const profilesFile = "profiles.json"

type storedProfile struct {
	ActivityLevel *string `json:"activityLevel,omitempty"`
	OnMedication  *bool   `json:"onMedication,omitempty"`
	DiabetesType  *string `json:"diabetesType,omitempty"`
}

// BucketProfileRepository serves health profiles from a single bucket object,
// a JSON map of user id to profile. It is read once at boot.
type BucketProfileRepository struct {
	BucketStore BucketStoreInterface
	profiles    map[string]models.HealthProfile
	lock        sync.RWMutex
}

func NewBucketProfileRepository(bs BucketStoreInterface) *BucketProfileRepository {
	return &BucketProfileRepository{BucketStore: bs, profiles: make(map[string]models.HealthProfile)}
}

func (p *BucketProfileRepository) Boot(ctx context.Context) error {
	log := slogctx.FromCtx(ctx)
	r, err := p.BucketStore.Get(ctx, profilesFile)
	if err != nil {
		if p.BucketStore.IsObjNotFoundErr(err) {
			log.Debug("boot: no profiles file", slog.String("file", profilesFile))
			return nil
		}
		return fmt.Errorf("boot: cannot fetch profiles: %w", err)
	}
	defer r.Close()

	var stored map[string]storedProfile
	if err := json.NewDecoder(r).Decode(&stored); err != nil {
		return fmt.Errorf("boot: cannot decode profiles: %w", err)
	}

	p.lock.Lock()
	defer p.lock.Unlock()
	for userID, s := range stored {
		p.profiles[userID] = models.HealthProfile{
			ActivityLevel: s.ActivityLevel,
			OnMedication:  s.OnMedication,
			DiabetesType:  s.DiabetesType,
		}
	}
	log.Info("boot: profiles loaded", slog.Int("numProfiles", len(p.profiles)))
	return nil
}

func (p *BucketProfileRepository) FetchProfile(ctx context.Context, userID string) (*models.HealthProfile, error) {
	p.lock.RLock()
	defer p.lock.RUnlock()
	profile, ok := p.profiles[userID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &profile, nil
}
