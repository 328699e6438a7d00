package repository

import (
	"crypto/rand"
	"github.com/oklog/ulid/v2"
	"sync"
	"time"
)

// forecastIDs hands out ULIDs that sort in creation order, even for records
// created within the same millisecond.
type forecastIDs struct {
	entropy *ulid.MonotonicEntropy
	lock    sync.Mutex
}

func newForecastIDs() *forecastIDs {
	return &forecastIDs{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (g *forecastIDs) next(t time.Time) string {
	g.lock.Lock()
	defer g.lock.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), g.entropy).String()
}
