package repository

import (
	"bytes"
	"context"
	"fmt"
	"github.com/DmitriyVTitov/size"
	"github.com/adamlounds/glucoscope/models"
	slogctx "github.com/veqryn/slog-context"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"
)

type BucketStoreInterface interface {
	Get(ctx context.Context, file string) (io.ReadCloser, error)
	Upload(ctx context.Context, name string, r io.Reader) error
	IsObjNotFoundErr(err error) bool
	IsAccessDeniedErr(err error) bool
}

// bucketSeries is a time-ordered, in-memory log of items for all users,
// persisted to the bucket as year, month and day partition files:
//   - <prefix>-day/2006-01-02.json: items from the start of that day onwards
//   - <prefix>-month/2006-01.json: that month, excluding the day it was written
//   - <prefix>-year/2006.json: that year up to the month it was written.
//     Earlier years hold the whole year.
//
// Once the newest item is older than the current day (or month), the next
// add rolls it forward into the month (or year) file. Day files are never
// deleted, so partitions may overlap and boot drops duplicates by key.
type bucketSeries[M any] struct {
	bs     BucketStoreInterface
	prefix string
	timeOf func(M) time.Time
	keyOf  func(M) string
	encode func([]M) ([]byte, error)
	decode func(io.Reader) ([]M, error)

	items      []M
	itemsLock  sync.RWMutex
	dirtyYears map[int]struct{} // new item before this month: update that year's file
	dirtyDay   bool             // new item today: update day file
	dirtyMonth bool             // new item this month (but not today): update month file
	syncLock   sync.Mutex
	pending    sync.WaitGroup
}

func newBucketSeries[M any](bs BucketStoreInterface, prefix string, timeOf func(M) time.Time, keyOf func(M) string, encode func([]M) ([]byte, error), decode func(io.Reader) ([]M, error)) *bucketSeries[M] {
	return &bucketSeries[M]{
		bs:         bs,
		prefix:     prefix,
		timeOf:     timeOf,
		keyOf:      keyOf,
		encode:     encode,
		decode:     decode,
		dirtyYears: make(map[int]struct{}),
	}
}

func (s *bucketSeries[M]) dayFile(t time.Time) string {
	return fmt.Sprintf("%s-day/%s.json", s.prefix, t.Format("2006-01-02"))
}

func (s *bucketSeries[M]) monthFile(t time.Time) string {
	return fmt.Sprintf("%s-month/%s.json", s.prefix, t.Format("2006-01"))
}

func (s *bucketSeries[M]) yearFile(year int) string {
	return fmt.Sprintf("%s-year/%d.json", s.prefix, year)
}

// bootFiles lists the partitions that may hold items from the start of the
// previous year up to now, coarsest first.
func (s *bucketSeries[M]) bootFiles(now time.Time) []string {
	startOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	startOfPrevMonth := startOfMonth.AddDate(0, -1, 0)

	files := []string{
		s.yearFile(now.Year() - 1),
		s.yearFile(now.Year()),
		s.monthFile(startOfPrevMonth),
		s.monthFile(startOfMonth),
	}
	// a day file is the only copy of its items until a later add rolls it forward
	for day := startOfPrevMonth; !day.After(now); day = day.AddDate(0, 0, 1) {
		files = append(files, s.dayFile(day))
	}
	return files
}

// boot loads the partitions covering the previous year up to now.
// Missing files are expected for new installs and are skipped. Items left
// only in an earlier day file are rolled forward before boot returns.
func (s *bucketSeries[M]) boot(ctx context.Context, now time.Time) error {
	log := slogctx.FromCtx(ctx)
	now = now.UTC()

	for _, file := range s.bootFiles(now) {
		err := s.load(ctx, file)
		if err == nil {
			continue
		}
		if s.bs.IsObjNotFoundErr(err) {
			log.Debug("boot: cannot find file (not written yet?)", slog.String("file", file))
			continue
		}
		if s.bs.IsAccessDeniedErr(err) {
			log.Warn("boot: cannot fetch file - ACCESS DENIED", slog.String("file", file), slog.Any("error", err))
			continue
		}
		return fmt.Errorf("boot: cannot load %s: %w", file, err)
	}

	s.itemsLock.Lock()
	s.sortItems()
	dropped := s.dedupe()
	n := len(s.items)
	var dirty bool
	if n > 0 {
		dirty = s.rollForward(ctx, s.timeOf(s.items[n-1]), now)
	}
	s.itemsLock.Unlock()

	log.Info("boot: series loaded",
		slog.String("series", s.prefix),
		slog.Int("numItems", n),
		slog.Int("numDuplicates", dropped),
	)
	if dirty {
		s.sync(ctx, now)
	}
	return nil
}

func (s *bucketSeries[M]) load(ctx context.Context, file string) error {
	log := slogctx.FromCtx(ctx)
	t1 := time.Now()
	r, err := s.bs.Get(ctx, file)
	log.Debug("fetched from bucket",
		slog.String("file", file),
		slog.Int64("duration_ms", time.Since(t1).Milliseconds()),
	)
	if err != nil {
		return err
	}
	defer r.Close()

	items, err := s.decode(r)
	if err != nil {
		return err
	}

	s.itemsLock.Lock()
	defer s.itemsLock.Unlock()
	s.items = append(s.items, items...)
	return nil
}

// sortItems keeps items ordered by time. Callers hold itemsLock.
func (s *bucketSeries[M]) sortItems() {
	slices.SortStableFunc(s.items, func(a, b M) int { return s.timeOf(a).Compare(s.timeOf(b)) })
}

// dedupe keeps the first copy of each key and reports how many were dropped.
// Callers hold itemsLock.
func (s *bucketSeries[M]) dedupe() int {
	seen := make(map[string]struct{}, len(s.items))
	n := len(s.items)
	s.items = slices.DeleteFunc(s.items, func(item M) bool {
		key := s.keyOf(item)
		if _, ok := seen[key]; ok {
			return true
		}
		seen[key] = struct{}{}
		return false
	})
	return n - len(s.items)
}

// rollForward marks the coarser partition dirty once newest, the time of the
// newest stored item, falls before the current day. Callers hold itemsLock.
func (s *bucketSeries[M]) rollForward(ctx context.Context, newest time.Time, now time.Time) bool {
	log := slogctx.FromCtx(ctx)
	now = now.UTC()
	startOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch {
	case newest.IsZero() || !newest.Before(startOfDay):
		return false
	case !newest.Before(startOfMonth):
		s.dirtyMonth = true
		log.Debug("rolling day into month", slog.String("series", s.prefix), slog.Time("newest", newest))
	default:
		s.dirtyYears[newest.Year()] = struct{}{}
		log.Debug("rolling month into year", slog.String("series", s.prefix), slog.Time("newest", newest))
	}
	return true
}

// add appends items, marking the partitions they belong to as dirty.
// It reports whether a sync is needed.
func (s *bucketSeries[M]) add(ctx context.Context, now time.Time, items []M) bool {
	if len(items) == 0 {
		return false
	}
	log := slogctx.FromCtx(ctx)
	now = now.UTC()
	startOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	s.itemsLock.Lock()
	defer s.itemsLock.Unlock()

	var lastTime time.Time // last as in "furthest forward in time"
	if len(s.items) > 0 {
		lastTime = s.timeOf(s.items[len(s.items)-1])
		s.rollForward(ctx, lastTime, now)
	}

	needsSorting := false
	for _, item := range items {
		t := s.timeOf(item)
		s.items = append(s.items, item)
		if t.Before(lastTime) {
			needsSorting = true
		}
		lastTime = t

		switch {
		case !t.Before(startOfDay):
			if !s.dirtyDay {
				s.dirtyDay = true
				log.Debug("marking day dirty", slog.String("series", s.prefix), slog.Time("time", t))
			}
		case !t.Before(startOfMonth):
			if !s.dirtyMonth {
				s.dirtyMonth = true
				log.Debug("marking month dirty", slog.String("series", s.prefix), slog.Time("time", t))
			}
		default:
			if _, ok := s.dirtyYears[t.Year()]; !ok {
				s.dirtyYears[t.Year()] = struct{}{}
				log.Debug("marking year dirty", slog.String("series", s.prefix), slog.Int("year", t.Year()))
			}
		}
	}

	if needsSorting {
		t1 := time.Now()
		s.sortItems()
		log.Debug("series sorted", slog.String("series", s.prefix), slog.Int64("duration_us", time.Since(t1).Microseconds()))
	}

	return s.dirtyDay || s.dirtyMonth || len(s.dirtyYears) != 0
}

// scan calls fn for each item inside the window, newest first, until fn
// returns false. Only Since and Before of the window are used.
func (s *bucketSeries[M]) scan(window models.SeriesQuery, fn func(M) bool) {
	s.itemsLock.RLock()
	defer s.itemsLock.RUnlock()

	for i := len(s.items) - 1; i >= 0; i-- {
		t := s.timeOf(s.items[i])
		if !window.Since.IsZero() && t.Before(window.Since) {
			// items are sorted, nothing older can match
			return
		}
		if !window.Contains(t) {
			continue
		}
		if !fn(s.items[i]) {
			return
		}
	}
}

func (s *bucketSeries[M]) count() int {
	s.itemsLock.RLock()
	defer s.itemsLock.RUnlock()
	return len(s.items)
}

// memBytes estimates the memory held by the items.
func (s *bucketSeries[M]) memBytes() int {
	s.itemsLock.RLock()
	defer s.itemsLock.RUnlock()
	return size.Of(s.items)
}

// sync writes every dirty partition to the bucket.
//
// currentTime is passed in rather than read here so that a sync straddling
// midnight still writes the partitions the items were marked against.
func (s *bucketSeries[M]) sync(ctx context.Context, currentTime time.Time) {
	log := slogctx.FromCtx(ctx)
	currentTime = currentTime.UTC()
	startOfYear := time.Date(currentTime.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	startOfMonth := time.Date(currentTime.Year(), currentTime.Month(), 1, 0, 0, 0, 0, time.UTC)
	startOfDay := time.Date(currentTime.Year(), currentTime.Month(), currentTime.Day(), 0, 0, 0, 0, time.UTC)

	s.syncLock.Lock()
	defer s.syncLock.Unlock()

	// snapshot partitions under the lock, upload without it
	uploads := make(map[string][]M)
	s.itemsLock.Lock()
	log.Debug("syncing",
		slog.String("series", s.prefix),
		slog.Time("time", currentTime),
		slog.Bool("dirtyDay", s.dirtyDay),
		slog.Bool("dirtyMonth", s.dirtyMonth),
		slog.Any("dirtyYears", s.dirtyYears),
	)
	if s.dirtyDay {
		uploads[s.dayFile(currentTime)] = s.between(startOfDay, time.Time{})
		s.dirtyDay = false
	}
	if s.dirtyMonth {
		uploads[s.monthFile(currentTime)] = s.between(startOfMonth, startOfDay)
		s.dirtyMonth = false
	}
	for year := range s.dirtyYears {
		from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		until := from.AddDate(1, 0, 0)
		if year == startOfYear.Year() {
			until = startOfMonth
		}
		uploads[s.yearFile(year)] = s.between(from, until)
	}
	clear(s.dirtyYears)
	s.itemsLock.Unlock()

	for name, items := range uploads {
		s.write(ctx, name, items)
	}
}

// syncInBackground runs sync without blocking the caller. The request
// context may be cancelled before the upload finishes, so it is detached.
func (s *bucketSeries[M]) syncInBackground(ctx context.Context, currentTime time.Time) {
	syncContext := context.WithoutCancel(ctx)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		s.sync(syncContext, currentTime)
	}()
}

// wait blocks until background syncs have finished.
func (s *bucketSeries[M]) wait() {
	s.pending.Wait()
}

// between copies items inside [from, until). Callers hold itemsLock.
func (s *bucketSeries[M]) between(from time.Time, until time.Time) []M {
	start, _ := slices.BinarySearchFunc(s.items, from, func(item M, t time.Time) int {
		return s.timeOf(item).Compare(t)
	})
	end := len(s.items)
	if !until.IsZero() {
		end, _ = slices.BinarySearchFunc(s.items, until, func(item M, t time.Time) int {
			return s.timeOf(item).Compare(t)
		})
	}
	if start >= end {
		return []M{}
	}
	return slices.Clone(s.items[start:end])
}

func (s *bucketSeries[M]) write(ctx context.Context, name string, items []M) {
	log := slogctx.FromCtx(ctx)
	b, err := s.encode(items)
	if err != nil {
		log.Warn("cannot marshal series", slog.String("name", name), slog.Any("error", err))
		return
	}

	err = s.bs.Upload(ctx, name, bytes.NewReader(b))
	if err != nil {
		log.Warn("cannot upload series", slog.String("name", name), slog.Any("error", err))
		return
	}
	log.Debug("uploaded series",
		slog.String("name", name),
		slog.Int("byteSize", len(b)),
		slog.Int("numItems", len(items)),
	)
}

// applyOrderAndLimit takes items collected newest first and applies the
// query's order, then its limit.
func applyOrderAndLimit[T any](items []T, q models.SeriesQuery) []T {
	if q.Order == models.OldestFirst {
		slices.Reverse(items)
	}
	if q.Limit > 0 && len(items) > q.Limit {
		items = items[:q.Limit]
	}
	return items
}
