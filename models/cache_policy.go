package models

import "time"

type CacheState int

const (
	CacheStale CacheState = iota
	CacheFresh
)

func (s CacheState) String() string {
	if s == CacheFresh {
		return "fresh"
	}
	return "stale"
}

// EvaluateCachePolicy decides whether lastForecast can be served again.
//
// Only auto triggers may reuse a forecast. A reading newer than the forecast
// always invalidates it, otherwise it stays fresh for maxAge.
func EvaluateCachePolicy(trigger TriggerEvent, lastForecast *ForecastRecord, newestReadingTime time.Time, now time.Time, maxAge time.Duration) CacheState {
	if !trigger.IsAuto() || lastForecast == nil || newestReadingTime.IsZero() {
		return CacheStale
	}
	if maxAge <= 0 {
		maxAge = DefaultForecastMaxAge
	}
	if newestReadingTime.After(lastForecast.CreatedTime) {
		return CacheStale
	}
	if now.Sub(lastForecast.CreatedTime) >= maxAge {
		return CacheStale
	}
	return CacheFresh
}
