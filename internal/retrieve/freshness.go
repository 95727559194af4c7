package retrieve

import "time"

// Scoring constants. The freshness floor keeps very old content visible at
// a reduced weight; the distance epsilon keeps similarity finite at
// distance zero.
const (
	minFreshness      = 0.1
	distanceEpsilon   = 0.001
	deprecatedPenalty = 0.1
	overfetchFactor   = 2
	daysPerYear       = 365.0
)

// Freshness computes the recency multiplier for a chunk:
//
//	max(0.1, 1 + (days_since_update/365) * weight)
//
// A nil timestamp is neutral (1.0). With a positive weight the multiplier
// grows with age: this domain weights established content up, not down.
// Callers choosing the opposite policy pass a negative weight.
func Freshness(lastUpdated *time.Time, now time.Time, weight float64) float64 {
	if lastUpdated == nil {
		return 1.0
	}
	days := now.Sub(*lastUpdated).Hours() / 24
	score := 1.0 + (days/daysPerYear)*weight
	if score < minFreshness {
		return minFreshness
	}
	return score
}

// Similarity maps a squared L2 distance into (0, 1], higher meaning more
// similar.
func Similarity(distance float64) float64 {
	if distance < distanceEpsilon {
		distance = distanceEpsilon
	}
	return 1.0 / (1.0 + distance)
}
