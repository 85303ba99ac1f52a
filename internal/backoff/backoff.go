// Package backoff implements the staged failure-retry policy used by the
// check executor: a list of bounded stages followed by one unbounded
// terminal stage.
package backoff

import "time"

// Stage is a contiguous range of consecutive-failure counts that share a
// retry interval. Attempts == 0 marks the unbounded terminal stage.
type Stage struct {
	Attempts int
	Interval time.Duration
}

type Policy struct {
	Stages []Stage
}

// DefaultPolicy returns the standard stage list: the first two failures
// retry in 30s, the next five in 60s, the next twelve in 120s, then 300s
// steady state.
func DefaultPolicy() Policy {
	return Policy{
		Stages: []Stage{
			{Attempts: 2, Interval: 30 * time.Second},
			{Attempts: 5, Interval: 60 * time.Second},
			{Attempts: 12, Interval: 120 * time.Second},
			{Attempts: 0, Interval: 300 * time.Second},
		},
	}
}

const minInterval = 1 * time.Second

// Retry returns the retry interval for the nth consecutive failure: walk
// the stages, subtracting each bounded stage's attempts from the remaining
// count until one stage's budget is not exceeded, then return its interval.
// n <= 0 returns defaultInterval. Every result, including defaultInterval,
// is floored at one second.
func (p Policy) Retry(consecutiveFailures int, defaultInterval time.Duration) time.Duration {
	if consecutiveFailures <= 0 {
		return floor(defaultInterval)
	}

	remaining := consecutiveFailures
	for _, stage := range p.Stages {
		if stage.Attempts == 0 {
			// unbounded terminal stage
			return floor(stage.Interval)
		}
		if remaining <= stage.Attempts {
			return floor(stage.Interval)
		}
		remaining -= stage.Attempts
	}

	// no terminal stage configured: fall back to the default interval.
	return floor(defaultInterval)
}

func floor(d time.Duration) time.Duration {
	if d < minInterval {
		return minInterval
	}
	return d
}
