package progress

import (
	"fmt"
	"math"
	"time"
)

const (
	// SmoothingFactor weights the newest instantaneous rate.
	SmoothingFactor = 0.1

	// SampleInterval is the minimum spacing between rate samples.
	SampleInterval = time.Second
)

// ProgressSample is the per-transfer state of a RateEstimator.
type ProgressSample struct {
	LastSampleTime     time.Time
	LastSampleBytes    int64
	SmoothedRate       float64 // bytes per second
	BytesAlreadyOnDisk int64
}

// RateEstimator computes an exponentially smoothed transfer rate.
//
// Byte counts passed to Observe are absolute positions in the local file, so
// bytes that were already on disk when a transfer resumed never count as
// throughput.
type RateEstimator struct {
	sample ProgressSample
	seeded bool
}

// Reset starts a new transfer at now with alreadyOnDisk bytes present.
func (e *RateEstimator) Reset(alreadyOnDisk int64, now time.Time) {
	e.sample = ProgressSample{
		LastSampleTime:     now,
		LastSampleBytes:    alreadyOnDisk,
		BytesAlreadyOnDisk: alreadyOnDisk,
	}
	e.seeded = false
}

// Observe records that bytesNow bytes are on disk at now and returns the
// smoothed rate. Observations closer than SampleInterval to the previous
// sample return the last rate unchanged.
func (e *RateEstimator) Observe(now time.Time, bytesNow int64) float64 {
	elapsed := now.Sub(e.sample.LastSampleTime)
	if elapsed < SampleInterval {
		return e.sample.SmoothedRate
	}

	instant := float64(bytesNow-e.sample.LastSampleBytes) / elapsed.Seconds()
	if instant < 0 {
		instant = 0
	}

	if !e.seeded {
		e.sample.SmoothedRate = instant
		e.seeded = true
	} else {
		e.sample.SmoothedRate = SmoothingFactor*instant + (1-SmoothingFactor)*e.sample.SmoothedRate
	}

	e.sample.LastSampleTime = now
	e.sample.LastSampleBytes = bytesNow
	return e.sample.SmoothedRate
}

// Rate returns the current smoothed rate in bytes per second.
func (e *RateEstimator) Rate() float64 {
	return e.sample.SmoothedRate
}

// Sample returns a copy of the estimator state.
func (e *RateEstimator) Sample() ProgressSample {
	return e.sample
}

// ETA returns the time left to reach total from bytesNow at the smoothed
// rate. ok is false while no rate is known.
func (e *RateEstimator) ETA(bytesNow, total int64) (eta time.Duration, ok bool) {
	remaining := total - bytesNow
	if remaining <= 0 {
		return 0, true
	}
	if e.sample.SmoothedRate <= 0 {
		return 0, false
	}

	secs := float64(remaining) / e.sample.SmoothedRate
	if secs > math.MaxInt64/float64(time.Second) {
		return 0, false
	}
	return time.Duration(secs * float64(time.Second)), true
}

// FormatETA formats an ETA as HH:MM:SS, or --:--:-- when unknown.
func FormatETA(d time.Duration, ok bool) string {
	if !ok {
		return "--:--:--"
	}
	s := int64(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s/60)%60, s%60)
}
