package profile

import (
	"sync"
	"sync/atomic"
	"time"

	"vowline/internal/config"
	"vowline/internal/domain"
)

// Scorer is the read path the optimizer consumes. Implementations must
// answer from pre-aggregated state; no recomputation over raw history.
type Scorer interface {
	Score(vendorID, category string) domain.ReliabilityScore
}

type key struct {
	vendorID string
	category string
}

type snapshot struct {
	profiles map[key]domain.VendorPerformanceProfile
}

// Store holds vendor performance profiles behind an atomically published
// immutable snapshot. Readers never block on writers: each update builds a
// fresh map and swaps the pointer.
type Store struct {
	cfg  *config.Config
	snap atomic.Pointer[snapshot]

	mu sync.Mutex // serializes writers only
}

func NewStore(cfg *config.Config) *Store {
	s := &Store{cfg: cfg}
	s.snap.Store(&snapshot{profiles: map[key]domain.VendorPerformanceProfile{}})
	return s
}

// Load replaces the snapshot with persisted profiles, typically at startup.
func (s *Store) Load(profiles []domain.VendorPerformanceProfile) {
	next := make(map[key]domain.VendorPerformanceProfile, len(profiles))
	for _, p := range profiles {
		next[key{vendorID: p.VendorID, category: p.Category}] = p
	}
	s.mu.Lock()
	s.snap.Store(&snapshot{profiles: next})
	s.mu.Unlock()
}

// Score returns the reliability score for a vendor in a category. Cold
// start: when the sample count has not reached min_samples, the score falls
// back to the category-wide default while keeping the true (low) confidence.
func (s *Store) Score(vendorID, category string) domain.ReliabilityScore {
	snap := s.snap.Load()
	p, ok := snap.profiles[key{vendorID: vendorID, category: category}]
	confidence := 0.0
	if ok {
		confidence = s.confidence(p.SampleCount)
	}
	if !ok || confidence < s.cfg.Profiles.ConfidenceThreshold {
		def := s.cfg.Profiles.CategoryDefaults[category]
		return domain.ReliabilityScore{
			ExpectedDelayMinutes: def.ExpectedDelayMinutes,
			DelayVariance:        def.DelayVariance,
			Confidence:           confidence,
		}
	}
	return domain.ReliabilityScore{
		ExpectedDelayMinutes: p.MeanDelayMinutes,
		DelayVariance:        p.DelayVariance,
		Confidence:           confidence,
	}
}

// Get returns the raw stored profile, if any.
func (s *Store) Get(vendorID, category string) (domain.VendorPerformanceProfile, bool) {
	snap := s.snap.Load()
	p, ok := snap.profiles[key{vendorID: vendorID, category: category}]
	return p, ok
}

// Apply folds one observed finish delay into the rolling statistics with an
// exponentially weighted update, so recent weddings weigh more than old ones
// and no history replay is ever needed. The updated profile is published
// atomically and returned for persistence.
func (s *Store) Apply(vendorID, category string, delayMinutes float64, onTime bool, now time.Time) domain.VendorPerformanceProfile {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snap.Load()
	k := key{vendorID: vendorID, category: category}
	p, ok := cur.profiles[k]
	alpha := s.cfg.Profiles.EWMAAlpha
	onTimeObs := 0.0
	if onTime {
		onTimeObs = 1
	}
	if !ok {
		p = domain.VendorPerformanceProfile{
			VendorID:         vendorID,
			Category:         category,
			MeanDelayMinutes: delayMinutes,
			DelayVariance:    0,
			OnTimeRate:       onTimeObs,
			SampleCount:      1,
		}
	} else {
		diff := delayMinutes - p.MeanDelayMinutes
		incr := alpha * diff
		p.MeanDelayMinutes += incr
		p.DelayVariance = (1 - alpha) * (p.DelayVariance + diff*incr)
		p.OnTimeRate = (1-alpha)*p.OnTimeRate + alpha*onTimeObs
		p.SampleCount++
	}
	p.UpdatedAt = now.UTC().Format(time.RFC3339)

	next := make(map[key]domain.VendorPerformanceProfile, len(cur.profiles)+1)
	for kk, vv := range cur.profiles {
		next[kk] = vv
	}
	next[k] = p
	s.snap.Store(&snapshot{profiles: next})
	return p
}

func (s *Store) confidence(samples int) float64 {
	min := s.cfg.Profiles.MinSamples
	if samples >= min {
		return 1
	}
	return float64(samples) / float64(min)
}
