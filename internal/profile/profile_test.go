package profile_test

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"vowline/internal/config"
	"vowline/internal/domain"
	"vowline/internal/profile"
)

func newStore() *profile.Store {
	return profile.NewStore(config.Default("wedding-1"))
}

func now() time.Time {
	return time.Date(2025, 6, 16, 9, 0, 0, 0, time.UTC)
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestApplyFirstSampleInitializes(t *testing.T) {
	s := newStore()
	p := s.Apply("catering-co", "catering", 10, false, now())
	if p.MeanDelayMinutes != 10 || p.DelayVariance != 0 {
		t.Fatalf("profile = %+v", p)
	}
	if p.OnTimeRate != 0 || p.SampleCount != 1 {
		t.Fatalf("profile = %+v", p)
	}
}

func TestApplyExponentialWeighting(t *testing.T) {
	s := newStore()
	s.Apply("catering-co", "catering", 10, false, now())
	p := s.Apply("catering-co", "catering", 20, false, now())
	// alpha 0.3: mean 10 + 0.3*10 = 13, variance 0.7*(0 + 10*3) = 21
	if !approx(p.MeanDelayMinutes, 13) {
		t.Fatalf("mean = %v, want 13", p.MeanDelayMinutes)
	}
	if !approx(p.DelayVariance, 21) {
		t.Fatalf("variance = %v, want 21", p.DelayVariance)
	}
	if p.SampleCount != 2 {
		t.Fatalf("samples = %d", p.SampleCount)
	}
}

func TestApplyOnTimeRate(t *testing.T) {
	s := newStore()
	s.Apply("dj-co", "music", -5, true, now())
	p := s.Apply("dj-co", "music", 8, false, now())
	// 0.7*1 + 0.3*0
	if !approx(p.OnTimeRate, 0.7) {
		t.Fatalf("on-time rate = %v, want 0.7", p.OnTimeRate)
	}
}

func TestScoreColdStartFallsBackToCategoryDefault(t *testing.T) {
	s := newStore()
	s.Apply("new-caterer", "catering", 45, false, now())
	score := s.Score("new-caterer", "catering")
	// One sample of five needed: confidence 0.2, below the 0.6 threshold,
	// so the category default (12m) wins over the observed 45m outlier.
	if !approx(score.ExpectedDelayMinutes, 12) {
		t.Fatalf("expected delay = %v, want category default 12", score.ExpectedDelayMinutes)
	}
	if !approx(score.Confidence, 0.2) {
		t.Fatalf("confidence = %v, want 0.2", score.Confidence)
	}
}

func TestScoreUnknownVendorHasZeroConfidence(t *testing.T) {
	s := newStore()
	score := s.Score("ghost", "florals")
	if score.Confidence != 0 {
		t.Fatalf("confidence = %v", score.Confidence)
	}
	if !approx(score.ExpectedDelayMinutes, 8) {
		t.Fatalf("expected delay = %v, want florals default 8", score.ExpectedDelayMinutes)
	}
}

func TestScoreUsesOwnStatsOnceConfident(t *testing.T) {
	s := newStore()
	for i := 0; i < 5; i++ {
		s.Apply("catering-co", "catering", 30, false, now())
	}
	score := s.Score("catering-co", "catering")
	if score.Confidence != 1 {
		t.Fatalf("confidence = %v", score.Confidence)
	}
	if !approx(score.ExpectedDelayMinutes, 30) {
		t.Fatalf("expected delay = %v, want 30", score.ExpectedDelayMinutes)
	}
}

func TestLoadReplacesSnapshot(t *testing.T) {
	s := newStore()
	s.Load([]domain.VendorPerformanceProfile{{
		VendorID:         "catering-co",
		Category:         "catering",
		MeanDelayMinutes: 25,
		SampleCount:      9,
	}})
	score := s.Score("catering-co", "catering")
	if !approx(score.ExpectedDelayMinutes, 25) || score.Confidence != 1 {
		t.Fatalf("score = %+v", score)
	}
}

func TestUpdaterAppliesAndPersists(t *testing.T) {
	s := newStore()
	var (
		mu        sync.Mutex
		persisted []domain.VendorPerformanceProfile
	)
	u := profile.NewUpdater(s, func(ctx context.Context, p domain.VendorPerformanceProfile) error {
		mu.Lock()
		persisted = append(persisted, p)
		mu.Unlock()
		return nil
	})
	u.Now = now
	u.Start(context.Background())
	u.Enqueue(profile.Update{VendorID: "catering-co", Category: "catering", DelayMinutes: 15, OnTime: false})
	u.Enqueue(profile.Update{VendorID: "catering-co", Category: "catering", DelayMinutes: 5, OnTime: false})
	u.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(persisted) != 2 {
		t.Fatalf("persisted %d profiles, want 2", len(persisted))
	}
	p, ok := s.Get("catering-co", "catering")
	if !ok || p.SampleCount != 2 {
		t.Fatalf("stored profile = %+v", p)
	}
	// 15 then alpha-folded 5: 15 + 0.3*(5-15) = 12
	if !approx(p.MeanDelayMinutes, 12) {
		t.Fatalf("mean = %v, want 12", p.MeanDelayMinutes)
	}
}

func TestReadersSeeConsistentSnapshotDuringWrites(t *testing.T) {
	s := newStore()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			s.Apply("catering-co", "catering", float64(i%30), i%2 == 0, now())
		}
	}()
	for i := 0; i < 200; i++ {
		score := s.Score("catering-co", "catering")
		if score.ExpectedDelayMinutes < 0 {
			t.Fatalf("impossible score %+v", score)
		}
	}
	<-done
}
