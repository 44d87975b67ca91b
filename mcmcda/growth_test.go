package mcmcda

import (
	"math"
	"math/rand/v2"
	"testing"
)

func TestGrowthDeterministicWithoutNoise(t *testing.T) {
	data := NewData(straightLines(10, []Point{{X: 0, Y: 0}}, []Point{{X: 1, Y: 0.5}}))
	p := newTestProposer(t,
		WithNoiseVariance(1e-6),
		WithClutterDensity(1e-3),
		WithMaxGrowthSkip(4),
	)
	w := NewAssociation(data)
	for i := 0; i < 20; i++ {
		track := trackOf(data, 0, 1, 2)
		p.GrowTrackForward(track, w)
		if track.RealSize() != 10 {
			t.Fatalf("Iteration %d: growth should admit every detection on the line, got times %v", i, track.Times())
		}
	}
	full := trackOf(data, 0, 1, 10)
	lp := p.PGrowTrackForward(full, w, 2)
	if IsImpossible(lp) || lp > 0 || lp < -1e-6 {
		t.Errorf("Wrong answer: %v, correct answer: 0", lp)
	}
	back := p.PGrowTrackBackward(full, w, 9)
	if IsImpossible(back) || back > 0 || back < -1e-6 {
		t.Errorf("Wrong answer for backward growth: %v, correct answer: 0", back)
	}
}

// growthScene has two close parallel targets, so growth may take either of them, and a distant one
func growthScene() *Data[Point] {
	return NewData(straightLines(6,
		[]Point{{X: 0, Y: 0}, {X: 0, Y: 3}, {X: 40, Y: 0}},
		[]Point{{X: 1, Y: 0}, {X: 1, Y: 0}, {X: -1, Y: 1}},
	))
}

func TestGrowthReplayMatchesEngine(t *testing.T) {
	data := growthScene()
	w := NewAssociation(data)
	for _, dir := range []Direction{Forward, Backward} {
		p := newTestProposer(t, WithGamma(0.3), WithRand(rand.New(rand.NewPCG(7, uint64(dir+2)))))
		start := data.Ref(1, 0)
		if dir == Backward {
			start = data.Ref(data.Size(), 0)
		}
		n := 30000
		counts := make(map[string]int)
		logProbs := make(map[string]float64)
		for i := 0; i < n; i++ {
			track := NewTrackFrom(start)
			if dir == Forward {
				p.GrowTrackForward(track, w)
			} else {
				p.GrowTrackBackward(track, w)
			}
			if track.Len() == 1 {
				continue
			}
			key := trackKey(track)
			counts[key]++
			if _, ok := logProbs[key]; ok {
				continue
			}
			if dir == Forward {
				logProbs[key] = p.PGrowTrackForward(track, w, start.Time)
			} else {
				logProbs[key] = p.PGrowTrackBackward(track, w, start.Time)
			}
			if logProbs[key] > 0 {
				t.Errorf("Direction %s: log-probability of %s must not be positive, got %v", dir, key, logProbs[key])
			}
		}
		if checked := checkFrequencies(t, counts, logProbs, n); checked < 2 {
			t.Errorf("Direction %s: too few frequent outcomes to compare: %d", dir, checked)
		}
	}
}

func TestGrowthReplayImpossible(t *testing.T) {
	data := NewData(straightLines(5, []Point{{X: 0, Y: 0}}, []Point{{X: 1, Y: 0}}))
	p := newTestProposer(t)
	w := NewAssociation(data)
	track := trackOf(data, 0, 2, 4)
	if !IsImpossible(p.PGrowTrackForward(track, w, 1)) {
		t.Errorf("Growth can't start from unoccupied frame")
	}
	if !IsImpossible(p.PGrowTrackForward(track, w, 4)) {
		t.Errorf("Growth which admitted nothing is not a growth")
	}
	if !IsImpossible(p.PGrowTrackBackward(track, w, 2)) {
		t.Errorf("Backward growth which admitted nothing is not a growth")
	}
}

func TestGrowingProbabilities(t *testing.T) {
	data := NewData([][]Point{
		{{X: 0, Y: 0}},
		{{X: 1, Y: 0}},
		{{X: 2, Y: 0}, {X: 2, Y: 3}, {X: 30, Y: 30}},
	})
	p := newTestProposer(t, WithMaxGrowthSkip(4))
	track := trackOf(data, 0, 1, 2)
	motion := p.TrackFuture(track, 2)
	if !motion.HasVelocity {
		t.Fatalf("Velocity is expected")
	}
	probs := p.GrowingProbabilities(track, 2, data.Refs(3), motion, 1)
	if probs.Len() != 3 {
		t.Fatalf("Wrong number of candidates: %d, expected 3", probs.Len())
	}
	if probs.At(0).Ref.Index != 0 || probs.At(1).Ref.Index != 1 || probs.At(2).Ref.Index != 2 {
		t.Errorf("Candidates should be ordered by closeness to prediction: %v", probs.Candidates())
	}
	for i := 0; i < probs.Len(); i++ {
		cand := probs.At(i)
		lp, ok := probs.LogProb(cand.Ref)
		if !ok || lp != cand.LogProb {
			t.Errorf("Lookup disagrees with ordering for %v", cand.Ref)
		}
		if lp > 0 {
			t.Errorf("Log-probability must not be positive, got %v", lp)
		}
	}
	// Exactly at prediction: score is one unit above the clutter score
	correctAnswer := -math.Log1p(math.Exp(-1))
	if math.Abs(probs.At(0).LogProb-correctAnswer) > eps {
		t.Errorf("Wrong answer: %v, correct answer: %v", probs.At(0).LogProb, correctAnswer)
	}
	if probs.Has(data.Ref(2, 0)) {
		t.Errorf("Detection of other frame is not a candidate")
	}

	p.SetFeatureProb(func(track *Track[Point], t int, candidate Ref[Point], candidateTime int, bBar int) []float64 {
		return []float64{1.0}
	})
	folded := p.GrowingProbabilities(track, 2, data.Refs(3), motion, 1)
	if math.Abs(folded.At(0).LogProb-correctAnswer/2) > eps {
		t.Errorf("Wrong answer with features: %v, correct answer: %v", folded.At(0).LogProb, correctAnswer/2)
	}
}
