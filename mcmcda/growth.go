package mcmcda

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// FeatureProbFunc gives extra probabilities (appearance, size and so on) that candidate detection at time candidateTime
// continues the track, whose last known frame is t. They are folded into the motion probability by geometric mean.
type FeatureProbFunc[D any] func(track *Track[D], t int, candidate Ref[D], candidateTime int, bBar int) []float64

// GrowingProbabilities scores candidates seen d frames away from frame t of the track, given its estimated motion.
// Each candidate gets log of score / (score + clutter score), where score is isotropic Gaussian density
// around the predicted position.
func (p *Proposer[D]) GrowingProbabilities(track *Track[D], t int, candidates []Ref[D], motion Motion, d int) *ProbabilityMap[D] {
	sigma := p.growthSigma(d, motion)
	noise := distuv.Normal{Mu: 0, Sigma: sigma}
	logClutter := p.logClutterScore(noise)
	predicted := motion.Predict(d)

	scored := make([]Candidate[D], 0, len(candidates))
	for _, ref := range candidates {
		v := p.convert(ref.Det)
		score := noise.LogProb(predicted.X-v.X) + noise.LogProb(predicted.Y-v.Y)
		lp := score - floats.LogSumExp([]float64{score, logClutter})
		if p.featureProb != nil {
			fps := p.featureProb(track, t, ref, t+d, p.cfg.BBar)
			for _, fp := range fps {
				lp += math.Log(fp)
			}
			lp /= float64(1 + len(fps))
		}
		if math.IsNaN(lp) {
			lp = math.Inf(-1)
		}
		scored = append(scored, Candidate[D]{Ref: ref, LogProb: lp})
	}
	return newProbabilityMap(scored)
}

// growthSigma is the standard deviation of the position noise d frames away: the reach of v_bar is added
// when there is no velocity to predict with.
func (p *Proposer[D]) growthSigma(d int, motion Motion) float64 {
	variance := p.cfg.NoiseVariance
	if !motion.HasVelocity {
		dist := float64(absInt(d))
		variance += dist * dist * p.cfg.VBar * p.cfg.VBar
	}
	return math.Sqrt(variance)
}

// logClutterScore is configured clutter density or the density one standard deviation away on each axis
func (p *Proposer[D]) logClutterScore(noise distuv.Normal) float64 {
	if p.cfg.ClutterDensity > 0 {
		return math.Log(p.cfg.ClutterDensity)
	}
	return 2 * noise.LogProb(noise.Sigma)
}

// admissible reports whether the growth engine considers candidate at all
func (p *Proposer[D]) admissible(lp float64) bool {
	return math.Exp(lp) > p.cfg.MinAdmitProbability
}

// eligible returns candidates of the frame the growth engine draws coins for
func (p *Proposer[D]) eligible(probs *ProbabilityMap[D]) []Candidate[D] {
	eligible := make([]Candidate[D], 0, probs.Len())
	for _, cand := range probs.sorted {
		if p.admissible(cand.LogProb) {
			eligible = append(eligible, cand)
		}
	}
	return eligible
}

// chooseNothing returns log-probability that no eligible candidate is admitted
func (p *Proposer[D]) chooseNothing(probs *ProbabilityMap[D]) float64 {
	lp := 0.0
	for _, cand := range p.eligible(probs) {
		lp += log1mexp(cand.LogProb)
	}
	return lp
}

// edgeTime returns the frame growth continues from
func edgeTime[D any](track *Track[D], dir Direction) int {
	if dir == Forward {
		return track.EndTime()
	}
	return track.StartTime()
}

// horizon returns how many frames after (before) frame t growth may look at
func (p *Proposer[D]) horizon(w *Association[D], t int, dir Direction) int {
	if dir == Forward {
		return minInt(t+p.cfg.BBar, w.Data().Size()) - t
	}
	return t - maxInt(t-p.cfg.BBar, 1)
}

// frameProbabilities scores dead points of frame t against the state of the track at frame prev
func (p *Proposer[D]) frameProbabilities(track *Track[D], w *Association[D], prev, t int, dir Direction) *ProbabilityMap[D] {
	motion := p.est.estimate(track, prev, dir)
	return p.GrowingProbabilities(track, prev, w.DeadPointsAt(t), motion, t-prev)
}

// GrowTrackForward extends the track frame by frame after its end using dead points of w.
// In every frame each eligible candidate is admitted by an independent coin flip. When nothing is
// admitted growth stops with probability gamma. Growth never skips more than b_bar frames and stops at the horizon.
func (p *Proposer[D]) GrowTrackForward(track *Track[D], w *Association[D]) {
	p.growTrack(track, w, Forward)
}

// GrowTrackBackward is GrowTrackForward towards earlier frames
func (p *Proposer[D]) GrowTrackBackward(track *Track[D], w *Association[D]) {
	p.growTrack(track, w, Backward)
}

func (p *Proposer[D]) growTrack(track *Track[D], w *Association[D], dir Direction) {
	t := edgeTime(track, dir) + int(dir)
	for w.Data().InRange(t) {
		prev := edgeTime(track, dir)
		if absInt(t-prev) > p.cfg.BBar {
			break
		}
		probs := p.frameProbabilities(track, w, prev, t, dir)
		added := 0
		for _, cand := range p.eligible(probs) {
			if p.rng.Float64() < math.Exp(cand.LogProb) {
				track.Insert(cand.Ref)
				added++
			}
		}
		if added == 0 && p.rng.Float64() < p.cfg.Gamma {
			break
		}
		t += int(dir)
	}
}

// PGrowTrackForward returns log-probability that growing the part of the track up to frame t forward
// produces exactly the entries after t and then stops. Entries after t must be dead in w.
func (p *Proposer[D]) PGrowTrackForward(track *Track[D], w *Association[D], t int) float64 {
	return p.pGrowTrack(track, w, t, Forward)
}

// PGrowTrackBackward is PGrowTrackForward for entries before t
func (p *Proposer[D]) PGrowTrackBackward(track *Track[D], w *Association[D], t int) float64 {
	return p.pGrowTrack(track, w, t, Backward)
}

func (p *Proposer[D]) pGrowTrack(track *Track[D], w *Association[D], t int, dir Direction) float64 {
	if !track.Has(t) {
		return Impossible
	}
	beyond := make([]int, 0)
	times := track.Times()
	if dir == Forward {
		for _, tt := range times {
			if tt > t {
				beyond = append(beyond, tt)
			}
		}
	} else {
		for i := len(times) - 1; i >= 0; i-- {
			if times[i] < t {
				beyond = append(beyond, times[i])
			}
		}
	}
	if len(beyond) == 0 {
		return Impossible
	}

	logContinue := math.Log1p(-p.cfg.Gamma)
	lp := 0.0
	prev := t
	for _, next := range beyond {
		if absInt(next-prev) > p.cfg.BBar {
			return Impossible
		}
		for cur := prev + int(dir); cur != next; cur += int(dir) {
			lp += p.chooseNothing(p.frameProbabilities(track, w, prev, cur, dir)) + logContinue
		}
		admitted := track.At(next)
		probs := p.frameProbabilities(track, w, prev, next, dir)
		eligible := p.eligible(probs)
		chosen := make(map[RefKey]struct{}, len(admitted))
		for _, ref := range admitted {
			lpRef, ok := probs.LogProb(ref)
			if !ok || !p.admissible(lpRef) {
				p.logger.Warn("growth replay met detection the growth engine could not admit",
					"direction", dir, "time", ref.Time, "index", ref.Index, "candidate", ok)
				return Impossible
			}
			chosen[ref.Key()] = struct{}{}
		}
		for _, cand := range eligible {
			if _, ok := chosen[cand.Ref.Key()]; ok {
				lp += cand.LogProb
			} else {
				lp += log1mexp(cand.LogProb)
			}
		}
		prev = next
	}

	if !w.Data().InRange(prev + int(dir)) {
		return normalizeLogProb(lp)
	}

	// Stopping: gamma draw in one of the empty frames within reach, or running out of them
	logStop := math.Log(p.cfg.Gamma)
	K := p.horizon(w, prev, dir)
	ways := make([]float64, 0, K+1)
	acc := 0.0
	for k := 1; k <= K; k++ {
		nothing := p.chooseNothing(p.frameProbabilities(track, w, prev, prev+k*int(dir), dir))
		ways = append(ways, acc+nothing+logStop)
		acc += nothing + logContinue
	}
	ways = append(ways, acc)
	lp += logSumExp(ways)
	return normalizeLogProb(lp)
}

// logSumExp is floats.LogSumExp tolerating all-zero-probability input
func logSumExp(lps []float64) float64 {
	if len(lps) == 0 || floats.Max(lps) == math.Inf(-1) {
		return math.Inf(-1)
	}
	return floats.LogSumExp(lps)
}
