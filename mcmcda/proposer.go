package mcmcda

import (
	"log/slog"
	"math/rand/v2"

	"github.com/pkg/errors"
)

// Proposer generates MCMCDA moves over associations of detections of type D.
// It is not safe for concurrent use: it owns a random source. Run one proposer per chain.
type Proposer[D any] struct {
	cfg         Config
	convert     ConvertFunc[D]
	average     AverageFunc[D]
	featureProb FeatureProbFunc[D]
	est         *motionEstimator[D]
	moves       *moveDistribution
	rng         *rand.Rand
	logger      *slog.Logger
}

// NewProposer creates proposer. convert maps a detection onto the plane and average reduces
// several detections of one frame to a single one.
func NewProposer[D any](convert ConvertFunc[D], average AverageFunc[D], opts ...Option) (*Proposer[D], error) {
	if convert == nil || average == nil {
		return nil, errors.Wrap(ErrInvalidConfig, "convert and average functions are required")
	}
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Proposer[D]{
		cfg:     *cfg,
		convert: convert,
		average: average,
		est: &motionEstimator[D]{
			model:         cfg.MotionModel,
			bBar:          cfg.BBar,
			vBar:          cfg.VBar,
			noiseVariance: cfg.NoiseVariance,
			convert:       convert,
			average:       average,
		},
		moves:  newMoveDistribution(cfg.MoveWeights),
		rng:    cfg.Rand,
		logger: cfg.Logger,
	}, nil
}

// SetFeatureProb sets (or clears with nil) callback giving extra probabilities of growth candidates
func (p *Proposer[D]) SetFeatureProb(featureProb FeatureProbFunc[D]) {
	p.featureProb = featureProb
}

// Config returns copy of proposer configuration
func (p *Proposer[D]) Config() Config {
	return p.cfg
}

// TrackFuture estimates position and velocity of the track at occupied frame t looking at history up to t.
// Negative t means the end of the track.
func (p *Proposer[D]) TrackFuture(track *Track[D], t int) Motion {
	if t < 0 {
		t = track.EndTime()
	}
	return p.est.estimate(track, t, Forward)
}

// TrackPast estimates position and velocity (pointing back in time) of the track at occupied frame t
// looking at history from t on. Negative t means the start of the track.
func (p *Proposer[D]) TrackPast(track *Track[D], t int) Motion {
	if t < 0 {
		t = track.StartTime()
	}
	return p.est.estimate(track, t, Backward)
}

func (p *Proposer[D]) isValidTrack(track *Track[D]) bool {
	return track.IsValid(p.cfg.VBar, p.cfg.DBar, p.cfg.NoiseVariance, p.convert)
}

// Result is outcome of one Metropolis-Hastings proposal
type Result[D any] struct {
	// Log-probability of proposing Assoc from the original association, including move selection
	Forward float64
	// Log-probability of proposing the original association back from Assoc, including move selection
	Reverse float64
	// Move label, "association-<move>"
	Name  string
	Move  Move
	Assoc *Association[D]
	Diff  Diff
	// Number of sampled moves until a feasible one was found
	Attempts int
}

// Propose samples moves until one is feasible both ways, and returns new association together with forward
// and reverse log-probabilities. The given association is never modified.
// After Config.MaxAttempts infeasible moves ErrNoFeasibleMove is returned.
func (p *Proposer[D]) Propose(w *Association[D]) (Result[D], error) {
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		m := p.SampleMove(w)
		proposal, err := p.ProposeMove(m, w)
		if err != nil {
			return Result[D]{}, errors.Wrapf(err, "can't propose %s", m)
		}
		if IsImpossible(proposal.LogProb) {
			p.logger.Debug("move is impossible", "move", m, "attempt", attempt)
			continue
		}
		reverseMove, err := m.Reverse()
		if err != nil {
			return Result[D]{}, err
		}
		rev, err := p.P(proposal.Reverse, proposal.Assoc, w)
		if err != nil {
			return Result[D]{}, errors.Wrapf(err, "can't evaluate reverse of %s", m)
		}
		if IsImpossible(rev) {
			p.logger.Debug("reverse move is impossible", "move", m, "reverse", reverseMove, "attempt", attempt)
			continue
		}
		fwdPdf, err := p.MoveLogPdf(m, w)
		if err != nil {
			return Result[D]{}, err
		}
		revPdf, err := p.MoveLogPdf(reverseMove, proposal.Assoc)
		if err != nil {
			return Result[D]{}, err
		}
		fwd := proposal.LogProb + fwdPdf
		rev += revPdf
		if IsImpossible(fwd) || IsImpossible(rev) {
			p.logger.Debug("move selection is impossible", "move", m, "reverse", reverseMove, "attempt", attempt)
			continue
		}
		return Result[D]{
			Forward:  fwd,
			Reverse:  rev,
			Name:     "association-" + m.String(),
			Move:     m,
			Assoc:    proposal.Assoc,
			Diff:     proposal.Diff,
			Attempts: attempt,
		}, nil
	}
	p.logger.Warn("no feasible move found", "attempts", p.cfg.MaxAttempts, "tracks", w.Len())
	return Result[D]{}, errors.Wrapf(ErrNoFeasibleMove, "after %d attempts", p.cfg.MaxAttempts)
}
