package mcmcda

import (
	"log/slog"
	"math"
	"math/rand/v2"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/distuv"
)

// LogPosteriorFunc returns unnormalized log-posterior (prior plus likelihood) of an association
type LogPosteriorFunc[D any] func(w *Association[D]) float64

// GibbsProposer resamples the assignment of one detection at a time from its full conditional.
// The detection may be noise, start a track of its own or join any track it stays motion-feasible with.
// It is not safe for concurrent use.
type GibbsProposer[D any] struct {
	cfg          Config
	convert      ConvertFunc[D]
	logPosterior LogPosteriorFunc[D]
	rng          *rand.Rand
	logger       *slog.Logger
}

// NewGibbsProposer creates Gibbs proposer. Only v_bar, d_bar, noise variance, random source and logger
// options matter to it.
func NewGibbsProposer[D any](convert ConvertFunc[D], logPosterior LogPosteriorFunc[D], opts ...Option) (*GibbsProposer[D], error) {
	if convert == nil || logPosterior == nil {
		return nil, errors.Wrap(ErrInvalidConfig, "convert and log-posterior functions are required")
	}
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &GibbsProposer[D]{
		cfg:          *cfg,
		convert:      convert,
		logPosterior: logPosterior,
		rng:          cfg.Rand,
		logger:       cfg.Logger,
	}, nil
}

// GibbsResult is outcome of resampling one detection
type GibbsResult[D any] struct {
	Assoc *Association[D]
	Diff  Diff
	// The resampled detection
	Variable Ref[D]
	// Hypotheses are numbered: 0 is noise, 1 is a new track, then tracks the detection joins in canonical order
	Choice        int
	NumHypotheses int
	// Unnormalized log-posterior of Assoc
	LogDensity float64
	// Log-probability of Choice among the hypotheses
	LogProb float64
}

// Dimension returns number of Gibbs variables: one per detection
func (g *GibbsProposer[D]) Dimension(w *Association[D]) int {
	return w.Data().Total()
}

// variableRef maps variable index onto detection: frames in time order, detections in index order
func variableRef[D any](data *Data[D], v int) (Ref[D], bool) {
	if v < 0 {
		return Ref[D]{}, false
	}
	for t := 1; t <= data.Size(); t++ {
		n := data.NumDetections(t)
		if v < n {
			return data.Ref(t, v), true
		}
		v -= n
	}
	return Ref[D]{}, false
}

// hypotheses returns every association differing from w only in the assignment of ref.
// The first one has ref dead, the second one holds it as a single-detection track.
func (g *GibbsProposer[D]) hypotheses(w *Association[D], ref Ref[D]) []*Association[D] {
	base := w.Clone()
	if owner := w.claimedBy(ref); owner != nil {
		base.Remove(owner)
		rest := owner.Clone()
		rest.Erase(ref)
		if !rest.Empty() {
			base.Insert(rest)
		}
	}
	alone := base.Clone()
	alone.Insert(NewTrackFrom(ref))
	hypotheses := []*Association[D]{base, alone}
	for _, track := range base.tracks {
		joined := track.Clone()
		joined.Insert(ref)
		if !joined.IsValid(g.cfg.VBar, g.cfg.DBar, g.cfg.NoiseVariance, g.convert) {
			continue
		}
		hw := base.Clone()
		hw.Remove(track)
		hw.Insert(joined)
		hypotheses = append(hypotheses, hw)
	}
	return hypotheses
}

// Propose resamples variable v, see Dimension. The given association is never modified.
func (g *GibbsProposer[D]) Propose(w *Association[D], v int) (GibbsResult[D], error) {
	ref, ok := variableRef(w.Data(), v)
	if !ok {
		return GibbsResult[D]{}, errors.Wrapf(ErrUnknownDetection, "variable %d out of %d", v, w.Data().Total())
	}
	hypotheses := g.hypotheses(w, ref)
	densities := make([]float64, len(hypotheses))
	for i, hw := range hypotheses {
		densities[i] = g.logPosterior(hw)
		if math.IsNaN(densities[i]) {
			densities[i] = math.Inf(-1)
		}
	}
	lse := logSumExp(densities)
	if math.IsInf(lse, -1) {
		return GibbsResult[D]{}, errors.Wrapf(ErrNoFeasibleMove, "every assignment of detection (t=%d, i=%d) has zero posterior", ref.Time, ref.Index)
	}
	weights := make([]float64, len(densities))
	for i, density := range densities {
		weights[i] = math.Exp(density - lse)
	}
	choice := int(distuv.NewCategorical(weights, g.rng).Rand())
	wp := hypotheses[choice]
	g.logger.Debug("detection resampled", "time", ref.Time, "index", ref.Index, "choice", choice, "hypotheses", len(hypotheses))
	return GibbsResult[D]{
		Assoc:         wp,
		Diff:          DiffAssociations(w, wp),
		Variable:      ref,
		Choice:        choice,
		NumHypotheses: len(hypotheses),
		LogDensity:    densities[choice],
		LogProb:       densities[choice] - lse,
	}, nil
}

// Sweep resamples every variable once in order and returns the final association
func (g *GibbsProposer[D]) Sweep(w *Association[D]) (*Association[D], error) {
	for v := 0; v < g.Dimension(w); v++ {
		result, err := g.Propose(w, v)
		if err != nil {
			return nil, err
		}
		w = result.Assoc
	}
	return w, nil
}
