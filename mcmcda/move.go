package mcmcda

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// Move is a kind of MCMCDA move
type Move uint16

const (
	MoveBirth = Move(iota)
	MoveDeath
	MoveExtension
	MoveReduction
	MoveSwitch
	MoveSecretion
	MoveAbsorption
	MoveSplit
	MoveMerge
	numMoves
)

func (m Move) String() string {
	switch m {
	case MoveBirth:
		return "birth"
	case MoveDeath:
		return "death"
	case MoveExtension:
		return "extension"
	case MoveReduction:
		return "reduction"
	case MoveSwitch:
		return "switch"
	case MoveSecretion:
		return "secretion"
	case MoveAbsorption:
		return "absorption"
	case MoveSplit:
		return "split"
	case MoveMerge:
		return "merge"
	default:
		return fmt.Sprintf("Move(%d)", uint16(m))
	}
}

// Reverse returns the move undoing m
func (m Move) Reverse() (Move, error) {
	switch m {
	case MoveBirth:
		return MoveDeath, nil
	case MoveDeath:
		return MoveBirth, nil
	case MoveExtension:
		return MoveReduction, nil
	case MoveReduction:
		return MoveExtension, nil
	case MoveSwitch:
		return MoveSwitch, nil
	case MoveSecretion:
		return MoveAbsorption, nil
	case MoveAbsorption:
		return MoveSecretion, nil
	case MoveSplit:
		return MoveMerge, nil
	case MoveMerge:
		return MoveSplit, nil
	default:
		return m, errors.Wrapf(ErrUnknownMove, "move %d", uint16(m))
	}
}

// MoveWeights is an unnormalized move distribution indexed by Move
type MoveWeights [numMoves]float64

// DefaultMoveWeights returns distribution for associations with two or more tracks.
// SPLIT and MERGE are available but disabled.
func DefaultMoveWeights() MoveWeights {
	var weights MoveWeights
	weights[MoveBirth] = 0.2
	weights[MoveDeath] = 0.1
	weights[MoveExtension] = 0.4
	weights[MoveReduction] = 0.1
	weights[MoveSwitch] = 0.05
	weights[MoveSecretion] = 0.1
	weights[MoveAbsorption] = 0.05
	return weights
}

// singleTrackMoveWeights is used when association holds exactly one track: no pairwise moves
func singleTrackMoveWeights() MoveWeights {
	var weights MoveWeights
	weights[MoveBirth] = 0.3
	weights[MoveDeath] = 0.1
	weights[MoveExtension] = 0.4
	weights[MoveReduction] = 0.1
	weights[MoveSecretion] = 0.1
	return weights
}

// emptyMoveWeights is used for empty association: only BIRTH makes sense
func emptyMoveWeights() MoveWeights {
	var weights MoveWeights
	weights[MoveBirth] = 1.0
	return weights
}

func (weights MoveWeights) validate() error {
	for m, wgt := range weights {
		if wgt < 0 || math.IsNaN(wgt) || math.IsInf(wgt, 0) {
			return errors.Wrapf(ErrInvalidConfig, "weight of %s must be finite and not negative, got %v", Move(m), wgt)
		}
	}
	if floats.Sum(weights[:]) <= 0 {
		return errors.Wrap(ErrInvalidConfig, "move weights must not all be zero")
	}
	return nil
}

// logPdf returns normalized log-probabilities
func (weights MoveWeights) logPdf() [numMoves]float64 {
	var lps [numMoves]float64
	total := floats.Sum(weights[:])
	for m, wgt := range weights {
		if wgt == 0 {
			lps[m] = Impossible
			continue
		}
		lps[m] = math.Log(wgt / total)
	}
	return lps
}

// moveDistribution holds move distributions keyed by min(number of tracks, 2)
type moveDistribution struct {
	weights [3]MoveWeights
	logPdfs [3][numMoves]float64
}

func newMoveDistribution(weights MoveWeights) *moveDistribution {
	dist := &moveDistribution{
		weights: [3]MoveWeights{emptyMoveWeights(), singleTrackMoveWeights(), weights},
	}
	for i := range dist.weights {
		dist.logPdfs[i] = dist.weights[i].logPdf()
	}
	return dist
}

func distributionKey(numTracks int) int {
	return minInt(numTracks, 2)
}

// SampleMove draws a move from the distribution conditioned on the number of tracks in w
func (p *Proposer[D]) SampleMove(w *Association[D]) Move {
	weights := p.moves.weights[distributionKey(w.Len())]
	categorical := distuv.NewCategorical(weights[:], p.rng)
	return Move(categorical.Rand())
}

// MoveLogPdf returns log-probability of selecting move m for association w
func (p *Proposer[D]) MoveLogPdf(m Move, w *Association[D]) (float64, error) {
	if m >= numMoves {
		return Impossible, errors.Wrapf(ErrUnknownMove, "move %d", uint16(m))
	}
	return p.moves.logPdfs[distributionKey(w.Len())][m], nil
}
