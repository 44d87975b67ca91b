package mcmcda

import (
	"github.com/pkg/errors"
)

var (
	// ErrTooFewTracks is returned when a move is requested on an association without enough tracks to act on
	ErrTooFewTracks = errors.New("mcmcda: too few tracks for move")
	// ErrUnknownMove is returned for move identifiers outside of the known set
	ErrUnknownMove = errors.New("mcmcda: unknown move")
	// ErrNoFeasibleMove is returned when proposal loop runs out of attempts
	ErrNoFeasibleMove = errors.New("mcmcda: no feasible move found")
	// ErrInvalidConfig is returned by Config.Validate
	ErrInvalidConfig = errors.New("mcmcda: invalid configuration")
	// ErrUnknownDetection is returned for Gibbs variables outside of the detection store
	ErrUnknownDetection = errors.New("mcmcda: unknown detection")
	// ErrMalformedAssociation is returned when association text can't be parsed
	ErrMalformedAssociation = errors.New("mcmcda: malformed association")
)
