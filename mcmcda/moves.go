package mcmcda

import (
	"math"
	"slices"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Bookkeeping is what a move records about itself so that its log-probability can be recomputed
// later without re-deriving it. Each move has its own kind of bookkeeping (BirthInfo, DeathInfo and so on).
type Bookkeeping interface {
	Move() Move
}

// Proposal is outcome of a single move.
// Assoc is nil and LogProb is Impossible when the move can't be applied.
type Proposal[D any] struct {
	Move    Move
	Assoc   *Association[D]
	Diff    Diff
	LogProb float64
	// Bookkeeping of the move itself
	Info Bookkeeping
	// Bookkeeping of the move which would undo this one, valid for (Assoc -> original association)
	Reverse Bookkeeping
}

func impossibleProposal[D any](m Move) Proposal[D] {
	return Proposal[D]{
		Move:    m,
		LogProb: Impossible,
	}
}

// BirthInfo remembers the track created by BIRTH
type BirthInfo[D any] struct {
	NewTrack *Track[D]
}

func (BirthInfo[D]) Move() Move { return MoveBirth }

// DeathInfo remembers number of tracks DEATH picked from
type DeathInfo struct {
	NumTracks int
}

func (DeathInfo) Move() Move { return MoveDeath }

// ExtensionInfo remembers the extended track, the direction and the frame growth started from
type ExtensionInfo[D any] struct {
	NumTracks     int
	ExtendedTrack *Track[D]
	Direction     Direction
	PreviousEnd   int
}

func (ExtensionInfo[D]) Move() Move { return MoveExtension }

// ReductionInfo remembers number of tracks, real size of reduced track and the rank (1-based) of the cut frame
type ReductionInfo struct {
	NumTracks        int
	ReducedTrackSize int
	CutRank          int
}

func (ReductionInfo) Move() Move { return MoveReduction }

// SwitchInfo remembers number of switch points
type SwitchInfo struct {
	NumSwitchPoints int
}

func (SwitchInfo) Move() Move { return MoveSwitch }

// P computes log-probability of the move described by info turning w into wp
func (p *Proposer[D]) P(info Bookkeeping, w, wp *Association[D]) (float64, error) {
	switch info := info.(type) {
	case BirthInfo[D]:
		return p.PBirth(w, wp, info), nil
	case DeathInfo:
		return p.PDeath(w, wp, info), nil
	case ExtensionInfo[D]:
		return p.PExtension(w, wp, info), nil
	case ReductionInfo:
		return p.PReduction(w, wp, info), nil
	case SwitchInfo:
		return p.PSwitch(w, wp, info), nil
	case SecretionInfo[D]:
		return p.PSecretion(w, wp, info), nil
	case AbsorptionInfo:
		return p.PAbsorption(w, wp, info), nil
	case SplitInfo:
		return p.PSplit(w, wp, info), nil
	case MergeInfo:
		return p.PMerge(w, wp, info), nil
	case nil:
		return Impossible, errors.Wrap(ErrUnknownMove, "no bookkeeping")
	default:
		return Impossible, errors.Wrapf(ErrUnknownMove, "bookkeeping of type %T", info)
	}
}

// ProposeMove applies move m to a copy of w
func (p *Proposer[D]) ProposeMove(m Move, w *Association[D]) (Proposal[D], error) {
	switch m {
	case MoveBirth:
		return p.ProposeBirth(w), nil
	case MoveDeath:
		return p.ProposeDeath(w)
	case MoveExtension:
		return p.ProposeExtension(w)
	case MoveReduction:
		return p.ProposeReduction(w)
	case MoveSwitch:
		return p.ProposeSwitch(w), nil
	case MoveSecretion:
		return p.ProposeSecretion(w)
	case MoveAbsorption:
		return p.ProposeAbsorption(w)
	case MoveSplit:
		return p.ProposeSplit(w)
	case MoveMerge:
		return p.ProposeMerge(w)
	default:
		return impossibleProposal[D](m), errors.Wrapf(ErrUnknownMove, "move %d", uint16(m))
	}
}

// ProposeBirth picks a frame uniformly, a dead point of that frame uniformly and grows a new track forward from it.
// Impossible when the frame has no dead points or nothing was grown.
func (p *Proposer[D]) ProposeBirth(w *Association[D]) Proposal[D] {
	T := w.Data().Size()
	if T == 0 {
		return impossibleProposal[D](MoveBirth)
	}
	t1 := 1 + p.rng.IntN(T)
	dead := w.DeadPointsAt(t1)
	if len(dead) == 0 {
		return impossibleProposal[D](MoveBirth)
	}
	track := NewTrackFrom(dead[p.rng.IntN(len(dead))])
	p.GrowTrackForward(track, w)
	if track.RealSize() == 1 {
		return impossibleProposal[D](MoveBirth)
	}

	wp := w.Clone()
	wp.Insert(track)
	info := BirthInfo[D]{NewTrack: track}
	return Proposal[D]{
		Move:  MoveBirth,
		Assoc: wp,
		Diff: Diff{
			Added: []Change{{TrackID: track.ID(), Start: track.StartTime(), End: track.EndTime()}},
		},
		LogProb: p.PBirth(w, wp, info),
		Info:    info,
		Reverse: DeathInfo{NumTracks: wp.Len()},
	}
}

// PBirth is log-probability of BIRTH creating info.NewTrack on top of w
func (p *Proposer[D]) PBirth(w, wp *Association[D], info BirthInfo[D]) float64 {
	track := info.NewTrack
	if track == nil || track.Empty() {
		return Impossible
	}
	t1 := track.StartTime()
	// Birth starts from exactly one detection
	if track.Count(t1) != 1 {
		return Impossible
	}
	numDead := w.CountDeadPointsAt(t1)
	if numDead == 0 {
		return Impossible
	}
	lp := -math.Log(float64(w.Data().Size())) - math.Log(float64(numDead))
	return normalizeLogProb(lp + p.PGrowTrackForward(track, w, t1))
}

// ProposeDeath removes a track chosen uniformly
func (p *Proposer[D]) ProposeDeath(w *Association[D]) (Proposal[D], error) {
	if w.Empty() {
		return impossibleProposal[D](MoveDeath), errors.Wrap(ErrTooFewTracks, "death needs at least one track")
	}
	track := w.Track(p.rng.IntN(w.Len()))
	wp := w.Clone()
	wp.Remove(track)
	info := DeathInfo{NumTracks: w.Len()}
	return Proposal[D]{
		Move:    MoveDeath,
		Assoc:   wp,
		Diff:    Diff{Removed: []uuid.UUID{track.ID()}},
		LogProb: p.PDeath(w, wp, info),
		Info:    info,
		Reverse: BirthInfo[D]{NewTrack: track},
	}, nil
}

// PDeath is log-probability of DEATH picking one of info.NumTracks tracks
func (p *Proposer[D]) PDeath(w, wp *Association[D], info DeathInfo) float64 {
	if info.NumTracks <= 0 {
		return Impossible
	}
	return -math.Log(float64(info.NumTracks))
}

// ProposeExtension picks a track uniformly, a direction by a fair coin and grows the track that way.
// Impossible when nothing was grown.
func (p *Proposer[D]) ProposeExtension(w *Association[D]) (Proposal[D], error) {
	if w.Empty() {
		return impossibleProposal[D](MoveExtension), errors.Wrap(ErrTooFewTracks, "extension needs at least one track")
	}
	orig := w.Track(p.rng.IntN(w.Len()))
	extended := orig.Clone()
	dir := Forward
	if p.rng.Float64() >= 0.5 {
		dir = Backward
	}
	prevEnd := edgeTime(orig, dir)
	if dir == Forward {
		p.GrowTrackForward(extended, w)
	} else {
		p.GrowTrackBackward(extended, w)
	}
	if extended.Len() == orig.Len() {
		return impossibleProposal[D](MoveExtension), nil
	}

	wp := w.Clone()
	wp.Remove(orig)
	wp.Insert(extended)
	info := ExtensionInfo[D]{
		NumTracks:     w.Len(),
		ExtendedTrack: extended,
		Direction:     dir,
		PreviousEnd:   prevEnd,
	}
	changed := Change{TrackID: extended.ID(), Start: prevEnd, End: extended.EndTime()}
	if dir == Backward {
		changed = Change{TrackID: extended.ID(), Start: extended.StartTime(), End: prevEnd}
	}
	return Proposal[D]{
		Move:  MoveExtension,
		Assoc: wp,
		Diff: Diff{
			Removed: []uuid.UUID{orig.ID()},
			Added:   []Change{changed},
		},
		LogProb: p.PExtension(w, wp, info),
		Info:    info,
		Reverse: ReductionInfo{
			NumTracks:        wp.Len(),
			ReducedTrackSize: extended.RealSize(),
			CutRank:          slices.Index(extended.Times(), prevEnd) + 1,
		},
	}, nil
}

// PExtension is log-probability of EXTENSION growing the track from info.PreviousEnd into info.ExtendedTrack
func (p *Proposer[D]) PExtension(w, wp *Association[D], info ExtensionInfo[D]) float64 {
	if info.NumTracks <= 0 || info.ExtendedTrack == nil {
		return Impossible
	}
	lp := -math.Log(2 * float64(info.NumTracks))
	return normalizeLogProb(lp + p.pGrowTrack(info.ExtendedTrack, w, info.PreviousEnd, info.Direction))
}

// ProposeReduction picks a track uniformly, an interior frame uniformly and drops everything after
// (or before, by a fair coin) it. Tracks of real size two or less can't be reduced.
func (p *Proposer[D]) ProposeReduction(w *Association[D]) (Proposal[D], error) {
	if w.Empty() {
		return impossibleProposal[D](MoveReduction), errors.Wrap(ErrTooFewTracks, "reduction needs at least one track")
	}
	orig := w.Track(p.rng.IntN(w.Len()))
	rtsz := orig.RealSize()
	if rtsz <= 2 {
		return impossibleProposal[D](MoveReduction), nil
	}
	n := 2 + p.rng.IntN(rtsz-2)
	t := orig.NthTime(n)
	reduced := orig.Clone()
	dir := Forward
	if p.rng.Float64() < 0.5 {
		reduced.EraseAfter(t)
	} else {
		reduced.EraseBefore(t)
		dir = Backward
	}

	wp := w.Clone()
	wp.Remove(orig)
	wp.Insert(reduced)
	info := ReductionInfo{NumTracks: w.Len(), ReducedTrackSize: rtsz, CutRank: n}
	return Proposal[D]{
		Move:  MoveReduction,
		Assoc: wp,
		Diff: Diff{
			Removed: []uuid.UUID{orig.ID()},
			Added:   []Change{{TrackID: reduced.ID(), Start: reduced.StartTime(), End: reduced.EndTime()}},
		},
		LogProb: p.PReduction(w, wp, info),
		Info:    info,
		Reverse: ExtensionInfo[D]{
			NumTracks:     wp.Len(),
			ExtendedTrack: orig,
			Direction:     dir,
			PreviousEnd:   t,
		},
	}, nil
}

// PReduction is log-probability of REDUCTION cutting a track of real size info.ReducedTrackSize at its info.CutRank-th frame
func (p *Proposer[D]) PReduction(w, wp *Association[D], info ReductionInfo) float64 {
	rtsz := info.ReducedTrackSize
	if info.NumTracks <= 0 || rtsz <= 2 || info.CutRank < 2 || info.CutRank > rtsz-1 {
		return Impossible
	}
	return math.Log(0.5 / (float64(info.NumTracks) * float64(rtsz-2)))
}

// switchPoint is a pair of tracks with frames t1 and t2 after which their tails can be exchanged
type switchPoint[D any] struct {
	first  *Track[D]
	second *Track[D]
	t1     int
	t2     int
}

// switchPoints enumerates motion-feasible tail exchanges. Frames t1 of the first track and t2 of the second
// qualify when the next frame of each comes after the other's frame and the last detection at t1 (t2)
// is a neighbor of the first detection following t2 (t1).
func (p *Proposer[D]) switchPoints(w *Association[D]) []switchPoint[D] {
	points := make([]switchPoint[D], 0)
	for i := 0; i < w.Len(); i++ {
		a := w.Track(i)
		for j := i + 1; j < w.Len(); j++ {
			b := w.Track(j)
			for _, t1 := range a.Times() {
				ia := a.upperBound(t1)
				if ia == a.Len() {
					break
				}
				p1, q1 := a.entries[ia-1], a.entries[ia]
				for _, t2 := range b.Times() {
					ib := b.upperBound(t2)
					if ib == b.Len() {
						break
					}
					p2, q2 := b.entries[ib-1], b.entries[ib]
					if q1.Time <= t2 || q2.Time <= t1 {
						continue
					}
					if !isNeighbor(p.convert(p1.Det), p.convert(q2.Det), q2.Time-t1, p.cfg.DBar, p.cfg.VBar, p.cfg.NoiseVariance) {
						continue
					}
					if !isNeighbor(p.convert(p2.Det), p.convert(q1.Det), q1.Time-t2, p.cfg.DBar, p.cfg.VBar, p.cfg.NoiseVariance) {
						continue
					}
					points = append(points, switchPoint[D]{first: a, second: b, t1: t1, t2: t2})
				}
			}
		}
	}
	return points
}

// CountSwitchPoints returns number of ways SWITCH can act on w
func (p *Proposer[D]) CountSwitchPoints(w *Association[D]) int {
	return len(p.switchPoints(w))
}

// swapTails returns a[<=t1] + b[>t2] and b[<=t2] + a[>t1]
func swapTails[D any](a, b *Track[D], t1, t2 int) (*Track[D], *Track[D]) {
	ia, ib := a.upperBound(t1), b.upperBound(t2)
	first := NewTrackFrom(a.entries[:ia]...)
	first.InsertAll(b.entries[ib:])
	second := NewTrackFrom(b.entries[:ib]...)
	second.InsertAll(a.entries[ia:])
	return first, second
}

// ProposeSwitch exchanges tails of two tracks at a switch point chosen uniformly
func (p *Proposer[D]) ProposeSwitch(w *Association[D]) Proposal[D] {
	points := p.switchPoints(w)
	if len(points) == 0 {
		return impossibleProposal[D](MoveSwitch)
	}
	sp := points[p.rng.IntN(len(points))]
	first, second := swapTails(sp.first, sp.second, sp.t1, sp.t2)

	wp := w.Clone()
	wp.Remove(sp.first)
	wp.Remove(sp.second)
	wp.Insert(first)
	wp.Insert(second)

	// The same exchange must be available from the new association
	reversePoints := p.switchPoints(wp)
	reversible := slices.ContainsFunc(reversePoints, func(rp switchPoint[D]) bool {
		return (rp.first == first && rp.second == second && rp.t1 == sp.t1 && rp.t2 == sp.t2) ||
			(rp.first == second && rp.second == first && rp.t1 == sp.t2 && rp.t2 == sp.t1)
	})
	reverse := SwitchInfo{NumSwitchPoints: len(reversePoints)}
	if !reversible {
		reverse.NumSwitchPoints = 0
	}
	info := SwitchInfo{NumSwitchPoints: len(points)}
	return Proposal[D]{
		Move:  MoveSwitch,
		Assoc: wp,
		Diff: Diff{
			Removed: []uuid.UUID{sp.first.ID(), sp.second.ID()},
			Added: []Change{
				{TrackID: first.ID(), Start: sp.t1, End: first.EndTime()},
				{TrackID: second.ID(), Start: sp.t2, End: second.EndTime()},
			},
		},
		LogProb: p.PSwitch(w, wp, info),
		Info:    info,
		Reverse: reverse,
	}
}

// PSwitch is log-probability of SWITCH picking one of info.NumSwitchPoints switch points
func (p *Proposer[D]) PSwitch(w, wp *Association[D], info SwitchInfo) float64 {
	if info.NumSwitchPoints <= 0 {
		return Impossible
	}
	return -math.Log(float64(info.NumSwitchPoints))
}
