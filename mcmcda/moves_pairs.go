package mcmcda

import (
	"math"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/distuv"
)

// SecretionInfo remembers how many tracks SECRETION could pick from, the track it split and the part
// holding the first detection of the split track
type SecretionInfo[D any] struct {
	NumValidTracks int
	Source         *Track[D]
	Kept           *Track[D]
}

func (SecretionInfo[D]) Move() Move { return MoveSecretion }

// AbsorptionInfo remembers number of candidate pairs and log-probability of the chosen one
type AbsorptionInfo struct {
	NumValidTrackPairs int
	LogProb            float64
}

func (AbsorptionInfo) Move() Move { return MoveAbsorption }

// SplitInfo remembers number of split points
type SplitInfo struct {
	NumSplitPoints int
}

func (SplitInfo) Move() Move { return MoveSplit }

// MergeInfo remembers number of merge pairs
type MergeInfo struct {
	NumMergePairs int
}

func (MergeInfo) Move() Move { return MoveMerge }

// isSecretable reports whether SECRETION may act on the track: it is long enough, or it holds
// duplicates at both ends
func isSecretable[D any](track *Track[D]) bool {
	if track.RealSize() >= 4 {
		return true
	}
	return track.Count(track.StartTime()) > 1 && track.Count(track.EndTime()) > 1
}

// CountSecretionTracks returns number of tracks SECRETION may act on
func CountSecretionTracks[D any](w *Association[D]) int {
	count := 0
	for _, track := range w.tracks {
		if isSecretable(track) {
			count++
		}
	}
	return count
}

// ProposeSecretion splits a track. Two entries are picked uniformly and independently: everything up
// to the earlier one stays, entries in between are assigned by a fair coin each, and the tail after the
// later one goes to either part by a single fair coin. Both parts must be non-empty and motion-feasible.
func (p *Proposer[D]) ProposeSecretion(w *Association[D]) (Proposal[D], error) {
	if w.Empty() {
		return impossibleProposal[D](MoveSecretion), errors.Wrap(ErrTooFewTracks, "secretion needs at least one track")
	}
	candidates := make([]*Track[D], 0, w.Len())
	for _, track := range w.tracks {
		if isSecretable(track) {
			candidates = append(candidates, track)
		}
	}
	if len(candidates) == 0 {
		return impossibleProposal[D](MoveSecretion), nil
	}
	source := candidates[p.rng.IntN(len(candidates))]

	L := source.Len()
	small, big := p.rng.IntN(L), p.rng.IntN(L)
	if small > big {
		small, big = big, small
	}
	kept := NewTrackFrom(source.entries[:small+1]...)
	born := NewTrack[D]()
	tailKept := p.rng.Float64() < 0.5
	for k := small + 1; k <= big; k++ {
		if p.rng.Float64() < 0.5 {
			kept.Insert(source.entries[k])
		} else {
			born.Insert(source.entries[k])
		}
	}
	if tailKept {
		kept.InsertAll(source.entries[big+1:])
	} else {
		born.InsertAll(source.entries[big+1:])
	}
	if born.Empty() || !p.isValidTrack(kept) || !p.isValidTrack(born) {
		return impossibleProposal[D](MoveSecretion), nil
	}

	wp := w.Clone()
	wp.Remove(source)
	wp.Insert(kept)
	wp.Insert(born)
	info := SecretionInfo[D]{NumValidTracks: len(candidates), Source: source, Kept: kept}
	numPairs, lpAbsorb := p.absorptionLogProb(wp, kept, born)
	return Proposal[D]{
		Move:  MoveSecretion,
		Assoc: wp,
		Diff: Diff{
			Removed: []uuid.UUID{source.ID()},
			Added: []Change{
				{TrackID: kept.ID(), Start: kept.StartTime(), End: kept.EndTime()},
				{TrackID: born.ID(), Start: born.StartTime(), End: born.EndTime()},
			},
		},
		LogProb: p.PSecretion(w, wp, info),
		Info:    info,
		Reverse: AbsorptionInfo{NumValidTrackPairs: numPairs, LogProb: lpAbsorb},
	}, nil
}

// PSecretion is log-probability of SECRETION splitting info.Source so that info.Kept is the part keeping
// its first detection. All pairs of picked entries leading to the same split are summed over.
func (p *Proposer[D]) PSecretion(w, wp *Association[D], info SecretionInfo[D]) float64 {
	if info.NumValidTracks <= 0 || info.Source == nil || info.Kept == nil || !isSecretable(info.Source) {
		return Impossible
	}
	lp := -math.Log(float64(info.NumValidTracks))
	return normalizeLogProb(lp + secretionSplitLogProb(info.Source, info.Kept))
}

// secretionSplitLogProb returns log-probability that picking entries (small, big) and flipping coins
// turns source into kept plus the rest
func secretionSplitLogProb[D any](source, kept *Track[D]) float64 {
	L := source.Len()
	inKept := make([]bool, L)
	numKept := 0
	for k, ref := range source.entries {
		inKept[k] = kept.Contains(ref)
		if inKept[k] {
			numKept++
		}
	}
	if numKept != kept.Len() || numKept == L || !inKept[0] {
		return Impossible
	}
	firstBorn := 0
	for inKept[firstBorn] {
		firstBorn++
	}
	// Entries from tailStart on all went to the same part
	tailStart := L - 1
	for tailStart > 0 && inKept[tailStart-1] == inKept[L-1] {
		tailStart--
	}

	logL2 := 2 * math.Log(float64(L))
	ways := make([]float64, 0)
	for small := 0; small < firstBorn; small++ {
		for big := maxInt(small, tailStart-1); big < L; big++ {
			lp := -logL2
			if small < big {
				lp += math.Ln2
			}
			lp += float64(big-small) * -math.Ln2
			if big < L-1 {
				lp -= math.Ln2
			}
			ways = append(ways, lp)
		}
	}
	return logSumExp(ways)
}

// absorptionPair is a pair of tracks ABSORPTION may merge, with its unnormalized log-weight
type absorptionPair[D any] struct {
	a      *Track[D]
	b      *Track[D]
	merged *Track[D]
	score  float64
}

// absorptionPairs enumerates pairs whose union is motion-feasible and could have been grown from its
// first frame over the whole data. Weight of a pair is -sqrt(-log p_grow / real size), normalized.
func (p *Proposer[D]) absorptionPairs(w *Association[D]) ([]absorptionPair[D], []float64) {
	pairs := make([]absorptionPair[D], 0)
	scores := make([]float64, 0)
	everything := NewAssociation(w.Data())
	for i := 0; i < w.Len(); i++ {
		for j := i + 1; j < w.Len(); j++ {
			a, b := w.Track(i), w.Track(j)
			merged := a.Clone()
			merged.InsertAll(b.entries)
			if !p.isValidTrack(merged) {
				continue
			}
			pg := p.PGrowTrackForward(merged, everything, merged.StartTime())
			if IsImpossible(pg) {
				continue
			}
			score := -math.Sqrt(math.Max(0, -pg) / float64(merged.RealSize()))
			pairs = append(pairs, absorptionPair[D]{a: a, b: b, merged: merged, score: score})
			scores = append(scores, score)
		}
	}
	lse := logSumExp(scores)
	for k := range scores {
		scores[k] -= lse
	}
	return pairs, scores
}

// CountAbsorptionPairs returns number of pairs ABSORPTION may merge
func (p *Proposer[D]) CountAbsorptionPairs(w *Association[D]) int {
	pairs, _ := p.absorptionPairs(w)
	return len(pairs)
}

// absorptionLogProb returns number of candidate pairs and log-probability of ABSORPTION choosing pair (x, y) in w
func (p *Proposer[D]) absorptionLogProb(w *Association[D], x, y *Track[D]) (int, float64) {
	pairs, lps := p.absorptionPairs(w)
	for k, pair := range pairs {
		if (pair.a == x && pair.b == y) || (pair.a == y && pair.b == x) {
			return len(pairs), lps[k]
		}
	}
	return len(pairs), Impossible
}

// ProposeAbsorption merges two tracks chosen with probability given by their weights
func (p *Proposer[D]) ProposeAbsorption(w *Association[D]) (Proposal[D], error) {
	if w.Len() < 2 {
		return impossibleProposal[D](MoveAbsorption), errors.Wrap(ErrTooFewTracks, "absorption needs at least two tracks")
	}
	pairs, lps := p.absorptionPairs(w)
	if len(pairs) == 0 {
		return impossibleProposal[D](MoveAbsorption), nil
	}
	weights := make([]float64, len(lps))
	for k, lp := range lps {
		weights[k] = math.Exp(lp)
	}
	k := int(distuv.NewCategorical(weights, p.rng).Rand())
	pair := pairs[k]

	wp := w.Clone()
	wp.Remove(pair.a)
	wp.Remove(pair.b)
	wp.Insert(pair.merged)

	kept := pair.a
	if !pair.a.Contains(pair.merged.First()) {
		kept = pair.b
	}
	info := AbsorptionInfo{NumValidTrackPairs: len(pairs), LogProb: lps[k]}
	start, end := absorbedInterval(pair.a, pair.b)
	return Proposal[D]{
		Move:  MoveAbsorption,
		Assoc: wp,
		Diff: Diff{
			Removed: []uuid.UUID{pair.a.ID(), pair.b.ID()},
			Added:   []Change{{TrackID: pair.merged.ID(), Start: start, End: end}},
		},
		LogProb: p.PAbsorption(w, wp, info),
		Info:    info,
		Reverse: SecretionInfo[D]{
			NumValidTracks: CountSecretionTracks(wp),
			Source:         pair.merged,
			Kept:           kept,
		},
	}, nil
}

// absorbedInterval returns frames changed by merging two tracks: the extent of the shorter one
// and, when they don't overlap, the gap towards the longer one
func absorbedInterval[D any](a, b *Track[D]) (int, int) {
	long, short := a, b
	if b.EndTime()-b.StartTime() > a.EndTime()-a.StartTime() {
		long, short = b, a
	}
	switch {
	case short.EndTime() < long.StartTime():
		return short.StartTime(), long.StartTime()
	case short.StartTime() > long.EndTime():
		return long.EndTime(), short.EndTime()
	default:
		return short.StartTime(), short.EndTime()
	}
}

// PAbsorption is log-probability of ABSORPTION choosing recorded pair
func (p *Proposer[D]) PAbsorption(w, wp *Association[D], info AbsorptionInfo) float64 {
	if info.NumValidTrackPairs <= 0 {
		return Impossible
	}
	return normalizeLogProb(info.LogProb)
}

// CountSplitPoints returns number of ways SPLIT can act on w: a track of real size n >= 4 can be split
// after any of its frames 2..n-2
func CountSplitPoints[D any](w *Association[D]) int {
	count := 0
	for _, track := range w.tracks {
		if tsz := track.RealSize(); tsz >= 4 {
			count += tsz - 3
		}
	}
	return count
}

// ProposeSplit cuts a track at a split point chosen uniformly
func (p *Proposer[D]) ProposeSplit(w *Association[D]) (Proposal[D], error) {
	if w.Empty() {
		return impossibleProposal[D](MoveSplit), errors.Wrap(ErrTooFewTracks, "split needs at least one track")
	}
	nsp := CountSplitPoints(w)
	if nsp == 0 {
		return impossibleProposal[D](MoveSplit), nil
	}
	n := p.rng.IntN(nsp)
	var source *Track[D]
	rank := 0
	for _, track := range w.tracks {
		tsz := track.RealSize()
		if tsz < 4 {
			continue
		}
		if n < tsz-3 {
			source, rank = track, n+2
			break
		}
		n -= tsz - 3
	}
	if source == nil {
		panic("should be impossible")
	}
	head := source.Clone()
	head.EraseAfter(source.NthTime(rank))
	tail := source.Clone()
	tail.EraseBefore(source.NthTime(rank + 1))

	wp := w.Clone()
	wp.Remove(source)
	wp.Insert(head)
	wp.Insert(tail)

	reverse := MergeInfo{}
	if p.isMergePair(head, tail) {
		reverse.NumMergePairs = len(p.mergePairs(wp))
	}
	info := SplitInfo{NumSplitPoints: nsp}
	return Proposal[D]{
		Move:  MoveSplit,
		Assoc: wp,
		Diff: Diff{
			Removed: []uuid.UUID{source.ID()},
			Added: []Change{
				{TrackID: head.ID(), Start: head.StartTime(), End: head.EndTime()},
				{TrackID: tail.ID(), Start: tail.StartTime(), End: tail.EndTime()},
			},
		},
		LogProb: p.PSplit(w, wp, info),
		Info:    info,
		Reverse: reverse,
	}, nil
}

// PSplit is log-probability of SPLIT picking one of info.NumSplitPoints split points
func (p *Proposer[D]) PSplit(w, wp *Association[D], info SplitInfo) float64 {
	if info.NumSplitPoints <= 0 {
		return Impossible
	}
	return -math.Log(float64(info.NumSplitPoints))
}

// isMergePair reports whether b may continue a: b starts after a ends, within d_bar frames and v_bar reach
func (p *Proposer[D]) isMergePair(a, b *Track[D]) bool {
	tf, t1 := a.EndTime(), b.StartTime()
	if tf >= t1 {
		return false
	}
	return isNeighbor(p.convert(a.Last().Det), p.convert(b.First().Det), t1-tf, p.cfg.DBar, p.cfg.VBar, p.cfg.NoiseVariance)
}

// mergePairs enumerates ordered pairs of tracks MERGE may join
func (p *Proposer[D]) mergePairs(w *Association[D]) [][2]*Track[D] {
	pairs := make([][2]*Track[D], 0)
	for _, a := range w.tracks {
		for _, b := range w.tracks {
			if a != b && p.isMergePair(a, b) {
				pairs = append(pairs, [2]*Track[D]{a, b})
			}
		}
	}
	return pairs
}

// CountMergePairs returns number of ordered pairs MERGE may join
func (p *Proposer[D]) CountMergePairs(w *Association[D]) int {
	return len(p.mergePairs(w))
}

// ProposeMerge joins a merge pair chosen uniformly
func (p *Proposer[D]) ProposeMerge(w *Association[D]) (Proposal[D], error) {
	if w.Len() < 2 {
		return impossibleProposal[D](MoveMerge), errors.Wrap(ErrTooFewTracks, "merge needs at least two tracks")
	}
	pairs := p.mergePairs(w)
	if len(pairs) == 0 {
		return impossibleProposal[D](MoveMerge), nil
	}
	pair := pairs[p.rng.IntN(len(pairs))]
	a, b := pair[0], pair[1]
	merged := a.Clone()
	merged.InsertAll(b.entries)

	wp := w.Clone()
	wp.Remove(a)
	wp.Remove(b)
	wp.Insert(merged)

	reverse := SplitInfo{}
	// SPLIT leaves at least two frames on each side
	if a.RealSize() >= 2 && b.RealSize() >= 2 {
		reverse.NumSplitPoints = CountSplitPoints(wp)
	}
	info := MergeInfo{NumMergePairs: len(pairs)}
	return Proposal[D]{
		Move:  MoveMerge,
		Assoc: wp,
		Diff: Diff{
			Removed: []uuid.UUID{a.ID(), b.ID()},
			Added:   []Change{{TrackID: merged.ID(), Start: a.EndTime(), End: b.EndTime()}},
		},
		LogProb: p.PMerge(w, wp, info),
		Info:    info,
		Reverse: reverse,
	}, nil
}

// PMerge is log-probability of MERGE picking one of info.NumMergePairs pairs
func (p *Proposer[D]) PMerge(w, wp *Association[D], info MergeInfo) float64 {
	if info.NumMergePairs <= 0 {
		return Impossible
	}
	return -math.Log(float64(info.NumMergePairs))
}
