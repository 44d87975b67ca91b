package mcmcda

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"slices"
	"strings"
	"testing"
)

// straightLines generates T frames. Target i is seen at starts[i] + (t-1)*velocities[i] in frame t.
func straightLines(T int, starts, velocities []Point) [][]Point {
	frames := make([][]Point, T)
	for t := 1; t <= T; t++ {
		frame := make([]Point, len(starts))
		for i := range starts {
			frame[i] = starts[i].Add(velocities[i].Scale(float64(t - 1)))
		}
		frames[t-1] = frame
	}
	return frames
}

// trackOf builds track taking detection idx in every frame from "from" to "to"
func trackOf(data *Data[Point], idx, from, to int) *Track[Point] {
	track := NewTrack[Point]()
	for t := from; t <= to; t++ {
		track.Insert(data.Ref(t, idx))
	}
	return track
}

func newTestProposer(t *testing.T, opts ...Option) *Proposer[Point] {
	t.Helper()
	defaults := []Option{
		WithSeed(42, 1024),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	p, err := NewProposer(PointConvert, PointAverage, append(defaults, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

// checkDisjoint reports detections claimed twice and detections from other stores
func checkDisjoint(t *testing.T, w *Association[Point]) {
	t.Helper()
	used := make(map[RefKey]struct{})
	for _, track := range w.Tracks() {
		if track.Empty() {
			t.Errorf("Association holds empty track")
		}
		for _, ref := range track.Entries() {
			if !w.Data().Contains(ref) {
				t.Errorf("Detection (%d, %d) is not from association data", ref.Time, ref.Index)
			}
			if _, ok := used[ref.Key()]; ok {
				t.Errorf("Detection (%d, %d) belongs to two tracks", ref.Time, ref.Index)
			}
			used[ref.Key()] = struct{}{}
		}
	}
}

// trackKey identifies track content
func trackKey(track *Track[Point]) string {
	var sb strings.Builder
	for _, ref := range track.entries {
		fmt.Fprintf(&sb, "(%d,%d)", ref.Time, ref.Index)
	}
	return sb.String()
}

// checkFrequencies compares observed counts of outcomes after n draws with their log-probabilities.
// Outcomes expected less than 30 times are not compared. Returns number of compared outcomes.
func checkFrequencies[K comparable](t *testing.T, counts map[K]int, logProbs map[K]float64, n int) int {
	t.Helper()
	checked := 0
	for key, lp := range logProbs {
		count := counts[key]
		if IsImpossible(lp) {
			if count > 0 {
				t.Errorf("Outcome %v has zero probability but was observed %d times", key, count)
			}
			continue
		}
		prob := math.Exp(lp)
		expected := float64(n) * prob
		if expected < 30 {
			continue
		}
		checked++
		variance := expected * (1 - prob)
		if variance <= 0 {
			if count != n {
				t.Errorf("Outcome %v is certain but was observed %d times out of %d", key, count, n)
			}
			continue
		}
		z := math.Abs(float64(count)-expected) / math.Sqrt(variance)
		if z > 5 {
			t.Errorf("Outcome %v: observed %d times, expected %.1f (z = %.2f)", key, count, expected, z)
		}
	}
	return checked
}

// trackDifference returns tracks of a missing (by content) from b
func trackDifference(a, b *Association[Point]) []*Track[Point] {
	diff := make([]*Track[Point], 0)
	for _, track := range a.tracks {
		if b.Find(track) < 0 {
			diff = append(diff, track)
		}
	}
	return diff
}

// unionOf returns union of tracks a and b
func unionOf(a, b *Track[Point]) *Track[Point] {
	union := a.Clone()
	union.InsertAll(b.entries)
	return union
}

// isValidMove checks that after can come out of before by a single move m
func isValidMove(m Move, before, after *Association[Point]) bool {
	switch m {
	case MoveBirth:
		return isValidBirth(before, after)
	case MoveDeath:
		return isValidBirth(after, before)
	case MoveExtension:
		return isValidExtension(before, after)
	case MoveReduction:
		return isValidExtension(after, before)
	case MoveSwitch:
		return isValidSwitch(before, after)
	case MoveSecretion, MoveSplit:
		return isValidSplit(before, after)
	case MoveAbsorption, MoveMerge:
		return isValidSplit(after, before)
	default:
		return false
	}
}

// isValidBirth: wp is w plus one track
func isValidBirth(w, wp *Association[Point]) bool {
	return wp.Len()-w.Len() == 1 && len(trackDifference(w, wp)) == 0 && len(trackDifference(wp, w)) == 1
}

// isValidSplit: one track of w became two tracks of wp holding the same detections
func isValidSplit(w, wp *Association[Point]) bool {
	if w.Empty() || wp.Len()-w.Len() != 1 {
		return false
	}
	removed, added := trackDifference(w, wp), trackDifference(wp, w)
	if len(removed) != 1 || len(added) != 2 {
		return false
	}
	return removed[0].Equal(unionOf(added[0], added[1]))
}

// isValidExtension: one track of w got longer at one of its ends
func isValidExtension(w, wp *Association[Point]) bool {
	if w.Empty() || w.Len() != wp.Len() {
		return false
	}
	removed, added := trackDifference(w, wp), trackDifference(wp, w)
	if len(removed) != 1 || len(added) != 1 {
		return false
	}
	orig, ext := removed[0].entries, added[0].entries
	if len(orig) >= len(ext) {
		return false
	}
	equal := func(a, b Ref[Point]) bool { return a.Key() == b.Key() }
	return slices.EqualFunc(orig, ext[:len(orig)], equal) || slices.EqualFunc(orig, ext[len(ext)-len(orig):], equal)
}

// isValidSwitch: two tracks of w exchanged their tails
func isValidSwitch(w, wp *Association[Point]) bool {
	if w.Len() < 2 || w.Len() != wp.Len() {
		return false
	}
	removed, added := trackDifference(w, wp), trackDifference(wp, w)
	if len(removed) != 2 || len(added) != 2 {
		return false
	}
	a, b := removed[0].entries, removed[1].entries
	sa, sb := added[0].entries, added[1].entries
	commonPrefix := func(x, y []Ref[Point]) int {
		k := 0
		for k < len(x) && k < len(y) && x[k].Key() == y[k].Key() {
			k++
		}
		return k
	}
	i, j := commonPrefix(a, sa), commonPrefix(b, sb)
	if i == 0 || j == 0 || i == len(a) || j == len(b) {
		return false
	}
	first := NewTrackFrom(a[:i]...)
	first.InsertAll(b[j:])
	second := NewTrackFrom(b[:j]...)
	second.InsertAll(a[i:])
	return first.Equal(added[0]) && second.Equal(added[1])
}

// transitionLogProb is log-probability of move m turning w into wp, worked out from the two associations
// alone rather than from bookkeeping recorded by the move
func transitionLogProb(p *Proposer[Point], m Move, w, wp *Association[Point]) float64 {
	removed, added := trackDifference(w, wp), trackDifference(wp, w)
	switch m {
	case MoveBirth:
		return p.PBirth(w, wp, BirthInfo[Point]{NewTrack: added[0]})
	case MoveDeath:
		return p.PDeath(w, wp, DeathInfo{NumTracks: w.Len()})
	case MoveExtension:
		orig, ext := removed[0], added[0]
		info := ExtensionInfo[Point]{NumTracks: w.Len(), ExtendedTrack: ext, Direction: Forward, PreviousEnd: orig.EndTime()}
		if ext.StartTime() != orig.StartTime() {
			info.Direction, info.PreviousEnd = Backward, orig.StartTime()
		}
		return p.PExtension(w, wp, info)
	case MoveReduction:
		orig, reduced := removed[0], added[0]
		cut := reduced.EndTime()
		if reduced.StartTime() != orig.StartTime() {
			cut = reduced.StartTime()
		}
		info := ReductionInfo{NumTracks: w.Len(), ReducedTrackSize: orig.RealSize(), CutRank: slices.Index(orig.Times(), cut) + 1}
		return p.PReduction(w, wp, info)
	case MoveSwitch:
		return p.PSwitch(w, wp, SwitchInfo{NumSwitchPoints: p.CountSwitchPoints(w)})
	case MoveSecretion:
		source := removed[0]
		kept := added[0]
		if !kept.Contains(source.First()) {
			kept = added[1]
		}
		return p.PSecretion(w, wp, SecretionInfo[Point]{NumValidTracks: CountSecretionTracks(w), Source: source, Kept: kept})
	case MoveAbsorption:
		n, lp := p.absorptionLogProb(w, removed[0], removed[1])
		return p.PAbsorption(w, wp, AbsorptionInfo{NumValidTrackPairs: n, LogProb: lp})
	case MoveSplit:
		return p.PSplit(w, wp, SplitInfo{NumSplitPoints: CountSplitPoints(w)})
	case MoveMerge:
		return p.PMerge(w, wp, MergeInfo{NumMergePairs: p.CountMergePairs(w)})
	default:
		return Impossible
	}
}
