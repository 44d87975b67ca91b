package mcmcda

import (
	"math"
	"slices"
	"sort"

	"github.com/google/uuid"
)

// neighborSigmas is how many noise standard deviations are tolerated on top of the
// distance a target can travel when deciding whether two detections are motion-feasible.
const neighborSigmas = 3.0

// Track is an ordered multi-map from time step to detections assigned to one object.
// Entries are kept sorted by (time, index). A time step may hold several detections.
// Identifier takes no part in ordering or equality: it only names the track in diffs.
type Track[D any] struct {
	id      uuid.UUID
	entries []Ref[D]
}

// NewTrack creates an empty track with a fresh identifier
func NewTrack[D any]() *Track[D] {
	return &Track[D]{
		id:      uuid.New(),
		entries: make([]Ref[D], 0, 8),
	}
}

// NewTrackFrom creates a track holding given detections
func NewTrackFrom[D any](refs ...Ref[D]) *Track[D] {
	track := NewTrack[D]()
	for _, ref := range refs {
		track.Insert(ref)
	}
	return track
}

// ID returns track's identifier
func (track *Track[D]) ID() uuid.UUID {
	return track.id
}

// Clone returns deep copy of the track under a new identifier
func (track *Track[D]) Clone() *Track[D] {
	return &Track[D]{
		id:      uuid.New(),
		entries: slices.Clone(track.entries),
	}
}

// Len returns total number of entries (detections)
func (track *Track[D]) Len() int {
	return len(track.entries)
}

// Empty reports whether the track has no entries
func (track *Track[D]) Empty() bool {
	return len(track.entries) == 0
}

// Entries returns copy of all entries in (time, index) order
func (track *Track[D]) Entries() []Ref[D] {
	return slices.Clone(track.entries)
}

// Entry returns i-th entry
func (track *Track[D]) Entry(i int) Ref[D] {
	return track.entries[i]
}

// First returns first entry. Panics on empty track.
func (track *Track[D]) First() Ref[D] {
	return track.entries[0]
}

// Last returns last entry. Panics on empty track.
func (track *Track[D]) Last() Ref[D] {
	return track.entries[len(track.entries)-1]
}

// Insert adds detection to the track. Returns false if it is already there.
func (track *Track[D]) Insert(ref Ref[D]) bool {
	idx, found := slices.BinarySearchFunc(track.entries, ref, compareRefs[D])
	if found {
		return false
	}
	track.entries = slices.Insert(track.entries, idx, ref)
	return true
}

// Erase removes detection from the track. Returns false if it is not there.
func (track *Track[D]) Erase(ref Ref[D]) bool {
	idx, found := slices.BinarySearchFunc(track.entries, ref, compareRefs[D])
	if !found {
		return false
	}
	track.entries = slices.Delete(track.entries, idx, idx+1)
	return true
}

// InsertAll adds every given detection
func (track *Track[D]) InsertAll(refs []Ref[D]) {
	for _, ref := range refs {
		track.Insert(ref)
	}
}

// Contains reports whether detection belongs to the track
func (track *Track[D]) Contains(ref Ref[D]) bool {
	_, found := slices.BinarySearchFunc(track.entries, ref, compareRefs[D])
	return found
}

// StartTime returns the earliest time step (-1 for empty track)
func (track *Track[D]) StartTime() int {
	if len(track.entries) == 0 {
		return -1
	}
	return track.entries[0].Time
}

// EndTime returns the latest time step (-1 for empty track)
func (track *Track[D]) EndTime() int {
	if len(track.entries) == 0 {
		return -1
	}
	return track.entries[len(track.entries)-1].Time
}

// RealSize returns number of distinct occupied time steps
func (track *Track[D]) RealSize() int {
	size := 0
	for i := range track.entries {
		if i == 0 || track.entries[i].Time != track.entries[i-1].Time {
			size++
		}
	}
	return size
}

// lowerBound returns index of first entry with time >= t
func (track *Track[D]) lowerBound(t int) int {
	return sort.Search(len(track.entries), func(i int) bool {
		return track.entries[i].Time >= t
	})
}

// upperBound returns index of first entry with time > t
func (track *Track[D]) upperBound(t int) int {
	return sort.Search(len(track.entries), func(i int) bool {
		return track.entries[i].Time > t
	})
}

// Count returns number of detections at time t
func (track *Track[D]) Count(t int) int {
	return track.upperBound(t) - track.lowerBound(t)
}

// Has reports whether time t is occupied
func (track *Track[D]) Has(t int) bool {
	return track.Count(t) > 0
}

// At returns detections at time t (equal range)
func (track *Track[D]) At(t int) []Ref[D] {
	return slices.Clone(track.entries[track.lowerBound(t):track.upperBound(t)])
}

// Times returns distinct occupied time steps in increasing order
func (track *Track[D]) Times() []int {
	times := make([]int, 0, len(track.entries))
	for i := range track.entries {
		if i == 0 || track.entries[i].Time != track.entries[i-1].Time {
			times = append(times, track.entries[i].Time)
		}
	}
	return times
}

// NthTime returns n-th (1-based) distinct occupied time step, -1 if there is no such
func (track *Track[D]) NthTime(n int) int {
	times := track.Times()
	if n < 1 || n > len(times) {
		return -1
	}
	return times[n-1]
}

// EraseAfter removes every detection later than t
func (track *Track[D]) EraseAfter(t int) {
	track.entries = track.entries[:track.upperBound(t)]
}

// EraseBefore removes every detection earlier than t
func (track *Track[D]) EraseBefore(t int) {
	track.entries = slices.Clone(track.entries[track.lowerBound(t):])
}

// Equal compares tracks by content
func (track *Track[D]) Equal(other *Track[D]) bool {
	return compareTracks(track, other) == 0
}

// compareTracks orders tracks lexicographically over their (time, index) entries.
// Detection values are never compared, so the order is stable for a given store.
func compareTracks[D any](a, b *Track[D]) int {
	return slices.CompareFunc(a.entries, b.entries, compareRefs[D])
}

// isNeighbor reports whether a target seen at "from" can be seen at "to" d frames later
func isNeighbor(from, to Point, d, dBar int, vBar, noiseVariance float64) bool {
	d = absInt(d)
	if d > dBar {
		return false
	}
	reach := float64(d)*vBar + neighborSigmas*math.Sqrt(noiseVariance)
	return euclideanDistance(from, to) <= reach
}

// IsValid reports whether the track is motion-feasible: it is non-empty, no gap between
// consecutive occupied frames exceeds dBar, and every detection is a neighbor of every
// detection in the previous occupied frame (and of its own frame duplicates).
func (track *Track[D]) IsValid(vBar float64, dBar int, noiseVariance float64, convert ConvertFunc[D]) bool {
	if len(track.entries) == 0 {
		return false
	}
	prevFrom, prevTo := -1, -1
	from := 0
	for from < len(track.entries) {
		t := track.entries[from].Time
		to := track.upperBound(t)
		for i := from; i < to; i++ {
			pi := convert(track.entries[i].Det)
			for j := i + 1; j < to; j++ {
				if !isNeighbor(pi, convert(track.entries[j].Det), 0, dBar, vBar, noiseVariance) {
					return false
				}
			}
			if prevFrom < 0 {
				continue
			}
			for j := prevFrom; j < prevTo; j++ {
				prev := track.entries[j]
				if !isNeighbor(convert(prev.Det), pi, t-prev.Time, dBar, vBar, noiseVariance) {
					return false
				}
			}
		}
		prevFrom, prevTo = from, to
		from = to
	}
	return true
}
