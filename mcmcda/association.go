package mcmcda

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// Association is a set of disjoint tracks over a detection store.
// Tracks are kept in canonical order (see compareTracks), so that set difference
// and union between associations are well defined.
//
// Tracks inserted into an association are owned by it and must not be modified afterwards:
// copies of an association share track pointers. Moves clone a track, change the clone and
// replace the original.
type Association[D any] struct {
	data   *Data[D]
	tracks []*Track[D]
}

// NewAssociation creates empty association over given data
func NewAssociation[D any](data *Data[D]) *Association[D] {
	return &Association[D]{
		data:   data,
		tracks: make([]*Track[D], 0),
	}
}

// NewAssociationFrom creates association holding given tracks
func NewAssociationFrom[D any](data *Data[D], tracks ...*Track[D]) *Association[D] {
	w := NewAssociation(data)
	for _, track := range tracks {
		w.Insert(track)
	}
	return w
}

// Data returns the detection store
func (w *Association[D]) Data() *Data[D] {
	return w.data
}

// Len returns number of tracks
func (w *Association[D]) Len() int {
	return len(w.tracks)
}

// Empty reports whether there are no tracks
func (w *Association[D]) Empty() bool {
	return len(w.tracks) == 0
}

// Tracks returns tracks in canonical order. The slice is a copy, tracks are not.
func (w *Association[D]) Tracks() []*Track[D] {
	return slices.Clone(w.tracks)
}

// Track returns i-th track in canonical order
func (w *Association[D]) Track(i int) *Track[D] {
	return w.tracks[i]
}

// Clone returns a copy which can be changed without affecting w
func (w *Association[D]) Clone() *Association[D] {
	return &Association[D]{
		data:   w.data,
		tracks: slices.Clone(w.tracks),
	}
}

// Find returns position of a track equal (by content) to given one, or -1
func (w *Association[D]) Find(track *Track[D]) int {
	idx, found := slices.BinarySearchFunc(w.tracks, track, compareTracks[D])
	if !found {
		return -1
	}
	return idx
}

// Insert adds track to the association.
// Inserting an empty track or a track claiming an already claimed detection is a programming error and panics.
func (w *Association[D]) Insert(track *Track[D]) {
	if track.Empty() {
		panic("mcmcda: cannot insert empty track into association")
	}
	for _, ref := range track.entries {
		if !w.data.Contains(ref) {
			panic(fmt.Sprintf("mcmcda: detection (t=%d, i=%d) does not belong to association data", ref.Time, ref.Index))
		}
		if w.claimedBy(ref) != nil {
			panic(fmt.Sprintf("mcmcda: detection (t=%d, i=%d) already belongs to another track", ref.Time, ref.Index))
		}
	}
	idx, _ := slices.BinarySearchFunc(w.tracks, track, compareTracks[D])
	w.tracks = slices.Insert(w.tracks, idx, track)
}

// Remove deletes the track equal (by content) to given one. Returns false if there is no such track.
func (w *Association[D]) Remove(track *Track[D]) bool {
	idx := w.Find(track)
	if idx < 0 {
		return false
	}
	w.tracks = slices.Delete(w.tracks, idx, idx+1)
	return true
}

// claimedBy returns the track holding the detection, nil if it is dead
func (w *Association[D]) claimedBy(ref Ref[D]) *Track[D] {
	for _, track := range w.tracks {
		if track.Contains(ref) {
			return track
		}
	}
	return nil
}

// LivePointsAt returns detections at time t which belong to some track, ordered by index
func (w *Association[D]) LivePointsAt(t int) []Ref[D] {
	live := make([]Ref[D], 0)
	for _, track := range w.tracks {
		live = append(live, track.entries[track.lowerBound(t):track.upperBound(t)]...)
	}
	slices.SortFunc(live, compareRefs[D])
	return live
}

// CountLivePointsAt returns number of detections at time t which belong to some track
func (w *Association[D]) CountLivePointsAt(t int) int {
	count := 0
	for _, track := range w.tracks {
		count += track.Count(t)
	}
	return count
}

// DeadPointsAt returns detections at time t which do not belong to any track, ordered by index.
// Out of range time gives empty result.
func (w *Association[D]) DeadPointsAt(t int) []Ref[D] {
	if !w.data.InRange(t) {
		return nil
	}
	claimed := make(map[int]struct{})
	for _, track := range w.tracks {
		for _, ref := range track.entries[track.lowerBound(t):track.upperBound(t)] {
			claimed[ref.Index] = struct{}{}
		}
	}
	all := w.data.Refs(t)
	dead := make([]Ref[D], 0, len(all)-len(claimed))
	for _, ref := range all {
		if _, ok := claimed[ref.Index]; !ok {
			dead = append(dead, ref)
		}
	}
	return dead
}

// CountDeadPointsAt returns number of detections at time t which do not belong to any track
func (w *Association[D]) CountDeadPointsAt(t int) int {
	if !w.data.InRange(t) {
		return 0
	}
	return w.data.NumDetections(t) - w.CountLivePointsAt(t)
}

// AvailableData returns dead points for every time step: result[t-1] holds dead points at time t
func (w *Association[D]) AvailableData() [][]Ref[D] {
	available := make([][]Ref[D], w.data.Size())
	for t := 1; t <= w.data.Size(); t++ {
		available[t-1] = w.DeadPointsAt(t)
	}
	return available
}

// DeadNeighbors returns dead detections at time t+d which are motion-feasible continuations of position y seen at time t
func (w *Association[D]) DeadNeighbors(y Point, t, d, dBar int, vBar, noiseVariance float64, convert ConvertFunc[D]) []Ref[D] {
	neighbors := make([]Ref[D], 0)
	for _, ref := range w.DeadPointsAt(t + d) {
		if isNeighbor(y, convert(ref.Det), d, dBar, vBar, noiseVariance) {
			neighbors = append(neighbors, ref)
		}
	}
	return neighbors
}

// ValidStartingPoints returns dead detections at time t having at least one motion-feasible
// neighbor (dead or not) at time t+d
func (w *Association[D]) ValidStartingPoints(t, d, dBar int, vBar, noiseVariance float64, convert ConvertFunc[D]) []Ref[D] {
	valid := make([]Ref[D], 0)
	next := w.data.Refs(t + d)
	for _, ref := range w.DeadPointsAt(t) {
		y := convert(ref.Det)
		for _, candidate := range next {
			if isNeighbor(y, convert(candidate.Det), d, dBar, vBar, noiseVariance) {
				valid = append(valid, ref)
				break
			}
		}
	}
	return valid
}

// CountValidStartingPoints is len(ValidStartingPoints(...))
func (w *Association[D]) CountValidStartingPoints(t, d, dBar int, vBar, noiseVariance float64, convert ConvertFunc[D]) int {
	return len(w.ValidStartingPoints(t, d, dBar, vBar, noiseVariance, convert))
}

// IsValid checks that every track is motion-feasible, every detection comes from the data
// and no detection is used twice
func (w *Association[D]) IsValid(vBar float64, dBar int, noiseVariance float64, convert ConvertFunc[D]) bool {
	used := make(map[RefKey]struct{})
	for _, track := range w.tracks {
		if !track.IsValid(vBar, dBar, noiseVariance, convert) {
			return false
		}
		for _, ref := range track.entries {
			if ref.Det == nil || !w.data.Contains(ref) {
				return false
			}
			if _, ok := used[ref.Key()]; ok {
				return false
			}
			used[ref.Key()] = struct{}{}
		}
	}
	return true
}

// Totals summarizes an association
type Totals struct {
	// Number of tracks
	Tracks int
	// Tracks starting after the first frame
	Entrances int
	// Tracks ending before the last frame
	Exits int
	// Detections assigned to tracks
	TrueDetections int
	// Detections not assigned to any track
	NoiseDetections int
	// Sum of track lengths (end - start + 1)
	Length int
}

// Totals counts tracks, entrances, exits, true and noisy detections and total track length
func (w *Association[D]) Totals() Totals {
	totals := Totals{Tracks: len(w.tracks)}
	T := w.data.Size()
	for _, track := range w.tracks {
		sf, ef := track.StartTime(), track.EndTime()
		if sf != 1 {
			totals.Entrances++
		}
		if ef != T {
			totals.Exits++
		}
		totals.TrueDetections += track.Len()
		totals.Length += ef - sf + 1
	}
	totals.NoiseDetections = w.data.Total() - totals.TrueDetections
	return totals
}

// Change describes a track added by a move and the time range the move altered in it
type Change struct {
	TrackID uuid.UUID
	Start   int
	End     int
}

// Diff describes what a move did to an association: which tracks disappeared and which appeared.
// Downstream likelihood caches only need to recompute the changed intervals of added tracks.
type Diff struct {
	Removed []uuid.UUID
	Added   []Change
}

// Empty reports whether diff describes no change
func (diff Diff) Empty() bool {
	return len(diff.Removed) == 0 && len(diff.Added) == 0
}

// DiffAssociations computes the diff between two associations over the same data.
// Added tracks are reported with their whole extent as changed interval.
func DiffAssociations[D any](before, after *Association[D]) Diff {
	diff := Diff{}
	for _, track := range before.tracks {
		if after.Find(track) < 0 {
			diff.Removed = append(diff.Removed, track.ID())
		}
	}
	for _, track := range after.tracks {
		if before.Find(track) < 0 {
			diff.Added = append(diff.Added, Change{TrackID: track.ID(), Start: track.StartTime(), End: track.EndTime()})
		}
	}
	return diff
}
