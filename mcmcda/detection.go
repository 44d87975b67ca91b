package mcmcda

import (
	"cmp"
	"fmt"
)

// ConvertFunc maps a detection onto the plane.
type ConvertFunc[D any] func(det *D) Point

// AverageFunc reduces several detections of one frame into a single detection.
// It is used to get a representative position of a frame holding duplicates.
type AverageFunc[D any] func(dets []*D) D

// Data is the detection store: frame t (1-based) holds all detections observed at time t.
// The store does not copy the detections: references point into the caller's slices,
// which must not be modified while associations over the store are alive.
type Data[D any] struct {
	frames [][]D
}

// NewData wraps frames as a detection store. frames[0] is time 1.
func NewData[D any](frames [][]D) *Data[D] {
	return &Data[D]{
		frames: frames,
	}
}

// Size returns number of time steps T
func (data *Data[D]) Size() int {
	return len(data.frames)
}

// InRange reports whether t is a valid time step
func (data *Data[D]) InRange(t int) bool {
	return t >= 1 && t <= len(data.frames)
}

// NumDetections returns number of detections at time t (zero when t is out of range)
func (data *Data[D]) NumDetections(t int) int {
	if !data.InRange(t) {
		return 0
	}
	return len(data.frames[t-1])
}

// Total returns number of detections over all time steps
func (data *Data[D]) Total() int {
	total := 0
	for _, frame := range data.frames {
		total += len(frame)
	}
	return total
}

// Ref returns reference to i-th detection at time t. Panics on out of range arguments.
func (data *Data[D]) Ref(t, i int) Ref[D] {
	if !data.InRange(t) || i < 0 || i >= len(data.frames[t-1]) {
		panic(fmt.Sprintf("mcmcda: detection (t=%d, i=%d) is outside of data", t, i))
	}
	return Ref[D]{
		Time:  t,
		Index: i,
		Det:   &data.frames[t-1][i],
	}
}

// Refs returns references to every detection at time t, ordered by index
func (data *Data[D]) Refs(t int) []Ref[D] {
	if !data.InRange(t) {
		return nil
	}
	refs := make([]Ref[D], len(data.frames[t-1]))
	for i := range data.frames[t-1] {
		refs[i] = Ref[D]{Time: t, Index: i, Det: &data.frames[t-1][i]}
	}
	return refs
}

// Contains reports whether ref points into this store
func (data *Data[D]) Contains(ref Ref[D]) bool {
	if !data.InRange(ref.Time) || ref.Index < 0 || ref.Index >= len(data.frames[ref.Time-1]) {
		return false
	}
	return ref.Det == &data.frames[ref.Time-1][ref.Index]
}

// Ref is a reference to a detection in the store: its time step and its index in that frame.
// Two references are the same detection iff their keys are equal.
type Ref[D any] struct {
	Time  int
	Index int
	Det   *D
}

// RefKey identifies a detection regardless of its element type
type RefKey struct {
	Time  int
	Index int
}

// Key returns detection identity
func (ref Ref[D]) Key() RefKey {
	return RefKey{Time: ref.Time, Index: ref.Index}
}

func compareRefs[D any](a, b Ref[D]) int {
	if c := cmp.Compare(a.Time, b.Time); c != 0 {
		return c
	}
	return cmp.Compare(a.Index, b.Index)
}

// PointConvert is ConvertFunc for stores of bare points
func PointConvert(det *Point) Point {
	return *det
}

// PointAverage is AverageFunc for stores of bare points
func PointAverage(dets []*Point) Point {
	points := make([]Point, len(dets))
	for i, det := range dets {
		points[i] = *det
	}
	return meanPoint(points)
}
