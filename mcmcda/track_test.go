package mcmcda

import (
	"slices"
	"testing"
)

func TestTrackOrdering(t *testing.T) {
	data := NewData([][]Point{
		{{X: 0, Y: 0}},
		{{X: 1, Y: 0}, {X: 1, Y: 1}},
		{{X: 2, Y: 0}},
		{{X: 3, Y: 0}},
	})
	track := NewTrack[Point]()
	if track.StartTime() != -1 || track.EndTime() != -1 {
		t.Errorf("Empty track should have no start and end, got %d and %d", track.StartTime(), track.EndTime())
	}
	track.Insert(data.Ref(4, 0))
	track.Insert(data.Ref(2, 1))
	track.Insert(data.Ref(1, 0))
	track.Insert(data.Ref(2, 0))
	if track.Insert(data.Ref(2, 1)) {
		t.Errorf("Detection should not be inserted twice")
	}
	if track.Len() != 4 {
		t.Errorf("Wrong number of entries: %d, expected 4", track.Len())
	}
	if track.RealSize() != 3 {
		t.Errorf("Wrong real size: %d, expected 3", track.RealSize())
	}
	correctTimes := []int{1, 2, 4}
	if times := track.Times(); !slices.Equal(times, correctTimes) {
		t.Errorf("Wrong times: %v, expected %v", times, correctTimes)
	}
	if track.Entry(1).Index != 0 || track.Entry(2).Index != 1 {
		t.Errorf("Duplicates should be ordered by index: %v", track.Entries())
	}
	if track.Count(2) != 2 || track.Count(3) != 0 {
		t.Errorf("Wrong counts: %d at 2, %d at 3", track.Count(2), track.Count(3))
	}
	if track.NthTime(2) != 2 || track.NthTime(3) != 4 || track.NthTime(4) != -1 {
		t.Errorf("Wrong n-th times: %d, %d, %d", track.NthTime(2), track.NthTime(3), track.NthTime(4))
	}
	if track.StartTime() != 1 || track.EndTime() != 4 {
		t.Errorf("Wrong start and end: %d and %d", track.StartTime(), track.EndTime())
	}

	head := track.Clone()
	if head.ID() == track.ID() {
		t.Errorf("Clone should get new identifier")
	}
	if !head.Equal(track) {
		t.Errorf("Clone should be equal to the source")
	}
	head.EraseAfter(2)
	if head.EndTime() != 2 || head.Len() != 3 {
		t.Errorf("Wrong head after erasing: %v", head.Entries())
	}
	tail := track.Clone()
	tail.EraseBefore(2)
	if tail.StartTime() != 2 || tail.Len() != 3 {
		t.Errorf("Wrong tail after erasing: %v", tail.Entries())
	}
	if track.Len() != 4 {
		t.Errorf("Source should stay intact, got %v", track.Entries())
	}
}

func TestTrackIsValid(t *testing.T) {
	data := NewData([][]Point{
		{{X: 0, Y: 0}, {X: 100, Y: 100}},
		{{X: 3, Y: 0}},
		{{X: 6, Y: 0}},
		{},
		{},
		{},
		{},
		{},
		{},
		{{X: 7, Y: 0}},
	})
	vBar, dBar, noise := 5.0, 5, 1.0
	good := NewTrackFrom(data.Ref(1, 0), data.Ref(2, 0), data.Ref(3, 0))
	if !good.IsValid(vBar, dBar, noise, PointConvert) {
		t.Errorf("Slow track should be valid")
	}
	jump := NewTrackFrom(data.Ref(1, 1), data.Ref(2, 0))
	if jump.IsValid(vBar, dBar, noise, PointConvert) {
		t.Errorf("Track jumping over 100 units in a frame should not be valid")
	}
	gap := NewTrackFrom(data.Ref(3, 0), data.Ref(10, 0))
	if gap.IsValid(vBar, dBar, noise, PointConvert) {
		t.Errorf("Track skipping more than %d frames should not be valid", dBar)
	}
	duplicates := NewTrackFrom(data.Ref(1, 0), data.Ref(1, 1))
	if duplicates.IsValid(vBar, dBar, noise, PointConvert) {
		t.Errorf("Duplicates far from each other should not be valid")
	}
	if NewTrack[Point]().IsValid(vBar, dBar, noise, PointConvert) {
		t.Errorf("Empty track should not be valid")
	}
}
