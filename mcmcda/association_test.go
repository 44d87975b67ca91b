package mcmcda

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pkg/errors"
)

func TestAssociationDeadPoints(t *testing.T) {
	data := NewData(straightLines(5, []Point{{X: 0, Y: 0}, {X: 0, Y: 50}, {X: 0, Y: 100}}, []Point{{X: 1, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 0}}))
	w := NewAssociationFrom(data, trackOf(data, 0, 1, 5), trackOf(data, 2, 2, 4))
	if w.Len() != 2 {
		t.Errorf("Wrong number of tracks: %d, expected 2", w.Len())
	}
	if n := w.CountDeadPointsAt(1); n != 2 {
		t.Errorf("Wrong number of dead points at 1: %d, expected 2", n)
	}
	if n := w.CountDeadPointsAt(3); n != 1 {
		t.Errorf("Wrong number of dead points at 3: %d, expected 1", n)
	}
	dead := w.DeadPointsAt(3)
	if len(dead) != 1 || dead[0].Index != 1 {
		t.Errorf("Wrong dead points at 3: %v", dead)
	}
	if live := w.LivePointsAt(3); len(live) != 2 || live[0].Index != 0 || live[1].Index != 2 {
		t.Errorf("Wrong live points at 3: %v", live)
	}
	if w.DeadPointsAt(0) != nil || w.DeadPointsAt(6) != nil {
		t.Errorf("Out of range frames should have no dead points")
	}
	available := w.AvailableData()
	if len(available) != 5 || len(available[0]) != 2 || len(available[4]) != 2 {
		t.Errorf("Wrong available data: %v", available)
	}

	neighbors := w.DeadNeighbors(Point{X: 0, Y: 50}, 1, 1, 5, 5.0, 1.0, PointConvert)
	if len(neighbors) != 1 || neighbors[0].Index != 1 || neighbors[0].Time != 2 {
		t.Errorf("Wrong dead neighbors: %v", neighbors)
	}
	starts := w.ValidStartingPoints(1, 1, 5, 5.0, 1.0, PointConvert)
	if len(starts) != 2 {
		t.Errorf("Wrong number of valid starting points: %d, expected 2", len(starts))
	}
	if n := w.CountValidStartingPoints(5, 1, 5, 5.0, 1.0, PointConvert); n != 0 {
		t.Errorf("There is nothing after the last frame, got %d starting points", n)
	}
	if !w.IsValid(5.0, 5, 1.0, PointConvert) {
		t.Errorf("Association of straight slow tracks should be valid")
	}
}

func TestAssociationCopyOnWrite(t *testing.T) {
	data := NewData(straightLines(3, []Point{{X: 0, Y: 0}, {X: 0, Y: 50}}, []Point{{X: 1, Y: 0}, {X: 1, Y: 0}}))
	first := trackOf(data, 0, 1, 3)
	w := NewAssociationFrom(data, first)
	wp := w.Clone()
	second := trackOf(data, 1, 1, 3)
	wp.Insert(second)
	if w.Len() != 1 || wp.Len() != 2 {
		t.Errorf("Clone should not share track list: %d and %d tracks", w.Len(), wp.Len())
	}
	if wp.Find(second) < 0 || w.Find(second) >= 0 {
		t.Errorf("Wrong lookup of inserted track")
	}
	diff := DiffAssociations(w, wp)
	if len(diff.Removed) != 0 || len(diff.Added) != 1 || diff.Added[0].TrackID != second.ID() {
		t.Errorf("Wrong diff: %+v", diff)
	}
	if diff.Added[0].Start != 1 || diff.Added[0].End != 3 {
		t.Errorf("Wrong changed interval: %+v", diff.Added[0])
	}
	if !DiffAssociations(w, w.Clone()).Empty() {
		t.Errorf("Diff of equal associations should be empty")
	}
	if !wp.Remove(first) || wp.Len() != 1 {
		t.Errorf("Track should be removed")
	}
	if wp.Remove(first) {
		t.Errorf("Track should not be removed twice")
	}
}

func TestAssociationInsertClaimedPanics(t *testing.T) {
	data := NewData(straightLines(3, []Point{{X: 0, Y: 0}}, []Point{{X: 1, Y: 0}}))
	w := NewAssociationFrom(data, trackOf(data, 0, 1, 2))
	defer func() {
		if recover() == nil {
			t.Errorf("Inserting track sharing a detection should panic")
		}
	}()
	w.Insert(trackOf(data, 0, 2, 3))
}

func TestAssociationTotals(t *testing.T) {
	data := NewData(straightLines(6, []Point{{X: 0, Y: 0}, {X: 0, Y: 50}}, []Point{{X: 1, Y: 0}, {X: 1, Y: 0}}))
	w := NewAssociationFrom(data, trackOf(data, 0, 1, 6), trackOf(data, 1, 2, 4))
	totals := w.Totals()
	correctAnswer := Totals{
		Tracks:          2,
		Entrances:       1,
		Exits:           1,
		TrueDetections:  9,
		NoiseDetections: 3,
		Length:          9,
	}
	if totals != correctAnswer {
		t.Errorf("Wrong answer: %+v, correct answer: %+v", totals, correctAnswer)
	}
}

func TestAssociationReadWrite(t *testing.T) {
	data := NewData([][]Point{
		{{X: 0, Y: 0}, {X: 0, Y: 50}},
		{{X: 1, Y: 0}, {X: 1, Y: 1}, {X: 1, Y: 50}},
		{{X: 2, Y: 50}},
		{{X: 3, Y: 0}},
	})
	w := NewAssociationFrom(data,
		NewTrackFrom(data.Ref(1, 0), data.Ref(2, 0), data.Ref(2, 1), data.Ref(4, 0)),
		NewTrackFrom(data.Ref(1, 1), data.Ref(2, 2), data.Ref(3, 0)),
	)
	var buf bytes.Buffer
	if err := w.Write(&buf); err != nil {
		t.Fatal(err)
	}
	correctText := "0  0,1  -1  0\n1  2  0  -1\n"
	if buf.String() != correctText {
		t.Errorf("Wrong text:\n%q\ncorrect text:\n%q", buf.String(), correctText)
	}
	read, err := ReadAssociation(strings.NewReader("# two tracks\n\n"+buf.String()), data)
	if err != nil {
		t.Fatal(err)
	}
	if read.Len() != w.Len() {
		t.Fatalf("Wrong number of tracks read: %d, expected %d", read.Len(), w.Len())
	}
	for i := 0; i < w.Len(); i++ {
		if !read.Track(i).Equal(w.Track(i)) {
			t.Errorf("Track %d differs: %v, expected %v", i, read.Track(i).Entries(), w.Track(i).Entries())
		}
	}
}

func TestAssociationReadMalformed(t *testing.T) {
	data := NewData([][]Point{
		{{X: 0, Y: 0}},
		{{X: 1, Y: 0}},
	})
	inputs := []string{
		"0\n",
		"0 5\n",
		"0 x\n",
		"0 0,-1\n",
		"-1 -1\n",
		"0 0\n0 -1\n",
	}
	for _, input := range inputs {
		_, err := ReadAssociation(strings.NewReader(input), data)
		if !errors.Is(err, ErrMalformedAssociation) {
			t.Errorf("Input %q: expected malformed association error, got %v", input, err)
		}
	}
}
