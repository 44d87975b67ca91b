package mcmcda

import (
	"math"
	"testing"
)

const (
	eps = 0.00001
)

func TestEuclideanDistance(t *testing.T) {
	// Target moving by (3, 4) per frame
	frames := straightLines(4, []Point{{X: 2, Y: -1}}, []Point{{X: 3, Y: 4}})
	for d := 1; d < len(frames); d++ {
		correctAnswer := 5.0 * float64(d)
		answer := euclideanDistance(frames[0][0], frames[d][0])
		if math.Abs(answer-correctAnswer) > eps {
			t.Errorf("Wrong answer: %v, correct answer: %v", answer, correctAnswer)
		}
		back := euclideanDistance(frames[d][0], frames[0][0])
		if math.Abs(back-answer) > eps {
			t.Errorf("Distance should be symmetric: %v and %v", answer, back)
		}
	}
	if answer := euclideanDistance(frames[2][0], frames[2][0]); answer != 0 {
		t.Errorf("Wrong answer: %v, correct answer: 0", answer)
	}
	if answer := NewPoint(-3, 4).Norm(); math.Abs(answer-5) > eps {
		t.Errorf("Wrong norm: %v, correct answer: 5", answer)
	}
}

func TestMeanPoint(t *testing.T) {
	answer := meanPoint([]Point{{X: 0, Y: 0}, {X: 2, Y: 4}, {X: 4, Y: 2}})
	if math.Abs(answer.X-2) > eps || math.Abs(answer.Y-2) > eps {
		t.Errorf("Wrong answer: %v, correct answer: %v", answer, Point{X: 2, Y: 2})
	}
	empty := meanPoint(nil)
	if empty != (Point{}) {
		t.Errorf("Mean of nothing should be zero point, got %v", empty)
	}
}
