package mcmcda

import (
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Direction of growth along the time axis
type Direction int

const (
	// Forward grows a track towards later frames
	Forward = Direction(1)
	// Backward grows a track towards earlier frames
	Backward = Direction(-1)
)

func (dir Direction) String() string {
	switch dir {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	default:
		return fmt.Sprintf("Direction(%d)", int(dir))
	}
}

// MotionModel selects the estimator used to predict where a track continues
type MotionModel uint16

const (
	// MotionTwoPoint takes the difference between the current frame and the first frame at least b_bar/4 frames away
	MotionTwoPoint = MotionModel(iota)
	// MotionLeastSquares fits a line through the last b_bar frames by ordinary least squares
	MotionLeastSquares
	// MotionTotalLeastSquares fits a line through the last b_bar frames by orthogonal regression
	MotionTotalLeastSquares
	// MotionKalman smooths the last b_bar frames with a constant velocity Kalman filter
	MotionKalman
)

func (model MotionModel) String() string {
	switch model {
	case MotionTwoPoint:
		return "two-point"
	case MotionLeastSquares:
		return "ls"
	case MotionTotalLeastSquares:
		return "tls"
	case MotionKalman:
		return "kalman"
	default:
		return fmt.Sprintf("MotionModel(%d)", uint16(model))
	}
}

// ParseMotionModel converts textual name (as given by String()) to MotionModel
func ParseMotionModel(name string) (MotionModel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "two-point", "twopoint":
		return MotionTwoPoint, nil
	case "ls", "least-squares":
		return MotionLeastSquares, nil
	case "tls", "total-least-squares":
		return MotionTotalLeastSquares, nil
	case "kalman":
		return MotionKalman, nil
	default:
		return MotionTwoPoint, errors.Wrapf(ErrInvalidConfig, "unknown motion model '%s'", name)
	}
}

// Motion is the estimated state of a track at some frame.
// Velocity is expressed per frame in the direction of growth and is meaningful only when HasVelocity is set.
type Motion struct {
	Position    Point
	Velocity    Point
	HasVelocity bool
}

// Predict returns expected position d frames away in the direction of growth
func (motion Motion) Predict(d int) Point {
	if !motion.HasVelocity {
		return motion.Position
	}
	return motion.Position.Add(motion.Velocity.Scale(float64(absInt(d))))
}

type motionEstimator[D any] struct {
	model         MotionModel
	bBar          int
	vBar          float64
	noiseVariance float64
	convert       ConvertFunc[D]
	average       AverageFunc[D]
}

// estimate returns the state of a track at occupied frame t using history at or before t (Forward)
// or at or after t (Backward). Windowed fits fall back to the two-point estimate when the history
// is too short. A single occupied frame gives no velocity.
func (est *motionEstimator[D]) estimate(track *Track[D], t int, dir Direction) Motion {
	history := motionHistory(track, t, dir)
	switch est.model {
	case MotionLeastSquares:
		return est.leastSquares(history, t)
	case MotionTotalLeastSquares:
		return est.totalLeastSquares(history, t)
	case MotionKalman:
		return est.kalman(history, t)
	default:
		return est.twoPoint(history, t)
	}
}

// motionHistory returns entries ordered away from occupied frame t, against the direction of growth
func motionHistory[D any](track *Track[D], t int, dir Direction) []Ref[D] {
	if !track.Has(t) {
		panic(fmt.Sprintf("mcmcda: frame %d is not occupied by the track", t))
	}
	if dir == Forward {
		upto := track.entries[:track.upperBound(t)]
		history := make([]Ref[D], len(upto))
		for i := range upto {
			history[i] = upto[len(upto)-1-i]
		}
		return history
	}
	history := make([]Ref[D], len(track.entries)-track.lowerBound(t))
	copy(history, track.entries[track.lowerBound(t):])
	return history
}

// frameEnd returns index right after the run of entries sharing the time of history[from]
func frameEnd[D any](history []Ref[D], from int) int {
	to := from
	for to < len(history) && history[to].Time == history[from].Time {
		to++
	}
	return to
}

// position converts the average of several detections of one frame
func (est *motionEstimator[D]) position(refs []Ref[D]) Point {
	dets := make([]*D, len(refs))
	for i := range refs {
		dets[i] = refs[i].Det
	}
	avg := est.average(dets)
	return est.convert(&avg)
}

func (est *motionEstimator[D]) twoPoint(history []Ref[D], t int) Motion {
	wsz := est.bBar / 4
	n := frameEnd(history, 0)
	motion := Motion{Position: est.position(history[:n])}
	if n == len(history) {
		return motion
	}
	k := n
	wnd := absInt(history[k].Time - t)
	for wnd < wsz {
		k++
		if k == len(history) {
			break
		}
		wnd = absInt(history[k].Time - t)
	}
	if wnd < wsz {
		return motion
	}
	from := est.position(history[k:frameEnd(history, k)])
	motion.Velocity = motion.Position.Sub(from).Scale(1.0 / float64(wnd))
	motion.HasVelocity = true
	return motion
}

// lineSamples collects positions of individual entries while they are within window of b_bar frames,
// plus the first entry reaching it. Returns false when the history never reaches the window.
func (est *motionEstimator[D]) lineSamples(history []Ref[D], t int) (xs, ys []float64, wnd int, ok bool) {
	first := est.convert(history[0].Det)
	xs = append(xs, first.X)
	ys = append(ys, first.Y)
	for k := 1; wnd < est.bBar; k++ {
		if k == len(history) {
			return xs, ys, wnd, false
		}
		p := est.convert(history[k].Det)
		xs = append(xs, p.X)
		ys = append(ys, p.Y)
		wnd = absInt(history[k].Time - t)
	}
	return xs, ys, wnd, len(xs) > 1
}

// leastSquares regresses y on x over the window. The fitted line gives the current position and
// the direction of motion between the farthest sample and now.
func (est *motionEstimator[D]) leastSquares(history []Ref[D], t int) Motion {
	xs, ys, wnd, ok := est.lineSamples(history, t)
	if !ok {
		return est.twoPoint(history, t)
	}
	pN := est.position(history[:frameEnd(history, 0)])
	x1, y1 := xs[len(xs)-1], ys[len(ys)-1]
	scale := 1.0 / float64(wnd)
	if floats.Max(xs) == floats.Min(xs) {
		// Vertical motion: y is not a function of x
		return Motion{
			Position:    pN,
			Velocity:    Point{X: 0, Y: (pN.Y - y1) * scale},
			HasVelocity: true,
		}
	}
	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	fN := alpha + beta*pN.X
	f1 := alpha + beta*x1
	return Motion{
		Position:    Point{X: pN.X, Y: fN},
		Velocity:    Point{X: (pN.X - x1) * scale, Y: (fN - f1) * scale},
		HasVelocity: true,
	}
}

// totalLeastSquares fits a line minimizing orthogonal distances: its normal is the eigenvector of the
// scatter matrix with the smallest eigenvalue. Newest and oldest samples are projected onto the line.
func (est *motionEstimator[D]) totalLeastSquares(history []Ref[D], t int) Motion {
	xs, ys, wnd, ok := est.lineSamples(history, t)
	if !ok {
		return est.twoPoint(history, t)
	}
	xBar, yBar := stat.Mean(xs, nil), stat.Mean(ys, nil)
	var sxx, sxy, syy float64
	for i := range xs {
		dx, dy := xs[i]-xBar, ys[i]-yBar
		sxx += dx * dx
		sxy += dx * dy
		syy += dy * dy
	}
	scatter := mat.NewSymDense(2, []float64{sxx, sxy, sxy, syy})
	var eig mat.EigenSym
	if !eig.Factorize(scatter, true) {
		return est.twoPoint(history, t)
	}
	var vectors mat.Dense
	eig.VectorsTo(&vectors)
	// Eigenvalues are in ascending order
	a, b := vectors.At(0, 0), vectors.At(1, 0)
	norm := math.Hypot(a, b)
	if norm == 0 {
		return est.twoPoint(history, t)
	}
	a, b = a/norm, b/norm
	project := func(x, y float64) Point {
		off := a*(x-xBar) + b*(y-yBar)
		return Point{X: x - off*a, Y: y - off*b}
	}
	pN := project(xs[0], ys[0])
	p1 := project(xs[len(xs)-1], ys[len(ys)-1])
	return Motion{
		Position:    pN,
		Velocity:    pN.Sub(p1).Scale(1.0 / float64(wnd)),
		HasVelocity: true,
	}
}
