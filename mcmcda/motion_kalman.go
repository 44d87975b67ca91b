package mcmcda

import (
	"math"

	kalman_filter "github.com/LdDl/kalman-filter"
)

const (
	// Lower bound for measurement standard deviation: the filter degenerates with zero noise
	kalmanMinStdDev = 1e-3
)

// kalman runs a constant velocity filter over frame averages within the b_bar window,
// oldest first, predicting through skipped frames. Velocity is the one step prediction
// minus the last filtered state.
func (est *motionEstimator[D]) kalman(history []Ref[D], t int) Motion {
	frames := make([]Point, 0, 8)
	lags := make([]int, 0, 8)
	for from := 0; from < len(history); {
		lag := absInt(history[from].Time - t)
		if lag > est.bBar {
			break
		}
		to := frameEnd(history, from)
		frames = append(frames, est.position(history[from:to]))
		lags = append(lags, lag)
		from = to
	}
	if len(frames) < 2 {
		return est.twoPoint(history, t)
	}

	stdDevM := math.Max(math.Sqrt(est.noiseVariance), kalmanMinStdDev)
	stdDevA := math.Max(est.vBar, kalmanMinStdDev)
	last := len(frames) - 1
	kf := kalman_filter.NewKalman2D(1.0, 0.0, 0.0, stdDevA, stdDevM, stdDevM, kalman_filter.WithState2D(frames[last].X, frames[last].Y))
	for i := last - 1; i >= 0; i-- {
		for step := lags[i+1] - lags[i]; step > 0; step-- {
			kf.Predict()
		}
		err := kf.Update(frames[i].X, frames[i].Y)
		if err != nil {
			return est.twoPoint(history, t)
		}
	}
	fx, fy := kf.GetState()
	kf.Predict()
	px, py := kf.GetState()
	return Motion{
		Position:    Point{X: fx, Y: fy},
		Velocity:    Point{X: px - fx, Y: py - fy},
		HasVelocity: true,
	}
}
