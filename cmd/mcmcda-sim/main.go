// Command mcmcda-sim generates a synthetic scene of targets moving along straight lines,
// builds an initial association and runs a chain of MCMCDA proposals over it.
// Every proposal is written to CSV.
//
// Configuration comes from environment (a .env file in working directory is loaded first):
//
//	MCMCDA_TARGETS     number of targets (default 4)
//	MCMCDA_FRAMES      number of frames (default 30)
//	MCMCDA_CLUTTER     clutter detections per frame (default 2)
//	MCMCDA_MISS        probability of missed detection (default 0.1)
//	MCMCDA_ITERATIONS  number of proposals (default 500)
//	MCMCDA_GIBBS       Gibbs sweeps over detections after the chain (default 0)
//	MCMCDA_SEED        random seed (default 1)
//	MCMCDA_MOTION      motion model: two-point, ls, tls, kalman (default ls)
//	MCMCDA_MATCHING    initial linking: hungarian, greedy (default hungarian)
//	MCMCDA_OUTPUT      CSV file (default stdout)
//	MCMCDA_ASSOCIATION file to write the final association to (optional)
//	MCMCDA_DEBUG       enable debug logging when set to true
package main

import (
	"encoding/csv"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"strconv"

	"github.com/LdDl/mcmcda-go/mcmcda"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	sceneSize = 200.0
	maxSpeed  = 5.0
	noiseStd  = 0.5
)

type settings struct {
	targets     int
	frames      int
	clutter     int
	miss        float64
	iterations  int
	gibbs       int
	seed        uint64
	motion      mcmcda.MotionModel
	matching    mcmcda.MatchingAlgorithm
	output      string
	association string
	debug       bool
}

func main() {
	// Missing .env is fine: everything has defaults
	_ = godotenv.Load()

	cfg, err := readSettings()
	if err != nil {
		slog.Error("bad configuration", "err", err)
		os.Exit(1)
	}
	level := slog.LevelInfo
	if cfg.debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	err = run(cfg, logger)
	if err != nil {
		logger.Error("simulation failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg settings, logger *slog.Logger) error {
	rng := rand.New(rand.NewPCG(cfg.seed, cfg.seed^0x9e3779b97f4a7c15))
	data := mcmcda.NewData(generateScene(cfg, rng))

	proposer, err := mcmcda.NewProposer(mcmcda.PointConvert, mcmcda.PointAverage,
		mcmcda.WithMaxSpeed(maxSpeed),
		mcmcda.WithNoiseVariance(noiseStd*noiseStd),
		mcmcda.WithMotionModel(cfg.motion),
		mcmcda.WithRand(rng),
		mcmcda.WithLogger(logger.With("component", "mcmcda")),
	)
	if err != nil {
		return errors.Wrap(err, "can't create proposer")
	}

	w := proposer.Initialize(data, cfg.matching)
	totals := w.Totals()
	logger.Info("initial association",
		"tracks", totals.Tracks, "true", totals.TrueDetections, "noise", totals.NoiseDetections, "matching", cfg.matching)

	var out io.Writer = os.Stdout
	if cfg.output != "" {
		file, err := os.Create(cfg.output)
		if err != nil {
			return errors.Wrapf(err, "can't create file '%s'", cfg.output)
		}
		defer file.Close()
		out = file
	}
	writer := csv.NewWriter(out)
	err = writer.Write([]string{"iteration", "move", "forward", "reverse", "attempts", "accepted", "tracks", "noise"})
	if err != nil {
		return errors.Wrap(err, "can't write CSV header")
	}

	accepted := 0
	for i := 1; i <= cfg.iterations; i++ {
		result, err := proposer.Propose(w)
		if err != nil {
			return errors.Wrapf(err, "iteration %d", i)
		}
		// No likelihood here: the chain targets the uniform distribution over associations
		ok := math.Log(rng.Float64()) < result.Reverse-result.Forward
		if ok {
			w = result.Assoc
			accepted++
		}
		totals = w.Totals()
		err = writer.Write([]string{
			strconv.Itoa(i),
			result.Name,
			strconv.FormatFloat(result.Forward, 'f', 6, 64),
			strconv.FormatFloat(result.Reverse, 'f', 6, 64),
			strconv.Itoa(result.Attempts),
			strconv.FormatBool(ok),
			strconv.Itoa(totals.Tracks),
			strconv.Itoa(totals.NoiseDetections),
		})
		if err != nil {
			return errors.Wrapf(err, "can't write CSV row %d", i)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return errors.Wrap(err, "can't flush CSV")
	}
	logger.Info("chain finished", "iterations", cfg.iterations, "accepted", accepted, "tracks", w.Len())

	if cfg.gibbs > 0 {
		w, err = refine(w, cfg, rng, logger)
		if err != nil {
			return err
		}
	}

	if cfg.association != "" {
		return w.WriteFile(cfg.association)
	}
	return nil
}

// refine runs Gibbs sweeps under a posterior rewarding assigned detections and penalizing every track
// by the detections it takes to pay off
func refine(w *mcmcda.Association[mcmcda.Point], cfg settings, rng *rand.Rand, logger *slog.Logger) (*mcmcda.Association[mcmcda.Point], error) {
	logPosterior := func(w *mcmcda.Association[mcmcda.Point]) float64 {
		totals := w.Totals()
		return float64(totals.TrueDetections) - 3*float64(totals.Tracks)
	}
	gibbs, err := mcmcda.NewGibbsProposer(mcmcda.PointConvert, logPosterior,
		mcmcda.WithMaxSpeed(maxSpeed),
		mcmcda.WithNoiseVariance(noiseStd*noiseStd),
		mcmcda.WithRand(rng),
		mcmcda.WithLogger(logger.With("component", "gibbs")),
	)
	if err != nil {
		return nil, errors.Wrap(err, "can't create Gibbs proposer")
	}
	for sweep := 1; sweep <= cfg.gibbs; sweep++ {
		w, err = gibbs.Sweep(w)
		if err != nil {
			return nil, errors.Wrapf(err, "sweep %d", sweep)
		}
	}
	totals := w.Totals()
	logger.Info("gibbs finished", "sweeps", cfg.gibbs, "tracks", totals.Tracks, "noise", totals.NoiseDetections)
	return w, nil
}

// generateScene places targets with random start and velocity, adds Gaussian noise, misses and uniform clutter
func generateScene(cfg settings, rng *rand.Rand) [][]mcmcda.Point {
	noise := distuv.Normal{Mu: 0, Sigma: noiseStd, Src: rng}
	uniform := distuv.Uniform{Min: 0, Max: sceneSize, Src: rng}
	speed := distuv.Uniform{Min: -maxSpeed / 2, Max: maxSpeed / 2, Src: rng}

	starts := make([]mcmcda.Point, cfg.targets)
	velocities := make([]mcmcda.Point, cfg.targets)
	for i := range starts {
		starts[i] = mcmcda.NewPoint(uniform.Rand(), uniform.Rand())
		velocities[i] = mcmcda.NewPoint(speed.Rand(), speed.Rand())
	}
	frames := make([][]mcmcda.Point, cfg.frames)
	for t := range frames {
		frame := make([]mcmcda.Point, 0, cfg.targets+cfg.clutter)
		for i := range starts {
			if rng.Float64() < cfg.miss {
				continue
			}
			p := starts[i].Add(velocities[i].Scale(float64(t)))
			frame = append(frame, mcmcda.NewPoint(p.X+noise.Rand(), p.Y+noise.Rand()))
		}
		for k := 0; k < cfg.clutter; k++ {
			frame = append(frame, mcmcda.NewPoint(uniform.Rand(), uniform.Rand()))
		}
		// Detection order must not reveal identities
		rng.Shuffle(len(frame), func(i, j int) {
			frame[i], frame[j] = frame[j], frame[i]
		})
		frames[t] = frame
	}
	return frames
}

func readSettings() (settings, error) {
	cfg := settings{
		targets:    4,
		frames:     30,
		clutter:    2,
		miss:       0.1,
		iterations: 500,
		seed:       1,
		motion:     mcmcda.MotionLeastSquares,
		matching:   mcmcda.MatchingAlgorithmHungarian,
	}
	var err error
	if cfg.targets, err = envInt("MCMCDA_TARGETS", cfg.targets); err != nil {
		return cfg, err
	}
	if cfg.frames, err = envInt("MCMCDA_FRAMES", cfg.frames); err != nil {
		return cfg, err
	}
	if cfg.clutter, err = envInt("MCMCDA_CLUTTER", cfg.clutter); err != nil {
		return cfg, err
	}
	if cfg.iterations, err = envInt("MCMCDA_ITERATIONS", cfg.iterations); err != nil {
		return cfg, err
	}
	if cfg.gibbs, err = envInt("MCMCDA_GIBBS", cfg.gibbs); err != nil {
		return cfg, err
	}
	if v, ok := os.LookupEnv("MCMCDA_MISS"); ok {
		if cfg.miss, err = strconv.ParseFloat(v, 64); err != nil {
			return cfg, errors.Wrap(err, "MCMCDA_MISS")
		}
	}
	if v, ok := os.LookupEnv("MCMCDA_SEED"); ok {
		if cfg.seed, err = strconv.ParseUint(v, 10, 64); err != nil {
			return cfg, errors.Wrap(err, "MCMCDA_SEED")
		}
	}
	if v, ok := os.LookupEnv("MCMCDA_MOTION"); ok {
		if cfg.motion, err = mcmcda.ParseMotionModel(v); err != nil {
			return cfg, err
		}
	}
	if v, ok := os.LookupEnv("MCMCDA_MATCHING"); ok {
		if cfg.matching, err = mcmcda.ParseMatchingAlgorithm(v); err != nil {
			return cfg, err
		}
	}
	if v, ok := os.LookupEnv("MCMCDA_DEBUG"); ok {
		if cfg.debug, err = strconv.ParseBool(v); err != nil {
			return cfg, errors.Wrap(err, "MCMCDA_DEBUG")
		}
	}
	cfg.output = os.Getenv("MCMCDA_OUTPUT")
	cfg.association = os.Getenv("MCMCDA_ASSOCIATION")
	if cfg.targets < 0 || cfg.frames < 1 || cfg.clutter < 0 || cfg.iterations < 0 || cfg.gibbs < 0 {
		return cfg, errors.New("counts must not be negative and there must be at least one frame")
	}
	return cfg, nil
}

func envInt(name string, def int) (int, error) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, errors.Wrap(err, name)
	}
	return n, nil
}
