// Package classifier picks the dominant exercise for a track from
// short-term primary-joint angle variance — a stand-in for a learned
// classifier. Grounded on
// original_source/services/exercise/src/exercise/classifier.py.
package classifier

import (
	"math"

	"github.com/gymcore/exercise/pkg/events"
	"github.com/gymcore/exercise/pkg/geometry"
	"github.com/gymcore/exercise/pkg/registry"
)

const (
	window        = 30
	minSamples    = window / 2
	minVariance   = 5.0
	minConfidence = 0.5
)

// Unknown is returned by Update when no exercise is dominant.
const Unknown = "unknown"

// history is a fixed-capacity FIFO of the most recent primary-joint
// angles for one exercise.
type history struct {
	samples []float64
}

func (h *history) push(angle float64) {
	h.samples = append(h.samples, angle)
	if len(h.samples) > window {
		h.samples = h.samples[len(h.samples)-window:]
	}
}

func stddev(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	mean := 0.0
	for _, s := range samples {
		mean += s
	}
	mean /= float64(len(samples))

	variance := 0.0
	for _, s := range samples {
		d := s - mean
		variance += d * d
	}
	variance /= float64(len(samples))
	return math.Sqrt(variance)
}

// Classifier maintains per-track rolling angle histories, one instance
// shared across every track handled by a single camera pipeline.
type Classifier struct {
	registry *registry.Registry
	// track_id -> exercise name -> angle history
	histories map[int]map[string]*history
}

// New creates a classifier bound to the given (immutable, shared) registry.
func New(reg *registry.Registry) *Classifier {
	return &Classifier{
		registry:  reg,
		histories: make(map[int]map[string]*history),
	}
}

// Update records a new frame's keypoints for track, then returns the
// current best guess: (exercise name, confidence in [0,1]), or
// (Unknown, 0.0) when no exercise is dominant.
func (c *Classifier) Update(trackID int, keypoints []events.Keypoint) (string, float64) {
	hist, ok := c.histories[trackID]
	if !ok {
		hist = make(map[string]*history, len(c.registry.List()))
		for _, name := range c.registry.List() {
			hist[name] = &history{}
		}
		c.histories[trackID] = hist
	}

	for _, name := range c.registry.List() {
		def, err := c.registry.Get(name)
		if err != nil {
			continue
		}
		a, b, cc := def.PrimaryJoint[0], def.PrimaryJoint[1], def.PrimaryJoint[2]
		if angle, ok := geometry.JointAngle(keypoints, a, b, cc); ok {
			hist[name].push(angle)
		}
	}

	return classify(hist)
}

func classify(hist map[string]*history) (string, float64) {
	variances := make(map[string]float64)
	for name, h := range hist {
		if len(h.samples) < minSamples {
			continue
		}
		variances[name] = stddev(h.samples)
	}
	if len(variances) == 0 {
		return Unknown, 0.0
	}

	if _, hasPushUp := variances["push_up"]; hasPushUp {
		if _, hasCurl := variances["bicep_curl"]; hasCurl {
			disambiguateElbowExercises(variances, hist)
		}
	}

	best := ""
	bestStd := -1.0
	for name, std := range variances {
		if std > bestStd {
			best, bestStd = name, std
		}
	}
	if bestStd < minVariance {
		return Unknown, 0.0
	}

	total := 0.0
	for _, std := range variances {
		total += std
	}
	if total == 0 {
		total = 1.0
	}

	confidence := bestStd / total
	if confidence > 1.0 {
		confidence = 1.0
	}
	return best, roundTo2(confidence)
}

// disambiguateElbowExercises tells push-up from bicep curl using the
// squat primary-joint history as a proxy for lower-body motion. Present
// regardless of whether "squat" is registered: an absent key yields a
// zero-value history, which reads as "legs essentially still" below —
// see SPEC_FULL.md §5 item 3.
func disambiguateElbowExercises(variances map[string]float64, hist map[string]*history) {
	squatHist, ok := hist["squat"]
	lowerBodyRange := 0.0
	if ok && len(squatHist.samples) > 0 {
		lo, hi := squatHist.samples[0], squatHist.samples[0]
		for _, s := range squatHist.samples {
			if s < lo {
				lo = s
			}
			if s > hi {
				hi = s
			}
		}
		lowerBodyRange = hi - lo
	}

	if lowerBodyRange < 20 {
		if variances["push_up"] > variances["bicep_curl"]*1.5 {
			variances["bicep_curl"] = 0.0
		} else {
			variances["push_up"] = 0.0
		}
	}
}

func roundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}
