// Package formanalyzer watches joint angles against an exercise's form
// checks and raises debounced, cooldown-gated alerts. Grounded on
// original_source/services/exercise/src/exercise/form_analyzer.py.
package formanalyzer

import (
	"fmt"
	"math"
	"time"

	"github.com/gymcore/exercise/pkg/events"
	"github.com/gymcore/exercise/pkg/geometry"
	"github.com/gymcore/exercise/pkg/registry"
)

const (
	debounceFrames = 3
	cooldown       = 10 * time.Second
)

// Clock abstracts the monotonic clock used for cooldown timing.
type Clock interface {
	Now() time.Time
}

// RealClock is the production Clock backed by the runtime monotonic clock.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time { return time.Now() }

// alertState is the debounce/cooldown bookkeeping for one (track, form
// check) pair.
type alertState struct {
	consecutiveFrames int
	lastFiredAt       time.Time
	fired             bool
}

type stateKey struct {
	trackID  int
	alertKey string
}

// FormAnalyzer watches one exercise's form checks across every track.
type FormAnalyzer struct {
	def   registry.ExerciseDefinition
	clock Clock
	state map[stateKey]*alertState
}

// New creates a form analyzer for def.
func New(def registry.ExerciseDefinition) *FormAnalyzer {
	return &FormAnalyzer{
		def:   def,
		clock: RealClock{},
		state: make(map[stateKey]*alertState),
	}
}

// WithClock overrides the clock used for cooldown timing; for tests only.
func (a *FormAnalyzer) WithClock(c Clock) *FormAnalyzer {
	a.clock = c
	return a
}

// Check evaluates every form check for trackID against keypoints and
// returns the alerts that clear debounce and cooldown this frame.
// exerciseSetID and repCount are stamped directly onto any fired alert;
// only CameraID is left for the pipeline to fill in, since the analyzer
// has no notion of which camera it is running for.
func (a *FormAnalyzer) Check(trackID int, keypoints []events.Keypoint, exerciseSetID string, repCount int, timestampNs int64) []events.FormAlertEvent {
	var fired []events.FormAlertEvent
	now := a.clock.Now()
	jointAngles := make(map[string]float64)

	for _, check := range a.def.FormChecks {
		key := stateKey{trackID: trackID, alertKey: check.AlertKey}
		st, ok := a.state[key]
		if !ok {
			st = &alertState{}
			a.state[key] = st
		}

		angle, ok := geometry.JointAngle(keypoints, check.Joint[0], check.Joint[1], check.Joint[2])
		if !ok {
			st.consecutiveFrames = 0
			continue
		}
		jointLabel := fmt.Sprintf("%d-%d-%d", check.Joint[0], check.Joint[1], check.Joint[2])
		jointAngles[jointLabel] = roundTo1(angle)

		outOfRange := angle < check.MinAngle || angle > check.MaxAngle
		if !outOfRange {
			st.consecutiveFrames = 0
			continue
		}

		st.consecutiveFrames++
		if st.consecutiveFrames < debounceFrames {
			continue
		}
		if st.fired && now.Sub(st.lastFiredAt) < cooldown {
			continue
		}

		st.fired = true
		st.lastFiredAt = now
		snapshot := make(map[string]float64, len(jointAngles))
		for k, v := range jointAngles {
			snapshot[k] = v
		}
		fired = append(fired, events.FormAlertEvent{
			TrackID:       trackID,
			ExerciseSetID: exerciseSetID,
			ExerciseType:  a.def.Name,
			RepCount:      repCount,
			AlertKey:      check.AlertKey,
			AlertMessage:  check.AlertMessage,
			Severity:      check.Severity,
			JointAngles:   snapshot,
			TimestampNs:   timestampNs,
		})
	}

	return fired
}

func roundTo1(v float64) float64 {
	return math.Round(v*10) / 10
}
