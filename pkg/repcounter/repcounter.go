// Package repcounter implements the per-track UP/DOWN phase state
// machine that turns a smoothed primary-joint angle signal into a
// monotonic rep count. Grounded on
// original_source/services/exercise/src/exercise/rep_counter.py.
package repcounter

import (
	"time"

	"github.com/google/uuid"

	"github.com/gymcore/exercise/pkg/events"
	"github.com/gymcore/exercise/pkg/geometry"
	"github.com/gymcore/exercise/pkg/registry"
)

// Phase is the current half of a rep.
type Phase string

const (
	PhaseUnknown Phase = "unknown"
	PhaseUp      Phase = "up"
	PhaseDown    Phase = "down"
)

const (
	angleHistoryLen  = 7
	medianWindow     = 5
	phaseLockFrames  = 3
)

// Clock abstracts the monotonic clock used for idle rollover, so tests
// can drive time deterministically. time.Now() satisfies this via
// RealClock below.
type Clock interface {
	Now() time.Time
}

// RealClock is the production Clock backed by the runtime monotonic clock.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time { return time.Now() }

// TrackState is the mutable per-(track,exercise) state of the rep counter.
type TrackState struct {
	SetID           string
	RepCount        int
	Phase           Phase
	angleHistory    []float64
	phaseFrameCount int
	lastSeenAt      time.Time
}

func newTrackState(now time.Time) *TrackState {
	return &TrackState{
		SetID:      uuid.NewString(),
		Phase:      PhaseUnknown,
		lastSeenAt: now,
	}
}

// RepCounter counts reps for every track performing one exercise. One
// instance exists per exercise definition within a pipeline.
type RepCounter struct {
	def             registry.ExerciseDefinition
	setIdleTimeout  time.Duration
	clock           Clock
	tracks          map[int]*TrackState
}

// New creates a rep counter for def. setIdleTimeout is the duration of
// inactivity after which a track's next update starts a new set.
func New(def registry.ExerciseDefinition, setIdleTimeout time.Duration) *RepCounter {
	return &RepCounter{
		def:            def,
		setIdleTimeout: setIdleTimeout,
		clock:          RealClock{},
		tracks:         make(map[int]*TrackState),
	}
}

// WithClock overrides the clock used for idle rollover; for tests only.
func (r *RepCounter) WithClock(c Clock) *RepCounter {
	r.clock = c
	return r
}

// getOrCreate returns trackID's state, rolling it over into a fresh set
// if it has been idle longer than setIdleTimeout.
func (r *RepCounter) getOrCreate(trackID int) *TrackState {
	now := r.clock.Now()
	state, ok := r.tracks[trackID]
	if !ok {
		state = newTrackState(now)
		r.tracks[trackID] = state
		return state
	}
	if now.Sub(state.lastSeenAt) > r.setIdleTimeout {
		state = newTrackState(now)
		r.tracks[trackID] = state
	}
	return state
}

// Update processes one frame for trackID. angleOK is false when the
// primary joint was unobservable this frame. It returns a
// RepCountedEvent (without CameraID/ExerciseSetID populated — the
// pipeline fills those in) whenever a DOWN→UP transition completes.
func (r *RepCounter) Update(trackID int, angle float64, angleOK bool, timestampNs int64) (events.RepCountedEvent, bool) {
	state := r.getOrCreate(trackID)
	state.lastSeenAt = r.clock.Now()

	if !angleOK {
		return events.RepCountedEvent{}, false
	}

	state.angleHistory = append(state.angleHistory, angle)
	if len(state.angleHistory) > angleHistoryLen {
		state.angleHistory = state.angleHistory[len(state.angleHistory)-angleHistoryLen:]
	}
	smoothed := geometry.MedianOfLastN(state.angleHistory, medianWindow)

	upThresh, downThresh := r.def.UpAngle, r.def.DownAngle
	var inUp, inDown bool
	if upThresh > downThresh {
		inUp = smoothed >= upThresh
		inDown = smoothed <= downThresh
	} else {
		inUp = smoothed <= upThresh
		inDown = smoothed >= downThresh
	}

	var candidate Phase
	switch {
	case inUp:
		candidate = PhaseUp
	case inDown:
		candidate = PhaseDown
	}

	if candidate == "" || candidate == state.Phase {
		state.phaseFrameCount = 0
		return events.RepCountedEvent{}, false
	}

	state.phaseFrameCount++
	if state.phaseFrameCount < phaseLockFrames {
		return events.RepCountedEvent{}, false
	}

	prevPhase := state.Phase
	state.Phase = candidate
	state.phaseFrameCount = 0

	if prevPhase == PhaseDown && candidate == PhaseUp {
		state.RepCount++
		return events.RepCountedEvent{
			TrackID:       trackID,
			ExerciseType:  r.def.Name,
			RepNumber:     state.RepCount,
			RepCount:      state.RepCount,
			DurationMs:    0, // TODO: track rep start time to compute actual duration
			Phase:         string(candidate),
			TimestampNs:   timestampNs,
		}, true
	}
	return events.RepCountedEvent{}, false
}

// SetID returns the current set identifier for trackID, creating the
// track's state if it doesn't exist yet.
func (r *RepCounter) SetID(trackID int) string {
	return r.getOrCreate(trackID).SetID
}

// RepCount returns trackID's current rep count (0 if never observed).
func (r *RepCounter) RepCount(trackID int) int {
	if state, ok := r.tracks[trackID]; ok {
		return state.RepCount
	}
	return 0
}
