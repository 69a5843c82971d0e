package repcounter

import (
	"testing"
	"time"

	"github.com/gymcore/exercise/pkg/registry"
)

var squatDef = registry.ExerciseDefinition{
	Name:         "squat",
	PrimaryJoint: [3]int{11, 13, 15},
	UpAngle:      160,
	DownAngle:    100,
}

// fakeClock is a manually-advanced Clock for deterministic idle-rollover tests.
type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }
func (f *fakeClock) advance(d time.Duration) { f.now = f.now.Add(d) }

func feed(t *testing.T, rc *RepCounter, trackID int, angles []float64) []bool {
	t.Helper()
	fired := make([]bool, len(angles))
	for i, a := range angles {
		_, ok := rc.Update(trackID, a, true, int64(i))
		fired[i] = ok
	}
	return fired
}

// up/down thresholds: up=160, down=100. Five samples per phase are just
// enough for the 5-sample median to cross over and for phaseLockFrames
// (3) to confirm the new phase on the last sample of each run.
func squatCycle() []float64 {
	var out []float64
	down := []float64{100, 95, 95, 95, 95}
	up := []float64{160, 165, 165, 165, 165}
	out = append(out, up...) // establish UP baseline first
	out = append(out, down...)
	out = append(out, up...)
	return out
}

func TestFiveSquatReps(t *testing.T) {
	rc := New(squatDef, time.Minute)
	reps := 0
	for i := 0; i < 5; i++ {
		fired := feed(t, rc, 1, squatCycle())
		for _, f := range fired {
			if f {
				reps++
			}
		}
	}
	if reps != 5 {
		t.Errorf("rep count = %d, want 5", reps)
	}
	if rc.RepCount(1) != 5 {
		t.Errorf("RepCount() = %d, want 5", rc.RepCount(1))
	}
}

func TestNoDownPhaseYieldsZeroReps(t *testing.T) {
	rc := New(squatDef, time.Minute)
	angles := make([]float64, 0)
	for i := 0; i < 50; i++ {
		angles = append(angles, 165)
	}
	fired := feed(t, rc, 1, angles)
	for i, f := range fired {
		if f {
			t.Errorf("frame %d: unexpected rep with no down phase", i)
		}
	}
	if rc.RepCount(1) != 0 {
		t.Errorf("RepCount() = %d, want 0", rc.RepCount(1))
	}
}

func TestNoiseAtThresholdYieldsZeroReps(t *testing.T) {
	rc := New(squatDef, time.Minute)
	// Oscillate right around the up threshold (160): the smoothed angle
	// never comes near the down threshold, so no DOWN phase is confirmed
	// and no rep can complete.
	angles := []float64{161, 158, 163, 157, 160, 162, 159, 163, 157, 161}
	feed(t, rc, 1, angles)
	if rc.RepCount(1) != 0 {
		t.Errorf("RepCount() = %d, want 0", rc.RepCount(1))
	}
}

func TestRepCountNeverDecreases(t *testing.T) {
	rc := New(squatDef, time.Minute)
	last := 0
	for i := 0; i < 3; i++ {
		feed(t, rc, 1, squatCycle())
		cur := rc.RepCount(1)
		if cur < last {
			t.Fatalf("rep count decreased: %d -> %d", last, cur)
		}
		last = cur
	}
}

func TestIdleTimeoutStartsNewSet(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	rc := New(squatDef, time.Minute).WithClock(clock)

	feed(t, rc, 1, squatCycle())
	firstSetID := rc.SetID(1)
	firstRepCount := rc.RepCount(1)
	if firstRepCount == 0 {
		t.Fatalf("expected at least one rep before idle rollover")
	}

	clock.advance(2 * time.Minute)
	feed(t, rc, 1, squatCycle())

	if rc.SetID(1) == firstSetID {
		t.Errorf("expected a new set_id after idle timeout")
	}
	if rc.RepCount(1) != 1 {
		t.Errorf("expected rep count to reset to reflect only the new set's reps, got %d", rc.RepCount(1))
	}
}

func TestUnobservableAngleDoesNotAdvancePhase(t *testing.T) {
	rc := New(squatDef, time.Minute)
	_, ok := rc.Update(1, 0, false, 0)
	if ok {
		t.Error("expected no rep event when angle is unobservable")
	}
	if got := rc.tracks[1].Phase; got != PhaseUnknown {
		t.Errorf("phase = %q, want %q after an unobservable frame", got, PhaseUnknown)
	}
}
