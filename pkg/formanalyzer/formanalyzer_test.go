package formanalyzer

import (
	"testing"
	"time"

	"github.com/gymcore/exercise/pkg/events"
	"github.com/gymcore/exercise/pkg/registry"
)

var kneeCaveDef = registry.ExerciseDefinition{
	Name:         "squat",
	PrimaryJoint: [3]int{11, 13, 15},
	UpAngle:      160,
	DownAngle:    100,
	FormChecks: []registry.FormCheck{
		{
			Name:         "knee_cave",
			Joint:        [3]int{11, 13, 15},
			MinAngle:     80,
			MaxAngle:     180,
			AlertKey:     "knee_cave",
			AlertMessage: "Keep your knees aligned over your toes",
			Severity:     "warning",
		},
	},
}

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time         { return f.now }
func (f *fakeClock) advance(d time.Duration) { f.now = f.now.Add(d) }

// outOfRangeKeypoints produces a frame where joint (11,13,15) reads an
// acutely bent angle well under the 80 degree minimum.
func outOfRangeKeypoints() []events.Keypoint {
	kps := make([]events.Keypoint, events.NumKeypoints)
	for i := range kps {
		kps[i] = events.Keypoint{X: float64(i), Y: 0, Visibility: 1.0}
	}
	kps[11] = events.Keypoint{X: 0, Y: 1, Visibility: 1.0}
	kps[13] = events.Keypoint{X: 0, Y: 0, Visibility: 1.0}
	kps[15] = events.Keypoint{X: 0.1, Y: 1, Visibility: 1.0}
	return kps
}

func inRangeKeypoints() []events.Keypoint {
	kps := make([]events.Keypoint, events.NumKeypoints)
	for i := range kps {
		kps[i] = events.Keypoint{X: float64(i), Y: 0, Visibility: 1.0}
	}
	return kps
}

func TestDebounceSuppressesBriefExcursion(t *testing.T) {
	a := New(kneeCaveDef)
	kps := outOfRangeKeypoints()

	for i := 0; i < 2; i++ {
		if alerts := a.Check(1, kps, "set-1", 0, int64(i)); len(alerts) != 0 {
			t.Errorf("frame %d: expected no alert before debounce, got %v", i, alerts)
		}
	}
}

func TestDebounceFiresAfterThreeFrames(t *testing.T) {
	a := New(kneeCaveDef)
	kps := outOfRangeKeypoints()

	var all []events.FormAlertEvent
	for i := 0; i < 5; i++ {
		all = append(all, a.Check(1, kps, "set-1", 3, int64(i))...)
	}
	if len(all) == 0 {
		t.Fatal("expected at least one alert after 5 consecutive out-of-range frames")
	}
	got := all[0]
	if got.ExerciseSetID != "set-1" {
		t.Errorf("ExerciseSetID = %q, want set-1", got.ExerciseSetID)
	}
	if got.RepCount != 3 {
		t.Errorf("RepCount = %d, want 3", got.RepCount)
	}
	if got.JointAngles["11-13-15"] == 0 {
		t.Errorf("expected joint_angles to contain the checked joint")
	}
}

func TestCooldownSuppressesRepeatAlerts(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	a := New(kneeCaveDef).WithClock(clock)
	kps := outOfRangeKeypoints()

	var fired []time.Time
	const hz = 60
	for i := 0; i < 12*hz; i++ {
		alerts := a.Check(1, kps, "set-1", 0, int64(i))
		if len(alerts) > 0 {
			fired = append(fired, clock.now)
		}
		clock.advance(time.Second / hz)
	}

	within10s := 0
	for _, ts := range fired {
		if ts.Sub(time.Unix(0, 0)) <= 10*time.Second {
			within10s++
		}
	}
	if within10s != 1 {
		t.Errorf("expected exactly one alert within the first 10s, got %d", within10s)
	}
	if len(fired) > 2 {
		t.Errorf("expected at most 2 alerts over 12s of continuous violation, got %d", len(fired))
	}
}

func TestInRangeResetsDebounceCounter(t *testing.T) {
	a := New(kneeCaveDef)
	out := outOfRangeKeypoints()
	in := inRangeKeypoints()

	a.Check(1, out, "set-1", 0, 0)
	a.Check(1, out, "set-1", 0, 1)
	a.Check(1, in, "set-1", 0, 2) // resets consecutive frame count
	alerts := a.Check(1, out, "set-1", 0, 3)
	if len(alerts) != 0 {
		t.Errorf("expected no alert: debounce counter should have reset, got %v", alerts)
	}
}
