package geometry

import (
	"testing"

	"github.com/gymcore/exercise/pkg/events"
)

func TestAngleRightAngle(t *testing.T) {
	// angle((x, 0), (0, 0), (0, y)) == 90.0 +/- 0.01 for any x, y > 0.
	for _, tc := range []struct{ x, y float64 }{
		{1, 1}, {5, 0.2}, {0.001, 100},
	} {
		got := Angle([2]float64{tc.x, 0}, [2]float64{0, 0}, [2]float64{0, tc.y})
		if diff := got - 90.0; diff < -0.01 || diff > 0.01 {
			t.Errorf("Angle(x=%v,y=%v) = %v, want ~90.0", tc.x, tc.y, got)
		}
	}
}

func TestAngleStraightLine(t *testing.T) {
	got := Angle([2]float64{0, 0}, [2]float64{1, 0}, [2]float64{2, 0})
	if diff := got - 180.0; diff < -0.01 || diff > 0.01 {
		t.Errorf("Angle(straight line) = %v, want ~180.0", got)
	}
}

func TestAngleDegenerateVertex(t *testing.T) {
	// b coincides with a: zero-magnitude vector -> 0.0
	got := Angle([2]float64{1, 1}, [2]float64{1, 1}, [2]float64{0, 2})
	if got != 0.0 {
		t.Errorf("Angle(degenerate) = %v, want 0.0", got)
	}
}

func kp(x, y, vis float64) events.Keypoint {
	return events.Keypoint{X: x, Y: y, Visibility: vis}
}

func TestJointAngleUndefinedOnLowVisibility(t *testing.T) {
	keypoints := make([]events.Keypoint, events.NumKeypoints)
	for i := range keypoints {
		keypoints[i] = kp(float64(i), 0, 1.0)
	}
	keypoints[5] = kp(5, 0, 0.1) // below threshold

	if _, ok := JointAngle(keypoints, 4, 5, 6); ok {
		t.Error("expected undefined when a referenced keypoint has low visibility")
	}
	if _, ok := JointAngle(keypoints, 3, 4, 6); !ok {
		t.Error("expected defined when all three keypoints are visible")
	}
}

func TestJointAngleOutOfRangeIndex(t *testing.T) {
	keypoints := make([]events.Keypoint, 5)
	for i := range keypoints {
		keypoints[i] = kp(float64(i), 0, 1.0)
	}
	if _, ok := JointAngle(keypoints, 0, 1, 10); ok {
		t.Error("expected undefined for out-of-range index")
	}
}

func TestMedianOfLastNOdd(t *testing.T) {
	series := []float64{1, 2, 3, 4, 5}
	if got := MedianOfLastN(series, 5); got != 3 {
		t.Errorf("median = %v, want 3", got)
	}
}

func TestMedianOfLastNEvenAverages(t *testing.T) {
	series := []float64{10, 20, 30, 40}
	if got := MedianOfLastN(series, 4); got != 25 {
		t.Errorf("median = %v, want 25", got)
	}
}

func TestMedianOfLastNWindow(t *testing.T) {
	series := []float64{100, 100, 1, 2, 3, 4, 5}
	if got := MedianOfLastN(series, 5); got != 3 {
		t.Errorf("median of last 5 = %v, want 3", got)
	}
}

func TestMedianOfLastNEmpty(t *testing.T) {
	if got := MedianOfLastN(nil, 5); got != 0.0 {
		t.Errorf("median of empty = %v, want 0.0", got)
	}
}
