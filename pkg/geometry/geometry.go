// Package geometry computes joint angles from keypoint triples and
// smooths noisy angle signals. Grounded on
// original_source/services/exercise/src/exercise/keypoint_utils.py.
package geometry

import (
	"math"
	"sort"

	"github.com/gymcore/exercise/pkg/events"
)

// visibilityThreshold is the minimum keypoint visibility treated as a
// valid reading anywhere in the analysis pipeline.
const visibilityThreshold = 0.3

// Angle returns the degree measure, in [0, 180], of the angle at vertex b
// formed by rays b→a and b→c. If either ray has magnitude below 1e-9 the
// result is 0.0 (the vertex coincides with one of its neighbors).
func Angle(a, b, c [2]float64) float64 {
	ax, ay := a[0]-b[0], a[1]-b[1]
	cx, cy := c[0]-b[0], c[1]-b[1]

	magA := math.Hypot(ax, ay)
	magC := math.Hypot(cx, cy)
	if magA < 1e-9 || magC < 1e-9 {
		return 0.0
	}

	dot := ax*cx + ay*cy
	cos := dot / (magA * magC)
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return radToDeg(math.Acos(cos))
}

func radToDeg(r float64) float64 {
	return r * 180.0 / math.Pi
}

// JointAngle computes the angle at keypoint index b among the triple
// (a, b, c). It returns (0, false) — "undefined" — if any index is out of
// range or any of the three referenced keypoints has visibility below
// threshold.
func JointAngle(keypoints []events.Keypoint, a, b, c int) (float64, bool) {
	n := len(keypoints)
	if a < 0 || b < 0 || c < 0 || a >= n || b >= n || c >= n {
		return 0, false
	}
	ka, kb, kc := keypoints[a], keypoints[b], keypoints[c]
	if ka.Visibility < visibilityThreshold ||
		kb.Visibility < visibilityThreshold ||
		kc.Visibility < visibilityThreshold {
		return 0, false
	}
	return Angle(
		[2]float64{ka.X, ka.Y},
		[2]float64{kb.X, kb.Y},
		[2]float64{kc.X, kc.Y},
	), true
}

// MedianOfLastN returns the median of the most recent up to n samples of
// series. An even count of samples averages the two middle values; an
// empty slice returns 0.0.
func MedianOfLastN(series []float64, n int) float64 {
	if n <= 0 || len(series) == 0 {
		return 0.0
	}
	start := 0
	if len(series) > n {
		start = len(series) - n
	}
	recent := append([]float64(nil), series[start:]...)
	sort.Float64s(recent)

	mid := len(recent) / 2
	if len(recent)%2 == 0 {
		return (recent[mid-1] + recent[mid]) / 2.0
	}
	return recent[mid]
}
