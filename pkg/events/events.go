// Package events defines the wire types exchanged over the stream bus.
//
// Every type here is an immutable value: construct it with all fields set
// and never mutate it afterward. The rep counter builds RepCountedEvent
// without CameraID/ExerciseSetID populated, and the form analyzer builds
// FormAlertEvent with the ExerciseSetID it is given but no CameraID; the
// pipeline fills in the missing fields before publishing.
package events

// Keypoint is a single normalized body landmark.
type Keypoint struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Visibility float64 `json:"visibility"`
}

// Valid reports whether the keypoint's visibility clears the detection
// threshold used throughout the geometry and analysis packages.
func (k Keypoint) Valid() bool {
	return k.Visibility >= 0.3
}

// NumKeypoints is the fixed COCO keypoint count every PerceptionEvent carries.
const NumKeypoints = 17

// BoundingBox is the detector's bounding box for one tracked person.
type BoundingBox struct {
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	X2         float64 `json:"x2"`
	Y2         float64 `json:"y2"`
	Confidence float64 `json:"confidence"`
}

// PerceptionEvent is one tracked person's detection for one processed frame.
//
// Stream: perceptions:{camera_id}. Published once per tracked person per
// frame by the (external) perception service.
type PerceptionEvent struct {
	CameraID    string     `json:"camera_id"`
	TimestampNs int64      `json:"timestamp_ns"`
	FrameSeq    int64      `json:"frame_seq"`
	TrackID     int        `json:"track_id"`
	BBox        BoundingBox `json:"bbox"`
	Keypoints   []Keypoint `json:"keypoints"`
}

// RepCountedEvent fires once per completed DOWN→UP excursion.
//
// Stream: rep_counted.
type RepCountedEvent struct {
	CameraID      string `json:"camera_id"`
	TrackID       int    `json:"track_id"`
	ExerciseSetID string `json:"exercise_set_id"`
	ExerciseType  string `json:"exercise_type"`
	RepNumber     int    `json:"rep_number"`
	// RepCount duplicates RepNumber. Preserved for downstream compatibility;
	// see SPEC_FULL.md §5 item 5.
	RepCount    int    `json:"rep_count"`
	DurationMs  int64  `json:"duration_ms"`
	Phase       string `json:"phase"`
	TimestampNs int64  `json:"timestamp_ns"`
}

// FormAlertEvent fires when a form check has been out of range for
// three consecutive frames and is past its cooldown.
//
// Stream: form_alerts.
type FormAlertEvent struct {
	CameraID      string             `json:"camera_id"`
	TrackID       int                `json:"track_id"`
	ExerciseSetID string             `json:"exercise_set_id"`
	ExerciseType  string             `json:"exercise_type"`
	RepCount      int                `json:"rep_count"`
	AlertKey      string             `json:"alert_key"`
	AlertMessage  string             `json:"alert_message"`
	Severity      string             `json:"severity"`
	JointAngles   map[string]float64 `json:"joint_angles"`
	TimestampNs   int64              `json:"timestamp_ns"`
}
