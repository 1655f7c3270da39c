package pose

// MediaPipe pose landmark indices used by the classifier. The index
// scheme is part of the upstream model contract, not configuration.
const (
	LandmarkNose          = 0
	LandmarkLeftShoulder  = 11
	LandmarkRightShoulder = 12
	LandmarkLeftHip       = 23
	LandmarkRightHip      = 24
	LandmarkCount         = 33
)

// Keypoint is one detected anatomical landmark in normalized image
// coordinates, with optional model confidence scores.
type Keypoint struct {
	X          float64  `json:"x"`
	Y          float64  `json:"y"`
	Z          float64  `json:"z"`
	Visibility *float64 `json:"visibility,omitempty"`
	Presence   *float64 `json:"presence,omitempty"`
}

// Body is one detected person's landmark set.
type Body struct {
	Landmarks []Keypoint `json:"landmarks"`
}

// Frame is one multi-body observation delivered by the upstream pose
// model. Bodies are ordered by detection confidence; index 0 is the
// primary subject. A frame is never mutated after creation.
type Frame struct {
	Bodies []Body `json:"poses"`
}

// Primary returns the frame's primary body, if any.
func (f Frame) Primary() (Body, bool) {
	if len(f.Bodies) == 0 {
		return Body{}, false
	}
	return f.Bodies[0], true
}

// Point is a 2D position in pixel space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}
