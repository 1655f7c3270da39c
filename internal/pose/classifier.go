package pose

import "math"

// PostureType is the discrete classification verdict for one frame.
type PostureType string

const (
	PostureGood        PostureType = "good"
	PostureForwardLean PostureType = "forwardLean"
	PostureForwardHead PostureType = "forwardHead"
)

// Classification thresholds, in degrees. The forward-lean pair is
// view-invariant; the forward-head pair is relaxed under side view
// because a profile projection compresses the head-neck angle.
const (
	leanNeckChestThreshold = 105.0
	leanChestHipThreshold  = 110.0

	headFrontTheta1Threshold = 70.0
	headFrontTheta4Threshold = 80.0
	headSideTheta1Threshold  = 50.0
	headSideTheta4Threshold  = 60.0

	// Mean shoulder/hip width over torso height below which the
	// subject is considered viewed from the side.
	sideViewWidthRatio = 0.3
)

// Verdict is the posture classification for one frame's primary body,
// together with the diagnostic angles, the four anatomical reference
// points (in original, un-mirrored pixel coordinates) and the view
// flags needed to reproduce the decision.
type Verdict struct {
	Posture PostureType `json:"postureType"`

	// Theta1..Theta3 are the head-neck, neck-chest and chest-hip line
	// angles relative to horizontal, in [0, 180] degrees. Theta4 is
	// the weighted blend 0.6*t1 + 0.2*t2 + 0.2*t3.
	Theta1 float64 `json:"theta1"`
	Theta2 float64 `json:"theta2"`
	Theta3 float64 `json:"theta3"`
	Theta4 float64 `json:"theta4"`

	Head  Point `json:"head"`
	Neck  Point `json:"neck"`
	Chest Point `json:"chest"`
	Hip   Point `json:"hip"`

	FacingLeft bool `json:"facingLeft"`
	IsSideView bool `json:"isSideView"`
}

// Classify derives a posture verdict from one body's landmarks. It is
// pure and deterministic. The second return value is false when the
// body lacks any of the required landmarks (nose, both shoulders, both
// hips) or the image dimensions are not positive; a missing body part
// is an expected runtime condition, not an error.
func Classify(body Body, imageWidth, imageHeight float64) (Verdict, bool) {
	if imageWidth <= 0 || imageHeight <= 0 {
		return Verdict{}, false
	}
	if len(body.Landmarks) <= LandmarkRightHip {
		return Verdict{}, false
	}

	px := func(i int) Point {
		kp := body.Landmarks[i]
		return Point{X: kp.X * imageWidth, Y: kp.Y * imageHeight}
	}

	nose := px(LandmarkNose)
	leftShoulder := px(LandmarkLeftShoulder)
	rightShoulder := px(LandmarkRightShoulder)
	leftHip := px(LandmarkLeftHip)
	rightHip := px(LandmarkRightHip)

	// If the nose sits left of the shoulder midline the subject faces
	// left; mirror everything so the geometry below always sees a
	// canonical facing-right body.
	facingLeft := nose.X < (leftShoulder.X+rightShoulder.X)/2
	if facingLeft {
		nose = mirrorX(nose, imageWidth)
		leftShoulder = mirrorX(leftShoulder, imageWidth)
		rightShoulder = mirrorX(rightShoulder, imageWidth)
		leftHip = mirrorX(leftHip, imageWidth)
		rightHip = mirrorX(rightHip, imageWidth)
	}

	head := nose
	neck := midpoint(leftShoulder, rightShoulder)
	hip := midpoint(leftHip, rightHip)
	chest := Point{
		X: (leftShoulder.X + rightShoulder.X + leftHip.X + rightHip.X) / 4,
		Y: (leftShoulder.Y + rightShoulder.Y + leftHip.Y + rightHip.Y) / 4,
	}

	shoulderWidth := distance(leftShoulder, rightShoulder)
	hipWidth := distance(leftHip, rightHip)
	torsoHeight := distance(neck, hip)
	sideView := torsoHeight > 0 && (shoulderWidth+hipWidth)/2/torsoHeight < sideViewWidthRatio

	theta1 := angleBetween(head, neck)
	theta2 := angleBetween(neck, chest)
	theta3 := angleBetween(chest, hip)
	theta4 := 0.6*theta1 + 0.2*theta2 + 0.2*theta3

	posture := PostureGood
	switch {
	case theta2 > leanNeckChestThreshold && theta3 > leanChestHipThreshold:
		posture = PostureForwardLean
	case !sideView && theta1 <= headFrontTheta1Threshold && theta4 <= headFrontTheta4Threshold:
		posture = PostureForwardHead
	case sideView && theta1 <= headSideTheta1Threshold && theta4 <= headSideTheta4Threshold:
		posture = PostureForwardHead
	}

	// Anatomical points are reported in the original orientation so
	// callers can draw them over the source image; angles and flags
	// stay in canonical orientation.
	if facingLeft {
		head = mirrorX(head, imageWidth)
		neck = mirrorX(neck, imageWidth)
		chest = mirrorX(chest, imageWidth)
		hip = mirrorX(hip, imageWidth)
	}

	return Verdict{
		Posture:    posture,
		Theta1:     theta1,
		Theta2:     theta2,
		Theta3:     theta3,
		Theta4:     theta4,
		Head:       head,
		Neck:       neck,
		Chest:      chest,
		Hip:        hip,
		FacingLeft: facingLeft,
		IsSideView: sideView,
	}, true
}

// angleBetween returns the absolute angle of the p1->p2 line relative
// to horizontal, folded into [0, 180] degrees.
func angleBetween(p1, p2 Point) float64 {
	dx := p1.X - p2.X
	dy := p1.Y - p2.Y
	ang := math.Abs(math.Atan2(dy, dx) * 180 / math.Pi)
	if ang > 180 {
		ang = 360 - ang
	}
	return ang
}

func midpoint(a, b Point) Point {
	return Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
}

func distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

func mirrorX(p Point, imageWidth float64) Point {
	return Point{X: imageWidth - p.X, Y: p.Y}
}
