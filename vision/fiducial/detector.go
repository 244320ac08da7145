package fiducial

import (
	"context"
	"image"

	"github.com/teamcode/robotcv/components/camera"
	"github.com/teamcode/robotcv/resource"
)

// SubtypeName identifies the tag detector service subtype.
const SubtypeName = "tag_detector"

// DefaultDetectorName is the hardware map name the tag stage looks for when no detector is passed.
const DefaultDetectorName = "apriltag"

// API is the resource API of tag detector backends.
var API = resource.APIFromServiceType(SubtypeName)

// Named is a helper for getting the named tag detector's typed resource name.
func Named(name string) resource.Name {
	return resource.NewName(API, name)
}

// Point is a subpixel image coordinate.
type Point struct {
	X, Y float64
}

// Pose is a tag's position and orientation in the camera frame. Translation is in meters;
// Rotation is row-major and maps tag coordinates into camera coordinates.
type Pose struct {
	Translation [3]float64
	Rotation    [3][3]float64
}

// Apply maps a point in tag coordinates into camera coordinates.
func (p Pose) Apply(x, y, z float64) (float64, float64, float64) {
	r := p.Rotation
	return r[0][0]*x + r[0][1]*y + r[0][2]*z + p.Translation[0],
		r[1][0]*x + r[1][1]*y + r[1][2]*z + p.Translation[1],
		r[2][0]*x + r[2][1]*y + r[2][2]*z + p.Translation[2]
}

// Range is the straight-line distance from the camera to the tag center in meters.
func (p Pose) Range() float64 {
	t := p.Translation
	return hypot3(t[0], t[1], t[2])
}

// TagDetection is a single decoded tag.
type TagDetection struct {
	ID      int
	Family  string
	Center  Point
	Corners [4]Point
	// Pose is nil unless the detector was given calibration and a tag size.
	Pose           *Pose
	DecisionMargin float64
}

// DetectParams tells the backend what to look for.
type DetectParams struct {
	Family     string
	TagSize    float64
	Intrinsics *camera.Intrinsics
}

// A Detector decodes tags from a grayscale frame. Implementations wrap a native tag library or a
// remote service.
type Detector interface {
	resource.Resource
	Detect(ctx context.Context, gray image.Image, params DetectParams) ([]TagDetection, error)
}

// FromProvider is a helper for getting the named Detector from a resource Provider.
func FromProvider(provider resource.Provider, name string) (Detector, error) {
	return resource.FromProvider[Detector](provider, Named(name))
}
