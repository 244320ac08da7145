// Package camera defines an image capturing device and the handles a capture session uses to
// pull frames from it.
package camera

import (
	"context"
	"fmt"
	"image"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/teamcode/robotcv/resource"
)

// SubtypeName is a constant that identifies the camera resource subtype string.
const SubtypeName = "camera"

// API is a variable that identifies the camera resource API.
var API = resource.APIFromComponentType(SubtypeName)

// ErrUnsupportedResolution is returned by Stream when the camera cannot deliver the requested size.
var ErrUnsupportedResolution = errors.New("unsupported resolution")

// Named is a helper for getting the named camera's typed resource name.
func Named(name string) resource.Name {
	return resource.NewName(API, name)
}

// Resolution is a capture size in pixels.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Validate checks both dimensions are positive.
func (r Resolution) Validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return errors.Errorf("resolution %s must have positive width and height", r)
	}
	return nil
}

// Bounds returns the image rectangle of this resolution anchored at the origin.
func (r Resolution) Bounds() image.Rectangle {
	return image.Rect(0, 0, r.Width, r.Height)
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// Properties is a lookup for a camera's features and settings.
type Properties struct {
	// Intrinsics are nil for uncalibrated cameras.
	Intrinsics *Intrinsics
	// SupportedResolutions is empty when the camera scales to any size.
	SupportedResolutions []Resolution
	FrameRate            float32
}

// Supports returns whether the camera can stream at res.
func (p Properties) Supports(res Resolution) bool {
	if len(p.SupportedResolutions) == 0 {
		return true
	}
	for _, supported := range p.SupportedResolutions {
		if supported == res {
			return true
		}
	}
	return false
}

// A VideoStream is an open frame source. Each frame comes with a release function the caller must
// invoke once done with the image.
type VideoStream interface {
	Next(ctx context.Context) (image.Image, func(), error)
	Close(ctx context.Context) error
}

// A Camera is a resource that can capture frames.
type Camera interface {
	resource.Resource

	// Properties returns properties that are intrinsic to the particular
	// implementation of a camera.
	Properties(ctx context.Context) (Properties, error)

	// Stream opens the camera at the requested resolution. Only one stream per camera is expected
	// to be open at a time; closing the stream releases the device.
	Stream(ctx context.Context, res Resolution) (VideoStream, error)
}

// FromProvider is a helper for getting the named Camera from a resource Provider.
func FromProvider(provider resource.Provider, name string) (Camera, error) {
	return resource.FromProvider[Camera](provider, Named(name))
}

// ReadImage opens a stream, reads a single frame and closes the stream again.
func ReadImage(ctx context.Context, cam Camera, res Resolution) (image.Image, error) {
	stream, err := cam.Stream(ctx, res)
	if err != nil {
		return nil, err
	}
	img, release, err := stream.Next(ctx)
	if err != nil {
		return nil, multierr.Combine(err, stream.Close(ctx))
	}
	if release != nil {
		defer release()
	}
	return img, stream.Close(ctx)
}
