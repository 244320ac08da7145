// Package inject provides fakes whose behavior is set per test through function fields. Unset
// fields fall through to the embedded real implementation.
package inject

import (
	"context"
	"image"

	"github.com/teamcode/robotcv/components/camera"
	"github.com/teamcode/robotcv/resource"
	"github.com/teamcode/robotcv/utils"
)

// Camera is an injected camera.
type Camera struct {
	camera.Camera
	name           resource.Name
	PropertiesFunc func(ctx context.Context) (camera.Properties, error)
	StreamFunc     func(ctx context.Context, res camera.Resolution) (camera.VideoStream, error)
	CloseFunc      func(ctx context.Context) error
}

// NewCamera returns a new injected camera.
func NewCamera(name string) *Camera {
	return &Camera{name: camera.Named(name)}
}

// Name returns the name of the resource.
func (c *Camera) Name() resource.Name {
	return c.name
}

// Properties calls the injected Properties or the real version. With neither it reports an
// uncalibrated camera that streams at any size.
func (c *Camera) Properties(ctx context.Context) (camera.Properties, error) {
	if c.PropertiesFunc == nil {
		if c.Camera == nil {
			return camera.Properties{}, nil
		}
		return c.Camera.Properties(ctx)
	}
	return c.PropertiesFunc(ctx)
}

// Stream calls the injected Stream or the real version.
func (c *Camera) Stream(ctx context.Context, res camera.Resolution) (camera.VideoStream, error) {
	if c.StreamFunc == nil {
		return c.Camera.Stream(ctx, res)
	}
	return c.StreamFunc(ctx, res)
}

// Close calls the injected Close or the real version.
func (c *Camera) Close(ctx context.Context) error {
	if c.CloseFunc == nil {
		return utils.TryClose(ctx, c.Camera)
	}
	return c.CloseFunc(ctx)
}

// VideoStream is an injected video stream.
type VideoStream struct {
	camera.VideoStream
	NextFunc  func(ctx context.Context) (image.Image, func(), error)
	CloseFunc func(ctx context.Context) error
}

// Next calls the injected Next or the real version.
func (vs *VideoStream) Next(ctx context.Context) (image.Image, func(), error) {
	if vs.NextFunc == nil {
		return vs.VideoStream.Next(ctx)
	}
	return vs.NextFunc(ctx)
}

// Close calls the injected Close or the real version.
func (vs *VideoStream) Close(ctx context.Context) error {
	if vs.CloseFunc == nil {
		return utils.TryClose(ctx, vs.VideoStream)
	}
	return vs.CloseFunc(ctx)
}
