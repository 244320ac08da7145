// Package fake implements a fake camera that renders a synthetic scene: a dark gradient with a
// bright square sweeping across it.
package fake

import (
	"context"
	"image"
	"image/color"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/teamcode/robotcv/components/camera"
	"github.com/teamcode/robotcv/logging"
	"github.com/teamcode/robotcv/resource"
)

// ModelName is the model name of the synthetic camera in robot config files.
const ModelName = "fake"

const (
	initialWidth  = 1280
	initialHeight = 720
)

// errCameraClosed is returned from Stream and Next once the camera has been closed.
var errCameraClosed = errors.New("camera is closed")

// Config are the attributes of the fake camera config.
type Config struct {
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
	// SquareSize is the side of the moving square in pixels. Zero picks a sixth of the shorter side.
	SquareSize int `json:"square_size,omitempty"`
	// Step is how far the square moves per frame. Zero keeps it still.
	Step int `json:"step,omitempty"`
}

// Validate checks that the config attributes are valid for a fake camera.
func (conf *Config) Validate(path string) ([]string, error) {
	if conf.Height%2 != 0 {
		return nil, errors.Errorf("odd-number resolutions cannot be rendered, cannot use a height of %d", conf.Height)
	}
	if conf.Width%2 != 0 {
		return nil, errors.Errorf("odd-number resolutions cannot be rendered, cannot use a width of %d", conf.Width)
	}
	if conf.SquareSize < 0 {
		return nil, errors.Errorf("%s: square_size cannot be negative, got %d", path, conf.SquareSize)
	}
	return nil, nil
}

var fakeIntrinsics = &camera.Intrinsics{
	Width:  1024,
	Height: 768,
	Fx:     821.32642889,
	Fy:     821.68607359,
	Ppx:    494.95941428,
	Ppy:    370.70529534,
}

// fakeModel resolves the native resolution of the fake camera, keeping 16:9 when only one side is
// given, and scales the reference intrinsics to it.
func fakeModel(width, height int) (*camera.Intrinsics, int, int) {
	switch {
	case width > 0 && height > 0:
	case width > 0:
		height = initialHeight * width / initialWidth
		if height%2 != 0 {
			height++
		}
	case height > 0:
		width = initialWidth * height / initialHeight
		if width%2 != 0 {
			width++
		}
	default:
		width, height = initialWidth, initialHeight
	}
	widthRatio := float64(width) / float64(initialWidth)
	heightRatio := float64(height) / float64(initialHeight)
	return &camera.Intrinsics{
		Width:  int(float64(fakeIntrinsics.Width) * widthRatio),
		Height: int(float64(fakeIntrinsics.Height) * heightRatio),
		Fx:     fakeIntrinsics.Fx * widthRatio,
		Fy:     fakeIntrinsics.Fy * heightRatio,
		Ppx:    fakeIntrinsics.Ppx * widthRatio,
		Ppy:    fakeIntrinsics.Ppy * heightRatio,
	}, width, height
}

// Camera is a fake camera rendering the synthetic scene at whatever resolution it is streamed at.
type Camera struct {
	resource.Named
	Intrinsics *camera.Intrinsics
	Width      int
	Height     int

	squareSize  int
	step        int
	logger      logging.Logger
	mu          sync.Mutex
	closed      bool
	openStreams atomic.Int32
	opened      atomic.Int32
}

// NewCamera returns a new fake camera.
func NewCamera(name resource.Name, conf *Config, logger logging.Logger) (*Camera, error) {
	if conf == nil {
		conf = &Config{}
	}
	if _, err := conf.Validate(name.String()); err != nil {
		return nil, err
	}
	intrinsics, width, height := fakeModel(conf.Width, conf.Height)
	return &Camera{
		Named:      name.AsNamed(),
		Intrinsics: intrinsics,
		Width:      width,
		Height:     height,
		squareSize: conf.SquareSize,
		step:       conf.Step,
		logger:     logger,
	}, nil
}

// Properties reports the scaled intrinsics. The scene renders at any size.
func (c *Camera) Properties(ctx context.Context) (camera.Properties, error) {
	return camera.Properties{Intrinsics: c.Intrinsics, FrameRate: 30}, nil
}

// Stream opens a stream rendering the scene at res.
func (c *Camera) Stream(ctx context.Context, res camera.Resolution) (camera.VideoStream, error) {
	if err := res.Validate(); err != nil {
		return nil, errors.Wrap(camera.ErrUnsupportedResolution, err.Error())
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errCameraClosed
	}
	c.openStreams.Add(1)
	c.opened.Add(1)
	c.logger.Debugw("opened stream", "camera", c.Name().Name, "resolution", res.String())
	return &stream{cam: c, res: res}, nil
}

// OpenStreams returns how many streams are currently open on the camera.
func (c *Camera) OpenStreams() int {
	return int(c.openStreams.Load())
}

// StreamsOpened returns how many streams have ever been opened on the camera.
func (c *Camera) StreamsOpened() int {
	return int(c.opened.Load())
}

// Close marks the camera closed. Open streams fail on their next read.
func (c *Camera) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *Camera) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// SquareBounds returns where the bright square is drawn on the given frame of a stream at res.
func (c *Camera) SquareBounds(res camera.Resolution, frame int) image.Rectangle {
	side := c.squareSize
	if side == 0 {
		side = min(res.Width, res.Height) / 6
	}
	side = max(1, min(side, res.Width, res.Height))
	travel := res.Width - side
	x := 0
	if travel > 0 {
		x = (res.Width/4 + frame*c.step) % travel
	}
	y := (res.Height - side) / 2
	return image.Rect(x, y, x+side, y+side)
}

func (c *Camera) render(res camera.Resolution, frame int) *image.RGBA {
	img := image.NewRGBA(res.Bounds())
	for y := 0; y < res.Height; y++ {
		shade := uint8(20 + 60*y/res.Height)
		for x := 0; x < res.Width; x++ {
			img.SetRGBA(x, y, color.RGBA{shade / 2, shade / 2, shade, 255})
		}
	}
	square := c.SquareBounds(res, frame)
	for y := square.Min.Y; y < square.Max.Y; y++ {
		for x := square.Min.X; x < square.Max.X; x++ {
			img.SetRGBA(x, y, color.RGBA{240, 240, 240, 255})
		}
	}
	return img
}

type stream struct {
	cam    *Camera
	res    camera.Resolution
	frame  int
	mu     sync.Mutex
	closed bool
}

func (s *stream) Next(ctx context.Context) (image.Image, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.cam.isClosed() {
		return nil, nil, errCameraClosed
	}
	img := s.cam.render(s.res, s.frame)
	s.frame++
	return img, func() {}, nil
}

func (s *stream) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.cam.openStreams.Add(-1)
	return nil
}
