package fake

import (
	"context"
	"image"
	"sync"

	"github.com/disintegration/imaging"
	_ "github.com/lmittmann/ppm" // register ppm
	"github.com/pkg/errors"
	_ "github.com/xfmoulet/qoi" // register qoi

	"github.com/teamcode/robotcv/components/camera"
	"github.com/teamcode/robotcv/logging"
	"github.com/teamcode/robotcv/resource"
)

// FileModelName is the model name of the image file camera in robot config files.
const FileModelName = "image_file"

// FileConfig is the attribute struct for an image file camera.
type FileConfig struct {
	Path                string             `json:"color_image_file_path"`
	IntrinsicParameters *camera.Intrinsics `json:"intrinsic_parameters,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (conf *FileConfig) Validate(path string) ([]string, error) {
	if conf.Path == "" {
		return nil, errors.Errorf("%s: color_image_file_path is required for an image_file camera", path)
	}
	if conf.IntrinsicParameters != nil {
		if err := conf.IntrinsicParameters.CheckValid(); err != nil {
			return nil, errors.Wrapf(err, "%s: intrinsic_parameters", path)
		}
	}
	return nil, nil
}

// FileCamera serves a single still image, resized to the stream's resolution.
type FileCamera struct {
	resource.Named
	img        image.Image
	intrinsics *camera.Intrinsics
	logger     logging.Logger

	mu     sync.Mutex
	closed bool
}

// NewFileCamera decodes the configured image and returns a camera serving it.
func NewFileCamera(name resource.Name, conf *FileConfig, logger logging.Logger) (*FileCamera, error) {
	if _, err := conf.Validate(name.String()); err != nil {
		return nil, err
	}
	img, err := imaging.Open(conf.Path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read image file for camera %q", name.Name)
	}
	return NewStillCamera(name, img, conf.IntrinsicParameters, logger), nil
}

// NewStillCamera returns a camera serving img.
func NewStillCamera(name resource.Name, img image.Image, intrinsics *camera.Intrinsics, logger logging.Logger) *FileCamera {
	return &FileCamera{Named: name.AsNamed(), img: img, intrinsics: intrinsics, logger: logger}
}

// Properties reports the configured intrinsics, if any.
func (fc *FileCamera) Properties(ctx context.Context) (camera.Properties, error) {
	return camera.Properties{Intrinsics: fc.intrinsics}, nil
}

// Stream resizes the still image to res once and serves it for every frame.
func (fc *FileCamera) Stream(ctx context.Context, res camera.Resolution) (camera.VideoStream, error) {
	if err := res.Validate(); err != nil {
		return nil, errors.Wrap(camera.ErrUnsupportedResolution, err.Error())
	}
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.closed {
		return nil, errCameraClosed
	}
	var frame image.Image = fc.img
	if fc.img.Bounds().Dx() != res.Width || fc.img.Bounds().Dy() != res.Height {
		frame = imaging.Resize(fc.img, res.Width, res.Height, imaging.Linear)
	}
	return &stillStream{cam: fc, frame: frame}, nil
}

// Close marks the camera closed.
func (fc *FileCamera) Close(ctx context.Context) error {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.closed = true
	return nil
}

type stillStream struct {
	cam   *FileCamera
	frame image.Image
}

func (s *stillStream) Next(ctx context.Context) (image.Image, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	s.cam.mu.Lock()
	closed := s.cam.closed
	s.cam.mu.Unlock()
	if closed {
		return nil, nil, errCameraClosed
	}
	return s.frame, func() {}, nil
}

func (s *stillStream) Close(ctx context.Context) error {
	return nil
}
