// Package config defines the robot config file: the cameras to bind, the pipelines to run on them
// and the dashboard that serves their previews.
package config

import (
	"fmt"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/teamcode/robotcv/components/camera"
	"github.com/teamcode/robotcv/components/camera/fake"
	rutils "github.com/teamcode/robotcv/utils"
	"github.com/teamcode/robotcv/vision/colordetection"
	"github.com/teamcode/robotcv/vision/fiducial"
	"github.com/teamcode/robotcv/vision/objectdetection"
)

// A Config describes the configuration of a robot.
type Config struct {
	Cameras   []Camera   `json:"cameras,omitempty"`
	Pipelines []Pipeline `json:"pipelines,omitempty"`
	Dashboard Dashboard  `json:"dashboard"`
	Debug     bool       `json:"debug,omitempty"`

	ConfigFilePath string `json:"-"`
}

// Ensure validates every part of the config and fills in defaults.
func (c *Config) Ensure() error {
	seen := map[string]bool{}
	for idx := range c.Cameras {
		path := fmt.Sprintf("%s.%d", "cameras", idx)
		if err := c.Cameras[idx].Validate(path); err != nil {
			return err
		}
		if seen[c.Cameras[idx].Name] {
			return errors.Errorf("%s: camera name %q is not unique", path, c.Cameras[idx].Name)
		}
		seen[c.Cameras[idx].Name] = true
	}

	pipelines := map[string]bool{}
	for idx := range c.Pipelines {
		path := fmt.Sprintf("%s.%d", "pipelines", idx)
		p := &c.Pipelines[idx]
		if err := p.Validate(path); err != nil {
			return err
		}
		if pipelines[p.Name] {
			return errors.Errorf("%s: pipeline name %q is not unique", path, p.Name)
		}
		pipelines[p.Name] = true
		if !seen[p.CameraName()] {
			return utils.NewConfigValidationError(path, errors.Errorf("camera %q is not configured", p.CameraName()))
		}
	}

	return c.Dashboard.Validate("dashboard")
}

// FindCamera finds a camera by name.
func (c Config) FindCamera(name string) *Camera {
	for _, cam := range c.Cameras {
		if cam.Name == name {
			return &cam
		}
	}
	return nil
}

// FindPipeline finds a pipeline by name.
func (c Config) FindPipeline(name string) *Pipeline {
	for _, p := range c.Pipelines {
		if p.Name == name {
			return &p
		}
	}
	return nil
}

// A Camera binds a camera model to a hardware map name.
type Camera struct {
	Name       string              `json:"name"`
	Model      string              `json:"model"`
	Attributes rutils.AttributeMap `json:"attributes,omitempty"`
}

// Validate ensures the camera names a known model and its attributes suit it.
func (conf *Camera) Validate(path string) error {
	if conf.Name == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "name")
	}
	switch conf.Model {
	case "":
		return utils.NewConfigValidationFieldRequiredError(path, "model")
	case fake.ModelName:
		attrs, err := conf.FakeAttributes()
		if err != nil {
			return utils.NewConfigValidationError(path, err)
		}
		if _, err := attrs.Validate(path); err != nil {
			return err
		}
	case fake.FileModelName:
		attrs, err := conf.FileAttributes()
		if err != nil {
			return utils.NewConfigValidationError(path, err)
		}
		if _, err := attrs.Validate(path); err != nil {
			return err
		}
	default:
		return utils.NewConfigValidationError(path, errors.Errorf("unknown camera model %q", conf.Model))
	}
	return nil
}

// FakeAttributes decodes the attributes of a fake camera.
func (conf *Camera) FakeAttributes() (*fake.Config, error) {
	return rutils.TransformAttributeMap[*fake.Config](conf.Attributes)
}

// FileAttributes decodes the attributes of an image file camera.
func (conf *Camera) FileAttributes() (*fake.FileConfig, error) {
	return rutils.TransformAttributeMap[*fake.FileConfig](conf.Attributes)
}

// PipelineType names a pipeline recipe.
type PipelineType string

// The known pipeline types.
const (
	PipelineTypeDebug           = PipelineType("debug")
	PipelineTypeAprilTag        = PipelineType("apriltag")
	PipelineTypeColorDetection  = PipelineType("color_detection")
	PipelineTypeObjectDetection = PipelineType("object_detection")
)

// A Pipeline describes one pipeline to run. Camera, Width, Height and Attributes are overrides;
// a pipeline without any is built from its recipe.
type Pipeline struct {
	Name       string              `json:"name"`
	Type       PipelineType        `json:"type"`
	Preview    bool                `json:"preview,omitempty"`
	Camera     string              `json:"camera,omitempty"`
	Width      int                 `json:"width,omitempty"`
	Height     int                 `json:"height,omitempty"`
	Attributes rutils.AttributeMap `json:"attributes,omitempty"`
}

// Validate ensures the pipeline names a known type and its attributes suit it.
func (conf *Pipeline) Validate(path string) error {
	if conf.Name == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "name")
	}
	if conf.Type == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "type")
	}
	if conf.Width < 0 || conf.Height < 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("width and height cannot be negative, got %dx%d", conf.Width, conf.Height))
	}
	if (conf.Width == 0) != (conf.Height == 0) {
		return utils.NewConfigValidationError(path, errors.New("width and height must be set together"))
	}

	var err error
	switch conf.Type {
	case PipelineTypeDebug:
		if len(conf.Attributes) != 0 {
			err = errors.Errorf("the %s pipeline takes no attributes", conf.Type)
		}
	case PipelineTypeAprilTag:
		var opts fiducial.Options
		if opts, err = conf.AprilTagOptions(); err == nil {
			err = opts.Validate()
		}
	case PipelineTypeColorDetection:
		var opts colordetection.Options
		if opts, err = conf.ColorOptions(); err == nil {
			err = opts.Validate()
		}
	case PipelineTypeObjectDetection:
		var opts objectdetection.Options
		if opts, err = conf.ObjectDetectionOptions(); err == nil {
			err = opts.Validate()
		}
	default:
		err = errors.Errorf("unknown pipeline type %q", conf.Type)
	}
	if err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	return nil
}

// UsesRecipe returns whether the pipeline overrides nothing its recipe sets.
func (conf *Pipeline) UsesRecipe() bool {
	return conf.CameraName() == DefaultCameraName && conf.Resolution() == DefaultResolution && len(conf.Attributes) == 0
}

// CameraName returns the camera the pipeline opens.
func (conf *Pipeline) CameraName() string {
	if conf.Camera == "" {
		return DefaultCameraName
	}
	return conf.Camera
}

// Resolution returns the capture size of the pipeline.
func (conf *Pipeline) Resolution() camera.Resolution {
	if conf.Width == 0 && conf.Height == 0 {
		return DefaultResolution
	}
	return camera.Resolution{Width: conf.Width, Height: conf.Height}
}

// AprilTagOptions decodes the attributes of an apriltag pipeline. Unset draw flags follow Preview.
func (conf *Pipeline) AprilTagOptions() (fiducial.Options, error) {
	opts := fiducial.AllDrawing(conf.Preview)
	if len(conf.Attributes) == 0 {
		return opts, nil
	}
	decoded, err := rutils.TransformAttributeMap[*fiducial.Options](conf.Attributes)
	if err != nil {
		return fiducial.Options{}, err
	}
	if conf.Attributes.Has("draw_tag_outline") {
		opts.DrawTagOutline = decoded.DrawTagOutline
	}
	if conf.Attributes.Has("draw_tag_id") {
		opts.DrawTagID = decoded.DrawTagID
	}
	if conf.Attributes.Has("draw_axes") {
		opts.DrawAxes = decoded.DrawAxes
	}
	if conf.Attributes.Has("draw_cube_projection") {
		opts.DrawCubeProjection = decoded.DrawCubeProjection
	}
	opts.Family = decoded.Family
	opts.TagSize = decoded.TagSize
	return opts, nil
}

// ColorOptions decodes the attributes of a color detection pipeline. Unset bounds take
// DefaultColorLower and DefaultColorUpper.
func (conf *Pipeline) ColorOptions() (colordetection.Options, error) {
	decoded, err := rutils.TransformAttributeMap[*colordetection.Options](conf.Attributes)
	if err != nil {
		return colordetection.Options{}, err
	}
	if !conf.Attributes.Has("lower") {
		decoded.Lower = DefaultColorLower
	}
	if !conf.Attributes.Has("upper") {
		decoded.Upper = DefaultColorUpper
	}
	return *decoded, nil
}

// ObjectDetectionOptions decodes the attributes of an object detection pipeline.
func (conf *Pipeline) ObjectDetectionOptions() (objectdetection.Options, error) {
	decoded, err := rutils.TransformAttributeMap[*objectdetection.Options](conf.Attributes)
	if err != nil {
		return objectdetection.Options{}, err
	}
	return *decoded, nil
}

// Dashboard configures the preview web server.
type Dashboard struct {
	Address     string  `json:"address,omitempty"`
	MaxFPS      float64 `json:"max_fps,omitempty"`
	JPEGQuality int     `json:"jpeg_quality,omitempty"`
}

// Validate fills in defaults and checks the limits.
func (conf *Dashboard) Validate(path string) error {
	if conf.Address == "" {
		conf.Address = DefaultDashboardAddress
	}
	if conf.MaxFPS == 0 {
		conf.MaxFPS = DefaultMaxFPS
	}
	if conf.JPEGQuality == 0 {
		conf.JPEGQuality = DefaultJPEGQuality
	}
	if conf.MaxFPS < 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("max_fps cannot be negative, got %v", conf.MaxFPS))
	}
	if conf.JPEGQuality < 1 || conf.JPEGQuality > 100 {
		return utils.NewConfigValidationError(path, errors.Errorf("jpeg_quality must be within [1, 100], got %d", conf.JPEGQuality))
	}
	return nil
}
