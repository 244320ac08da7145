package pipeline

import (
	"fmt"

	"github.com/teamcode/robotcv/components/camera"
	"github.com/teamcode/robotcv/config"
)

// Config describes which camera a pipeline opens, at what size, and whether it mirrors its
// output to the preview transport. Configs are values: two are equal when all fields are.
type Config struct {
	cameraName     string
	resolution     camera.Resolution
	previewEnabled bool
}

// NewConfig validates and returns a Config. It fails with ErrInvalidConfig when a dimension is not
// positive or the camera name is empty.
func NewConfig(cameraName string, width, height int, enablePreview bool) (Config, error) {
	if cameraName == "" {
		return Config{}, fmt.Errorf("%w: camera name is required", ErrInvalidConfig)
	}
	res := camera.Resolution{Width: width, Height: height}
	if err := res.Validate(); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return Config{cameraName: cameraName, resolution: res, previewEnabled: enablePreview}, nil
}

// DefaultConfig returns the config for the robot's main camera at the default resolution.
func DefaultConfig(enablePreview bool) Config {
	return Config{
		cameraName:     config.DefaultCameraName,
		resolution:     config.DefaultResolution,
		previewEnabled: enablePreview,
	}
}

// CameraName returns the hardware map name of the camera.
func (c Config) CameraName() string {
	return c.cameraName
}

// Resolution returns the capture size.
func (c Config) Resolution() camera.Resolution {
	return c.resolution
}

// Width returns the capture width in pixels.
func (c Config) Width() int {
	return c.resolution.Width
}

// Height returns the capture height in pixels.
func (c Config) Height() int {
	return c.resolution.Height
}

// PreviewEnabled returns whether the pipeline mirrors its output to the preview transport.
func (c Config) PreviewEnabled() bool {
	return c.previewEnabled
}

func (c Config) String() string {
	return fmt.Sprintf("%s@%s (preview %t)", c.cameraName, c.resolution, c.previewEnabled)
}

func (c Config) isZero() bool {
	return c == Config{}
}
