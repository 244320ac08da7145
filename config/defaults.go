package config

import (
	"github.com/teamcode/robotcv/components/camera"
	"github.com/teamcode/robotcv/vision/colordetection"
)

// DefaultCameraName is the hardware map name of the robot's main camera.
const DefaultCameraName = "webcam"

// DefaultResolution is the capture size used by the pipeline recipes.
var DefaultResolution = camera.Resolution{Width: 640, Height: 480}

// The color range the color detection recipe looks for: bright, weakly saturated regions.
var (
	DefaultColorLower = colordetection.HSV{H: 0, S: 0, V: 178}
	DefaultColorUpper = colordetection.HSV{H: 172, S: 111, V: 255}
)

// Dashboard defaults.
const (
	DefaultDashboardAddress = "localhost:8090"
	DefaultMaxFPS           = 10
	DefaultJPEGQuality      = 75
)
