package capture

import (
	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"github.com/teamcode/robotcv/components/camera"
	"github.com/teamcode/robotcv/vision"
)

const (
	// DefaultFrameRate is the delivery rate used when Config.FrameRate is zero.
	DefaultFrameRate = 30
	// MaxFrameRate bounds Config.FrameRate so the delivery tick stays at least a millisecond.
	MaxFrameRate = 1000
)

// Config describes a session: which camera to open at which size, and the ordered stages every
// frame is handed to.
type Config struct {
	Camera     camera.Camera
	Resolution camera.Resolution
	Processors []vision.Processor

	// AutoStopLiveView clears the live view frame whenever streaming stops.
	AutoStopLiveView bool
	// LiveView keeps the last rendered frame available through Session.LiveFrame.
	LiveView bool

	FrameRate int
	Clock     clock.Clock
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate() error {
	if c.Camera == nil {
		return errors.New("a camera is required")
	}
	if err := c.Resolution.Validate(); err != nil {
		return err
	}
	if len(c.Processors) == 0 {
		return errors.New("at least one processor is required")
	}
	for i, p := range c.Processors {
		if p == nil {
			return errors.Errorf("processor %d is nil", i)
		}
	}
	if c.FrameRate < 0 || c.FrameRate > MaxFrameRate {
		return errors.Errorf("frame rate must be between 0 and %d, got %d", MaxFrameRate, c.FrameRate)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.FrameRate == 0 {
		c.FrameRate = DefaultFrameRate
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	c.Processors = append([]vision.Processor(nil), c.Processors...)
	return c
}
