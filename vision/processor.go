// Package vision defines the contract between a capture session and the processing stages it
// drives, plus the detection type and overlay helpers the stages share.
package vision

import (
	"context"
	"image"
	"time"

	"github.com/fogleman/gg"

	"github.com/teamcode/robotcv/components/camera"
)

// Frame is a single captured frame handed to every stage of a session in order.
// Stages may draw on Image in OnDrawFrame; later stages see those overlays.
type Frame struct {
	Image       *image.RGBA
	CaptureTime time.Time
	Sequence    uint64
}

// A Processor is a pluggable processing stage. A session calls Init once before the first frame,
// then ProcessFrame and OnDrawFrame for every frame it delivers.
type Processor interface {
	// Init is called with the stream's resolution and the camera calibration, which is nil for
	// uncalibrated cameras.
	Init(width, height int, calibration *camera.Intrinsics)

	// ProcessFrame analyzes the frame. The returned value is handed back to OnDrawFrame unchanged.
	ProcessFrame(ctx context.Context, frame *Frame) (interface{}, error)

	// OnDrawFrame renders overlays for the frame onto dc, which is bound to the frame's image.
	OnDrawFrame(dc *gg.Context, userContext interface{})
}

// Name returns a short name for a processor, used in logs and stream listings.
func Name(p Processor) string {
	if named, ok := p.(interface{ Name() string }); ok {
		return named.Name()
	}
	return "processor"
}
