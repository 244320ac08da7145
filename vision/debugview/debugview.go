// Package debugview implements a diagnostic processing stage that counts frames, estimates the
// delivered frame rate and marks the image center.
package debugview

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/fogleman/gg"

	"github.com/teamcode/robotcv/components/camera"
	"github.com/teamcode/robotcv/utils"
	"github.com/teamcode/robotcv/vision"
)

const fpsWindow = 30

// Stats is a snapshot of what the stage has seen.
type Stats struct {
	Frames       uint64
	LastSequence uint64
	LastCapture  time.Time
	FPS          float64
	Width        int
	Height       int
	Calibrated   bool
}

// Processor is the diagnostic stage.
type Processor struct {
	mu        sync.Mutex
	stats     Stats
	intervals *utils.RollingAverage
}

// NewProcessor returns a diagnostic stage.
func NewProcessor() *Processor {
	return &Processor{intervals: utils.NewRollingAverage(fpsWindow)}
}

// Name names the stage.
func (p *Processor) Name() string {
	return "debug"
}

// Init records the stream geometry. Calling it again resets the counters.
func (p *Processor) Init(width, height int, calibration *camera.Intrinsics) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats = Stats{Width: width, Height: height, Calibrated: calibration != nil}
	p.intervals = utils.NewRollingAverage(fpsWindow)
}

// ProcessFrame updates the counters and returns the resulting Stats.
func (p *Processor) ProcessFrame(ctx context.Context, frame *vision.Frame) (interface{}, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stats.Frames > 0 {
		if dt := frame.CaptureTime.Sub(p.stats.LastCapture).Seconds(); dt > 0 {
			p.intervals.Add(dt)
		}
	}
	if avg := p.intervals.Average(); avg > 0 {
		p.stats.FPS = 1 / avg
	}
	p.stats.Frames++
	p.stats.LastSequence = frame.Sequence
	p.stats.LastCapture = frame.CaptureTime
	return p.stats, nil
}

// OnDrawFrame marks the image center and writes the counters along the top edge.
func (p *Processor) OnDrawFrame(dc *gg.Context, userContext interface{}) {
	stats, ok := userContext.(Stats)
	if !ok {
		return
	}
	center := image.Pt(dc.Width()/2, dc.Height()/2)
	vision.DrawCrosshair(dc, center, max(4, dc.Height()/20), vision.Green)
	banner := fmt.Sprintf("frame %d  %.1f fps  %dx%d", stats.LastSequence, stats.FPS, stats.Width, stats.Height)
	vision.DrawString(dc, banner, image.Pt(4, 4), vision.Yellow, 14)
}

// Stats returns the latest counters. It stays readable after the pipeline stops delivering.
func (p *Processor) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// FrameCount returns how many frames the stage has processed since Init.
func (p *Processor) FrameCount() uint64 {
	return p.Stats().Frames
}
