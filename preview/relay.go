// Package preview mirrors processed frames to a remote viewer. The Relay is a processing stage
// placed after the primary stage; a Transport serves what it holds.
package preview

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"

	"github.com/teamcode/robotcv/components/camera"
	"github.com/teamcode/robotcv/vision"
)

// A FrameSource hands out the latest frame it holds.
type FrameSource interface {
	// LatestFrame returns the latest frame and its capture time. ok is false before the first frame.
	LatestFrame() (img image.Image, captured time.Time, ok bool)
}

// Relay is a stage that keeps a copy of every frame it is handed. Stages ahead of it have already
// drawn their overlays onto the frame by then.
type Relay struct {
	mu       sync.RWMutex
	latest   image.Image
	captured time.Time
	frames   uint64
	width    int
	height   int
}

// NewRelay returns an empty relay.
func NewRelay() *Relay {
	return &Relay{}
}

// Name names the stage.
func (r *Relay) Name() string {
	return "preview"
}

// Init drops any frame from a previous session.
func (r *Relay) Init(width, height int, calibration *camera.Intrinsics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latest = nil
	r.captured = time.Time{}
	r.width, r.height = width, height
}

// ProcessFrame copies the frame.
func (r *Relay) ProcessFrame(ctx context.Context, frame *vision.Frame) (interface{}, error) {
	clone := imaging.Clone(frame.Image)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latest = clone
	r.captured = frame.CaptureTime
	r.frames++
	return nil, nil
}

// OnDrawFrame draws nothing.
func (r *Relay) OnDrawFrame(dc *gg.Context, userContext interface{}) {}

// LatestFrame returns the most recent copy.
func (r *Relay) LatestFrame() (image.Image, time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest, r.captured, r.latest != nil
}

// FramesRelayed returns how many frames the relay has copied.
func (r *Relay) FramesRelayed() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frames
}

// Resolution returns the stream size the relay was initialized with.
func (r *Relay) Resolution() camera.Resolution {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return camera.Resolution{Width: r.width, Height: r.height}
}
