package inject

import (
	"context"

	"github.com/fogleman/gg"

	"github.com/teamcode/robotcv/components/camera"
	"github.com/teamcode/robotcv/vision"
)

// Processor is an injected processing stage. With neither an injected function nor an embedded
// processor, each call does nothing.
type Processor struct {
	vision.Processor
	NameFunc         func() string
	InitFunc         func(width, height int, calibration *camera.Intrinsics)
	ProcessFrameFunc func(ctx context.Context, frame *vision.Frame) (interface{}, error)
	OnDrawFrameFunc  func(dc *gg.Context, userContext interface{})
}

// Name calls the injected Name or names the stage "inject".
func (p *Processor) Name() string {
	if p.NameFunc == nil {
		return "inject"
	}
	return p.NameFunc()
}

// Init calls the injected Init or the real version.
func (p *Processor) Init(width, height int, calibration *camera.Intrinsics) {
	switch {
	case p.InitFunc != nil:
		p.InitFunc(width, height, calibration)
	case p.Processor != nil:
		p.Processor.Init(width, height, calibration)
	}
}

// ProcessFrame calls the injected ProcessFrame or the real version.
func (p *Processor) ProcessFrame(ctx context.Context, frame *vision.Frame) (interface{}, error) {
	switch {
	case p.ProcessFrameFunc != nil:
		return p.ProcessFrameFunc(ctx, frame)
	case p.Processor != nil:
		return p.Processor.ProcessFrame(ctx, frame)
	default:
		return nil, nil
	}
}

// OnDrawFrame calls the injected OnDrawFrame or the real version.
func (p *Processor) OnDrawFrame(dc *gg.Context, userContext interface{}) {
	switch {
	case p.OnDrawFrameFunc != nil:
		p.OnDrawFrameFunc(dc, userContext)
	case p.Processor != nil:
		p.Processor.OnDrawFrame(dc, userContext)
	}
}
