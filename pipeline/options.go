package pipeline

import (
	"github.com/benbjohnson/clock"

	"github.com/teamcode/robotcv/capture"
	"github.com/teamcode/robotcv/logging"
	"github.com/teamcode/robotcv/preview"
)

// PreviewStreamIndex is the transport stream index a pipeline's preview is registered under.
const PreviewStreamIndex = 0

// An Option customizes pipeline construction.
type Option func(*options)

type options struct {
	logger    logging.Logger
	engine    capture.Engine
	transport preview.Transport
	frameRate int
	clock     clock.Clock
}

// WithLogger sets the logger. The default is a sublogger of the global logger.
func WithLogger(logger logging.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithEngine sets the capture engine sessions are built with.
func WithEngine(engine capture.Engine) Option {
	return func(o *options) {
		o.engine = engine
	}
}

// WithTransport sets the preview transport. The default is preview.Global() at construction time.
func WithTransport(transport preview.Transport) Option {
	return func(o *options) {
		o.transport = transport
	}
}

// WithFrameRate sets the session delivery rate.
func WithFrameRate(fps int) Option {
	return func(o *options) {
		o.frameRate = fps
	}
}

// WithClock sets the clock driving frame delivery.
func WithClock(clk clock.Clock) Option {
	return func(o *options) {
		o.clock = clk
	}
}

func buildOptions(opts []Option) options {
	o := applyOptions(opts)
	if o.engine == nil {
		o.engine = capture.NewEngine(o.logger.Sublogger("capture"))
	}
	if o.transport == nil {
		o.transport = preview.Global()
	}
	return o
}

// applyOptions applies opts and defaults only the logger.
func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.Global().Sublogger("pipeline")
	}
	return o
}
