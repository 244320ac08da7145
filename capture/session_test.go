package capture_test

import (
	"context"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/fogleman/gg"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"github.com/teamcode/robotcv/capture"
	"github.com/teamcode/robotcv/components/camera"
	"github.com/teamcode/robotcv/components/camera/fake"
	"github.com/teamcode/robotcv/logging"
	"github.com/teamcode/robotcv/testutils/inject"
	"github.com/teamcode/robotcv/vision"
)

const tick = time.Second / capture.DefaultFrameRate

var res = camera.Resolution{Width: 64, Height: 48}

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func newFakeCamera(t *testing.T) *fake.Camera {
	t.Helper()
	cam, err := fake.NewCamera(camera.Named("webcam"), &fake.Config{Width: 640, Height: 480}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	return cam
}

// advanceUntil ticks the mock clock until the assertion holds.
func advanceUntil(t *testing.T, mock *clock.Mock, assertion func(tb testing.TB)) {
	t.Helper()
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		mock.Add(tick)
		assertion(tb)
	})
}

func TestConfigValidate(t *testing.T) {
	ctx := context.Background()
	engine := capture.NewEngine(logging.NewTestLogger(t))
	cam := inject.NewCamera("webcam")
	stage := &inject.Processor{}

	for _, tc := range []struct {
		cfg      capture.Config
		expected string
	}{
		{capture.Config{Resolution: res, Processors: []vision.Processor{stage}}, "a camera is required"},
		{capture.Config{Camera: cam, Processors: []vision.Processor{stage}}, "positive width and height"},
		{capture.Config{Camera: cam, Resolution: res}, "at least one processor"},
		{capture.Config{Camera: cam, Resolution: res, Processors: []vision.Processor{stage, nil}}, "processor 1 is nil"},
		{capture.Config{Camera: cam, Resolution: res, Processors: []vision.Processor{stage}, FrameRate: -1}, "frame rate"},
		{capture.Config{Camera: cam, Resolution: res, Processors: []vision.Processor{stage}, FrameRate: 2_000_000_000}, "frame rate"},
	} {
		_, err := engine.NewSession(ctx, tc.cfg)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, tc.expected)
	}
}

func TestNewSessionCameraFailures(t *testing.T) {
	ctx := context.Background()
	engine := capture.NewEngine(logging.NewTestLogger(t))
	cam := inject.NewCamera("webcam")
	stage := &inject.Processor{}
	cfg := capture.Config{Camera: cam, Resolution: res, Processors: []vision.Processor{stage}}

	cam.PropertiesFunc = func(ctx context.Context) (camera.Properties, error) {
		return camera.Properties{SupportedResolutions: []camera.Resolution{{Width: 320, Height: 240}}}, nil
	}
	_, err := engine.NewSession(ctx, cfg)
	test.That(t, errors.Is(err, camera.ErrUnsupportedResolution), test.ShouldBeTrue)

	cam.PropertiesFunc = func(ctx context.Context) (camera.Properties, error) {
		return camera.Properties{}, errors.New("unplugged")
	}
	_, err = engine.NewSession(ctx, cfg)
	test.That(t, err.Error(), test.ShouldContainSubstring, "cannot read properties of camera \"webcam\": unplugged")

	cam.PropertiesFunc = nil
	cam.StreamFunc = func(ctx context.Context, res camera.Resolution) (camera.VideoStream, error) {
		return nil, errors.New("device busy")
	}
	_, err = engine.NewSession(ctx, cfg)
	test.That(t, err.Error(), test.ShouldContainSubstring, "cannot open camera \"webcam\": device busy")
}

func TestSessionDelivery(t *testing.T) {
	ctx := context.Background()
	mock := clock.NewMock()
	cam := newFakeCamera(t)
	calls := &recorder{}

	var calibration *camera.Intrinsics
	first := &inject.Processor{
		NameFunc: func() string { return "first" },
		InitFunc: func(width, height int, c *camera.Intrinsics) {
			calibration = c
			calls.add("first.Init")
		},
		ProcessFrameFunc: func(ctx context.Context, frame *vision.Frame) (interface{}, error) {
			calls.add("first.ProcessFrame")
			return frame.Sequence, nil
		},
		OnDrawFrameFunc: func(dc *gg.Context, userContext interface{}) {
			calls.add("first.OnDrawFrame")
			dc.SetColor(color.RGBA{255, 0, 0, 255})
			dc.SetPixel(0, 0)
		},
	}
	var (
		frameMu    sync.Mutex
		sawOverlay bool
		lastFrame  *vision.Frame
	)
	second := &inject.Processor{
		InitFunc: func(width, height int, c *camera.Intrinsics) {
			calls.add("second.Init")
		},
		ProcessFrameFunc: func(ctx context.Context, frame *vision.Frame) (interface{}, error) {
			calls.add("second.ProcessFrame")
			frameMu.Lock()
			defer frameMu.Unlock()
			sawOverlay = frame.Image.RGBAAt(0, 0) == color.RGBA{255, 0, 0, 255}
			lastFrame = frame
			return nil, nil
		},
		OnDrawFrameFunc: func(dc *gg.Context, userContext interface{}) {
			calls.add("second.OnDrawFrame")
		},
	}

	sess, err := capture.NewEngine(logging.NewTestLogger(t)).NewSession(ctx, capture.Config{
		Camera:     cam,
		Resolution: res,
		Processors: []vision.Processor{first, second},
		LiveView:   true,
		Clock:      mock,
	})
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, sess.Close(ctx), test.ShouldBeNil)
	}()
	test.That(t, sess.Streaming(), test.ShouldBeTrue)
	test.That(t, cam.OpenStreams(), test.ShouldEqual, 1)
	test.That(t, calibration, test.ShouldResemble, cam.Intrinsics.Scaled(res))

	advanceUntil(t, mock, func(tb testing.TB) {
		test.That(tb, sess.FramesDelivered(), test.ShouldBeGreaterThanOrEqualTo, uint64(1))
	})
	test.That(t, calls.get()[:6], test.ShouldResemble, []string{
		"first.Init", "second.Init",
		"first.ProcessFrame", "first.OnDrawFrame", "second.ProcessFrame", "second.OnDrawFrame",
	})
	frameMu.Lock()
	test.That(t, sawOverlay, test.ShouldBeTrue)
	test.That(t, lastFrame.Image.Bounds(), test.ShouldResemble, res.Bounds())
	test.That(t, lastFrame.Sequence, test.ShouldBeGreaterThanOrEqualTo, uint64(1))
	test.That(t, lastFrame.CaptureTime.After(time.Unix(0, 0)), test.ShouldBeTrue)
	frameMu.Unlock()

	live, ok := sess.LiveFrame()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, live.Bounds(), test.ShouldResemble, res.Bounds())
}

func TestSessionStopResume(t *testing.T) {
	ctx := context.Background()
	mock := clock.NewMock()
	cam := newFakeCamera(t)
	stage := &inject.Processor{}

	sess, err := capture.NewEngine(logging.NewTestLogger(t)).NewSession(ctx, capture.Config{
		Camera:           cam,
		Resolution:       res,
		Processors:       []vision.Processor{stage},
		AutoStopLiveView: true,
		LiveView:         true,
		Clock:            mock,
	})
	test.That(t, err, test.ShouldBeNil)

	advanceUntil(t, mock, func(tb testing.TB) {
		_, ok := sess.LiveFrame()
		test.That(tb, ok, test.ShouldBeTrue)
	})

	test.That(t, sess.StopStreaming(ctx), test.ShouldBeNil)
	test.That(t, sess.StopStreaming(ctx), test.ShouldBeNil)
	test.That(t, sess.Streaming(), test.ShouldBeFalse)
	_, ok := sess.LiveFrame()
	test.That(t, ok, test.ShouldBeFalse)
	// the camera stays open while stopped
	test.That(t, cam.OpenStreams(), test.ShouldEqual, 1)

	// let an in-flight frame land, then no more are delivered
	mock.Add(tick)
	time.Sleep(10 * time.Millisecond)
	stopped := sess.FramesDelivered()
	for i := 0; i < 5; i++ {
		mock.Add(tick)
	}
	time.Sleep(10 * time.Millisecond)
	test.That(t, sess.FramesDelivered(), test.ShouldEqual, stopped)

	test.That(t, sess.ResumeStreaming(ctx), test.ShouldBeNil)
	test.That(t, sess.Streaming(), test.ShouldBeTrue)
	advanceUntil(t, mock, func(tb testing.TB) {
		test.That(tb, sess.FramesDelivered(), test.ShouldBeGreaterThan, stopped)
	})

	test.That(t, sess.Close(ctx), test.ShouldBeNil)
	test.That(t, cam.OpenStreams(), test.ShouldEqual, 0)
	test.That(t, sess.Streaming(), test.ShouldBeFalse)
	test.That(t, sess.Close(ctx), test.ShouldBeError, capture.ErrSessionClosed)
	test.That(t, sess.StopStreaming(ctx), test.ShouldBeError, capture.ErrSessionClosed)
	test.That(t, sess.ResumeStreaming(ctx), test.ShouldBeError, capture.ErrSessionClosed)
}

func TestSessionFitsAndSurvivesErrors(t *testing.T) {
	ctx := context.Background()
	mock := clock.NewMock()
	logger, logs := logging.NewObservedTestLogger(t)

	var reads int
	var mu sync.Mutex
	stream := &inject.VideoStream{
		NextFunc: func(ctx context.Context) (image.Image, func(), error) {
			mu.Lock()
			defer mu.Unlock()
			reads++
			if reads == 1 {
				return nil, nil, errors.New("dropped frame")
			}
			// twice the session resolution
			return image.NewNRGBA(image.Rect(0, 0, 128, 96)), nil, nil
		},
		CloseFunc: func(ctx context.Context) error {
			return errors.New("stuck")
		},
	}
	cam := inject.NewCamera("webcam")
	cam.StreamFunc = func(ctx context.Context, res camera.Resolution) (camera.VideoStream, error) {
		return stream, nil
	}

	drawn := &recorder{}
	failing := &inject.Processor{
		NameFunc: func() string { return "failing" },
		ProcessFrameFunc: func(ctx context.Context, frame *vision.Frame) (interface{}, error) {
			return nil, errors.New("bad frame")
		},
		OnDrawFrameFunc: func(dc *gg.Context, userContext interface{}) {
			drawn.add("failing")
		},
	}
	var size image.Rectangle
	healthy := &inject.Processor{
		ProcessFrameFunc: func(ctx context.Context, frame *vision.Frame) (interface{}, error) {
			mu.Lock()
			size = frame.Image.Bounds()
			mu.Unlock()
			return nil, nil
		},
		OnDrawFrameFunc: func(dc *gg.Context, userContext interface{}) {
			drawn.add("healthy")
		},
	}

	sess, err := capture.NewEngine(logger).NewSession(ctx, capture.Config{
		Camera:     cam,
		Resolution: res,
		Processors: []vision.Processor{failing, healthy},
		Clock:      mock,
	})
	test.That(t, err, test.ShouldBeNil)

	advanceUntil(t, mock, func(tb testing.TB) {
		test.That(tb, sess.FramesDelivered(), test.ShouldBeGreaterThanOrEqualTo, uint64(1))
	})
	mu.Lock()
	test.That(t, size, test.ShouldResemble, res.Bounds())
	mu.Unlock()
	test.That(t, drawn.get(), test.ShouldNotContain, "failing")
	test.That(t, drawn.get(), test.ShouldContain, "healthy")
	test.That(t, logs.FilterMessage("failed to read frame").Len(), test.ShouldEqual, 1)
	test.That(t, logs.FilterMessage("stage failed").Len(), test.ShouldBeGreaterThanOrEqualTo, 1)
	_, ok := sess.LiveFrame()
	test.That(t, ok, test.ShouldBeFalse)

	err = sess.Close(ctx)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "stuck")
}

func TestSessionIDs(t *testing.T) {
	ctx := context.Background()
	engine := capture.NewEngine(logging.NewTestLogger(t))
	cam := newFakeCamera(t)
	cfg := capture.Config{Camera: cam, Resolution: res, Processors: []vision.Processor{&inject.Processor{}}, Clock: clock.NewMock()}

	a, err := engine.NewSession(ctx, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, a.Close(ctx), test.ShouldBeNil)
	b, err := engine.NewSession(ctx, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, b.Close(ctx), test.ShouldBeNil)
	test.That(t, a.ID(), test.ShouldNotEqual, b.ID())
	test.That(t, cam.StreamsOpened(), test.ShouldEqual, 2)
}
