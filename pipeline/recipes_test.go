package pipeline_test

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/benbjohnson/clock"
	"go.viam.com/test"

	"github.com/teamcode/robotcv/components/camera"
	"github.com/teamcode/robotcv/logging"
	"github.com/teamcode/robotcv/pipeline"
	"github.com/teamcode/robotcv/preview"
	"github.com/teamcode/robotcv/resource"
	"github.com/teamcode/robotcv/services/mlmodel"
	"github.com/teamcode/robotcv/testutils/inject"
	"github.com/teamcode/robotcv/vision"
	"github.com/teamcode/robotcv/vision/colordetection"
	"github.com/teamcode/robotcv/vision/fiducial"
)

// recipe erases a recipe's stage type so every recipe can run through the same checks.
type recipe struct {
	name  string
	stage string
	build func(ctx context.Context, hw resource.Provider, enablePreview bool, opts ...pipeline.Option) (handle, error)
}

type handle interface {
	State() pipeline.State
	Stages() []vision.Processor
	PreviewRelay() (*preview.Relay, bool)
	Config() pipeline.Config
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Destroy(ctx context.Context) error
}

func wrap[T vision.Processor](
	f func(context.Context, resource.Provider, bool, ...pipeline.Option) (*pipeline.CameraPipeline[T], error),
) func(context.Context, resource.Provider, bool, ...pipeline.Option) (handle, error) {
	return func(ctx context.Context, hw resource.Provider, enablePreview bool, opts ...pipeline.Option) (handle, error) {
		p, err := f(ctx, hw, enablePreview, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

var recipes = []recipe{
	{"debug", "debug", wrap(pipeline.NewDebugPipeline)},
	{"apriltag", "apriltag", wrap(pipeline.NewAprilTagPipeline)},
	{"color", "color_detection", wrap(pipeline.NewColorDetectionPipeline)},
	{"object", "object_detection", wrap(pipeline.NewObjectDetectionPipeline)},
}

func failingTransport() *inject.Transport {
	return &inject.Transport{
		StartCameraStreamFunc: func(src preview.FrameSource, index int) error {
			return errors.New("viewer not connected")
		},
		StopCameraStreamFunc: func(index int) error { return nil },
	}
}

func TestRecipesWithoutPreview(t *testing.T) {
	ctx := context.Background()
	for _, r := range recipes {
		t.Run(r.name, func(t *testing.T) {
			hm, cam := newHardware(t)
			p, err := r.build(ctx, hm, false,
				pipeline.WithLogger(logging.NewTestLogger(t)), pipeline.WithClock(clock.NewMock()))
			test.That(t, err, test.ShouldBeNil)
			test.That(t, p.State(), test.ShouldEqual, pipeline.Running)
			test.That(t, p.Config(), test.ShouldResemble, pipeline.DefaultConfig(false))
			test.That(t, cam.OpenStreams(), test.ShouldEqual, 1)

			_, ok := p.PreviewRelay()
			test.That(t, ok, test.ShouldBeFalse)
			test.That(t, p.Stages(), test.ShouldHaveLength, 1)
			test.That(t, vision.Name(p.Stages()[0]), test.ShouldEqual, r.stage)

			test.That(t, p.Destroy(ctx), test.ShouldBeNil)
			test.That(t, cam.OpenStreams(), test.ShouldEqual, 0)
		})
	}
}

func TestRecipesWithPreview(t *testing.T) {
	ctx := context.Background()
	for _, r := range recipes {
		t.Run(r.name, func(t *testing.T) {
			hm, cam := newHardware(t)
			logger, logs := logging.NewObservedTestLogger(t)
			p, err := r.build(ctx, hm, true,
				pipeline.WithLogger(logger), pipeline.WithClock(clock.NewMock()), pipeline.WithTransport(failingTransport()))
			test.That(t, err, test.ShouldBeNil)
			test.That(t, p.State(), test.ShouldEqual, pipeline.Running)
			test.That(t, logs.FilterMessageSnippet("preview unavailable").Len(), test.ShouldEqual, 1)

			relay, ok := p.PreviewRelay()
			test.That(t, ok, test.ShouldBeTrue)
			stages := p.Stages()
			test.That(t, stages, test.ShouldHaveLength, 2)
			test.That(t, vision.Name(stages[0]), test.ShouldEqual, r.stage)
			test.That(t, stages[1], test.ShouldEqual, relay)
			test.That(t, relay.Resolution(), test.ShouldResemble, camera.Resolution{Width: 640, Height: 480})

			test.That(t, p.Destroy(ctx), test.ShouldBeNil)
			test.That(t, cam.OpenStreams(), test.ShouldEqual, 0)
		})
	}
}

func TestRecipeMissingCamera(t *testing.T) {
	ctx := context.Background()
	for _, r := range recipes {
		_, err := r.build(ctx, resource.NewHardwareMap(), false, pipeline.WithLogger(logging.NewTestLogger(t)))
		test.That(t, errors.Is(err, pipeline.ErrCameraUnavailable), test.ShouldBeTrue)
	}
}

func TestColorDetectionScenario(t *testing.T) {
	ctx := context.Background()
	hm, cam := newHardware(t)

	p, err := pipeline.NewColorDetectionPipeline(ctx, hm, false,
		pipeline.WithLogger(logging.NewTestLogger(t)), pipeline.WithClock(clock.NewMock()))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.State(), test.ShouldEqual, pipeline.Running)

	opts := p.Processor().Options()
	test.That(t, opts.Lower, test.ShouldResemble, colordetection.HSV{H: 0, S: 0, V: 178})
	test.That(t, opts.Upper, test.ShouldResemble, colordetection.HSV{H: 172, S: 111, V: 255})

	test.That(t, p.Pause(ctx), test.ShouldBeNil)
	test.That(t, p.Resume(ctx), test.ShouldBeNil)
	test.That(t, p.Destroy(ctx), test.ShouldBeNil)
	test.That(t, p.State(), test.ShouldEqual, pipeline.Destroyed)
	test.That(t, cam.OpenStreams(), test.ShouldEqual, 0)
	test.That(t, p.Processor().Blobs(), test.ShouldBeEmpty)
}

func TestAprilTagRecipeBackend(t *testing.T) {
	ctx := context.Background()

	hm, _ := newHardware(t)
	p, err := pipeline.NewAprilTagPipeline(ctx, hm, false,
		pipeline.WithLogger(logging.NewTestLogger(t)), pipeline.WithClock(clock.NewMock()))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.Processor().HasDetector(), test.ShouldBeFalse)
	test.That(t, p.Processor().Options().DrawAxes, test.ShouldBeFalse)
	test.That(t, p.Destroy(ctx), test.ShouldBeNil)

	detector := inject.NewTagDetector(fiducial.DefaultDetectorName)
	detector.DetectFunc = func(ctx context.Context, gray image.Image, params fiducial.DetectParams) ([]fiducial.TagDetection, error) {
		return nil, nil
	}
	test.That(t, hm.Add(detector), test.ShouldBeNil)
	p, err = pipeline.NewAprilTagPipeline(ctx, hm, true,
		pipeline.WithLogger(logging.NewTestLogger(t)), pipeline.WithClock(clock.NewMock()),
		pipeline.WithTransport(failingTransport()))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.Processor().HasDetector(), test.ShouldBeTrue)
	drawing := p.Processor().Options()
	test.That(t, drawing.DrawTagOutline, test.ShouldBeTrue)
	test.That(t, drawing.DrawTagID, test.ShouldBeTrue)
	test.That(t, drawing.DrawAxes, test.ShouldBeTrue)
	test.That(t, drawing.DrawCubeProjection, test.ShouldBeTrue)
	test.That(t, p.Destroy(ctx), test.ShouldBeNil)
}

func TestObjectDetectionRecipeBackend(t *testing.T) {
	ctx := context.Background()
	hm, _ := newHardware(t)
	model := inject.NewMLModelService("detector")
	model.MetadataFunc = func(ctx context.Context) (mlmodel.MLMetadata, error) {
		return mlmodel.MLMetadata{}, errors.New("not loaded")
	}
	test.That(t, hm.Add(model), test.ShouldBeNil)

	logger, logs := logging.NewObservedTestLogger(t)
	p, err := pipeline.NewObjectDetectionPipeline(ctx, hm, false,
		pipeline.WithLogger(logger), pipeline.WithClock(clock.NewMock()))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.State(), test.ShouldEqual, pipeline.Running)
	test.That(t, logs.FilterMessageSnippet("no detection model attached").Len(), test.ShouldEqual, 0)
	test.That(t, p.Processor().Options().MinScore, test.ShouldEqual, 0.75)
	test.That(t, p.Destroy(ctx), test.ShouldBeNil)
}
