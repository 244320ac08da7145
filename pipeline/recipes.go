package pipeline

import (
	"context"

	"github.com/teamcode/robotcv/config"
	"github.com/teamcode/robotcv/resource"
	"github.com/teamcode/robotcv/services/mlmodel"
	"github.com/teamcode/robotcv/vision/colordetection"
	"github.com/teamcode/robotcv/vision/debugview"
	"github.com/teamcode/robotcv/vision/fiducial"
	"github.com/teamcode/robotcv/vision/objectdetection"
)

// NewDebugPipeline runs the diagnostic stage on the default camera.
func NewDebugPipeline(
	ctx context.Context,
	hw resource.Provider,
	enablePreview bool,
	opts ...Option,
) (*CameraPipeline[*debugview.Processor], error) {
	return NewFromConfig(ctx, debugview.NewProcessor(), hw, DefaultConfig(enablePreview), opts...)
}

// NewAprilTagPipeline runs tag detection on the default camera. Overlays are drawn only when
// preview is enabled. The detector backend is looked up under fiducial.DefaultDetectorName; when
// it is missing the stage reports no tags.
func NewAprilTagPipeline(
	ctx context.Context,
	hw resource.Provider,
	enablePreview bool,
	opts ...Option,
) (*CameraPipeline[*fiducial.Processor], error) {
	logger := applyOptions(opts).logger
	detector, err := fiducial.FromProvider(hw, fiducial.DefaultDetectorName)
	if err != nil {
		logger.Debugw("no tag detector backend", "name", fiducial.DefaultDetectorName, "error", err)
	}
	stage := fiducial.NewProcessor(fiducial.AllDrawing(enablePreview), detector, logger.Sublogger("apriltag"))
	return NewFromConfig(ctx, stage, hw, DefaultConfig(enablePreview), opts...)
}

// NewColorDetectionPipeline finds regions between config.DefaultColorLower and
// config.DefaultColorUpper on the default camera.
func NewColorDetectionPipeline(
	ctx context.Context,
	hw resource.Provider,
	enablePreview bool,
	opts ...Option,
) (*CameraPipeline[*colordetection.Processor], error) {
	stage := colordetection.NewProcessor(colordetection.Options{
		Lower: config.DefaultColorLower,
		Upper: config.DefaultColorUpper,
	})
	return NewFromConfig(ctx, stage, hw, DefaultConfig(enablePreview), opts...)
}

// NewObjectDetectionPipeline runs model-based detection on the default camera. The model is
// looked up under objectdetection.DefaultModelName; when it is missing the stage reports nothing.
func NewObjectDetectionPipeline(
	ctx context.Context,
	hw resource.Provider,
	enablePreview bool,
	opts ...Option,
) (*CameraPipeline[*objectdetection.Processor], error) {
	logger := applyOptions(opts).logger
	model, err := mlmodel.FromProvider(hw, objectdetection.DefaultModelName)
	if err != nil {
		logger.Debugw("no detection model", "name", objectdetection.DefaultModelName, "error", err)
	}
	stage := objectdetection.NewProcessor(objectdetection.Options{}, model, logger.Sublogger("objectdetection"))
	return NewFromConfig(ctx, stage, hw, DefaultConfig(enablePreview), opts...)
}
