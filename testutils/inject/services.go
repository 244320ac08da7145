package inject

import (
	"context"
	"image"

	"github.com/teamcode/robotcv/resource"
	"github.com/teamcode/robotcv/services/mlmodel"
	"github.com/teamcode/robotcv/utils"
	"github.com/teamcode/robotcv/vision/fiducial"
)

// TagDetector is an injected tag detector.
type TagDetector struct {
	fiducial.Detector
	name       resource.Name
	DetectFunc func(ctx context.Context, gray image.Image, params fiducial.DetectParams) ([]fiducial.TagDetection, error)
	CloseFunc  func(ctx context.Context) error
}

// NewTagDetector returns a new injected tag detector.
func NewTagDetector(name string) *TagDetector {
	return &TagDetector{name: fiducial.Named(name)}
}

// Name returns the name of the resource.
func (td *TagDetector) Name() resource.Name {
	return td.name
}

// Detect calls the injected Detect or the real version.
func (td *TagDetector) Detect(
	ctx context.Context,
	gray image.Image,
	params fiducial.DetectParams,
) ([]fiducial.TagDetection, error) {
	if td.DetectFunc == nil {
		return td.Detector.Detect(ctx, gray, params)
	}
	return td.DetectFunc(ctx, gray, params)
}

// Close calls the injected Close or the real version.
func (td *TagDetector) Close(ctx context.Context) error {
	if td.CloseFunc == nil {
		return utils.TryClose(ctx, td.Detector)
	}
	return td.CloseFunc(ctx)
}

// MLModelService represents a fake instance of an ML model service.
type MLModelService struct {
	mlmodel.Service
	name         resource.Name
	InferFunc    func(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)
	MetadataFunc func(ctx context.Context) (mlmodel.MLMetadata, error)
	CloseFunc    func(ctx context.Context) error
}

// NewMLModelService returns a new injected ML model service.
func NewMLModelService(name string) *MLModelService {
	return &MLModelService{name: mlmodel.Named(name)}
}

// Name returns the name of the resource.
func (s *MLModelService) Name() resource.Name {
	return s.name
}

// Infer calls the injected Infer or the real variant.
func (s *MLModelService) Infer(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	if s.InferFunc == nil {
		return s.Service.Infer(ctx, input)
	}
	return s.InferFunc(ctx, input)
}

// Metadata calls the injected Metadata or the real variant.
func (s *MLModelService) Metadata(ctx context.Context) (mlmodel.MLMetadata, error) {
	if s.MetadataFunc == nil {
		return s.Service.Metadata(ctx)
	}
	return s.MetadataFunc(ctx)
}

// Close calls the injected Close or the real version.
func (s *MLModelService) Close(ctx context.Context) error {
	if s.CloseFunc == nil {
		return utils.TryClose(ctx, s.Service)
	}
	return s.CloseFunc(ctx)
}
