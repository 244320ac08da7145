// Package mlmodel defines a service that takes in a map of input arrays, passes them through an
// inference engine, and returns a map of output arrays.
package mlmodel

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/teamcode/robotcv/resource"
	"github.com/teamcode/robotcv/utils"
)

// SubtypeName is the name of the type of service.
const SubtypeName = "mlmodel"

// API is a variable that identifies the ML model service resource API.
var API = resource.APIFromServiceType(SubtypeName)

// Named is a helper for getting the named ML model service's typed resource name.
func Named(name string) resource.Name {
	return resource.NewName(API, name)
}

// FromProvider is a helper for getting the named ML model service from a resource Provider.
func FromProvider(provider resource.Provider, name string) (Service, error) {
	return resource.FromProvider[Service](provider, Named(name))
}

// Service runs a single model. Inputs and outputs are flat slices ([]uint8, []float32, ...)
// keyed by tensor name.
type Service interface {
	resource.Resource
	Infer(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)
	Metadata(ctx context.Context) (MLMetadata, error)
}

// MLMetadata describes the model's tensors.
type MLMetadata struct {
	ModelName        string
	ModelType        string // e.g. object_detector, text_classifier
	ModelDescription string
	Inputs           []TensorInfo
	Outputs          []TensorInfo
}

// TensorInfo describes one input or output tensor.
type TensorInfo struct {
	Name        string // e.g. bounding_boxes
	Description string
	DataType    string // e.g. uint8, float32
	Shape       []int
	Extra       map[string]interface{}
}

// Output returns the first output whose name contains name, case insensitively.
func (mm MLMetadata) Output(name string) (TensorInfo, bool) {
	for _, o := range mm.Outputs {
		if strings.Contains(strings.ToLower(o.Name), strings.ToLower(name)) {
			return o, true
		}
	}
	return TensorInfo{}, false
}

// ImageInput returns the single image input of a vision model along with its height and width.
// Shapes are either NHWC or NCHW.
func (mm MLMetadata) ImageInput() (TensorInfo, int, int, error) {
	if len(mm.Inputs) == 0 {
		return TensorInfo{}, 0, 0, errors.Errorf("model %q has no inputs", mm.ModelName)
	}
	in := mm.Inputs[0]
	if len(in.Shape) != 4 {
		return TensorInfo{}, 0, 0, errors.Errorf("input %q has shape %v, expected 4 dimensions", in.Name, in.Shape)
	}
	height, width := in.Shape[1], in.Shape[2]
	if in.Shape[1] == 3 || in.Shape[1] == 1 {
		height, width = in.Shape[2], in.Shape[3]
	}
	if height <= 0 || width <= 0 {
		return TensorInfo{}, 0, 0, errors.Errorf("input %q has dynamic shape %v", in.Name, in.Shape)
	}
	return in, height, width, nil
}

// Float64s converts an output slice into float64s.
func Float64s(v interface{}) ([]float64, error) {
	switch vals := v.(type) {
	case []float64:
		return vals, nil
	case []float32:
		out := make([]float64, len(vals))
		for i, x := range vals {
			out[i] = float64(x)
		}
		return out, nil
	case []uint8:
		out := make([]float64, len(vals))
		for i, x := range vals {
			out[i] = float64(x)
		}
		return out, nil
	case []int32:
		out := make([]float64, len(vals))
		for i, x := range vals {
			out[i] = float64(x)
		}
		return out, nil
	case nil:
		return nil, errors.New("missing output tensor")
	default:
		return nil, utils.NewUnexpectedTypeError[[]float32](v)
	}
}
