package objectdetection

import (
	"bufio"
	"context"
	"image"
	"os"
	"strconv"

	"github.com/montanaflynn/stats"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/teamcode/robotcv/services/mlmodel"
	"github.com/teamcode/robotcv/utils"
	"github.com/teamcode/robotcv/vision"
)

// Detector returns the detections found in an image.
type Detector func(context.Context, image.Image) ([]vision.Detection, error)

// defaultBoxOrder reads locations as [ymin, xmin, ymax, xmax], the SSD convention.
var defaultBoxOrder = []int{1, 0, 3, 2}

// NewModelDetector builds a Detector around an ML model that takes one image and outputs the
// "location", "category" and "score" tensors of an SSD-style detector.
func NewModelDetector(ctx context.Context, mlm mlmodel.Service) (Detector, error) {
	md, err := mlm.Metadata(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "could not find metadata")
	}
	input, inHeight, inWidth, err := md.ImageInput()
	if err != nil {
		return nil, err
	}
	inType := input.DataType
	if inType != "uint8" && inType != "float32" {
		return nil, errors.Errorf("invalid input type %q. try uint8 or float32", inType)
	}
	labels, err := labelsFromMetadata(md)
	if err != nil {
		return nil, err
	}
	boxOrder := boxOrderFromMetadata(md)

	return func(ctx context.Context, img image.Image) ([]vision.Detection, error) {
		origW, origH := img.Bounds().Dx(), img.Bounds().Dy()
		resized := resize.Resize(uint(inWidth), uint(inHeight), img, resize.Bilinear)
		inMap := map[string]interface{}{}
		if inType == "uint8" {
			inMap[input.Name] = imageToUInt8Buffer(resized)
		} else {
			inMap[input.Name] = imageToFloatBuffer(resized)
		}
		outMap, err := mlm.Infer(ctx, inMap)
		if err != nil {
			return nil, err
		}

		locations, err := mlmodel.Float64s(outMap["location"])
		if err != nil {
			return nil, errors.Wrap(err, "location")
		}
		categories, err := mlmodel.Float64s(outMap["category"])
		if err != nil {
			return nil, errors.Wrap(err, "category")
		}
		scores, err := mlmodel.Float64s(outMap["score"])
		if err != nil {
			return nil, errors.Wrap(err, "score")
		}
		scores = checkDetectionScores(scores)
		if len(locations) < 4*len(scores) || len(categories) < len(scores) {
			return nil, errors.Errorf("model returned %d scores but %d locations and %d categories",
				len(scores), len(locations), len(categories))
		}

		// Now reshape outMap into Detections
		detections := make([]vision.Detection, 0, len(scores))
		for i := 0; i < len(scores); i++ {
			xmin, xmax, ymin, ymax := utils.Clamp(locations[4*i+boxOrder[0]], 0, 1)*float64(origW),
				utils.Clamp(locations[4*i+boxOrder[2]], 0, 1)*float64(origW),
				utils.Clamp(locations[4*i+boxOrder[1]], 0, 1)*float64(origH),
				utils.Clamp(locations[4*i+boxOrder[3]], 0, 1)*float64(origH)
			rect := image.Rect(int(xmin), int(ymin), int(xmax), int(ymax))
			labelNum := int(categories[i])

			label := strconv.Itoa(labelNum)
			if labelNum >= 0 && labelNum < len(labels) {
				label = labels[labelNum]
			}
			detections = append(detections, vision.NewDetection(rect, scores[i], label))
		}
		return detections, nil
	}, nil
}

// checkDetectionScores squashes raw logits into confidences. Scores already within [0, 1] are
// returned as they are.
func checkDetectionScores(in []float64) []float64 {
	for _, s := range in {
		if s < 0 || s > 1 {
			out, err := stats.Sigmoid(in)
			if err != nil {
				return in
			}
			return out
		}
	}
	return in
}

// labelsFromMetadata reads category labels either inline from the category output's "labels"
// extra, or from the file it names.
func labelsFromMetadata(md mlmodel.MLMetadata) ([]string, error) {
	out, ok := md.Output("category")
	if !ok {
		return nil, nil
	}
	switch labels := out.Extra["labels"].(type) {
	case []string:
		return labels, nil
	case string:
		//nolint:gosec
		f, err := os.Open(labels)
		if err != nil {
			return nil, errors.Wrap(err, "could not read labels file")
		}
		defer goutils.UncheckedErrorFunc(f.Close)
		var ret []string
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			ret = append(ret, scanner.Text())
		}
		return ret, scanner.Err()
	default:
		return nil, nil
	}
}

// boxOrderFromMetadata returns the index of xmin, ymin, xmax, ymax within each location quadruple.
func boxOrderFromMetadata(md mlmodel.MLMetadata) []int {
	out, ok := md.Output("location")
	if !ok {
		return defaultBoxOrder
	}
	order, ok := out.Extra["box_order"].([]int)
	if !ok || len(order) != 4 {
		return defaultBoxOrder
	}
	var seen [4]bool
	for _, idx := range order {
		if idx < 0 || idx > 3 || seen[idx] {
			return defaultBoxOrder
		}
		seen[idx] = true
	}
	return order
}

// imageToUInt8Buffer flattens an image into interleaved RGB bytes.
func imageToUInt8Buffer(img image.Image) []uint8 {
	bounds := img.Bounds()
	out := make([]uint8, 0, bounds.Dx()*bounds.Dy()*3)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			out = append(out, uint8(r>>8), uint8(g>>8), uint8(b>>8))
		}
	}
	return out
}

// imageToFloatBuffer flattens an image into interleaved RGB values in [0, 1].
func imageToFloatBuffer(img image.Image) []float32 {
	bytes := imageToUInt8Buffer(img)
	out := make([]float32, len(bytes))
	for i, b := range bytes {
		out[i] = float32(b) / 255
	}
	return out
}
