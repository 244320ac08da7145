package camera

import (
	"math"

	"github.com/pkg/errors"
)

// Intrinsics are the pinhole parameters of a calibrated camera, in pixels.
type Intrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// CheckValid checks if the fields for Intrinsics have valid inputs.
func (params *Intrinsics) CheckValid() error {
	if params == nil {
		return errors.New("intrinsics do not exist")
	}
	if params.Width == 0 || params.Height == 0 {
		return errors.Errorf("invalid size (%d, %d)", params.Width, params.Height)
	}
	if params.Fx <= 0 || params.Fy <= 0 {
		return errors.Errorf("invalid focal length (%v, %v)", params.Fx, params.Fy)
	}
	if params.Ppx < 0 || params.Ppy < 0 {
		return errors.Errorf("invalid principal point (%v, %v)", params.Ppx, params.Ppy)
	}
	return nil
}

// Scaled returns the intrinsics for the same lens at another resolution.
func (params *Intrinsics) Scaled(res Resolution) *Intrinsics {
	if params == nil {
		return nil
	}
	widthRatio := float64(res.Width) / float64(params.Width)
	heightRatio := float64(res.Height) / float64(params.Height)
	return &Intrinsics{
		Width:  res.Width,
		Height: res.Height,
		Fx:     params.Fx * widthRatio,
		Fy:     params.Fy * heightRatio,
		Ppx:    params.Ppx * widthRatio,
		Ppy:    params.Ppy * heightRatio,
	}
}

// PointToPixel projects a 3D point in the camera frame to a pixel in the image plane.
func (params *Intrinsics) PointToPixel(x, y, z float64) (float64, float64) {
	if z != 0. {
		xPx := math.Round((x/z)*params.Fx + params.Ppx)
		yPx := math.Round((y/z)*params.Fy + params.Ppy)
		return xPx, yPx
	}
	// a point on the focal plane cannot be projected; return coordinates outside every image
	return -1.0, -1.0
}
