package vision

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"
)

var font *truetype.Font

// Overlay colors shared by the stages.
var (
	Red    = color.NRGBA{255, 0, 0, 255}
	Green  = color.NRGBA{0, 255, 0, 255}
	Blue   = color.NRGBA{0, 0, 255, 255}
	Yellow = color.NRGBA{255, 255, 0, 255}
	White  = color.NRGBA{255, 255, 255, 255}
)

// init sets up the fonts we want to use.
func init() {
	var err error
	font, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// Font returns the font we use for drawing.
func Font() *truetype.Font {
	return font
}

// NewDrawContext returns a drawing context bound to img; drawing on it mutates img in place.
func NewDrawContext(img *image.RGBA) *gg.Context {
	return gg.NewContextForRGBA(img)
}

// DrawString writes a string to the given context at a particular point.
func DrawString(dc *gg.Context, text string, p image.Point, c color.Color, size float64) {
	dc.SetFontFace(truetype.NewFace(Font(), &truetype.Options{Size: size}))
	dc.SetColor(c)
	dc.DrawStringWrapped(text, float64(p.X), float64(p.Y), 0, 0, float64(dc.Width()), 1, 0)
}

// DrawRectangleEmpty draws the given rectangle into the context. The positions of the
// rectangle are used to place it within the context.
func DrawRectangleEmpty(dc *gg.Context, r image.Rectangle, c color.Color, width float64) {
	dc.SetColor(c)
	dc.SetLineWidth(width)
	dc.DrawRectangle(float64(r.Min.X), float64(r.Min.Y), float64(r.Dx()), float64(r.Dy()))
	dc.Stroke()
}

// DrawPolygon strokes a closed outline through pts.
func DrawPolygon(dc *gg.Context, pts []gg.Point, c color.Color, width float64) {
	if len(pts) < 2 {
		return
	}
	dc.SetColor(c)
	dc.SetLineWidth(width)
	dc.MoveTo(pts[0].X, pts[0].Y)
	for _, p := range pts[1:] {
		dc.LineTo(p.X, p.Y)
	}
	dc.ClosePath()
	dc.Stroke()
}

// DrawLine strokes a segment between two points.
func DrawLine(dc *gg.Context, from, to gg.Point, c color.Color, width float64) {
	dc.SetColor(c)
	dc.SetLineWidth(width)
	dc.DrawLine(from.X, from.Y, to.X, to.Y)
	dc.Stroke()
}

// DrawCrosshair draws a cross of the given arm length centered on p.
func DrawCrosshair(dc *gg.Context, p image.Point, arm int, c color.Color) {
	x, y := float64(p.X), float64(p.Y)
	DrawLine(dc, gg.Point{X: x - float64(arm), Y: y}, gg.Point{X: x + float64(arm), Y: y}, c, 1)
	DrawLine(dc, gg.Point{X: x, Y: y - float64(arm)}, gg.Point{X: x, Y: y + float64(arm)}, c, 1)
}

// DrawDetections outlines each detection and writes its label and score above it.
func DrawDetections(dc *gg.Context, dets []Detection, c color.Color) {
	for _, d := range dets {
		DrawRectangleEmpty(dc, d.BoundingBox, c, 2)
		label := d.String()
		if d.Label != "" {
			label = d.Label
		}
		DrawString(dc, label, image.Pt(d.BoundingBox.Min.X, max(0, d.BoundingBox.Min.Y-14)), c, 12)
	}
}
