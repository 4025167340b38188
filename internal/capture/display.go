package capture

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"rppg-dashboard/internal/model"
)

// ToDisplay copies frame into an RGBA image, scaled down to width when the
// frame is wider. A width of zero keeps the native size.
func ToDisplay(frame model.Frame, width int) (model.DisplayFrame, error) {
	src, err := frame.Image()
	if err != nil {
		return model.DisplayFrame{}, fmt.Errorf("display frame %d: %w", frame.Seq, err)
	}
	b := src.Bounds()

	if width <= 0 || width >= b.Dx() {
		dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
		return model.DisplayFrame{Seq: frame.Seq, CapturedAt: frame.CapturedAt, Image: dst}, nil
	}

	height := b.Dy() * width / b.Dx()
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return model.DisplayFrame{Seq: frame.Seq, CapturedAt: frame.CapturedAt, Image: dst}, nil
}
