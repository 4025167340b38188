package model

import (
	"fmt"
	"image"
	"time"
)

type PixelFormat string

const (
	PixelFormatBGR24 PixelFormat = "bgr24"
	PixelFormatRGB24 PixelFormat = "rgb24"
	PixelFormatRGBA  PixelFormat = "rgba"
	PixelFormatGray8 PixelFormat = "gray8"
)

// BytesPerPixel returns 0 for unknown formats.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case PixelFormatBGR24, PixelFormatRGB24:
		return 3
	case PixelFormatRGBA:
		return 4
	case PixelFormatGray8:
		return 1
	default:
		return 0
	}
}

// Frame is a raw camera frame. Rows are tightly packed.
type Frame struct {
	Seq        uint64
	CapturedAt time.Time
	Width      int
	Height     int
	Format     PixelFormat
	Data       []byte
}

// DisplayFrame is the display-ready copy of a captured frame. Image must not be
// mutated once the frame has been emitted.
type DisplayFrame struct {
	Seq        uint64
	CapturedAt time.Time
	Image      *image.RGBA
}

// Image converts the raw buffer into an image. RGBA and Gray8 frames share
// their pixel memory with the returned image.
func (f Frame) Image() (image.Image, error) {
	bpp := f.Format.BytesPerPixel()
	if bpp == 0 {
		return nil, fmt.Errorf("unsupported pixel format %q", f.Format)
	}
	if f.Width <= 0 || f.Height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", f.Width, f.Height)
	}
	if want := f.Width * f.Height * bpp; len(f.Data) != want {
		return nil, fmt.Errorf("frame buffer is %d bytes, want %d for %dx%d %s", len(f.Data), want, f.Width, f.Height, f.Format)
	}

	rect := image.Rect(0, 0, f.Width, f.Height)
	switch f.Format {
	case PixelFormatRGBA:
		return &image.RGBA{Pix: f.Data, Stride: f.Width * 4, Rect: rect}, nil
	case PixelFormatGray8:
		return &image.Gray{Pix: f.Data, Stride: f.Width, Rect: rect}, nil
	}

	img := image.NewRGBA(rect)
	r, b := 0, 2
	if f.Format == PixelFormatBGR24 {
		r, b = 2, 0
	}
	for i, j := 0, 0; i < len(f.Data); i, j = i+3, j+4 {
		img.Pix[j] = f.Data[i+r]
		img.Pix[j+1] = f.Data[i+1]
		img.Pix[j+2] = f.Data[i+b]
		img.Pix[j+3] = 0xff
	}
	return img, nil
}
