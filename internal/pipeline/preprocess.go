package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"maps"
	"slices"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/Brownie44l1/sheharfix-ml/internal/model"
)

// DefaultMaxPixels bounds the decoded image area. Larger images are rejected
// from their header, before any pixel data is decoded.
const DefaultMaxPixels = 89_478_485

var interpolations = map[string]resize.InterpolationFunction{
	"nearest":  resize.NearestNeighbor,
	"bilinear": resize.Bilinear,
	"bicubic":  resize.Bicubic,
	"mitchell": resize.MitchellNetravali,
	"lanczos2": resize.Lanczos2,
	"lanczos3": resize.Lanczos3,
}

// Interpolations lists the accepted resize kernel names, sorted.
func Interpolations() []string {
	return slices.Sorted(maps.Keys(interpolations))
}

// Preprocess turns encoded image bytes into a [1, size, size, 3] NHWC tensor
// with values in [0, 1].
func (p *Pipeline) Preprocess(raw []byte) (model.Tensor, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return model.Tensor{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return model.Tensor{}, fmt.Errorf("%w: image has no pixels", ErrDecode)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > p.maxPixels {
		return model.Tensor{}, fmt.Errorf("%w: image size (%d pixels) exceeds limit of %d pixels",
			ErrDecode, pixels, p.maxPixels)
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return model.Tensor{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	size := uint(p.imageSize)
	resized := resize.Resize(size, size, dropAlpha(img), p.interp)

	return toTensor(resized, p.imageSize), nil
}

// dropAlpha makes img opaque in place. Colour channels are kept as stored
// rather than composited, and the decoded image is never copied. Types
// without an alpha channel are returned unchanged.
func dropAlpha(img image.Image) image.Image {
	switch m := img.(type) {
	case *image.NRGBA:
		for i := 3; i < len(m.Pix); i += 4 {
			m.Pix[i] = 0xff
		}
	case *image.NRGBA64:
		for i := 6; i < len(m.Pix); i += 8 {
			m.Pix[i], m.Pix[i+1] = 0xff, 0xff
		}
	case *image.Paletted:
		for i, c := range m.Palette {
			n := color.NRGBAModel.Convert(c).(color.NRGBA)
			n.A = 0xff
			m.Palette[i] = n
		}
	}
	return img
}

// toTensor reads the resized image into NHWC floats. Non-RGBA results go
// through the NRGBA model, so gray levels land on all three channels.
func toTensor(img image.Image, size int) model.Tensor {
	data := make([]float32, size*size*3)

	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Dx() == size && rgba.Bounds().Dy() == size {
		for y := 0; y < size; y++ {
			row := rgba.Pix[y*rgba.Stride : y*rgba.Stride+size*4]
			for x := 0; x < size; x++ {
				i := (y*size + x) * 3
				data[i+0] = float32(row[x*4+0]) / 255.0
				data[i+1] = float32(row[x*4+1]) / 255.0
				data[i+2] = float32(row[x*4+2]) / 255.0
			}
		}
	} else {
		b := img.Bounds()
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
				i := (y*size + x) * 3
				data[i+0] = float32(c.R) / 255.0
				data[i+1] = float32(c.G) / 255.0
				data[i+2] = float32(c.B) / 255.0
			}
		}
	}

	return model.Tensor{
		Shape: []int64{1, int64(size), int64(size), 3},
		Data:  data,
	}
}
