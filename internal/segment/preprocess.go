// Package segment turns photographs into model input tensors and model
// outputs into road highlight overlays.
//
// Both directions resize with github.com/nfnt/resize using bilinear
// interpolation, so a given image always yields the same tensor and a given
// output tensor always yields the same overlay.
package segment

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
)

const InputSize = 224

// Interpolation is the resampling policy shared by preprocessing and mask
// resizing.
const Interpolation = resize.Bilinear

// Per-channel normalization constants, applied to values scaled to [0, 1].
var (
	Mean = [3]float32{0.485, 0.456, 0.406}
	Std  = [3]float32{0.229, 0.224, 0.225}
)

func InputShape() []int {
	return []int{1, 3, InputSize, InputSize}
}

// Preprocess resizes img to InputSize×InputSize, scales each RGB channel to
// [0, 1], normalizes it with Mean and Std and lays the result out as
// (1, 3, InputSize, InputSize). Alpha is dropped before resizing, so
// translucent pixels keep their stored color.
func Preprocess(img image.Image) (*Tensor, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: no image", ErrInvalidImage)
	}
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, fmt.Errorf("%w: dimensions %dx%d", ErrInvalidImage, bounds.Dx(), bounds.Dy())
	}

	resized := resize.Resize(InputSize, InputSize, opaque(img), Interpolation)
	rb := resized.Bounds()

	plane := InputSize * InputSize
	data := make([]float32, 3*plane)
	for y := 0; y < InputSize; y++ {
		for x := 0; x < InputSize; x++ {
			c := color.NRGBAModel.Convert(resized.At(rb.Min.X+x, rb.Min.Y+y)).(color.NRGBA)

			i := y*InputSize + x
			data[i] = normalize(c.R, 0)
			data[plane+i] = normalize(c.G, 1)
			data[2*plane+i] = normalize(c.B, 2)
		}
	}

	return &Tensor{Shape: InputShape(), Data: data}, nil
}

// opaque copies img as non-premultiplied RGBA with every alpha set to 255.
// nfnt/resize premultiplies while resampling, which would darken
// translucent pixels.
func opaque(img image.Image) *image.NRGBA {
	flat := imaging.Clone(img)
	for i := 3; i < len(flat.Pix); i += 4 {
		flat.Pix[i] = 0xff
	}
	return flat
}

func normalize(v uint8, channel int) float32 {
	return (float32(v)/255.0 - Mean[channel]) / Std[channel]
}
