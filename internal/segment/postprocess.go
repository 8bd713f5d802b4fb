package segment

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/nfnt/resize"
	"gonum.org/v1/gonum/stat"
)

// Threshold is the 8-bit mask value a pixel must exceed to be highlighted.
const Threshold = 127

var Highlight = color.NRGBA{R: 255, G: 0, B: 0, A: 128}

// AutoChannel selects channel 1 when the output has more than one channel
// and channel 0 otherwise.
const AutoChannel = -1

type Result struct {
	Image *image.NRGBA
	// Mask is the road likelihood resized to the original dimensions.
	Mask *image.Gray

	RoadPixels int
	Coverage   float64

	// Likelihood statistics of the selected channel at model resolution.
	MeanLikelihood   float64
	StdDevLikelihood float64
}

type Postprocessor struct {
	// RoadChannel is the output channel holding road likelihood, or
	// AutoChannel.
	RoadChannel int
}

func NewPostprocessor() Postprocessor {
	return Postprocessor{RoadChannel: AutoChannel}
}

func Postprocess(output *Tensor, original image.Image) (*Result, error) {
	return NewPostprocessor().Process(output, original)
}

// Process selects the road channel of output, builds an 8-bit mask from it,
// resizes the mask to the bounds of original and composites Highlight over
// every pixel whose mask value exceeds Threshold.
func (p Postprocessor) Process(output *Tensor, original image.Image) (*Result, error) {
	if original == nil {
		return nil, fmt.Errorf("%w: no original image", ErrInvalidImage)
	}
	bounds := original.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, fmt.Errorf("%w: original dimensions %dx%d", ErrInvalidImage, bounds.Dx(), bounds.Dy())
	}

	channels, height, width, err := output.planes()
	if err != nil {
		return nil, err
	}
	channel, err := p.channel(channels)
	if err != nil {
		return nil, err
	}

	plane := output.Data[channel*height*width : (channel+1)*height*width]
	mask, mean, stddev := buildMask(plane, width, height)

	resized := toGray(resize.Resize(uint(bounds.Dx()), uint(bounds.Dy()), mask, Interpolation))

	overlay := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	road := 0
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			if resized.GrayAt(x, y).Y > Threshold {
				overlay.SetNRGBA(x, y, Highlight)
				road++
			}
		}
	}

	return &Result{
		Image:            Composite(original, overlay),
		Mask:             resized,
		RoadPixels:       road,
		Coverage:         float64(road) / float64(bounds.Dx()*bounds.Dy()),
		MeanLikelihood:   mean,
		StdDevLikelihood: stddev,
	}, nil
}

func (p Postprocessor) channel(channels int) (int, error) {
	if p.RoadChannel == AutoChannel {
		if channels > 1 {
			return 1, nil
		}
		return 0, nil
	}
	if p.RoadChannel < 0 || p.RoadChannel >= channels {
		return 0, fmt.Errorf("%w: road channel %d requested, output has %d", ErrInvalidModelOutput, p.RoadChannel, channels)
	}
	return p.RoadChannel, nil
}

// buildMask scales likelihoods in [0, 1] to 8-bit values. NaN maps to 0.
func buildMask(plane []float32, width, height int) (*image.Gray, float64, float64) {
	mask := image.NewGray(image.Rect(0, 0, width, height))
	likelihood := make([]float64, len(plane))
	for i, v := range plane {
		mask.Pix[i] = toByte(v)
		likelihood[i] = float64(mask.Pix[i]) / 255
	}

	mean, stddev := stat.MeanStdDev(likelihood, nil)
	if len(likelihood) < 2 {
		stddev = 0
	}
	return mask, mean, stddev
}

func toByte(v float32) uint8 {
	scaled := math.Round(float64(v) * 255)
	switch {
	case math.IsNaN(scaled), scaled <= 0:
		return 0
	case scaled >= 255:
		return 255
	}
	return uint8(scaled)
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Rect.Min == (image.Point{}) {
		return g
	}
	b := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			g.Set(x, y, color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)))
		}
	}
	return g
}
