package segment

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// planeTensor builds a (C,H,W) tensor where channel c is filled with values[c].
func planeTensor(h, w int, values ...float32) *Tensor {
	data := make([]float32, len(values)*h*w)
	for c, v := range values {
		for i := 0; i < h*w; i++ {
			data[c*h*w+i] = v
		}
	}
	return &Tensor{Shape: []int{len(values), h, w}, Data: data}
}

func white(w, h int) *image.RGBA {
	return uniformRGBA(w, h, color.RGBA{R: 255, G: 255, B: 255, A: 255})
}

func TestPostprocessRoadEverywhere(t *testing.T) {
	t.Parallel()

	res, err := Postprocess(planeTensor(56, 56, 0, 1), white(400, 300))
	require.NoError(t, err)

	require.Equal(t, image.Rect(0, 0, 400, 300), res.Image.Bounds())
	assert.Equal(t, 400*300, res.RoadPixels)
	assert.Equal(t, 1.0, res.Coverage)
	assert.InDelta(t, 1.0, res.MeanLikelihood, 1e-9)
	assert.InDelta(t, 0.0, res.StdDevLikelihood, 1e-9)

	for _, p := range []image.Point{{0, 0}, {399, 299}, {200, 150}, {17, 283}} {
		c := res.Image.NRGBAAt(p.X, p.Y)
		assert.Equal(t, uint8(255), c.R, "pixel %v", p)
		assert.InDelta(t, 128, int(c.G), 1, "pixel %v", p)
		assert.InDelta(t, 128, int(c.B), 1, "pixel %v", p)
		assert.Equal(t, uint8(255), c.A, "pixel %v", p)
	}
}

func TestPostprocessNoRoadLeavesImageUnchanged(t *testing.T) {
	t.Parallel()

	original := white(400, 300)
	res, err := Postprocess(planeTensor(56, 56, 1, 0), original)
	require.NoError(t, err)

	assert.Zero(t, res.RoadPixels)
	assert.Zero(t, res.Coverage)
	assert.Equal(t, original.Pix, res.Image.Pix)
}

func TestPostprocessChannelSelection(t *testing.T) {
	t.Parallel()

	original := white(20, 10)

	// Only channel 1 is above threshold.
	res, err := Postprocess(planeTensor(4, 4, 0, 1, 0), original)
	require.NoError(t, err)
	assert.Equal(t, 200, res.RoadPixels)

	// Only channel 0 would highlight, so channel 1 must have been used.
	res, err = Postprocess(planeTensor(4, 4, 1, 0), original)
	require.NoError(t, err)
	assert.Zero(t, res.RoadPixels)

	// A single channel is used directly.
	res, err = Postprocess(planeTensor(4, 4, 1), original)
	require.NoError(t, err)
	assert.Equal(t, 200, res.RoadPixels)

	// Batched single channel output.
	batched := planeTensor(4, 4, 1)
	batched.Shape = []int{1, 1, 4, 4}
	res, err = Postprocess(batched, original)
	require.NoError(t, err)
	assert.Equal(t, 200, res.RoadPixels)

	// Two-dimensional output.
	flat := planeTensor(4, 4, 1)
	flat.Shape = []int{4, 4}
	res, err = Postprocess(flat, original)
	require.NoError(t, err)
	assert.Equal(t, 200, res.RoadPixels)
}

func TestPostprocessExplicitRoadChannel(t *testing.T) {
	t.Parallel()

	original := white(8, 8)
	p := Postprocessor{RoadChannel: 2}

	res, err := p.Process(planeTensor(4, 4, 0, 0, 1), original)
	require.NoError(t, err)
	assert.Equal(t, 64, res.RoadPixels)

	_, err = p.Process(planeTensor(4, 4, 0, 1), original)
	assert.ErrorIs(t, err, ErrInvalidModelOutput)

	_, err = Postprocessor{RoadChannel: -7}.Process(planeTensor(4, 4, 1), original)
	assert.ErrorIs(t, err, ErrInvalidModelOutput)
}

func TestPostprocessThresholdIsMonotonic(t *testing.T) {
	t.Parallel()

	original := white(3, 3)
	highlighted := false
	for step := 0; step <= 255; step++ {
		res, err := Postprocess(planeTensor(3, 3, 0, float32(step)/255), original)
		require.NoError(t, err)

		on := res.Image.NRGBAAt(1, 1) != color.NRGBA{R: 255, G: 255, B: 255, A: 255}
		if highlighted {
			assert.True(t, on, "pixel turned off again at %d", step)
		}
		assert.Equal(t, step > Threshold, on, "step %d", step)
		highlighted = on
	}
}

func TestPostprocessUpscalesToOriginal(t *testing.T) {
	t.Parallel()

	// Left half road, right half not.
	h, w := 56, 56
	out := planeTensor(h, w, 0, 0)
	for y := 0; y < h; y++ {
		for x := 0; x < w/2; x++ {
			out.Data[h*w+y*w+x] = 1
		}
	}

	res, err := Postprocess(out, white(1920, 1080))
	require.NoError(t, err)

	assert.Equal(t, image.Rect(0, 0, 1920, 1080), res.Image.Bounds())
	assert.Equal(t, image.Rect(0, 0, 1920, 1080), res.Mask.Bounds())
	assert.Equal(t, uint8(255), res.Mask.GrayAt(10, 540).Y)
	assert.Equal(t, uint8(0), res.Mask.GrayAt(1910, 540).Y)
	assert.InDelta(t, 0.5, res.Coverage, 0.02)
	assert.InDelta(t, 0.5, res.MeanLikelihood, 1e-9)
}

func TestPostprocessOddSizes(t *testing.T) {
	t.Parallel()

	for _, size := range []image.Point{{1, 1}, {3, 500}, {1000, 2}} {
		res, err := Postprocess(planeTensor(7, 5, 0, 1), white(size.X, size.Y))
		require.NoError(t, err, "size %v", size)
		assert.Equal(t, size, res.Image.Bounds().Size())
		assert.Equal(t, size.X*size.Y, res.RoadPixels)
	}
}

func TestPostprocessOffsetOriginal(t *testing.T) {
	t.Parallel()

	sub := white(100, 100).SubImage(image.Rect(10, 20, 60, 50))
	res, err := Postprocess(planeTensor(4, 4, 0, 1), sub)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 50, 30), res.Image.Bounds())
	assert.Equal(t, 50*30, res.RoadPixels)
}

func TestPostprocessClampsMaskValues(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint8(0), toByte(-3))
	assert.Equal(t, uint8(255), toByte(7))
	assert.Equal(t, uint8(128), toByte(0.5))
	assert.Equal(t, uint8(127), toByte(127.0/255))
}

func TestPostprocessInvalidOutput(t *testing.T) {
	t.Parallel()

	original := white(10, 10)
	cases := map[string]*Tensor{
		"nil":            nil,
		"zero height":    {Shape: []int{2, 0, 4}, Data: nil},
		"rank one":       {Shape: []int{16}, Data: make([]float32, 16)},
		"rank five":      {Shape: []int{1, 1, 1, 4, 4}, Data: make([]float32, 16)},
		"batch of two":   {Shape: []int{2, 1, 4, 4}, Data: make([]float32, 32)},
		"short data":     {Shape: []int{2, 4, 4}, Data: make([]float32, 31)},
		"empty shape":    {Shape: nil, Data: []float32{1}},
		"negative width": {Shape: []int{1, 4, -4}, Data: make([]float32, 16)},
	}
	for name, out := range cases {
		_, err := Postprocess(out, original)
		assert.ErrorIs(t, err, ErrInvalidModelOutput, name)
	}
}

func TestPostprocessInvalidOriginal(t *testing.T) {
	t.Parallel()

	_, err := Postprocess(planeTensor(4, 4, 1), nil)
	assert.ErrorIs(t, err, ErrInvalidImage)

	_, err = Postprocess(planeTensor(4, 4, 1), image.NewRGBA(image.Rect(0, 0, 10, 0)))
	assert.ErrorIs(t, err, ErrInvalidImage)
}
