package segment

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/nfnt/resize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uniformRGBA(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(x * 255 / w),
				G: uint8(y * 255 / h),
				B: uint8((x + y) % 256),
				A: 255,
			})
		}
	}
	return img
}

func TestPreprocessShape(t *testing.T) {
	t.Parallel()

	sizes := []image.Point{{1, 1}, {7, 3}, {224, 224}, {400, 300}, {640, 17}, {1920, 1080}}
	for _, size := range sizes {
		tensor, err := Preprocess(gradient(size.X, size.Y))
		require.NoError(t, err, "size %v", size)
		assert.Equal(t, []int{1, 3, 224, 224}, tensor.Shape, "size %v", size)
		require.Len(t, tensor.Data, 3*224*224)
		for _, v := range tensor.Data {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				t.Fatalf("size %v: non-finite value %v", size, v)
			}
		}
	}
}

func TestPreprocessNormalizesUniformImage(t *testing.T) {
	t.Parallel()

	tensor, err := Preprocess(uniformRGBA(50, 80, color.RGBA{R: 255, G: 0, B: 128, A: 255}))
	require.NoError(t, err)

	plane := InputSize * InputSize
	want := [3]float32{
		(1 - Mean[0]) / Std[0],
		(0 - Mean[1]) / Std[1],
		(128.0/255 - Mean[2]) / Std[2],
	}
	for c := 0; c < 3; c++ {
		for _, i := range []int{0, plane / 2, plane - 1} {
			assert.InDelta(t, want[c], tensor.Data[c*plane+i], 1e-5, "channel %d index %d", c, i)
		}
	}
}

func TestPreprocessRoundTrip(t *testing.T) {
	t.Parallel()

	src := gradient(300, 200)
	tensor, err := Preprocess(src)
	require.NoError(t, err)

	resized := resize.Resize(InputSize, InputSize, src, Interpolation)
	plane := InputSize * InputSize
	for y := 0; y < InputSize; y += 13 {
		for x := 0; x < InputSize; x += 11 {
			c := color.NRGBAModel.Convert(resized.At(x, y)).(color.NRGBA)
			want := []uint8{c.R, c.G, c.B}
			for ch := 0; ch < 3; ch++ {
				v := tensor.Data[ch*plane+y*InputSize+x]
				restored := (v*Std[ch] + Mean[ch]) * 255
				assert.InDelta(t, float64(want[ch]), float64(restored), 0.01, "pixel (%d,%d) channel %d", x, y, ch)
			}
		}
	}
}

func TestPreprocessDropsAlpha(t *testing.T) {
	t.Parallel()

	plane := InputSize * InputSize
	for _, alpha := range []uint8{0, 1, 3, 128, 255} {
		img := image.NewNRGBA(image.Rect(0, 0, 50, 40))
		for i := 0; i < len(img.Pix); i += 4 {
			img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 200, 100, 50, alpha
		}

		tensor, err := Preprocess(img)
		require.NoError(t, err)

		want := [3]float64{200, 100, 50}
		for ch := 0; ch < 3; ch++ {
			for _, i := range []int{0, plane / 3, plane - 1} {
				restored := (tensor.Data[ch*plane+i]*Std[ch] + Mean[ch]) * 255
				assert.InDelta(t, want[ch], float64(restored), 0.01, "alpha %d channel %d index %d", alpha, ch, i)
			}
		}
	}
}

func TestPreprocessIsDeterministic(t *testing.T) {
	t.Parallel()

	src := gradient(333, 111)
	a, err := Preprocess(src)
	require.NoError(t, err)
	b, err := Preprocess(src)
	require.NoError(t, err)
	assert.Equal(t, a.Data, b.Data)
}

func TestPreprocessInvalidImage(t *testing.T) {
	t.Parallel()

	_, err := Preprocess(nil)
	assert.ErrorIs(t, err, ErrInvalidImage)

	_, err = Preprocess(image.NewRGBA(image.Rect(0, 0, 0, 10)))
	assert.ErrorIs(t, err, ErrInvalidImage)

	_, err = Preprocess(image.NewRGBA(image.Rect(5, 5, 5, 5)))
	assert.ErrorIs(t, err, ErrInvalidImage)
}
