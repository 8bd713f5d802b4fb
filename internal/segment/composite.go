package segment

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// Composite draws overlay over base with source-over alpha compositing on
// non-premultiplied colors. The result has the bounds of base moved to the
// origin; overlay is read from its own origin. Pixels where the overlay is
// fully transparent are copied from base unchanged.
func Composite(base image.Image, overlay *image.NRGBA) *image.NRGBA {
	dst := imaging.Clone(base)
	b := dst.Bounds()
	ob := overlay.Bounds()

	for y := 0; y < b.Dy() && y < ob.Dy(); y++ {
		for x := 0; x < b.Dx() && x < ob.Dx(); x++ {
			si := overlay.PixOffset(ob.Min.X+x, ob.Min.Y+y)
			src := overlay.Pix[si : si+4 : si+4]
			if src[3] == 0 {
				continue
			}
			di := dst.PixOffset(x, y)
			over(dst.Pix[di:di+4:di+4], src)
		}
	}
	return dst
}

// over blends src onto dst in place. Channels are 8-bit RGBA, alpha is not
// premultiplied.
func over(dst, src []uint8) {
	sa := float64(src[3]) / 255
	da := float64(dst[3]) / 255
	outA := sa + da*(1-sa)
	if outA == 0 {
		dst[0], dst[1], dst[2], dst[3] = 0, 0, 0, 0
		return
	}
	for i := 0; i < 3; i++ {
		c := (float64(src[i])*sa + float64(dst[i])*da*(1-sa)) / outA
		dst[i] = uint8(math.Round(c))
	}
	dst[3] = uint8(math.Round(outA * 255))
}
