package video

import "image"

// bgraToImage interprets payload as tightly-packed BGRA32 rows of the
// given geometry and returns an image.RGBA suitable for image/jpeg,
// swapping the B/R channels order BGRA payloads carry.
func bgraToImage(payload []byte, g Geometry) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, g.Width, g.Height))
	stride := g.RowStride
	if stride <= 0 {
		stride = g.Width * 4
	}
	for y := 0; y < g.Height; y++ {
		rowStart := y * stride
		for x := 0; x < g.Width; x++ {
			i := rowStart + x*4
			if i+3 >= len(payload) {
				break
			}
			b, g8, r, a := payload[i], payload[i+1], payload[i+2], payload[i+3]
			o := img.PixOffset(x, y)
			img.Pix[o] = r
			img.Pix[o+1] = g8
			img.Pix[o+2] = b
			img.Pix[o+3] = a
		}
	}
	return img
}
