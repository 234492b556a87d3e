// Package imgproc prepares camera frames for the policy server.
package imgproc

import (
	"fmt"
	"image"
	"image/draw"

	xdraw "golang.org/x/image/draw"
)

// ResizeWithPad scales img to fit a size×size square without distorting
// it, then centres it on a black canvas.
func ResizeWithPad(img image.Image, size int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(dst, dst.Bounds(), image.Black, image.Point{}, draw.Src)

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return dst
	}

	ratio := max(float64(w)/float64(size), float64(h)/float64(size))
	rw := int(float64(w) / ratio)
	rh := int(float64(h) / ratio)
	if rw < 1 {
		rw = 1
	}
	if rh < 1 {
		rh = 1
	}

	padW := (size - rw) / 2
	padH := (size - rh) / 2
	target := image.Rect(padW, padH, padW+rw, padH+rh)
	xdraw.BiLinear.Scale(dst, target, img, b, xdraw.Src, nil)
	return dst
}

// PackRGB flattens img into height×width×3 bytes, dropping alpha.
func PackRGB(img *image.RGBA) []byte {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]byte, 0, w*h*3)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			out = append(out, row[x*4], row[x*4+1], row[x*4+2])
		}
	}
	return out
}

// UnpackRGB is the inverse of PackRGB.
func UnpackRGB(pix []byte, width, height int) (*image.RGBA, error) {
	if len(pix) != width*height*3 {
		return nil, fmt.Errorf("imgproc: got %d bytes for %dx%d RGB image", len(pix), width, height)
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i, j := 0, 0; i < len(pix); i, j = i+3, j+4 {
		img.Pix[j] = pix[i]
		img.Pix[j+1] = pix[i+1]
		img.Pix[j+2] = pix[i+2]
		img.Pix[j+3] = 0xff
	}
	return img, nil
}
