package imaging

import "image"

// Preprocessing parameters. Tuned for photographed menus: a light blur to
// knock down sensor noise, a local threshold that survives uneven lighting,
// and a small close to heal broken glyph strokes.
const (
	adaptiveWindow = 11
	adaptiveOffset = 2
	morphKernel    = 3
)

// Preprocess runs the standard cleanup chain over img and returns a binary
// grayscale image ready for OCR: grayscale, Gaussian blur, adaptive mean
// threshold, morphological close.
func Preprocess(img image.Image) *image.Gray {
	gray := flattenToGray(img)
	blurred := GaussianBlur(gray)
	bin := AdaptiveThreshold(blurred, adaptiveWindow, adaptiveOffset)
	return MorphClose(bin, morphKernel)
}

// Grayscale converts img to 8-bit grayscale.
func Grayscale(img image.Image) *image.Gray {
	return flattenToGray(img)
}

// GaussianBlur applies a separable 5-tap Gaussian (sigma ~= 1) to src.
func GaussianBlur(src *image.Gray) *image.Gray {
	w := src.Bounds().Dx()
	h := src.Bounds().Dy()
	if w == 0 || h == 0 {
		return src
	}

	// Binomial kernel 1-4-6-4-1, sum 16.
	kernel := [5]uint32{1, 4, 6, 4, 1}

	tmp := image.NewGray(src.Bounds())
	dst := image.NewGray(src.Bounds())

	// Horizontal pass
	for y := 0; y < h; y++ {
		row := y * src.Stride
		for x := 0; x < w; x++ {
			var sum uint32
			for k := -2; k <= 2; k++ {
				xx := clampInt(x+k, 0, w-1)
				sum += kernel[k+2] * uint32(src.Pix[row+xx])
			}
			tmp.Pix[y*tmp.Stride+x] = uint8(sum / 16)
		}
	}

	// Vertical pass
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum uint32
			for k := -2; k <= 2; k++ {
				yy := clampInt(y+k, 0, h-1)
				sum += kernel[k+2] * uint32(tmp.Pix[yy*tmp.Stride+x])
			}
			dst.Pix[y*dst.Stride+x] = uint8(sum / 16)
		}
	}

	return dst
}

// AdaptiveThreshold binarizes src against the local mean of a window x window
// neighborhood: pixels brighter than mean-offset become white (background),
// the rest black (ink). An integral image keeps the window mean O(1).
func AdaptiveThreshold(src *image.Gray, window, offset int) *image.Gray {
	w := src.Bounds().Dx()
	h := src.Bounds().Dy()
	dst := image.NewGray(src.Bounds())
	if w == 0 || h == 0 {
		return dst
	}
	if window < 3 {
		window = 3
	}

	// integral[y][x] = sum of pixels in [0,y) x [0,x)
	integral := make([]uint64, (w+1)*(h+1))
	stride := w + 1
	for y := 0; y < h; y++ {
		var rowSum uint64
		for x := 0; x < w; x++ {
			rowSum += uint64(src.Pix[y*src.Stride+x])
			integral[(y+1)*stride+(x+1)] = integral[y*stride+(x+1)] + rowSum
		}
	}

	half := window / 2
	for y := 0; y < h; y++ {
		y0 := clampInt(y-half, 0, h-1)
		y1 := clampInt(y+half, 0, h-1)
		for x := 0; x < w; x++ {
			x0 := clampInt(x-half, 0, w-1)
			x1 := clampInt(x+half, 0, w-1)

			area := uint64((y1-y0+1) * (x1-x0+1))
			sum := integral[(y1+1)*stride+(x1+1)] -
				integral[y0*stride+(x1+1)] -
				integral[(y1+1)*stride+x0] +
				integral[y0*stride+x0]
			mean := sum / area

			v := uint64(src.Pix[y*src.Stride+x])
			if v+uint64(offset) > mean {
				dst.Pix[y*dst.Stride+x] = 255
			} else {
				dst.Pix[y*dst.Stride+x] = 0
			}
		}
	}

	return dst
}

// MorphClose performs dilation followed by erosion with a k x k kernel,
// closing small gaps inside the white background so stray speckles don't
// read as punctuation.
func MorphClose(src *image.Gray, k int) *image.Gray {
	if k < 3 {
		k = 3
	}
	return erode(dilate(src, k), k)
}

func dilate(src *image.Gray, k int) *image.Gray {
	return morph(src, k, func(best, v uint8) bool { return v > best })
}

func erode(src *image.Gray, k int) *image.Gray {
	return morph(src, k, func(best, v uint8) bool { return v < best })
}

func morph(src *image.Gray, k int, better func(best, v uint8) bool) *image.Gray {
	w := src.Bounds().Dx()
	h := src.Bounds().Dy()
	dst := image.NewGray(src.Bounds())
	half := k / 2

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			best := src.Pix[y*src.Stride+x]
			for dy := -half; dy <= half; dy++ {
				yy := clampInt(y+dy, 0, h-1)
				for dx := -half; dx <= half; dx++ {
					xx := clampInt(x+dx, 0, w-1)
					if v := src.Pix[yy*src.Stride+xx]; better(best, v) {
						best = v
					}
				}
			}
			dst.Pix[y*dst.Stride+x] = best
		}
	}

	return dst
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
