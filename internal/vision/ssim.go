package vision

import "image"

// Structural similarity parameters: 7x7 uniform windows over 8-bit data with
// the standard stabilisation constants.
const (
	ssimWindow = 7
	ssimK1     = 0.01
	ssimK2     = 0.03
	ssimRange  = 255.0
)

// SSIM computes a per-pixel structural similarity map between the grayscale
// baseline and current frames, scales it to an intensity image, applies an
// automatically chosen (Otsu) inverse threshold, and reports the share of
// pixels flagged as structurally dissimilar.
//
// Identical frames produce a uniform similarity map; the degenerate Otsu
// threshold then flags nothing, so no change reports 0%.
func SSIM(baseline, current *image.RGBA) (float64, *image.Gray, error) {
	if err := CheckPair(baseline, current); err != nil {
		return 0, nil, err
	}

	x := toFloat(Grayscale(baseline))
	y := toFloat(Grayscale(current))
	w := baseline.Bounds().Dx()
	h := baseline.Bounds().Dy()

	scaled := ssimMap(x, y, w, h)

	var hist [256]int
	for _, v := range scaled.Pix {
		hist[v]++
	}
	t := otsuThreshold(hist, w*h)

	// Inverse threshold: low similarity (<= t) means structural change.
	mask := image.NewGray(image.Rect(0, 0, w, h))
	for i, v := range scaled.Pix {
		if v <= t {
			mask.Pix[i] = 255
		}
	}
	return percentNonZero(mask), mask, nil
}

func toFloat(g *image.Gray) []float64 {
	out := make([]float64, len(g.Pix))
	for i, v := range g.Pix {
		out[i] = float64(v)
	}
	return out
}

// ssimMap evaluates the SSIM formula per pixel using uniform window
// statistics and returns the similarity scaled onto 0..255.
func ssimMap(x, y []float64, w, h int) *image.Gray {
	ux := uniformFilter(x, w, h)
	uy := uniformFilter(y, w, h)
	uxx := uniformFilter(mul(x, x), w, h)
	uyy := uniformFilter(mul(y, y), w, h)
	uxy := uniformFilter(mul(x, y), w, h)

	// Unbiased sample statistics over the window.
	n := float64(ssimWindow * ssimWindow)
	covNorm := n / (n - 1)

	c1 := (ssimK1 * ssimRange) * (ssimK1 * ssimRange)
	c2 := (ssimK2 * ssimRange) * (ssimK2 * ssimRange)

	out := image.NewGray(image.Rect(0, 0, w, h))
	for i := range ux {
		vx := covNorm * (uxx[i] - ux[i]*ux[i])
		vy := covNorm * (uyy[i] - uy[i]*uy[i])
		vxy := covNorm * (uxy[i] - ux[i]*uy[i])

		s := ((2*ux[i]*uy[i] + c1) * (2*vxy + c2)) /
			((ux[i]*ux[i] + uy[i]*uy[i] + c1) * (vx + vy + c2))

		v := s * 255
		if v < 0 {
			v = 0
		}
		if v > 255 {
			v = 255
		}
		out.Pix[i] = uint8(v + 0.5)
	}
	return out
}

func mul(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] * b[i]
	}
	return out
}

// uniformFilter computes the mean over a centred ssimWindow square for every
// pixel, replicating edge values outside the frame. A summed-area table over
// the padded plane keeps it linear in pixel count.
func uniformFilter(src []float64, w, h int) []float64 {
	const r = ssimWindow / 2
	pw, ph := w+2*r, h+2*r

	// Padded plane with edge replication.
	padded := make([]float64, pw*ph)
	for py := 0; py < ph; py++ {
		sy := clamp(py-r, 0, h-1)
		for px := 0; px < pw; px++ {
			sx := clamp(px-r, 0, w-1)
			padded[py*pw+px] = src[sy*w+sx]
		}
	}

	// Summed-area table, one row/column larger than the padded plane.
	sw := pw + 1
	sat := make([]float64, sw*(ph+1))
	for py := 0; py < ph; py++ {
		rowSum := 0.0
		for px := 0; px < pw; px++ {
			rowSum += padded[py*pw+px]
			sat[(py+1)*sw+px+1] = sat[py*sw+px+1] + rowSum
		}
	}

	n := float64(ssimWindow * ssimWindow)
	out := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// Window top-left in padded coordinates.
			x0, y0 := x, y
			x1, y1 := x+ssimWindow, y+ssimWindow
			sum := sat[y1*sw+x1] - sat[y0*sw+x1] - sat[y1*sw+x0] + sat[y0*sw+x0]
			out[y*w+x] = sum / n
		}
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// otsuThreshold picks the threshold maximising between-class variance over
// the histogram. A degenerate (single-valued) histogram yields 0, so a
// uniform image never gets flagged by the inverse threshold.
func otsuThreshold(hist [256]int, total int) uint8 {
	sum := 0.0
	for i, c := range hist {
		sum += float64(i) * float64(c)
	}

	sumB := 0.0
	wB := 0
	maxVar := 0.0
	threshold := 0

	for t := 0; t < 256; t++ {
		wB += hist[t]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t) * float64(hist[t])
		mB := sumB / float64(wB)
		mF := (sum - sumB) / float64(wF)
		between := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if between > maxVar {
			maxVar = between
			threshold = t
		}
	}
	return uint8(threshold)
}
