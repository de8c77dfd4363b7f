package vision

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"math"
	"testing"
)

func solidFrame(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

func withWhiteBlock(base *image.RGBA, r image.Rectangle) *image.RGBA {
	img := image.NewRGBA(base.Bounds())
	draw.Draw(img, img.Bounds(), base, image.Point{}, draw.Src)
	draw.Draw(img, r, &image.Uniform{C: color.RGBA{255, 255, 255, 255}}, image.Point{}, draw.Src)
	return img
}

var (
	black = color.RGBA{0, 0, 0, 255}
)

func TestIdenticalFramesReportZero(t *testing.T) {
	baseline := solidFrame(80, 60, black)
	current := solidFrame(80, 60, black)

	if pct, _, err := FrameDiff(baseline, current, DefaultDiffThreshold); err != nil || pct != 0 {
		t.Errorf("FrameDiff = %.2f%%, %v; want 0.00%%, nil", pct, err)
	}
	if pct, _, err := BackgroundSub(baseline, current, DefaultBackgroundThreshold); err != nil || pct != 0 {
		t.Errorf("BackgroundSub = %.2f%%, %v; want 0.00%%, nil", pct, err)
	}
	if pct, _, err := ContourDetect(baseline, current, DefaultDiffThreshold); err != nil || pct != 0 {
		t.Errorf("ContourDetect = %.2f%%, %v; want 0.00%%, nil", pct, err)
	}
	if pct, _, err := SSIM(baseline, current); err != nil || pct != 0 {
		t.Errorf("SSIM = %.2f%%, %v; want 0.00%%, nil", pct, err)
	}
}

func TestQuarterWhiteBlock(t *testing.T) {
	// 40x30 pure white block in an 80x60 black frame: 25% of pixels.
	baseline := solidFrame(80, 60, black)
	current := withWhiteBlock(baseline, image.Rect(10, 10, 50, 40))

	pct, _, err := FrameDiff(baseline, current, DefaultDiffThreshold)
	if err != nil {
		t.Fatalf("FrameDiff: %v", err)
	}
	if pct != 25 {
		t.Errorf("FrameDiff = %.4f%%, want exactly 25%%", pct)
	}

	pct, _, err = BackgroundSub(baseline, current, DefaultBackgroundThreshold)
	if err != nil {
		t.Fatalf("BackgroundSub: %v", err)
	}
	// The opening rounds the block's corners slightly.
	if math.Abs(pct-25) > 1.0 {
		t.Errorf("BackgroundSub = %.4f%%, want ~25%%", pct)
	}

	pct, contours, err := ContourDetect(baseline, current, DefaultDiffThreshold)
	if err != nil {
		t.Fatalf("ContourDetect: %v", err)
	}
	if len(contours) != 1 {
		t.Fatalf("found %d contours, want 1", len(contours))
	}
	// The polygon traced along boundary pixel centres encloses
	// (w-1)*(h-1) units: 39*29/4800 = 23.56%.
	if math.Abs(pct-23.56) > 0.1 {
		t.Errorf("ContourDetect = %.4f%%, want ~23.56%%", pct)
	}

	pct, _, err = SSIM(baseline, current)
	if err != nil {
		t.Fatalf("SSIM: %v", err)
	}
	if pct <= 0 {
		t.Errorf("SSIM = %.4f%%, want a nonzero dissimilarity", pct)
	}
	// SSIM flags a halo of window-width pixels around the block edge, so
	// the reported share sits above the raw pixel share.
	if pct < 15 || pct > 50 {
		t.Errorf("SSIM = %.4f%%, want roughly the block share", pct)
	}
}

func TestMissingBaselineFailsLoudly(t *testing.T) {
	current := solidFrame(80, 60, black)

	if _, _, err := FrameDiff(nil, current, DefaultDiffThreshold); !errors.Is(err, ErrNoBaseline) {
		t.Errorf("FrameDiff error = %v, want ErrNoBaseline", err)
	}
	if _, _, err := BackgroundSub(nil, current, DefaultBackgroundThreshold); !errors.Is(err, ErrNoBaseline) {
		t.Errorf("BackgroundSub error = %v, want ErrNoBaseline", err)
	}
	if _, _, err := ContourDetect(nil, current, DefaultDiffThreshold); !errors.Is(err, ErrNoBaseline) {
		t.Errorf("ContourDetect error = %v, want ErrNoBaseline", err)
	}
	if _, _, err := SSIM(nil, current); !errors.Is(err, ErrNoBaseline) {
		t.Errorf("SSIM error = %v, want ErrNoBaseline", err)
	}
}

func TestMissingCurrentFrameFailsLoudly(t *testing.T) {
	baseline := solidFrame(80, 60, black)

	if _, _, err := FrameDiff(baseline, nil, DefaultDiffThreshold); !errors.Is(err, ErrNoCurrentFrame) {
		t.Errorf("FrameDiff error = %v, want ErrNoCurrentFrame", err)
	}
	if _, _, err := SSIM(baseline, nil); !errors.Is(err, ErrNoCurrentFrame) {
		t.Errorf("SSIM error = %v, want ErrNoCurrentFrame", err)
	}
}

func TestDimensionMismatchFailsLoudly(t *testing.T) {
	baseline := solidFrame(80, 60, black)
	current := solidFrame(40, 60, black)

	if _, _, err := FrameDiff(baseline, current, DefaultDiffThreshold); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("FrameDiff error = %v, want ErrDimensionMismatch", err)
	}
	if _, _, err := SSIM(baseline, current); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("SSIM error = %v, want ErrDimensionMismatch", err)
	}
}

func TestThresholdIsStrict(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 3, 1))
	g.Pix[0] = 30
	g.Pix[1] = 31
	g.Pix[2] = 0

	out := Threshold(g, 30)
	want := []uint8{0, 255, 0}
	for i, v := range want {
		if out.Pix[i] != v {
			t.Errorf("pixel %d = %d, want %d", i, out.Pix[i], v)
		}
	}
}

func TestOpenRemovesSpecks(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 40, 40))
	// Isolated noise pixel.
	g.SetGray(5, 5, color.Gray{Y: 255})
	// A solid 10x10 region.
	for y := 20; y < 30; y++ {
		for x := 20; x < 30; x++ {
			g.SetGray(x, y, color.Gray{Y: 255})
		}
	}

	out := Open(g, ellipse5x5)
	if out.GrayAt(5, 5).Y != 0 {
		t.Error("opening did not remove the isolated pixel")
	}
	if out.GrayAt(25, 25).Y != 255 {
		t.Error("opening hollowed out the solid region")
	}
}

func TestOtsuDegenerateHistogram(t *testing.T) {
	var hist [256]int
	hist[255] = 4800
	if got := otsuThreshold(hist, 4800); got != 0 {
		t.Errorf("otsuThreshold(uniform) = %d, want 0", got)
	}
}

func TestOtsuBimodalHistogram(t *testing.T) {
	var hist [256]int
	hist[10] = 1000
	hist[240] = 1000
	got := otsuThreshold(hist, 2000)
	if got < 10 || got >= 240 {
		t.Errorf("otsuThreshold(bimodal) = %d, want a split between the modes", got)
	}
}

func TestFindContoursMultipleRegions(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 30, 30))
	for y := 2; y < 8; y++ {
		for x := 2; x < 8; x++ {
			g.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	for y := 15; y < 25; y++ {
		for x := 15; x < 25; x++ {
			g.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	// A single-pixel region has no enclosed area.
	g.SetGray(28, 2, color.Gray{Y: 255})

	contours := FindContours(g)
	if len(contours) != 3 {
		t.Fatalf("found %d contours, want 3", len(contours))
	}

	areas := make([]float64, len(contours))
	for i, c := range contours {
		areas[i] = Area(c)
	}
	wantAreas := map[float64]bool{25: false, 81: false, 0: false}
	for _, a := range areas {
		if _, ok := wantAreas[a]; !ok {
			t.Errorf("unexpected contour area %.1f", a)
		}
		wantAreas[a] = true
	}
	for a, seen := range wantAreas {
		if !seen {
			t.Errorf("missing contour with area %.1f", a)
		}
	}
}

func TestGrayscaleLuma(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.SetRGBA(0, 0, color.RGBA{255, 255, 255, 255})
	img.SetRGBA(1, 0, color.RGBA{255, 0, 0, 255})

	g := Grayscale(img)
	if g.GrayAt(0, 0).Y != 255 {
		t.Errorf("white luma = %d, want 255", g.GrayAt(0, 0).Y)
	}
	if got := g.GrayAt(1, 0).Y; got != 76 {
		t.Errorf("red luma = %d, want 76", got)
	}
}
