package vision

import "image"

// Contour is the ordered external boundary of one connected foreground
// region.
type Contour []image.Point

// moore holds the 8-neighbourhood in clockwise order (y grows downward).
var moore = [8]image.Point{
	{X: -1, Y: 0},  // W
	{X: -1, Y: -1}, // NW
	{X: 0, Y: -1},  // N
	{X: 1, Y: -1},  // NE
	{X: 1, Y: 0},   // E
	{X: 1, Y: 1},   // SE
	{X: 0, Y: 1},   // S
	{X: -1, Y: 1},  // SW
}

// ContourDetect thresholds the frame difference like FrameDiff, then
// extracts the external contours of connected regions and reports change as
// total contour area over frame area. This is an area metric, not a pixel
// count, and can diverge from the pixel-count methods on sparse, large-area
// changes.
func ContourDetect(baseline, current *image.RGBA, cutoff uint8) (float64, []Contour, error) {
	if err := CheckPair(baseline, current); err != nil {
		return 0, nil, err
	}
	mask := Threshold(absDiffGray(baseline, current), cutoff)
	contours := FindContours(mask)

	total := float64(mask.Bounds().Dx() * mask.Bounds().Dy())
	if total == 0 {
		return 0, contours, nil
	}
	area := 0.0
	for _, c := range contours {
		area += Area(c)
	}
	return area / total * 100, contours, nil
}

// FindContours traces the external boundary of every 8-connected foreground
// region in a binary mask, scanning row-major so each region is discovered
// at its topmost-leftmost pixel.
func FindContours(mask *image.Gray) []Contour {
	w, h := mask.Bounds().Dx(), mask.Bounds().Dy()
	visited := make([]bool, w*h)
	fg := func(x, y int) bool {
		return x >= 0 && y >= 0 && x < w && y < h && mask.Pix[y*mask.Stride+x] != 0
	}

	var contours []Contour
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !fg(x, y) || visited[y*w+x] {
				continue
			}
			contours = append(contours, traceBoundary(image.Pt(x, y), fg))
			floodFill(image.Pt(x, y), fg, visited, w)
		}
	}
	return contours
}

// traceBoundary walks the external boundary from the start pixel using
// Moore-neighbour tracing. The start pixel is the first of its region in
// scan order, so the cell to its west is guaranteed background.
func traceBoundary(start image.Point, fg func(x, y int) bool) Contour {
	contour := Contour{start}
	prev := start.Add(moore[0]) // background west neighbour
	p := start

	// The boundary of a region on a w*h grid cannot exceed the pixel
	// count; cap iterations defensively against tracing bugs.
	for iter := 0; iter < 1<<22; iter++ {
		from := dirIndex(p, prev)
		advanced := false
		for i := 1; i <= 8; i++ {
			d := (from + i) % 8
			q := p.Add(moore[d])
			if fg(q.X, q.Y) {
				prev = p.Add(moore[(from+i-1)%8])
				p = q
				advanced = true
				break
			}
		}
		if !advanced {
			// Isolated pixel.
			break
		}
		if p == start {
			break
		}
		contour = append(contour, p)
	}
	return contour
}

func dirIndex(from, to image.Point) int {
	d := to.Sub(from)
	for i, m := range moore {
		if m == d {
			return i
		}
	}
	return 0
}

// floodFill marks every pixel of the 8-connected region containing start.
func floodFill(start image.Point, fg func(x, y int) bool, visited []bool, w int) {
	stack := []image.Point{start}
	visited[start.Y*w+start.X] = true
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, m := range moore {
			q := p.Add(m)
			if fg(q.X, q.Y) && !visited[q.Y*w+q.X] {
				visited[q.Y*w+q.X] = true
				stack = append(stack, q)
			}
		}
	}
}

// Area computes the polygon area enclosed by a contour via the shoelace
// formula. Enclosed holes count toward the area; degenerate contours of one
// or two points have zero area.
func Area(c Contour) float64 {
	if len(c) < 3 {
		return 0
	}
	sum := 0
	for i, p := range c {
		q := c[(i+1)%len(c)]
		sum += p.X*q.Y - q.X*p.Y
	}
	if sum < 0 {
		sum = -sum
	}
	return float64(sum) / 2
}
