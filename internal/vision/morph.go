package vision

import "image"

// kernel is a binary structuring element with its anchor at the center.
type kernel struct {
	size    int // odd
	offsets []image.Point
}

// ellipse5x5 is the 5x5 elliptical structuring element: full 5-wide rows in
// the middle three lines, a single center pixel on the top and bottom lines.
var ellipse5x5 = buildEllipse5x5()

func buildEllipse5x5() kernel {
	var offsets []image.Point
	for dy := -2; dy <= 2; dy++ {
		for dx := -2; dx <= 2; dx++ {
			if dy == -2 || dy == 2 {
				if dx != 0 {
					continue
				}
			}
			offsets = append(offsets, image.Pt(dx, dy))
		}
	}
	return kernel{size: 5, offsets: offsets}
}

// Erode keeps a foreground pixel only when every kernel-covered neighbour is
// foreground. Neighbours outside the frame do not constrain the result.
func Erode(g *image.Gray, k kernel) *image.Gray {
	w, h := g.Bounds().Dx(), g.Bounds().Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if g.Pix[y*g.Stride+x] == 0 {
				continue
			}
			keep := true
			for _, off := range k.offsets {
				nx, ny := x+off.X, y+off.Y
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				if g.Pix[ny*g.Stride+nx] == 0 {
					keep = false
					break
				}
			}
			if keep {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out
}

// Dilate marks a pixel foreground when any kernel-covered neighbour is
// foreground. Neighbours outside the frame count as background.
func Dilate(g *image.Gray, k kernel) *image.Gray {
	w, h := g.Bounds().Dx(), g.Bounds().Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			hit := false
			for _, off := range k.offsets {
				nx, ny := x+off.X, y+off.Y
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				if g.Pix[ny*g.Stride+nx] != 0 {
					hit = true
					break
				}
			}
			if hit {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out
}

// Open performs erosion followed by dilation, removing specks smaller than
// the structuring element while mostly preserving larger regions.
func Open(g *image.Gray, k kernel) *image.Gray {
	return Dilate(Erode(g, k), k)
}
