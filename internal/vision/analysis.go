// File: internal/vision/analysis.go
package vision

import (
	"image"
	"sort"

	"github.com/disintegration/imaging"
)

const (
	// Width of the copy the heuristics run on.
	analysisWidth = 320
	darkThreshold = 100.0
	// Mean of the binarised edge map above which the screen counts as busy.
	activityThreshold = 10.0
	// Laplacian response that counts as an edge.
	edgeResponse = 40
	minWindowArea = 10000
	maxWindows    = 10
)

// laplacian is the 4-neighbour Laplacian kernel.
var laplacian = [9]float64{
	0, 1, 0,
	1, -4, 1,
	0, 1, 0,
}

// Analysis holds the pixel heuristics for one frame.
type Analysis struct {
	Brightness  float64
	EdgeDensity float64
	Windows     []image.Rectangle
}

// IsDark reports whether the mean grey level is below 100.
func (a Analysis) IsDark() bool { return a.Brightness < darkThreshold }

// HasActivity reports whether the edge density exceeds 10.
func (a Analysis) HasActivity() bool { return a.EdgeDensity > activityThreshold }

// Analyze computes brightness, edge density and window candidates on a
// downscaled greyscale copy. Window rectangles are in full-resolution pixels.
func Analyze(img image.Image) Analysis {
	b := img.Bounds()
	if b.Empty() {
		return Analysis{}
	}

	small := img
	scale := 1.0
	if b.Dx() > analysisWidth {
		small = imaging.Resize(img, analysisWidth, 0, imaging.Box)
		scale = float64(b.Dx()) / float64(small.Bounds().Dx())
	}
	grey := imaging.Grayscale(small)
	edges := imaging.Convolve3x3(grey, laplacian, &imaging.ConvolveOptions{Abs: true})

	w, h := grey.Bounds().Dx(), grey.Bounds().Dy()
	edgeMap := make([]bool, w*h)
	var greySum, edgeSum float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*grey.Stride + x*4
			greySum += float64(grey.Pix[i])
			if edges.Pix[y*edges.Stride+x*4] > edgeResponse {
				edgeMap[y*w+x] = true
				edgeSum += 255
			}
		}
	}
	n := float64(w * h)

	return Analysis{
		Brightness:  greySum / n,
		EdgeDensity: edgeSum / n,
		Windows:     findWindows(edgeMap, w, h, scale, b.Min),
	}
}

// findWindows labels 8-connected edge components and keeps those whose
// bounding box, scaled back to full resolution, exceeds minWindowArea.
// The largest maxWindows are returned, largest first.
func findWindows(edgeMap []bool, w, h int, scale float64, origin image.Point) []image.Rectangle {
	seen := make([]bool, len(edgeMap))
	var rects []image.Rectangle
	stack := make([]int, 0, 256)

	for start := range edgeMap {
		if !edgeMap[start] || seen[start] {
			continue
		}
		seen[start] = true
		stack = append(stack[:0], start)
		minX, minY, maxX, maxY := w, h, -1, -1

		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := idx%w, idx/w
			minX, maxX = min(minX, x), max(maxX, x)
			minY, maxY = min(minY, y), max(maxY, y)

			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					n := ny*w + nx
					if edgeMap[n] && !seen[n] {
						seen[n] = true
						stack = append(stack, n)
					}
				}
			}
		}

		r := image.Rect(
			int(float64(minX)*scale), int(float64(minY)*scale),
			int(float64(maxX+1)*scale), int(float64(maxY+1)*scale),
		).Add(origin)
		if r.Dx()*r.Dy() > minWindowArea {
			rects = append(rects, r)
		}
	}

	sort.SliceStable(rects, func(i, j int) bool {
		return rects[i].Dx()*rects[i].Dy() > rects[j].Dx()*rects[j].Dy()
	})
	if len(rects) > maxWindows {
		rects = rects[:maxWindows]
	}
	return rects
}
