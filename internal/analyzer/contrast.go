package analyzer

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// AnalysisWidth is the width pages are downsampled to before edge detection
const AnalysisWidth = 320

// ContrastDetector finds regions by Sobel edge magnitude on a downsampled
// grayscale copy of the page.
type ContrastDetector struct {
	MinBlockArea  int     // Minimum block area in analysis pixels
	EdgeThreshold float64 // Gradient magnitude threshold
	BlankDensity  float64 // Pages with fewer edge pixels than this share are blank
}

// NewContrastDetector returns a detector tuned for slide decks
func NewContrastDetector() *ContrastDetector {
	return &ContrastDetector{
		MinBlockArea:  120,
		EdgeThreshold: 40.0,
		BlankDensity:  0.002,
	}
}

// Detect implements Detector
func (d *ContrastDetector) Detect(img image.Image) ([]Block, error) {
	p, err := d.Analyze(img)
	if err != nil {
		return nil, err
	}
	return p.Blocks, nil
}

// Analyze profiles a page
func (d *ContrastDetector) Analyze(img image.Image) (Profile, error) {
	src := img.Bounds()
	if src.Empty() {
		return Profile{Blank: true}, nil
	}

	g, scale := downsample(img, AnalysisWidth)
	edges, count := g.sobel(d.EdgeThreshold)
	density := float64(count) / float64(g.w*g.h)

	p := Profile{EdgeDensity: density, Blank: density < d.BlankDensity}
	if p.Blank {
		return p, nil
	}

	edges = edges.dilate(2, 2)
	for _, r := range edges.components() {
		if r.Dx()*r.Dy() < d.MinBlockArea {
			continue
		}
		p.Blocks = append(p.Blocks, Block{
			Rect:       toSource(r, scale, src),
			Confidence: math.Min(1, 0.5+float64(r.Dx()*r.Dy())/float64(g.w*g.h)),
		})
	}
	return p, nil
}

// plane is a flat 8-bit luminance buffer
type plane struct {
	w, h int
	pix  []uint8
}

func newPlane(w, h int) *plane {
	return &plane{w: w, h: h, pix: make([]uint8, w*h)}
}

func (p *plane) at(x, y int) uint8 { return p.pix[y*p.w+x] }

// downsample scales img to width (never up) and converts it to luminance
func downsample(img image.Image, width int) (*plane, float64) {
	b := img.Bounds()
	scale := 1.0
	w, h := b.Dx(), b.Dy()
	if w > width {
		scale = float64(width) / float64(w)
		w = width
		h = int(math.Max(1, math.Round(float64(h)*scale)))
	}

	gray := image.NewGray(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(gray, gray.Bounds(), img, b, draw.Src, nil)

	p := newPlane(w, h)
	for y := 0; y < h; y++ {
		copy(p.pix[y*w:(y+1)*w], gray.Pix[y*gray.Stride:y*gray.Stride+w])
	}
	return p, scale
}

// sobel marks pixels whose gradient magnitude exceeds threshold
func (p *plane) sobel(threshold float64) (*plane, int) {
	out := newPlane(p.w, p.h)
	count := 0
	for y := 1; y < p.h-1; y++ {
		for x := 1; x < p.w-1; x++ {
			tl, tc, tr := int(p.at(x-1, y-1)), int(p.at(x, y-1)), int(p.at(x+1, y-1))
			ml, mr := int(p.at(x-1, y)), int(p.at(x+1, y))
			bl, bc, br := int(p.at(x-1, y+1)), int(p.at(x, y+1)), int(p.at(x+1, y+1))

			gx := float64((tr + 2*mr + br) - (tl + 2*ml + bl))
			gy := float64((bl + 2*bc + br) - (tl + 2*tc + tr))
			if math.Hypot(gx, gy) > threshold {
				out.pix[y*p.w+x] = 255
				count++
			}
		}
	}
	return out, count
}

// dilate grows marked pixels by radius, iterations times
func (p *plane) dilate(radius, iterations int) *plane {
	cur := p
	for it := 0; it < iterations; it++ {
		next := newPlane(cur.w, cur.h)
		for y := 0; y < cur.h; y++ {
			for x := 0; x < cur.w; x++ {
				if cur.at(x, y) == 0 {
					continue
				}
				for dy := -radius; dy <= radius; dy++ {
					for dx := -radius; dx <= radius; dx++ {
						nx, ny := x+dx, y+dy
						if nx >= 0 && ny >= 0 && nx < cur.w && ny < cur.h {
							next.pix[ny*cur.w+nx] = 255
						}
					}
				}
			}
		}
		cur = next
	}
	return cur
}

// components returns the bounding boxes of 4-connected marked regions
func (p *plane) components() []image.Rectangle {
	seen := make([]bool, len(p.pix))
	var rects []image.Rectangle
	var stack []int

	for start := range p.pix {
		if p.pix[start] == 0 || seen[start] {
			continue
		}
		r := image.Rectangle{Min: image.Pt(p.w, p.h), Max: image.Pt(-1, -1)}
		stack = append(stack[:0], start)
		seen[start] = true

		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := i%p.w, i/p.w
			r.Min.X, r.Min.Y = min(r.Min.X, x), min(r.Min.Y, y)
			r.Max.X, r.Max.Y = max(r.Max.X, x+1), max(r.Max.Y, y+1)

			for _, n := range [4]int{i - 1, i + 1, i - p.w, i + p.w} {
				if n < 0 || n >= len(p.pix) || seen[n] || p.pix[n] == 0 {
					continue
				}
				// No wrapping across row ends
				if (n == i-1 && x == 0) || (n == i+1 && x == p.w-1) {
					continue
				}
				seen[n] = true
				stack = append(stack, n)
			}
		}
		rects = append(rects, r)
	}
	return rects
}

func toSource(r image.Rectangle, scale float64, src image.Rectangle) image.Rectangle {
	inv := 1 / scale
	out := image.Rect(
		src.Min.X+int(float64(r.Min.X)*inv),
		src.Min.Y+int(float64(r.Min.Y)*inv),
		src.Min.X+int(math.Ceil(float64(r.Max.X)*inv)),
		src.Min.Y+int(math.Ceil(float64(r.Max.Y)*inv)),
	)
	return out.Intersect(src)
}
