// Package analyzer inspects imported page rasters: it finds content regions
// and tells blank pages apart so they never become scenes.
package analyzer

import "image"

// Block is a detected content region, in source image coordinates
type Block struct {
	Rect       image.Rectangle
	Confidence float64 // 0.0-1.0
}

// Detector finds the content regions of a page
type Detector interface {
	Detect(img image.Image) ([]Block, error)
}

// Profile summarizes a page for the importer
type Profile struct {
	EdgeDensity float64 // Share of edge pixels after downsampling
	Blocks      []Block
	Blank       bool
}

// Focus returns the largest block, which movement transitions zoom towards.
// ok is false when the page has no blocks.
func (p Profile) Focus() (Block, bool) {
	best, found := Block{}, false
	for _, b := range p.Blocks {
		if !found || area(b.Rect) > area(best.Rect) {
			best, found = b, true
		}
	}
	return best, found
}

// Dominant reports whether a single block covers at least share of the page
func (p Profile) Dominant(bounds image.Rectangle, share float64) bool {
	b, ok := p.Focus()
	if !ok || area(bounds) == 0 {
		return false
	}
	return float64(area(b.Rect))/float64(area(bounds)) >= share
}

func area(r image.Rectangle) int {
	return r.Dx() * r.Dy()
}
