package system

import (
	"image"
	"sync"
)

// ImagePool recycles RGBA buffers by size. Deck pages usually share one
// size, so the importer reuses a single buffer per worker.
type ImagePool struct {
	mu    sync.Mutex
	pools map[image.Point]*sync.Pool
}

// NewImagePool creates an empty pool
func NewImagePool() *ImagePool {
	return &ImagePool{pools: make(map[image.Point]*sync.Pool)}
}

// Get returns a buffer covering rect. Its contents are undefined.
func (p *ImagePool) Get(rect image.Rectangle) *image.RGBA {
	img := p.pool(rect.Size()).Get().(*image.RGBA)
	img.Rect = rect
	return img
}

// Put hands a buffer back for reuse
func (p *ImagePool) Put(img *image.RGBA) {
	if img == nil {
		return
	}
	p.pool(img.Rect.Size()).Put(img)
}

func (p *ImagePool) pool(size image.Point) *sync.Pool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sp, ok := p.pools[size]; ok {
		return sp
	}
	sp := &sync.Pool{New: func() interface{} {
		return image.NewRGBA(image.Rectangle{Max: size})
	}}
	p.pools[size] = sp
	return sp
}
