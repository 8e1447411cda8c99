// Package source reads deck pages for import: PDF documents through MuPDF or
// a folder of images.
package source

import (
	"fmt"
	"image"
	"os"
	"strings"

	"github.com/gen2brain/go-fitz"

	"github.com/ivlev/scene2video/internal/system"
)

// Source is a paged visual input
type Source interface {
	PageCount() int
	GetPageDimensions(index int) (width, height float64, err error)
	RenderPage(index int, dpi int) (image.Image, error)
	// PageText returns the text layer of a page, empty when there is none
	PageText(index int) (string, error)
	Close() error
}

// Open picks a PDF or image source by path
func Open(path string) (Source, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() && system.HasExtension(path, system.DeckExtensions) {
		return NewFitzPDFSource(path)
	}
	return NewImageSource(path)
}

// FitzPDFSource renders PDF pages with go-fitz
type FitzPDFSource struct {
	doc  *fitz.Document
	path string
}

// NewFitzPDFSource opens a PDF document
func NewFitzPDFSource(path string) (*FitzPDFSource, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	return &FitzPDFSource{doc: doc, path: path}, nil
}

func (f *FitzPDFSource) PageCount() int {
	return f.doc.NumPage()
}

func (f *FitzPDFSource) GetPageDimensions(index int) (float64, float64, error) {
	rect, err := f.doc.Bound(index)
	if err != nil {
		return 0, 0, err
	}
	return float64(rect.Dx()), float64(rect.Dy()), nil
}

// RenderPage opens its own document handle: MuPDF contexts are not safe for
// concurrent rendering.
func (f *FitzPDFSource) RenderPage(index int, dpi int) (image.Image, error) {
	doc, err := fitz.New(f.path)
	if err != nil {
		return nil, err
	}
	defer doc.Close()
	return doc.ImageDPI(index, float64(dpi))
}

func (f *FitzPDFSource) PageText(index int) (string, error) {
	doc, err := fitz.New(f.path)
	if err != nil {
		return "", err
	}
	defer doc.Close()
	text, err := doc.Text(index)
	if err != nil {
		return "", err
	}
	return strings.Join(strings.Fields(text), " "), nil
}

func (f *FitzPDFSource) Close() error {
	return f.doc.Close()
}
