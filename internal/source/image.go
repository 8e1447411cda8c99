package source

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"

	"github.com/ivlev/scene2video/internal/system"
)

// ImageSource treats each image of a folder, in name order, as a page
type ImageSource struct {
	paths []string
}

// NewImageSource accepts a single image or a folder of images
func NewImageSource(path string) (*ImageSource, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return &ImageSource{paths: []string{path}}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() && system.HasExtension(e.Name(), system.ImageExtensions) {
			paths = append(paths, filepath.Join(path, e.Name()))
		}
	}
	sort.Strings(paths)
	return &ImageSource{paths: paths}, nil
}

func (s *ImageSource) PageCount() int {
	return len(s.paths)
}

// Path returns the file backing a page
func (s *ImageSource) Path(index int) string {
	return s.paths[index]
}

func (s *ImageSource) GetPageDimensions(index int) (float64, float64, error) {
	if index < 0 || index >= len(s.paths) {
		return 0, 0, fmt.Errorf("page %d out of range", index)
	}
	f, err := os.Open(s.paths[index])
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return float64(cfg.Width), float64(cfg.Height), nil
}

// RenderPage decodes the image; dpi is ignored
func (s *ImageSource) RenderPage(index int, dpi int) (image.Image, error) {
	if index < 0 || index >= len(s.paths) {
		return nil, fmt.Errorf("page %d out of range", index)
	}
	f, err := os.Open(s.paths[index])
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(s.paths[index]), err)
	}
	return img, nil
}

// PageText is always empty for images
func (s *ImageSource) PageText(index int) (string, error) {
	return "", nil
}

func (s *ImageSource) Close() error {
	return nil
}
