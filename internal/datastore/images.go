package datastore

import (
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"time"

	"github.com/babelia-vision/babelia-go/internal/errors"
)

// jpegQuality matches the archive agent's export quality for saved
// discoveries.
const jpegQuality = 95

// SaveImage writes a discovery image as a JPEG into dir, named after the
// save time and score, and returns the file path.
func SaveImage(img image.Image, dir string, score float64) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.New(err).
			Component("datastore").
			Category(errors.CategoryFileIO).
			Context("dir", dir).
			Build()
	}

	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("%s_score%.3f.jpg", timestamp, score)
	path := filepath.Join(dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return "", errors.New(err).
			Component("datastore").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}

	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		f.Close()
		os.Remove(path)
		return "", errors.New(err).
			Component("datastore").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}

	if err := f.Close(); err != nil {
		return "", errors.New(err).
			Component("datastore").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}

	return path, nil
}
