package upload

import (
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	// WebP uploads are decoded through image.Decode.
	_ "golang.org/x/image/webp"
)

// opaque is implemented by the image types of the standard library.
type opaque interface {
	Opaque() bool
}

// CompressImage re-encodes the image at path so its long edge is at most
// maxSize pixels (0 keeps the size). Opaque images are written as JPEG at
// quality, images with transparency as PNG. The original file is replaced
// and the path of the result, whose extension may differ, is returned.
func CompressImage(path string, maxSize, quality int) (string, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return "", errors.Wrapf(err, "failed to decode image %s", filepath.Base(path))
	}

	b := img.Bounds()
	if maxSize > 0 && (b.Dx() > maxSize || b.Dy() > maxSize) {
		img = imaging.Fit(img, maxSize, maxSize, imaging.Lanczos)
	}

	ext, format := ".jpg", imaging.JPEG
	if !isOpaque(img) {
		ext, format = ".png", imaging.PNG
	}
	dest := strings.TrimSuffix(path, filepath.Ext(path)) + ext

	tmp, err := os.CreateTemp(filepath.Dir(path), "compress_*"+ext)
	if err != nil {
		return "", errors.Wrap(err, "failed to create temp file")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	encodeErr := imaging.Encode(tmp, img, format, imaging.JPEGQuality(clampQuality(quality)))
	closeErr := tmp.Close()
	if encodeErr != nil {
		return "", errors.Wrap(encodeErr, "failed to encode image")
	}
	if closeErr != nil {
		return "", errors.Wrap(closeErr, "failed to write image")
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		return "", errors.Wrap(err, "failed to replace image")
	}
	if dest != path {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return "", errors.Wrap(err, "failed to remove original image")
		}
	}
	return dest, nil
}

func isOpaque(img image.Image) bool {
	if o, ok := img.(opaque); ok {
		return o.Opaque()
	}
	return true
}

func clampQuality(q int) int {
	return min(100, max(1, q))
}
