package services

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"net/http"
	"path"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// DefaultMaxImagePixels caps width*height when no limit is configured.
const DefaultMaxImagePixels = 50_000_000

// HEIF-family major brands; phones upload these and no decoder is linked.
var isoImageBrands = map[string]string{
	"heic": "heic", "heix": "heic", "heim": "heic", "heis": "heic",
	"mif1": "heif", "msf1": "heif",
	"avif": "avif", "avis": "avif",
}

// sniffImage identifies data from its header. Pixels are never decoded.
// Formats with a registered decoder must declare at most maxPixels; other
// payloads pass when they sniff as an image. The returned format is empty
// when only the content type is known.
func sniffImage(data []byte, maxPixels int64) (string, error) {
	if len(data) == 0 {
		return "", ErrInvalidImage
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	switch {
	case err == nil:
		if cfg.Width <= 0 || cfg.Height <= 0 {
			return "", fmt.Errorf("%w: %s declares no pixels", ErrInvalidImage, format)
		}
		if px := int64(cfg.Width) * int64(cfg.Height); px > maxPixels {
			return "", fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrInvalidImage, cfg.Width, cfg.Height, maxPixels)
		}
		return format, nil
	case !errors.Is(err, image.ErrFormat):
		return "", fmt.Errorf("%w: %s", ErrInvalidImage, err)
	}

	if strings.HasPrefix(http.DetectContentType(data), "image/") {
		return "", nil
	}
	if len(data) >= 12 && string(data[4:8]) == "ftyp" {
		if f, ok := isoImageBrands[string(data[8:12])]; ok {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrInvalidImage, err)
}

// uploadName gives filename the extension of format unless it already
// carries an image extension.
func uploadName(filename, format string) string {
	if format == "" {
		return filename
	}
	if _, err := imaging.FormatFromFilename(filename); err == nil {
		return filename
	}
	ext := path.Ext(filename)
	if strings.EqualFold(strings.TrimPrefix(ext, "."), format) {
		return filename
	}
	base := strings.TrimSuffix(filename, ext)
	if base == "" {
		base = "image"
	}
	return base + "." + format
}
