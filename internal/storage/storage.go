package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"mime"
	"strings"
	"time"
)

const carImagesPrefix = "cars"

var ErrForeignPath = errors.New("path does not belong to this store")

// ImageStore persists uploaded car images and hands back the path clients
// use to fetch them.
type ImageStore interface {
	Save(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, path string) error
	ListOlderThan(ctx context.Context, age time.Duration) ([]string, error)
}

// imageExtensions lists the accepted raster image types. SVG is left out
// since browsers run scripts embedded in it.
var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
	"image/avif": ".avif",
	"image/heic": ".heic",
}

// ImageExtension returns the file extension stored for an accepted image
// content type.
func ImageExtension(contentType string) (string, bool) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", false
	}
	ext, ok := imageExtensions[strings.ToLower(mediaType)]
	return ext, ok
}

// imageContentType is the inverse of ImageExtension.
func imageContentType(ext string) (string, bool) {
	for contentType, e := range imageExtensions {
		if e == ext {
			return contentType, true
		}
	}
	return "", false
}

// CarImageName builds car-<unix millis>-<random><ext> for an accepted image
// content type.
func CarImageName(contentType string, now time.Time) (string, bool) {
	ext, ok := ImageExtension(contentType)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("car-%d-%d%s", now.UnixMilli(), rand.Int63n(1_000_000_000), ext), true
}

// DeleteAll removes every path and returns the ones that could not be removed.
func DeleteAll(ctx context.Context, store ImageStore, paths []string) []error {
	var errs []error
	for _, p := range paths {
		if err := store.Delete(ctx, p); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
		}
	}
	return errs
}
