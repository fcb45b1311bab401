package middleware

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"carrental/internal/metrics"
	"carrental/internal/storage"

	"github.com/rs/zerolog"
)

const (
	ImagesField     = "images"
	multipartMemory = 8 << 20
)

type UploadLimits struct {
	MaxFileSize int64
	MaxFiles    int
}

// CarImageUpload stores the files of the "images" multipart field and puts
// their paths in the request context. When it rejects a request, nothing it
// stored is left behind.
func CarImageUpload(store storage.ImageStore, limits UploadLimits, m *metrics.Metrics, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
				next.ServeHTTP(w, r)
				return
			}

			// Room for every allowed file plus the text fields.
			maxBody := limits.MaxFileSize*int64(limits.MaxFiles) + multipartMemory
			r.Body = http.MaxBytesReader(w, r.Body, maxBody)
			if err := r.ParseMultipartForm(multipartMemory); err != nil {
				var maxBytesErr *http.MaxBytesError
				if errors.As(err, &maxBytesErr) {
					respondWithError(w, http.StatusBadRequest, "FILE_TOO_LARGE", fmt.Sprintf("File too large. Maximum size is %dMB.", limits.MaxFileSize>>20))
					return
				}
				respondWithError(w, http.StatusBadRequest, "INVALID_MULTIPART", "Malformed multipart form")
				return
			}
			defer r.MultipartForm.RemoveAll()

			files := r.MultipartForm.File[ImagesField]
			if len(files) > limits.MaxFiles {
				respondWithError(w, http.StatusBadRequest, "TOO_MANY_FILES", fmt.Sprintf("Too many files. Maximum is %d images.", limits.MaxFiles))
				return
			}
			for _, fh := range files {
				if !isImage(fh) {
					respondWithError(w, http.StatusBadRequest, "INVALID_FILE_TYPE", "Only image files are allowed")
					return
				}
				if fh.Size > limits.MaxFileSize {
					respondWithError(w, http.StatusBadRequest, "FILE_TOO_LARGE", fmt.Sprintf("File too large. Maximum size is %dMB.", limits.MaxFileSize>>20))
					return
				}
			}

			paths := make([]string, 0, len(files))
			for _, fh := range files {
				path, err := saveImage(r.Context(), store, fh)
				if err != nil {
					logger.Error().Err(err).Str("file", fh.Filename).Msg("Error storing uploaded image")
					for _, delErr := range storage.DeleteAll(context.WithoutCancel(r.Context()), store, paths) {
						logger.Error().Err(delErr).Msg("Failed to delete partially uploaded image")
					}
					respondWithError(w, http.StatusInternalServerError, "UPLOAD_FAILED", "Failed to store uploaded images")
					return
				}
				paths = append(paths, path)
			}
			m.ImagesUploadedTotal.Add(float64(len(paths)))

			ctx := context.WithValue(r.Context(), ImagesKey, paths)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func isImage(fh *multipart.FileHeader) bool {
	_, ok := storage.ImageExtension(fh.Header.Get("Content-Type"))
	return ok
}

func saveImage(ctx context.Context, store storage.ImageStore, fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	contentType := fh.Header.Get("Content-Type")
	name, ok := storage.CarImageName(contentType, time.Now())
	if !ok {
		return "", fmt.Errorf("unsupported image type %q", contentType)
	}
	return store.Save(ctx, name, src, fh.Size, contentType)
}
