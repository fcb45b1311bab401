package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// PublicPrefix is the URL prefix the disk store's root is served under.
const PublicPrefix = "/uploads"

type DiskStore struct {
	dir string
}

func NewDiskStore(root string) (*DiskStore, error) {
	dir := filepath.Join(root, carImagesPrefix)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

func (s *DiskStore) Save(_ context.Context, name string, r io.Reader, _ int64, _ string) (string, error) {
	name = filepath.Base(name)
	dst, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return "", fmt.Errorf("create image file: %w", err)
	}
	if _, err := io.Copy(dst, r); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", fmt.Errorf("write image file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", fmt.Errorf("close image file: %w", err)
	}
	return path.Join(PublicPrefix, carImagesPrefix, name), nil
}

func (s *DiskStore) Delete(_ context.Context, p string) error {
	prefix := path.Join(PublicPrefix, carImagesPrefix) + "/"
	if !strings.HasPrefix(p, prefix) {
		return ErrForeignPath
	}
	name := path.Base(p)
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove image file: %w", err)
	}
	return nil
}

func (s *DiskStore) ListOlderThan(_ context.Context, age time.Duration) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read upload dir: %w", err)
	}
	cutoff := time.Now().Add(-age)

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			paths = append(paths, path.Join(PublicPrefix, carImagesPrefix, e.Name()))
		}
	}
	return paths, nil
}

// Handler serves stored car images under PublicPrefix. Directories and
// files without an image extension are reported as missing.
func (s *DiskStore) Handler() http.Handler {
	prefix := path.Join(PublicPrefix, carImagesPrefix) + "/"
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name, ok := strings.CutPrefix(r.URL.Path, prefix)
		contentType, isImage := imageContentType(strings.ToLower(path.Ext(name)))
		if !ok || !isImage || strings.ContainsAny(name, "/\\") {
			http.NotFound(w, r)
			return
		}

		f, err := os.Open(filepath.Join(s.dir, name))
		if err != nil {
			http.NotFound(w, r)
			return
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil || !info.Mode().IsRegular() {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", contentType)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		http.ServeContent(w, r, name, info.ModTime(), f)
	})
}
