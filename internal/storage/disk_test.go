package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskStoreSaveAndDelete(t *testing.T) {
	root := t.TempDir()
	store, err := NewDiskStore(root)
	require.NoError(t, err)
	ctx := context.Background()

	path, err := store.Save(ctx, "car-1-2.png", strings.NewReader("png-bytes"), 9, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "/uploads/cars/car-1-2.png", path)

	data, err := os.ReadFile(filepath.Join(root, "cars", "car-1-2.png"))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	require.NoError(t, store.Delete(ctx, path))
	_, err = os.Stat(filepath.Join(root, "cars", "car-1-2.png"))
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, store.Delete(ctx, path), "deleting twice is not an error")
}

func TestDiskStoreRejectsForeignPaths(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	for _, p := range []string{"/etc/passwd", "https://cdn.example.com/cars/a.png", "/uploads/other/a.png"} {
		assert.ErrorIs(t, store.Delete(context.Background(), p), ErrForeignPath, p)
	}
}

func TestDiskStoreSaveStripsDirectories(t *testing.T) {
	root := t.TempDir()
	store, err := NewDiskStore(root)
	require.NoError(t, err)

	path, err := store.Save(context.Background(), "../../escape.png", strings.NewReader("x"), 1, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "/uploads/cars/escape.png", path)
	assert.FileExists(t, filepath.Join(root, "cars", "escape.png"))
}

func TestDiskStoreListOlderThan(t *testing.T) {
	root := t.TempDir()
	store, err := NewDiskStore(root)
	require.NoError(t, err)
	ctx := context.Background()

	oldPath, err := store.Save(ctx, "old.png", strings.NewReader("o"), 1, "image/png")
	require.NoError(t, err)
	_, err = store.Save(ctx, "new.png", strings.NewReader("n"), 1, "image/png")
	require.NoError(t, err)

	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(root, "cars", "old.png"), past, past))

	paths, err := store.ListOlderThan(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{oldPath}, paths)
}

func TestCarImageName(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	name, ok := CarImageName("image/jpeg", now)
	require.True(t, ok)
	assert.Regexp(t, regexp.MustCompile(`^car-1700000000123-\d+\.jpg$`), name)

	again, _ := CarImageName("image/jpeg", now)
	assert.NotEqual(t, name, again)

	name, ok = CarImageName("IMAGE/PNG; charset=binary", now)
	require.True(t, ok)
	assert.True(t, strings.HasSuffix(name, ".png"))

	for _, contentType := range []string{"image/svg+xml", "text/html", "", "image/"} {
		_, ok := CarImageName(contentType, now)
		assert.False(t, ok, contentType)
	}
}

func TestDiskStoreHandlerServesOnlyImageFiles(t *testing.T) {
	root := t.TempDir()
	store, err := NewDiskStore(root)
	require.NoError(t, err)
	_, err = store.Save(context.Background(), "car-1-2.png", strings.NewReader("png-bytes"), 9, "image/png")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "cars", "car-1-3.html"), []byte("<script>"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "cars", "nested.png"), 0o755))

	get := func(target string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		store.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		return rec
	}

	rec := get("/uploads/cars/car-1-2.png")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "png-bytes", rec.Body.String())

	for _, target := range []string{
		"/uploads/cars/",
		"/uploads/",
		"/uploads/cars/car-1-3.html",
		"/uploads/cars/nested.png",
		"/uploads/cars/missing.png",
		"/uploads/cars/../cars/car-1-2.png",
	} {
		assert.Equal(t, http.StatusNotFound, get(target).Code, target)
	}
}
