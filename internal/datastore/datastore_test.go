package datastore

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/babelia-vision/babelia-go/internal/conf"
	"github.com/babelia-vision/babelia-go/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	settings := &conf.Settings{}
	settings.Output.DBPath = filepath.Join(t.TempDir(), "test.db")

	store := &SQLiteStore{Settings: settings}
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testDiscovery(key string, score float64) *Discovery {
	return &Discovery{
		LocationKey:   strings.Repeat(key, 40),
		Wall:          "n",
		Shelf:         1,
		Volume:        1,
		Page:          1,
		Score:         score,
		Reason:        "a photograph of a person",
		Entropy:       0.42,
		NoiseScore:    0.2,
		SemanticScore: 0.8,
		ImagePath:     "/tmp/discovery.jpg",
	}
}

func TestSaveAndCount(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.Save(testDiscovery("a", 0.9)))
	require.NoError(t, store.Save(testDiscovery("b", 0.8)))

	count, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestSaveDuplicateCoordinatesIsIdempotent(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.Save(testDiscovery("a", 0.9)))

	// same coordinates, different score: swallowed, no second row
	dup := testDiscovery("a", 0.95)
	require.NoError(t, store.Save(dup))

	count, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// the original row wins
	stored, err := store.Get(strings.Repeat("a", 40), "n", 1, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 0.9, stored.Score)
}

func TestSaveDifferentPageIsNewRow(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.Save(testDiscovery("a", 0.9)))
	d := testDiscovery("a", 0.7)
	d.Page = 2
	require.NoError(t, store.Save(d))

	count, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestTopOrdering(t *testing.T) {
	store := openTestStore(t)

	scores := []float64{0.76, 0.99, 0.81, 0.88, 0.79}
	for i, s := range scores {
		require.NoError(t, store.Save(testDiscovery(fmt.Sprintf("%d", i), s)))
	}

	top, err := store.Top(3)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, 0.99, top[0].Score)
	assert.Equal(t, 0.88, top[1].Score)
	assert.Equal(t, 0.81, top[2].Score)
}

func TestTopFewerRowsThanLimit(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.Save(testDiscovery("a", 0.9)))
	top, err := store.Top(10)
	require.NoError(t, err)
	assert.Len(t, top, 1)
}

func TestGetNotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Get(strings.Repeat("f", 40), "n", 1, 1, 1)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestDiscoverySlug(t *testing.T) {
	t.Parallel()

	d := testDiscovery("c", 0.9)
	d.Shelf = 3
	d.Volume = 12
	d.Page = 45
	want := strings.Repeat("c", 40) + "-wn-s3-v12-p045"
	assert.Equal(t, want, d.Slug())
}

func TestSaveImage(t *testing.T) {
	t.Parallel()

	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	dir := t.TempDir()
	path, err := SaveImage(img, dir, 0.876)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(filepath.Base(path), "2"), "filename starts with the timestamp")
	assert.True(t, strings.HasSuffix(path, "_score0.876.jpg"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}
