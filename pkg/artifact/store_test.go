package artifact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	root := t.TempDir()
	work := filepath.Join(root, "work")
	require.NoError(t, os.MkdirAll(work, 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "calibrations"), 0o755))

	return NewStore(Layout{
		WorkDir: work,
		RawDir:  "../data",
		BiasDir: "../data/biases",
		CalDir:  "../calibrations",
	})
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("SIMPLE"), 0o644))
}

func TestStore_DeleteMissingIsNotAnError(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.Delete(Compose("N1", Extracted)))
	assert.NoError(t, store.DeletePath("../calibrations/none.fits"))
}

func TestStore_ExistsAndDelete(t *testing.T) {
	store := newTestStore(t)
	key := Compose("N1", Reduced)
	touch(t, store.Path(key))

	assert.True(t, store.Exists(key))
	require.NoError(t, store.Delete(key))
	assert.False(t, store.Exists(key))
}

func TestStore_Copy(t *testing.T) {
	store := newTestStore(t)
	src := Compose("N1", SciExtracted)
	dst := src.Push(TagCosmicRay)
	touch(t, store.Path(src))
	require.NoError(t, os.WriteFile(store.Path(dst), []byte("stale"), 0o644))

	require.NoError(t, store.Copy(src, dst))

	data, err := os.ReadFile(store.Path(dst))
	require.NoError(t, err)
	assert.Equal(t, "SIMPLE", string(data))
	assert.True(t, store.Exists(src))
}

func TestStore_DeleteGlob(t *testing.T) {
	store := newTestStore(t)
	work := store.Layout().WorkDir
	touch(t, filepath.Join(work, "tmp1.fits"))
	touch(t, filepath.Join(work, "tmpdq.fits"))
	touch(t, filepath.Join(work, "gfreduce.log"))
	touch(t, filepath.Join(work, "keep.fits"))

	n, err := store.DeleteGlob("tmp*", "*.log")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.FileExists(t, filepath.Join(work, "keep.fits"))
}

func TestStore_CalibrationPaths(t *testing.T) {
	store := newTestStore(t)

	assert.Equal(t, "../calibrations/bias", store.MasterBias())
	assert.Equal(t, "../calibrations/bd284211_sens", store.Sensitivity("bd284211_"))
	assert.Equal(t, "../data/", store.RawDir())
	assert.Equal(t, "../data/biases/", store.BiasDir())

	assert.False(t, store.ExistsPath(store.MasterBiasPath()))
	touch(t, store.Resolve(store.MasterBiasPath()))
	assert.True(t, store.ExistsPath(store.MasterBiasPath()))
}
