package local_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/inc-submissions-harvester/internal/storage/local"
	"github.com/JakeFAU/inc-submissions-harvester/internal/submission"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "snapshots")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		assert.DirExists(t, dir)
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})

	t.Run("BaseDirNotWritable", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("root ignores directory permissions")
		}
		tempDir := t.TempDir()
		// #nosec G302 -- directory permissions adjusted intentionally for test coverage.
		require.NoError(t, os.Chmod(tempDir, 0o500))
		t.Cleanup(func() {
			// #nosec G302 -- reverting permissions to allow cleanup.
			_ = os.Chmod(tempDir, 0o700)
		})
		_, err := local.New(local.Config{BaseDir: tempDir})
		assert.Error(t, err)
	})
}

func TestPutAndGetObject(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)
	ctx := context.Background()

	uri, err := store.PutObject(ctx, "snapshots/metadata_session_3.json", "application/json", bytes.NewReader([]byte(`{"a":1}`)))
	require.NoError(t, err)
	assert.Equal(t, "file://"+filepath.Join(dir, "snapshots", "metadata_session_3.json"), uri)

	_, err = store.PutObject(ctx, "snapshots/metadata_session_3.json", "application/json", bytes.NewReader([]byte(`{"a":2}`)))
	require.NoError(t, err)

	got, err := store.GetObject(ctx, "snapshots/metadata_session_3.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":2}`, string(got))
	assert.NoFileExists(t, filepath.Join(dir, "snapshots", "metadata_session_3.json.tmp"))
}

func TestGetObjectMissing(t *testing.T) {
	t.Parallel()

	store, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	_, err = store.GetObject(context.Background(), "nope.json")
	require.ErrorIs(t, err, submission.ErrObjectNotFound)
}

func TestPathValidation(t *testing.T) {
	t.Parallel()

	store, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.PutObject(ctx, "", "", bytes.NewReader(nil))
	require.Error(t, err)
	_, err = store.PutObject(ctx, "../escape.json", "", bytes.NewReader(nil))
	require.ErrorContains(t, err, "path traversal")
	_, err = store.GetObject(ctx, "../../etc/passwd")
	require.ErrorContains(t, err, "path traversal")
}
