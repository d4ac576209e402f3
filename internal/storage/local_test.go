package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spgemm-symbolic/pkg/config"
	"github.com/spgemm-symbolic/pkg/errors"
)

func newLocal(t *testing.T) (*LocalStorage, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := NewLocalStorage(dir)
	require.NoError(t, err)
	return s, dir
}

func TestNewLocalStorage(t *testing.T) {
	t.Run("CreatesRoot", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "nested", "storage")
		s, err := NewLocalStorage(root)
		require.NoError(t, err)
		assert.Equal(t, root, s.Root())

		info, err := os.Stat(root)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("EmptyPathUsesDefault", func(t *testing.T) {
		t.Chdir(t.TempDir())
		s, err := NewLocalStorage("")
		require.NoError(t, err)
		assert.Equal(t, DefaultLocalPath, s.Root())
	})
}

func TestLocalStorage_PutGet(t *testing.T) {
	s, dir := newLocal(t)
	ctx := context.Background()

	content := []byte(`{"nnz":42}`)
	require.NoError(t, s.Put(ctx, "runs/a/report.json", bytes.NewReader(content)))

	data, err := os.ReadFile(filepath.Join(dir, "runs", "a", "report.json"))
	require.NoError(t, err)
	assert.Equal(t, content, data)

	rc, err := s.Get(ctx, "runs/a/report.json")
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	_, err = s.Get(ctx, "runs/missing.json")
	assert.True(t, errors.IsNotFound(err))
}

func TestLocalStorage_PutFile(t *testing.T) {
	s, dir := newLocal(t)

	src := filepath.Join(dir, "source.json")
	require.NoError(t, os.WriteFile(src, []byte("source"), 0644))
	require.NoError(t, s.PutFile(context.Background(), "dest/file.json", src))

	data, err := os.ReadFile(filepath.Join(dir, "dest", "file.json"))
	require.NoError(t, err)
	assert.Equal(t, "source", string(data))

	err = s.PutFile(context.Background(), "dest.json", "/nonexistent/path.json")
	assert.True(t, errors.IsUploadError(err))
}

func TestLocalStorage_DeleteExists(t *testing.T) {
	s, _ := newLocal(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "x.json", bytes.NewReader([]byte("x"))))
	ok, err := s.Exists(ctx, "x.json")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete(ctx, "x.json"))
	ok, err = s.Exists(ctx, "x.json")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, s.Delete(ctx, "x.json"), "deleting twice succeeds")
}

func TestLocalStorage_RejectsEscapingKeys(t *testing.T) {
	s, _ := newLocal(t)
	for _, key := range []string{"", "../outside.json", "/etc/passwd", "a/../../b"} {
		err := s.Put(context.Background(), key, bytes.NewReader(nil))
		assert.Equal(t, errors.CodeInvalidInput, errors.GetErrorCode(err), key)
	}
}

func TestLocalStorage_CanceledContext(t *testing.T) {
	s, _ := newLocal(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Put(ctx, "c.json", bytes.NewReader([]byte("c"))), context.Canceled)
	_, err := s.Exists(ctx, "c.json")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocalStorage_URL(t *testing.T) {
	s, dir := newLocal(t)
	assert.Equal(t, filepath.Join(dir, "runs", "r1", "report.json"), s.URL("runs/r1/report.json"))
}

func TestArchive(t *testing.T) {
	s, dir := newLocal(t)
	reports := t.TempDir()
	first := filepath.Join(reports, "report.json")
	second := filepath.Join(reports, "report.json.gz")
	require.NoError(t, os.WriteFile(first, []byte("{}"), 0644))
	require.NoError(t, os.WriteFile(second, []byte("gz"), 0644))

	urls, err := Archive(context.Background(), s, "run-7", first, second)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "runs", "run-7", "report.json"),
		filepath.Join(dir, "runs", "run-7", "report.json.gz"),
	}, urls)

	_, err = Archive(context.Background(), s, "../run", first)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetErrorCode(err))

	urls, err = Archive(context.Background(), s, "run-8", first, filepath.Join(reports, "missing"))
	assert.Error(t, err)
	assert.Len(t, urls, 1)
}

func TestNew(t *testing.T) {
	s, err := New(&config.StorageConfig{Type: "local", LocalPath: t.TempDir()})
	require.NoError(t, err)
	_, ok := s.(*LocalStorage)
	assert.True(t, ok)

	s, err = New(&config.StorageConfig{LocalPath: t.TempDir()})
	require.NoError(t, err)
	_, ok = s.(*LocalStorage)
	assert.True(t, ok, "empty type means local")

	_, err = New(&config.StorageConfig{Type: "s3", LocalPath: t.TempDir()})
	assert.Error(t, err)
}

func TestReportKey(t *testing.T) {
	assert.Equal(t, "runs/abc/report.json", ReportKey("abc", "report.json"))
}
