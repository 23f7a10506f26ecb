package version

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frederic-klein/whlkit/internal/dist"
	"github.com/frederic-klein/whlkit/internal/extractor"
	"github.com/frederic-klein/whlkit/internal/wheeltest"
)

var fixedTime = time.Date(2023, time.May, 6, 7, 8, 10, 0, time.UTC)

func newRewriter(t *testing.T, opts Options) *Rewriter {
	t.Helper()
	r, err := NewRewriter(opts)
	require.NoError(t, err)
	return r
}

func TestRewriter_Rewrite_RecordScenario(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	archive := wheeltest.Write(t, filepath.Join(dir, "libx-1.0.0-py3-none-any.whl"),
		[]string{"libx-1.0.0.dist-info/RECORD"},
		map[string]string{"libx-1.0.0.dist-info/RECORD": "libx-1.0.0.dist-info/METADATA,sha256=abc,123"},
	)

	// Act
	out, err := newRewriter(t, Options{}).Rewrite(archive, filepath.Join(dir, "out"), "1.0.0", "1.0.0.post1")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "out", "libx-1.0.0.post1-py3-none-any.whl"), out)
	assert.Equal(t, map[string]string{
		"libx-1.0.0.post1.dist-info/RECORD": "libx-1.0.0.post1.dist-info/METADATA,sha256=abc,123",
	}, wheeltest.Read(t, out))
}

func TestRewriter_Rewrite_RoundTrip(t *testing.T) {
	// Arrange
	files := map[string]string{
		"libx/__init__.py":              "__version__ = '1.0.0'\n",
		"libx/data.bin":                 "payload 1.0.0",
		"libx/notes.txt":                "1.0.0",
		"libx-1.0.0.dist-info/METADATA": "Name: libx\nVersion: 1.0.0\n",
		"libx-1.0.0.dist-info/WHEEL":    "Wheel-Version: 1.0\nTag: py3-none-any\n",
	}
	dir := t.TempDir()
	archive := wheeltest.Build(t, dir, "libx-1.0.0-py3-none-any.whl", "libx-1.0.0.dist-info", files)
	in := wheeltest.Read(t, archive)

	// Act
	out, err := newRewriter(t, Options{}).Rewrite(archive, filepath.Join(dir, "out"), "", "2.0.0")

	// Assert
	require.NoError(t, err)
	got := wheeltest.Read(t, out)
	assert.Equal(t, []string{
		"libx-2.0.0.dist-info/METADATA",
		"libx-2.0.0.dist-info/WHEEL",
		"libx/__init__.py",
		"libx/data.bin",
		"libx/notes.txt",
		"libx-2.0.0.dist-info/RECORD",
	}, wheeltest.Names(t, out))

	assert.Equal(t, "__version__ = '2.0.0'\n", got["libx/__init__.py"])
	assert.Equal(t, "Name: libx\nVersion: 2.0.0\n", got["libx-2.0.0.dist-info/METADATA"])
	assert.Equal(t, in["libx/data.bin"], got["libx/data.bin"])
	assert.Equal(t, in["libx/notes.txt"], got["libx/notes.txt"])
	assert.Equal(t, in["libx-1.0.0.dist-info/WHEEL"], got["libx-2.0.0.dist-info/WHEEL"])
	assert.NotContains(t, got["libx-2.0.0.dist-info/RECORD"], "1.0.0")
}

func TestRewriter_Rewrite_RecordLeftStale(t *testing.T) {
	dir := t.TempDir()
	archive := wheeltest.Build(t, dir, "libx-1.0.0-py3-none-any.whl", "libx-1.0.0.dist-info", map[string]string{
		"libx/__init__.py": "__version__ = '1.0.0'\n",
	})

	out, err := newRewriter(t, Options{}).Rewrite(archive, filepath.Join(dir, "out"), "", "1.0.1")
	require.NoError(t, err)

	_, err = extractor.NewExtractor().Extract(out, memfs.New())
	assert.True(t, errors.Is(err, dist.ErrArchiveCorrupt), "got %v", err)
}

func TestRewriter_Rewrite_Rehash(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	archive := wheeltest.Build(t, dir, "libx-1.0.0-py3-none-any.whl", "libx-1.0.0.dist-info", map[string]string{
		"libx/__init__.py":              "__version__ = '1.0.0'\n",
		"libx/data.bin":                 "1.0.0",
		"libx-1.0.0.dist-info/METADATA": "Name: libx\nVersion: 1.0.0\n",
	})

	// Act
	out, err := newRewriter(t, Options{Rehash: true}).Rewrite(archive, filepath.Join(dir, "out"), "", "1.0.0.post1")

	// Assert
	require.NoError(t, err)
	_, err = extractor.NewExtractor().Extract(out, memfs.New())
	assert.NoError(t, err)
}

func TestRewriter_Rewrite_PreservesHeaders(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	archive := filepath.Join(dir, "libx-1.0.0-py3-none-any.whl")
	f, err := os.Create(archive)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	hdr := &zip.FileHeader{Name: "libx/run.py", Method: zip.Store}
	hdr.SetMode(0o755)
	hdr.Modified = fixedTime
	w, err := zw.CreateHeader(hdr)
	require.NoError(t, err)
	_, err = w.Write([]byte("print('1.0.0')\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	// Act
	out, err := newRewriter(t, Options{}).Rewrite(archive, filepath.Join(dir, "out"), "", "1.1.0")

	// Assert
	require.NoError(t, err)
	zr, err := zip.OpenReader(out)
	require.NoError(t, err)
	defer zr.Close()
	require.Len(t, zr.File, 1)
	assert.Equal(t, os.FileMode(0o755), zr.File[0].Mode().Perm())
	assert.Equal(t, zip.Deflate, zr.File[0].Method)
	assert.True(t, fixedTime.Equal(zr.File[0].Modified), "got %v", zr.File[0].Modified)
}

func TestRewriter_Rewrite_FailureLeavesNoOutput(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	archive := filepath.Join(dir, "libx-1.0.0-py3-none-any.whl")
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range []string{"libx/a.py", "libx/b.py"} {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store})
		require.NoError(t, err)
		_, err = w.Write([]byte("hello " + name))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	data := bytes.Replace(buf.Bytes(), []byte("hello libx/b.py"), []byte("jello libx/b.py"), 1)
	require.NoError(t, os.WriteFile(archive, data, 0o644))
	outDir := filepath.Join(dir, "out")

	// Act
	_, err := newRewriter(t, Options{}).Rewrite(archive, outDir, "", "1.0.1")

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, dist.ErrArchiveCorrupt), "got %v", err)
	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRewriter_Rewrite_Invalid(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "libx-1.0.0-py3-none-any.whl")
	require.NoError(t, os.WriteFile(bad, []byte("nope"), 0o644))

	r := newRewriter(t, Options{})

	_, err := r.Rewrite(bad, filepath.Join(dir, "out"), "", "2.0")
	assert.True(t, errors.Is(err, dist.ErrArchiveCorrupt))

	_, err = r.Rewrite(filepath.Join(dir, "libx.whl"), filepath.Join(dir, "out"), "", "2.0")
	assert.True(t, errors.Is(err, dist.ErrArchiveCorrupt))

	_, err = r.Rewrite(bad, filepath.Join(dir, "out"), "", "")
	assert.ErrorIs(t, err, ErrEmptyToken)

	_, err = r.Rewrite(bad, dir, "9.9", "8.8")
	assert.Error(t, err, "output would overwrite the input")
}

func TestRewriter_IsText(t *testing.T) {
	r := newRewriter(t, Options{})

	assert.True(t, r.IsText("libx/__init__.py"))
	assert.True(t, r.IsText("libx-1.0.0.dist-info/METADATA"))
	assert.True(t, r.IsText("libx-1.0.0.dist-info/RECORD"))
	assert.False(t, r.IsText("libx-1.0.0.dist-info/WHEEL"))
	assert.False(t, r.IsText("libx/_core.so"))
	assert.False(t, r.IsText("libx/__init__.pyc"))
}

func TestNewRewriter_BadPattern(t *testing.T) {
	_, err := NewRewriter(Options{TextPatterns: []string{"[unterminated"}})

	assert.Error(t, err)
}

func TestRewriter_Batch(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	wheeltest.Build(t, dir, "libx-1.0.0-py3-none-any.whl", "libx-1.0.0.dist-info", map[string]string{"libx/__init__.py": ""})
	wheeltest.Build(t, dir, "liby-0.3-py3-none-any.whl", "liby-0.3.dist-info", map[string]string{"liby/__init__.py": ""})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "libz-1.0-py3-none-any.whl"), []byte("broken"), 0o644))
	outDir := filepath.Join(dir, "out")

	// Act
	report, err := newRewriter(t, Options{}).Batch(context.Background(), dir, outDir, "", "5.0")

	// Assert
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 3)
	assert.Equal(t, filepath.Join(outDir, "libx-5.0-py3-none-any.whl"), report.Outcomes[0].Output)
	assert.Equal(t, filepath.Join(outDir, "liby-5.0-py3-none-any.whl"), report.Outcomes[1].Output)
	assert.Error(t, report.Outcomes[2].Err)
	assert.Len(t, report.Failed(), 1)
}
