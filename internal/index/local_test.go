package index

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_Regenerate(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	existing := "<a href=\"https://old.example/a-1.0-py3-none-any.whl\">a-1.0-py3-none-any.whl</a><br>\n" +
		"<a href=\"https://old.example/c-1.0-py3-none-any.whl\">c-1.0-py3-none-any.whl</a><br>\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, PageName), []byte(existing), 0o644))
	for _, name := range []string{"b-1.0+cpu-py3-none-any.whl", "c-1.0-py3-none-any.whl", "readme.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}

	// Act
	names, err := NewLocal(dir).Regenerate(context.Background(), RegenerateOptions{BaseURL: "https://cdn.example/p/"})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []string{"a-1.0-py3-none-any.whl", "b-1.0+cpu-py3-none-any.whl", "c-1.0-py3-none-any.whl"}, names)

	page, err := os.ReadFile(filepath.Join(dir, PageName))
	require.NoError(t, err)
	assert.Equal(t, "<a href=\"https://cdn.example/p/a-1.0-py3-none-any.whl\">a-1.0-py3-none-any.whl</a><br>\n"+
		"<a href=\"https://cdn.example/p/b-1.0%2Bcpu-py3-none-any.whl\">b-1.0+cpu-py3-none-any.whl</a><br>\n"+
		"<a href=\"https://cdn.example/p/c-1.0-py3-none-any.whl\">c-1.0-py3-none-any.whl</a><br>\n", string(page))

	_, err = os.Stat(filepath.Join(dir, PageName+".tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestLocal_Regenerate_Idempotent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a-1.0-py3-none-any.whl"), nil, 0o644))
	local := NewLocal(dir)

	_, err := local.Regenerate(context.Background(), RegenerateOptions{})
	require.NoError(t, err)
	first, err := os.ReadFile(local.PagePath())
	require.NoError(t, err)

	_, err = local.Regenerate(context.Background(), RegenerateOptions{})
	require.NoError(t, err)
	second, err := os.ReadFile(local.PagePath())
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

func TestLocal_Regenerate_NoExistingPage(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a-1.0-py3-none-any.whl"), nil, 0o644))

	names, err := NewLocal(dir).Regenerate(context.Background(), RegenerateOptions{})

	require.NoError(t, err)
	assert.Equal(t, []string{"a-1.0-py3-none-any.whl"}, names)
}

func TestLocal_Regenerate_WithRemote(t *testing.T) {
	// Arrange
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<a href=\"x\">z-9.0-py3-none-any.whl</a><br>\n"))
	}))
	defer server.Close()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a-1.0-py3-none-any.whl"), nil, 0o644))

	// Act
	names, err := NewLocal(dir).Regenerate(context.Background(), RegenerateOptions{Remote: NewRemote(server.URL)})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []string{"a-1.0-py3-none-any.whl", "z-9.0-py3-none-any.whl"}, names)
}

func TestRemote_Load_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewRemote(server.URL).Load(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")
}

func TestRemote_Load_Cancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRemote(server.URL).Load(ctx)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocal_Wheels_MissingDir(t *testing.T) {
	_, err := NewLocal(filepath.Join(t.TempDir(), "nope")).Wheels()

	assert.Error(t, err)
}

func TestLocal_Wheels_FollowsSymlinks(t *testing.T) {
	dir, elsewhere := t.TempDir(), t.TempDir()
	target := filepath.Join(elsewhere, "a-1.0-py3-none-any.whl")
	require.NoError(t, os.WriteFile(target, nil, 0o644))
	require.NoError(t, os.Symlink(target, filepath.Join(dir, "a-1.0-py3-none-any.whl")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b-1.0-py3-none-any.whl"), nil, 0o644))
	require.NoError(t, os.Symlink(elsewhere, filepath.Join(dir, "dir.whl")))

	names, err := NewLocal(dir).Wheels()

	require.NoError(t, err)
	assert.Equal(t, []string{"a-1.0-py3-none-any.whl", "b-1.0-py3-none-any.whl"}, names)
}
