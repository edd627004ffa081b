package export

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-site-crawler/internal/model"
)

func ptr(s string) *string { return &s }

func TestLoadItems_MissingFile(t *testing.T) {
	items, err := LoadItems(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestSaveThenLoad_PreservesNullsAndOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	in := []model.FeedItem{
		{Title: ptr("<b>一</b>"), Link: ptr("https://a/1"), Categories: []string{"x", "y"}},
		{Title: ptr("二"), GUID: ptr("g2"), Categories: []string{}},
	}
	require.NoError(t, SaveItems(path, in))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"description": null`)
	assert.Contains(t, string(raw), `"<b>一</b>"`)

	out, err := LoadItems(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestSaveItems_EmptySliceWritesArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, SaveItems(path, nil))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(raw))
}

func TestLoadItems_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := LoadItems(path)
	assert.Error(t, err)
}

func TestSaveItems_FileMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")
	require.NoError(t, SaveItems(path, nil))
	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), fi.Mode().Perm())

	// 已存在的文件保留原权限
	require.NoError(t, os.Chmod(path, 0o640))
	require.NoError(t, SaveItems(path, []model.FeedItem{{Title: ptr("a")}}))
	fi, err = os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), fi.Mode().Perm())
}
