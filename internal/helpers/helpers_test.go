package helpers

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanFileName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain name",
			input:    "Ubuntu 24.04 Desktop",
			expected: "Ubuntu 24.04 Desktop",
		},
		{
			name:     "path separators",
			input:    "AC/DC - Back in Black",
			expected: "AC_DC - Back in Black",
		},
		{
			name:     "windows reserved characters",
			input:    `a:b*c?d"e<f>g|h\i`,
			expected: "a_b_c_d_e_f_g_h_i",
		},
		{
			name:     "trailing dots and spaces",
			input:    "  name...  ",
			expected: "name",
		},
		{
			name:     "empty falls back",
			input:    "   ",
			expected: "torrent",
		},
		{
			name:     "control characters",
			input:    "tab\there",
			expected: "tab_here",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CleanFileName(tt.input)
			if got != tt.expected {
				t.Errorf("CleanFileName(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestDecodeURLComponent(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"My%20File", "My File"},
		{"http%253A%252F%252Ftracker", "http%3A%2F%2Ftracker"},
		{"http%3A%2F%2Ftracker", "http://tracker"},
		{"100%", "100%"}, // invalid escape left alone
		{"plain", "plain"},
		{"C++ Primer", "C++ Primer"},
	}

	for _, tt := range tests {
		if got := DecodeURLComponent(tt.input); got != tt.expected {
			t.Errorf("DecodeURLComponent(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestBytesToSize(t *testing.T) {
	assert.Equal(t, "0 B", BytesToSize(0))
	assert.Equal(t, "1.0 KiB", BytesToSize(1024))
	assert.Equal(t, "1.5 MiB", BytesToSize(1536*1024))
}

func TestCheckAndMakeDir(t *testing.T) {
	fs := afero.NewMemMapFs()

	require.NoError(t, CheckAndMakeDir(fs, "/downloads/nested/path"))
	exists, err := afero.DirExists(fs, "/downloads/nested/path")
	require.NoError(t, err)
	assert.True(t, exists)

	// Existing directory is fine
	require.NoError(t, CheckAndMakeDir(fs, "/downloads"))

	// A file in the way is not
	require.NoError(t, afero.WriteFile(fs, "/downloads/file", []byte("x"), 0o644))
	assert.Error(t, CheckAndMakeDir(fs, "/downloads/file"))
}

func TestWriteFileAtomic(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/cache", 0o755))

	require.NoError(t, WriteFileAtomic(fs, "/cache/a.info", []byte("first")))
	require.NoError(t, WriteFileAtomic(fs, "/cache/a.info", []byte("second")))

	data, err := afero.ReadFile(fs, "/cache/a.info")
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	leftover, err := afero.Exists(fs, "/cache/a.info.tmp")
	require.NoError(t, err)
	assert.False(t, leftover, "temporary file should not remain")
}

func TestMoveFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	src := filepath.Join("/downloads", "movie.mkv")
	require.NoError(t, afero.WriteFile(fs, src, []byte("video"), 0o644))

	dest := filepath.Join("/archive", "films", "movie.mkv")
	require.NoError(t, MoveFile(fs, src, dest))

	data, err := afero.ReadFile(fs, dest)
	require.NoError(t, err)
	assert.Equal(t, "video", string(data))

	gone, err := afero.Exists(fs, src)
	require.NoError(t, err)
	assert.False(t, gone, "source should be removed after move")
}

func TestCopyTree(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/src/a/b.txt", []byte("b"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/src/c.txt", []byte("c"), 0o644))

	require.NoError(t, copyTree(fs, "/src", "/dst"))

	for path, want := range map[string]string{"/dst/a/b.txt": "b", "/dst/c.txt": "c"} {
		data, err := afero.ReadFile(fs, path)
		require.NoError(t, err, path)
		assert.Equal(t, want, string(data), path)
	}
}
