package digester_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/byte4ever/devkit/digester"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sha256("hello")
const helloDigest = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

func TestCalculateDigest_returns_sha256(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	pa := filepath.Join(dir, "test.txt")
	require.NoError(t, os.WriteFile(pa, []byte("hello"), 0o600))

	got, err := digester.CalculateDigest(pa)

	require.NoError(t, err)
	assert.Equal(t, helloDigest, got)
}

func TestCalculateDigest_nonexistent_file(t *testing.T) {
	t.Parallel()

	got, err := digester.CalculateDigest(
		filepath.Join(t.TempDir(), "nonexistent"),
	)

	assert.Empty(t, got)
	assert.NoError(t, err)
}

func TestCalculateDigest_directory(t *testing.T) {
	t.Parallel()

	_, err := digester.CalculateDigest(t.TempDir())

	assert.ErrorContains(t, err, "calculating digest")
}

func TestDigestBytes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, helloDigest, digester.DigestBytes([]byte("hello")))
}

func TestMatches(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	pa := filepath.Join(dir, "data.bin")
	require.NoError(t, os.WriteFile(pa, []byte("content"), 0o600))

	tests := []struct {
		name    string
		path    string
		content string
		want    bool
	}{
		{
			name:    "same content",
			path:    pa,
			content: "content",
			want:    true,
		},
		{
			name:    "different content",
			path:    pa,
			content: "tampered",
			want:    false,
		},
		{
			name:    "missing file",
			path:    filepath.Join(dir, "missing"),
			content: "",
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ok, err := digester.Matches(tt.path, []byte(tt.content))

			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func FuzzCalculateDigest(f *testing.F) {
	f.Add([]byte("hello"))
	f.Add([]byte(""))
	f.Add([]byte("\x00\xff"))

	f.Fuzz(func(t *testing.T, data []byte) {
		dir := t.TempDir()
		pa := filepath.Join(dir, "fuzz.bin")
		require.NoError(t, os.WriteFile(pa, data, 0o600))

		dg, err := digester.CalculateDigest(pa)

		require.NoError(t, err)
		assert.Equal(t, digester.DigestBytes(data), dg)
	})
}
