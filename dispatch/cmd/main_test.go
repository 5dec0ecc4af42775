package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/devkit/config"
	"github.com/byte4ever/devkit/git/bitbucket"
	"github.com/byte4ever/devkit/git/github"
	"github.com/byte4ever/devkit/git/gitlab"
)

func TestNewProvider(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		host config.Host
		want any
	}{
		{
			name: "github.com",
			host: config.Host{Kind: config.HostGitHub, URL: "https://github.com"},
			want: &github.Provider{},
		},
		{
			name: "github enterprise",
			host: config.Host{Kind: config.HostGitHub, URL: "https://git.corp.test"},
			want: &github.Provider{},
		},
		{
			name: "gitlab",
			host: config.Host{Kind: config.HostGitLab, URL: "https://gitlab.com"},
			want: &gitlab.Provider{},
		},
		{
			name: "bitbucket",
			host: config.Host{
				Kind: config.HostBitbucket,
				URL:  "https://bb.corp.test",
				API:  "https://bb-api.corp.test",
			},
			want: &bitbucket.Provider{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p, err := newProvider(tt.host)

			require.NoError(t, err)
			assert.IsType(t, tt.want, p)
		})
	}
}

func TestNewProvider_errors(t *testing.T) {
	t.Parallel()

	_, err := newProvider(config.Host{Kind: "gitea"})
	require.ErrorContains(t, err, `unknown host kind "gitea"`)

	_, err = newProvider(config.Host{Kind: config.HostBitbucket})
	assert.ErrorContains(t, err, "creating git provider")
}

func TestRenderCmd(t *testing.T) {
	t.Parallel()

	repo := t.TempDir()
	out := t.TempDir()

	require.NoError(t, os.WriteFile(
		filepath.Join(repo, "composer.json"),
		[]byte(`{"name": "acme/foo-bar", "license": "MIT"}`),
		0o600,
	))

	var stdout bytes.Buffer

	cmd := newRootCmd(&stdout, &bytes.Buffer{})
	cmd.SetArgs([]string{"render", "--repository", repo, "--output", out})

	require.NoError(t, cmd.Execute())

	assert.Contains(t, stdout.String(), filepath.Join(out, "CONTRIBUTING.md"))

	got, err := os.ReadFile(filepath.Join(out, "LICENSE.md")) //nolint:gosec // test file
	require.NoError(t, err)
	assert.NotEmpty(t, got)

	// A second render has nothing left to write.
	stdout.Reset()
	cmd = newRootCmd(&stdout, &bytes.Buffer{})
	cmd.SetArgs([]string{"render", "-r", repo, "-o", out})

	require.NoError(t, cmd.Execute())
	assert.Empty(t, stdout.String())
}

func TestRenderCmd_invalid_manifest(t *testing.T) {
	t.Parallel()

	repo := t.TempDir()

	require.NoError(t, os.WriteFile(
		filepath.Join(repo, "composer.json"), []byte("{"), 0o600,
	))

	cmd := newRootCmd(&bytes.Buffer{}, &bytes.Buffer{})
	cmd.SetArgs([]string{"render", "--repository", repo})

	assert.ErrorContains(t, cmd.Execute(), "invalid package manifest")
}

func TestDispatchCmd_missing_config(t *testing.T) {
	t.Parallel()

	cmd := newRootCmd(&bytes.Buffer{}, &bytes.Buffer{})
	cmd.SetArgs([]string{
		"dispatch", "--dry-run",
		"--config", filepath.Join(t.TempDir(), "missing.yaml"),
		"--env-file", writeEnvFile(t),
	})

	err := cmd.Execute()

	require.ErrorIs(t, err, config.ErrConfiguration)
	assert.ErrorContains(t, err, "does not exist")
}

func TestDispatchCmd_missing_env_file(t *testing.T) {
	t.Parallel()

	cmd := newRootCmd(&bytes.Buffer{}, &bytes.Buffer{})
	cmd.SetArgs([]string{
		"dispatch",
		"--env-file", filepath.Join(t.TempDir(), "missing.env"),
	})

	assert.ErrorContains(t, cmd.Execute(), "loading env file")
}

func TestResolveCacheDir(t *testing.T) {
	t.Parallel()

	got, err := resolveCacheDir("relative/cache")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
	assert.True(t, strings.HasSuffix(got, filepath.Join("relative", "cache")))
}

// writeEnvFile writes an env file setting a variable no
// other test reads.
func writeEnvFile(tb testing.TB) string {
	tb.Helper()

	pa := filepath.Join(tb.TempDir(), "test.env")
	require.NoError(tb, os.WriteFile(
		pa, []byte("DEVKIT_CMD_TEST=1\n"), 0o600,
	))

	return pa
}

func TestDispatchCmd_dry_run_help(t *testing.T) {
	t.Parallel()

	cmd, _, err := newRootCmd(&bytes.Buffer{}, &bytes.Buffer{}).
		Find([]string{"dispatch"})
	require.NoError(t, err)

	assert.Contains(t, cmd.Long, "branch missing on the remote is still created")
	assert.Contains(
		t, cmd.Flags().Lookup("dry-run").Usage,
		"a missing sync branch is still published",
	)
}
