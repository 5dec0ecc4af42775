package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/devkit/config"
)

const validConfig = `
organization:
  name: acme
user:
  name: dev-kit-bot
  real_name: Dev Kit Bot
  email: bot@acme.test
  token: "%env(DEV_KIT_TOKEN)%"
repositories:
  - widgets
  - gadgets
`

func lookup(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]

		return v, ok
	}
}

func writeConfig(tb testing.TB, content string) string {
	tb.Helper()

	pa := filepath.Join(tb.TempDir(), "dev-kit.yml")
	require.NoError(tb, os.WriteFile(pa, []byte(content), 0o600))

	return pa
}

func TestLoadWithEnv(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadWithEnv(
		writeConfig(t, validConfig),
		lookup(map[string]string{"DEV_KIT_TOKEN": "s3cr3t"}),
	)
	require.NoError(t, err)

	want := config.Default()
	want.Organization.Name = "acme"
	want.User = config.User{
		Name:     "dev-kit-bot",
		RealName: "Dev Kit Bot",
		Email:    "bot@acme.test",
		Token:    "s3cr3t",
	}
	want.Repositories = []string{"widgets", "gadgets"}
	want.Host.URL = "https://github.com"

	assert.Equal(t, want, cfg)
}

func TestParse_environment_names(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ref  string
	}{
		{name: "digits", ref: "GH_TOKEN2"},
		{name: "lower case", ref: "gh_token"},
		{name: "leading underscore", ref: "_TOKEN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			doc := "organization: {name: acme}\n" +
				"user: {name: a, real_name: b, email: c, token: \"%env(" +
				tt.ref + ")%\"}\nrepositories: [x]\n"

			cfg, err := config.Parse(
				[]byte(doc), lookup(map[string]string{tt.ref: "s3cr3t"}),
			)

			require.NoError(t, err)
			assert.Equal(t, "s3cr3t", cfg.User.Token)
		})
	}
}

func TestParse_overrides_defaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.Parse([]byte(`
application:
  id: sync-bot
  name: Sync Bot
organization:
  name: acme
user:
  name: bot
  real_name: Bot
  email: bot@acme.test
  token: plain-token
repositories: [widgets]
host:
  kind: gitlab
  api: https://gitlab.acme.test/api/v4
default_branch: develop
templates:
  path: /srv/templates
  namespace: common
  pull_request: "@dev-kit/pr.md"
  manifest: package.json
  cache_size: 16
parallelism: 4
`), lookup(nil))
	require.NoError(t, err)

	assert.Equal(t, config.Application{ID: "sync-bot", Name: "Sync Bot"}, cfg.Application)
	assert.Equal(t, "plain-token", cfg.User.Token)
	assert.Equal(t, config.Host{
		Kind: config.HostGitLab,
		URL:  "https://gitlab.com",
		API:  "https://gitlab.acme.test/api/v4",
	}, cfg.Host)
	assert.Equal(t, "develop", cfg.DefaultBranch)
	assert.Equal(t, config.Templates{
		Path:        "/srv/templates",
		Namespace:   "common",
		PullRequest: "@dev-kit/pr.md",
		Manifest:    "package.json",
		CacheSize:   16,
	}, cfg.Templates)
	assert.Equal(t, 4, cfg.Parallelism)
}

func TestParse_errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		doc     string
		wantMsg string
	}{
		{
			name:    "missing environment variable",
			doc:     validConfig,
			wantMsg: `environment variable "DEV_KIT_TOKEN" was not found`,
		},
		{
			name: "malformed environment reference",
			doc: "organization: {name: acme}\nuser: {name: a, real_name: b, email: c, " +
				"token: \"%env(GH-TOKEN)%\"}\nrepositories: [x]\n",
			wantMsg: `malformed environment variable reference "%env(GH-TOKEN)%"`,
		},
		{
			name:    "missing organization",
			doc:     "user: {name: a, real_name: b, email: c, token: d}\nrepositories: [x]\n",
			wantMsg: "organization.name must not be empty",
		},
		{
			name:    "missing user fields",
			doc:     "organization: {name: acme}\nrepositories: [x]\n",
			wantMsg: "user.real_name must not be empty",
		},
		{
			name:    "no repositories",
			doc:     "organization: {name: acme}\nuser: {name: a, real_name: b, email: c, token: d}\n",
			wantMsg: "repositories must list at least one repository",
		},
		{
			name: "duplicate repository",
			doc: "organization: {name: acme}\nuser: {name: a, real_name: b, email: c, token: d}\n" +
				"repositories: [x, y, x]\n",
			wantMsg: `repositories[2]: duplicate "x"`,
		},
		{
			name: "qualified repository",
			doc: "organization: {name: acme}\nuser: {name: a, real_name: b, email: c, token: d}\n" +
				"repositories: [other/x]\n",
			wantMsg: "must not contain '/'",
		},
		{
			name: "unknown host",
			doc: "organization: {name: acme}\nuser: {name: a, real_name: b, email: c, token: d}\n" +
				"repositories: [x]\nhost: {kind: gitea, url: https://gitea.test}\n",
			wantMsg: `host.kind: unsupported "gitea"`,
		},
		{
			name: "bitbucket without url",
			doc: "organization: {name: acme}\nuser: {name: a, real_name: b, email: c, token: d}\n" +
				"repositories: [x]\nhost: {kind: bitbucket}\n",
			wantMsg: "host.url must not be empty",
		},
		{
			name: "relative api url",
			doc: "organization: {name: acme}\nuser: {name: a, real_name: b, email: c, token: d}\n" +
				"repositories: [x]\nhost: {api: /api/v3}\n",
			wantMsg: "is not an absolute url",
		},
		{
			name: "zero parallelism",
			doc: "organization: {name: acme}\nuser: {name: a, real_name: b, email: c, token: d}\n" +
				"repositories: [x]\nparallelism: 0\n",
			wantMsg: "parallelism must be at least 1",
		},
		{
			name: "unknown key",
			doc: "organization: {name: acme}\nuser: {name: a, real_name: b, email: c, token: d}\n" +
				"repositories: [x]\nrepository: [y]\n",
			wantMsg: "repository",
		},
		{
			name:    "not yaml",
			doc:     "organization: [",
			wantMsg: "invalid configuration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := config.Parse([]byte(tt.doc), lookup(nil))

			assert.Nil(t, cfg)
			require.ErrorIs(t, err, config.ErrConfiguration)
			assert.ErrorContains(t, err, tt.wantMsg)
		})
	}
}

func TestLoadWithEnv_file_errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	tests := []struct {
		name    string
		path    string
		wantMsg string
	}{
		{
			name:    "missing file",
			path:    filepath.Join(dir, "missing.yml"),
			wantMsg: "does not exist",
		},
		{
			name:    "directory",
			path:    dir,
			wantMsg: "is not a regular file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := config.LoadWithEnv(tt.path, lookup(nil))

			assert.Nil(t, cfg)
			require.ErrorIs(t, err, config.ErrConfiguration)
			assert.ErrorContains(t, err, tt.wantMsg)
		})
	}
}

func TestLoadWithEnv_unreadable(t *testing.T) {
	t.Parallel()

	if os.Geteuid() == 0 {
		t.Skip("file permissions are not enforced for root")
	}

	pa := writeConfig(t, validConfig)
	require.NoError(t, os.Chmod(pa, 0o200))

	cfg, err := config.LoadWithEnv(pa, lookup(nil))

	assert.Nil(t, cfg)
	require.ErrorIs(t, err, config.ErrConfiguration)
	assert.ErrorContains(t, err, "is not readable")
}

func TestLoad_process_environment(t *testing.T) {
	t.Setenv("DEV_KIT_TOKEN", "from-env")

	cfg, err := config.Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.User.Token)
}
