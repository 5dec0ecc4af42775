package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/goccy/go-yaml"
)

// ErrConfiguration is wrapped by every loading and
// validation failure.
var ErrConfiguration = errors.New("invalid configuration")

// Supported hosting platforms.
const (
	HostGitHub    = "github"
	HostGitLab    = "gitlab"
	HostBitbucket = "bitbucket"
)

// Default values of optional settings.
const (
	DefaultApplicationID   = "dev-kit"
	DefaultApplicationName = "Development Kit"
	DefaultNamespace       = "shared"
	DefaultPullRequest     = "@dev-kit/pull_request.md"
	DefaultManifest        = "composer.json"
	DefaultCacheSize       = 128
	DefaultParallelism     = 1
)

var defaultHostURLs = map[string]string{
	HostGitHub: "https://github.com",
	HostGitLab: "https://gitlab.com",
}

// envPattern matches a value made only of an environment
// variable reference, such as "%env(GITHUB_TOKEN)%".
var envPattern = regexp.MustCompile(
	`^%env\(([A-Za-z_][A-Za-z0-9_]*)\)%$`,
)

// envPrefix starts every environment variable reference.
const envPrefix = "%env("

// Config is the dispatcher configuration file.
type Config struct {
	Application   Application  `yaml:"application"`
	Organization  Organization `yaml:"organization"`
	User          User         `yaml:"user"`
	Repositories  []string     `yaml:"repositories"`
	Host          Host         `yaml:"host"`
	DefaultBranch string       `yaml:"default_branch"`
	Templates     Templates    `yaml:"templates"`
	Parallelism   int          `yaml:"parallelism"`
}

// Application identifies the dispatcher. ID is also the
// name of the sync branch.
type Application struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// Organization owns the repositories.
type Organization struct {
	Name string `yaml:"name"`
}

// User is the account commits and pull requests are made
// with.
type User struct {
	Name     string `yaml:"name"`
	RealName string `yaml:"real_name"`
	Email    string `yaml:"email"`
	// Token may reference an environment variable with
	// "%env(NAME)%".
	Token string `yaml:"token"`
}

// Host is the hosting platform of the repositories.
type Host struct {
	Kind string `yaml:"kind"`
	// URL is the base clone URL.
	URL string `yaml:"url"`
	// API overrides the REST API root.
	API string `yaml:"api"`
}

// Templates selects the rendered templates.
type Templates struct {
	// Path is a directory holding "shared_files" and
	// "dev-kit". Empty selects the embedded templates.
	Path        string `yaml:"path"`
	Namespace   string `yaml:"namespace"`
	PullRequest string `yaml:"pull_request"`
	Manifest    string `yaml:"manifest"`
	CacheSize   int    `yaml:"cache_size"`
}

// Default returns a Config holding the default values of
// optional settings.
func Default() *Config {
	return &Config{
		Application: Application{
			ID:   DefaultApplicationID,
			Name: DefaultApplicationName,
		},
		Host: Host{
			Kind: HostGitHub,
		},
		Templates: Templates{
			Namespace:   DefaultNamespace,
			PullRequest: DefaultPullRequest,
			Manifest:    DefaultManifest,
			CacheSize:   DefaultCacheSize,
		},
		Parallelism: DefaultParallelism,
	}
}

// Load reads the YAML file at path, resolving environment
// references from the process environment.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv reads the YAML file at path, resolving
// environment references with lookup.
func LoadWithEnv(
	path string,
	lookup func(string) (string, bool),
) (*Config, error) {
	const errCtx = "loading configuration"

	data, err := readFile(path)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: %w: %w", errCtx, ErrConfiguration, err,
		)
	}

	cfg, err := Parse(data, lookup)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", errCtx, path, err)
	}

	return cfg, nil
}

// Parse decodes and validates a YAML document. Unknown
// keys are rejected.
func Parse(
	data []byte,
	lookup func(string) (string, bool),
) (*Config, error) {
	cfg := Default()

	if err := yaml.UnmarshalWithOptions(
		data, cfg, yaml.Strict(),
	); err != nil {
		return nil, fmt.Errorf(
			"%w: %s", ErrConfiguration, yaml.FormatError(err, false, true),
		)
	}

	token, err := resolveEnv(cfg.User.Token, lookup)
	if err != nil {
		return nil, fmt.Errorf(
			"%w: user.token: %w", ErrConfiguration, err,
		)
	}

	cfg.User.Token = token

	if cfg.Host.URL == "" {
		cfg.Host.URL = defaultHostURLs[cfg.Host.Kind]
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required settings and value ranges.
func (c *Config) Validate() error {
	var errs []error

	required := []struct {
		key string
		val string
	}{
		{"application.id", c.Application.ID},
		{"organization.name", c.Organization.Name},
		{"user.name", c.User.Name},
		{"user.real_name", c.User.RealName},
		{"user.email", c.User.Email},
		{"user.token", c.User.Token},
		{"host.url", c.Host.URL},
		{"templates.namespace", c.Templates.Namespace},
		{"templates.pull_request", c.Templates.PullRequest},
		{"templates.manifest", c.Templates.Manifest},
	}

	for _, r := range required {
		if strings.TrimSpace(r.val) == "" {
			errs = append(errs, fmt.Errorf(
				"%s must not be empty", r.key,
			))
		}
	}

	if len(c.Repositories) == 0 {
		errs = append(errs, errors.New(
			"repositories must list at least one repository",
		))
	}

	seen := make(map[string]struct{}, len(c.Repositories))

	for i, repo := range c.Repositories {
		switch _, dup := seen[repo]; {
		case strings.TrimSpace(repo) == "":
			errs = append(errs, fmt.Errorf(
				"repositories[%d] must not be empty", i,
			))
		case strings.Contains(repo, "/"):
			errs = append(errs, fmt.Errorf(
				"repositories[%d]: %q must not contain '/'", i, repo,
			))
		case dup:
			errs = append(errs, fmt.Errorf(
				"repositories[%d]: duplicate %q", i, repo,
			))
		}

		seen[repo] = struct{}{}
	}

	switch c.Host.Kind {
	case HostGitHub, HostGitLab, HostBitbucket:
	default:
		errs = append(errs, fmt.Errorf(
			"host.kind: unsupported %q", c.Host.Kind,
		))
	}

	for _, u := range []struct{ key, val string }{
		{"host.url", c.Host.URL},
		{"host.api", c.Host.API},
	} {
		if u.val == "" {
			continue
		}

		parsed, err := url.Parse(u.val)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			errs = append(errs, fmt.Errorf(
				"%s: %q is not an absolute url", u.key, u.val,
			))
		}
	}

	if c.Templates.CacheSize < 1 {
		errs = append(errs, errors.New(
			"templates.cache_size must be at least 1",
		))
	}

	if c.Parallelism < 1 {
		errs = append(errs, errors.New(
			"parallelism must be at least 1",
		))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfiguration, errors.Join(errs...))
	}

	return nil
}

// resolveEnv replaces a "%env(NAME)%" value with the
// variable it names. Other values are returned unchanged,
// except malformed references.
func resolveEnv(
	value string,
	lookup func(string) (string, bool),
) (string, error) {
	m := envPattern.FindStringSubmatch(value)
	if m == nil {
		if strings.HasPrefix(value, envPrefix) {
			return "", fmt.Errorf(
				"malformed environment variable reference %q", value,
			)
		}

		return value, nil
	}

	resolved, ok := lookup(m[1])
	if !ok {
		return "", fmt.Errorf(
			"environment variable %q was not found", m[1],
		)
	}

	return resolved, nil
}

// readFile reads a configuration file after checking it is
// an existing, regular and readable file.
func readFile(path string) ([]byte, error) {
	fi, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("the file %q does not exist", path)
	}

	if err != nil {
		return nil, err
	}

	if !fi.Mode().IsRegular() {
		return nil, fmt.Errorf(
			"the file %q is not a regular file", path,
		)
	}

	data, err := os.ReadFile(path) //nolint:gosec // path given by the operator
	if errors.Is(err, os.ErrPermission) {
		return nil, fmt.Errorf("the file %q is not readable", path)
	}

	if err != nil {
		return nil, err
	}

	return data, nil
}
