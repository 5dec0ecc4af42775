package templating

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	json "github.com/goccy/go-json"
)

// ErrManifest is returned when a package manifest is
// missing or cannot be decoded.
var ErrManifest = errors.New("invalid package manifest")

// Context exposes a group of parameters to templates. Its
// parameters are available under its name.
type Context interface {
	Name() string
	Parameters() map[string]any
}

// ApplicationContext describes the dispatching
// application.
type ApplicationContext struct {
	ID    string
	Title string
}

// Name returns "application".
func (ApplicationContext) Name() string {
	return "application"
}

// Parameters returns id and name.
func (c ApplicationContext) Parameters() map[string]any {
	return map[string]any{
		"id":   c.ID,
		"name": c.Title,
	}
}

// manifest is the subset of composer.json exposed to
// templates.
type manifest struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Homepage    string            `json:"homepage"`
	Type        string            `json:"type"`
	Version     string            `json:"version"`
	License     json.RawMessage   `json:"license"`
	Authors     []map[string]any  `json:"authors"`
	Require     map[string]string `json:"require"`
	RequireDev  map[string]string `json:"require-dev"`
}

// PackageContext describes the package of a repository,
// read from its composer.json manifest.
type PackageContext struct {
	params map[string]any
}

// NewPackageContext reads the manifest at path.
func NewPackageContext(path string) (*PackageContext, error) {
	const errCtx = "reading package manifest"

	raw, err := os.ReadFile(path) //nolint:gosec // manifest path built by the caller
	if err != nil {
		return nil, fmt.Errorf(
			"%s: %w: %w", errCtx, ErrManifest, err,
		)
	}

	var m manifest

	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf(
			"%s: %s: %w: %w", errCtx, path, ErrManifest, err,
		)
	}

	if m.Name == "" {
		return nil, fmt.Errorf(
			"%s: %s: %w: no package name",
			errCtx, path, ErrManifest,
		)
	}

	licenses, err := parseLicenses(m.License)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: %s: %w: %w", errCtx, path, ErrManifest, err,
		)
	}

	pkgType := m.Type
	if pkgType == "" {
		pkgType = "library"
	}

	authors := m.Authors
	if authors == nil {
		authors = []map[string]any{}
	}

	short := shortName(m.Name)

	return &PackageContext{
		params: map[string]any{
			"name":        m.Name,
			"shortName":   short,
			"prettyName":  prettyName(short),
			"description": m.Description,
			"authors":     authors,
			"homepage":    m.Homepage,
			"type":        pkgType,
			"licenses":    licenses,
			"stability":   stability(m.Version),
			"dependencies": map[string]any{
				"production":  sortedKeys(m.Require),
				"development": sortedKeys(m.RequireDev),
			},
		},
	}, nil
}

// Name returns "package".
func (*PackageContext) Name() string {
	return "package"
}

// Parameters returns the package description.
func (c *PackageContext) Parameters() map[string]any {
	return c.params
}

// parseLicenses accepts a single license or a list.
func parseLicenses(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return []string{}, nil
	}

	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		return []string{one}, nil
	}

	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, fmt.Errorf("license: %w", err)
	}

	return many, nil
}

// shortName drops the vendor: "baz/foo-bar" becomes
// "foo-bar".
func shortName(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}

	return name
}

// prettyName capitalizes dash-separated words: "foo-bar"
// becomes "Foo Bar".
func prettyName(short string) string {
	words := strings.Split(short, "-")

	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}

	return strings.Join(words, " ")
}

var stabilityRe = regexp.MustCompile(
	`(?i)[._-]?(?:(stable|beta|b|rc|alpha|a|patch|pl|p)` +
		`(?:[.-]?\d+)*)?(?:[.-]?dev)?$`,
)

// stability derives the stability flag of a version
// constraint. Versions without a pre-release suffix are
// stable.
func stability(version string) string {
	v := strings.ToLower(strings.TrimSpace(version))

	if v == "" {
		return "stable"
	}

	if strings.HasPrefix(v, "dev-") || strings.HasSuffix(v, "-dev") {
		return "dev"
	}

	m := stabilityRe.FindStringSubmatch(v)
	if m == nil {
		return "stable"
	}

	switch m[1] {
	case "beta", "b":
		return "beta"
	case "alpha", "a":
		return "alpha"
	case "rc":
		return "RC"
	default:
		return "stable"
	}
}

// TravisContext describes the Travis CI build the
// application runs in.
type TravisContext struct {
	repository string
	title      string
	body       string
}

// OnBuildMachine reports whether getenv describes a Travis
// CI build.
func OnBuildMachine(getenv func(string) string) bool {
	return getenv("TRAVIS") == "true"
}

// NewTravisContext reads the build from getenv. It returns
// false when not running on Travis CI.
func NewTravisContext(
	getenv func(string) string,
) (*TravisContext, bool) {
	if !OnBuildMachine(getenv) {
		return nil, false
	}

	title, body := splitCommitMessage(
		getenv("TRAVIS_COMMIT_MESSAGE"),
	)

	return &TravisContext{
		repository: getenv("TRAVIS_REPO_SLUG"),
		title:      title,
		body:       body,
	}, true
}

// Name returns "travis".
func (*TravisContext) Name() string {
	return "travis"
}

// Parameters returns repository and commit.
func (c *TravisContext) Parameters() map[string]any {
	return map[string]any{
		"repository": c.repository,
		"commit": map[string]any{
			"title": c.title,
			"body":  c.body,
		},
	}
}

// splitCommitMessage returns the lines before the first
// blank line as the title and the remaining lines as the
// body.
func splitCommitMessage(msg string) (string, string) {
	lines := strings.Split(msg, "\n")

	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			return strings.Join(lines[:i], "\n"),
				strings.Join(lines[i+1:], "\n")
		}
	}

	return msg, ""
}
