package templating_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/byte4ever/devkit/templating"
)

func TestFlatten(t *testing.T) {
	t.Parallel()

	got := templating.Flatten(map[string]any{
		"application": map[string]any{"id": "dev-kit"},
		"package": map[string]any{
			"licenses": []string{"MIT", "GPL"},
			"authors": []map[string]any{
				{"name": "Baz"},
			},
			"count":   3,
			"private": false,
			"none":    nil,
			"empty":   []string{},
			"mixed":   []any{"a", map[string]any{"b": "c"}},
		},
		"labels": map[string]string{"team": "core"},
	})

	assert.Equal(t, map[string]string{
		"application.id":         "dev-kit",
		"package.licenses":       "MIT, GPL",
		"package.licenses.0":     "MIT",
		"package.licenses.1":     "GPL",
		"package.authors.0.name": "Baz",
		"package.count":          "3",
		"package.private":        "false",
		"package.none":           "",
		"package.empty":          "",
		"package.mixed.0":        "a",
		"package.mixed.1.b":      "c",
		"labels.team":            "core",
	}, got)
}

// stubContext is a Context with fixed parameters.
type stubContext struct {
	name   string
	params map[string]any
}

func (s stubContext) Name() string { return s.name }

func (s stubContext) Parameters() map[string]any { return s.params }

func TestParameters_later_context_replaces(t *testing.T) {
	t.Parallel()

	assert.Empty(t, templating.Parameters())

	got := templating.Parameters(
		stubContext{name: "foo", params: map[string]any{"bar": "baz"}},
		stubContext{name: "foo", params: map[string]any{"bar": "other baz"}},
		stubContext{name: "qux", params: map[string]any{}},
	)

	assert.Equal(t, map[string]any{
		"foo": map[string]any{"bar": "other baz"},
		"qux": map[string]any{},
	}, got)
}
