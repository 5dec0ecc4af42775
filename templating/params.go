package templating

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// listSeparator joins the scalar items of a list when the
// list itself is used as a tag.
const listSeparator = ", "

// Parameters builds the parameter tree of contexts, each
// under its own name. A later context replaces an earlier
// one with the same name.
func Parameters(contexts ...Context) map[string]any {
	params := make(map[string]any, len(contexts))

	for _, c := range contexts {
		params[c.Name()] = c.Parameters()
	}

	return params
}

// Flatten turns a nested parameter tree into tag values
// keyed by dotted path ("package.dependencies.production").
// Lists are addressable as a whole, joined with ", ", and
// item by item ("package.licenses.0").
func Flatten(params map[string]any) map[string]string {
	flat := make(map[string]string)

	for key, val := range params {
		flatten(flat, key, val)
	}

	return flat
}

func flatten(flat map[string]string, key string, val any) {
	switch v := val.(type) {
	case nil:
		flat[key] = ""

	case string:
		flat[key] = v

	case map[string]any:
		for k, item := range v {
			flatten(flat, key+"."+k, item)
		}

	case map[string]string:
		for k, item := range v {
			flat[key+"."+k] = item
		}

	case []string:
		items := make([]any, len(v))
		for i, s := range v {
			items[i] = s
		}

		flattenList(flat, key, items)

	case []map[string]any:
		items := make([]any, len(v))
		for i, m := range v {
			items[i] = m
		}

		flattenList(flat, key, items)

	case []any:
		flattenList(flat, key, v)

	default:
		flat[key] = fmt.Sprint(v)
	}
}

func flattenList(flat map[string]string, key string, items []any) {
	var scalars []string

	for i, item := range items {
		flatten(flat, key+"."+strconv.Itoa(i), item)

		switch item.(type) {
		case map[string]any, map[string]string,
			[]any, []string, []map[string]any:
		default:
			scalars = append(scalars, flat[key+"."+strconv.Itoa(i)])
		}
	}

	if len(scalars) == len(items) {
		flat[key] = strings.Join(scalars, listSeparator)
	}
}

// sortedKeys returns the keys of m in byte order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))

	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
