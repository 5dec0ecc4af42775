package templating

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/valyala/fasttemplate"

	"github.com/byte4ever/devkit/digester"
)

var (
	// ErrTemplateSyntax is returned for unbalanced or
	// duplicated blocks and unterminated tags.
	ErrTemplateSyntax = errors.New("template syntax error")

	// ErrBlockNotFound is returned when a template has no
	// block with the requested name.
	ErrBlockNotFound = errors.New("block not found")
)

const (
	defaultStartTag = "{{"
	defaultEndTag   = "}}"
)

// Renderer expands the templates of a Loader against
// parameter trees. Tags look like "{{ package.name }}":
// the tag body, spaces trimmed, is looked up among the
// flattened parameters and unknown tags are kept verbatim.
// Blocks are delimited by "{{block NAME}}" and
// "{{endblock}}" and may nest.
//
// A Renderer is safe for concurrent use.
type Renderer struct {
	loader   *Loader
	cache    *Cache
	startTag string
	endTag   string
	blockRe  *regexp.Regexp
}

// NewRenderer returns a Renderer over loader. Compiled
// templates are kept in cache, which may be nil.
func NewRenderer(
	loader *Loader,
	cache *Cache,
) *Renderer {
	r := &Renderer{
		loader:   loader,
		cache:    cache,
		startTag: defaultStartTag,
		endTag:   defaultEndTag,
	}

	r.blockRe = regexp.MustCompile(
		regexp.QuoteMeta(r.startTag) +
			`\s*(?:block\s+([A-Za-z0-9_.-]+)|(endblock))\s*` +
			regexp.QuoteMeta(r.endTag),
	)

	return r
}

// Render expands the template called name. Block markers
// are removed and their content kept in place.
func (r *Renderer) Render(
	name string,
	params map[string]any,
) (string, error) {
	const errCtx = "rendering template"

	tpl, err := r.template(name, "")
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	return tpl.ExecuteFuncString(r.tagFunc(Flatten(params))), nil
}

// RenderBlock expands only the block called block of the
// template called name.
func (r *Renderer) RenderBlock(
	name string,
	block string,
	params map[string]any,
) (string, error) {
	const errCtx = "rendering block"

	tpl, err := r.template(name, block)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	return tpl.ExecuteFuncString(r.tagFunc(Flatten(params))), nil
}

// RenderNamespace renders every template of ns into dir,
// keeping its relative name. Files already holding the
// rendered content are left untouched. Executable
// templates produce executable files. It returns the
// relative names of the files it wrote.
func (r *Renderer) RenderNamespace(
	ns string,
	dir string,
	params map[string]any,
) ([]string, error) {
	const errCtx = "rendering namespace"

	names, err := r.loader.TemplateNames(ns)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	flat := Flatten(params)

	var written []string

	for _, name := range names {
		logical := "@" + ns + "/" + name
		if ns == MainNamespace {
			logical = name
		}

		tpl, err := r.template(logical, "")
		if err != nil {
			return written, fmt.Errorf("%s: %w", errCtx, err)
		}

		mode, err := r.loader.mode(logical)
		if err != nil {
			return written, fmt.Errorf("%s: %w", errCtx, err)
		}

		changed, err := dumpFile(
			filepath.Join(dir, filepath.FromSlash(name)),
			[]byte(tpl.ExecuteFuncString(r.tagFunc(flat))),
			outputPerm(mode),
		)
		if err != nil {
			return written, fmt.Errorf(
				"%s: %s: %w", errCtx, name, err,
			)
		}

		if changed {
			written = append(written, name)
		}
	}

	slog.Debug(
		"rendered namespace",
		"namespace", ns,
		"dir", dir,
		"templates", len(names),
		"written", len(written),
	)

	return written, nil
}

// template returns the compiled template, or one of its
// blocks, from the cache or the loader.
func (r *Renderer) template(
	name string,
	block string,
) (*fasttemplate.Template, error) {
	key := name
	if block != "" {
		key += "#" + block
	}

	if tpl, ok := r.cache.get(key); ok {
		return tpl, nil
	}

	src, err := r.loader.source(name)
	if err != nil {
		return nil, err
	}

	full, blocks, err := r.splitBlocks(string(src))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	body := full

	if block != "" {
		var ok bool

		body, ok = blocks[block]
		if !ok {
			return nil, fmt.Errorf(
				"%s: %w: %q", name, ErrBlockNotFound, block,
			)
		}
	}

	tpl, err := fasttemplate.NewTemplate(
		body, r.startTag, r.endTag,
	)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: %w: %w", name, ErrTemplateSyntax, err,
		)
	}

	r.cache.add(key, tpl)

	return tpl, nil
}

// splitBlocks removes the block markers of src. It returns
// the remaining text and the content of each block.
func (r *Renderer) splitBlocks(
	src string,
) (string, map[string]string, error) {
	type open struct {
		name  string
		start int
	}

	var (
		out   strings.Builder
		stack []open
	)

	blocks := make(map[string]string)
	last := 0

	for _, m := range r.blockRe.FindAllStringSubmatchIndex(src, -1) {
		out.WriteString(src[last:m[0]])
		last = m[1]

		if m[2] >= 0 {
			name := src[m[2]:m[3]]

			if _, dup := blocks[name]; dup {
				return "", nil, fmt.Errorf(
					"%w: duplicate block %q",
					ErrTemplateSyntax, name,
				)
			}

			for _, o := range stack {
				if o.name == name {
					return "", nil, fmt.Errorf(
						"%w: duplicate block %q",
						ErrTemplateSyntax, name,
					)
				}
			}

			stack = append(stack, open{name: name, start: out.Len()})

			continue
		}

		if len(stack) == 0 {
			return "", nil, fmt.Errorf(
				"%w: endblock without block", ErrTemplateSyntax,
			)
		}

		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		blocks[top.name] = out.String()[top.start:]
	}

	if len(stack) > 0 {
		return "", nil, fmt.Errorf(
			"%w: block %q is not closed",
			ErrTemplateSyntax, stack[len(stack)-1].name,
		)
	}

	out.WriteString(src[last:])

	return out.String(), blocks, nil
}

// tagFunc substitutes known tags and writes unknown ones
// back unchanged.
func (r *Renderer) tagFunc(
	flat map[string]string,
) fasttemplate.TagFunc {
	return func(w io.Writer, tag string) (int, error) {
		if v, ok := flat[strings.TrimSpace(tag)]; ok {
			return io.WriteString(w, v)
		}

		return io.WriteString(w, r.startTag+tag+r.endTag)
	}
}

// outputPerm returns the permission of a file rendered from
// a template with the given mode.
func outputPerm(mode fs.FileMode) os.FileMode {
	if mode&0o111 != 0 {
		return 0o755
	}

	return 0o644
}

// dumpFile writes content to path unless the file already
// holds it with the same permission. Parents are created.
// It reports whether the file was written.
func dumpFile(
	path string,
	content []byte,
	perm os.FileMode,
) (bool, error) {
	same, err := digester.Matches(path, content)
	if err != nil {
		return false, err
	}

	if same {
		fi, err := os.Stat(path)
		if err != nil {
			return false, err
		}

		if fi.Mode().Perm() == perm {
			return false, nil
		}

		return true, os.Chmod(path, perm)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec // rendered files are shared project files
		return false, err
	}

	if err := os.WriteFile(path, content, perm); err != nil { //nolint:gosec // rendered files are shared project files
		return false, err
	}

	return true, os.Chmod(path, perm)
}
