package templating

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

// MainNamespace holds the paths registered without a
// namespace. Its templates are addressed without the "@ns/"
// prefix.
const MainNamespace = "__main__"

var (
	// ErrUnknownNamespace is returned when a namespace has
	// no registered path.
	ErrUnknownNamespace = errors.New("unknown template namespace")

	// ErrTemplateNotFound is returned when no registered
	// path holds the requested template.
	ErrTemplateNotFound = errors.New("template not found")
)

// Loader locates templates in an fs.FS. Directories of the
// file system are registered under namespaces; a namespace
// may span several directories, searched in registration
// order.
type Loader struct {
	fsys  fs.FS
	paths map[string][]string
}

// NewLoader returns a Loader over fsys with no registered
// path.
func NewLoader(fsys fs.FS) *Loader {
	return &Loader{
		fsys:  fsys,
		paths: make(map[string][]string),
	}
}

// AddPath registers the directory dir under namespace ns.
// An empty ns registers it under MainNamespace.
func (l *Loader) AddPath(dir string, ns string) error {
	const errCtx = "adding template path"

	if ns == "" {
		ns = MainNamespace
	}

	dir = path.Clean(dir)

	fi, err := fs.Stat(l.fsys, dir)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if !fi.IsDir() {
		return fmt.Errorf(
			"%s: %s is not a directory", errCtx, dir,
		)
	}

	l.paths[ns] = append(l.paths[ns], dir)

	return nil
}

// Namespaces returns the registered namespaces, sorted.
func (l *Loader) Namespaces() []string {
	names := make([]string, 0, len(l.paths))

	for ns := range l.paths {
		names = append(names, ns)
	}

	sort.Strings(names)

	return names
}

// TemplateNames returns the names, relative to the
// namespace root and slash separated, of every file found
// under ns. Dot files are included. Names are unique and
// sorted.
func (l *Loader) TemplateNames(ns string) ([]string, error) {
	const errCtx = "listing templates"

	dirs, ok := l.paths[ns]
	if !ok {
		return nil, fmt.Errorf(
			"%s: %w: %q", errCtx, ErrUnknownNamespace, ns,
		)
	}

	seen := make(map[string]struct{})

	var names []string

	for _, dir := range dirs {
		err := fs.WalkDir(
			l.fsys, dir,
			func(p string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}

				if d.IsDir() {
					return nil
				}

				rel := strings.TrimPrefix(
					strings.TrimPrefix(p, dir), "/",
				)
				if dir == "." {
					rel = p
				}

				if _, dup := seen[rel]; !dup {
					seen[rel] = struct{}{}
					names = append(names, rel)
				}

				return nil
			},
		)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}
	}

	sort.Strings(names)

	return names, nil
}

// source returns the content of the template with the
// logical name "@ns/relative/name", or "relative/name" for
// MainNamespace.
func (l *Loader) source(name string) ([]byte, error) {
	const errCtx = "loading template"

	p, _, err := l.resolve(name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	content, err := fs.ReadFile(l.fsys, p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return content, nil
}

// mode returns the file mode of the template called name.
func (l *Loader) mode(name string) (fs.FileMode, error) {
	_, fi, err := l.resolve(name)
	if err != nil {
		return 0, fmt.Errorf("loading template: %w", err)
	}

	return fi.Mode(), nil
}

// resolve returns the path of the first file matching the
// logical name in the directories of its namespace.
func (l *Loader) resolve(name string) (string, fs.FileInfo, error) {
	ns, rel, err := splitName(name)
	if err != nil {
		return "", nil, err
	}

	dirs, ok := l.paths[ns]
	if !ok {
		return "", nil, fmt.Errorf(
			"%w: %q", ErrUnknownNamespace, ns,
		)
	}

	for _, dir := range dirs {
		p := path.Join(dir, rel)

		fi, err := fs.Stat(l.fsys, p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}

		if err != nil {
			return "", nil, err
		}

		if !fi.IsDir() {
			return p, fi, nil
		}
	}

	return "", nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
}

// splitName splits a logical template name into its
// namespace and relative name.
func splitName(name string) (string, string, error) {
	ns, rel := MainNamespace, name

	if strings.HasPrefix(name, "@") {
		var ok bool

		ns, rel, ok = strings.Cut(name[1:], "/")
		if !ok || ns == "" || rel == "" {
			return "", "", fmt.Errorf(
				"%w: malformed name %q",
				ErrTemplateNotFound, name,
			)
		}
	}

	rel = path.Clean(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", "", fmt.Errorf(
			"%w: %q escapes its namespace",
			ErrTemplateNotFound, name,
		)
	}

	return ns, rel, nil
}
