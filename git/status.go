package git

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/maruel/natural"
)

// ErrUnrecognizedStatus is returned when git reports a file
// state the change classifier does not model (conflicts,
// malformed entries...).
var ErrUnrecognizedStatus = errors.New("unrecognized file status")

// Status is the kind of change a file carries relative to
// the last commit.
type Status string

const (
	// StatusNew marks untracked, added, copied or renamed-to
	// paths.
	StatusNew Status = "new"
	// StatusDeleted marks tracked paths removed from the
	// working tree.
	StatusDeleted Status = "deleted"
	// StatusModified marks tracked paths whose content
	// changed.
	StatusModified Status = "modified"
)

// Change is the status of a single path.
type Change struct {
	Path   string
	Status Status
}

// ChangeSet is the set of uncommitted changes of a working
// copy, sorted by path in natural case-insensitive order.
type ChangeSet []Change

// Paths returns the changed paths in order.
func (cs ChangeSet) Paths() []string {
	paths := make([]string, 0, len(cs))

	for _, c := range cs {
		paths = append(paths, c.Path)
	}

	return paths
}

// ByStatus returns the paths carrying the given status.
func (cs ChangeSet) ByStatus(st Status) []string {
	var paths []string

	for _, c := range cs {
		if c.Status == st {
			paths = append(paths, c.Path)
		}
	}

	return paths
}

// Lines renders each change as "status path".
func (cs ChangeSet) Lines() []string {
	lines := make([]string, 0, len(cs))

	for _, c := range cs {
		lines = append(lines, string(c.Status)+" "+c.Path)
	}

	return lines
}

// parseStatus classifies the output of
// "git status --porcelain -z --untracked-files=all".
//
//nolint:gocyclo // one case per porcelain state
func parseStatus(out string) (ChangeSet, error) {
	const errCtx = "parsing status"

	statuses := make(map[string]Status)

	set := func(path string, st Status) error {
		if prev, ok := statuses[path]; ok && prev != st {
			return fmt.Errorf(
				"%s: %w: %q is both %s and %s",
				errCtx, ErrUnrecognizedStatus, path, prev, st,
			)
		}

		statuses[path] = st

		return nil
	}

	tokens := strings.Split(out, "\x00")

	for i := 0; i < len(tokens); i++ {
		entry := tokens[i]
		if entry == "" {
			continue
		}

		if len(entry) < 4 || entry[2] != ' ' {
			return nil, fmt.Errorf(
				"%s: %w: malformed entry %q",
				errCtx, ErrUnrecognizedStatus, entry,
			)
		}

		code, path := entry[:2], entry[3:]
		x, y := code[0], code[1]

		var err error

		switch {
		case code == "??":
			err = set(path, StatusNew)

		case isUnmerged(code):
			err = fmt.Errorf(
				"%s: %w: %q on %q",
				errCtx, ErrUnrecognizedStatus, code, path,
			)

		case x == 'R' || x == 'C':
			// The source path follows as its own token.
			if i+1 >= len(tokens) || tokens[i+1] == "" {
				return nil, fmt.Errorf(
					"%s: %w: missing source of %q",
					errCtx, ErrUnrecognizedStatus, path,
				)
			}

			i++

			if x == 'R' {
				err = set(tokens[i], StatusDeleted)
			}

			if err == nil && y != 'D' {
				err = set(path, StatusNew)
			}

		case x == 'A' && isContentState(y):
			err = set(path, StatusNew)

		case x == 'D' && y == ' ',
			y == 'D' && isContentState(x):
			err = set(path, StatusDeleted)

		case isContentState(x) && isContentState(y):
			err = set(path, StatusModified)

		default:
			err = fmt.Errorf(
				"%s: %w: %q on %q",
				errCtx, ErrUnrecognizedStatus, code, path,
			)
		}

		if err != nil {
			return nil, err
		}
	}

	changes := make(ChangeSet, 0, len(statuses))

	for path, st := range statuses {
		changes = append(changes, Change{Path: path, Status: st})
	}

	sort.Slice(changes, func(i, j int) bool {
		return pathLess(changes[i].Path, changes[j].Path)
	})

	return changes, nil
}

// isUnmerged reports whether code is one of the porcelain
// conflict states.
func isUnmerged(code string) bool {
	switch code {
	case "DD", "AU", "UD", "UA", "DU", "AA", "UU":
		return true
	default:
		return false
	}
}

// isContentState reports whether c is a porcelain column
// value meaning "unchanged" or "content changed".
func isContentState(c byte) bool {
	return c == ' ' || c == 'M' || c == 'T'
}

// pathLess orders paths naturally, ignoring case. Paths
// differing only by case fall back to byte order so the
// result stays deterministic.
func pathLess(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	if la != lb {
		return natural.Less(la, lb)
	}

	return a < b
}
