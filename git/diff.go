package git

import (
	"context"
	"fmt"
	"strings"
)

// Diff returns the content diff of one uncommitted path,
// computed with the patience algorithm. File headers and
// hunk range lines are stripped.
//
// Untracked paths are registered with intent-to-add for
// the duration of the call and unregistered afterwards, so
// the tracking state of path is left unchanged.
func (w *WorkingCopy) Diff(
	ctx context.Context,
	path string,
) (result string, retErr error) {
	const errCtx = "diffing file"

	tracked, err := w.isTracked(ctx, path)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	if !tracked {
		if _, err := w.git(
			ctx, "add", "--intent-to-add", "--", path,
		); err != nil {
			return "", fmt.Errorf("%s: %w", errCtx, err)
		}

		defer func() {
			_, resetErr := w.git(
				context.WithoutCancel(ctx),
				"reset", "--quiet", "--", path,
			)
			if resetErr != nil && retErr == nil {
				retErr = fmt.Errorf(
					"%s: untrack %s: %w",
					errCtx, path, resetErr,
				)
			}
		}()
	}

	out, err := w.git(
		ctx, "diff", "--patience", "--no-color",
		"--no-ext-diff", "--", path,
	)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	return stripDiffHeader(out), nil
}

// isTracked reports whether path is present in the index.
func (w *WorkingCopy) isTracked(
	ctx context.Context,
	path string,
) (bool, error) {
	out, err := w.git(ctx, "ls-files", "--", path)
	if err != nil {
		return false, err
	}

	return strings.TrimSpace(out) != "", nil
}

// stripDiffHeader drops everything up to the "+++" file
// marker and the "@@" hunk range lines, keeping the hunk
// bodies.
func stripDiffHeader(diff string) string {
	var body []string

	inBody := false

	for _, line := range strings.Split(
		strings.TrimRight(diff, "\n"), "\n",
	) {
		if !inBody {
			switch {
			case strings.HasPrefix(line, "+++ "):
				inBody = true
			case strings.HasPrefix(line, "Binary files "):
				body = append(body, line)
			}

			continue
		}

		if strings.HasPrefix(line, "@@") {
			continue
		}

		body = append(body, line)
	}

	return strings.Join(body, "\n")
}
