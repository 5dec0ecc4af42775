package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/byte4ever/devkit/exec"
)

var (
	// ErrRemoteUnreachable is returned when the remote cannot
	// be cloned or pulled.
	ErrRemoteUnreachable = errors.New("remote unreachable")

	// ErrLocalPathConflict is returned when the working copy
	// directory exists but is not a clone of the requested
	// remote.
	ErrLocalPathConflict = errors.New("local path conflict")

	// ErrNothingToCommit is returned by CommitAll on a clean
	// working copy.
	ErrNothingToCommit = errors.New("nothing to commit")
)

// fallbackBranch is used when the remote does not advertise
// its default branch.
const fallbackBranch = "main"

// gitEnv keeps git non-interactive and its output stable.
var gitEnv = []string{
	"GIT_TERMINAL_PROMPT=0",
	"LC_ALL=C",
}

// WorkingCopy is a local clone bound to one remote. Create
// with Acquire.
type WorkingCopy struct {
	// Dir is the filesystem location of the clone.
	Dir string
	// RemoteName is the name of the bound remote.
	RemoteName string
	// DefaultBranch is the branch sync branches fork from.
	DefaultBranch string
}

// Acquire returns an up-to-date working copy of remoteURL in
// dir. The remote is cloned when dir does not exist. The
// default branch is then checked out and pulled. Pass an
// empty defaultBranch to use the one advertised by the
// remote.
func Acquire(
	ctx context.Context,
	dir string,
	remoteURL string,
	defaultBranch string,
) (*WorkingCopy, error) {
	const errCtx = "acquiring working copy"

	wc := &WorkingCopy{
		Dir:           dir,
		RemoteName:    "origin",
		DefaultBranch: defaultBranch,
	}

	_, err := os.Stat(dir)

	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := wc.clone(ctx, remoteURL); err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}

	case err != nil:
		return nil, fmt.Errorf("%s: %w", errCtx, err)

	default:
		if err := wc.bind(ctx, remoteURL); err != nil {
			return nil, fmt.Errorf("%s: %w", errCtx, err)
		}
	}

	if wc.DefaultBranch == "" {
		wc.DefaultBranch = wc.detectDefaultBranch(ctx)
	}

	if _, err := wc.git(
		ctx, "checkout", "--quiet", wc.DefaultBranch, "--",
	); err != nil {
		return nil, fmt.Errorf(
			"%s: checkout %s: %w",
			errCtx, wc.DefaultBranch, err,
		)
	}

	if err := wc.Pull(ctx); err != nil {
		return nil, fmt.Errorf(
			"%s: %w: %w", errCtx, ErrRemoteUnreachable, err,
		)
	}

	return wc, nil
}

// clone clones remoteURL into the working copy directory,
// creating its parents.
func (w *WorkingCopy) clone(
	ctx context.Context,
	remoteURL string,
) error {
	const errCtx = "cloning"

	if err := os.MkdirAll(
		filepath.Dir(w.Dir), 0o750,
	); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if _, err := exec.Ex(
		ctx, "", gitEnv, "git",
		"clone", "--quiet",
		"--origin", w.RemoteName,
		remoteURL, w.Dir,
	); err != nil {
		return fmt.Errorf(
			"%s: %w: %w", errCtx, ErrRemoteUnreachable, err,
		)
	}

	return nil
}

// bind checks that the existing directory is the top level
// of a clone of remoteURL. A credential change in the URL
// is written back to the remote configuration.
func (w *WorkingCopy) bind(
	ctx context.Context,
	remoteURL string,
) error {
	const errCtx = "checking existing clone"

	top, err := w.git(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return fmt.Errorf(
			"%s: %w: %s is not a git working copy",
			errCtx, ErrLocalPathConflict, w.Dir,
		)
	}

	if !samePath(strings.TrimSpace(top), w.Dir) {
		return fmt.Errorf(
			"%s: %w: %s is nested in %s",
			errCtx, ErrLocalPathConflict,
			w.Dir, strings.TrimSpace(top),
		)
	}

	current, err := w.git(
		ctx, "config", "--get",
		"remote."+w.RemoteName+".url",
	)
	if err != nil {
		return fmt.Errorf(
			"%s: %w: no %s remote",
			errCtx, ErrLocalPathConflict, w.RemoteName,
		)
	}

	current = strings.TrimSpace(current)

	if !sameRemote(current, remoteURL) {
		return fmt.Errorf(
			"%s: %w: bound to %s",
			errCtx, ErrLocalPathConflict,
			exec.Redact([]string{current})[0],
		)
	}

	if current != remoteURL {
		if _, err := w.git(
			ctx, "remote", "set-url", w.RemoteName, remoteURL,
		); err != nil {
			return fmt.Errorf("%s: %w", errCtx, err)
		}
	}

	return nil
}

// detectDefaultBranch reads the branch the remote HEAD
// points to.
func (w *WorkingCopy) detectDefaultBranch(
	ctx context.Context,
) string {
	out, err := w.git(
		ctx, "symbolic-ref", "--quiet", "--short",
		"refs/remotes/"+w.RemoteName+"/HEAD",
	)
	if err != nil {
		return fallbackBranch
	}

	branch := strings.TrimPrefix(
		strings.TrimSpace(out), w.RemoteName+"/",
	)
	if branch == "" {
		return fallbackBranch
	}

	return branch
}

// SetAuthor sets the committer identity of the working
// copy.
func (w *WorkingCopy) SetAuthor(
	ctx context.Context,
	name string,
	email string,
) error {
	const errCtx = "setting author"

	if _, err := w.git(
		ctx, "config", "--local", "user.name", name,
	); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if _, err := w.git(
		ctx, "config", "--local", "user.email", email,
	); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

// HasRemoteBranch reports whether the bound remote has a
// branch called name.
func (w *WorkingCopy) HasRemoteBranch(
	ctx context.Context,
	name string,
) (bool, error) {
	const errCtx = "looking up remote branch"

	ref := "refs/remotes/" + w.RemoteName + "/" + name

	out, err := w.git(
		ctx, "for-each-ref", "--format=%(refname)", ref,
	)
	if err != nil {
		return false, fmt.Errorf("%s: %w", errCtx, err)
	}

	// for-each-ref also matches refs below ref.
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == ref {
			return true, nil
		}
	}

	return false, nil
}

// CheckoutSyncBranch checks out the branch called name. An
// existing remote branch is tracked and fast-forwarded. A
// missing one is forked from the default branch and
// published right away so pull requests can target it.
func (w *WorkingCopy) CheckoutSyncBranch(
	ctx context.Context,
	name string,
) error {
	const errCtx = "checking out sync branch"

	exists, err := w.HasRemoteBranch(ctx, name)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if exists {
		if _, err := w.git(
			ctx, "checkout", "--quiet", name, "--",
		); err != nil {
			return fmt.Errorf("%s: %w", errCtx, err)
		}

		if _, err := w.git(
			ctx, "merge", "--quiet", "--ff-only",
			w.RemoteName+"/"+name,
		); err != nil {
			return fmt.Errorf("%s: %w", errCtx, err)
		}

		return nil
	}

	if _, err := w.git(
		ctx, "checkout", "--quiet", "-B", name, w.DefaultBranch,
	); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if _, err := w.git(
		ctx, "push", "--quiet",
		"--set-upstream", w.RemoteName, name,
	); err != nil {
		return fmt.Errorf("%s: publish: %w", errCtx, err)
	}

	return nil
}

// Changes returns the tracked and untracked changes since
// the last commit.
func (w *WorkingCopy) Changes(
	ctx context.Context,
) (ChangeSet, error) {
	const errCtx = "listing changes"

	out, err := w.git(
		ctx, "status", "--porcelain", "-z",
		"--untracked-files=all",
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	changes, err := parseStatus(out)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return changes, nil
}

// HasChanges reports whether Changes is non-empty.
func (w *WorkingCopy) HasChanges(
	ctx context.Context,
) (bool, error) {
	changes, err := w.Changes(ctx)
	if err != nil {
		return false, err
	}

	return len(changes) > 0, nil
}

// ResetAll discards every uncommitted change, including
// untracked files and directories.
func (w *WorkingCopy) ResetAll(ctx context.Context) error {
	const errCtx = "resetting working copy"

	if _, err := w.git(
		ctx, "reset", "--hard", "--quiet",
	); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if _, err := w.git(
		ctx, "clean", "-d", "--force", "--quiet",
	); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

// CommitAll stages every change and commits it with
// message.
func (w *WorkingCopy) CommitAll(
	ctx context.Context,
	message string,
) error {
	const errCtx = "committing changes"

	changed, err := w.HasChanges(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if !changed {
		return fmt.Errorf("%s: %w", errCtx, ErrNothingToCommit)
	}

	if _, err := w.git(ctx, "add", "--all", "."); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	if _, err := w.git(
		ctx, "commit", "--quiet", "--message", message,
	); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

// Pull fast-forwards the current branch from its upstream
// and prunes deleted remote branches.
func (w *WorkingCopy) Pull(ctx context.Context) error {
	const errCtx = "pulling"

	if _, err := w.git(
		ctx, "pull", "--quiet", "--ff-only", "--prune",
	); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

// Push pushes the current branch to its upstream.
func (w *WorkingCopy) Push(ctx context.Context) error {
	const errCtx = "pushing"

	if _, err := w.git(ctx, "push", "--quiet"); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

// Ahead returns the number of commits on the current branch
// missing from its upstream. It is 0 when no upstream is
// configured.
func (w *WorkingCopy) Ahead(ctx context.Context) (int, error) {
	const errCtx = "counting unpushed commits"

	if _, err := w.git(
		ctx, "rev-parse", "--abbrev-ref", "@{upstream}",
	); err != nil {
		return 0, nil //nolint:nilerr // no upstream
	}

	out, err := w.git(
		ctx, "rev-list", "--count", "@{upstream}..HEAD",
	)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", errCtx, err)
	}

	count, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", errCtx, err)
	}

	return count, nil
}

// CurrentBranch returns the name of the checked out branch.
func (w *WorkingCopy) CurrentBranch(
	ctx context.Context,
) (string, error) {
	const errCtx = "reading current branch"

	out, err := w.git(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	return strings.TrimSpace(out), nil
}

// LastCommitMessage returns the most recent commit message
// on the current branch.
func (w *WorkingCopy) LastCommitMessage(
	ctx context.Context,
) (string, error) {
	const errCtx = "reading last commit message"

	out, err := w.git(ctx, "log", "-1", "--pretty=%B")
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	return strings.TrimSpace(out), nil
}

// git runs a git subcommand inside the working copy.
func (w *WorkingCopy) git(
	ctx context.Context,
	args ...string,
) (string, error) {
	return exec.Ex(ctx, w.Dir, gitEnv, "git", args...)
}

// samePath reports whether both paths resolve to the same
// location.
func samePath(a, b string) bool {
	ra, err := filepath.EvalSymlinks(a)
	if err != nil {
		ra = filepath.Clean(a)
	}

	rb, err := filepath.EvalSymlinks(b)
	if err != nil {
		rb = filepath.Clean(b)
	}

	return ra == rb
}
