package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/byte4ever/devkit/commitmsg"
	"github.com/byte4ever/devkit/git"
	"github.com/byte4ever/devkit/templating"
)

// ErrRepositoryAcquisition is returned when the working
// copy of a repository cannot be obtained.
var ErrRepositoryAcquisition = errors.New(
	"repository acquisition failed",
)

// Block names of the pull request template.
const (
	titleBlock = "title"
	bodyBlock  = "body"
)

// defaultManifest is read when Config.Manifest is empty.
const defaultManifest = "composer.json"

// Config holds the settings of a dispatch run.
type Config struct {
	// Organization owns every repository.
	Organization string

	// Repositories lists the repository names, processed
	// in order.
	Repositories []string

	// Application identifies the dispatcher. Its ID is the
	// sync branch name.
	Application templating.ApplicationContext

	// Credential authenticates clones, pushes and pull
	// request calls.
	Credential git.Credential

	// AuthorName and AuthorEmail sign the commits.
	AuthorName  string
	AuthorEmail string

	// HostURL is the clone base, e.g. "https://github.com".
	HostURL string

	// DefaultBranch is the branch sync branches fork from
	// and pull requests target. Empty uses the remote
	// default.
	DefaultBranch string

	// CacheDir holds the working copies under
	// "git/<organization>/<repository>".
	CacheDir string

	// Loader provides the templates.
	Loader *templating.Loader

	// Namespace is the template namespace rendered into
	// every repository.
	Namespace string

	// PullRequestTemplate defines the "title" and "body"
	// blocks of pull requests and commits.
	PullRequestTemplate string

	// Manifest is the package manifest path, relative to
	// the repository root.
	Manifest string

	// CacheSize bounds the compiled template cache.
	CacheSize int

	// Parallelism is the number of repositories processed
	// concurrently.
	Parallelism int

	// DryRun reports the changes and discards them.
	DryRun bool

	// Verbosity 1 reports the changed files and 2 their
	// diffs. Dry runs report both.
	Verbosity int

	// Provider manages pull requests. Unused in dry runs.
	Provider git.Provider

	// Reporter receives the progress of each repository.
	// Nil discards it.
	Reporter Reporter

	// Getenv reads the build machine environment. Nil uses
	// os.Getenv.
	Getenv func(string) string
}

// dispatcher processes repositories with one shared
// renderer.
type dispatcher struct {
	cfg      Config
	renderer *templating.Renderer
	contexts []templating.Context
}

// Run dispatches the shared files to every configured
// repository. Failures are isolated per repository and
// returned joined after the batch completes.
func Run(ctx context.Context, cfg Config) (*Summary, error) {
	const errCtx = "dispatching shared files"

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}

	if cfg.Reporter == nil {
		cfg.Reporter = nopReporter{}
	}

	if cfg.Getenv == nil {
		cfg.Getenv = os.Getenv
	}

	if cfg.Manifest == "" {
		cfg.Manifest = defaultManifest
	}

	cache, err := templating.NewCache(cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	defer cache.Purge()

	d := &dispatcher{
		cfg:      cfg,
		renderer: templating.NewRenderer(cfg.Loader, cache),
		contexts: []templating.Context{cfg.Application},
	}

	if travis, ok := templating.NewTravisContext(cfg.Getenv); ok {
		d.contexts = append(d.contexts, travis)
	}

	slog.Info(
		"dispatching shared files",
		"organization", cfg.Organization,
		"repositories", len(cfg.Repositories),
		"parallelism", cfg.Parallelism,
		"dry_run", cfg.DryRun,
	)

	outcomes := make([]Outcome, len(cfg.Repositories))

	// Worker pool with bounded concurrency.
	var wg sync.WaitGroup

	sem := make(chan struct{}, cfg.Parallelism)

	for i, repo := range cfg.Repositories {
		// A slot may free up after cancellation, so the
		// context is checked again once it is acquired.
		acquired := false

		select {
		case sem <- struct{}{}:
			acquired = true
		case <-ctx.Done():
		}

		if ctx.Err() != nil {
			if acquired {
				<-sem
			}

			outcomes[i] = Outcome{
				Repository: repo,
				Err:        ctx.Err(),
			}

			continue
		}

		wg.Add(1)

		go func(i int, repo string) {
			defer wg.Done()
			defer func() { <-sem }()

			// A started repository finishes its sequence.
			outcomes[i] = d.process(
				context.WithoutCancel(ctx), repo,
			)
		}(i, repo)
	}

	wg.Wait()

	summary := &Summary{Outcomes: outcomes}
	cfg.Reporter.Summary(summary)

	var errs []error

	for _, o := range summary.Failed() {
		errs = append(errs, fmt.Errorf(
			"%s: %w", o.Repository, o.Err,
		))
	}

	if len(errs) > 0 {
		return summary, fmt.Errorf(
			"%s: %d of %d repositories failed: %w",
			errCtx, len(errs), len(outcomes), errors.Join(errs...),
		)
	}

	return summary, nil
}

// validate checks the settings Run cannot default.
func validate(cfg Config) error {
	switch {
	case cfg.Organization == "":
		return errors.New("organization is required")
	case cfg.Application.ID == "":
		return errors.New("application id is required")
	case cfg.Loader == nil:
		return errors.New("template loader is required")
	case cfg.Namespace == "":
		return errors.New("template namespace is required")
	case !slices.Contains(cfg.Loader.Namespaces(), cfg.Namespace):
		return fmt.Errorf(
			"%w: %q", templating.ErrUnknownNamespace, cfg.Namespace,
		)
	case cfg.PullRequestTemplate == "":
		return errors.New("pull request template is required")
	case cfg.CacheDir == "":
		return errors.New("cache directory is required")
	case cfg.Provider == nil && !cfg.DryRun:
		return errors.New("pull request provider is required")
	}

	return nil
}

// process runs the full sequence on one repository. The
// returned outcome records the last state reached.
func (d *dispatcher) process(
	ctx context.Context,
	repo string,
) (out Outcome) {
	cfg := d.cfg
	out = Outcome{Repository: repo, State: StateAcquiring}
	rep := cfg.Reporter.Repository(repo)

	defer func() { rep.Finish(out) }()

	fail := func(err error) Outcome {
		out.Err = err

		slog.Error(
			"dispatch failed",
			"repository", repo,
			"state", out.State,
			"error", err,
		)

		return out
	}

	// Step 1: Refresh the working copy.
	rep.Step("Pulling the repository...")

	wc, err := d.acquire(ctx, repo)
	if err != nil {
		return fail(err)
	}

	// Step 2: Prepare the sync branch.
	branch := cfg.Application.ID
	rep.Step(fmt.Sprintf("Preparing the %s branch...", branch))

	if err := wc.CheckoutSyncBranch(ctx, branch); err != nil {
		return fail(err)
	}

	current, err := wc.CurrentBranch(ctx)
	if err != nil {
		return fail(err)
	}

	if current != branch {
		return fail(fmt.Errorf(
			"%s checked out instead of %s", current, branch,
		))
	}

	out.State = StateBranchReady

	// Commits left by an interrupted run are pushed and
	// reconciled even without new changes.
	pending := 0

	if !cfg.DryRun {
		if pending, err = wc.Ahead(ctx); err != nil {
			return fail(err)
		}
	}

	// Step 3: Render the shared files.
	rep.Step("Generating the files...")

	params, err := d.parameters(wc.Dir)
	if err != nil {
		return fail(err)
	}

	if _, err := d.renderer.RenderNamespace(
		cfg.Namespace, wc.Dir, params,
	); err != nil {
		return fail(err)
	}

	out.State = StateRendered

	// Step 4: Classify.
	changes, err := wc.Changes(ctx)
	if err != nil {
		return fail(err)
	}

	out.State = StateClassified
	out.Changes = changes

	slog.Debug(
		"classified changes",
		"repository", repo,
		"new", len(changes.ByStatus(git.StatusNew)),
		"modified", len(changes.ByStatus(git.StatusModified)),
		"deleted", len(changes.ByStatus(git.StatusDeleted)),
	)

	if len(changes) == 0 && pending == 0 {
		rep.Step("No changes are needed.")

		out.State = StateNoOpDone

		return out
	}

	// Step 5: Report.
	if len(changes) > 0 && (cfg.DryRun || cfg.Verbosity >= 1) {
		rep.Changes(changes)
	}

	if cfg.DryRun || cfg.Verbosity >= 2 {
		for _, path := range changes.Paths() {
			diff, err := wc.Diff(ctx, path)
			if err != nil {
				return fail(err)
			}

			rep.Diff(path, diff)
		}
	}

	if cfg.DryRun {
		rep.Step("Resetting the changes...")

		if err := wc.ResetAll(ctx); err != nil {
			return fail(err)
		}

		out.State = StateDryRunDone

		return out
	}

	title, err := d.renderer.RenderBlock(
		cfg.PullRequestTemplate, titleBlock, params,
	)
	if err != nil {
		return fail(err)
	}

	body, err := d.renderer.RenderBlock(
		cfg.PullRequestTemplate, bodyBlock, params,
	)
	if err != nil {
		return fail(err)
	}

	// Step 6: Commit and push.
	rep.Step("Pushing the modified files...")

	if len(changes) > 0 {
		if err := wc.SetAuthor(
			ctx, cfg.AuthorName, cfg.AuthorEmail,
		); err != nil {
			return fail(err)
		}

		if err := wc.CommitAll(
			ctx, commitmsg.Generate(title, changes.Lines()),
		); err != nil {
			return fail(err)
		}
	} else {
		// Report what the pending commit dispatched.
		msg, err := wc.LastCommitMessage(ctx)
		if err != nil {
			return fail(err)
		}

		files := commitmsg.Extract(msg)

		slog.Info(
			"resuming unpushed commits",
			"repository", repo,
			"commits", pending,
			"files", len(files),
		)

		rep.Step(fmt.Sprintf("Resuming %d unpushed commits...", pending))

		for _, line := range files {
			rep.Step("  " + line)
		}
	}

	out.State = StateCommitted

	if err := wc.Push(ctx); err != nil {
		return fail(err)
	}

	out.State = StatePushed

	// Step 7: Reconcile the pull request.
	pr := git.NewPullRequest(cfg.Provider, git.PullRequestRef{
		Owner: cfg.Organization,
		Repo:  repo,
		Base:  wc.DefaultBranch,
		Head:  branch,
	})

	info, created, err := pr.Reconcile(
		ctx, cfg.Credential, title, body,
	)
	if err != nil {
		return fail(err)
	}

	out.State = StateReconciled
	out.PullRequest = info
	out.Created = created

	slog.Info(
		"reconciled pull request",
		"ref", pr.Ref().String(),
		"created", created,
	)

	if created {
		rep.Step("Created the pull request " + info.URL)
	} else {
		rep.Step("Updated the pull request " + info.URL)
	}

	return out
}

// acquire returns the refreshed working copy of repo.
func (d *dispatcher) acquire(
	ctx context.Context,
	repo string,
) (*git.WorkingCopy, error) {
	cfg := d.cfg

	remote, err := git.RemoteURL(
		cfg.HostURL, cfg.Credential, cfg.Organization, repo,
	)
	if err != nil {
		return nil, fmt.Errorf(
			"%w: %w", ErrRepositoryAcquisition, err,
		)
	}

	wc, err := git.Acquire(
		ctx,
		workingCopyDir(cfg.CacheDir, cfg.Organization, repo),
		remote,
		cfg.DefaultBranch,
	)
	if err != nil {
		return nil, fmt.Errorf(
			"%w: %w", ErrRepositoryAcquisition, err,
		)
	}

	return wc, nil
}

// parameters builds the template parameters of the
// repository checked out in dir. The package context is
// read fresh from its manifest and skipped when the
// repository has none.
func (d *dispatcher) parameters(dir string) (map[string]any, error) {
	contexts := d.contexts

	manifest := filepath.Join(dir, filepath.FromSlash(d.cfg.Manifest))

	if _, err := os.Stat(manifest); err != nil {
		slog.Warn(
			"no package manifest",
			"path", manifest,
		)

		return templating.Parameters(contexts...), nil
	}

	pkg, err := templating.NewPackageContext(manifest)
	if err != nil {
		return nil, err
	}

	contexts = append(contexts[:len(contexts):len(contexts)], pkg)

	return templating.Parameters(contexts...), nil
}

// workingCopyDir returns the cache location of the working
// copy of organization/repo.
func workingCopyDir(cacheDir, organization, repo string) string {
	return filepath.Join(cacheDir, "git", organization, repo)
}
