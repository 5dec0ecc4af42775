// Command devkit dispatches the shared files of an
// organization to its repositories and opens a pull request
// on each repository that needs an update.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/byte4ever/devkit/config"
	"github.com/byte4ever/devkit/dispatch"
	"github.com/byte4ever/devkit/git"
	"github.com/byte4ever/devkit/git/bitbucket"
	"github.com/byte4ever/devkit/git/github"
	"github.com/byte4ever/devkit/git/gitlab"
	"github.com/byte4ever/devkit/resources"
	"github.com/byte4ever/devkit/templating"
)

const (
	defaultConfigFile = "devkit.yaml"
	defaultEnvFile    = ".env"
	cacheDirName      = "devkit"
)

func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)

	err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx)

	stop()

	if err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

// newRootCmd returns the devkit command tree.
func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var verbosity int

	root := &cobra.Command{
		Use:           "devkit",
		Short:         "Dispatch shared files across repositories",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			setupLogging(stderr, verbosity)
		},
	}

	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().CountVarP(
		&verbosity, "verbose", "v",
		"Increase verbosity (-v changed files, -vv diffs, -vvv debug logs)",
	)

	root.AddCommand(
		newDispatchCmd(&verbosity),
		newRenderCmd(),
	)

	return root
}

// setupLogging installs the default logger. Three or more
// -v enable debug logs.
func setupLogging(w io.Writer, verbosity int) {
	level := slog.LevelWarn

	switch {
	case verbosity >= 3:
		level = slog.LevelDebug
	case verbosity >= 1:
		level = slog.LevelInfo
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(
		w, &slog.HandlerOptions{Level: level},
	)))
}

type dispatchFlags struct {
	configFile string
	envFile    string
	cacheDir   string
	dryRun     bool
}

func newDispatchCmd(verbosity *int) *cobra.Command {
	var f dispatchFlags

	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Dispatch the shared files to every configured repository",
		Long: `Render the shared templates into every configured repository, ` +
			`commit the changes on the sync branch and open or update a pull request.

With --dry-run the changes are only reported and then discarded. ` +
			`Nothing is committed and no pull request is touched, but a sync ` +
			`branch missing on the remote is still created there.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDispatch(cmd, f, *verbosity)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(
		&f.dryRun, "dry-run", false,
		"Only show the modifications which would be applied to the files "+
			"(a missing sync branch is still published)",
	)
	flags.StringVarP(
		&f.configFile, "config", "c", defaultConfigFile,
		"Path to the configuration file",
	)
	flags.StringVar(
		&f.envFile, "env-file", "",
		"Path to a .env file loaded before the configuration",
	)
	flags.StringVar(
		&f.cacheDir, "cache-dir", "",
		"Directory holding the working copies (default: user cache dir)",
	)

	return cmd
}

func runDispatch(
	cmd *cobra.Command,
	f dispatchFlags,
	verbosity int,
) error {
	const errCtx = "running dispatch"

	if err := loadEnv(f.envFile); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	cfg, err := config.Load(f.configFile)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	cacheDir, err := resolveCacheDir(f.cacheDir)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	loader, err := resources.NewLoader(cfg.Templates.Path)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	var provider git.Provider

	if !f.dryRun {
		if provider, err = newProvider(cfg.Host); err != nil {
			return fmt.Errorf("%s: %w", errCtx, err)
		}
	}

	_, err = dispatch.Run(cmd.Context(), dispatch.Config{
		Organization: cfg.Organization.Name,
		Repositories: cfg.Repositories,
		Application: templating.ApplicationContext{
			ID:    cfg.Application.ID,
			Title: cfg.Application.Name,
		},
		Credential: git.Credential{
			User:  cfg.User.Name,
			Token: cfg.User.Token,
		},
		AuthorName:          cfg.User.RealName,
		AuthorEmail:         cfg.User.Email,
		HostURL:             cfg.Host.URL,
		DefaultBranch:       cfg.DefaultBranch,
		CacheDir:            cacheDir,
		Loader:              loader,
		Namespace:           cfg.Templates.Namespace,
		PullRequestTemplate: cfg.Templates.PullRequest,
		Manifest:            cfg.Templates.Manifest,
		CacheSize:           cfg.Templates.CacheSize,
		Parallelism:         cfg.Parallelism,
		DryRun:              f.dryRun,
		Verbosity:           verbosity,
		Provider:            provider,
		Reporter:            dispatch.NewConsoleReporter(cmd.OutOrStdout()),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

// loadEnv loads path into the process environment. With an
// empty path a .env file of the working directory is loaded
// when present.
func loadEnv(path string) error {
	if path == "" {
		if _, err := os.Stat(defaultEnvFile); err != nil {
			return nil //nolint:nilerr // optional file
		}

		path = defaultEnvFile
	}

	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading env file %s: %w", path, err)
	}

	slog.Debug("loaded env file", "path", path)

	return nil
}

// resolveCacheDir returns dir, or the devkit directory of
// the user cache when dir is empty.
func resolveCacheDir(dir string) (string, error) {
	if dir != "" {
		return filepath.Abs(dir)
	}

	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("resolving cache dir: %w", err)
	}

	return filepath.Join(base, cacheDirName), nil
}

// newProvider creates the git.Provider of the configured
// host. Pattern: Factory -- selects platform
// implementation at runtime.
func newProvider(host config.Host) (git.Provider, error) {
	const errCtx = "creating git provider"

	var (
		p   git.Provider
		err error
	)

	switch host.Kind {
	case config.HostGitHub:
		gc := github.Config{BaseURL: host.API}

		if host.API == "" {
			u, parseErr := url.Parse(host.URL)
			if parseErr == nil && u.Host != "github.com" {
				gc.EnterpriseHost = u.Host
			}
		}

		p, err = github.NewProvider(gc)

	case config.HostGitLab:
		gc := gitlab.Config{Host: host.URL}
		if host.API != "" {
			gc.Host = host.API
		}

		p, err = gitlab.NewProvider(gc)

	case config.HostBitbucket:
		bc := bitbucket.Config{BaseURL: host.URL}
		if host.API != "" {
			bc.BaseURL = host.API
		}

		p, err = bitbucket.NewProvider(bc)

	default:
		err = fmt.Errorf("unknown host kind %q", host.Kind)
	}

	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return p, nil
}

type renderFlags struct {
	repository string
	output     string
	templates  string
	namespace  string
	manifest   string
}

func newRenderCmd() *cobra.Command {
	var f renderFlags

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render the shared files of one repository",
		Long: `Render the shared templates with the package manifest of a ` +
			`local repository and write them to an output directory. ` +
			`Nothing is committed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRender(cmd, f)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(
		&f.repository, "repository", "r", ".",
		"Local repository holding the package manifest",
	)
	flags.StringVarP(
		&f.output, "output", "o", "",
		"Output directory (default: the repository)",
	)
	flags.StringVar(
		&f.templates, "templates", "",
		"Template directory (default: embedded templates)",
	)
	flags.StringVar(
		&f.namespace, "namespace", config.DefaultNamespace,
		"Template namespace to render",
	)
	flags.StringVar(
		&f.manifest, "manifest", config.DefaultManifest,
		"Package manifest path, relative to the repository",
	)

	return cmd
}

func runRender(cmd *cobra.Command, f renderFlags) error {
	const errCtx = "running render"

	loader, err := resources.NewLoader(f.templates)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	contexts := []templating.Context{
		templating.ApplicationContext{
			ID:    config.DefaultApplicationID,
			Title: config.DefaultApplicationName,
		},
	}

	if travis, ok := templating.NewTravisContext(os.Getenv); ok {
		contexts = append(contexts, travis)
	}

	manifest := filepath.Join(f.repository, f.manifest)

	pkg, err := templating.NewPackageContext(manifest)

	switch {
	case err == nil:
		contexts = append(contexts, pkg)
	case errors.Is(err, os.ErrNotExist):
		slog.Warn("no package manifest", "path", manifest)
	default:
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	output := f.output
	if output == "" {
		output = f.repository
	}

	written, err := templating.NewRenderer(loader, nil).RenderNamespace(
		f.namespace, output, templating.Parameters(contexts...),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	for _, name := range written {
		cmd.Println(filepath.Join(output, name))
	}

	return nil
}
