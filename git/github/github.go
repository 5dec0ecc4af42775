package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	gh "github.com/google/go-github/v68/github"

	"github.com/byte4ever/devkit/git"
)

// Config holds the settings needed to create a GitHub
// pull request provider.
type Config struct {
	// EnterpriseHost is an optional GitHub Enterprise
	// hostname (e.g. "git.corp.example.com"). Leave
	// empty for github.com.
	EnterpriseHost string
	// BaseURL overrides the REST API root
	// (e.g. "https://api.github.com/"). It takes
	// precedence over EnterpriseHost.
	BaseURL string
	// HTTPClient is the client used for API calls.
	// Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// Provider manages pull requests on GitHub.
//
// Pattern: Strategy -- implements git.Provider.
type Provider struct {
	cfg     Config
	baseURL *url.URL
}

// NewProvider validates cfg and returns a Provider.
func NewProvider(cfg Config) (*Provider, error) {
	const errCtx = "creating github provider"

	p := &Provider{cfg: cfg}

	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf(
				"%s: base url: %w", errCtx, err,
			)
		}

		if u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf(
				"%s: base url %q has no scheme or host",
				errCtx, cfg.BaseURL,
			)
		}

		if !strings.HasSuffix(u.Path, "/") {
			u.Path += "/"
		}

		p.baseURL = u
	}

	if _, err := p.client(git.Credential{}); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return p, nil
}

// client returns an API client authenticated with cred.
func (p *Provider) client(
	cred git.Credential,
) (*gh.Client, error) {
	client := gh.NewClient(p.cfg.HTTPClient)

	if cred.Token != "" {
		client = client.WithAuthToken(cred.Token)
	}

	switch {
	case p.baseURL != nil:
		u := *p.baseURL
		client.BaseURL = &u

	case p.cfg.EnterpriseHost != "":
		baseURL := "https://" +
			p.cfg.EnterpriseHost + "/api/v3/"
		uploadURL := "https://" +
			p.cfg.EnterpriseHost + "/api/uploads/"

		var err error

		client, err = client.WithEnterpriseURLs(
			baseURL, uploadURL,
		)
		if err != nil {
			return nil, fmt.Errorf(
				"enterprise urls: %w", err,
			)
		}
	}

	return client, nil
}

// FindPR returns the first open pull request from
// ref.Head into ref.Base.
func (p *Provider) FindPR(
	ctx context.Context,
	cred git.Credential,
	ref git.PullRequestRef,
) (*git.PullRequestInfo, error) {
	const errCtx = "listing github pull requests"

	client, err := p.client(cred)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	prs, resp, err := client.PullRequests.List(
		ctx, ref.Owner, ref.Repo,
		&gh.PullRequestListOptions{
			State: "open",
			Head:  ref.Owner + ":" + ref.Head,
			Base:  ref.Base,
		},
	)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: %w", errCtx, classify(resp, err),
		)
	}

	if len(prs) == 0 {
		return nil, nil
	}

	return toInfo(prs[0]), nil
}

// CreatePR opens a pull request from ref.Head into
// ref.Base.
func (p *Provider) CreatePR(
	ctx context.Context,
	cred git.Credential,
	ref git.PullRequestRef,
	title string,
	body string,
) (*git.PullRequestInfo, error) {
	const errCtx = "creating github pull request"

	client, err := p.client(cred)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	created, resp, err := client.PullRequests.Create(
		ctx, ref.Owner, ref.Repo,
		&gh.NewPullRequest{
			Title: gh.Ptr(title),
			Head:  gh.Ptr(ref.Head),
			Base:  gh.Ptr(ref.Base),
			Body:  gh.Ptr(body),
		},
	)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: %w", errCtx, classify(resp, err),
		)
	}

	slog.Info(
		"created pull request",
		"ref", ref.String(),
		"url", created.GetHTMLURL(),
	)

	return toInfo(created), nil
}

// UpdatePR rewrites the title and body of the open pull
// request from ref.Head into ref.Base.
func (p *Provider) UpdatePR(
	ctx context.Context,
	cred git.Credential,
	ref git.PullRequestRef,
	title string,
	body string,
) (*git.PullRequestInfo, error) {
	const errCtx = "updating github pull request"

	open, err := p.FindPR(ctx, cred, ref)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	if open == nil {
		return nil, fmt.Errorf(
			"%s: %s: %w", errCtx, ref, git.ErrNotFound,
		)
	}

	client, err := p.client(cred)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	edited, resp, err := client.PullRequests.Edit(
		ctx, ref.Owner, ref.Repo, open.Number,
		&gh.PullRequest{
			Title: gh.Ptr(title),
			Body:  gh.Ptr(body),
		},
	)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: %w", errCtx, classify(resp, err),
		)
	}

	slog.Info(
		"updated pull request",
		"ref", ref.String(),
		"url", edited.GetHTMLURL(),
	)

	return toInfo(edited), nil
}

// classify maps an API failure to the git package
// sentinel errors.
func classify(resp *gh.Response, err error) error {
	var ghErr *gh.ErrorResponse

	status := 0

	switch {
	case resp != nil && resp.Response != nil:
		status = resp.StatusCode
	case errors.As(err, &ghErr) && ghErr.Response != nil:
		status = ghErr.Response.StatusCode
	}

	if status == http.StatusUnauthorized {
		return fmt.Errorf(
			"%w: %w", git.ErrAuthenticationRequired, err,
		)
	}

	return fmt.Errorf("%w: %w", git.ErrRemoteRejected, err)
}

func toInfo(pr *gh.PullRequest) *git.PullRequestInfo {
	return &git.PullRequestInfo{
		Number: pr.GetNumber(),
		Title:  pr.GetTitle(),
		URL:    pr.GetHTMLURL(),
	}
}
