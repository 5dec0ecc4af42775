package gitlab

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	gl "gitlab.com/gitlab-org/api/client-go"

	"github.com/byte4ever/devkit/git"
)

const defaultHost = "https://gitlab.com"

// Config holds the settings needed to create a GitLab
// merge request provider.
type Config struct {
	// Host is the base URL of the GitLab instance
	// (e.g. "https://gitlab.com").
	Host string
	// HTTPClient is the client used for API calls.
	HTTPClient *http.Client
}

// Provider manages merge requests on GitLab. Projects are
// addressed by their full path, "owner/repo".
//
// Pattern: Strategy -- implements git.Provider.
type Provider struct {
	host       string
	httpClient *http.Client
}

// NewProvider validates cfg and returns a Provider.
func NewProvider(cfg Config) (*Provider, error) {
	const errCtx = "creating gitlab provider"

	host := cfg.Host
	if host == "" {
		host = defaultHost
	}

	p := &Provider{
		host:       host,
		httpClient: cfg.HTTPClient,
	}

	if _, err := p.client(git.Credential{}); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return p, nil
}

// client returns an API client authenticated with cred.
func (p *Provider) client(
	cred git.Credential,
) (*gl.Client, error) {
	opts := []gl.ClientOptionFunc{gl.WithBaseURL(p.host)}

	if p.httpClient != nil {
		opts = append(opts, gl.WithHTTPClient(p.httpClient))
	}

	client, err := gl.NewClient(cred.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("new client: %w", err)
	}

	return client, nil
}

// FindPR returns the first open merge request from
// ref.Head into ref.Base.
func (p *Provider) FindPR(
	ctx context.Context,
	cred git.Credential,
	ref git.PullRequestRef,
) (*git.PullRequestInfo, error) {
	const errCtx = "listing gitlab merge requests"

	client, err := p.client(cred)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	mrs, resp, err := client.MergeRequests.ListProjectMergeRequests(
		projectID(ref),
		&gl.ListProjectMergeRequestsOptions{
			State:        gl.Ptr("opened"),
			SourceBranch: gl.Ptr(ref.Head),
			TargetBranch: gl.Ptr(ref.Base),
		},
		gl.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: %w", errCtx, classify(resp, err),
		)
	}

	if len(mrs) == 0 {
		return nil, nil
	}

	mr := mrs[0]

	return &git.PullRequestInfo{
		Number: int(mr.IID),
		Title:  mr.Title,
		URL:    mr.WebURL,
	}, nil
}

// CreatePR opens a merge request from ref.Head into
// ref.Base.
func (p *Provider) CreatePR(
	ctx context.Context,
	cred git.Credential,
	ref git.PullRequestRef,
	title string,
	body string,
) (*git.PullRequestInfo, error) {
	const errCtx = "creating gitlab merge request"

	client, err := p.client(cred)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	created, resp, err := client.MergeRequests.CreateMergeRequest(
		projectID(ref),
		&gl.CreateMergeRequestOptions{
			Title:        gl.Ptr(title),
			Description:  gl.Ptr(body),
			SourceBranch: gl.Ptr(ref.Head),
			TargetBranch: gl.Ptr(ref.Base),
		},
		gl.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: %w", errCtx, classify(resp, err),
		)
	}

	slog.Info(
		"created merge request",
		"ref", ref.String(),
		"url", created.WebURL,
	)

	return &git.PullRequestInfo{
		Number: int(created.IID),
		Title:  created.Title,
		URL:    created.WebURL,
	}, nil
}

// UpdatePR rewrites the title and description of the
// open merge request from ref.Head into ref.Base.
func (p *Provider) UpdatePR(
	ctx context.Context,
	cred git.Credential,
	ref git.PullRequestRef,
	title string,
	body string,
) (*git.PullRequestInfo, error) {
	const errCtx = "updating gitlab merge request"

	client, err := p.client(cred)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	mrs, resp, err := client.MergeRequests.ListProjectMergeRequests(
		projectID(ref),
		&gl.ListProjectMergeRequestsOptions{
			State:        gl.Ptr("opened"),
			SourceBranch: gl.Ptr(ref.Head),
			TargetBranch: gl.Ptr(ref.Base),
		},
		gl.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: %w", errCtx, classify(resp, err),
		)
	}

	if len(mrs) == 0 {
		return nil, fmt.Errorf(
			"%s: %s: %w", errCtx, ref, git.ErrNotFound,
		)
	}

	updated, resp, err := client.MergeRequests.UpdateMergeRequest(
		projectID(ref),
		mrs[0].IID,
		&gl.UpdateMergeRequestOptions{
			Title:       gl.Ptr(title),
			Description: gl.Ptr(body),
		},
		gl.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: %w", errCtx, classify(resp, err),
		)
	}

	slog.Info(
		"updated merge request",
		"ref", ref.String(),
		"url", updated.WebURL,
	)

	return &git.PullRequestInfo{
		Number: int(updated.IID),
		Title:  updated.Title,
		URL:    updated.WebURL,
	}, nil
}

func projectID(ref git.PullRequestRef) string {
	return ref.Owner + "/" + ref.Repo
}

// classify maps an API failure to the git package
// sentinel errors.
func classify(resp *gl.Response, err error) error {
	var glErr *gl.ErrorResponse

	status := 0

	switch {
	case resp != nil && resp.Response != nil:
		status = resp.StatusCode
	case errors.As(err, &glErr) && glErr.Response != nil:
		status = glErr.Response.StatusCode
	}

	if status == http.StatusUnauthorized {
		return fmt.Errorf(
			"%w: %w", git.ErrAuthenticationRequired, err,
		)
	}

	return fmt.Errorf("%w: %w", git.ErrRemoteRejected, err)
}
