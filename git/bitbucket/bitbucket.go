package bitbucket

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/byte4ever/devkit/git"
)

// Config holds the settings needed to create a
// Bitbucket pull request provider.
type Config struct {
	// BaseURL is the root of the Bitbucket Server
	// instance (e.g. "https://bb.example.com").
	BaseURL string
	// HTTPClient is the client used for API calls.
	// Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// Provider manages pull requests on Bitbucket Server.
// Owners map to project keys and repositories to slugs.
//
// Pattern: Strategy -- implements git.Provider.
type Provider struct {
	baseURL    *url.URL
	httpClient *http.Client
}

type project struct {
	Key string `json:"key,omitempty"`
}

type repository struct {
	Slug    string  `json:"slug,omitempty"`
	Project project `json:"project"`
}

type pullrequestEndpoint struct {
	ID         string     `json:"id,omitempty"`
	Repository repository `json:"repository,omitempty"`
}

type link struct {
	Href string `json:"href"`
}

type links struct {
	Self []link `json:"self,omitempty"`
}

type pullrequest struct {
	ID          int                  `json:"id,omitempty"`
	Version     int                  `json:"version"`
	Title       string               `json:"title,omitempty"`
	Description string               `json:"description,omitempty"`
	State       string               `json:"state,omitempty"`
	Open        bool                 `json:"open"`
	Closed      bool                 `json:"closed"`
	FromRef     *pullrequestEndpoint `json:"fromRef,omitempty"`
	ToRef       *pullrequestEndpoint `json:"toRef,omitempty"`
	Locked      bool                 `json:"locked"`
	Reviewers   []account            `json:"reviewers,omitempty"`
	Links       *links               `json:"links,omitempty"`
}

type pullrequestPage struct {
	Values []pullrequest `json:"values"`
}

type pullrequestUpdate struct {
	Version     int    `json:"version"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type account struct {
	User user `json:"user"`
}

type user struct {
	Name string `json:"name,omitempty"`
}

// NewProvider validates cfg and returns a Provider.
func NewProvider(cfg Config) (*Provider, error) {
	const errCtx = "creating bitbucket provider"

	if cfg.BaseURL == "" {
		return nil, fmt.Errorf(
			"%s: base url must be set", errCtx,
		)
	}

	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf(
			"%s: base url %q has no scheme or host",
			errCtx, cfg.BaseURL,
		)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Provider{
		baseURL:    u,
		httpClient: httpClient,
	}, nil
}

// FindPR returns the first open pull request from
// ref.Head into ref.Base.
func (p *Provider) FindPR(
	ctx context.Context,
	cred git.Credential,
	ref git.PullRequestRef,
) (*git.PullRequestInfo, error) {
	const errCtx = "listing bitbucket pull requests"

	pr, err := p.find(ctx, cred, ref)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	if pr == nil {
		return nil, nil
	}

	return pr.info(), nil
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
	const errCtx = "creating bitbucket pull request"

	repo := repository{
		Slug:    ref.Repo,
		Project: project{Key: ref.Owner},
	}

	in := pullrequest{
		Title:       title,
		Description: body,
		State:       "OPEN",
		Open:        true,
		Closed:      false,
		FromRef: &pullrequestEndpoint{
			ID:         "refs/heads/" + ref.Head,
			Repository: repo,
		},
		ToRef: &pullrequestEndpoint{
			ID:         "refs/heads/" + ref.Base,
			Repository: repo,
		},
		Locked:    false,
		Reviewers: []account{},
	}

	var out pullrequest

	if err := p.do(
		ctx, cred, http.MethodPost,
		p.endpoint(ref, "", nil), &in, &out,
	); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	slog.Info(
		"created pull request",
		"ref", ref.String(),
		"id", out.ID,
	)

	return out.info(), nil
}

// UpdatePR rewrites the title and description of the open
// pull request from ref.Head into ref.Base.
func (p *Provider) UpdatePR(
	ctx context.Context,
	cred git.Credential,
	ref git.PullRequestRef,
	title string,
	body string,
) (*git.PullRequestInfo, error) {
	const errCtx = "updating bitbucket pull request"

	open, err := p.find(ctx, cred, ref)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	if open == nil {
		return nil, fmt.Errorf(
			"%s: %s: %w", errCtx, ref, git.ErrNotFound,
		)
	}

	var out pullrequest

	if err := p.do(
		ctx, cred, http.MethodPut,
		p.endpoint(ref, strconv.Itoa(open.ID), nil),
		&pullrequestUpdate{
			Version:     open.Version,
			Title:       title,
			Description: body,
		},
		&out,
	); err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	slog.Info(
		"updated pull request",
		"ref", ref.String(),
		"id", out.ID,
	)

	return out.info(), nil
}

// find returns the open pull request matching ref, or
// nil.
func (p *Provider) find(
	ctx context.Context,
	cred git.Credential,
	ref git.PullRequestRef,
) (*pullrequest, error) {
	query := url.Values{
		"state":     {"OPEN"},
		"direction": {"OUTGOING"},
		"at":        {"refs/heads/" + ref.Head},
	}

	var page pullrequestPage

	if err := p.do(
		ctx, cred, http.MethodGet,
		p.endpoint(ref, "", query), nil, &page,
	); err != nil {
		return nil, err
	}

	target := "refs/heads/" + ref.Base

	for i := range page.Values {
		pr := &page.Values[i]
		if pr.ToRef != nil && pr.ToRef.ID == target {
			return pr, nil
		}
	}

	return nil, nil
}

// endpoint returns the pull request collection URL of
// ref's repository, or one of its items.
func (p *Provider) endpoint(
	ref git.PullRequestRef,
	item string,
	query url.Values,
) string {
	u := *p.baseURL

	u.Path = strings.TrimSuffix(u.Path, "/") +
		"/rest/api/1.0/projects/" + url.PathEscape(ref.Owner) +
		"/repos/" + url.PathEscape(ref.Repo) +
		"/pull-requests"

	if item != "" {
		u.Path += "/" + item
	}

	u.RawQuery = query.Encode()

	return u.String()
}

// do sends one JSON request and decodes the response
// into out.
func (p *Provider) do(
	ctx context.Context,
	cred git.Credential,
	method string,
	endpoint string,
	in any,
	out any,
) error {
	var body io.Reader

	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}

		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(
		ctx, method, endpoint, body,
	)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	if in != nil {
		req.Header.Set(
			"Content-Type",
			"application/json; charset=utf-8",
		)
	}

	if cred.User != "" {
		req.SetBasicAuth(cred.User, cred.Token)
	} else if cred.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cred.Token)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf(
			"%w: send request: %w", git.ErrRemoteRejected, err,
		)
	}

	defer resp.Body.Close() //nolint:errcheck

	rb, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf(
			"%w: status %d", git.ErrAuthenticationRequired,
			resp.StatusCode,
		)

	case resp.StatusCode < 200 || resp.StatusCode > 299:
		slog.Warn(
			"bitbucket response",
			"status", resp.Status,
			"body", string(rb),
		)

		return fmt.Errorf(
			"%w: unexpected status %d",
			git.ErrRemoteRejected, resp.StatusCode,
		)
	}

	if out == nil || len(rb) == 0 {
		return nil
	}

	if err := json.Unmarshal(rb, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

func (pr *pullrequest) info() *git.PullRequestInfo {
	info := &git.PullRequestInfo{
		Number: pr.ID,
		Title:  pr.Title,
	}

	if pr.Links != nil && len(pr.Links.Self) > 0 {
		info.URL = pr.Links.Self[0].Href
	}

	return info
}
