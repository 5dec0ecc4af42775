package git

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrAuthenticationRequired is returned when a pull
	// request operation has no usable credential.
	ErrAuthenticationRequired = errors.New(
		"authentication required",
	)

	// ErrRemoteRejected is returned when the hosting platform
	// refuses a pull request operation.
	ErrRemoteRejected = errors.New("rejected by remote host")

	// ErrNotFound is returned when updating a pull request
	// that is not open.
	ErrNotFound = errors.New("pull request not found")
)

// Credential authenticates against a hosting platform.
type Credential struct {
	// User is the account name. Platforms using bearer
	// tokens ignore it.
	User string
	// Token is the access token (or password).
	Token string
}

// String hides the token.
func (c Credential) String() string {
	if c.Token == "" {
		return c.User
	}

	return c.User + ":xxxxx"
}

// PullRequestRef identifies the pull request from Head into
// Base on Owner/Repo. At most one can be open at a time.
type PullRequestRef struct {
	Owner string
	Repo  string
	Base  string
	Head  string
}

// String returns "owner/repo base<-head".
func (r PullRequestRef) String() string {
	return fmt.Sprintf(
		"%s/%s %s<-%s", r.Owner, r.Repo, r.Base, r.Head,
	)
}

// PullRequestInfo describes an open pull request.
type PullRequestInfo struct {
	Number int
	Title  string
	URL    string
}

// Pattern: Strategy -- swap git platform without
// changing the reconciliation logic.

// Provider manages pull requests on a git hosting
// platform. Every call receives the credential to use.
type Provider interface {
	// FindPR returns the first open pull request matching
	// ref, or nil when there is none.
	FindPR(
		ctx context.Context,
		cred Credential,
		ref PullRequestRef,
	) (*PullRequestInfo, error)

	// CreatePR opens a pull request for ref.
	CreatePR(
		ctx context.Context,
		cred Credential,
		ref PullRequestRef,
		title string,
		body string,
	) (*PullRequestInfo, error)

	// UpdatePR rewrites the title and body of the open pull
	// request matching ref. It fails with ErrNotFound when
	// there is none.
	UpdatePR(
		ctx context.Context,
		cred Credential,
		ref PullRequestRef,
		title string,
		body string,
	) (*PullRequestInfo, error)
}

// ProviderFuncs adapts plain functions to the Provider
// interface. A nil FindFunc finds nothing; nil CreateFunc
// and UpdateFunc reject the call.
type ProviderFuncs struct {
	FindFunc func(
		ctx context.Context,
		cred Credential,
		ref PullRequestRef,
	) (*PullRequestInfo, error)

	CreateFunc func(
		ctx context.Context,
		cred Credential,
		ref PullRequestRef,
		title string,
		body string,
	) (*PullRequestInfo, error)

	UpdateFunc func(
		ctx context.Context,
		cred Credential,
		ref PullRequestRef,
		title string,
		body string,
	) (*PullRequestInfo, error)
}

// FindPR delegates to FindFunc.
func (f ProviderFuncs) FindPR(
	ctx context.Context,
	cred Credential,
	ref PullRequestRef,
) (*PullRequestInfo, error) {
	if f.FindFunc == nil {
		return nil, nil
	}

	return f.FindFunc(ctx, cred, ref)
}

// CreatePR delegates to CreateFunc.
func (f ProviderFuncs) CreatePR(
	ctx context.Context,
	cred Credential,
	ref PullRequestRef,
	title string,
	body string,
) (*PullRequestInfo, error) {
	if f.CreateFunc == nil {
		return nil, fmt.Errorf(
			"creating pull request: %w", ErrRemoteRejected,
		)
	}

	return f.CreateFunc(ctx, cred, ref, title, body)
}

// UpdatePR delegates to UpdateFunc.
func (f ProviderFuncs) UpdatePR(
	ctx context.Context,
	cred Credential,
	ref PullRequestRef,
	title string,
	body string,
) (*PullRequestInfo, error) {
	if f.UpdateFunc == nil {
		return nil, fmt.Errorf(
			"updating pull request: %w", ErrRemoteRejected,
		)
	}

	return f.UpdateFunc(ctx, cred, ref, title, body)
}

// PullRequest is the pull request identified by one ref on
// one provider.
type PullRequest struct {
	provider Provider
	ref      PullRequestRef
}

// NewPullRequest binds ref to provider.
func NewPullRequest(
	provider Provider,
	ref PullRequestRef,
) *PullRequest {
	return &PullRequest{provider: provider, ref: ref}
}

// Ref returns the identity of the pull request.
func (pr *PullRequest) Ref() PullRequestRef {
	return pr.ref
}

// Exists reports whether the pull request is open.
func (pr *PullRequest) Exists(
	ctx context.Context,
	cred Credential,
) (bool, error) {
	const errCtx = "looking up pull request"

	if cred.Token == "" {
		return false, fmt.Errorf(
			"%s: %w", errCtx, ErrAuthenticationRequired,
		)
	}

	info, err := pr.provider.FindPR(ctx, cred, pr.ref)
	if err != nil {
		return false, fmt.Errorf("%s: %w", errCtx, err)
	}

	return info != nil, nil
}

// Create opens the pull request.
func (pr *PullRequest) Create(
	ctx context.Context,
	cred Credential,
	title string,
	body string,
) (*PullRequestInfo, error) {
	const errCtx = "creating pull request"

	if cred.Token == "" {
		return nil, fmt.Errorf(
			"%s: %w", errCtx, ErrAuthenticationRequired,
		)
	}

	info, err := pr.provider.CreatePR(
		ctx, cred, pr.ref, title, body,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return info, nil
}

// Update rewrites the title and body of the open pull
// request.
func (pr *PullRequest) Update(
	ctx context.Context,
	cred Credential,
	title string,
	body string,
) (*PullRequestInfo, error) {
	const errCtx = "updating pull request"

	if cred.Token == "" {
		return nil, fmt.Errorf(
			"%s: %w", errCtx, ErrAuthenticationRequired,
		)
	}

	info, err := pr.provider.UpdatePR(
		ctx, cred, pr.ref, title, body,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return info, nil
}

// Reconcile updates the open pull request, or creates it
// when none is open. created reports which happened.
func (pr *PullRequest) Reconcile(
	ctx context.Context,
	cred Credential,
	title string,
	body string,
) (info *PullRequestInfo, created bool, err error) {
	exists, err := pr.Exists(ctx, cred)
	if err != nil {
		return nil, false, err
	}

	if exists {
		info, err = pr.Update(ctx, cred, title, body)

		return info, false, err
	}

	info, err = pr.Create(ctx, cred, title, body)

	return info, true, err
}
