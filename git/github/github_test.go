package github_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/devkit/git"
	ghprov "github.com/byte4ever/devkit/git/github"
)

var testRef = git.PullRequestRef{
	Owner: "acme",
	Repo:  "widgets",
	Base:  "main",
	Head:  "dev-kit",
}

var testCred = git.Credential{Token: "tok"}

// fakeGitHub serves the pull request endpoints for
// acme/widgets and keeps one optional open pull request.
type fakeGitHub struct {
	mu      sync.Mutex
	open    map[string]any
	query   string
	auth    string
	edited  map[string]any
	created map[string]any
}

func (f *fakeGitHub) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc(
		"GET /repos/acme/widgets/pulls",
		func(w http.ResponseWriter, r *http.Request) {
			f.mu.Lock()
			defer f.mu.Unlock()

			f.query = r.URL.RawQuery
			f.auth = r.Header.Get("Authorization")

			list := []map[string]any{}
			if f.open != nil {
				list = append(list, f.open)
			}

			writeJSON(w, http.StatusOK, list)
		},
	)

	mux.HandleFunc(
		"POST /repos/acme/widgets/pulls",
		func(w http.ResponseWriter, r *http.Request) {
			f.mu.Lock()
			defer f.mu.Unlock()

			f.created = readJSON(r)
			f.open = map[string]any{
				"number":   12,
				"title":    f.created["title"],
				"html_url": "https://github.com/acme/widgets/pull/12",
			}

			writeJSON(w, http.StatusCreated, f.open)
		},
	)

	mux.HandleFunc(
		"PATCH /repos/acme/widgets/pulls/12",
		func(w http.ResponseWriter, r *http.Request) {
			f.mu.Lock()
			defer f.mu.Unlock()

			f.edited = readJSON(r)
			f.open["title"] = f.edited["title"]

			writeJSON(w, http.StatusOK, f.open)
		},
	)

	return mux
}

func newProvider(
	t *testing.T,
	handler http.Handler,
) *ghprov.Provider {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	pv, err := ghprov.NewProvider(ghprov.Config{
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)

	return pv
}

func TestNewProvider_defaults(t *testing.T) {
	t.Parallel()

	pv, err := ghprov.NewProvider(ghprov.Config{})

	require.NoError(t, err)
	assert.NotNil(t, pv)
}

func TestNewProvider_enterprise(t *testing.T) {
	t.Parallel()

	pv, err := ghprov.NewProvider(ghprov.Config{
		EnterpriseHost: "git.corp.example.com",
	})

	require.NoError(t, err)
	assert.NotNil(t, pv)
}

func TestNewProvider_invalid_base_url(t *testing.T) {
	t.Parallel()

	pv, err := ghprov.NewProvider(ghprov.Config{
		BaseURL: "api.github.com",
	})

	assert.Nil(t, pv)
	assert.ErrorContains(t, err, "no scheme or host")
}

func TestProvider_FindPR_none(t *testing.T) {
	t.Parallel()

	fake := &fakeGitHub{}
	pv := newProvider(t, fake.handler())

	info, err := pv.FindPR(context.Background(), testCred, testRef)

	require.NoError(t, err)
	assert.Nil(t, info)
	assert.Contains(t, fake.query, "state=open")
	assert.Contains(t, fake.query, "head=acme%3Adev-kit")
	assert.Contains(t, fake.query, "base=main")
	assert.Equal(t, "Bearer tok", fake.auth)
}

func TestProvider_create_then_update(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fake := &fakeGitHub{}
	pv := newProvider(t, fake.handler())

	created, err := pv.CreatePR(
		ctx, testCred, testRef, "Sync files", "body one",
	)
	require.NoError(t, err)
	assert.Equal(t, &git.PullRequestInfo{
		Number: 12,
		Title:  "Sync files",
		URL:    "https://github.com/acme/widgets/pull/12",
	}, created)
	assert.Equal(t, "dev-kit", fake.created["head"])
	assert.Equal(t, "main", fake.created["base"])
	assert.Equal(t, "body one", fake.created["body"])

	found, err := pv.FindPR(ctx, testCred, testRef)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, 12, found.Number)

	updated, err := pv.UpdatePR(
		ctx, testCred, testRef, "Sync again", "body two",
	)
	require.NoError(t, err)
	assert.Equal(t, "Sync again", updated.Title)
	assert.Equal(t, "body two", fake.edited["body"])
}

func TestProvider_UpdatePR_not_open(t *testing.T) {
	t.Parallel()

	pv := newProvider(t, (&fakeGitHub{}).handler())

	_, err := pv.UpdatePR(
		context.Background(), testCred, testRef, "t", "b",
	)
	assert.ErrorIs(t, err, git.ErrNotFound)
}

func TestProvider_errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		want   error
	}{
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			want:   git.ErrAuthenticationRequired,
		},
		{
			name:   "validation failed",
			status: http.StatusUnprocessableEntity,
			want:   git.ErrRemoteRejected,
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			want:   git.ErrRemoteRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			pv := newProvider(t, http.HandlerFunc(
				func(w http.ResponseWriter, _ *http.Request) {
					writeJSON(w, tt.status, map[string]any{
						"message": http.StatusText(tt.status),
					})
				},
			))

			_, err := pv.CreatePR(
				context.Background(),
				testCred, testRef, "t", "b",
			)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request) map[string]any {
	b, _ := io.ReadAll(r.Body)

	var m map[string]any

	_ = json.Unmarshal(b, &m)

	return m
}
