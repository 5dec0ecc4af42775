// Package git provides the working copy operations used to synchronize a
// repository and a strategy interface for managing pull requests across
// different git hosting platforms.
//
// WorkingCopy wraps a local clone bound to one remote. Acquire clones or
// updates it; CheckoutSyncBranch forks and publishes the branch changes are
// pushed to; Changes classifies uncommitted paths as new, deleted or modified
// in natural case-insensitive order; Diff, ResetAll, CommitAll and Push
// complete the cycle.
//
// The Provider interface abstracts pull request lookup, creation and update.
// Implementations exist for GitHub, GitLab, and Bitbucket Server in
// sub-packages. PullRequest binds a provider to one (base, head) pair and
// reconciles it: an open pull request is updated, otherwise one is created.
// Credentials are passed to every call.
package git
