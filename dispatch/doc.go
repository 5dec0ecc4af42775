// Package dispatch propagates a shared set of rendered files to a list of
// repositories. For each repository it refreshes a cached working copy,
// checks out the sync branch, renders the shared templates into it and
// classifies the resulting changes. In dry-run mode the changes are reported
// and discarded; otherwise they are committed, pushed and a pull request is
// opened or updated.
//
// A failing repository never stops the batch. Run returns a Summary of every
// repository together with the joined failures.
package dispatch
