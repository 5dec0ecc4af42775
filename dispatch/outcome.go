package dispatch

import (
	"github.com/byte4ever/devkit/git"
)

// State is a step of the per repository sequence.
type State int

// Repository states, in sequence order. NoOpDone,
// DryRunDone and Reconciled are final.
const (
	StateAcquiring State = iota
	StateBranchReady
	StateRendered
	StateClassified
	StateNoOpDone
	StateDryRunDone
	StateCommitted
	StatePushed
	StateReconciled
)

var stateNames = [...]string{
	StateAcquiring:   "acquiring",
	StateBranchReady: "branch ready",
	StateRendered:    "rendered",
	StateClassified:  "classified",
	StateNoOpDone:    "no-op",
	StateDryRunDone:  "dry run",
	StateCommitted:   "committed",
	StatePushed:      "pushed",
	StateReconciled:  "reconciled",
}

// String returns the state name.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}

	return stateNames[s]
}

// Outcome is the result of one repository.
type Outcome struct {
	Repository string

	// State is the last state reached. On failure it is
	// the state the failing step started from.
	State State

	// Changes holds the classified changes, once known.
	Changes git.ChangeSet

	// PullRequest is set once reconciled.
	PullRequest *git.PullRequestInfo

	// Created reports whether the pull request was opened
	// by this run rather than updated.
	Created bool

	Err error
}

// Failed reports whether the repository failed.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Summary gathers the outcomes of a run in repository
// order.
type Summary struct {
	Outcomes []Outcome
}

// Succeeded returns the repositories whose pull request
// was reconciled.
func (s *Summary) Succeeded() []string {
	return s.repositories(StateReconciled)
}

// NoOp returns the repositories that needed no change.
func (s *Summary) NoOp() []string {
	return s.repositories(StateNoOpDone)
}

// DryRun returns the repositories whose changes were
// reported and discarded.
func (s *Summary) DryRun() []string {
	return s.repositories(StateDryRunDone)
}

// Failed returns the outcomes of failed repositories.
func (s *Summary) Failed() []Outcome {
	var failed []Outcome

	for _, o := range s.Outcomes {
		if o.Failed() {
			failed = append(failed, o)
		}
	}

	return failed
}

func (s *Summary) repositories(st State) []string {
	var repos []string

	for _, o := range s.Outcomes {
		if !o.Failed() && o.State == st {
			repos = append(repos, o.Repository)
		}
	}

	return repos
}
