// Package commitmsg generates and parses the commit messages of dispatch
// commits. The changed files of a commit are listed between marker lines so a
// later run can tell which files a pending commit carries.
package commitmsg
