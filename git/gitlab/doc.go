// Package gitlab implements git.Provider for merge requests on GitLab.
package gitlab
