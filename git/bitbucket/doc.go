// Package bitbucket implements git.Provider for pull requests on Bitbucket
// Server through its 1.0 REST API. Repository owners are project keys.
package bitbucket
