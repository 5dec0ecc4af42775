// Package github implements git.Provider for pull requests on GitHub
// (cloud or enterprise). A client is built per call from the credential
// it receives. Set EnterpriseHost for GitHub Enterprise installations.
package github
