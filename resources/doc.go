// Package resources embeds the default templates: the shared files
// dispatched to repositories and the pull request description.
package resources
