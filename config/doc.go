// Package config loads the dispatcher configuration: the organization and
// repositories to update, the account changes are made with, the hosting
// platform and the templates to render.
//
// Values of user.token in the form "%env(NAME)%" are replaced with the
// environment variable NAME. A reference to an unset variable is an error.
package config
