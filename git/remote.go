package git

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// defaultTokenUser is the user name paired with a bare
// token in clone URLs.
const defaultTokenUser = "x-access-token"

// RemoteURL builds the clone URL of owner/repo on the host
// at base (e.g. "https://github.com"), embedding the
// credential when it carries a token. A "file" base
// designates local repositories and never carries one.
func RemoteURL(
	base string,
	cred Credential,
	owner string,
	repo string,
) (string, error) {
	const errCtx = "building remote url"

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	local := u.Scheme == "file"

	if u.Scheme == "" || (u.Host == "" && !local) {
		return "", fmt.Errorf(
			"%s: %q has no scheme or host", errCtx, base,
		)
	}

	if cred.Token != "" && !local {
		user := cred.User
		if user == "" {
			user = defaultTokenUser
		}

		u.User = url.UserPassword(user, cred.Token)
	}

	u.Path = path.Join("/", u.Path, owner, repo)

	return u.String(), nil
}

// sameRemote reports whether two remote locations designate
// the same repository, ignoring credentials and a trailing
// ".git".
func sameRemote(a, b string) bool {
	return normalizeRemote(a) == normalizeRemote(b)
}

// normalizeRemote strips credentials and cosmetic suffixes
// from a remote location.
func normalizeRemote(remote string) string {
	if u, err := url.Parse(remote); err == nil &&
		u.Scheme != "" && u.Host != "" {
		u.User = nil
		remote = u.String()
	} else {
		remote = filepath.Clean(remote)
	}

	remote = strings.TrimSuffix(remote, "/")
	remote = strings.TrimSuffix(remote, ".git")

	return remote
}
