// Package exec provides command execution helpers.
package exec

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strings"
)

// userinfoRe matches the password of a URL userinfo.
var userinfoRe = regexp.MustCompile(
	`([A-Za-z][A-Za-z0-9+.-]*://[^:/@\s]*):[^@/\s]+@`,
)

// Ex executes the named command in the given directory and
// returns its standard output. Pass empty dir to use the
// current working directory. The KEY=VALUE entries of env
// are appended to the current process environment. On
// failure the returned error carries the trimmed standard
// error. Credentials embedded in URLs are redacted from
// the logs and the error.
func Ex(
	ctx context.Context,
	dir string,
	env []string,
	name string,
	arg ...string,
) (string, error) {
	const errCtx = "executing command"

	printable := strings.Join(Redact(arg), " ")

	slog.Debug(
		"executing",
		"dir", dir,
		"cmd", name,
		"args", printable,
	)

	//nolint:gosec // callers pass fixed command names
	cmd := exec.CommandContext(ctx, name, arg...)
	if dir != "" {
		cmd.Dir = dir
	}

	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	slog.Debug(
		"output",
		"stdout", RedactText(stdout.String()),
		"stderr", RedactText(stderr.String()),
	)

	if err != nil {
		return stdout.String(), fmt.Errorf(
			"%s: %s %s: %w: %s",
			errCtx,
			name,
			printable,
			err,
			RedactText(strings.TrimSpace(stderr.String())),
		)
	}

	return stdout.String(), nil
}

// Redact returns a copy of args where URLs carrying user
// credentials have their password replaced.
func Redact(args []string) []string {
	out := make([]string, len(args))

	for i, a := range args {
		out[i] = RedactText(a)
	}

	return out
}

// RedactText replaces the password of every URL found in
// text with "xxxxx".
func RedactText(text string) string {
	return userinfoRe.ReplaceAllString(text, "${1}:xxxxx@")
}
