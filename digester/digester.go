package digester

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
)

// CalculateDigest computes the SHA256 hex digest of the file at
// path. Returns empty string with no error if the file does not
// exist.
func CalculateDigest(path string) (result string, retErr error) {
	const errCtx = "calculating digest"

	fi, err := os.Open(path) //nolint:gosec // path is caller-provided by design
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}

	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	defer func() {
		if closeErr := fi.Close(); closeErr != nil && retErr == nil {
			retErr = fmt.Errorf("%s: %w", errCtx, closeErr)
		}
	}()

	ha := sha256.New()

	if _, err := io.Copy(ha, fi); err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	return hex.EncodeToString(ha.Sum(nil)), nil
}

// DigestBytes returns the SHA256 hex digest of content.
func DigestBytes(content []byte) string {
	sum := sha256.Sum256(content)

	return hex.EncodeToString(sum[:])
}

// Matches reports whether the file at path exists and holds
// exactly content.
func Matches(path string, content []byte) (bool, error) {
	const errCtx = "matching digest"

	calc, err := CalculateDigest(path)
	if err != nil {
		return false, fmt.Errorf("%s: %w", errCtx, err)
	}

	if calc == "" {
		return false, nil
	}

	return calc == DigestBytes(content), nil
}
