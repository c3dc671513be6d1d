// Package digest computes the SHA-256 content digests used for record bytes
// and for sealed artifact content. Digests are lowercase hex without prefix.
package digest

import (
	_ "crypto/sha256"
	"crypto/subtle"
	"fmt"
	"strings"

	godigest "github.com/opencontainers/go-digest"

	certerrors "github.com/adamscao/certserver/internal/errors"
)

// Algorithm is the only digest algorithm in use.
const Algorithm = godigest.SHA256

// Content returns the hex SHA-256 digest of b.
func Content(b []byte) string {
	return Algorithm.FromBytes(b).Encoded()
}

// Validate checks that s is a well-formed hex SHA-256 digest.
func Validate(s string) error {
	if err := godigest.NewDigestFromEncoded(Algorithm, strings.ToLower(s)).Validate(); err != nil {
		return fmt.Errorf("%w: invalid content digest %q: %v", certerrors.ErrParse, s, err)
	}
	return nil
}

// Matches reports whether stored is the digest of b. The comparison is
// constant time and case-insensitive.
func Matches(stored string, b []byte) bool {
	current := Content(b)
	return subtle.ConstantTimeCompare([]byte(strings.ToLower(stored)), []byte(current)) == 1
}
