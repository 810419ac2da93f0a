package auth

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// AdminSecret is the single shared admin password. It holds either the
// plaintext value or a bcrypt hash of it.
type AdminSecret struct {
	plain      string
	hash       []byte
	failClosed bool
}

// NewAdminSecret builds the secret from configuration. A non-empty hash takes
// precedence over the plaintext password. When neither is set the secret
// accepts everything, unless failClosed is true, in which case it rejects
// everything.
func NewAdminSecret(password, hash string, failClosed bool) *AdminSecret {
	s := &AdminSecret{plain: password, failClosed: failClosed}
	if h := strings.TrimSpace(hash); h != "" {
		s.hash = []byte(h)
		s.plain = ""
	}
	return s
}

// Configured reports whether a password or hash was supplied.
func (s *AdminSecret) Configured() bool {
	return s.plain != "" || len(s.hash) > 0
}

// Check reports whether candidate is the admin password.
func (s *AdminSecret) Check(candidate string) bool {
	switch {
	case len(s.hash) > 0:
		return bcrypt.CompareHashAndPassword(s.hash, []byte(candidate)) == nil
	case s.plain != "":
		return subtle.ConstantTimeCompare([]byte(s.plain), []byte(candidate)) == 1
	default:
		return !s.failClosed
	}
}
