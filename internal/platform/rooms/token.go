package rooms

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// TokenSource generates join credentials. Kept behind an interface so tests
// can substitute a deterministic source.
type TokenSource interface {
	NewToken() (string, error)
}

// CryptoTokenSource generates 32-byte hex tokens from crypto/rand.
type CryptoTokenSource struct{}

func (CryptoTokenSource) NewToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// StaticTokenSource returns pre-seeded tokens in order, for tests.
type StaticTokenSource struct {
	Tokens []string
	next   int
}

func (s *StaticTokenSource) NewToken() (string, error) {
	if s.next >= len(s.Tokens) {
		return "", fmt.Errorf("static token source exhausted after %d tokens", len(s.Tokens))
	}
	t := s.Tokens[s.next]
	s.next++
	return t, nil
}
