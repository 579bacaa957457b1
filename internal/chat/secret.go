package chat

import (
	"crypto/subtle"

	"golang.org/x/crypto/bcrypt"
)

// Secret checks the password line a client submits during the handshake.
type Secret interface {
	Verify(input string) bool
}

// PlainSecret matches the trimmed input exactly.
type PlainSecret string

func (s PlainSecret) Verify(input string) bool {
	return subtle.ConstantTimeCompare([]byte(s), []byte(input)) == 1
}

// BcryptSecret matches input against a bcrypt hash of the shared password.
type BcryptSecret []byte

func (s BcryptSecret) Verify(input string) bool {
	return bcrypt.CompareHashAndPassword(s, []byte(input)) == nil
}
