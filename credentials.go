package auth

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const digestScheme = "pbkdf2-sha512"

// PBKDF2Hasher hashes passwords with PBKDF2-SHA512 using a salt and
// iteration count shared across the whole installation. Changing any
// parameter requires a new Version, and digests produced under another
// version fail with ErrDigestVersionMismatch.
type PBKDF2Hasher struct {
	version    string
	salt       []byte
	iterations int
	keyLength  int
}

var _ PasswordHasher = (*PBKDF2Hasher)(nil)

// NewPBKDF2Hasher creates a hasher from credential options
func NewPBKDF2Hasher(cfg CredentialConfig) *PBKDF2Hasher {
	d := DefaultOptions().Credentials
	if cfg.Version == "" {
		cfg.Version = d.Version
	}
	if cfg.Salt == "" {
		cfg.Salt = d.Salt
	}
	if cfg.Iterations <= 0 {
		cfg.Iterations = d.Iterations
	}
	if cfg.KeyLength <= 0 {
		cfg.KeyLength = d.KeyLength
	}
	return &PBKDF2Hasher{
		version:    cfg.Version,
		salt:       []byte(cfg.Salt),
		iterations: cfg.Iterations,
		keyLength:  cfg.KeyLength,
	}
}

// Version returns the parameter version stamped on every digest
func (h *PBKDF2Hasher) Version() string {
	return h.version
}

// HashPassword will generate a password digest
func (h *PBKDF2Hasher) HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}
	key := h.derive(password)
	return digestScheme + "$" + h.version + "$" + hex.EncodeToString(key), nil
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the digest
func (h *PBKDF2Hasher) ComparePasswordAndHash(password, hash string) error {
	parts := strings.Split(hash, "$")
	if len(parts) != 3 || parts[0] != digestScheme {
		return ErrMalformedDigest
	}

	if parts[1] != h.version {
		return ErrDigestVersionMismatch
	}

	stored, err := hex.DecodeString(parts[2])
	if err != nil {
		return ErrMalformedDigest
	}

	if subtle.ConstantTimeCompare(stored, h.derive(password)) != 1 {
		return ErrMismatchedHashAndPassword
	}
	return nil
}

func (h *PBKDF2Hasher) derive(password string) []byte {
	return pbkdf2.Key([]byte(password), h.salt, h.iterations, h.keyLength, sha512.New)
}

var defaultHasher PasswordHasher = NewPBKDF2Hasher(CredentialConfig{})

// HashPassword will generate a password digest with the default parameters
func HashPassword(password string) (string, error) {
	return defaultHasher.HashPassword(password)
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the digest using the default parameters
func ComparePasswordAndHash(password, hash string) error {
	return defaultHasher.ComparePasswordAndHash(password, hash)
}
