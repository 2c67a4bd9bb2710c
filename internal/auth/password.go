// Package auth implements the credential gate: argon2id password hashing and
// the signed session tokens handed out after a successful sign-in.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Params are the argon2id cost settings. They are encoded into every hash so
// stored hashes stay verifiable after the defaults change.
type Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
}

var DefaultParams = Params{
	Time:    1,
	Memory:  64 * 1024,
	Threads: 4,
	KeyLen:  32,
}

const saltLen = 16

var ErrMalformedHash = errors.New("malformed password hash")

// Hasher hashes and verifies salted passwords.
type Hasher struct {
	params Params
}

func NewHasher(params Params) *Hasher {
	return &Hasher{params: params}
}

// NewSalt returns a fresh random salt, independent of any password.
func (h *Hasher) NewSalt() (string, error) {
	buf := make([]byte, saltLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Hash derives the encoded argon2id hash of salt‖password.
func (h *Hasher) Hash(password, salt string) (string, error) {
	if salt == "" {
		return "", errors.New("empty salt")
	}
	key := derive(h.params, password, salt)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify recomputes the hash of salt‖password with the parameters stored in
// encoded and compares the keys in constant time.
func (h *Hasher) Verify(encoded, salt, password string) (bool, error) {
	params, want, err := decode(encoded)
	if err != nil {
		return false, err
	}
	got := derive(params, password, salt)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

func derive(p Params, password, salt string) []byte {
	return argon2.IDKey([]byte(salt+password), []byte(salt), p.Time, p.Memory, p.Threads, p.KeyLen)
}

func decode(encoded string) (Params, []byte, error) {
	// "", "argon2id", "v=19", "m=..,t=..,p=..", key
	parts := strings.Split(encoded, "$")
	if len(parts) != 5 || parts[1] != "argon2id" {
		return Params{}, nil, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return Params{}, nil, ErrMalformedHash
	}

	var p Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &p.Threads); err != nil {
		return Params{}, nil, ErrMalformedHash
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(key) == 0 {
		return Params{}, nil, ErrMalformedHash
	}
	p.KeyLen = uint32(len(key))
	return p, key, nil
}
