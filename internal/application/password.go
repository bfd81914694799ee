package application

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

var (
	ErrInvalidPasswordHash         = errors.New("invalid password hash format")
	ErrIncompatiblePasswordVersion = errors.New("incompatible password hash version")
)

// Argon2idParams tunes the key derivation used for stored passwords.
type Argon2idParams struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

var DefaultArgon2idParams = Argon2idParams{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

const phcPrefix = "$argon2id$"

// HashPassword hashes password with DefaultArgon2idParams. It is the default
// hasher of AuthService and UserService.
func HashPassword(password string) (string, error) {
	return CreatePasswordHash(password, DefaultArgon2idParams)
}

// CreatePasswordHash returns "$argon2id$v=19$m=..,t=..,p=..$salt$key".
func CreatePasswordHash(password string, params Argon2idParams) (string, error) {
	salt := make([]byte, params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)
	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		phcPrefix, argon2.Version,
		params.Memory, params.Iterations, params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword returns ErrInvalidCredentials on mismatch and
// ErrInvalidPasswordHash when the stored value cannot be decoded.
func VerifyPassword(hashedPassword, password string) error {
	stored, err := decodePasswordHash(hashedPassword)
	if err != nil {
		return err
	}

	candidate := argon2.IDKey([]byte(password), stored.salt,
		stored.params.Iterations, stored.params.Memory, stored.params.Parallelism, stored.params.KeyLength)
	if subtle.ConstantTimeCompare(stored.key, candidate) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}

type decodedHash struct {
	params Argon2idParams
	salt   []byte
	key    []byte
}

func decodePasswordHash(encoded string) (decodedHash, error) {
	if !strings.HasPrefix(encoded, phcPrefix) {
		return decodedHash{}, ErrInvalidPasswordHash
	}
	// version, params, salt, key
	parts := strings.Split(strings.TrimPrefix(encoded, phcPrefix), "$")
	if len(parts) != 4 {
		return decodedHash{}, ErrInvalidPasswordHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[0], "v=%d", &version); err != nil {
		return decodedHash{}, fmt.Errorf("%w: %v", ErrInvalidPasswordHash, err)
	}
	if version != argon2.Version {
		return decodedHash{}, ErrIncompatiblePasswordVersion
	}

	var out decodedHash
	if _, err := fmt.Sscanf(parts[1], "m=%d,t=%d,p=%d", &out.params.Memory, &out.params.Iterations, &out.params.Parallelism); err != nil {
		return decodedHash{}, fmt.Errorf("%w: %v", ErrInvalidPasswordHash, err)
	}

	var err error
	if out.salt, err = base64.RawStdEncoding.DecodeString(parts[2]); err != nil {
		return decodedHash{}, fmt.Errorf("%w: salt: %v", ErrInvalidPasswordHash, err)
	}
	if out.key, err = base64.RawStdEncoding.DecodeString(parts[3]); err != nil {
		return decodedHash{}, fmt.Errorf("%w: key: %v", ErrInvalidPasswordHash, err)
	}
	if len(out.salt) == 0 || len(out.key) == 0 {
		return decodedHash{}, ErrInvalidPasswordHash
	}
	out.params.SaltLength = uint32(len(out.salt))
	out.params.KeyLength = uint32(len(out.key))
	return out, nil
}
