// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 YouChat Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Supported password hashing algorithms.
const (
	AlgorithmArgon2id = "argon2id"
	AlgorithmBcrypt   = "bcrypt"
)

// OWASP-recommended argon2id parameters.
const (
	argon2Time    = 1         // iterations
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4         // parallelism
	argon2SaltLen = 16        // salt length in bytes
	argon2KeyLen  = 32        // output length in bytes
)

// bcryptMaxPasswordBytes is the input limit of the bcrypt algorithm.
const bcryptMaxPasswordBytes = 72

// PasswordEncoder encodes passwords with a salted one-way function and checks
// candidates against stored hashes. Matches is the only valid equality test.
type PasswordEncoder interface {
	// Encode produces a salted hash of the password. Encoding the same
	// password twice yields different hashes.
	Encode(password string) (string, error)

	// Matches checks a candidate against an encoded hash.
	// Returns (true, nil) on match, (false, nil) on mismatch, or an error
	// when the hash cannot be parsed.
	Matches(password, encodedHash string) (bool, error)
}

// Argon2Params tunes the argon2id cost.
type Argon2Params struct {
	Time    uint32
	Memory  uint32
	Threads uint8
}

// DefaultArgon2Params returns the OWASP-recommended parameters.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{Time: argon2Time, Memory: argon2Memory, Threads: argon2Threads}
}

// Argon2idEncoder implements PasswordEncoder using argon2id.
type Argon2idEncoder struct {
	params Argon2Params
}

// NewArgon2idEncoder creates a new Argon2idEncoder.
func NewArgon2idEncoder(params Argon2Params) *Argon2idEncoder {
	return &Argon2idEncoder{params: params}
}

// Encode produces an argon2id hash of the password in PHC string format.
func (e *Argon2idEncoder) Encode(password string) (string, error) {
	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	hash := argon2.IDKey([]byte(password), salt, e.params.Time, e.params.Memory, e.params.Threads, argon2KeyLen)

	// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		e.params.Memory,
		e.params.Time,
		e.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// Matches checks if the password matches the argon2id hash.
func (e *Argon2idEncoder) Matches(password, encodedHash string) (bool, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash format")
	}

	if parts[1] != AlgorithmArgon2id {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	expectedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	if threads == 0 || threads > 255 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("threads value %d out of range", threads)
	}

	keyLen := len(expectedHash)
	if keyLen <= 0 || keyLen > 1<<30 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash key length: %d", keyLen)
	}

	computedHash := argon2.IDKey([]byte(password), salt, time, memory, uint8(threads), uint32(keyLen))

	return subtle.ConstantTimeCompare(computedHash, expectedHash) == 1, nil
}

// BcryptEncoder implements PasswordEncoder using bcrypt.
type BcryptEncoder struct {
	cost int
}

// NewBcryptEncoder creates a BcryptEncoder. A cost outside bcrypt's accepted
// range falls back to bcrypt.DefaultCost.
func NewBcryptEncoder(cost int) *BcryptEncoder {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptEncoder{cost: cost}
}

// Encode produces a bcrypt hash of the password.
func (e *BcryptEncoder) Encode(password string) (string, error) {
	if len(password) > bcryptMaxPasswordBytes {
		return "", invalidField(CodeInvalidPassword, "password must be at most 72 bytes")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), e.cost)
	if err != nil {
		return "", oops.Code("AUTH_HASH_FAILED").Wrap(err)
	}
	return string(hash), nil
}

// Matches checks if the password matches the bcrypt hash.
func (e *BcryptEncoder) Matches(password, encodedHash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
}

// DelegatingEncoder encodes with one configured algorithm and verifies hashes
// produced by any supported algorithm, chosen by the hash prefix.
type DelegatingEncoder struct {
	algorithm string
	argon2id  *Argon2idEncoder
	bcrypt    *BcryptEncoder
	dummyHash string
}

// NewDelegatingEncoder creates an encoder that produces hashes with the given
// algorithm.
func NewDelegatingEncoder(algorithm string, argon2Params Argon2Params, bcryptCost int) (*DelegatingEncoder, error) {
	if algorithm != AlgorithmArgon2id && algorithm != AlgorithmBcrypt {
		return nil, oops.Code("AUTH_UNKNOWN_ALGORITHM").
			With("algorithm", algorithm).
			Errorf("unsupported password algorithm %q", algorithm)
	}
	e := &DelegatingEncoder{
		algorithm: algorithm,
		argon2id:  NewArgon2idEncoder(argon2Params),
		bcrypt:    NewBcryptEncoder(bcryptCost),
	}

	// The dummy hash uses the live parameters so verifying it costs the
	// same as verifying a real one.
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}
	dummy, err := e.Encode(base64.RawStdEncoding.EncodeToString(secret)[:32])
	if err != nil {
		return nil, err
	}
	e.dummyHash = dummy
	return e, nil
}

// Algorithm returns the algorithm used for new hashes.
func (e *DelegatingEncoder) Algorithm() string {
	return e.algorithm
}

// Encode hashes with the configured algorithm.
func (e *DelegatingEncoder) Encode(password string) (string, error) {
	if e.algorithm == AlgorithmBcrypt {
		return e.bcrypt.Encode(password)
	}
	return e.argon2id.Encode(password)
}

// Matches verifies against whichever algorithm produced encodedHash.
func (e *DelegatingEncoder) Matches(password, encodedHash string) (bool, error) {
	switch algorithmOf(encodedHash) {
	case AlgorithmArgon2id:
		return e.argon2id.Matches(password, encodedHash)
	case AlgorithmBcrypt:
		return e.bcrypt.Matches(password, encodedHash)
	default:
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("unrecognised hash format")
	}
}

// NeedsUpgrade returns true if the hash was not produced by the configured
// algorithm.
func (e *DelegatingEncoder) NeedsUpgrade(encodedHash string) bool {
	return algorithmOf(encodedHash) != e.algorithm
}

// DummyHash returns a well-formed hash of the configured algorithm whose
// password is discarded. Verifying against it spends the same time as a real
// check for usernames that do not exist.
func (e *DelegatingEncoder) DummyHash() string {
	return e.dummyHash
}

func algorithmOf(encodedHash string) string {
	switch {
	case strings.HasPrefix(encodedHash, "$argon2id$"):
		return AlgorithmArgon2id
	case strings.HasPrefix(encodedHash, "$2a$"),
		strings.HasPrefix(encodedHash, "$2b$"),
		strings.HasPrefix(encodedHash, "$2y$"):
		return AlgorithmBcrypt
	default:
		return ""
	}
}

// Compile-time interface checks.
var (
	_ PasswordEncoder = (*Argon2idEncoder)(nil)
	_ PasswordEncoder = (*BcryptEncoder)(nil)
	_ PasswordEncoder = (*DelegatingEncoder)(nil)
)
