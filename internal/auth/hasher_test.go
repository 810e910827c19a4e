// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 YouChat Contributors

package auth_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youchat/youchat/internal/auth"
)

// testArgon2Params keeps hashing fast in tests.
var testArgon2Params = auth.Argon2Params{Time: 1, Memory: 1024, Threads: 1}

func newTestEncoder(t *testing.T, algorithm string) *auth.DelegatingEncoder {
	t.Helper()
	enc, err := auth.NewDelegatingEncoder(algorithm, testArgon2Params, 4)
	require.NoError(t, err)
	return enc
}

func TestArgon2idEncode(t *testing.T) {
	enc := auth.NewArgon2idEncoder(testArgon2Params)

	t.Run("produces PHC string", func(t *testing.T) {
		hash, err := enc.Encode("Secret123!")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=1024,t=1,p=1$"))
	})

	t.Run("same password produces different hashes (salt)", func(t *testing.T) {
		hash1, err := enc.Encode("samepassword")
		require.NoError(t, err)
		hash2, err := enc.Encode("samepassword")
		require.NoError(t, err)
		assert.NotEqual(t, hash1, hash2)
	})

	t.Run("hash does not contain plaintext", func(t *testing.T) {
		hash, err := enc.Encode("plaintextpassword")
		require.NoError(t, err)
		assert.NotContains(t, hash, "plaintextpassword")
	})
}

func TestArgon2idMatches(t *testing.T) {
	enc := auth.NewArgon2idEncoder(testArgon2Params)

	t.Run("correct password matches", func(t *testing.T) {
		hash, err := enc.Encode("correctpassword")
		require.NoError(t, err)

		ok, err := enc.Matches("correctpassword", hash)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("incorrect password does not match", func(t *testing.T) {
		hash, err := enc.Encode("correctpassword")
		require.NoError(t, err)

		ok, err := enc.Matches("wrongpassword", hash)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("empty password round-trips", func(t *testing.T) {
		hash, err := enc.Encode("")
		require.NoError(t, err)

		ok, err := enc.Matches("", hash)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("invalid hash format returns error", func(t *testing.T) {
		_, err := enc.Matches("password", "not-a-valid-hash")
		assert.Error(t, err)
	})

	t.Run("wrong algorithm returns error", func(t *testing.T) {
		_, err := enc.Matches("password", "$argon2i$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported hash algorithm")
	})

	t.Run("invalid parameters format returns error", func(t *testing.T) {
		_, err := enc.Matches("password", "$argon2id$v=19$invalid$c2FsdA$aGFzaA")
		assert.Error(t, err)
	})

	t.Run("invalid salt base64 returns error", func(t *testing.T) {
		_, err := enc.Matches("password", "$argon2id$v=19$m=65536,t=1,p=4$!!!invalid!!!$aGFzaA")
		assert.Error(t, err)
	})

	t.Run("threads overflow returns error", func(t *testing.T) {
		_, err := enc.Matches("password", "$argon2id$v=19$m=65536,t=1,p=256$c2FsdA$aGFzaA")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "threads value")
	})
}

func TestBcryptEncoder(t *testing.T) {
	enc := auth.NewBcryptEncoder(4)

	t.Run("round trip", func(t *testing.T) {
		hash, err := enc.Encode("Secret123!")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(hash, "$2a$04$"))

		ok, err := enc.Matches("Secret123!", hash)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = enc.Matches("secret123!", hash)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("rejects passwords over 72 bytes", func(t *testing.T) {
		_, err := enc.Encode(strings.Repeat("a", 73))
		require.Error(t, err)
	})

	t.Run("garbage hash returns error", func(t *testing.T) {
		_, err := enc.Matches("password", "$2a$nope")
		assert.Error(t, err)
	})
}

func TestDelegatingEncoder(t *testing.T) {
	t.Run("rejects unknown algorithm", func(t *testing.T) {
		_, err := auth.NewDelegatingEncoder("md5", testArgon2Params, 4)
		require.Error(t, err)
	})

	t.Run("verifies hashes from either algorithm", func(t *testing.T) {
		argon := newTestEncoder(t, auth.AlgorithmArgon2id)
		bc := newTestEncoder(t, auth.AlgorithmBcrypt)

		argonHash, err := argon.Encode("Secret123!")
		require.NoError(t, err)
		bcryptHash, err := bc.Encode("Secret123!")
		require.NoError(t, err)

		for _, enc := range []*auth.DelegatingEncoder{argon, bc} {
			ok, err := enc.Matches("Secret123!", argonHash)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = enc.Matches("Secret123!", bcryptHash)
			require.NoError(t, err)
			assert.True(t, ok)
		}
	})

	t.Run("needs upgrade when algorithm differs", func(t *testing.T) {
		argon := newTestEncoder(t, auth.AlgorithmArgon2id)
		bc := newTestEncoder(t, auth.AlgorithmBcrypt)

		bcryptHash, err := bc.Encode("pw")
		require.NoError(t, err)
		argonHash, err := argon.Encode("pw")
		require.NoError(t, err)

		assert.True(t, argon.NeedsUpgrade(bcryptHash))
		assert.False(t, argon.NeedsUpgrade(argonHash))
		assert.True(t, bc.NeedsUpgrade(argonHash))
		assert.False(t, bc.NeedsUpgrade(bcryptHash))
	})

	t.Run("unrecognised hash returns error", func(t *testing.T) {
		enc := newTestEncoder(t, auth.AlgorithmArgon2id)
		_, err := enc.Matches("pw", "plain-text")
		assert.Error(t, err)
	})

	t.Run("dummy hash is well formed and never matches", func(t *testing.T) {
		for _, alg := range []string{auth.AlgorithmArgon2id, auth.AlgorithmBcrypt} {
			enc := newTestEncoder(t, alg)
			assert.False(t, enc.NeedsUpgrade(enc.DummyHash()), alg)
			ok, err := enc.Matches("", enc.DummyHash())
			require.NoError(t, err)
			assert.False(t, ok, alg)
		}
	})
}
