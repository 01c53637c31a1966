package signature

import (
	"crypto/hmac"
	"crypto/md5"
	"fmt"
	"hash"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fox = "The quick brown fox jumps over the lazy dog"

func TestSignKnownVectors(t *testing.T) {
	sig, err := Sign([]byte("key"), "sha1", []byte(fox))
	require.NoError(t, err)
	assert.Equal(t, "sha1=de7c9b85b8b78aa6bc8a7a36f70a90701c9db4d9", sig)

	sig, err = Sign([]byte("key"), "sha256", []byte(fox))
	require.NoError(t, err)
	assert.Equal(t, "sha256=f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8", sig)
}

func TestVerify(t *testing.T) {
	key := []byte("test-secret-key")
	body := []byte(`{"event":"push","repository":"test"}`)

	v, err := NewVerifier(key, []string{"sha1", "sha256", "blake3"})
	require.NoError(t, err)

	sha1Sig, err := v.Sign("sha1", body)
	require.NoError(t, err)
	sha256Sig, _ := v.Sign("sha256", body)
	blake3Sig, _ := v.Sign("blake3", body)
	sha512Sig, _ := Sign(key, "sha512", body)

	flipped := []byte(sha1Sig)
	last := len(flipped) - 1
	if flipped[last] == '0' {
		flipped[last] = '1'
	} else {
		flipped[last] = '0'
	}

	tests := []struct {
		name    string
		body    []byte
		header  string
		wantErr error
	}{
		{"valid sha1", body, sha1Sig, nil},
		{"valid sha256", body, sha256Sig, nil},
		{"valid blake3", body, blake3Sig, nil},
		{"uppercase algorithm", body, strings.Replace(sha1Sig, "sha1", "SHA1", 1), nil},
		{"uppercase hex", body, "sha1=" + strings.ToUpper(strings.TrimPrefix(sha1Sig, "sha1=")), nil},
		{"missing", body, "", ErrMissingSignature},
		{"whitespace only", body, "   ", ErrMissingSignature},
		{"no separator", body, strings.TrimPrefix(sha1Sig, "sha1="), ErrMalformedSignature},
		{"empty digest", body, "sha1=", ErrMalformedSignature},
		{"empty algorithm", body, "=abcd", ErrMalformedSignature},
		{"not hex", body, "sha1=not-valid-hex", ErrMalformedSignature},
		{"odd hex", body, "sha1=abc", ErrMalformedSignature},
		{"algorithm not enabled", body, sha512Sig, ErrUnsupportedAlgorithm},
		{"unknown algorithm", body, "md5=abcd", ErrUnsupportedAlgorithm},
		{"flipped hex char", body, string(flipped), ErrSignatureMismatch},
		{"truncated digest", body, sha1Sig[:len(sha1Sig)-2], ErrSignatureMismatch},
		{"tampered body", []byte(`{"event":"push","repository":"hacked"}`), sha1Sig, ErrSignatureMismatch},
		{"cross algorithm digest", body, "sha256=" + strings.TrimPrefix(sha1Sig, "sha1="), ErrSignatureMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Verify(tt.body, tt.header)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestVerifyWrongKey(t *testing.T) {
	body := []byte("payload")
	sig, err := Sign([]byte("right"), "sha256", body)
	require.NoError(t, err)

	v, err := NewVerifier([]byte("wrong"), []string{"sha256"})
	require.NoError(t, err)
	assert.ErrorIs(t, v.Verify(body, sig), ErrSignatureMismatch)
}

func TestSignDeterministicAndSensitive(t *testing.T) {
	key := []byte("k")
	body := []byte(`{"zen":"Keep it logically awesome."}`)
	for _, alg := range Builtin() {
		t.Run(alg, func(t *testing.T) {
			a, err := Sign(key, alg, body)
			require.NoError(t, err)
			b, _ := Sign(key, alg, body)
			assert.Equal(t, a, b)

			mutated := append([]byte(nil), body...)
			mutated[5] ^= 0x01
			c, _ := Sign(key, alg, mutated)
			assert.NotEqual(t, a, c)
		})
	}
}

func TestVerifierSignMatchesPackageSign(t *testing.T) {
	v, err := NewVerifier([]byte("k"), []string{"sha512"})
	require.NoError(t, err)
	a, err := v.Sign("sha512", []byte("x"))
	require.NoError(t, err)
	b, _ := Sign([]byte("k"), "sha512", []byte("x"))
	assert.Equal(t, a, b)

	_, err = v.Sign("sha1", []byte("x"))
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)
}

func TestNewVerifierErrors(t *testing.T) {
	_, err := NewVerifier(nil, []string{"sha1"})
	assert.Error(t, err)

	_, err = NewVerifier([]byte("k"), []string{"sha1", "crc32"})
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)

	_, err = NewVerifier([]byte("k"), nil)
	assert.Error(t, err)
}

func TestWithAlgorithm(t *testing.T) {
	md5MAC := func(key []byte) hash.Hash { return hmac.New(md5.New, key) }
	v, err := NewVerifier([]byte("k"), []string{"md5"}, WithAlgorithm("md5", md5MAC))
	require.NoError(t, err)
	assert.Equal(t, []string{"md5"}, v.Algorithms())

	sig, err := v.Sign("md5", []byte("body"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sig, "md5="))
	assert.NoError(t, v.Verify([]byte("body"), sig))
}

func TestUnsignedVerifier(t *testing.T) {
	v := NewUnsignedVerifier()
	assert.False(t, v.Required())
	assert.NoError(t, v.Verify([]byte("anything"), ""))
	assert.NoError(t, v.Verify([]byte("anything"), "garbage"))

	_, err := v.Sign("sha1", nil)
	assert.Error(t, err)
}

func TestKeyIsRedacted(t *testing.T) {
	k := Key("super-secret")
	assert.Equal(t, "[redacted]", fmt.Sprint(k))
	assert.Equal(t, "[redacted]", k.LogValue().String())
}
