// Package signature verifies keyed digests of raw webhook bodies.
//
// Signatures arrive as "<algorithm>=<hex digest>", for example
// "sha1=7d38cdd6..." (X-Hub-Signature) or "sha256=..." (X-Hub-Signature-256).
// The digest is recomputed over the exact bytes received, before any JSON
// decoding, and compared in constant time.
package signature

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"log/slog"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
)

var (
	ErrMissingSignature     = errors.New("signature: missing")
	ErrMalformedSignature   = errors.New("signature: malformed")
	ErrUnsupportedAlgorithm = errors.New("signature: unsupported algorithm")
	ErrSignatureMismatch    = errors.New("signature: mismatch")
)

// blake3KeyContext domain-separates the derived BLAKE3 key from the raw secret.
const blake3KeyContext = "hookserver webhook signature v1"

// MACFunc returns a keyed hash for one computation.
type MACFunc func(key []byte) hash.Hash

var builtin = map[string]MACFunc{
	"sha1":   func(key []byte) hash.Hash { return hmac.New(sha1.New, key) },
	"sha256": func(key []byte) hash.Hash { return hmac.New(sha256.New, key) },
	"sha512": func(key []byte) hash.Hash { return hmac.New(sha512.New, key) },
	"blake3": newBlake3MAC,
}

func newBlake3MAC(key []byte) hash.Hash {
	var derived [32]byte
	blake3.DeriveKey(blake3KeyContext, key, derived[:])
	h, err := blake3.NewKeyed(derived[:])
	if err != nil {
		// NewKeyed only fails on a key that is not 32 bytes.
		panic(err)
	}
	return h
}

// Builtin lists the algorithm names available without WithAlgorithm.
func Builtin() []string {
	names := make([]string, 0, len(builtin))
	for name := range builtin {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Key is a signing secret. It formats and logs as a placeholder.
type Key []byte

func (Key) String() string { return "[redacted]" }

// LogValue keeps the key out of structured logs.
func (Key) LogValue() slog.Value { return slog.StringValue("[redacted]") }

// Verifier checks signature headers against a single active key.
type Verifier struct {
	key        Key
	algorithms map[string]MACFunc
	unsigned   bool
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithAlgorithm enables a custom algorithm under name, replacing any builtin
// of the same name.
func WithAlgorithm(name string, fn MACFunc) Option {
	return func(v *Verifier) {
		v.algorithms[strings.ToLower(name)] = fn
	}
}

// NewVerifier creates a verifier that requires a valid signature made with
// key using one of the named algorithms.
func NewVerifier(key []byte, algorithms []string, opts ...Option) (*Verifier, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("signature: empty key (use NewUnsignedVerifier to disable verification)")
	}

	v := &Verifier{
		key:        append(Key(nil), key...),
		algorithms: make(map[string]MACFunc),
	}
	for _, name := range algorithms {
		name = strings.ToLower(strings.TrimSpace(name))
		fn, ok := builtin[name]
		if !ok {
			continue
		}
		v.algorithms[name] = fn
	}
	for _, opt := range opts {
		opt(v)
	}

	for _, name := range algorithms {
		name = strings.ToLower(strings.TrimSpace(name))
		if _, ok := v.algorithms[name]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, name)
		}
	}
	if len(v.algorithms) == 0 {
		return nil, fmt.Errorf("signature: no algorithms enabled")
	}
	return v, nil
}

// NewUnsignedVerifier creates a verifier that accepts every request. Use it
// only where authentication is deliberately not required.
func NewUnsignedVerifier() *Verifier {
	return &Verifier{unsigned: true}
}

// Required reports whether requests must carry a signature.
func (v *Verifier) Required() bool {
	return !v.unsigned
}

// Algorithms returns the enabled algorithm names, sorted.
func (v *Verifier) Algorithms() []string {
	names := make([]string, 0, len(v.algorithms))
	for name := range v.algorithms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Verify checks header against body. It returns nil on an exact match, or an
// error wrapping one of ErrMissingSignature, ErrMalformedSignature,
// ErrUnsupportedAlgorithm, ErrSignatureMismatch.
func (v *Verifier) Verify(body []byte, header string) error {
	if v.unsigned {
		return nil
	}

	header = strings.TrimSpace(header)
	if header == "" {
		return ErrMissingSignature
	}

	algorithm, digestHex, found := strings.Cut(header, "=")
	algorithm = strings.ToLower(strings.TrimSpace(algorithm))
	if !found || algorithm == "" || digestHex == "" {
		return ErrMalformedSignature
	}

	supplied, err := hex.DecodeString(digestHex)
	if err != nil {
		return fmt.Errorf("%w: digest is not hex", ErrMalformedSignature)
	}

	fn, ok := v.algorithms[algorithm]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}

	expected := compute(fn, v.key, body)
	if subtle.ConstantTimeCompare(expected, supplied) != 1 {
		return ErrSignatureMismatch
	}
	return nil
}

// Sign returns the header value for body using algorithm.
func (v *Verifier) Sign(algorithm string, body []byte) (string, error) {
	if v.unsigned {
		return "", fmt.Errorf("signature: verifier has no key")
	}
	algorithm = strings.ToLower(strings.TrimSpace(algorithm))
	fn, ok := v.algorithms[algorithm]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}
	return algorithm + "=" + hex.EncodeToString(compute(fn, v.key, body)), nil
}

// Sign computes a header value with a builtin algorithm without building a Verifier.
func Sign(key []byte, algorithm string, body []byte) (string, error) {
	fn, ok := builtin[strings.ToLower(algorithm)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, algorithm)
	}
	return strings.ToLower(algorithm) + "=" + hex.EncodeToString(compute(fn, key, body)), nil
}

func compute(fn MACFunc, key, body []byte) []byte {
	mac := fn(key)
	mac.Write(body)
	return mac.Sum(nil)
}
