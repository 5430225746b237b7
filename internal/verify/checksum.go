// Package verify checks downloaded artifacts against the digests and signatures declared by their
// formula. Nothing in this package performs I/O beyond reading the bytes it is handed.
package verify

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strings"

	"go.uber.org/zap"
)

var (
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrInvalidChecksum  = errors.New("invalid checksum")
)

type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	SHA512 Algorithm = "sha512"
)

func (a Algorithm) new() (hash.Hash, error) {
	switch a {
	case SHA256:
		return sha256.New(), nil
	case SHA512:
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidChecksum, a)
	}
}

func (a Algorithm) hexLen() int {
	switch a {
	case SHA256:
		return sha256.Size * 2
	case SHA512:
		return sha512.Size * 2
	default:
		return 0
	}
}

type Checksum struct {
	Algorithm Algorithm
	Digest    string
}

func (c Checksum) String() string {
	return string(c.Algorithm) + ":" + c.Digest
}

// ParseChecksum accepts '<algorithm>:<hex>' as well as bare hex digests, in which case the algorithm
// is inferred from the digest length.
func ParseChecksum(s string) (Checksum, error) {
	algo, digest, found := strings.Cut(strings.TrimSpace(s), ":")
	if !found {
		digest = algo
		switch len(digest) {
		case SHA256.hexLen():
			algo = string(SHA256)
		case SHA512.hexLen():
			algo = string(SHA512)
		default:
			return Checksum{}, fmt.Errorf("%w: can not infer algorithm of %q", ErrInvalidChecksum, s)
		}
	}
	c := Checksum{Algorithm: Algorithm(strings.ToLower(algo)), Digest: strings.ToLower(digest)}
	return c, c.Validate()
}

func (c Checksum) Validate() error {
	n := c.Algorithm.hexLen()
	if n == 0 {
		return fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidChecksum, c.Algorithm)
	}
	if len(c.Digest) != n {
		return fmt.Errorf("%w: %s digest must be %d hex characters, got %d", ErrInvalidChecksum, c.Algorithm, n, len(c.Digest))
	}
	if _, err := hex.DecodeString(c.Digest); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidChecksum, err)
	}
	return nil
}

// Sum computes the digest of content with the given algorithm.
func Sum(algo Algorithm, content []byte) (Checksum, error) {
	h, err := algo.new()
	if err != nil {
		return Checksum{}, err
	}
	_, _ = h.Write(content)
	return Checksum{Algorithm: algo, Digest: hex.EncodeToString(h.Sum(nil))}, nil
}

// Content returns an ErrChecksumMismatch error if the digest of content does not equal expected.
func Content(log *zap.Logger, content []byte, expected Checksum) error {
	log = log.With(zap.Stringer("expected", expected), zap.Int("size", len(content)))

	if err := expected.Validate(); err != nil {
		log.Error("Declared checksum is not valid.", zap.Error(err))
		return err
	}
	actual, err := Sum(expected.Algorithm, content)
	if err != nil {
		return err
	}
	if actual.Digest != expected.Digest {
		log.Error("Content does not match the declared checksum.", zap.Stringer("actual", actual))
		return fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, expected, actual)
	}
	log.Debug("Content matches the declared checksum.")
	return nil
}
