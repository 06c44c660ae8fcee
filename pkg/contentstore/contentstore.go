// Package contentstore provides content-addressed blob storage for finalized
// score documents. Blobs are addressed by a CIDv1 over their raw bytes, so the
// same hash always resolves to the same bytes and any tampering is detectable
// by re-hashing.
package contentstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

var (
	// ErrNotFound indicates no blob is stored under the hash.
	ErrNotFound = errors.New("content not found")
	// ErrInvalidHash indicates the hash is not a parseable content identifier.
	ErrInvalidHash = errors.New("invalid content hash")
	// ErrHashMismatch indicates the retrieved bytes do not hash to the requested identifier.
	ErrHashMismatch = errors.New("content does not match its hash")
)

// Fetcher retrieves blobs by content hash.
type Fetcher interface {
	Fetch(ctx context.Context, hash string) ([]byte, error)
}

// Publisher stores blobs and returns their content hash.
type Publisher interface {
	Put(ctx context.Context, data []byte) (string, error)
}

// Store is a content-addressed blob store.
type Store interface {
	Fetcher
	Publisher
}

var defaultPrefix = cid.Prefix{
	Version:  1,
	Codec:    cid.Raw,
	MhType:   multihash.SHA2_256,
	MhLength: -1,
}

// HashOf returns the CIDv1 (raw codec, sha2-256) of data.
func HashOf(data []byte) (string, error) {
	sum, err := defaultPrefix.Sum(data)
	if err != nil {
		return "", fmt.Errorf("failed to hash content: %w", err)
	}
	return sum.String(), nil
}

// ParseHash validates a content hash and returns it normalised.
func ParseHash(hash string) (cid.Cid, error) {
	trimmed := strings.TrimSpace(hash)
	if trimmed == "" {
		return cid.Undef, ErrInvalidHash
	}
	parsed, err := cid.Decode(trimmed)
	if err != nil {
		return cid.Undef, fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}
	return parsed, nil
}

// Verify checks that data hashes to hash using the hash's own prefix.
func Verify(hash string, data []byte) error {
	expected, err := ParseHash(hash)
	if err != nil {
		return err
	}

	actual, err := expected.Prefix().Sum(data)
	if err != nil {
		return fmt.Errorf("failed to hash content: %w", err)
	}
	if !actual.Equals(expected) {
		return ErrHashMismatch
	}
	return nil
}
