// Package hasher turns JSON values into the content-addressed identifiers
// used throughout a DID log: RFC 8785 canonical bytes, sha2-256 multihashes
// and their base58btc rendering.
package hasher

import (
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

// Canonicalize returns the RFC 8785 serialization of v. Values that are
// already raw JSON ([]byte, json.RawMessage) are transformed as-is.
func Canonicalize(v any) ([]byte, error) {
	var raw []byte
	switch t := v.(type) {
	case json.RawMessage:
		raw = t
	case []byte:
		raw = t
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("hasher: marshal: %w", err)
		}
		raw = b
	}

	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("hasher: canonicalize: %w", err)
	}

	return out, nil
}

// Multihash returns 0x12 || 0x20 || sha256(b).
func Multihash(b []byte) ([]byte, error) {
	sum, err := mh.Sum(b, mh.SHA2_256, -1)
	if err != nil {
		return nil, fmt.Errorf("hasher: multihash: %w", err)
	}
	return sum, nil
}

// BuildSCID is base58btc(multihash(canonicalize(v))). It is used for the
// genesis SCID and for every entry hash.
func BuildSCID(v any) (string, error) {
	c, err := Canonicalize(v)
	if err != nil {
		return "", err
	}

	return hashBytes(c)
}

// HashString hashes the raw UTF-8 bytes of s, which is how a multibase
// public key is committed to in nextKeyHashes.
func HashString(s string) (string, error) {
	return hashBytes([]byte(s))
}

// Digest is the plain sha2-256 digest of v's canonical form, as used by the
// eddsa-jcs-2022 cryptosuite.
func Digest(v any) ([]byte, error) {
	c, err := Canonicalize(v)
	if err != nil {
		return nil, err
	}

	sum, err := mh.Sum(c, mh.SHA2_256, -1)
	if err != nil {
		return nil, fmt.Errorf("hasher: digest: %w", err)
	}

	dec, err := mh.Decode(sum)
	if err != nil {
		return nil, fmt.Errorf("hasher: digest: %w", err)
	}

	return dec.Digest, nil
}

// ParseHash checks that s is a hash as produced by BuildSCID and returns its
// sha2-256 digest.
func ParseHash(s string) ([]byte, error) {
	c, err := cid.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("hasher: parse %q: %w", s, err)
	}

	if c.Version() != 0 {
		return nil, fmt.Errorf("hasher: %q is not a base58btc sha2-256 multihash", s)
	}

	dec, err := mh.Decode(c.Hash())
	if err != nil {
		return nil, fmt.Errorf("hasher: parse %q: %w", s, err)
	}

	return dec.Digest, nil
}

// hashBytes renders the multihash of b in base58btc, which is the string
// form of a CIDv0.
func hashBytes(b []byte) (string, error) {
	sum, err := Multihash(b)
	if err != nil {
		return "", err
	}
	return cid.NewCidV0(sum).String(), nil
}
