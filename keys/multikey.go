package keys

import (
	"bytes"
	"crypto/ed25519"
	"fmt"
	"strings"

	"github.com/multiformats/go-multibase"
)

// ed25519-pub multicodec, varint encoded.
var ed25519Codec = []byte{0xed, 0x01}

// MultikeyFromPublic encodes pub as base58btc(0xed01 || pub) with the 'z'
// multibase prefix.
func MultikeyFromPublic(pub ed25519.PublicKey) (string, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", fmt.Errorf("keys: invalid Ed25519 public key length %d", len(pub))
	}

	prefixed := append(append([]byte{}, ed25519Codec...), pub...)
	enc, err := multibase.Encode(multibase.Base58BTC, prefixed)
	if err != nil {
		return "", fmt.Errorf("keys: multibase encode: %w", err)
	}

	return enc, nil
}

// PublicFromMultikey is the inverse of MultikeyFromPublic.
func PublicFromMultikey(mk string) (ed25519.PublicKey, error) {
	enc, decoded, err := multibase.Decode(mk)
	if err != nil {
		return nil, fmt.Errorf("keys: multibase decode: %w", err)
	}
	if enc != multibase.Base58BTC {
		return nil, fmt.Errorf("keys: multikey %q is not base58btc", mk)
	}
	if !bytes.HasPrefix(decoded, ed25519Codec) {
		return nil, fmt.Errorf("keys: multikey %q is not an Ed25519 key", mk)
	}

	raw := decoded[len(ed25519Codec):]
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("keys: expected %d key bytes, got %d", ed25519.PublicKeySize, len(raw))
	}

	return ed25519.PublicKey(raw), nil
}

// DIDKey returns the did:key form of a multikey.
func DIDKey(mk string) string {
	return "did:key:" + mk
}

// VerificationMethodID returns "did:key:<mk>#<mk>", the verificationMethod
// carried by every proof a Provider signs.
func VerificationMethodID(mk string) string {
	return DIDKey(mk) + "#" + mk
}

// MultikeyFromVerificationMethod extracts the multikey from a did:key
// verification method id. A fragment, when present, must repeat the key.
func MultikeyFromVerificationMethod(vm string) (string, error) {
	if !strings.HasPrefix(vm, "did:key:") {
		return "", fmt.Errorf("keys: verification method %q is not a did:key", vm)
	}

	rest := strings.TrimPrefix(vm, "did:key:")
	if i := strings.IndexByte(rest, '#'); i >= 0 {
		frag := rest[i+1:]
		if frag != rest[:i] {
			return "", fmt.Errorf("keys: verification method %q has mismatched fragment", vm)
		}
		rest = frag
	}

	if rest == "" {
		return "", fmt.Errorf("keys: verification method %q has no key", vm)
	}

	return rest, nil
}
