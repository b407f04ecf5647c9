// Package pop issues and checks proof-of-possession tokens: short lived
// JWTs signed by a key provider and accepted only when their kid is one of
// the keys that signed the last entry of a DID log.
package pop

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/haileyok/didlog/keys"
	"github.com/haileyok/didlog/peek"
	"github.com/haileyok/didlog/types"
)

type Claims struct {
	Nonce string `json:"nonce"`
	jwt.RegisteredClaims
}

// Create signs a token for nonce that expires ttl from now. The issuer is
// the did:key of the provider's key.
func Create(ctx context.Context, p keys.Provider, nonce string, ttl time.Duration) (string, error) {
	return CreateAt(ctx, p, nonce, ttl, time.Now())
}

func CreateAt(ctx context.Context, p keys.Provider, nonce string, ttl time.Duration, now time.Time) (string, error) {
	if p == nil {
		return "", types.Errorf(types.KindInvalidInput, "key provider must be set")
	}
	if nonce == "" {
		return "", types.Errorf(types.KindInvalidInput, "nonce must be set")
	}
	if ttl <= 0 {
		return "", types.Errorf(types.KindInvalidInput, "ttl must be positive")
	}

	mk := p.VerificationKeyMultibase()

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, &Claims{
		Nonce: nonce,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    keys.DIDKey(mk),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	token.Header["kid"] = keys.VerificationMethodID(mk)

	ss, err := token.SigningString()
	if err != nil {
		return "", err
	}

	sig, err := p.Sign(ctx, []byte(ss))
	if err != nil {
		return "", types.Wrap(types.KindKeyProviderFailure, err, "signing pop token")
	}

	return ss + "." + jwt.EncodeSegment(sig), nil
}

// Verify checks token against nonce and the last entry of logText.
func Verify(token, nonce, logText string) error {
	return VerifyAt(token, nonce, logText, time.Now())
}

func VerifyAt(token, nonce, logText string, now time.Time) error {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return types.Errorf(types.KindMalformedToken, "token must have three segments")
	}

	var claims Claims
	t, _, err := jwt.NewParser().ParseUnverified(token, &claims)
	if err != nil {
		var ve *jwt.ValidationError
		if errors.As(err, &ve) && ve.Errors&jwt.ValidationErrorUnverifiable != 0 {
			return types.Wrap(types.KindUnsupportedAlgorithm, err, "token algorithm")
		}
		return types.Wrap(types.KindMalformedToken, err, "parsing token")
	}

	if t.Method.Alg() != keys.Algorithm {
		return types.Errorf(types.KindUnsupportedAlgorithm, "token algorithm %s, want %s", t.Method.Alg(), keys.Algorithm)
	}

	if claims.Nonce != nonce {
		return types.Errorf(types.KindNonceMismatch, "token nonce does not match")
	}

	if claims.ExpiresAt == nil {
		return types.Errorf(types.KindMalformedToken, "token has no exp claim")
	}
	if !now.Before(claims.ExpiresAt.Time) {
		return types.Errorf(types.KindTokenExpired, "token expired at %s", types.FormatTime(claims.ExpiresAt.Time))
	}

	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return types.Errorf(types.KindMalformedToken, "token has no kid")
	}

	meta, err := peek.Peek(logText)
	if err != nil {
		return err
	}

	signers := make([]string, 0, len(meta.LastEntry.Proofs))
	for _, p := range meta.LastEntry.Proofs {
		signers = append(signers, p.VerificationMethod)
	}
	if !slices.Contains(signers, kid) {
		return types.Errorf(types.KindUnknownKid, "kid %s did not sign %s", kid, meta.LastVersionID)
	}

	mk, err := keys.MultikeyFromVerificationMethod(kid)
	if err != nil {
		return types.Wrap(types.KindUnknownKid, err, "kid %s", kid)
	}
	pub, err := keys.PublicFromMultikey(mk)
	if err != nil {
		return types.Wrap(types.KindUnknownKid, err, "kid %s", kid)
	}

	if err := jwt.SigningMethodEdDSA.Verify(parts[0]+"."+parts[1], parts[2], pub); err != nil {
		return types.Wrap(types.KindInvalidSignature, err, "token signature")
	}

	return nil
}

func IsValid(token, nonce, logText string) bool {
	return Verify(token, nonce, logText) == nil
}
