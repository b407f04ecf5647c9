package proof

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Azure/go-autorest/autorest/to"
	"github.com/haileyok/didlog/keys"
	"github.com/haileyok/didlog/types"
	"github.com/stretchr/testify/require"
)

var created = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func testProvider(t *testing.T) *keys.Ed25519Provider {
	t.Helper()
	p, err := keys.Ed25519ProviderFromSeed(bytes.Repeat([]byte{9}, ed25519.SeedSize))
	require.NoError(t, err)
	return p
}

func testDoc() map[string]any {
	return map[string]any{
		"@context": []any{"https://www.w3.org/ns/did/v1"},
		"id":       "did:tdw:abc:example.com",
	}
}

func TestBuildAndVerify(t *testing.T) {
	p := testProvider(t)
	doc := testDoc()

	pr, err := Build(context.Background(), doc, &Args{
		Provider:     p,
		Challenge:    to.StringPtr("1-abc"),
		ProofPurpose: PurposeAuthentication,
		Created:      created,
	})
	require.NoError(t, err)

	require.Equal(t, Type, pr.Type)
	require.Equal(t, Cryptosuite, pr.Cryptosuite)
	require.Equal(t, "2025-01-02T03:04:05Z", pr.Created)
	require.Equal(t, "1-abc", *pr.Challenge)
	require.Equal(t, keys.VerificationMethodID(p.VerificationKeyMultibase()), pr.VerificationMethod)
	require.True(t, strings.HasPrefix(pr.ProofValue, "z"))

	require.True(t, Verify(pr, doc, p.PublicKey()))
	require.True(t, VerifyWithMethod(pr, doc))
}

func TestVerifyDetectsChanges(t *testing.T) {
	p := testProvider(t)
	doc := testDoc()

	pr, err := Build(context.Background(), doc, &Args{Provider: p, Created: created})
	require.NoError(t, err)
	require.Equal(t, PurposeAuthentication, pr.ProofPurpose)
	require.Nil(t, pr.Challenge)

	changed := testDoc()
	changed["id"] = "did:tdw:abd:example.com"
	require.False(t, Verify(pr, changed, p.PublicKey()))

	tampered := *pr
	tampered.Created = "2025-01-02T03:04:06Z"
	require.False(t, Verify(&tampered, doc, p.PublicKey()))

	other, err := keys.GenerateEd25519Provider()
	require.NoError(t, err)
	require.False(t, Verify(pr, doc, other.PublicKey()))

	require.False(t, Verify(nil, doc, p.PublicKey()))
	require.False(t, Verify(&Proof{ProofValue: "not-multibase"}, doc, p.PublicKey()))
}

func TestProofRoundTripsThroughJSON(t *testing.T) {
	p := testProvider(t)
	doc := testDoc()

	pr, err := Build(context.Background(), doc, &Args{Provider: p, ProofPurpose: PurposeAssertionMethod, Created: created})
	require.NoError(t, err)

	b, err := json.Marshal([]*Proof{pr})
	require.NoError(t, err)
	require.NotContains(t, string(b), "challenge")

	ps, err := Decode(b)
	require.NoError(t, err)
	require.Len(t, ps, 1)

	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	require.True(t, VerifyWithMethod(ps[0], json.RawMessage(raw)))
}

type failingProvider struct {
	*keys.Ed25519Provider
}

func (failingProvider) Sign(context.Context, []byte) ([]byte, error) {
	return nil, errors.New("hsm offline")
}

func TestBuildProviderFailure(t *testing.T) {
	_, err := Build(context.Background(), testDoc(), &Args{
		Provider: failingProvider{testProvider(t)},
		Created:  created,
	})
	require.ErrorIs(t, err, types.ErrKeyProviderFailure)
}
