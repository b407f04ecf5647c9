// Package proof builds and checks eddsa-jcs-2022 Data Integrity proofs.
//
// The signed message is sha256(jcs(proofConfig)) || sha256(jcs(document)),
// where proofConfig is the proof without its proofValue. The concatenation
// is signed as-is, so a verifier holding only the document and the proof
// metadata can rebuild exactly what was signed.
package proof

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"time"

	"github.com/haileyok/didlog/hasher"
	"github.com/haileyok/didlog/keys"
	"github.com/haileyok/didlog/types"
	"github.com/multiformats/go-multibase"
)

const (
	Type        = "DataIntegrityProof"
	Cryptosuite = "eddsa-jcs-2022"

	PurposeAuthentication  = "authentication"
	PurposeAssertionMethod = "assertionMethod"
)

type Proof struct {
	Type               string  `json:"type"`
	Cryptosuite        string  `json:"cryptosuite"`
	Created            string  `json:"created"`
	VerificationMethod string  `json:"verificationMethod"`
	ProofPurpose       string  `json:"proofPurpose"`
	Challenge          *string `json:"challenge,omitempty"`
	ProofValue         string  `json:"proofValue,omitempty"`
}

type Args struct {
	Provider     keys.Provider
	Challenge    *string
	ProofPurpose string
	Created      time.Time
}

// Build signs document with args.Provider. The verificationMethod is the
// provider's did:key.
func Build(ctx context.Context, document any, args *Args) (*Proof, error) {
	if args.Provider == nil {
		return nil, fmt.Errorf("proof: key provider must be set")
	}

	purpose := args.ProofPurpose
	if purpose == "" {
		purpose = PurposeAuthentication
	}

	p := &Proof{
		Type:               Type,
		Cryptosuite:        Cryptosuite,
		Created:            types.FormatTime(args.Created),
		VerificationMethod: keys.VerificationMethodID(args.Provider.VerificationKeyMultibase()),
		ProofPurpose:       purpose,
		Challenge:          args.Challenge,
	}

	msg, err := hashData(p, document)
	if err != nil {
		return nil, err
	}

	sig, err := args.Provider.Sign(ctx, msg)
	if err != nil {
		return nil, types.Wrap(types.KindKeyProviderFailure, err, "signing proof")
	}

	enc, err := multibase.Encode(multibase.Base58BTC, sig)
	if err != nil {
		return nil, fmt.Errorf("proof: encode proof value: %w", err)
	}

	p.ProofValue = enc

	return p, nil
}

// Verify never fails loudly: any malformed input is simply not a valid proof.
func Verify(p *Proof, document any, pub ed25519.PublicKey) bool {
	if p == nil || len(pub) != ed25519.PublicKeySize {
		return false
	}

	if p.Type != Type || p.Cryptosuite != Cryptosuite {
		return false
	}

	enc, sig, err := multibase.Decode(p.ProofValue)
	if err != nil || enc != multibase.Base58BTC || len(sig) != ed25519.SignatureSize {
		return false
	}

	msg, err := hashData(p, document)
	if err != nil {
		return false
	}

	return ed25519.Verify(pub, msg, sig)
}

// VerifyWithMethod resolves the public key from the proof's did:key
// verification method before verifying.
func VerifyWithMethod(p *Proof, document any) bool {
	if p == nil {
		return false
	}

	mk, err := keys.MultikeyFromVerificationMethod(p.VerificationMethod)
	if err != nil {
		return false
	}

	pub, err := keys.PublicFromMultikey(mk)
	if err != nil {
		return false
	}

	return Verify(p, document, pub)
}

func hashData(p *Proof, document any) ([]byte, error) {
	cfg := *p
	cfg.ProofValue = ""

	cfgHash, err := hasher.Digest(cfg)
	if err != nil {
		return nil, fmt.Errorf("proof: hash proof config: %w", err)
	}

	docHash, err := hasher.Digest(document)
	if err != nil {
		return nil, fmt.Errorf("proof: hash document: %w", err)
	}

	return append(cfgHash, docHash...), nil
}

// Decode parses a JSON proof list as it appears in a log entry.
func Decode(raw json.RawMessage) ([]*Proof, error) {
	var ps []*Proof
	if err := json.Unmarshal(raw, &ps); err != nil {
		return nil, err
	}
	return ps, nil
}
