package didlog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/haileyok/didlog/hasher"
	"github.com/haileyok/didlog/keys"
	"github.com/haileyok/didlog/method"
	"github.com/haileyok/didlog/peek"
	"github.com/haileyok/didlog/proof"
)

// ChainResolver is the built-in post-append check. It re-reads the whole
// log structurally, then verifies the last entry's hash chain link, its
// SCID when it is the genesis entry, and its proofs against the keys
// authorized for it. It is not a full resolver: earlier entries' proofs are
// trusted.
type ChainResolver struct{}

func (ChainResolver) Resolve(_ context.Context, logText string) (json.RawMessage, error) {
	meta, err := peek.Peek(logText)
	if err != nil {
		return nil, err
	}

	if err := VerifyLastEntry(meta); err != nil {
		return nil, err
	}

	return meta.LastEntry.State, nil
}

// VerifyLastEntry checks the entry peek stopped at.
func VerifyLastEntry(meta *peek.Meta) error {
	v := meta.Version
	sp := v.Spec()
	e := meta.LastEntry

	_, hash, err := peek.SplitVersionID(e.VersionID)
	if err != nil {
		return err
	}

	got, err := hasher.BuildSCID(e.Unsigned(v, meta.PreviousVersionID))
	if err != nil {
		return err
	}
	if got != hash {
		return fmt.Errorf("entry %s: hash mismatch, computed %s", e.VersionID, got)
	}

	if meta.Entries == 1 {
		if err := verifySCID(v, e, meta.Parameters.SCID); err != nil {
			return err
		}
	}

	authorized, err := authorizedKeys(meta)
	if err != nil {
		return err
	}

	if len(e.Proofs) == 0 {
		return fmt.Errorf("entry %s has no proof", e.VersionID)
	}

	target := e.ProofTarget(v)
	for i, p := range e.Proofs {
		if p.ProofPurpose != sp.ProofPurpose {
			return fmt.Errorf("entry %s proof %d: proofPurpose %q, want %q", e.VersionID, i, p.ProofPurpose, sp.ProofPurpose)
		}

		if sp.ChallengeIsVersionID && (p.Challenge == nil || *p.Challenge != e.VersionID) {
			return fmt.Errorf("entry %s proof %d: challenge does not match versionId", e.VersionID, i)
		}

		mk, err := keys.MultikeyFromVerificationMethod(p.VerificationMethod)
		if err != nil {
			return fmt.Errorf("entry %s proof %d: %w", e.VersionID, i, err)
		}

		if !slices.Contains(authorized, mk) {
			return fmt.Errorf("entry %s proof %d: key %s is not authorized", e.VersionID, i, mk)
		}

		if !proof.VerifyWithMethod(p, target) {
			return fmt.Errorf("entry %s proof %d: signature does not verify", e.VersionID, i)
		}
	}

	return nil
}

// authorizedKeys returns the update keys allowed to sign the last entry.
func authorizedKeys(meta *peek.Meta) ([]string, error) {
	prev, cur := meta.PreviousParameters, meta.Parameters

	switch {
	case meta.Entries == 1:
		return cur.UpdateKeys, nil
	case cur.Deactivated:
		return prev.UpdateKeys, nil
	case prev.IsPreRotationActive():
		for _, k := range cur.UpdateKeys {
			if !prev.IsAuthorizedForNextUpdate(k) {
				return nil, fmt.Errorf("entry %s reveals uncommitted update key %s", meta.LastVersionID, k)
			}
		}
		return cur.UpdateKeys, nil
	case meta.Version.Spec().KeysActiveImmediately:
		return cur.UpdateKeys, nil
	default:
		return prev.UpdateKeys, nil
	}
}

// verifySCID recomputes the SCID from the genesis entry with the SCID put
// back to the placeholder.
func verifySCID(v method.Version, e *method.Entry, scid string) error {
	if scid == "" {
		return fmt.Errorf("genesis entry has no scid")
	}

	pre := &method.Entry{
		VersionTime: e.VersionTime,
		Parameters:  bytes.ReplaceAll(e.Parameters, []byte(scid), []byte(method.Placeholder)),
		State:       bytes.ReplaceAll(e.State, []byte(scid), []byte(method.Placeholder)),
	}

	got, err := hasher.BuildSCID(pre.Unsigned(v, method.Placeholder))
	if err != nil {
		return err
	}

	if got != scid {
		return fmt.Errorf("scid mismatch, computed %s want %s", got, scid)
	}

	return nil
}
