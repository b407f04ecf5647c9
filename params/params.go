// Package params holds the cumulative DID method parameters of a log.
//
// Each log entry carries a Delta with only the fields it changes. A
// Parameters value is an immutable snapshot; Merge returns a new one.
package params

import (
	"slices"

	"github.com/haileyok/didlog/hasher"
	"github.com/haileyok/didlog/types"
)

// Delta is the parameters object as written in a log entry. A nil field was
// omitted and keeps its previous value; a pointer to an empty slice is an
// explicit reset.
type Delta struct {
	Method        *string   `json:"method,omitempty"`
	SCID          *string   `json:"scid,omitempty"`
	UpdateKeys    *[]string `json:"updateKeys,omitempty"`
	NextKeyHashes *[]string `json:"nextKeyHashes,omitempty"`
	Prerotation   *bool     `json:"prerotation,omitempty"`
	Portable      *bool     `json:"portable,omitempty"`
	Deactivated   *bool     `json:"deactivated,omitempty"`
}

type Parameters struct {
	Method        string
	SCID          string
	UpdateKeys    []string
	NextKeyHashes []string
	Prerotation   bool
	Portable      bool
	Deactivated   bool
}

// Merge applies d on top of p. Explicit fields in d win, omitted ones carry
// forward. The SCID is fixed once set and nothing may follow deactivation.
func (p Parameters) Merge(d *Delta) (Parameters, error) {
	out := p.clone()
	if d == nil {
		return out, nil
	}

	if p.Deactivated {
		return p, types.Errorf(types.KindAlreadyDeactivated, "parameters are frozen after deactivation")
	}

	if d.SCID != nil {
		if p.SCID != "" && *d.SCID != p.SCID {
			return p, types.Errorf(types.KindInvalidLog, "scid cannot change from %s to %s", p.SCID, *d.SCID)
		}
		out.SCID = *d.SCID
	}

	if d.Method != nil {
		out.Method = *d.Method
	}
	if d.UpdateKeys != nil {
		out.UpdateKeys = slices.Clone(*d.UpdateKeys)
	}
	if d.NextKeyHashes != nil {
		out.NextKeyHashes = slices.Clone(*d.NextKeyHashes)
	}
	if d.Prerotation != nil {
		out.Prerotation = *d.Prerotation
	}
	if d.Portable != nil {
		out.Portable = *d.Portable
	}
	if d.Deactivated != nil {
		out.Deactivated = *d.Deactivated
	}

	if out.Deactivated {
		out.UpdateKeys = []string{}
	} else if len(out.UpdateKeys) == 0 {
		return p, types.Errorf(types.KindInvalidLog, "updateKeys must not be empty unless deactivated")
	}

	return out, nil
}

func (p Parameters) IsPreRotationActive() bool {
	return len(p.NextKeyHashes) > 0
}

// IsAuthorizedForNextUpdate reports whether candidate may sign the next
// entry: under pre-rotation its hash must have been committed to, otherwise
// it must be a current update key.
func (p Parameters) IsAuthorizedForNextUpdate(candidate string) bool {
	if p.Deactivated {
		return false
	}

	if p.IsPreRotationActive() {
		h, err := hasher.HashString(candidate)
		if err != nil {
			return false
		}
		return slices.Contains(p.NextKeyHashes, h)
	}

	return slices.Contains(p.UpdateKeys, candidate)
}

// NextKeyHashesFor commits to the given multikeys.
func NextKeyHashesFor(multikeys []string) ([]string, error) {
	out := make([]string, 0, len(multikeys))
	for _, k := range Dedupe(multikeys) {
		h, err := hasher.HashString(k)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

// Dedupe keeps the first occurrence of every string across all lists.
func Dedupe(lists ...[]string) []string {
	seen := map[string]bool{}
	var out []string
	for _, l := range lists {
		for _, s := range l {
			if seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// SameSet compares two lists ignoring order and duplicates.
func SameSet(a, b []string) bool {
	da, db := Dedupe(a), Dedupe(b)
	if len(da) != len(db) {
		return false
	}
	for _, s := range da {
		if !slices.Contains(db, s) {
			return false
		}
	}
	return true
}

func (p Parameters) clone() Parameters {
	out := p
	out.UpdateKeys = slices.Clone(p.UpdateKeys)
	out.NextKeyHashes = slices.Clone(p.NextKeyHashes)
	return out
}

func StringPtr(s string) *string { return &s }

func BoolPtr(b bool) *bool { return &b }

func SlicePtr(s []string) *[]string {
	if s == nil {
		s = []string{}
	}
	return &s
}
