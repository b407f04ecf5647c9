// Package method describes the two supported DID method versions and the
// shape of their log entries.
package method

import (
	"fmt"
	"strings"

	"github.com/haileyok/didlog/proof"
)

// Version is a closed selector over the supported method versions.
type Version int

const (
	TDW03 Version = iota + 1
	WebVH10
)

// Placeholder stands in for the SCID until the genesis entry is hashed.
const Placeholder = "{SCID}"

// Spec is the per-version data table. Engine code branches on these fields,
// never on the Version itself.
type Spec struct {
	Version     Version
	Name        string
	DIDPrefix   string
	MethodParam string

	// Positional entries are 5-element arrays with the document wrapped in
	// {"value": ...}; otherwise entries are named-field objects.
	Positional bool

	ProofPurpose string
	// ChallengeIsVersionID signs the document with the versionId as
	// challenge. Otherwise the proof covers the whole entry.
	ChallengeIsVersionID bool
	// PrerotationFlag emits "prerotation": true next to nextKeyHashes.
	PrerotationFlag bool
	// KeysActiveImmediately makes updateKeys changed by an entry authorize
	// that same entry. Otherwise they take effect from the next entry,
	// except under pre-rotation.
	KeysActiveImmediately bool
}

var specs = map[Version]*Spec{
	TDW03: {
		Version:               TDW03,
		Name:                  "tdw",
		DIDPrefix:             "did:tdw",
		MethodParam:           "did:tdw:0.3",
		Positional:            true,
		ProofPurpose:          proof.PurposeAuthentication,
		ChallengeIsVersionID:  true,
		PrerotationFlag:       true,
		KeysActiveImmediately: true,
	},
	WebVH10: {
		Version:      WebVH10,
		Name:         "webvh",
		DIDPrefix:    "did:webvh",
		MethodParam:  "did:webvh:1.0",
		ProofPurpose: proof.PurposeAssertionMethod,
	},
}

func (v Version) Spec() *Spec {
	s, ok := specs[v]
	if !ok {
		panic(fmt.Sprintf("method: unknown version %d", int(v)))
	}
	return s
}

func (v Version) String() string {
	if s, ok := specs[v]; ok {
		return s.MethodParam
	}
	return fmt.Sprintf("Version(%d)", int(v))
}

// ParseVersion accepts a short name ("tdw", "webvh"), a method parameter
// ("did:tdw:0.3") or a DID prefix ("did:webvh").
func ParseVersion(s string) (Version, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for v, sp := range specs {
		if s == sp.Name || s == sp.MethodParam || s == sp.DIDPrefix {
			return v, nil
		}
	}
	return 0, fmt.Errorf("method: unsupported method version %q", s)
}

// VersionOfDID picks the version from a DID string's method name.
func VersionOfDID(did string) (Version, error) {
	for v, sp := range specs {
		if strings.HasPrefix(did, sp.DIDPrefix+":") {
			return v, nil
		}
	}
	return 0, fmt.Errorf("method: %q is not a did:tdw or did:webvh identifier", did)
}

func Versions() []Version {
	return []Version{TDW03, WebVH10}
}
