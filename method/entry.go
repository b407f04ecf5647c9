package method

import (
	"bytes"
	"encoding/json"

	"github.com/haileyok/didlog/proof"
	"github.com/haileyok/didlog/types"
)

// Entry is one line of a DID log. Parameters and State are kept as raw JSON
// so that hashes computed over a parsed entry match the bytes its producer
// hashed, including fields this package does not model.
type Entry struct {
	VersionID   string
	VersionTime string
	Parameters  json.RawMessage
	State       json.RawMessage
	Proofs      []*proof.Proof
}

type namedEntry struct {
	VersionID   string          `json:"versionId"`
	VersionTime string          `json:"versionTime"`
	Parameters  json.RawMessage `json:"parameters"`
	State       json.RawMessage `json:"state"`
	Proof       []*proof.Proof  `json:"proof,omitempty"`
}

type wrappedState struct {
	Value json.RawMessage `json:"value"`
}

// MarshalLine renders e in the version's log shape, without a trailing newline.
func (e *Entry) MarshalLine(v Version) ([]byte, error) {
	proofs := e.Proofs
	if proofs == nil {
		proofs = []*proof.Proof{}
	}

	if v.Spec().Positional {
		return json.Marshal([]any{e.VersionID, e.VersionTime, e.Parameters, wrappedState{Value: e.State}, proofs})
	}

	return json.Marshal(namedEntry{
		VersionID:   e.VersionID,
		VersionTime: e.VersionTime,
		Parameters:  e.Parameters,
		State:       e.State,
		Proof:       proofs,
	})
}

// Unsigned is the entry without proofs, with versionID in the versionId
// slot. It is what SCIDs and entry hashes are computed over.
func (e *Entry) Unsigned(v Version, versionID string) any {
	if v.Spec().Positional {
		return []any{versionID, e.VersionTime, e.Parameters, wrappedState{Value: e.State}}
	}

	return namedEntry{
		VersionID:   versionID,
		VersionTime: e.VersionTime,
		Parameters:  e.Parameters,
		State:       e.State,
	}
}

// ProofTarget is the value a proof on this entry signs: the bare document
// for positional logs, the whole unsigned entry otherwise.
func (e *Entry) ProofTarget(v Version) any {
	if v.Spec().ChallengeIsVersionID {
		return e.State
	}
	return e.Unsigned(v, e.VersionID)
}

// DecodeLine parses one log line in either shape. positional reports which
// one was found. Only the shape is checked here.
func DecodeLine(line []byte) (e *Entry, positional bool, err error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, false, types.Errorf(types.KindMalformedLog, "empty log line")
	}

	switch line[0] {
	case '[':
		e, err := decodePositional(line)
		return e, true, err
	case '{':
		e, err := decodeNamed(line)
		return e, false, err
	default:
		return nil, false, types.Errorf(types.KindMalformedLog, "log line is neither a JSON array nor an object")
	}
}

func decodePositional(line []byte) (*Entry, error) {
	var slots []json.RawMessage
	if err := json.Unmarshal(line, &slots); err != nil {
		return nil, types.Wrap(types.KindMalformedLog, err, "log line is not valid JSON")
	}

	if len(slots) != 5 {
		return nil, types.Errorf(types.KindMalformedLog, "expected 5 entry slots, found %d", len(slots))
	}

	e := &Entry{}
	if err := json.Unmarshal(slots[0], &e.VersionID); err != nil {
		return nil, types.Wrap(types.KindMalformedLog, err, "versionId is not a string")
	}
	if err := json.Unmarshal(slots[1], &e.VersionTime); err != nil {
		return nil, types.Wrap(types.KindMalformedLog, err, "versionTime is not a string")
	}

	if !isObject(slots[2]) {
		return nil, types.Errorf(types.KindMalformedLog, "parameters is not an object")
	}
	e.Parameters = slots[2]

	var ws wrappedState
	if !isObject(slots[3]) {
		return nil, types.Errorf(types.KindMalformedLog, "document slot is not an object")
	}
	if err := json.Unmarshal(slots[3], &ws); err != nil || !isObject(ws.Value) {
		return nil, types.Errorf(types.KindMalformedLog, "document slot has no value object")
	}
	e.State = ws.Value

	ps, err := proof.Decode(slots[4])
	if err != nil || ps == nil {
		return nil, types.Errorf(types.KindMalformedLog, "proof slot is not a list of proofs")
	}
	e.Proofs = ps

	return e, nil
}

func decodeNamed(line []byte) (*Entry, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		return nil, types.Wrap(types.KindMalformedLog, err, "log line is not valid JSON")
	}

	for _, k := range []string{"versionId", "versionTime", "parameters", "state", "proof"} {
		if _, ok := fields[k]; !ok {
			return nil, types.Errorf(types.KindMalformedLog, "entry is missing %q", k)
		}
	}

	var ne namedEntry
	if err := json.Unmarshal(line, &ne); err != nil {
		return nil, types.Wrap(types.KindMalformedLog, err, "entry fields have the wrong type")
	}

	if !isObject(ne.Parameters) {
		return nil, types.Errorf(types.KindMalformedLog, "parameters is not an object")
	}
	if !isObject(ne.State) {
		return nil, types.Errorf(types.KindMalformedLog, "state is not an object")
	}
	ps, err := proof.Decode(fields["proof"])
	if err != nil || ps == nil {
		return nil, types.Errorf(types.KindMalformedLog, "proof is not a list of proofs")
	}

	return &Entry{
		VersionID:   ne.VersionID,
		VersionTime: ne.VersionTime,
		Parameters:  ne.Parameters,
		State:       ne.State,
		Proofs:      ps,
	}, nil
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}
