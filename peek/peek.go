// Package peek reads just enough of a DID log to append to it: the last
// version, the merged parameters and the subject id. It checks structure
// only; signatures are not verified here.
package peek

import (
	"bufio"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bluesky-social/indigo/atproto/syntax"
	"github.com/haileyok/didlog/hasher"
	"github.com/haileyok/didlog/method"
	"github.com/haileyok/didlog/params"
	"github.com/haileyok/didlog/types"
)

var versionIDPattern = regexp.MustCompile(`^([1-9][0-9]*)-([1-9A-HJ-NP-Za-km-z]+)$`)

type Meta struct {
	Version method.Version

	LastVersionID     string
	LastVersionNumber int
	LastVersionTime   time.Time
	// PreviousVersionID is the versionId the last entry was chained to:
	// the SCID for a single-entry log.
	PreviousVersionID string

	Parameters         params.Parameters
	PreviousParameters params.Parameters

	SubjectID   string
	LastContext json.RawMessage
	LastEntry   *method.Entry
	Entries     int
}

// Peek parses logText one line per entry and returns the metadata of its
// last entry.
func Peek(logText string) (*Meta, error) {
	sc := bufio.NewScanner(strings.NewReader(logText))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	m := &Meta{}
	var positional bool

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		e, pos, err := method.DecodeLine([]byte(line))
		if err != nil {
			return nil, types.Wrap(types.KindMalformedLog, err, "entry %d", m.Entries+1)
		}

		if m.Entries == 0 {
			positional = pos
		} else if pos != positional {
			return nil, types.Errorf(types.KindMalformedLog, "entry %d changes the entry shape", m.Entries+1)
		}

		if err := m.accept(e, pos); err != nil {
			return nil, err
		}
	}

	if err := sc.Err(); err != nil {
		return nil, types.Wrap(types.KindMalformedLog, err, "reading log")
	}

	if m.Entries == 0 {
		return nil, types.Errorf(types.KindMalformedLog, "log has no entries")
	}

	return m, nil
}

func (m *Meta) accept(e *method.Entry, positional bool) error {
	n := m.Entries + 1

	var delta params.Delta
	if err := json.Unmarshal(e.Parameters, &delta); err != nil {
		return types.Wrap(types.KindMalformedLog, err, "entry %d parameters", n)
	}

	if n == 1 {
		if delta.Method == nil || delta.SCID == nil {
			return types.Errorf(types.KindInvalidLog, "first entry must set method and scid")
		}

		v, err := method.ParseVersion(*delta.Method)
		if err != nil {
			return types.Wrap(types.KindInvalidLog, err, "first entry")
		}

		if v.Spec().Positional != positional {
			return types.Errorf(types.KindMalformedLog, "%s entries have the wrong shape", v)
		}

		if _, err := hasher.ParseHash(*delta.SCID); err != nil {
			return types.Wrap(types.KindInvalidLog, err, "first entry scid")
		}

		m.Version = v
		m.PreviousVersionID = *delta.SCID
	} else {
		m.PreviousVersionID = m.LastVersionID
		if delta.Method != nil && *delta.Method != m.Version.Spec().MethodParam {
			return types.Errorf(types.KindInvalidLog, "entry %d switches method to %s", n, *delta.Method)
		}
	}

	num, err := versionNumber(e.VersionID)
	if err != nil {
		return types.Wrap(types.KindInvalidLog, err, "entry %d", n)
	}
	if num != n {
		return types.Errorf(types.KindInvalidLog, "entry %d has version number %d", n, num)
	}

	vt, err := types.ParseTime(e.VersionTime)
	if err != nil {
		return types.Wrap(types.KindInvalidLog, err, "entry %d versionTime", n)
	}
	if n > 1 && !vt.After(m.LastVersionTime) {
		return types.Errorf(types.KindInvalidLog, "entry %d versionTime %s is not after %s", n, e.VersionTime, types.FormatTime(m.LastVersionTime))
	}

	merged, err := m.Parameters.Merge(&delta)
	if err != nil {
		return types.Wrap(types.KindInvalidLog, err, "entry %d parameters", n)
	}

	subject, ctx, err := subjectOf(e.State)
	if err != nil {
		return types.Wrap(types.KindInvalidLog, err, "entry %d", n)
	}
	if v, err := method.VersionOfDID(subject); err != nil || v != m.Version {
		return types.Errorf(types.KindInvalidLog, "entry %d subject %s does not belong to %s", n, subject, m.Version)
	}
	if !strings.Contains(subject, ":"+merged.SCID+":") {
		return types.Errorf(types.KindInvalidLog, "entry %d subject %s does not carry scid %s", n, subject, merged.SCID)
	}

	m.PreviousParameters = m.Parameters
	m.Parameters = merged
	m.LastVersionID = e.VersionID
	m.LastVersionNumber = num
	m.LastVersionTime = vt
	m.SubjectID = subject
	m.LastContext = ctx
	m.LastEntry = e
	m.Entries = n

	return nil
}

// SplitVersionID returns the number and hash of "<n>-<hash>".
func SplitVersionID(id string) (int, string, error) {
	mt := versionIDPattern.FindStringSubmatch(id)
	if mt == nil {
		return 0, "", types.Errorf(types.KindInvalidLog, "versionId %q is not <number>-<hash>", id)
	}

	n, err := strconv.Atoi(mt[1])
	if err != nil {
		return 0, "", types.Wrap(types.KindInvalidLog, err, "versionId %q", id)
	}

	if _, err := hasher.ParseHash(mt[2]); err != nil {
		return 0, "", types.Wrap(types.KindInvalidLog, err, "versionId %q", id)
	}

	return n, mt[2], nil
}

func versionNumber(id string) (int, error) {
	n, _, err := SplitVersionID(id)
	return n, err
}

func subjectOf(state json.RawMessage) (string, json.RawMessage, error) {
	var doc struct {
		ID      string          `json:"id"`
		Context json.RawMessage `json:"@context"`
	}
	if err := json.Unmarshal(state, &doc); err != nil {
		return "", nil, types.Wrap(types.KindInvalidLog, err, "document")
	}

	if doc.ID == "" {
		return "", nil, types.Errorf(types.KindInvalidLog, "document has no id")
	}

	if _, err := syntax.ParseDID(doc.ID); err != nil {
		return "", nil, types.Wrap(types.KindInvalidLog, err, "document id %q", doc.ID)
	}

	return doc.ID, doc.Context, nil
}
