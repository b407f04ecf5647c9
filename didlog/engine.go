// Package didlog creates, updates and deactivates did:tdw / did:webvh logs.
//
// Every call is a pure function of the input log text, the key provider and
// the clock. A call either returns a new, verified entry or fails without
// side effects; the engine never writes anywhere itself.
package didlog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/haileyok/didlog/hasher"
	"github.com/haileyok/didlog/keys"
	"github.com/haileyok/didlog/method"
	"github.com/haileyok/didlog/params"
	"github.com/haileyok/didlog/peek"
	"github.com/haileyok/didlog/proof"
	"github.com/haileyok/didlog/types"
)

// Resolver fully resolves a log and returns its current document. It is
// only consulted after an entry has been built.
type Resolver interface {
	Resolve(ctx context.Context, logText string) (json.RawMessage, error)
}

type Config struct {
	// Version is used by Create. Update and Deactivate follow the log.
	Version  method.Version
	Clock    func() time.Time
	Resolver Resolver
	Logger   *slog.Logger
}

type Engine struct {
	version  method.Version
	clock    func() time.Time
	resolver Resolver
	logger   *slog.Logger
}

func New(cfg Config) *Engine {
	if cfg.Version == 0 {
		cfg.Version = method.TDW03
	}

	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	if cfg.Resolver == nil {
		cfg.Resolver = ChainResolver{}
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{}))
	}

	return &Engine{
		version:  cfg.Version,
		clock:    cfg.Clock,
		resolver: cfg.Resolver,
		logger:   cfg.Logger,
	}
}

type CreateArgs struct {
	Locator       *method.Locator
	Provider      keys.Provider
	AuthKeys      []*keys.VerificationKey
	AssertionKeys []*keys.VerificationKey
	// UpdateKeys are authorized next to the provider's own key.
	UpdateKeys []string
	// NextKeys are committed to via nextKeyHashes, enabling pre-rotation.
	NextKeys []string
	Portable bool
	// Time defaults to the engine clock.
	Time time.Time
}

type UpdateArgs struct {
	Log           string
	Provider      keys.Provider
	AuthKeys      []*keys.VerificationKey
	AssertionKeys []*keys.VerificationKey
	UpdateKeys    []string
	NextKeys      []string
	Time          time.Time
}

type DeactivateArgs struct {
	Log      string
	Provider keys.Provider
	Time     time.Time
}

type Result struct {
	DID       string
	VersionID string
	Entry     *method.Entry
	// Line is the new entry as written to the log, without newline.
	Line string
	// Log is the whole log including Line, newline terminated.
	Log string
	// Document is what the resolver returned for Log.
	Document json.RawMessage
}

func (e *Engine) Create(ctx context.Context, args *CreateArgs) (*Result, error) {
	if args.Locator == nil {
		return nil, types.Errorf(types.KindInvalidInput, "locator must be set")
	}
	if args.Provider == nil {
		return nil, types.Errorf(types.KindInvalidInput, "key provider must be set")
	}

	v := e.version
	sp := v.Spec()

	when, err := e.entryTime(args.Time, time.Time{})
	if err != nil {
		return nil, err
	}

	signer := args.Provider.VerificationKeyMultibase()

	extra, err := checkMultikeys(args.UpdateKeys)
	if err != nil {
		return nil, err
	}
	next, err := checkMultikeys(args.NextKeys)
	if err != nil {
		return nil, err
	}

	didPH := args.Locator.DID(v, method.Placeholder)

	auth, assertion := args.AuthKeys, args.AssertionKeys
	if len(auth) == 0 && len(assertion) == 0 {
		def := &keys.VerificationKey{Name: defaultKeyName, PublicKeyMultibase: signer}
		auth, assertion = []*keys.VerificationKey{def}, []*keys.VerificationKey{def}
	}

	doc, err := buildDocument(didPH, auth, assertion)
	if err != nil {
		return nil, err
	}

	delta := params.Delta{
		Method:     params.StringPtr(sp.MethodParam),
		SCID:       params.StringPtr(method.Placeholder),
		UpdateKeys: params.SlicePtr(params.Dedupe([]string{signer}, extra)),
	}

	if len(next) > 0 {
		hashes, err := params.NextKeyHashesFor(next)
		if err != nil {
			return nil, err
		}
		delta.NextKeyHashes = params.SlicePtr(hashes)
		if sp.PrerotationFlag {
			delta.Prerotation = params.BoolPtr(true)
		}
	}

	if args.Portable {
		delta.Portable = params.BoolPtr(true)
	}

	entry, err := newEntry(types.FormatTime(when), delta, doc)
	if err != nil {
		return nil, err
	}

	scid, err := hasher.BuildSCID(entry.Unsigned(v, method.Placeholder))
	if err != nil {
		return nil, fmt.Errorf("didlog: computing scid: %w", err)
	}

	entry.Parameters = replacePlaceholder(entry.Parameters, scid)
	entry.State = replacePlaceholder(entry.State, scid)

	if err := e.seal(ctx, v, entry, 1, scid, args.Provider); err != nil {
		return nil, err
	}

	e.logger.Info("created did log", "did", args.Locator.DID(v, scid), "versionId", entry.VersionID, "method", sp.MethodParam)

	return e.finish(ctx, v, "", entry)
}

func (e *Engine) Update(ctx context.Context, args *UpdateArgs) (*Result, error) {
	if args.Provider == nil {
		return nil, types.Errorf(types.KindInvalidInput, "key provider must be set")
	}

	meta, err := peek.Peek(args.Log)
	if err != nil {
		return nil, err
	}

	v := meta.Version
	sp := v.Spec()
	cur := meta.Parameters

	if cur.Deactivated {
		return nil, types.Errorf(types.KindAlreadyDeactivated, "%s is deactivated", meta.SubjectID)
	}

	signer := args.Provider.VerificationKeyMultibase()
	if !cur.IsAuthorizedForNextUpdate(signer) {
		if cur.IsPreRotationActive() {
			return nil, types.Errorf(types.KindAuthorizationMismatch, "key %s was not committed to in nextKeyHashes", signer)
		}
		return nil, types.Errorf(types.KindAuthorizationMismatch, "key %s is not an update key of %s", signer, meta.SubjectID)
	}

	when, err := e.entryTime(args.Time, meta.LastVersionTime)
	if err != nil {
		return nil, err
	}

	if len(args.AuthKeys) == 0 && len(args.AssertionKeys) == 0 {
		return nil, types.Errorf(types.KindInvalidInput, "update needs authentication or assertion keys")
	}

	added, err := checkMultikeys(args.UpdateKeys)
	if err != nil {
		return nil, err
	}
	next, err := checkMultikeys(args.NextKeys)
	if err != nil {
		return nil, err
	}

	doc, err := buildDocument(meta.SubjectID, args.AuthKeys, args.AssertionKeys)
	if err != nil {
		return nil, err
	}

	var delta params.Delta

	if cur.IsPreRotationActive() {
		// every key revealed now must have been committed to
		revealed := params.Dedupe([]string{signer}, added)
		for _, k := range revealed {
			if !cur.IsAuthorizedForNextUpdate(k) {
				return nil, types.Errorf(types.KindAuthorizationMismatch, "update key %s does not match any committed nextKeyHash", k)
			}
		}
		delta.UpdateKeys = params.SlicePtr(revealed)
	} else if merged := params.Dedupe(cur.UpdateKeys, added); len(merged) != len(cur.UpdateKeys) {
		delta.UpdateKeys = params.SlicePtr(merged)
	}

	if len(next) > 0 {
		hashes, err := params.NextKeyHashesFor(next)
		if err != nil {
			return nil, err
		}
		if !params.SameSet(hashes, cur.NextKeyHashes) {
			delta.NextKeyHashes = params.SlicePtr(hashes)
			if sp.PrerotationFlag && !cur.Prerotation {
				delta.Prerotation = params.BoolPtr(true)
			}
		}
	}

	entry, err := newEntry(types.FormatTime(when), delta, doc)
	if err != nil {
		return nil, err
	}

	if err := e.seal(ctx, v, entry, meta.LastVersionNumber+1, meta.LastVersionID, args.Provider); err != nil {
		return nil, err
	}

	e.logger.Info("updated did log", "did", meta.SubjectID, "versionId", entry.VersionID)

	return e.finish(ctx, v, args.Log, entry)
}

func (e *Engine) Deactivate(ctx context.Context, args *DeactivateArgs) (*Result, error) {
	if args.Provider == nil {
		return nil, types.Errorf(types.KindInvalidInput, "key provider must be set")
	}

	meta, err := peek.Peek(args.Log)
	if err != nil {
		return nil, err
	}

	v := meta.Version
	cur := meta.Parameters

	if cur.Deactivated {
		return nil, types.Errorf(types.KindAlreadyDeactivated, "%s is already deactivated", meta.SubjectID)
	}

	signer := args.Provider.VerificationKeyMultibase()
	if !args.Provider.IsKeyInSet(cur.UpdateKeys) {
		return nil, types.Errorf(types.KindAuthorizationMismatch, "key %s is not an update key of %s", signer, meta.SubjectID)
	}

	when, err := e.entryTime(args.Time, meta.LastVersionTime)
	if err != nil {
		return nil, err
	}

	delta := params.Delta{
		Deactivated: params.BoolPtr(true),
		UpdateKeys:  params.SlicePtr(nil),
	}

	entry, err := newEntry(types.FormatTime(when), delta, deactivatedDocument(meta.SubjectID, meta.LastContext))
	if err != nil {
		return nil, err
	}

	if err := e.seal(ctx, v, entry, meta.LastVersionNumber+1, meta.LastVersionID, args.Provider); err != nil {
		return nil, err
	}

	e.logger.Info("deactivated did log", "did", meta.SubjectID, "versionId", entry.VersionID)

	return e.finish(ctx, v, args.Log, entry)
}

// seal chains entry to prevID, sets its versionId and signs it.
func (e *Engine) seal(ctx context.Context, v method.Version, entry *method.Entry, number int, prevID string, p keys.Provider) error {
	sp := v.Spec()

	h, err := hasher.BuildSCID(entry.Unsigned(v, prevID))
	if err != nil {
		return fmt.Errorf("didlog: computing entry hash: %w", err)
	}

	entry.VersionID = fmt.Sprintf("%d-%s", number, h)

	created, err := types.ParseTime(entry.VersionTime)
	if err != nil {
		return err
	}

	pargs := &proof.Args{
		Provider:     p,
		ProofPurpose: sp.ProofPurpose,
		Created:      created,
	}
	if sp.ChallengeIsVersionID {
		pargs.Challenge = params.StringPtr(entry.VersionID)
	}

	e.logger.Debug("signing entry", "versionId", entry.VersionID, "verificationMethod", keys.VerificationMethodID(p.VerificationKeyMultibase()))

	pr, err := proof.Build(ctx, entry.ProofTarget(v), pargs)
	if err != nil {
		return err
	}

	entry.Proofs = []*proof.Proof{pr}

	return nil
}

// finish appends entry to prior and runs the resolver over the result.
// Nothing is returned unless the resolver accepts the new log.
func (e *Engine) finish(ctx context.Context, v method.Version, prior string, entry *method.Entry) (*Result, error) {
	line, err := entry.MarshalLine(v)
	if err != nil {
		return nil, fmt.Errorf("didlog: marshal entry: %w", err)
	}

	var sb strings.Builder
	if trimmed := strings.TrimRight(prior, "\r\n"); trimmed != "" {
		sb.WriteString(trimmed)
		sb.WriteByte('\n')
	}
	sb.Write(line)
	sb.WriteByte('\n')
	full := sb.String()

	doc, err := e.resolver.Resolve(ctx, full)
	if err != nil {
		e.logger.Error("resolving appended log failed", "versionId", entry.VersionID, "error", err)
		return nil, types.Wrap(types.KindUnresolvableResult, err, "new entry %s does not resolve", entry.VersionID)
	}

	var subject struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(doc, &subject); err != nil || subject.ID == "" {
		return nil, types.Errorf(types.KindUnresolvableResult, "resolver returned no document for %s", entry.VersionID)
	}

	return &Result{
		DID:       subject.ID,
		VersionID: entry.VersionID,
		Entry:     entry,
		Line:      string(line),
		Log:       full,
		Document:  doc,
	}, nil
}

// entryTime picks the versionTime: never in the future and strictly after
// the previous entry, both at second precision.
func (e *Engine) entryTime(requested, last time.Time) (time.Time, error) {
	now := e.clock().UTC().Truncate(time.Second)

	t := requested
	if t.IsZero() {
		t = now
	}
	t = t.UTC().Truncate(time.Second)

	if t.After(now) {
		return time.Time{}, types.Errorf(types.KindTemporalViolation, "versionTime %s is in the future", types.FormatTime(t))
	}

	if !last.IsZero() && !t.After(last) {
		return time.Time{}, types.Errorf(types.KindTemporalViolation, "versionTime %s is not after the last entry's %s", types.FormatTime(t), types.FormatTime(last))
	}

	return t, nil
}

func newEntry(versionTime string, delta params.Delta, doc map[string]any) (*method.Entry, error) {
	pb, err := json.Marshal(delta)
	if err != nil {
		return nil, err
	}

	db, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}

	return &method.Entry{
		VersionTime: versionTime,
		Parameters:  pb,
		State:       db,
	}, nil
}

func replacePlaceholder(raw json.RawMessage, scid string) json.RawMessage {
	return bytes.ReplaceAll(raw, []byte(method.Placeholder), []byte(scid))
}

func checkMultikeys(mks []string) ([]string, error) {
	for _, mk := range mks {
		if _, err := keys.PublicFromMultikey(mk); err != nil {
			return nil, types.Wrap(types.KindInvalidInput, err, "key %q", mk)
		}
	}
	return params.Dedupe(mks), nil
}
