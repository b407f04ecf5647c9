package identity

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/bluesky-social/indigo/atproto/syntax"
	"github.com/bluesky-social/indigo/util"
	"github.com/haileyok/didlog/didlog"
	"github.com/haileyok/didlog/method"
	"github.com/haileyok/didlog/peek"
	"github.com/haileyok/didlog/types"
)

var maxLogSize int64 = 32 << 20

// FetchLog downloads the did.jsonl a did:tdw/did:webvh identifier points at.
func FetchLog(ctx context.Context, cli *http.Client, did string) (string, error) {
	if cli == nil {
		cli = util.RobustHTTPClient()
	}

	if _, err := syntax.ParseDID(did); err != nil {
		return "", types.Wrap(types.KindInvalidInput, err, "did %q", did)
	}

	loc, _, err := method.LocatorOfDID(did)
	if err != nil {
		return "", types.Wrap(types.KindInvalidInput, err, "did %q", did)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", loc.URL(), nil)
	if err != nil {
		return "", err
	}

	resp, err := cli.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("fetching %s: status %d", loc.URL(), resp.StatusCode)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxLogSize+1))
	if err != nil {
		return "", err
	}

	// a cut-off log could still parse as an older version
	if int64(len(b)) > maxLogSize {
		return "", fmt.Errorf("fetching %s: log exceeds %d bytes", loc.URL(), maxLogSize)
	}

	return string(b), nil
}

// ResolveLog checks logText with the chain resolver and that it really is
// the log of did.
func ResolveLog(ctx context.Context, did, logText string) (*Resolution, error) {
	doc, err := didlog.ChainResolver{}.Resolve(ctx, logText)
	if err != nil {
		return nil, err
	}

	meta, err := peek.Peek(logText)
	if err != nil {
		return nil, err
	}

	if meta.SubjectID != did {
		return nil, types.Errorf(types.KindInvalidLog, "log is for %s, not %s", meta.SubjectID, did)
	}

	return &Resolution{
		Did:      did,
		Log:      logText,
		Meta:     meta,
		Document: doc,
	}, nil
}

func ResolveDID(ctx context.Context, cli *http.Client, did string) (*Resolution, error) {
	log, err := FetchLog(ctx, cli, did)
	if err != nil {
		return nil, err
	}

	return ResolveLog(ctx, did, log)
}
