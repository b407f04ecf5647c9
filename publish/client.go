// Package publish sends new log entries to a didlog server that accepts
// them over HTTP.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bluesky-social/indigo/util"
	"github.com/haileyok/didlog/store"
	"github.com/haileyok/didlog/types"
)

type Client struct {
	h       *http.Client
	service string
}

type ClientArgs struct {
	// Service is the server's base URL, e.g. https://example.com.
	Service string
	H       *http.Client
}

func NewClient(args *ClientArgs) (*Client, error) {
	if args.Service == "" {
		return nil, fmt.Errorf("service must be set")
	}

	if args.H == nil {
		args.H = util.RobustHTTPClient()
	}

	return &Client{
		h:       args.H,
		service: strings.TrimRight(args.Service, "/"),
	}, nil
}

// SendEntry posts line to the log stored under path.
func (c *Client) SendEntry(ctx context.Context, path, line string) (*EntryResponse, error) {
	p, err := store.CleanPath(path)
	if err != nil {
		return nil, err
	}

	target := c.service + "/.well-known/did.jsonl"
	if p != "" {
		target = c.service + "/" + p + "/did.jsonl"
	}

	req, err := http.NewRequestWithContext(ctx, "POST", target, strings.NewReader(strings.TrimSpace(line)+"\n"))
	if err != nil {
		return nil, err
	}

	req.Header.Add("content-type", "application/jsonl")

	resp, err := c.h.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		var er ErrorResponse
		if err := json.Unmarshal(b, &er); err != nil || er.Error == "" {
			return nil, fmt.Errorf("publishing to %s: status %d", target, resp.StatusCode)
		}

		if kind := types.ParseKind(er.Error); kind != types.KindUnknown {
			return nil, types.Errorf(kind, "server rejected entry: %s", er.Message)
		}

		return nil, fmt.Errorf("publishing to %s: %s", target, er.Error)
	}

	var out EntryResponse
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}

	return &out, nil
}
