// Package store persists DID logs by the path they are served under. A store
// keeps lines exactly as given; the engine is responsible for their
// validity.
package store

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrNotFound = errors.New("store: log not found")
	ErrExists   = errors.New("store: log already exists")
)

type Store interface {
	// Load returns the whole log, newline terminated.
	Load(ctx context.Context, path string) (string, error)
	Create(ctx context.Context, path, did, line string) error
	Append(ctx context.Context, path, line string) error
}

// CleanPath normalizes a store path: segments joined with '/', no leading
// or trailing slash and no "did.jsonl" suffix. The empty path is the
// well-known log.
func CleanPath(p string) (string, error) {
	p = strings.Trim(p, "/")
	p = strings.TrimSuffix(p, "did.jsonl")
	p = strings.Trim(p, "/")
	if p == "" || p == ".well-known" {
		return "", nil
	}

	segs := strings.Split(p, "/")
	for _, s := range segs {
		if s == "" || s == "." || s == ".." || strings.ContainsAny(s, ":\\") {
			return "", errors.New("store: invalid path " + p)
		}
	}

	return strings.Join(segs, "/"), nil
}

func singleLine(line string) string {
	return strings.TrimRight(line, "\r\n")
}
