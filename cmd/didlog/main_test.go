package main

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/haileyok/didlog/didlog"
	"github.com/haileyok/didlog/keys"
	"github.com/haileyok/didlog/method"
	"github.com/haileyok/didlog/peek"
	"github.com/stretchr/testify/require"
)

// writeGenesis stores a one-entry log dated in the past so that commands
// running on the wall clock can append to it.
func writeGenesis(t *testing.T, dir string) (string, string) {
	t.Helper()

	p, err := keys.Ed25519ProviderFromSeed(bytes.Repeat([]byte{3}, ed25519.SeedSize))
	require.NoError(t, err)

	keyFile := filepath.Join(dir, "signing.pem")
	require.NoError(t, keys.WriteSigningKey(keyFile, p, false))

	loc, err := method.ParseLocator("example.com/people/alice")
	require.NoError(t, err)

	eng := didlog.New(didlog.Config{
		Version: method.WebVH10,
		Clock:   func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) },
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	res, err := eng.Create(context.Background(), &didlog.CreateArgs{Locator: loc, Provider: p})
	require.NoError(t, err)

	logFile := filepath.Join(dir, "did.jsonl")
	require.NoError(t, os.WriteFile(logFile, []byte(res.Log), 0o644))

	return keyFile, logFile
}

func TestUpdateInPlace(t *testing.T) {
	dir := t.TempDir()
	keyFile, logFile := writeGenesis(t, dir)

	err := newApp().Run([]string{"didlog", "update",
		"--log-file", logFile,
		"--in-place",
		"--signing-key", keyFile,
		"--assertion-key", "A1," + keyFile + ".pub",
	})
	require.NoError(t, err)

	b, err := os.ReadFile(logFile)
	require.NoError(t, err)
	require.Len(t, strings.Split(strings.TrimSpace(string(b)), "\n"), 2)

	m, err := peek.Peek(string(b))
	require.NoError(t, err)
	require.Equal(t, 2, m.LastVersionNumber)

	left, err := filepath.Glob(filepath.Join(dir, ".did.jsonl-*"))
	require.NoError(t, err)
	require.Empty(t, left)
}

func TestAppendOutputFlags(t *testing.T) {
	dir := t.TempDir()
	keyFile, logFile := writeGenesis(t, dir)

	before, err := os.ReadFile(logFile)
	require.NoError(t, err)

	err = newApp().Run([]string{"didlog", "deactivate",
		"--log-file", logFile,
		"--in-place",
		"--out", filepath.Join(dir, "out.jsonl"),
		"--signing-key", keyFile,
	})
	require.ErrorContains(t, err, "mutually exclusive")

	out := filepath.Join(dir, "out.jsonl")
	err = newApp().Run([]string{"didlog", "deactivate",
		"--log-file", logFile,
		"--out", out,
		"--signing-key", keyFile,
	})
	require.NoError(t, err)

	after, err := os.ReadFile(logFile)
	require.NoError(t, err)
	require.Equal(t, before, after)

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	m, err := peek.Peek(string(b))
	require.NoError(t, err)
	require.True(t, m.Parameters.Deactivated)
}
