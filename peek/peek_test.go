package peek_test

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/haileyok/didlog/didlog"
	"github.com/haileyok/didlog/hasher"
	"github.com/haileyok/didlog/keys"
	"github.com/haileyok/didlog/method"
	"github.com/haileyok/didlog/peek"
	"github.com/haileyok/didlog/types"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func provider(t *testing.T) *keys.Ed25519Provider {
	t.Helper()
	p, err := keys.Ed25519ProviderFromSeed(bytes.Repeat([]byte{7}, ed25519.SeedSize))
	require.NoError(t, err)
	return p
}

// buildLog creates a log with n entries, one minute apart.
func buildLog(t *testing.T, v method.Version, n int) string {
	t.Helper()

	now := t0
	eng := didlog.New(didlog.Config{
		Version: v,
		Clock:   func() time.Time { return now },
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	loc, err := method.ParseLocator("example.com:8443/people/alice")
	require.NoError(t, err)

	p := provider(t)
	res, err := eng.Create(context.Background(), &didlog.CreateArgs{Locator: loc, Provider: p})
	require.NoError(t, err)

	log := res.Log
	for i := 1; i < n; i++ {
		now = now.Add(time.Minute)
		res, err = eng.Update(context.Background(), &didlog.UpdateArgs{
			Log:           log,
			Provider:      p,
			AssertionKeys: []*keys.VerificationKey{{Name: "assert", PublicKeyMultibase: p.VerificationKeyMultibase()}},
		})
		require.NoError(t, err)
		log = res.Log
	}

	return log
}

func TestPeek(t *testing.T) {
	for _, v := range method.Versions() {
		t.Run(v.Spec().Name, func(t *testing.T) {
			log := buildLog(t, v, 3)

			m, err := peek.Peek(log)
			require.NoError(t, err)
			require.Equal(t, v, m.Version)
			require.Equal(t, 3, m.Entries)
			require.Equal(t, 3, m.LastVersionNumber)
			require.True(t, strings.HasPrefix(m.LastVersionID, "3-"))
			require.True(t, strings.HasPrefix(m.PreviousVersionID, "2-"))
			require.Equal(t, t0.Add(2*time.Minute), m.LastVersionTime)
			require.Equal(t, []string{provider(t).VerificationKeyMultibase()}, m.Parameters.UpdateKeys)
			require.Equal(t, v.Spec().MethodParam, m.Parameters.Method)
			require.Equal(t, m.Parameters, m.PreviousParameters)
			require.True(t, strings.HasPrefix(m.SubjectID, v.Spec().DIDPrefix+":"+m.Parameters.SCID+":example.com%3A8443:"))
			require.NotEmpty(t, m.LastContext)
			require.Equal(t, m.LastVersionID, m.LastEntry.VersionID)
		})
	}
}

func TestPeekSingleEntry(t *testing.T) {
	log := buildLog(t, method.TDW03, 1)

	m, err := peek.Peek(log)
	require.NoError(t, err)
	require.Equal(t, 1, m.Entries)
	require.Equal(t, m.Parameters.SCID, m.PreviousVersionID)
}

func TestPeekToleratesBlankLines(t *testing.T) {
	log := buildLog(t, method.WebVH10, 2)
	padded := "\n" + strings.Replace(log, "\n", "\n\n", 1) + "\n\n"

	m, err := peek.Peek(padded)
	require.NoError(t, err)
	require.Equal(t, 2, m.Entries)
}

func TestPeekMalformed(t *testing.T) {
	cases := map[string]string{
		"empty":        "",
		"blank":        "\n\n",
		"not json":     "hello",
		"short array":  `["1-abc","2025-03-01T12:00:00Z",{}]`,
		"scalar state": `{"versionId":"1-abc","versionTime":"2025-03-01T12:00:00Z","parameters":{},"state":3,"proof":[]}`,
	}

	for name, log := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := peek.Peek(log)
			require.ErrorIs(t, err, types.ErrMalformedLog)
		})
	}
}

func TestPeekMixedShapes(t *testing.T) {
	tdw := strings.Split(strings.TrimSpace(buildLog(t, method.TDW03, 1)), "\n")
	webvh := strings.Split(strings.TrimSpace(buildLog(t, method.WebVH10, 2)), "\n")

	_, err := peek.Peek(tdw[0] + "\n" + webvh[1] + "\n")
	require.ErrorIs(t, err, types.ErrMalformedLog)
}

func mutateLine(t *testing.T, line string, fn func(m map[string]any)) string {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &m))
	fn(m)
	b, err := json.Marshal(m)
	require.NoError(t, err)
	return string(b)
}

func TestPeekInvalid(t *testing.T) {
	lines := strings.Split(strings.TrimSpace(buildLog(t, method.WebVH10, 2)), "\n")

	cases := map[string]func(m map[string]any){
		"bad version number": func(m map[string]any) {
			m["versionId"] = "7-" + strings.SplitN(m["versionId"].(string), "-", 2)[1]
		},
		"bad version id": func(m map[string]any) {
			m["versionId"] = "two"
		},
		"time goes backwards": func(m map[string]any) {
			m["versionTime"] = "2025-03-01T11:00:00Z"
		},
		"same time": func(m map[string]any) {
			m["versionTime"] = "2025-03-01T12:00:00Z"
		},
		"bad time": func(m map[string]any) {
			m["versionTime"] = "yesterday"
		},
		"scid change": func(m map[string]any) {
			m["parameters"] = map[string]any{"scid": "QmOther"}
		},
		"empty update keys": func(m map[string]any) {
			m["parameters"] = map[string]any{"updateKeys": []any{}}
		},
		"method switch": func(m map[string]any) {
			m["parameters"] = map[string]any{"method": "did:tdw:0.3"}
		},
		"foreign subject": func(m map[string]any) {
			st := m["state"].(map[string]any)
			st["id"] = "did:web:example.com"
		},
		"missing subject": func(m map[string]any) {
			st := m["state"].(map[string]any)
			delete(st, "id")
		},
	}

	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			log := lines[0] + "\n" + mutateLine(t, lines[1], fn) + "\n"
			_, err := peek.Peek(log)
			require.ErrorIs(t, err, types.ErrInvalidLog)
		})
	}
}

func TestPeekFirstEntryRequirements(t *testing.T) {
	line := strings.TrimSpace(buildLog(t, method.WebVH10, 1))

	noSCID := mutateLine(t, line, func(m map[string]any) {
		delete(m["parameters"].(map[string]any), "scid")
	})
	_, err := peek.Peek(noSCID)
	require.ErrorIs(t, err, types.ErrInvalidLog)

	badSCID := mutateLine(t, line, func(m map[string]any) {
		m["parameters"].(map[string]any)["scid"] = "QmNotAHash"
	})
	_, err = peek.Peek(badSCID)
	require.ErrorIs(t, err, types.ErrInvalidLog)

	unknown := mutateLine(t, line, func(m map[string]any) {
		m["parameters"].(map[string]any)["method"] = "did:webvh:9.9"
	})
	_, err = peek.Peek(unknown)
	require.ErrorIs(t, err, types.ErrInvalidLog)

	wrongShape := mutateLine(t, line, func(m map[string]any) {
		m["parameters"].(map[string]any)["method"] = "did:tdw:0.3"
	})
	_, err = peek.Peek(wrongShape)
	require.ErrorIs(t, err, types.ErrMalformedLog)
}

func TestPeekDeactivated(t *testing.T) {
	lines := strings.Split(strings.TrimSpace(buildLog(t, method.WebVH10, 2)), "\n")
	deact := mutateLine(t, lines[1], func(m map[string]any) {
		m["parameters"] = map[string]any{"deactivated": true}
	})

	m, err := peek.Peek(lines[0] + "\n" + deact + "\n")
	require.NoError(t, err)
	require.True(t, m.Parameters.Deactivated)
	require.Empty(t, m.Parameters.UpdateKeys)

	again := mutateLine(t, deact, func(m map[string]any) {
		m["versionId"] = "3-" + strings.SplitN(m["versionId"].(string), "-", 2)[1]
		m["versionTime"] = "2025-03-01T12:05:00Z"
	})
	_, err = peek.Peek(lines[0] + "\n" + deact + "\n" + again + "\n")
	require.ErrorIs(t, err, types.ErrInvalidLog)
}

func TestSplitVersionID(t *testing.T) {
	hash, err := hasher.HashString("entry")
	require.NoError(t, err)

	n, h, err := peek.SplitVersionID("12-" + hash)
	require.NoError(t, err)
	require.Equal(t, 12, n)
	require.Equal(t, hash, h)

	for _, bad := range []string{"", "0-Qm", "1-", "-Qm", "1-Qm0", "01-Qm", "1-QmXyz", "1-" + hash[:45]} {
		_, _, err := peek.SplitVersionID(bad)
		require.ErrorIs(t, err, types.ErrInvalidLog, bad)
	}
}
