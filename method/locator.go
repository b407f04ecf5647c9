package method

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/haileyok/didlog/types"
	"golang.org/x/net/idna"
)

// Locator is where a DID log is published: a host, an optional port and an
// optional path below the web root.
type Locator struct {
	Host string
	Port string
	Path []string
}

// ParseLocator accepts "https://host[:port]/a/b[/did.jsonl]" or the same
// without the scheme.
func ParseLocator(s string) (*Locator, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, types.Errorf(types.KindInvalidInput, "empty locator")
	}

	if !strings.Contains(s, "://") {
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return nil, types.Wrap(types.KindInvalidInput, err, "invalid locator %q", s)
	}

	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, types.Errorf(types.KindInvalidInput, "unsupported locator scheme %q", u.Scheme)
	}

	host := u.Hostname()
	if host == "" || strings.ContainsAny(host, ":%") {
		return nil, types.Errorf(types.KindInvalidInput, "locator %q has no usable host", s)
	}

	// internationalized names are published in their punycode form
	host, err = idna.Lookup.ToASCII(host)
	if err != nil {
		return nil, types.Wrap(types.KindInvalidInput, err, "locator host of %q", s)
	}
	if !isIDChars(host) {
		return nil, types.Errorf(types.KindInvalidInput, "locator host %q is not a valid DID segment", host)
	}

	var segs []string
	for _, seg := range strings.Split(strings.Trim(u.Path, "/"), "/") {
		if seg == "" {
			continue
		}
		segs = append(segs, seg)
	}

	if n := len(segs); n > 0 && segs[n-1] == "did.jsonl" {
		segs = segs[:n-1]
	}
	if n := len(segs); n > 0 && segs[0] == ".well-known" {
		if n != 1 {
			return nil, types.Errorf(types.KindInvalidInput, "locator %q points inside .well-known", s)
		}
		segs = nil
	}

	for _, seg := range segs {
		if !isIDChars(seg) {
			return nil, types.Errorf(types.KindInvalidInput, "path segment %q may only use letters, digits, '.', '-' and '_'", seg)
		}
	}

	return &Locator{
		Host: strings.ToLower(host),
		Port: u.Port(),
		Path: segs,
	}, nil
}

// isIDChars reports whether s only uses the unreserved characters a DID
// segment can carry without escaping.
func isIDChars(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// DID renders did:<method>:<scid>:<host>[%3A<port>][:<path>...].
func (l *Locator) DID(v Version, scid string) string {
	parts := []string{v.Spec().DIDPrefix, scid, l.hostPart()}
	parts = append(parts, l.Path...)
	return strings.Join(parts, ":")
}

// URL is where resolvers fetch the log.
func (l *Locator) URL() string {
	host := l.Host
	if l.Port != "" {
		host = net.JoinHostPort(l.Host, l.Port)
	}

	if len(l.Path) == 0 {
		return "https://" + host + "/.well-known/did.jsonl"
	}
	return "https://" + host + "/" + strings.Join(l.Path, "/") + "/did.jsonl"
}

// StorePath is the key under which a store keeps this log: the path
// segments joined with '/', empty for the well-known location.
func (l *Locator) StorePath() string {
	return strings.Join(l.Path, "/")
}

func (l *Locator) hostPart() string {
	if l.Port == "" {
		return l.Host
	}
	return l.Host + "%3A" + l.Port
}

// LocatorOfDID recovers the locator and SCID from a did:tdw/did:webvh id.
func LocatorOfDID(did string) (*Locator, string, error) {
	v, err := VersionOfDID(did)
	if err != nil {
		return nil, "", err
	}

	rest := strings.TrimPrefix(did, v.Spec().DIDPrefix+":")
	parts := strings.Split(rest, ":")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return nil, "", fmt.Errorf("method: %q lacks an scid or host", did)
	}

	host, port, _ := strings.Cut(parts[1], "%3A")

	return &Locator{
		Host: host,
		Port: port,
		Path: parts[2:],
	}, parts[0], nil
}
