package identity

import (
	"context"
	"net/http"
	"sync"
)

type BackingCache interface {
	GetLog(did string) (string, bool)
	PutLog(did string, log string) error
	BustLog(did string) error
}

type skipCacheKey struct{}

// WithSkipCache makes the passport refetch instead of answering from cache.
func WithSkipCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipCacheKey{}, true)
}

// Passport resolves DIDs over HTTP and keeps their verified logs around.
type Passport struct {
	h  *http.Client
	bc BackingCache
	lk sync.Mutex
}

func NewPassport(h *http.Client, bc BackingCache) *Passport {
	return &Passport{
		h:  h,
		bc: bc,
		lk: sync.Mutex{},
	}
}

func (p *Passport) Resolve(ctx context.Context, did string) (*Resolution, error) {
	skipCache, _ := ctx.Value(skipCacheKey{}).(bool)

	if !skipCache {
		if cached, ok := p.bc.GetLog(did); ok {
			return ResolveLog(ctx, did, cached)
		}
	}

	p.lk.Lock()
	defer p.lk.Unlock()

	res, err := ResolveDID(ctx, p.h, did)
	if err != nil {
		return nil, err
	}

	p.bc.PutLog(did, res.Log)

	return res, nil
}

func (p *Passport) BustLog(ctx context.Context, did string) error {
	return p.bc.BustLog(did)
}
