package didresolver

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/parlakisik/aex-ap2/internal/ap2"
)

const (
	// DefaultCacheTTL is how long to cache a resolved DID document.
	DefaultCacheTTL = 5 * time.Minute
	// DefaultTimeout bounds a single resolution fetch.
	DefaultTimeout = 10 * time.Second
)

// Resolver fetches and caches DID documents for AP2 agents. Every envelope
// the federation receives carries a `kid` of the shape "did:...#key-N"; the
// envelope handler calls ResolveKey to turn that into a verification key,
// never trusting a key embedded in the envelope itself.
type Resolver struct {
	httpClient *http.Client
	cache      map[string]*cacheEntry
	cacheMu    sync.RWMutex
	cacheTTL   time.Duration
}

type cacheEntry struct {
	doc       *ResolvedDocument
	expiresAt time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCacheTTL overrides DefaultCacheTTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(r *Resolver) { r.cacheTTL = ttl }
}

// WithHTTPClient overrides the resolver's HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Resolver) { r.httpClient = client }
}

// NewResolver creates a DID document resolver.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		cache:      make(map[string]*cacheEntry),
		cacheTTL:   DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve fetches (or returns a cached copy of) the DID document published
// at baseURL's /.well-known/did.json.
func (r *Resolver) Resolve(ctx context.Context, baseURL string) (*ResolvedDocument, error) {
	didDocURL, err := r.buildDIDDocURL(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	if cached := r.getCached(didDocURL); cached != nil {
		slog.DebugContext(ctx, "did document cache hit", "url", didDocURL)
		return cached, nil
	}

	slog.InfoContext(ctx, "resolving did document", "url", didDocURL)
	doc, err := r.fetch(ctx, didDocURL)
	if err != nil {
		return nil, ap2.ErrDIDResolutionFailed(err)
	}

	r.setCache(didDocURL, doc)
	return doc, nil
}

// ResolveKey resolves kid (a "did:...#fragment" string) to a verification
// key. It fails closed if the key is missing or marked REVOKED.
func (r *Resolver) ResolveKey(ctx context.Context, baseURL, kid string) (interface{}, error) {
	doc, err := r.Resolve(ctx, baseURL)
	if err != nil {
		return nil, err
	}

	for _, vm := range doc.VerificationMethod {
		if vm.ID != kid {
			continue
		}
		if vm.Status == KeyStatusRevoked {
			return nil, fmt.Errorf("verification method %s is revoked", kid)
		}
		pub, err := ap2.DecodePublicKeyPEM([]byte(vm.PublicKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("decode verification method %s: %w", kid, err)
		}
		switch pub.(type) {
		case *ecdsa.PublicKey, ed25519.PublicKey:
			return pub, nil
		default:
			return nil, fmt.Errorf("unsupported key type for %s", kid)
		}
	}
	return nil, fmt.Errorf("verification method %s not found in %s", kid, doc.ID)
}

// InvalidateCache drops the cached document for baseURL.
func (r *Resolver) InvalidateCache(baseURL string) {
	didDocURL, err := r.buildDIDDocURL(baseURL)
	if err != nil {
		return
	}
	r.cacheMu.Lock()
	delete(r.cache, didDocURL)
	r.cacheMu.Unlock()
}

// ClearCache drops every cached document.
func (r *Resolver) ClearCache() {
	r.cacheMu.Lock()
	r.cache = make(map[string]*cacheEntry)
	r.cacheMu.Unlock()
}

func (r *Resolver) buildDIDDocURL(baseURL string) (string, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return "", fmt.Errorf("empty base URL")
	}
	if strings.HasSuffix(baseURL, "did.json") {
		return baseURL, nil
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + WellKnownPath
	return u.String(), nil
}

func (r *Resolver) fetch(ctx context.Context, didDocURL string) (*ResolvedDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, didDocURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "ap2-did-resolver/1.0")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch did document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("did document fetch failed: HTTP %d: %s", resp.StatusCode, string(body))
	}

	var doc Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode did document: %w", err)
	}
	if doc.ID == "" {
		return nil, fmt.Errorf("did document missing required field: id")
	}
	if len(doc.VerificationMethod) == 0 {
		return nil, fmt.Errorf("did document has no verificationMethod entries")
	}

	now := time.Now()
	resolved := &ResolvedDocument{
		Document:   doc,
		SourceURL:  didDocURL,
		ResolvedAt: now,
		ValidUntil: now.Add(r.cacheTTL),
	}
	return resolved, nil
}

func (r *Resolver) getCached(url string) *ResolvedDocument {
	r.cacheMu.RLock()
	entry, ok := r.cache[url]
	r.cacheMu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return nil
	}
	return entry.doc
}

func (r *Resolver) setCache(url string, doc *ResolvedDocument) {
	r.cacheMu.Lock()
	r.cache[url] = &cacheEntry{doc: doc, expiresAt: time.Now().Add(r.cacheTTL)}
	r.cacheMu.Unlock()
}
