package didresolver

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/parlakisik/aex-ap2/internal/ap2"
)

func testKeyPEM(t *testing.T) (string, *ecdsa.PrivateKey) {
	t.Helper()
	kp, err := ap2.GenerateKeyPair(ap2.AlgES256)
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}
	pemBytes, err := kp.PublicKeyPEM()
	if err != nil {
		t.Fatalf("PublicKeyPEM() error = %v", err)
	}
	return string(pemBytes), kp.ECDSAKey
}

func TestResolver_Resolve(t *testing.T) {
	pubPEM, _ := testKeyPEM(t)
	doc := Document{
		ID: "did:web:merchant.example",
		VerificationMethod: []VerificationMethod{
			{ID: "did:web:merchant.example#key-1", Type: "JsonWebKey2020", Controller: "did:web:merchant.example", PublicKeyPEM: pubPEM, Status: KeyStatusActive},
		},
		Authentication: []string{"did:web:merchant.example#key-1"},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != WellKnownPath {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(doc)
	}))
	defer server.Close()

	resolver := NewResolver(WithCacheTTL(time.Minute))
	resolved, err := resolver.Resolve(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if resolved.ID != doc.ID {
		t.Errorf("ID = %q, want %q", resolved.ID, doc.ID)
	}
	if len(resolved.VerificationMethod) != 1 {
		t.Fatalf("VerificationMethod count = %d, want 1", len(resolved.VerificationMethod))
	}
}

func TestResolver_ResolveUsesCache(t *testing.T) {
	pubPEM, _ := testKeyPEM(t)
	callCount := 0
	doc := Document{
		ID: "did:web:cached.example",
		VerificationMethod: []VerificationMethod{
			{ID: "did:web:cached.example#key-1", Type: "JsonWebKey2020", PublicKeyPEM: pubPEM, Status: KeyStatusActive},
		},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(doc)
	}))
	defer server.Close()

	resolver := NewResolver(WithCacheTTL(time.Minute))
	if _, err := resolver.Resolve(context.Background(), server.URL); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if _, err := resolver.Resolve(context.Background(), server.URL); err != nil {
		t.Fatalf("Resolve() second call error = %v", err)
	}
	if callCount != 1 {
		t.Errorf("server was hit %d times, want 1 (cache should have served the second call)", callCount)
	}
}

func TestResolver_ResolveKey_RejectsRevoked(t *testing.T) {
	pubPEM, _ := testKeyPEM(t)
	doc := Document{
		ID: "did:web:revoked.example",
		VerificationMethod: []VerificationMethod{
			{ID: "did:web:revoked.example#key-1", Type: "JsonWebKey2020", PublicKeyPEM: pubPEM, Status: KeyStatusRevoked},
		},
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(doc)
	}))
	defer server.Close()

	resolver := NewResolver()
	_, err := resolver.ResolveKey(context.Background(), server.URL, "did:web:revoked.example#key-1")
	if err == nil {
		t.Fatal("ResolveKey() accepted a revoked verification method")
	}
}

func TestResolver_ResolveKey_UnknownFragment(t *testing.T) {
	pubPEM, _ := testKeyPEM(t)
	doc := Document{
		ID: "did:web:known.example",
		VerificationMethod: []VerificationMethod{
			{ID: "did:web:known.example#key-1", Type: "JsonWebKey2020", PublicKeyPEM: pubPEM, Status: KeyStatusActive},
		},
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(doc)
	}))
	defer server.Close()

	resolver := NewResolver()
	_, err := resolver.ResolveKey(context.Background(), server.URL, "did:web:known.example#key-9")
	if err == nil {
		t.Fatal("ResolveKey() resolved a fragment that does not exist in the document")
	}
}

func TestResolver_Resolve_PropagatesHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer server.Close()

	resolver := NewResolver()
	_, err := resolver.Resolve(context.Background(), server.URL)
	if err == nil {
		t.Fatal("Resolve() succeeded against a 404 response")
	}
}
