// Package agentidentity bootstraps the one signing key every AP2 federation
// service needs at startup, and serves it back out as a DID document at
// /.well-known/did.json. It is the shared equivalent of what each service's
// own main.go would otherwise duplicate: generate-or-load a key, seal it at
// rest with the service's passphrase, and publish the public half.
package agentidentity

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/parlakisik/aex-ap2/internal/ap2"
	"github.com/parlakisik/aex-ap2/internal/didresolver"
)

// Identity bundles a service's DID, its signing key, and the verification
// method fragment ("did:...#key-1") that names it in envelope proofs and
// merchant_authorization kid headers.
type Identity struct {
	DID     string
	KeyID   string
	KeyPair *ap2.KeyPair
}

// Config describes where to find (or create) a service's sealed key.
type Config struct {
	AgentID    string // short name, e.g. "merchant", used in the default key filename
	DID        string
	KeysDir    string // default "./keys"
	Passphrase string // from AP2_<AGENT>_PASSPHRASE
	Algorithm  ap2.KeyAlgorithm
}

// Bootstrap loads the sealed private key for cfg.AgentID, generating and
// persisting a fresh one on first run. The on-disk format is
// <KeysDir>/<AgentID>_private.pem.enc, sealed with cfg.Passphrase via
// ap2.SecureStorageSeal.
func Bootstrap(cfg Config) (*Identity, error) {
	if cfg.KeysDir == "" {
		cfg.KeysDir = "./keys"
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = ap2.AlgES256
	}
	if cfg.Passphrase == "" {
		return nil, fmt.Errorf("agentidentity: empty passphrase for %s", cfg.AgentID)
	}

	path := filepath.Join(cfg.KeysDir, cfg.AgentID+"_private.pem.enc")

	keyPair, err := loadSealed(path, cfg.Passphrase)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load sealed key for %s: %w", cfg.AgentID, err)
		}
		keyPair, err = ap2.GenerateKeyPair(cfg.Algorithm)
		if err != nil {
			return nil, fmt.Errorf("generate key for %s: %w", cfg.AgentID, err)
		}
		if err := saveSealed(path, cfg.Passphrase, keyPair); err != nil {
			return nil, fmt.Errorf("persist sealed key for %s: %w", cfg.AgentID, err)
		}
	}

	return &Identity{
		DID:     cfg.DID,
		KeyID:   cfg.DID + "#key-1",
		KeyPair: keyPair,
	}, nil
}

func loadSealed(path, passphrase string) (*ap2.KeyPair, error) {
	sealed, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pemBytes, err := ap2.SecureStorageOpen(passphrase, sealed)
	if err != nil {
		return nil, fmt.Errorf("open sealed key: %w", err)
	}
	return ap2.DecodePrivateKeyPEM(pemBytes)
}

func saveSealed(path, passphrase string, keyPair *ap2.KeyPair) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create keys dir: %w", err)
	}
	pemBytes, err := keyPair.EncodePrivateKeyPEM()
	if err != nil {
		return fmt.Errorf("encode private key: %w", err)
	}
	sealed, err := ap2.SecureStorageSeal(passphrase, pemBytes)
	if err != nil {
		return fmt.Errorf("seal private key: %w", err)
	}
	return os.WriteFile(path, sealed, 0o600)
}

// DIDDocument builds the DID document this identity publishes at
// /.well-known/did.json. roles is advisory metadata carried on the AP2
// extension; it does not affect resolution.
func (id *Identity) DIDDocument() (*didresolver.Document, error) {
	pubPEM, err := id.KeyPair.PublicKeyPEM()
	if err != nil {
		return nil, fmt.Errorf("encode public key: %w", err)
	}
	vmType := "JsonWebKey2020"
	if id.KeyPair.Algorithm == ap2.AlgEd25519 {
		vmType = "Ed25519VerificationKey2020"
	}
	return &didresolver.Document{
		ID: id.DID,
		VerificationMethod: []didresolver.VerificationMethod{
			{
				ID:           id.KeyID,
				Type:         vmType,
				Controller:   id.DID,
				PublicKeyPEM: string(pubPEM),
				Status:       didresolver.KeyStatusActive,
			},
		},
		Authentication:  []string{id.KeyID},
		AssertionMethod: []string{id.KeyID},
	}, nil
}

// WellKnownHandler serves this identity's DID document.
func (id *Identity) WellKnownHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := id.DIDDocument()
		if err != nil {
			http.Error(w, "failed to build did document", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(doc)
	}
}
