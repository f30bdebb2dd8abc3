package ap2

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// KeyAlgorithm names the signature algorithms the federation allow-lists.
// Any kid not resolving to one of these is rejected before verification is
// attempted.
type KeyAlgorithm string

const (
	AlgES256   KeyAlgorithm = "ES256"   // ECDSA P-256 + SHA-256, used for envelope proofs and merchant_authorization
	AlgEd25519 KeyAlgorithm = "Ed25519" // used for envelope proofs where the signer prefers EdDSA
)

// KeyPair bundles a private signing key with the algorithm it was generated
// for. Exactly one of ECDSAKey / Ed25519Key is populated.
type KeyPair struct {
	Algorithm  KeyAlgorithm
	ECDSAKey   *ecdsa.PrivateKey
	Ed25519Key ed25519.PrivateKey
}

// GenerateKeyPair creates a new signing key for the given algorithm.
func GenerateKeyPair(alg KeyAlgorithm) (*KeyPair, error) {
	switch alg {
	case AlgES256:
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generate ES256 key: %w", err)
		}
		return &KeyPair{Algorithm: AlgES256, ECDSAKey: key}, nil
	case AlgEd25519:
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generate Ed25519 key: %w", err)
		}
		return &KeyPair{Algorithm: AlgEd25519, Ed25519Key: priv}, nil
	default:
		return nil, fmt.Errorf("unsupported key algorithm %q", alg)
	}
}

// EncodePrivateKeyPEM serializes the key pair's private key to PKCS#8 PEM,
// the form persisted by SecureStorageSeal.
func (kp *KeyPair) EncodePrivateKeyPEM() ([]byte, error) {
	var der []byte
	var err error
	switch kp.Algorithm {
	case AlgES256:
		der, err = x509.MarshalPKCS8PrivateKey(kp.ECDSAKey)
	case AlgEd25519:
		der, err = x509.MarshalPKCS8PrivateKey(kp.Ed25519Key)
	default:
		return nil, fmt.Errorf("unsupported key algorithm %q", kp.Algorithm)
	}
	if err != nil {
		return nil, fmt.Errorf("marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// DecodePrivateKeyPEM parses a PKCS#8 PEM block back into a KeyPair.
func DecodePrivateKeyPEM(data []byte) (*KeyPair, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse PKCS8 private key: %w", err)
	}
	switch k := key.(type) {
	case *ecdsa.PrivateKey:
		return &KeyPair{Algorithm: AlgES256, ECDSAKey: k}, nil
	case ed25519.PrivateKey:
		return &KeyPair{Algorithm: AlgEd25519, Ed25519Key: k}, nil
	default:
		return nil, fmt.Errorf("unsupported private key type %T", key)
	}
}

// PublicKeyPEM returns the PEM-encoded SubjectPublicKeyInfo, the form
// published in a DID document's verificationMethod.
func (kp *KeyPair) PublicKeyPEM() ([]byte, error) {
	var pub interface{}
	switch kp.Algorithm {
	case AlgES256:
		pub = &kp.ECDSAKey.PublicKey
	case AlgEd25519:
		pub = kp.Ed25519Key.Public()
	default:
		return nil, fmt.Errorf("unsupported key algorithm %q", kp.Algorithm)
	}
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// DecodePublicKeyPEM parses a PEM SubjectPublicKeyInfo into either an
// *ecdsa.PublicKey or an ed25519.PublicKey.
func DecodePublicKeyPEM(data []byte) (interface{}, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse PKIX public key: %w", err)
	}
	switch pub.(type) {
	case *ecdsa.PublicKey, ed25519.PublicKey:
		return pub, nil
	default:
		return nil, fmt.Errorf("unsupported public key type %T", pub)
	}
}
