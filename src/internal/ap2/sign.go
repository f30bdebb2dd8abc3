package ap2

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"
)

// Sign produces a detached signature over message using the key pair's
// algorithm. For ES256 it signs the SHA-256 digest of message and returns
// the fixed-width r || s concatenation (not ASN.1 DER); for
// Ed25519 it signs the raw message directly (Ed25519 is not a hash-then-sign
// scheme, so callers pass the original bytes, not a pre-hashed digest).
func Sign(kp *KeyPair, message []byte) ([]byte, error) {
	switch kp.Algorithm {
	case AlgES256:
		digest := sha256.Sum256(message)
		r, s, err := ecdsa.Sign(rand.Reader, kp.ECDSAKey, digest[:])
		if err != nil {
			return nil, fmt.Errorf("ecdsa sign: %w", err)
		}
		return encodeECDSASignature(r, s), nil
	case AlgEd25519:
		return ed25519.Sign(kp.Ed25519Key, message), nil
	default:
		return nil, fmt.Errorf("unsupported key algorithm %q", kp.Algorithm)
	}
}

// Verify checks a detached signature produced by Sign against the given
// public key (*ecdsa.PublicKey or ed25519.PublicKey).
func Verify(alg KeyAlgorithm, pub interface{}, message, signature []byte) error {
	switch alg {
	case AlgES256:
		key, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return fmt.Errorf("ES256 verification requires an *ecdsa.PublicKey, got %T", pub)
		}
		r, s, err := decodeECDSASignature(signature)
		if err != nil {
			return fmt.Errorf("decode ecdsa signature: %w", err)
		}
		digest := sha256.Sum256(message)
		if !ecdsa.Verify(key, digest[:], r, s) {
			return ErrInvalidSignature()
		}
		return nil
	case AlgEd25519:
		key, ok := pub.(ed25519.PublicKey)
		if !ok {
			return fmt.Errorf("Ed25519 verification requires an ed25519.PublicKey, got %T", pub)
		}
		if !ed25519.Verify(key, message, signature) {
			return ErrInvalidSignature()
		}
		return nil
	default:
		return ErrUnsupportedAlgorithm()
	}
}

// fixedPointLen is the byte length of an encoded P-256 curve coordinate.
const fixedPointLen = 32

// encodeECDSASignature packs (r, s) as fixed-width big-endian integers
// concatenated (the "raw" IEEE P1363 form used by JOSE ES256 and the
// envelope proof), not ASN.1 DER.
func encodeECDSASignature(r, s *big.Int) []byte {
	out := make([]byte, 2*fixedPointLen)
	r.FillBytes(out[:fixedPointLen])
	s.FillBytes(out[fixedPointLen:])
	return out
}

func decodeECDSASignature(sig []byte) (*big.Int, *big.Int, error) {
	if len(sig) != 2*fixedPointLen {
		return nil, nil, fmt.Errorf("expected %d byte signature, got %d", 2*fixedPointLen, len(sig))
	}
	r := new(big.Int).SetBytes(sig[:fixedPointLen])
	s := new(big.Int).SetBytes(sig[fixedPointLen:])
	return r, s, nil
}
