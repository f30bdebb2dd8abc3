package ap2

import (
	"crypto/sha256"
	"encoding/json"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
)

// CanonicalJSON marshals v to JSON and rewrites it per RFC 8785 (JSON
// Canonicalization Scheme): lexicographic key ordering, fixed number
// formatting, no insignificant whitespace. Every mandate hash in the chain
// is computed over this form so that re-serializing a struct never changes
// its hash.
func CanonicalJSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	canon, err := jsoncanonicalizer.Transform(raw)
	if err != nil {
		return nil, err
	}
	return canon, nil
}

// HashCanonical returns the SHA-256 digest of v's canonical JSON form, as
// used for cart_hash and payment_hash binding.
func HashCanonical(v interface{}) ([]byte, error) {
	canon, err := CanonicalJSON(v)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(canon)
	return sum[:], nil
}

// CartHash returns the binding hash of a CartContents.
func CartHash(c CartContents) ([]byte, error) {
	return HashCanonical(c)
}

// PaymentHash returns the binding hash of a PaymentMandateContents.
func PaymentHash(p PaymentMandateContents) ([]byte, error) {
	return HashCanonical(p)
}
