package integration

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// The relying-party values the Credential Provider is configured with by
// default; override via its WEBAUTHN_RP_ID / WEBAUTHN_ALLOWED_ORIGINS.
const (
	rpID     = "aex.example"
	rpOrigin = "https://aex.example"
)

// SoftwareAuthenticator is a test passkey: a P-256 key plus a signature
// counter, producing real WebAuthn assertions the Credential Provider's
// verifier accepts.
type SoftwareAuthenticator struct {
	CredentialID string
	key          *ecdsa.PrivateKey
	counter      uint32
}

// NewSoftwareAuthenticator mints a fresh software passkey.
func NewSoftwareAuthenticator(credentialID string) (*SoftwareAuthenticator, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &SoftwareAuthenticator{CredentialID: credentialID, key: key}, nil
}

// AttestationObject returns the base64url COSE key for POST
// /register/passkey.
func (a *SoftwareAuthenticator) AttestationObject() (string, error) {
	cose := map[int]interface{}{
		1:  2,  // kty: EC2
		3:  -7, // alg: ES256
		-1: 1,  // crv: P-256
		-2: a.key.PublicKey.X.FillBytes(make([]byte, 32)),
		-3: a.key.PublicKey.Y.FillBytes(make([]byte, 32)),
	}
	raw, err := cbor.Marshal(cose)
	if err != nil {
		return "", fmt.Errorf("encode COSE key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Assertion is the PublicKeyCredential JSON shape the AP2 services accept.
type Assertion struct {
	RawID    string `json:"rawId"`
	Type     string `json:"type"`
	Response struct {
		ClientDataJSON    string `json:"clientDataJSON"`
		AuthenticatorData string `json:"authenticatorData"`
		Signature         string `json:"signature"`
	} `json:"response"`
}

// Assert signs the given challenge, advancing the counter.
func (a *SoftwareAuthenticator) Assert(challenge string) (*Assertion, error) {
	clientData, err := json.Marshal(map[string]string{
		"type":      "webauthn.get",
		"challenge": challenge,
		"origin":    rpOrigin,
	})
	if err != nil {
		return nil, err
	}

	a.counter++
	rpIDHash := sha256.Sum256([]byte(rpID))
	authData := make([]byte, 37)
	copy(authData[:32], rpIDHash[:])
	authData[32] = 0x05 // UP | UV
	binary.BigEndian.PutUint32(authData[33:], a.counter)

	clientDataHash := sha256.Sum256(clientData)
	signed := append(append([]byte{}, authData...), clientDataHash[:]...)
	digest := sha256.Sum256(signed)
	sig, err := ecdsa.SignASN1(rand.Reader, a.key, digest[:])
	if err != nil {
		return nil, err
	}

	out := &Assertion{RawID: a.CredentialID, Type: "public-key"}
	out.Response.ClientDataJSON = base64.RawURLEncoding.EncodeToString(clientData)
	out.Response.AuthenticatorData = base64.RawURLEncoding.EncodeToString(authData)
	out.Response.Signature = base64.RawURLEncoding.EncodeToString(sig)
	return out, nil
}
