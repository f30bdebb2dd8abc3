package ap2

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"encoding/asn1"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
)

// clientData is the subset of the WebAuthn clientDataJSON this package
// validates.
type clientData struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	Origin    string `json:"origin"`
}

// coseEC2Key is the COSE_Key map for an EC2 (P-256) public key, decoded from
// CBOR per RFC 9053 section 7.1.1. Map keys are the registered COSE integer
// labels: 1=kty, 3=alg, -1=crv, -2=x, -3=y.
type coseEC2Key struct {
	Kty int64  `cbor:"1,keyasint"`
	Alg int64  `cbor:"3,keyasint"`
	Crv int64  `cbor:"-1,keyasint"`
	X   []byte `cbor:"-2,keyasint"`
	Y   []byte `cbor:"-3,keyasint"`
}

const (
	coseKtyEC2    = 2
	coseCrvP256   = 1
	coseAlgES256  = -7
	flagUserPresent = 1 << 0
	flagUserVerified = 1 << 2
)

// DecodeCOSEPublicKey parses a CBOR-encoded COSE_Key (as stored on a
// PasskeyCredential) into an *ecdsa.PublicKey.
func DecodeCOSEPublicKey(cose []byte) (*ecdsa.PublicKey, error) {
	var key coseEC2Key
	if err := cbor.Unmarshal(cose, &key); err != nil {
		return nil, fmt.Errorf("decode COSE key: %w", err)
	}
	if key.Kty != coseKtyEC2 {
		return nil, fmt.Errorf("unsupported COSE kty %d, want EC2", key.Kty)
	}
	if key.Crv != coseCrvP256 {
		return nil, fmt.Errorf("unsupported COSE curve %d, want P-256", key.Crv)
	}
	return &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(key.X),
		Y:     new(big.Int).SetBytes(key.Y),
	}, nil
}

// WebAuthnAssertion is the payload a relying party receives from
// navigator.credentials.get(), with binary fields already base64url-decoded
// by the HTTP handler.
type WebAuthnAssertion struct {
	CredentialID      string
	ClientDataJSON    []byte
	AuthenticatorData []byte
	Signature         []byte
}

// WebAuthnVerify checks a WebAuthn assertion against a stored credential:
// clientData type/challenge/origin, the relying-party ID hash, the
// user-present flag, signature-counter monotonicity, and the ECDSA
// signature itself. On success it returns the new sign count to persist.
func WebAuthnVerify(cred *PasskeyCredential, assertion WebAuthnAssertion, expectedChallenge string, rpID string, allowedOrigins []string) (uint32, error) {
	var cd clientData
	if err := json.Unmarshal(assertion.ClientDataJSON, &cd); err != nil {
		return 0, ErrWebAuthnVerifyFail(fmt.Errorf("parse clientDataJSON: %w", err))
	}
	if cd.Type != "webauthn.get" {
		return 0, ErrWebAuthnVerifyFail(fmt.Errorf("unexpected clientData type %q", cd.Type))
	}
	wantChallenge := base64.RawURLEncoding.EncodeToString([]byte(expectedChallenge))
	if cd.Challenge != wantChallenge && cd.Challenge != expectedChallenge {
		return 0, ErrWebAuthnVerifyFail(fmt.Errorf("challenge mismatch"))
	}
	if !originAllowed(cd.Origin, allowedOrigins) {
		return 0, ErrOriginMismatch()
	}

	if len(assertion.AuthenticatorData) < 37 {
		return 0, ErrWebAuthnVerifyFail(fmt.Errorf("authenticatorData too short"))
	}
	rpIDHash := sha256.Sum256([]byte(rpID))
	if !bytesEqual(assertion.AuthenticatorData[:32], rpIDHash[:]) {
		return 0, ErrWebAuthnVerifyFail(fmt.Errorf("rpIdHash mismatch"))
	}
	flags := assertion.AuthenticatorData[32]
	if flags&flagUserPresent == 0 {
		return 0, ErrWebAuthnVerifyFail(fmt.Errorf("user presence flag not set"))
	}
	counter := binary.BigEndian.Uint32(assertion.AuthenticatorData[33:37])
	if counter != 0 && counter <= cred.SignCount {
		return 0, ErrCounterNotMonotone()
	}

	pub, err := DecodeCOSEPublicKey(cred.PublicKeyCOSE)
	if err != nil {
		return 0, ErrWebAuthnVerifyFail(err)
	}

	clientDataHash := sha256.Sum256(assertion.ClientDataJSON)
	signedData := append(append([]byte{}, assertion.AuthenticatorData...), clientDataHash[:]...)

	digest := sha256.Sum256(signedData)
	r, s, err := decodeASN1ECDSASignature(assertion.Signature)
	if err != nil {
		return 0, ErrWebAuthnVerifyFail(fmt.Errorf("decode signature: %w", err))
	}
	if !ecdsa.Verify(pub, digest[:], r, s) {
		return 0, ErrWebAuthnVerifyFail(fmt.Errorf("signature did not verify"))
	}

	return counter, nil
}

// WebAuthnAssertionJSON is the wire shape navigator.credentials.get()
// produces: binary fields base64url-encoded, nested under "response" per
// the WebAuthn Level 2 PublicKeyCredential JSON serialisation.
type WebAuthnAssertionJSON struct {
	RawID    string `json:"rawId"`
	Type     string `json:"type"`
	Response struct {
		ClientDataJSON    string `json:"clientDataJSON"`
		AuthenticatorData string `json:"authenticatorData"`
		Signature         string `json:"signature"`
	} `json:"response"`
}

// Decode base64url-decodes the wire shape into a WebAuthnAssertion.
func (a WebAuthnAssertionJSON) Decode() (WebAuthnAssertion, error) {
	clientData, err := base64.RawURLEncoding.DecodeString(a.Response.ClientDataJSON)
	if err != nil {
		return WebAuthnAssertion{}, fmt.Errorf("decode clientDataJSON: %w", err)
	}
	authData, err := base64.RawURLEncoding.DecodeString(a.Response.AuthenticatorData)
	if err != nil {
		return WebAuthnAssertion{}, fmt.Errorf("decode authenticatorData: %w", err)
	}
	sig, err := base64.RawURLEncoding.DecodeString(a.Response.Signature)
	if err != nil {
		return WebAuthnAssertion{}, fmt.Errorf("decode signature: %w", err)
	}
	return WebAuthnAssertion{
		CredentialID:      a.RawID,
		ClientDataJSON:    clientData,
		AuthenticatorData: authData,
		Signature:         sig,
	}, nil
}

func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == origin {
			return true
		}
	}
	return false
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// decodeASN1ECDSASignature parses the DER-encoded ECDSA signature that
// WebAuthn authenticators produce (distinct from the fixed-width IEEE
// P1363 form this package uses internally for envelope proofs).
func decodeASN1ECDSASignature(der []byte) (*big.Int, *big.Int, error) {
	var sig struct {
		R, S *big.Int
	}
	rest, err := asn1.Unmarshal(der, &sig)
	if err != nil {
		return nil, nil, err
	}
	if len(rest) != 0 {
		return nil, nil, fmt.Errorf("trailing data after ECDSA signature")
	}
	return sig.R, sig.S, nil
}
