package ap2

import (
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// user_authorization is a base64url-encoded SD-JWT-VC-shaped Verifiable
// Presentation: an unsigned issuer JWT (the credential itself, minted
// alongside the KB-JWT by BuildUserAuthorization and naming issuerDID as its
// issuer) joined by "~" to a Key-Binding JWT
// (KB-JWT) the user's device signs fresh for this specific payment. The
// KB-JWT's transaction_data claim binds the presentation to an exact
// cart_hash/payment_hash pair so it cannot be replayed against a different
// cart or a different payment amount.

// issuerClaims is the (unsigned, "alg":"none") issuer JWT's claim set.
type issuerClaims struct {
	jwt.RegisteredClaims
	CNF map[string]string `json:"cnf"` // {"kid": "<holder key id>"}
}

// kbClaims is the Key-Binding JWT's claim set.
type kbClaims struct {
	jwt.RegisteredClaims
	Nonce           string          `json:"nonce"`
	TransactionData transactionData `json:"transaction_data"`
}

type transactionData struct {
	CartHash    string `json:"cart_hash"`
	PaymentHash string `json:"payment_hash"`
}

// BuildUserAuthorization mints the issuer JWT (unsigned, "alg":"none"; the
// verifier reads only the KB-JWT) and a KB-JWT signed by the holder's device key, binding cartHash and
// paymentHash. It returns the base64url-encoded "issuer~kb" presentation
// carried as PaymentMandate.UserAuthorization.
func BuildUserAuthorization(holderKey *ecdsa.PrivateKey, holderKeyID, issuerDID, subjectID string, cartHash, paymentHash []byte, nonce string, ttl time.Duration) (string, error) {
	now := time.Now()

	issuer := issuerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuerDID,
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		CNF: map[string]string{"kid": holderKeyID},
	}
	issuerJWT := jwt.NewWithClaims(jwt.SigningMethodNone, issuer)
	issuerCompact, err := issuerJWT.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		return "", fmt.Errorf("build issuer jwt: %w", err)
	}

	kb := kbClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Nonce: nonce,
		TransactionData: transactionData{
			CartHash:    hex.EncodeToString(cartHash),
			PaymentHash: hex.EncodeToString(paymentHash),
		},
	}
	kbJWT := jwt.NewWithClaims(jwt.SigningMethodES256, kb)
	kbJWT.Header["kid"] = holderKeyID
	kbCompact, err := kbJWT.SignedString(holderKey)
	if err != nil {
		return "", fmt.Errorf("sign key-binding jwt: %w", err)
	}

	vp := issuerCompact + "~" + kbCompact
	return base64.RawURLEncoding.EncodeToString([]byte(vp)), nil
}

// UserAuthorizationInfo is the unverified projection of a VP that a
// Payment Processor needs before it can verify anything: the KB-JWT's kid
// (to resolve the holder key), its nonce (the expected WebAuthn
// challenge), and the transaction_data hashes it claims to bind. None of
// these values are trustworthy until VerifyUserAuthorization succeeds.
type UserAuthorizationInfo struct {
	HolderKid   string
	Nonce       string
	CartHash    string
	PaymentHash string
}

// ParseUserAuthorization decodes a user_authorization VP without verifying
// it, returning the binding metadata a verifier needs for key resolution
// and challenge matching.
func ParseUserAuthorization(vp string) (*UserAuthorizationInfo, error) {
	raw, err := base64.RawURLEncoding.DecodeString(vp)
	if err != nil {
		return nil, ErrUserAuthInvalid(fmt.Errorf("decode vp: %w", err))
	}
	parts := strings.SplitN(string(raw), "~", 2)
	if len(parts) != 2 {
		return nil, ErrUserAuthInvalid(fmt.Errorf("expected issuer~kb presentation, got %d parts", len(parts)))
	}

	claims := &kbClaims{}
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(parts[1], claims)
	if err != nil {
		return nil, ErrUserAuthInvalid(fmt.Errorf("parse kb-jwt: %w", err))
	}
	kid, _ := token.Header["kid"].(string)

	return &UserAuthorizationInfo{
		HolderKid:   kid,
		Nonce:       claims.Nonce,
		CartHash:    claims.TransactionData.CartHash,
		PaymentHash: claims.TransactionData.PaymentHash,
	}, nil
}

// VerifyUserAuthorization decodes a user_authorization VP, verifies the
// KB-JWT against holderPub, and checks that its transaction_data matches
// the cart and payment hashes the Payment Processor computed independently.
// It never trusts the presentation's own claim of what it is bound to.
func VerifyUserAuthorization(vp string, holderPub *ecdsa.PublicKey, cartHash, paymentHash []byte) error {
	raw, err := base64.RawURLEncoding.DecodeString(vp)
	if err != nil {
		return ErrUserAuthInvalid(fmt.Errorf("decode vp: %w", err))
	}
	parts := strings.SplitN(string(raw), "~", 2)
	if len(parts) != 2 {
		return ErrUserAuthInvalid(fmt.Errorf("expected issuer~kb presentation, got %d parts", len(parts)))
	}
	kbCompact := parts[1]

	claims := &kbClaims{}
	parsed, err := jwt.ParseWithClaims(kbCompact, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodES256.Alg() {
			return nil, fmt.Errorf("unexpected kb-jwt alg %v", t.Header["alg"])
		}
		return holderPub, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}))
	if err != nil || !parsed.Valid {
		return ErrUserAuthInvalid(err)
	}

	if claims.TransactionData.CartHash != hex.EncodeToString(cartHash) ||
		claims.TransactionData.PaymentHash != hex.EncodeToString(paymentHash) {
		return ErrChainHashMismatch()
	}
	return nil
}
