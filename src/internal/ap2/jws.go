package ap2

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MerchantAuthClaims is the claim set carried by merchant_authorization, the
// compact ES256 JWS a merchant issues over a cart's canonical hash.
type MerchantAuthClaims struct {
	jwt.RegisteredClaims
	CartHash string `json:"cart_hash"`
}

// BuildMerchantAuthorization signs cartHash as the compact JWS carried in
// CartMandate.MerchantAuthorization. alg is always ES256: the federation
// never allow-lists "none" or HMAC algorithms for merchant authorizations,
// since the verifying party (Payment Processor) has no way to share a
// symmetric secret with every merchant in the network.
func BuildMerchantAuthorization(key *ecdsa.PrivateKey, issuerDID, audienceDID, cartID string, cartHash []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := MerchantAuthClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuerDID,
			Subject:   cartID,
			Audience:  jwt.ClaimStrings{audienceDID},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		CartHash: hex.EncodeToString(cartHash),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = issuerDID + "#key-1"
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign merchant_authorization: %w", err)
	}
	return signed, nil
}

// MerchantAuthKid reads the unverified "kid" header of a
// merchant_authorization JWS, so a caller can resolve the signing key before
// verification. It performs no signature check; the kid is only trustworthy
// once VerifyMerchantAuthorization succeeds against the key it names.
func MerchantAuthKid(jws string) (string, error) {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(jws, &MerchantAuthClaims{})
	if err != nil {
		return "", fmt.Errorf("parse merchant_authorization header: %w", err)
	}
	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		return "", fmt.Errorf("merchant_authorization missing kid header")
	}
	return kid, nil
}

// VerifyMerchantAuthorization parses and verifies a merchant_authorization
// JWS, rejecting anything but ES256 (no alg=none, no alg confusion), and
// checks cartHash against the embedded claim.
func VerifyMerchantAuthorization(jws string, pub *ecdsa.PublicKey, cartHash []byte) (*MerchantAuthClaims, error) {
	claims := &MerchantAuthClaims{}
	parsed, err := jwt.ParseWithClaims(jws, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodECDSA); !ok || t.Method.Alg() != jwt.SigningMethodES256.Alg() {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return pub, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}))
	if err != nil || !parsed.Valid {
		return nil, ErrMerchantAuthInvalid(err)
	}
	wantHash := hex.EncodeToString(cartHash)
	if claims.CartHash != wantHash {
		return nil, ErrChainHashMismatch()
	}
	return claims, nil
}
