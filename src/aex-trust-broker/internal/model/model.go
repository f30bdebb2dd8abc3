// Package model holds the trust broker's registry types: the agents of
// the federation and the verification methods their DIDs resolve to.
package model

import "time"

type KeyStatus string

const (
	KeyStatusActive  KeyStatus = "ACTIVE"
	KeyStatusRevoked KeyStatus = "REVOKED"
)

type AgentStatus string

const (
	AgentStatusActive    AgentStatus = "ACTIVE"
	AgentStatusRevoked   AgentStatus = "REVOKED"
	AgentStatusSuspended AgentStatus = "SUSPENDED"
)

// VerificationMethod is one public key registered under an agent's DID.
type VerificationMethod struct {
	KeyID        string     `json:"id" bson:"key_id"` // "did:...#key-N"
	Type         string     `json:"type" bson:"type"` // JsonWebKey2020, Ed25519VerificationKey2020
	PublicKeyPEM string     `json:"publicKeyPem" bson:"public_key_pem"`
	Status       KeyStatus  `json:"status" bson:"status"`
	AddedAt      time.Time  `json:"added_at" bson:"added_at"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty" bson:"revoked_at,omitempty"`
}

// RegisteredAgent is the broker's record for one federation participant.
type RegisteredAgent struct {
	DID                 string               `json:"did" bson:"_id"`
	Name                string               `json:"name" bson:"name"`
	Roles               []string             `json:"roles" bson:"roles"` // merchant, shopper, merchant-agent, ...
	BaseURL             string               `json:"base_url" bson:"base_url"`
	VerificationMethods []VerificationMethod `json:"verification_methods" bson:"verification_methods"`
	Status              AgentStatus          `json:"status" bson:"status"`

	RegisteredAt time.Time `json:"registered_at" bson:"registered_at"`
	LastUpdated  time.Time `json:"last_updated" bson:"last_updated"`
}

// ActiveKeys returns the verification methods that have not been revoked.
func (a RegisteredAgent) ActiveKeys() []VerificationMethod {
	var out []VerificationMethod
	for _, vm := range a.VerificationMethods {
		if vm.Status == KeyStatusActive {
			out = append(out, vm)
		}
	}
	return out
}

// RegisterAgentRequest is the POST /agents body.
type RegisterAgentRequest struct {
	DID                 string               `json:"did"`
	Name                string               `json:"name"`
	Roles               []string             `json:"roles"`
	BaseURL             string               `json:"base_url"`
	VerificationMethods []VerificationMethod `json:"verification_methods"`
}

// AddKeyRequest is the POST /agents/{did}/keys body (key rotation).
type AddKeyRequest struct {
	KeyID        string `json:"id"`
	Type         string `json:"type"`
	PublicKeyPEM string `json:"publicKeyPem"`
}

// RevokeKeyRequest is the POST /agents/{did}/keys/revoke body.
type RevokeKeyRequest struct {
	KeyID string `json:"id"`
}

// DIDDocument is the resolution shape served at /dids/{did}/did.json,
// compatible with what every service publishes at its own
// /.well-known/did.json.
type DIDDocument struct {
	ID                 string               `json:"id"`
	VerificationMethod []VerificationMethod `json:"verificationMethod"`
	Authentication     []string             `json:"authentication"`
	AssertionMethod    []string             `json:"assertionMethod,omitempty"`
}
