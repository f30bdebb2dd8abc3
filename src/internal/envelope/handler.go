package envelope

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/parlakisik/aex-ap2/internal/ap2"
	"github.com/parlakisik/aex-ap2/internal/didresolver"
	"github.com/parlakisik/aex-ap2/internal/httpclient"
	"github.com/parlakisik/aex-ap2/internal/ttlstore"
)

// DataHandler processes one inbound dataPart after the envelope has passed
// the full validation checklist. It returns either an artifact (set
// artifact, leave responseType/payload empty) or a plain responseType +
// payload pair that the Handler wraps into a signed response envelope.
type DataHandler func(ctx context.Context, env *Envelope) (responseType string, payload interface{}, artifact *ArtifactResponse, err error)

// PeerResolver maps a peer DID to the base URL that serves its
// /.well-known/did.json and /a2a/message endpoints. Services supply this
// from their <SERVICE>_URL configuration.
type PeerResolver func(did string) (string, error)

// Handler signs outbound envelopes, validates inbound ones per the ordered
// checklist, and dispatches to registered DataHandlers.
type Handler struct {
	selfDID      string
	keyPair      *ap2.KeyPair
	keyID        string // "did:...#key-N", identifies selfDID's signing key
	httpClient   *httpclient.Client
	resolver     *didresolver.Resolver
	nonces       ttlstore.NonceLedger
	peerURL      PeerResolver
	acceptWindow time.Duration

	mu       sync.RWMutex
	handlers map[string]DataHandler
}

// Config bundles the dependencies a Handler needs.
type Config struct {
	SelfDID      string
	KeyPair      *ap2.KeyPair
	KeyID        string
	HTTPClient   *httpclient.Client
	Resolver     *didresolver.Resolver
	Nonces       ttlstore.NonceLedger
	PeerURL      PeerResolver
	AcceptWindow time.Duration // defaults to AcceptWindow if zero
}

// NewHandler builds an envelope Handler.
func NewHandler(cfg Config) *Handler {
	window := cfg.AcceptWindow
	if window == 0 {
		window = AcceptWindow
	}
	return &Handler{
		selfDID:      cfg.SelfDID,
		keyPair:      cfg.KeyPair,
		keyID:        cfg.KeyID,
		httpClient:   cfg.HTTPClient,
		resolver:     cfg.Resolver,
		nonces:       cfg.Nonces,
		peerURL:      cfg.PeerURL,
		acceptWindow: window,
		handlers:     make(map[string]DataHandler),
	}
}

// RegisterHandler associates a dataPart.type with the function that
// processes it.
func (h *Handler) RegisterHandler(dataType string, fn DataHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[dataType] = fn
}

// Send signs and POSTs a new envelope to recipientURL, returning the
// recipient's (also signed, but not independently verified here — callers
// that need the reply authenticated should route it back through
// ReceiveHTTP-equivalent validation) response envelope.
func (h *Handler) Send(ctx context.Context, recipientDID, recipientURL, dataType string, payload interface{}) (*Envelope, error) {
	env, err := h.newOutboundEnvelope(recipientDID, dataType, payload)
	if err != nil {
		return nil, err
	}

	var respEnv Envelope
	if err := h.httpClient.PostJSON(ctx, recipientURL+"/a2a/message", env, &respEnv); err != nil {
		return nil, fmt.Errorf("send envelope to %s: %w", recipientURL, err)
	}
	return &respEnv, nil
}

// ArtifactResult is the decoded form of an artifact response, with the
// collection payload left raw for the caller to type.
type ArtifactResult struct {
	IsArtifact   bool            `json:"is_artifact"`
	ArtifactName string          `json:"artifact_name"`
	DataTypeKey  string          `json:"data_type_key"`
	ArtifactData json.RawMessage `json:"artifact_data"`
}

// SendForArtifact signs and POSTs an envelope whose handler returns a
// collection (an artifact response rather than a response envelope), e.g.
// cart candidates.
func (h *Handler) SendForArtifact(ctx context.Context, recipientDID, recipientURL, dataType string, payload interface{}) (*ArtifactResult, error) {
	env, err := h.newOutboundEnvelope(recipientDID, dataType, payload)
	if err != nil {
		return nil, err
	}

	var result ArtifactResult
	if err := h.httpClient.PostJSON(ctx, recipientURL+"/a2a/message", env, &result); err != nil {
		return nil, fmt.Errorf("send envelope to %s: %w", recipientURL, err)
	}
	if !result.IsArtifact {
		return nil, fmt.Errorf("recipient %s returned a non-artifact response for %s", recipientDID, dataType)
	}
	return &result, nil
}

func (h *Handler) newOutboundEnvelope(recipientDID, dataType string, payload interface{}) (*Envelope, error) {
	payloadRaw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope payload: %w", err)
	}

	nonce, err := randomNonceHex()
	if err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	now := time.Now().UTC()
	env := &Envelope{
		Header: Header{
			MessageID:     uuid.NewString(),
			Sender:        h.selfDID,
			Recipient:     recipientDID,
			Timestamp:     now,
			Nonce:         nonce,
			SchemaVersion: SchemaVersion,
			Proof: Proof{
				Algorithm:    algorithmString(h.keyPair.Algorithm),
				Kid:          h.keyID,
				Created:      now,
				ProofPurpose: "authentication",
			},
		},
		DataPart: DataPart{
			Type:    dataType,
			ID:      uuid.NewString(),
			Payload: payloadRaw,
		},
	}

	if err := h.sign(env); err != nil {
		return nil, err
	}
	return env, nil
}

// ReceiveHTTP is the POST /a2a/message handler: decode, validate in the
// mandated order, dispatch, respond. The first validation failure
// terminates the request; a failure after the nonce step leaves that nonce
// recorded in the ledger.
func (h *Handler) ReceiveHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var env Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeAPIError(w, &ap2.Error{Kind: "malformed_envelope", Message: "invalid JSON body", HTTPStatus: http.StatusBadRequest, Err: err})
		return
	}

	if err := h.validate(ctx, &env); err != nil {
		writeAPIError(w, err)
		return
	}

	h.mu.RLock()
	fn, ok := h.handlers[env.DataPart.Type]
	h.mu.RUnlock()
	if !ok {
		writeAPIError(w, ap2.ErrUnknownDataType())
		return
	}

	responseType, payload, artifact, err := fn(ctx, &env)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	if artifact != nil {
		writeJSON(w, http.StatusOK, artifact)
		return
	}

	respEnv, err := h.buildResponseEnvelope(env.Header.Sender, responseType, payload)
	if err != nil {
		writeAPIError(w, fmt.Errorf("build response envelope: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, respEnv)
}

// validate runs the envelope acceptance checks in their mandated order.
// Each step's failure short-circuits the rest; nothing is recorded (not
// even the nonce) until every prior check has passed.
func (h *Handler) validate(ctx context.Context, env *Envelope) error {
	alg := strings.ToUpper(env.Header.Proof.Algorithm)
	switch alg {
	case "ECDSA", "ES256", "ED25519":
	default:
		return ap2.ErrUnsupportedAlgorithm()
	}

	senderDID, ok := didFromKid(env.Header.Proof.Kid)
	if !ok || senderDID != env.Header.Sender {
		return ap2.ErrUnknownSender()
	}

	skew := time.Since(env.Header.Timestamp)
	if skew < 0 {
		skew = -skew
	}
	if skew > h.acceptWindow {
		return ap2.ErrTimestampWindow()
	}

	fresh, err := h.nonces.CheckAndRecord(ctx, env.Header.Sender, env.Header.Nonce, h.acceptWindow)
	if err != nil {
		return fmt.Errorf("nonce ledger: %w", err)
	}
	if !fresh {
		return ap2.ErrReplayedNonce()
	}

	peerURL, err := h.peerURL(env.Header.Sender)
	if err != nil {
		return ap2.ErrDIDResolutionFailed(err)
	}
	pub, err := h.resolver.ResolveKey(ctx, peerURL, env.Header.Proof.Kid)
	if err != nil {
		return ap2.ErrDIDResolutionFailed(err)
	}

	signingBytes, err := signingSpan(env)
	if err != nil {
		return fmt.Errorf("compute signing span: %w", err)
	}
	sig, err := base64.StdEncoding.DecodeString(env.Header.Proof.SignatureValue)
	if err != nil {
		return ap2.ErrInvalidSignature()
	}
	if err := ap2.Verify(keyAlgorithmFor(alg), pub, signingBytes, sig); err != nil {
		return ap2.ErrInvalidSignature()
	}
	return nil
}

func (h *Handler) sign(env *Envelope) error {
	signingBytes, err := signingSpan(env)
	if err != nil {
		return fmt.Errorf("compute signing span: %w", err)
	}
	sig, err := ap2.Sign(h.keyPair, signingBytes)
	if err != nil {
		return fmt.Errorf("sign envelope: %w", err)
	}
	env.Header.Proof.SignatureValue = base64.StdEncoding.EncodeToString(sig)
	return nil
}

func (h *Handler) buildResponseEnvelope(recipientDID, dataType string, payload interface{}) (*Envelope, error) {
	payloadRaw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal response payload: %w", err)
	}
	nonce, err := randomNonceHex()
	if err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	now := time.Now().UTC()
	env := &Envelope{
		Header: Header{
			MessageID:     uuid.NewString(),
			Sender:        h.selfDID,
			Recipient:     recipientDID,
			Timestamp:     now,
			Nonce:         nonce,
			SchemaVersion: SchemaVersion,
			Proof: Proof{
				Algorithm:    algorithmString(h.keyPair.Algorithm),
				Kid:          h.keyID,
				Created:      now,
				ProofPurpose: "authentication",
			},
		},
		DataPart: DataPart{Type: dataType, ID: uuid.NewString(), Payload: payloadRaw},
	}
	if err := h.sign(env); err != nil {
		return nil, err
	}
	return env, nil
}

// signingSpan serializes env with proof.signatureValue blanked out, via the
// same canonical JSON used for mandate hashing, so the signed bytes are
// deterministic across implementations.
func signingSpan(env *Envelope) ([]byte, error) {
	cp := *env
	cp.Header.Proof.SignatureValue = ""
	return ap2.CanonicalJSON(cp)
}

func didFromKid(kid string) (string, bool) {
	idx := strings.LastIndex(kid, "#")
	if idx <= 0 {
		return "", false
	}
	return kid[:idx], true
}

func algorithmString(alg ap2.KeyAlgorithm) string {
	if alg == ap2.AlgEd25519 {
		return "Ed25519"
	}
	return "ES256"
}

func keyAlgorithmFor(proofAlg string) ap2.KeyAlgorithm {
	if proofAlg == "ED25519" {
		return ap2.AlgEd25519
	}
	return ap2.AlgES256
}

func randomNonceHex() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

type apiErrorBody struct {
	ErrorKind string `json:"error_kind"`
	Message   string `json:"message"`
}

func writeAPIError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := "internal_error"
	msg := err.Error()

	var ap2Err *ap2.Error
	if errors.As(err, &ap2Err) {
		status = ap2Err.HTTPStatus
		kind = ap2Err.Kind
		msg = ap2Err.Message
	}

	slog.Warn("a2a message rejected", "error_kind", kind, "status", status, "error", err)
	writeJSON(w, status, apiErrorBody{ErrorKind: kind, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response body", "error", err)
	}
}
