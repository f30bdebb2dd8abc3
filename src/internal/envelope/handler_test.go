package envelope

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/parlakisik/aex-ap2/internal/ap2"
	"github.com/parlakisik/aex-ap2/internal/didresolver"
	"github.com/parlakisik/aex-ap2/internal/httpclient"
	"github.com/parlakisik/aex-ap2/internal/ttlstore"
)

type testPeer struct {
	did        string
	keyID      string
	keyPair    *ap2.KeyPair
	didServer  *httptest.Server
	msgServer  *httptest.Server
	handler    *Handler
}

func newTestPeer(t *testing.T, did string, peerURLFor func(did string) (string, error)) *testPeer {
	t.Helper()
	kp, err := ap2.GenerateKeyPair(ap2.AlgES256)
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}
	pubPEM, err := kp.PublicKeyPEM()
	if err != nil {
		t.Fatalf("PublicKeyPEM() error = %v", err)
	}
	keyID := did + "#key-1"

	didServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		doc := didresolver.Document{
			ID: did,
			VerificationMethod: []didresolver.VerificationMethod{
				{ID: keyID, Type: "JsonWebKey2020", Controller: did, PublicKeyPEM: string(pubPEM), Status: didresolver.KeyStatusActive},
			},
		}
		json.NewEncoder(w).Encode(doc)
	}))
	t.Cleanup(didServer.Close)

	h := NewHandler(Config{
		SelfDID:    did,
		KeyPair:    kp,
		KeyID:      keyID,
		HTTPClient: httpclient.NewClient("test", 5*time.Second),
		Resolver:   didresolver.NewResolver(),
		Nonces:     ttlstore.NewMemoryNonceLedger(),
		PeerURL:    peerURLFor,
	})

	peer := &testPeer{did: did, keyID: keyID, keyPair: kp, didServer: didServer, handler: h}
	return peer
}

func TestSendReceive_RoundTrip(t *testing.T) {
	const merchantDID = "did:web:merchant.example"
	const shopperDID = "did:web:shopper.example"

	urls := make(map[string]string)
	peerURLFor := func(did string) (string, error) { return urls[did], nil }

	merchant := newTestPeer(t, merchantDID, peerURLFor)
	shopper := newTestPeer(t, shopperDID, peerURLFor)
	urls[merchantDID] = merchant.didServer.URL
	urls[shopperDID] = shopper.didServer.URL

	type echoPayload struct {
		Greeting string `json:"greeting"`
	}
	merchant.handler.RegisterHandler(TypeCartRequest, func(ctx context.Context, env *Envelope) (string, interface{}, *ArtifactResponse, error) {
		var p echoPayload
		if err := json.Unmarshal(env.DataPart.Payload, &p); err != nil {
			return "", nil, nil, err
		}
		return TypeCartCandidates, echoPayload{Greeting: "hello " + p.Greeting}, nil, nil
	})

	msgServer := httptest.NewServer(http.HandlerFunc(merchant.handler.ReceiveHTTP))
	t.Cleanup(msgServer.Close)

	respEnv, err := shopper.handler.Send(context.Background(), merchantDID, msgServer.URL, TypeCartRequest, echoPayload{Greeting: "world"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	var respPayload echoPayload
	if err := json.Unmarshal(respEnv.DataPart.Payload, &respPayload); err != nil {
		t.Fatalf("unmarshal response payload: %v", err)
	}
	if respPayload.Greeting != "hello world" {
		t.Errorf("Greeting = %q, want %q", respPayload.Greeting, "hello world")
	}
	if respEnv.Header.Sender != merchantDID {
		t.Errorf("response Sender = %q, want %q", respEnv.Header.Sender, merchantDID)
	}
}

func TestReceiveHTTP_RejectsReplayedNonce(t *testing.T) {
	const senderDID = "did:web:sender.example"
	const receiverDID = "did:web:receiver.example"

	urls := make(map[string]string)
	peerURLFor := func(did string) (string, error) { return urls[did], nil }

	sender := newTestPeer(t, senderDID, peerURLFor)
	receiver := newTestPeer(t, receiverDID, peerURLFor)
	urls[senderDID] = sender.didServer.URL
	urls[receiverDID] = receiver.didServer.URL

	hits := 0
	receiver.handler.RegisterHandler(TypeCartRequest, func(ctx context.Context, env *Envelope) (string, interface{}, *ArtifactResponse, error) {
		hits++
		return TypeCartCandidates, map[string]string{"ok": "yes"}, nil, nil
	})

	msgServer := httptest.NewServer(http.HandlerFunc(receiver.handler.ReceiveHTTP))
	t.Cleanup(msgServer.Close)

	// Build one signed envelope, then POST it twice by hand so both
	// requests carry the exact same nonce.
	env := &Envelope{}
	*env = buildSignedEnvelope(t, sender.handler, receiverDID, TypeCartRequest, map[string]string{"x": "1"})

	status1 := postEnvelope(t, msgServer.URL, env)
	status2 := postEnvelope(t, msgServer.URL, env)

	if status1 != http.StatusOK {
		t.Fatalf("first send status = %d, want 200", status1)
	}
	if status2 == http.StatusOK {
		t.Fatal("second send (replayed nonce) succeeded, want rejection")
	}
	if hits != 1 {
		t.Errorf("handler invoked %d times, want 1", hits)
	}
}

func TestReceiveHTTP_RejectsUnknownDataType(t *testing.T) {
	const senderDID = "did:web:sender2.example"
	const receiverDID = "did:web:receiver2.example"

	urls := make(map[string]string)
	peerURLFor := func(did string) (string, error) { return urls[did], nil }

	sender := newTestPeer(t, senderDID, peerURLFor)
	receiver := newTestPeer(t, receiverDID, peerURLFor)
	urls[senderDID] = sender.didServer.URL
	urls[receiverDID] = receiver.didServer.URL

	msgServer := httptest.NewServer(http.HandlerFunc(receiver.handler.ReceiveHTTP))
	t.Cleanup(msgServer.Close)

	env := buildSignedEnvelope(t, sender.handler, receiverDID, "ap2.requests.Nonexistent", map[string]string{})
	status := postEnvelope(t, msgServer.URL, &env)
	if status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for an unregistered data type", status)
	}
}

func buildSignedEnvelope(t *testing.T, h *Handler, recipientDID, dataType string, payload interface{}) Envelope {
	t.Helper()
	payloadRaw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	nonce, err := randomNonceHex()
	if err != nil {
		t.Fatalf("randomNonceHex: %v", err)
	}
	now := time.Now().UTC()
	env := Envelope{
		Header: Header{
			MessageID:     "msg-1",
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
		DataPart: DataPart{Type: dataType, ID: "part-1", Payload: payloadRaw},
	}
	if err := h.sign(&env); err != nil {
		t.Fatalf("sign: %v", err)
	}
	return env
}

func postEnvelope(t *testing.T, url string, env *Envelope) int {
	t.Helper()
	client := httpclient.NewClient("test", 5*time.Second)
	var out Envelope
	err := client.PostJSON(context.Background(), url, env, &out)
	if err == nil {
		return http.StatusOK
	}
	var httpErr *httpclient.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return http.StatusInternalServerError
}
