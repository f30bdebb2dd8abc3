package store

import (
	"context"
	"errors"
	"sync"

	"github.com/parlakisik/aex-ap2/aex-credentials-provider/internal/model"
	"github.com/parlakisik/aex-ap2/internal/ap2"
)

// ErrNotFound is returned by lookups that miss.
var ErrNotFound = errors.New("not found")

// CredentialStore owns the Credential Provider's durable records: passkeys,
// payment methods, and the receipt ledger. Ephemeral records (pm_tokens,
// step-up sessions, attestation replay markers) live in ttlstore instead — see
// internal/service.
type CredentialStore interface {
	SavePasskey(ctx context.Context, cred ap2.PasskeyCredential) error
	GetPasskeyByUser(ctx context.Context, userID string) (*ap2.PasskeyCredential, error)
	UpdateSignCount(ctx context.Context, credentialID string, newCount uint32) error

	ListPaymentMethods(ctx context.Context, userID string) ([]ap2.PaymentMethod, error)
	GetPaymentMethod(ctx context.Context, userID, methodID string) (*ap2.PaymentMethod, error)

	AppendReceipt(ctx context.Context, payerID string, rec model.ReceiptRecord) error
}

// MemoryStore is an in-process CredentialStore, seeded with demo users and
// payment methods, the default for single-replica deployments and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	passkeys map[string]*ap2.PasskeyCredential // credential_id -> cred
	byUser   map[string]string                 // user_id -> credential_id
	methods  map[string][]ap2.PaymentMethod    // user_id -> methods
	receipts map[string][]model.ReceiptRecord  // payer_id -> receipts
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		passkeys: make(map[string]*ap2.PasskeyCredential),
		byUser:   make(map[string]string),
		methods:  make(map[string][]ap2.PaymentMethod),
		receipts: make(map[string][]model.ReceiptRecord),
	}
	s.seedDemoData()
	return s
}

func (s *MemoryStore) seedDemoData() {
	defaultMethods := []ap2.PaymentMethod{
		{ID: "pm_demo_visa_4242", Type: "CARD", DisplayName: "Visa ending in 4242", Last4: "4242", ExpiryMonth: 12, ExpiryYear: 2027, Brand: "Visa", IsDefault: true, SupportedMethods: []string{"CARD"}},
		{ID: "pm_demo_mc_5555", Type: "CARD", DisplayName: "Mastercard ending in 5555", Last4: "5555", ExpiryMonth: 6, ExpiryYear: 2026, Brand: "Mastercard", SupportedMethods: []string{"CARD"}, RequiresStepUp: true},
		{ID: "pm_aex_balance", Type: "AEX_BALANCE", DisplayName: "AEX Account Balance", SupportedMethods: []string{"AEX_BALANCE"}},
	}
	for _, userID := range []string{"demo-consumer", "consumer-agent", "user-123", "orchestrator", "legal-consumer"} {
		methods := make([]ap2.PaymentMethod, len(defaultMethods))
		copy(methods, defaultMethods)
		s.methods[userID] = methods
	}
}

func (s *MemoryStore) SavePasskey(_ context.Context, cred ap2.PasskeyCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passkeys[cred.CredentialID] = &cred
	s.byUser[cred.UserID] = cred.CredentialID
	return nil
}

func (s *MemoryStore) GetPasskeyByUser(_ context.Context, userID string) (*ap2.PasskeyCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	credID, ok := s.byUser[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cred := *s.passkeys[credID]
	return &cred, nil
}

func (s *MemoryStore) UpdateSignCount(_ context.Context, credentialID string, newCount uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.passkeys[credentialID]
	if !ok {
		return ErrNotFound
	}
	cred.SignCount = newCount
	return nil
}

func (s *MemoryStore) ListPaymentMethods(_ context.Context, userID string) ([]ap2.PaymentMethod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	methods, ok := s.methods[userID]
	if !ok {
		return []ap2.PaymentMethod{{ID: "pm_aex_balance", Type: "AEX_BALANCE", DisplayName: "AEX Account Balance", IsDefault: true, SupportedMethods: []string{"AEX_BALANCE"}}}, nil
	}
	out := make([]ap2.PaymentMethod, len(methods))
	copy(out, methods)
	return out, nil
}

func (s *MemoryStore) GetPaymentMethod(_ context.Context, userID, methodID string) (*ap2.PaymentMethod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.methods[userID] {
		if m.ID == methodID {
			mc := m
			return &mc, nil
		}
	}
	if methodID == "pm_aex_balance" {
		return &ap2.PaymentMethod{ID: "pm_aex_balance", Type: "AEX_BALANCE", DisplayName: "AEX Account Balance", SupportedMethods: []string{"AEX_BALANCE"}}, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) AppendReceipt(_ context.Context, payerID string, rec model.ReceiptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.receipts[payerID] {
		if existing.TransactionID == rec.TransactionID {
			return nil // idempotent on transaction_id
		}
	}
	s.receipts[payerID] = append(s.receipts[payerID], rec)
	return nil
}
