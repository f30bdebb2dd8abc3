package store

import (
	"context"
	"sync"

	"github.com/parlakisik/aex-ap2/aex-settlement/internal/model"
	"github.com/parlakisik/aex-ap2/internal/ap2"
)

// MemoryStore implements TransactionStore in-process. Unit-of-work writes
// are staged in the TxWriter and applied under one lock at commit, so a
// failed settlement leaves no trace and readers never observe a partial
// chain.
type MemoryStore struct {
	mu           sync.RWMutex
	transactions map[string]ap2.Transaction
	byMandate    map[string]string // payment_mandate_id -> transaction_id
	mandates     map[string]model.MandateRecord
	receipts     map[string]model.ReceiptRecord
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		transactions: make(map[string]ap2.Transaction),
		byMandate:    make(map[string]string),
		mandates:     make(map[string]model.MandateRecord),
		receipts:     make(map[string]model.ReceiptRecord),
	}
}

type memoryTx struct {
	transactions []ap2.Transaction
	mandates     []model.MandateRecord
	receipts     []model.ReceiptRecord
}

func (t *memoryTx) SaveTransaction(_ context.Context, tx ap2.Transaction) error {
	t.transactions = append(t.transactions, tx)
	return nil
}

func (t *memoryTx) SaveMandates(_ context.Context, rec model.MandateRecord) error {
	t.mandates = append(t.mandates, rec)
	return nil
}

func (t *memoryTx) SaveReceipt(_ context.Context, rec model.ReceiptRecord) error {
	t.receipts = append(t.receipts, rec)
	return nil
}

func (s *MemoryStore) Run(ctx context.Context, fn func(TxWriter) error) error {
	staged := &memoryTx{}
	if err := fn(staged); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range staged.mandates {
		if _, exists := s.mandates[rec.PaymentMandateID]; exists {
			return ErrDuplicateMandate
		}
	}
	for _, rec := range staged.mandates {
		s.mandates[rec.PaymentMandateID] = rec
	}
	for _, tx := range staged.transactions {
		s.transactions[tx.TransactionID] = tx
		s.byMandate[tx.PaymentMandateID] = tx.TransactionID
	}
	for _, rec := range staged.receipts {
		s.receipts[rec.TransactionID] = rec
	}
	return nil
}

func (s *MemoryStore) GetTransaction(_ context.Context, transactionID string) (ap2.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.transactions[transactionID]
	if !ok {
		return ap2.Transaction{}, ErrTransactionNotFound
	}
	return tx, nil
}

func (s *MemoryStore) GetTransactionByMandate(_ context.Context, paymentMandateID string) (ap2.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	txID, ok := s.byMandate[paymentMandateID]
	if !ok {
		return ap2.Transaction{}, ErrTransactionNotFound
	}
	return s.transactions[txID], nil
}

func (s *MemoryStore) UpdateTransactionStatus(_ context.Context, transactionID, to string) (ap2.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[transactionID]
	if !ok {
		return ap2.Transaction{}, ErrTransactionNotFound
	}
	if !ap2.CanTransition(tx.Status, to) {
		return ap2.Transaction{}, ap2.ErrInvalidTransition(tx.Status, to)
	}
	tx.Status = to
	s.transactions[transactionID] = tx
	return tx, nil
}

func (s *MemoryStore) Close() error { return nil }
