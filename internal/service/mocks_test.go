package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sakashimaa/paybot/internal/domain"
	"github.com/sakashimaa/paybot/internal/processor"
	"github.com/sakashimaa/paybot/internal/receipt"
	"github.com/sakashimaa/paybot/internal/repository"
	"github.com/shopspring/decimal"
)

type memoryPaymentStore struct {
	mu      sync.Mutex
	records map[string]*domain.PaymentRecord
	nextID  int64
	now     time.Time

	insertErr error
	updateErr error

	updateCalls int
	markCalls   int
}

func newMemoryPaymentStore() *memoryPaymentStore {
	return &memoryPaymentStore{
		records: make(map[string]*domain.PaymentRecord),
		now:     time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func (s *memoryPaymentStore) Insert(_ context.Context, record *domain.PaymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.insertErr != nil {
		return s.insertErr
	}
	if _, ok := s.records[record.ProcessorPaymentID]; ok {
		return repository.ErrPaymentAlreadyExists
	}

	s.nextID++
	s.now = s.now.Add(time.Minute)

	record.SequenceID = s.nextID
	record.CreatedAt = s.now
	record.UpdatedAt = s.now

	stored := *record
	s.records[record.ProcessorPaymentID] = &stored

	return nil
}

func (s *memoryPaymentStore) UpdateStatus(_ context.Context, processorID string, status domain.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.updateCalls++
	if s.updateErr != nil {
		return s.updateErr
	}

	record, ok := s.records[processorID]
	if !ok {
		return repository.ErrPaymentNotFound
	}
	record.Status = status

	return nil
}

func (s *memoryPaymentStore) MarkReceiptIssued(_ context.Context, processorID, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.markCalls++

	record, ok := s.records[processorID]
	if !ok {
		return repository.ErrPaymentNotFound
	}
	at := s.now
	record.ReceiptIssuedAt = &at

	return nil
}

func (s *memoryPaymentStore) GetByProcessorID(_ context.Context, processorID string) (*domain.PaymentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[processorID]
	if !ok {
		return nil, repository.ErrPaymentNotFound
	}

	out := *record
	return &out, nil
}

func (s *memoryPaymentStore) GetBySequenceID(_ context.Context, id int64) (*domain.PaymentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, record := range s.records {
		if record.SequenceID == id {
			out := *record
			return &out, nil
		}
	}

	return nil, repository.ErrPaymentNotFound
}

func (s *memoryPaymentStore) ListByOwner(_ context.Context, ownerID int64) ([]domain.PaymentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.PaymentRecord
	for _, record := range s.records {
		if record.OwnerID == ownerID {
			out = append(out, *record)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].SequenceID > out[j].SequenceID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return out, nil
}

func (s *memoryPaymentStore) get(processorID string) *domain.PaymentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[processorID]
	if !ok {
		return nil
	}
	out := *record
	return &out
}

type fakeProcessor struct {
	mu sync.Mutex

	checkout  *processor.Checkout
	createErr error
	status    domain.Status

	createCalls     int
	checkCalls      int
	lastAmount      decimal.Decimal
	lastDescription string
}

func (p *fakeProcessor) Provider() string {
	return "fake"
}

func (p *fakeProcessor) CreatePayment(_ context.Context, amount decimal.Decimal, description string) (*processor.Checkout, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.createCalls++
	p.lastAmount = amount
	p.lastDescription = description

	if p.createErr != nil {
		return nil, p.createErr
	}

	checkout := *p.checkout
	checkout.Amount = amount
	checkout.Description = description
	checkout.Provider = p.Provider()

	return &checkout, nil
}

func (p *fakeProcessor) CheckStatus(_ context.Context, _ string) domain.Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.checkCalls++
	return p.status
}

func (p *fakeProcessor) setStatus(status domain.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = status
}

type fakeReceipts struct {
	mu        sync.Mutex
	err       error
	records   []domain.PaymentRecord
	discarded []string
}

func (r *fakeReceipts) Generate(_ context.Context, record *domain.PaymentRecord) (*receipt.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = append(r.records, *record)
	if r.err != nil {
		return nil, r.err
	}

	return &receipt.Document{
		Name:        "receipt_" + record.ProcessorPaymentID + ".pdf",
		ContentType: receipt.ContentTypePDF,
		Bytes:       []byte("%PDF-1.3"),
		Key:         "receipt_" + record.ProcessorPaymentID + ".pdf",
		Location:    "/tmp/receipt_" + record.ProcessorPaymentID + ".pdf",
	}, nil
}

func (r *fakeReceipts) Discard(_ context.Context, doc *receipt.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discarded = append(r.discarded, doc.Key)
	return nil
}

func (r *fakeReceipts) discardedKeys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.discarded...)
}

func (r *fakeReceipts) generated() []domain.PaymentRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.PaymentRecord(nil), r.records...)
}

type sentMessage struct {
	UserID   int64
	Text     string
	Actions  []Action
	Document *receipt.Document
}

type recordingMessenger struct {
	mu       sync.Mutex
	messages []sentMessage
	err      error
	docErr   error
}

func (m *recordingMessenger) SendText(_ context.Context, userID int64, text string, actions ...Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, sentMessage{UserID: userID, Text: text, Actions: actions})
	return nil
}

func (m *recordingMessenger) SendDocument(_ context.Context, userID int64, doc *receipt.Document, caption string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	if m.docErr != nil {
		return m.docErr
	}
	m.messages = append(m.messages, sentMessage{UserID: userID, Text: caption, Document: doc})
	return nil
}

func (m *recordingMessenger) last() sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.messages) == 0 {
		return sentMessage{}
	}
	return m.messages[len(m.messages)-1]
}

func (m *recordingMessenger) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

var errBoom = errors.New("boom")

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{counts: map[string]int{}}
}

func (r *countingRecorder) inc(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[key]++
}

func (r *countingRecorder) PaymentCreated(provider, outcome string) {
	r.inc("created:" + provider + ":" + outcome)
}

func (r *countingRecorder) StatusChecked(status string) { r.inc("status:" + status) }

func (r *countingRecorder) ReceiptDelivered(outcome string) { r.inc("receipt:" + outcome) }

func (r *countingRecorder) get(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[key]
}
