package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/infrastructure/payment"
	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/infrastructure/redis"
	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/models"
	pkgerrors "github.com/MarufurRahmanRahat/ticket-bari-server/pkg/errors"
	"github.com/stretchr/testify/require"
)

// memStore mirrors the guarded-update semantics of the Postgres repositories
// behind a single mutex.
type memStore struct {
	mu           sync.Mutex
	tickets      map[int64]models.Ticket
	bookings     map[int64]models.Booking
	transactions map[int64]models.Transaction
	nextID       int64
}

func newMemStore() *memStore {
	return &memStore{
		tickets:      map[int64]models.Ticket{},
		bookings:     map[int64]models.Booking{},
		transactions: map[int64]models.Transaction{},
	}
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) ticket(id int64) models.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tickets[id]
}

func (s *memStore) booking(id int64) (models.Booking, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	return b, ok
}

func (s *memStore) transactionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transactions)
}

func (s *memStore) classify(id int64, action models.BookingAction) error {
	b, ok := s.bookings[id]
	if !ok {
		return pkgerrors.ErrBookingNotFound
	}
	if action == models.ActionCapture && b.PaymentStatus == models.PaymentPaid {
		return pkgerrors.ErrAlreadyPaid
	}
	return &pkgerrors.TransitionError{Action: string(action), From: string(b.Status)}
}

type memTickets struct{ *memStore }

func (r memTickets) Create(_ context.Context, t *models.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t.ID = r.id()
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	r.tickets[t.ID] = *t
	return nil
}

func (r memTickets) GetByID(_ context.Context, id int64) (*models.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok {
		return nil, pkgerrors.ErrTicketNotFound
	}
	return &t, nil
}

func (r memTickets) Update(_ context.Context, t *models.Ticket, expectedQuantity *int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tickets[t.ID]
	if !ok {
		return pkgerrors.ErrTicketNotFound
	}
	if expectedQuantity == nil {
		t.Quantity = stored.Quantity
	} else if stored.Quantity != *expectedQuantity {
		return pkgerrors.ErrInventoryChanged
	}
	t.UpdatedAt = time.Now()
	r.tickets[t.ID] = *t
	return nil
}

func (r memTickets) SetApproval(_ context.Context, id int64, status models.ApprovalStatus) (*models.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[id]
	if !ok {
		return nil, pkgerrors.ErrTicketNotFound
	}
	t.Approval = status
	r.tickets[id] = t
	return &t, nil
}

func (r memTickets) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tickets[id]; !ok {
		return pkgerrors.ErrTicketNotFound
	}
	for _, b := range r.bookings {
		if b.TicketID == id && b.Status == models.BookingAccepted && b.PaymentStatus == models.PaymentUnpaid {
			return pkgerrors.ErrTicketInUse
		}
	}
	delete(r.tickets, id)
	return nil
}

// consume takes qty seats off a ticket outside any booking, standing in for
// captures made by other buyers.
func (s *memStore) consume(t *testing.T, id int64, qty int32) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.decrement(id, qty)
	require.NoError(t, err)
}

func (s *memStore) decrement(id int64, qty int32) (int32, error) {
	if qty < 1 {
		return 0, pkgerrors.Invalid("quantity must be at least 1")
	}
	t, ok := s.tickets[id]
	if !ok {
		return 0, pkgerrors.ErrTicketNotFound
	}
	if t.Quantity < qty {
		return 0, pkgerrors.ErrInsufficientInventory
	}
	t.Quantity -= qty
	s.tickets[id] = t
	return t.Quantity, nil
}

type memBookings struct{ *memStore }

func (r memBookings) Create(_ context.Context, b *models.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b.ID = r.id()
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	r.bookings[b.ID] = *b
	return nil
}

func (r memBookings) GetByID(_ context.Context, id int64) (*models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, pkgerrors.ErrBookingNotFound
	}
	return &b, nil
}

func (r memBookings) list(match func(models.Booking) bool) []models.Booking {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Booking
	for _, b := range r.bookings {
		if match(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (r memBookings) ListByBuyer(_ context.Context, buyerID int64) ([]models.Booking, error) {
	return r.list(func(b models.Booking) bool { return b.BuyerID == buyerID }), nil
}

func (r memBookings) ListByVendor(_ context.Context, vendorID int64) ([]models.Booking, error) {
	return r.list(func(b models.Booking) bool { return b.VendorID == vendorID }), nil
}

func (r memBookings) Transition(_ context.Context, id int64, from models.BookingStatus, action models.BookingAction) (*models.Booking, error) {
	to, err := from.Next(action)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok || b.Status != from {
		return nil, r.classify(id, action)
	}
	b.Status = to
	b.UpdatedAt = time.Now()
	r.bookings[id] = b
	return &b, nil
}

func (r memBookings) DeletePending(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok || b.Status != models.BookingPending {
		return r.classify(id, models.ActionCancel)
	}
	delete(r.bookings, id)
	return nil
}

func (r memBookings) SetPaymentIntent(_ context.Context, id int64, intentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok || b.Status != models.BookingAccepted || b.PaymentStatus != models.PaymentUnpaid {
		return r.classify(id, models.ActionCapture)
	}
	b.PaymentIntentID = &intentID
	r.bookings[id] = b
	return nil
}

type memTransactions struct{ *memStore }

func (r memTransactions) GetByID(_ context.Context, id int64) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.transactions[id]
	if !ok {
		return nil, pkgerrors.ErrTransactionNotFound
	}
	return &tx, nil
}

func (r memTransactions) GetByBookingID(_ context.Context, bookingID int64) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tx := range r.transactions {
		if tx.BookingID == bookingID {
			return &tx, nil
		}
	}
	return nil, pkgerrors.ErrTransactionNotFound
}

func (r memTransactions) ListByBuyer(_ context.Context, buyerID int64) ([]models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Transaction
	for _, tx := range r.transactions {
		if tx.BuyerID == buyerID {
			out = append(out, tx)
		}
	}
	return out, nil
}

type memCapture struct{ *memStore }

func (r memCapture) Finalize(_ context.Context, c models.Capture) (*models.Booking, *models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[c.BookingID]
	if !ok || b.Status != models.BookingAccepted || b.PaymentStatus != models.PaymentUnpaid {
		return nil, nil, r.classify(c.BookingID, models.ActionCapture)
	}
	for _, tx := range r.transactions {
		if tx.BookingID == c.BookingID || tx.ChargeID == c.ChargeID {
			return nil, nil, pkgerrors.ErrAlreadyPaid
		}
	}
	if _, err := r.decrement(c.TicketID, c.Quantity); err != nil {
		return nil, nil, err
	}

	paidAt := c.PaidAt
	b.Status = models.BookingPaid
	b.PaymentStatus = models.PaymentPaid
	b.PaidAt = &paidAt
	r.bookings[b.ID] = b

	tx := c.Transaction()
	tx.ID = r.id()
	tx.CreatedAt = paidAt
	r.transactions[tx.ID] = *tx
	return &b, tx, nil
}

type fakeGateway struct {
	mu          sync.Mutex
	intents     map[string]*payment.ChargeStatus
	created     int
	createErr   error
	retrieveErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{intents: map[string]*payment.ChargeStatus{}}
}

func (g *fakeGateway) CreateChargeIntent(_ context.Context, amount int64, currency string, metadata map[string]string) (*payment.ChargeIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.created++
	id := fmt.Sprintf("pi_%d", g.created)
	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	g.intents[id] = &payment.ChargeStatus{
		IntentID:     id,
		ClientSecret: id + "_secret",
		Status:       payment.StatusPending,
		ChargeID:     fmt.Sprintf("ch_%d", g.created),
		Amount:       amount,
		Currency:     currency,
		Metadata:     meta,
	}
	return &payment.ChargeIntent{IntentID: id, ClientSecret: id + "_secret"}, nil
}

func (g *fakeGateway) RetrieveChargeStatus(_ context.Context, intentID string) (*payment.ChargeStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.retrieveErr != nil {
		return nil, g.retrieveErr
	}
	st, ok := g.intents[intentID]
	if !ok {
		return nil, fmt.Errorf("%w: no such intent %s", pkgerrors.ErrPaymentGateway, intentID)
	}
	cp := *st
	return &cp, nil
}

func (g *fakeGateway) setStatus(intentID string, status payment.IntentStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents[intentID].Status = status
}

func (g *fakeGateway) metadata(intentID string) map[string]string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.intents[intentID].Metadata
}

type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}}
}

func (r *fakeRedis) Get(_ context.Context, key string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.data[key]
	if !ok {
		return "", redis.ErrKeyNotFound
	}
	return v, nil
}

func (r *fakeRedis) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[key] = fmt.Sprint(value)
	return nil
}

func (r *fakeRedis) SetNX(_ context.Context, key string, value interface{}, _ time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[key]; ok {
		return false, nil
	}
	r.data[key] = fmt.Sprint(value)
	return true, nil
}

func (r *fakeRedis) Del(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, key)
	return nil
}

func (r *fakeRedis) Close() error { return nil }

type sentMessage struct {
	topic string
	key   string
	value []byte
}

type fakeProducer struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (p *fakeProducer) Send(_ context.Context, topic, key string, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, sentMessage{topic: topic, key: key, value: value})
	return nil
}

func (p *fakeProducer) Close() error { return nil }

func (p *fakeProducer) messages() []sentMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]sentMessage(nil), p.sent...)
}
