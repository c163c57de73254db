package service

import (
	"context"
	"testing"
	"time"

	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/infrastructure/payment"
	"github.com/MarufurRahmanRahat/ticket-bari-server/internal/models"
	"github.com/stretchr/testify/require"
)

const (
	vendorID      int64 = 10
	otherVendorID int64 = 11
	buyerA        int64 = 20
	buyerB        int64 = 21
)

var testNow = time.Date(2026, time.January, 10, 10, 0, 0, 0, time.UTC)

type harness struct {
	store        *memStore
	ledger       *InventoryLedger
	bookings     *bookingService
	payments     *paymentService
	tickets      *ticketService
	transactions *transactionService
	gateway      *fakeGateway
	redis        *fakeRedis
	producer     *fakeProducer
}

func newHarness() *harness {
	store := newMemStore()
	clock := func() time.Time { return testNow }

	ledger := NewInventoryLedger(memTickets{store}, time.UTC)
	ledger.now = clock

	gateway := newFakeGateway()
	redisClient := newFakeRedis()
	producer := &fakeProducer{}

	bookings := NewBookingService(memBookings{store}, ledger, producer, time.UTC)
	bookings.now = clock

	payments := NewPaymentService(memBookings{store}, memCapture{store}, ledger, gateway, redisClient, producer, "USD", time.UTC)
	payments.now = clock

	return &harness{
		store:        store,
		ledger:       ledger,
		bookings:     bookings,
		payments:     payments,
		tickets:      NewTicketService(memTickets{store}),
		transactions: NewTransactionService(memTransactions{store}),
		gateway:      gateway,
		redis:        redisClient,
		producer:     producer,
	}
}

// seedTicket stores an approved ticket departing on 2026-02-01 at 09:30 UTC.
func (h *harness) seedTicket(t *testing.T, quantity int32, unitPrice int64) int64 {
	t.Helper()
	ticket := &models.Ticket{
		VendorID:      vendorID,
		Title:         "Dhaka Express",
		Origin:        "Dhaka",
		Destination:   "Chittagong",
		TransportMode: models.TransportTrain,
		UnitPrice:     unitPrice,
		Quantity:      quantity,
		DepartureDate: "2026-02-01",
		DepartureTime: "09:30",
		Approval:      models.ApprovalApproved,
	}
	require.NoError(t, memTickets{h.store}.Create(context.Background(), ticket))
	return ticket.ID
}

func (h *harness) acceptedBooking(t *testing.T, buyerID, ticketID int64, quantity int32) *models.Booking {
	t.Helper()
	ctx := context.Background()
	booking, err := h.bookings.Create(ctx, buyerID, ticketID, quantity)
	require.NoError(t, err)
	booking, err = h.bookings.Accept(ctx, vendorID, booking.ID)
	require.NoError(t, err)
	return booking
}

// paidIntent creates an intent for the booking and marks it succeeded at the provider.
func (h *harness) paidIntent(t *testing.T, buyerID, bookingID int64) string {
	t.Helper()
	intent, err := h.payments.CreateIntent(context.Background(), buyerID, bookingID)
	require.NoError(t, err)
	h.gateway.setStatus(intent.IntentID, payment.StatusSucceeded)
	return intent.IntentID
}
