package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	pkgerrors "github.com/MarufurRahmanRahat/ticket-bari-server/pkg/errors"
)

type BookingStatus string

const (
	BookingPending  BookingStatus = "pending"
	BookingAccepted BookingStatus = "accepted"
	BookingRejected BookingStatus = "rejected"
	BookingPaid     BookingStatus = "paid"

	// BookingDeleted is the target of a cancel. It is never persisted:
	// a cancelled booking is removed.
	BookingDeleted BookingStatus = "deleted"
)

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingPending, BookingAccepted, BookingRejected, BookingPaid:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

type BookingAction string

const (
	ActionAccept  BookingAction = "accept"
	ActionReject  BookingAction = "reject"
	ActionCancel  BookingAction = "cancel"
	ActionCapture BookingAction = "capture"
)

// Any (status, action) pair missing here is an illegal transition.
var bookingTransitions = map[BookingStatus]map[BookingAction]BookingStatus{
	BookingPending: {
		ActionAccept: BookingAccepted,
		ActionReject: BookingRejected,
		ActionCancel: BookingDeleted,
	},
	BookingAccepted: {
		ActionCapture: BookingPaid,
	},
}

// Next returns the status reached by applying action to s.
func (s BookingStatus) Next(action BookingAction) (BookingStatus, error) {
	if next, ok := bookingTransitions[s][action]; ok {
		return next, nil
	}
	return "", &pkgerrors.TransitionError{Action: string(action), From: string(s)}
}

// TicketSnapshot is an owned copy of the ticket terms at booking time.
type TicketSnapshot struct {
	Title         string        `json:"title"`
	Origin        string        `json:"origin"`
	Destination   string        `json:"destination"`
	TransportMode TransportMode `json:"transport_mode"`
	DepartureDate string        `json:"departure_date"`
	DepartureTime string        `json:"departure_time"`
	UnitPrice     int64         `json:"unit_price"`
}

func (s TicketSnapshot) Expired(now time.Time, loc *time.Location) bool {
	return departed(s.DepartureDate, s.DepartureTime, now, loc)
}

func (s TicketSnapshot) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *TicketSnapshot) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	case nil:
		*s = TicketSnapshot{}
		return nil
	default:
		return fmt.Errorf("unsupported ticket snapshot type %T", value)
	}
	return json.Unmarshal(raw, s)
}

type Booking struct {
	ID              int64          `json:"id"`
	TicketID        int64          `json:"ticket_id"`
	BuyerID         int64          `json:"buyer_id"`
	VendorID        int64          `json:"vendor_id"`
	Quantity        int32          `json:"quantity"`
	TotalPrice      int64          `json:"total_price"`
	Status          BookingStatus  `json:"status"`
	PaymentStatus   PaymentStatus  `json:"payment_status"`
	Snapshot        TicketSnapshot `json:"ticket_snapshot"`
	PaymentIntentID *string        `json:"payment_intent_id,omitempty"`
	PaidAt          *time.Time     `json:"paid_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// NewBooking prices a pending booking against the ticket's current terms.
func NewBooking(buyerID int64, ticket *Ticket, quantity int32) *Booking {
	snapshot := ticket.Snapshot()
	return &Booking{
		TicketID:      ticket.ID,
		BuyerID:       buyerID,
		VendorID:      ticket.VendorID,
		Quantity:      quantity,
		TotalPrice:    int64(quantity) * snapshot.UnitPrice,
		Status:        BookingPending,
		PaymentStatus: PaymentUnpaid,
		Snapshot:      snapshot,
	}
}
