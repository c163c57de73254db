package models

import "time"

type BookingEventType string

const (
	EventBookingCreated   BookingEventType = "booking_created"
	EventBookingAccepted  BookingEventType = "booking_accepted"
	EventBookingRejected  BookingEventType = "booking_rejected"
	EventBookingCancelled BookingEventType = "booking_cancelled"
	EventBookingPaid      BookingEventType = "booking_paid"
)

// BookingEvent is published to the bookings topic after each lifecycle change.
type BookingEvent struct {
	EventID    string           `json:"event_id"`
	Type       BookingEventType `json:"event_type"`
	BookingID  int64            `json:"booking_id"`
	TicketID   int64            `json:"ticket_id"`
	BuyerID    int64            `json:"buyer_id"`
	VendorID   int64            `json:"vendor_id"`
	Status     BookingStatus    `json:"status"`
	Quantity   int32            `json:"quantity"`
	TotalPrice int64            `json:"total_price"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// PaymentEvent announces that the payment provider reports an intent as
// succeeded. Consumers finalize the capture from it.
type PaymentEvent struct {
	EventID    string    `json:"event_id"`
	BookingID  int64     `json:"booking_id"`
	BuyerID    int64     `json:"buyer_id"`
	IntentID   string    `json:"intent_id"`
	OccurredAt time.Time `json:"occurred_at"`
}
