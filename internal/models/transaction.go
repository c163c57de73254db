package models

import "time"

// Transaction records one completed capture. It is never updated.
type Transaction struct {
	ID          int64     `json:"id"`
	BookingID   int64     `json:"booking_id"`
	TicketID    int64     `json:"ticket_id"`
	BuyerID     int64     `json:"buyer_id"`
	ChargeID    string    `json:"charge_id"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	TicketTitle string    `json:"ticket_title"`
	CreatedAt   time.Time `json:"created_at"`
}

// Capture is everything needed to finalize a paid booking in one unit of work.
type Capture struct {
	BookingID   int64
	TicketID    int64
	BuyerID     int64
	Quantity    int32
	Amount      int64
	Currency    string
	ChargeID    string
	TicketTitle string
	PaidAt      time.Time
}

func (c Capture) Transaction() *Transaction {
	return &Transaction{
		BookingID:   c.BookingID,
		TicketID:    c.TicketID,
		BuyerID:     c.BuyerID,
		ChargeID:    c.ChargeID,
		Amount:      c.Amount,
		Currency:    c.Currency,
		TicketTitle: c.TicketTitle,
	}
}
