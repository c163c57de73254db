package models

import (
	"fmt"
	"strings"
	"time"
)

const (
	DepartureDateLayout = "2006-01-02"
	DepartureTimeLayout = "15:04"
)

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

func (s ApprovalStatus) Valid() bool {
	switch s {
	case ApprovalPending, ApprovalApproved, ApprovalRejected:
		return true
	}
	return false
}

type TransportMode string

const (
	TransportBus    TransportMode = "bus"
	TransportTrain  TransportMode = "train"
	TransportLaunch TransportMode = "launch"
	TransportPlane  TransportMode = "plane"
)

func (m TransportMode) Valid() bool {
	switch m {
	case TransportBus, TransportTrain, TransportLaunch, TransportPlane:
		return true
	}
	return false
}

// Ticket is the single authoritative record for a departure's remaining
// quantity. Quantity only changes through the conditional decrement done at
// capture time.
type Ticket struct {
	ID            int64          `json:"id"`
	VendorID      int64          `json:"vendor_id"`
	Title         string         `json:"title"`
	Origin        string         `json:"origin"`
	Destination   string         `json:"destination"`
	TransportMode TransportMode  `json:"transport_mode"`
	UnitPrice     int64          `json:"unit_price"`
	Quantity      int32          `json:"quantity"`
	DepartureDate string         `json:"departure_date"`
	DepartureTime string         `json:"departure_time"`
	Approval      ApprovalStatus `json:"approval_status"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Snapshot freezes the terms a booking was made against.
func (t *Ticket) Snapshot() TicketSnapshot {
	return TicketSnapshot{
		Title:         t.Title,
		Origin:        t.Origin,
		Destination:   t.Destination,
		TransportMode: t.TransportMode,
		DepartureDate: t.DepartureDate,
		DepartureTime: t.DepartureTime,
		UnitPrice:     t.UnitPrice,
	}
}

func (t *Ticket) DepartureAt(loc *time.Location) (time.Time, error) {
	return DepartureInstant(t.DepartureDate, t.DepartureTime, loc)
}

// Expired reports whether the departure instant lies strictly before now.
// Unparseable departure data counts as expired.
func (t *Ticket) Expired(now time.Time, loc *time.Location) bool {
	return departed(t.DepartureDate, t.DepartureTime, now, loc)
}

func (t *Ticket) Validate() error {
	switch {
	case strings.TrimSpace(t.Title) == "":
		return fmt.Errorf("title is required")
	case strings.TrimSpace(t.Origin) == "" || strings.TrimSpace(t.Destination) == "":
		return fmt.Errorf("origin and destination are required")
	case !t.TransportMode.Valid():
		return fmt.Errorf("invalid transport mode %q", t.TransportMode)
	case t.UnitPrice < 0:
		return fmt.Errorf("unit price must not be negative")
	case t.Quantity < 0:
		return fmt.Errorf("quantity must not be negative")
	}
	if _, err := DepartureInstant(t.DepartureDate, t.DepartureTime, time.UTC); err != nil {
		return err
	}
	return nil
}

// DepartureInstant combines a YYYY-MM-DD date with an HH:MM time of day in loc.
func DepartureInstant(date, timeOfDay string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	d, err := time.ParseInLocation(DepartureDateLayout, strings.TrimSpace(date), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid departure date %q: %w", date, err)
	}
	tod, err := time.Parse(DepartureTimeLayout, strings.TrimSpace(timeOfDay))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid departure time %q: %w", timeOfDay, err)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), tod.Hour(), tod.Minute(), 0, 0, loc), nil
}

func departed(date, timeOfDay string, now time.Time, loc *time.Location) bool {
	at, err := DepartureInstant(date, timeOfDay, loc)
	if err != nil {
		return true
	}
	return at.Before(now)
}
