package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrForbidden             = errors.New("forbidden")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrExpired               = errors.New("departure time has passed")
	ErrInsufficientInventory = errors.New("insufficient tickets available")
	ErrNotApproved           = errors.New("ticket is not approved")
	ErrAlreadyPaid           = errors.New("booking is already paid")
	ErrPaymentNotCompleted   = errors.New("payment not completed")
	ErrPaymentMismatch       = errors.New("payment does not match booking")
	ErrRequestInProgress     = errors.New("request already in progress")
	ErrInvalidInput          = errors.New("invalid input")
	ErrPaymentGateway        = errors.New("payment provider unavailable")
	ErrInventoryChanged      = errors.New("ticket quantity changed concurrently")
	ErrTicketInUse           = errors.New("ticket has bookings awaiting payment")
	ErrInternal              = errors.New("internal error")

	ErrTicketNotFound      = fmt.Errorf("ticket %w", ErrNotFound)
	ErrBookingNotFound     = fmt.Errorf("booking %w", ErrNotFound)
	ErrTransactionNotFound = fmt.Errorf("transaction %w", ErrNotFound)
	ErrNilBooking          = errors.New("booking is nil")
	ErrNilTicket           = errors.New("ticket is nil")
)

// TransitionError reports an action the current status does not allow.
type TransitionError struct {
	Action string
	From   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s a booking that is %s", e.Action, e.From)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// CurrentStatus extracts the status carried by a TransitionError, if any.
func CurrentStatus(err error) (string, bool) {
	var te *TransitionError
	if errors.As(err, &te) {
		return te.From, true
	}
	return "", false
}

// Invalid wraps ErrInvalidInput with a reason.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
