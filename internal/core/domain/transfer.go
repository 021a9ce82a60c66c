package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type TransferStatus string

const (
	TransferStatusPending   TransferStatus = "pending"
	TransferStatusCompleted TransferStatus = "completed"
	TransferStatusCancelled TransferStatus = "cancelled"
)

// Transfer is the record of one item movement between two locations.
// Completed and cancelled are terminal; a transfer mutates inventory
// exactly once, at execution time.
type Transfer struct {
	ID               string
	ItemType         ItemType
	ItemID           string
	From             LocationRef
	To               LocationRef
	Quantity         decimal.Decimal
	Status           TransferStatus
	Actor            string
	Notes            string
	DestinationBoxID string
	CreatedAt        time.Time
	CompletedAt      *time.Time
	UpdatedAt        time.Time
}

// Complete moves a pending transfer to its completed terminal state.
func (t *Transfer) Complete(now time.Time) error {
	if t.Status != TransferStatusPending {
		return fmt.Errorf("%w: cannot complete a %s transfer", ErrInvalidStateTransition, t.Status)
	}
	t.Status = TransferStatusCompleted
	t.CompletedAt = &now
	t.UpdatedAt = now
	return nil
}

// Cancel moves a pending transfer to its cancelled terminal state.
func (t *Transfer) Cancel(now time.Time) error {
	if t.Status != TransferStatusPending {
		return fmt.Errorf("%w: cannot cancel a %s transfer", ErrInvalidStateTransition, t.Status)
	}
	t.Status = TransferStatusCancelled
	t.UpdatedAt = now
	return nil
}
