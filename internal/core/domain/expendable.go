package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Expendable is a kit-only consumable. Serial-tracked expendables are
// atomic units of one; lot-tracked expendables are divisible and merge
// with a matching lot at the destination.
type Expendable struct {
	ID           string
	PartNumber   string
	SerialNumber string
	LotNumber    string
	Description  string
	Quantity     decimal.Decimal
	KitID        string
	BoxID        string
	Status       ItemStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (e *Expendable) Type() ItemType { return ItemTypeExpendable }

func (e *Expendable) Identifier() string { return e.PartNumber }

func (e *Expendable) TrackingNumber() string {
	if e.SerialNumber != "" {
		return e.SerialNumber
	}
	return e.LotNumber
}

func (e *Expendable) Qty() decimal.Decimal { return e.Quantity }

func (e *Expendable) SerialTracked() bool { return e.SerialNumber != "" }
