package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tool is a serial- or lot-tracked instrument. Tools are indivisible:
// quantity is always one and a transfer moves the whole unit.
type Tool struct {
	ID           string
	ToolNumber   string
	SerialNumber string
	LotNumber    string
	Description  string
	Status       ItemStatus
	WarehouseID  string // empty while the tool sits in a kit
	Location     string // free-text fallback label from legacy data
	Quantity     decimal.Decimal
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (t *Tool) Type() ItemType { return ItemTypeTool }

func (t *Tool) Identifier() string { return t.ToolNumber }

func (t *Tool) TrackingNumber() string {
	if t.SerialNumber != "" {
		return t.SerialNumber
	}
	return t.LotNumber
}

func (t *Tool) Qty() decimal.Decimal { return t.Quantity }
