package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Chemical is a divisible bulk item tracked by part number and lot
// number. A partial draw from a warehouse into a kit creates a child
// lot; ParentLotNumber records one hop of that lineage and LotSequence
// is the counter the next child label is derived from.
type Chemical struct {
	ID              string
	PartNumber      string
	LotNumber       string
	ParentLotNumber string
	LotSequence     int
	Description     string
	Manufacturer    string
	Unit            string
	Category        string
	ExpirationDate  *time.Time
	MinStock        decimal.Decimal
	Quantity        decimal.Decimal
	Status          ItemStatus
	WarehouseID     string // empty while the chemical sits in a kit
	Location        string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (c *Chemical) Type() ItemType { return ItemTypeChemical }

func (c *Chemical) Identifier() string { return c.PartNumber }

func (c *Chemical) TrackingNumber() string { return c.LotNumber }

func (c *Chemical) Qty() decimal.Decimal { return c.Quantity }

// LotLineage records one parent to child split. Sequence is the value
// of the parent's counter the child label was derived from.
type LotLineage struct {
	ID              string
	ParentLotNumber string
	Sequence        int
	ChildLotNumber  string
	Quantity        decimal.Decimal
	CreatedAt       time.Time
}
