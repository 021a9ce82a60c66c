package domain

import "github.com/shopspring/decimal"

type ItemType string

const (
	ItemTypeTool       ItemType = "tool"
	ItemTypeChemical   ItemType = "chemical"
	ItemTypeExpendable ItemType = "expendable"
)

func (t ItemType) Valid() bool {
	switch t {
	case ItemTypeTool, ItemTypeChemical, ItemTypeExpendable:
		return true
	}
	return false
}

type LocationType string

const (
	LocationTypeWarehouse LocationType = "warehouse"
	LocationTypeKit       LocationType = "kit"
)

func (t LocationType) Valid() bool {
	return t == LocationTypeWarehouse || t == LocationTypeKit
}

// LocationRef identifies one side of a transfer.
type LocationRef struct {
	Type LocationType
	ID   string
}

type ItemStatus string

const (
	ItemStatusAvailable ItemStatus = "available"
	ItemStatusDepleted  ItemStatus = "depleted"
)

// Trackable is the capability shared by every inventory item kind:
// a part-level identifier plus a serial or lot tracking number, and a
// current quantity.
type Trackable interface {
	Type() ItemType
	Identifier() string
	TrackingNumber() string
	Qty() decimal.Decimal
}
