package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// HistoryEvent is one entry of a reconstructed timeline. Events are
// synthesized per lookup from whatever source records mention the item;
// they are never persisted.
type HistoryEvent struct {
	Type        string
	Timestamp   time.Time
	Description string
	User        string
	Details     map[string]string
}

// Event types emitted by the resolver. The four transfer subtypes are
// inferred from which locations a record names; "transfer" is the
// fallback when the direction cannot be determined.
const (
	EventCreated              = "created"
	EventTransfer             = "transfer"
	EventWarehouseToWarehouse = "warehouse_to_warehouse_transfer"
	EventWarehouseToKit       = "warehouse_to_kit_transfer"
	EventKitToWarehouse       = "kit_to_warehouse_transfer"
	EventKitToKit             = "kit_to_kit_transfer"
	EventToolCheckout         = "tool_checkout"
	EventToolReturn           = "tool_return"
	EventChemicalIssuance     = "chemical_issuance"
	EventChemicalReturn       = "chemical_return"
	EventKitIssuance          = "kit_issuance"
	EventAudit                = "audit"
)

// ItemDetails is the uniform summary the resolver reports for whichever
// item kind matched the lookup.
type ItemDetails struct {
	ID             string
	Identifier     string
	TrackingNumber string
	Description    string
	Status         ItemStatus
	Quantity       decimal.Decimal
}

// LocationInfo is the resolved current location of an item. Type is
// "warehouse", "kit" or "unknown"; for the unknown case Name carries
// the item's free-text location label.
type LocationInfo struct {
	Type    string
	ID      string
	Name    string
	BoxID   string
	BoxName string
}

// LotSummary is a one-hop lineage neighbour of a chemical.
type LotSummary struct {
	LotNumber string
	Status    ItemStatus
	Quantity  decimal.Decimal
}

// ItemHistory is the full lookup response. When ItemFound is false only
// Message is populated; a miss is a normal result, not an error.
type ItemHistory struct {
	ItemFound       bool
	Message         string
	ItemType        ItemType
	Item            ItemDetails
	CurrentLocation LocationInfo
	ParentLot       *LotSummary
	ChildLots       []LotSummary
	History         []HistoryEvent
}
