package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Collaborator records. These tables are owned elsewhere; the transfer
// engine reads them for validation and the history resolver projects
// them into timeline events. The audit log and the ledger are the two
// the transfer engine also appends to.

type Warehouse struct {
	ID   string
	Name string
}

// Kit is a mobile container of boxes, provisioned for one aircraft type.
type Kit struct {
	ID           string
	Name         string
	AircraftType string
}

type KitBox struct {
	ID    string
	KitID string
	Name  string
}

// KitItem places a tool or chemical inside a kit box. Expendables are
// not listed here; they carry their kit placement directly.
type KitItem struct {
	KitID    string
	BoxID    string
	ItemType ItemType
	ItemID   string
	Quantity decimal.Decimal
}

// LedgerEntry is a generic inventory transaction line. Kind drives the
// description template the resolver renders.
type LedgerEntry struct {
	ID        string
	ItemType  ItemType
	ItemID    string
	Kind      string
	Quantity  decimal.Decimal
	UserID    string
	Notes     string
	CreatedAt time.Time
}

// Ledger transaction kinds.
const (
	LedgerKindReceipt     = "receipt"
	LedgerKindIssuance    = "issuance"
	LedgerKindTransfer    = "transfer"
	LedgerKindAdjustment  = "adjustment"
	LedgerKindCheckout    = "checkout"
	LedgerKindReturn      = "return"
	LedgerKindKitIssuance = "kit_issuance"
)

// WarehouseTransferRecord is the legacy transfer shape: direction is
// implied by which of the four location columns are populated. A zero
// CreatedAt means the legacy row carried no timestamp.
type WarehouseTransferRecord struct {
	ID              string
	ItemType        ItemType
	ItemID          string
	FromWarehouseID string
	ToWarehouseID   string
	FromKitID       string
	ToKitID         string
	Quantity        decimal.Decimal
	UserID          string
	CreatedAt       time.Time
}

// ToolCheckout yields up to two timeline events: the checkout itself
// and, once ReturnedAt is set, the return.
type ToolCheckout struct {
	ID           string
	ToolID       string
	UserID       string
	Purpose      string
	CheckedOutAt time.Time
	ReturnedAt   *time.Time
}

type ChemicalIssuance struct {
	ID         string
	ChemicalID string
	Quantity   decimal.Decimal
	UserID     string
	IssuedAt   time.Time
	ReturnedAt *time.Time
}

// KitIssuance is matched to items by (part number, tracking number)
// rather than a foreign key; not every item kind carries a direct link.
type KitIssuance struct {
	ID             string
	KitID          string
	PartNumber     string
	TrackingNumber string
	Quantity       decimal.Decimal
	UserID         string
	IssuedAt       time.Time
}

// AuditEntry is a free-text action log line ("who did what"), matched
// to items by substring only.
type AuditEntry struct {
	ID        string
	Action    string
	Details   string
	UserID    string
	CreatedAt time.Time
}
