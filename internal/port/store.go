package port

import (
	"context"

	"github.com/nvargas87/toolcrib/internal/core/domain"
)

// Reader is the query surface shared by the history resolver and by
// in-transaction validation. Single-row lookups return (nil, nil) when
// no row matches.
type Reader interface {
	GetWarehouse(ctx context.Context, id string) (*domain.Warehouse, error)
	GetKit(ctx context.Context, id string) (*domain.Kit, error)
	GetKitBox(ctx context.Context, id string) (*domain.KitBox, error)
	GetUserName(ctx context.Context, id string) (string, error)
	GetTransfer(ctx context.Context, id string) (*domain.Transfer, error)

	// Polymorphic item lookup, case-insensitive on both inputs. The
	// tracking number matches either a serial number or a lot number.
	FindToolByIdentifiers(ctx context.Context, identifier, tracking string) (*domain.Tool, error)
	FindChemicalByIdentifiers(ctx context.Context, identifier, tracking string) (*domain.Chemical, error)
	FindKitExpendableByIdentifiers(ctx context.Context, identifier, tracking string) (*domain.Expendable, error)

	FindKitContaining(ctx context.Context, itemType domain.ItemType, itemID string) (*domain.KitItem, error)
	FindChemicalByLot(ctx context.Context, lotNumber string) (*domain.Chemical, error)
	FindChemicalsByParentLot(ctx context.Context, parentLotNumber string) ([]domain.Chemical, error)

	// Timeline sources.
	ListLedgerEntries(ctx context.Context, itemType domain.ItemType, itemID string) ([]domain.LedgerEntry, error)
	ListWarehouseTransfers(ctx context.Context, itemType domain.ItemType, itemID string) ([]domain.WarehouseTransferRecord, error)
	ListTransfers(ctx context.Context, itemType domain.ItemType, itemID string) ([]domain.Transfer, error)
	ListToolCheckouts(ctx context.Context, toolID string) ([]domain.ToolCheckout, error)
	ListChemicalIssuances(ctx context.Context, chemicalID string) ([]domain.ChemicalIssuance, error)
	ListKitIssuances(ctx context.Context, partNumber, trackingNumber string) ([]domain.KitIssuance, error)
	SearchAuditEntries(ctx context.Context, actions []string, terms []string) ([]domain.AuditEntry, error)
}

// Tx is the mutating surface available inside one storage transaction.
// ForUpdate reads take row locks; the lock is the only concurrency
// control the engine relies on.
type Tx interface {
	Reader

	GetToolForUpdate(ctx context.Context, id string) (*domain.Tool, error)
	GetChemicalForUpdate(ctx context.Context, id string) (*domain.Chemical, error)
	GetExpendableForUpdate(ctx context.Context, id string) (*domain.Expendable, error)
	GetTransferForUpdate(ctx context.Context, id string) (*domain.Transfer, error)
	FindKitItemForUpdate(ctx context.Context, kitID string, itemType domain.ItemType, itemID string) (*domain.KitItem, error)
	FindExpendableByLotInKit(ctx context.Context, kitID, partNumber, lotNumber string) (*domain.Expendable, error)

	ChemicalLotExists(ctx context.Context, lotNumber string) (bool, error)

	UpdateTool(ctx context.Context, tool domain.Tool) error
	InsertChemical(ctx context.Context, chemical domain.Chemical) error
	UpdateChemical(ctx context.Context, chemical domain.Chemical) error
	InsertExpendable(ctx context.Context, expendable domain.Expendable) error
	UpdateExpendable(ctx context.Context, expendable domain.Expendable) error
	DeleteExpendable(ctx context.Context, id string) error

	InsertKitItem(ctx context.Context, item domain.KitItem) error
	UpdateKitItem(ctx context.Context, item domain.KitItem) error
	DeleteKitItem(ctx context.Context, kitID string, itemType domain.ItemType, itemID string) error

	InsertTransfer(ctx context.Context, transfer domain.Transfer) error
	UpdateTransfer(ctx context.Context, transfer domain.Transfer) error
	InsertLotLineage(ctx context.Context, lineage domain.LotLineage) error
	InsertLedgerEntry(ctx context.Context, entry domain.LedgerEntry) error
	InsertAuditEntry(ctx context.Context, entry domain.AuditEntry) error
}

// Store is the system of record. Transact runs fn inside one
// transaction: any error rolls the whole unit back, nil commits.
type Store interface {
	Reader

	Transact(ctx context.Context, fn func(tx Tx) error) error
}
