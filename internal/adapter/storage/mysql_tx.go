package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nvargas87/toolcrib/internal/core/domain"
	"github.com/nvargas87/toolcrib/internal/port"
)

var _ port.Tx = (*mysqlTx)(nil)

// mysqlTx is the transactional view. It reuses the shared read queries
// over the open *sql.Tx and adds row-locking reads and the mutators.
type mysqlTx struct {
	queries
}

func (t *mysqlTx) GetToolForUpdate(ctx context.Context, id string) (*domain.Tool, error) {
	return scanTool(t.db.QueryRowContext(ctx,
		`SELECT `+toolCols+` FROM tools WHERE id = ? FOR UPDATE`, id))
}

func (t *mysqlTx) GetChemicalForUpdate(ctx context.Context, id string) (*domain.Chemical, error) {
	return scanChemical(t.db.QueryRowContext(ctx,
		`SELECT `+chemicalCols+` FROM chemicals WHERE id = ? FOR UPDATE`, id))
}

func (t *mysqlTx) GetExpendableForUpdate(ctx context.Context, id string) (*domain.Expendable, error) {
	return scanExpendable(t.db.QueryRowContext(ctx,
		`SELECT `+expendableCols+` FROM expendables WHERE id = ? FOR UPDATE`, id))
}

func (t *mysqlTx) GetTransferForUpdate(ctx context.Context, id string) (*domain.Transfer, error) {
	return scanTransfer(t.db.QueryRowContext(ctx,
		`SELECT `+transferCols+` FROM transfers WHERE id = ? FOR UPDATE`, id))
}

func (t *mysqlTx) FindKitItemForUpdate(ctx context.Context, kitID string, itemType domain.ItemType, itemID string) (*domain.KitItem, error) {
	var it domain.KitItem
	err := t.db.QueryRowContext(ctx, `
		SELECT kit_id, box_id, item_type, item_id, quantity FROM kit_items
		WHERE kit_id = ? AND item_type = ? AND item_id = ? FOR UPDATE`,
		kitID, itemType, itemID).
		Scan(&it.KitID, &it.BoxID, &it.ItemType, &it.ItemID, &it.Quantity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query kit item: %w", err)
	}
	return &it, nil
}

func (t *mysqlTx) FindExpendableByLotInKit(ctx context.Context, kitID, partNumber, lotNumber string) (*domain.Expendable, error) {
	return scanExpendable(t.db.QueryRowContext(ctx, `
		SELECT `+expendableCols+` FROM expendables
		WHERE kit_id = ? AND serial_number = ''
		  AND LOWER(part_number) = LOWER(?) AND LOWER(lot_number) = LOWER(?)
		LIMIT 1 FOR UPDATE`,
		kitID, partNumber, lotNumber))
}

func (t *mysqlTx) ChemicalLotExists(ctx context.Context, lotNumber string) (bool, error) {
	var one int
	err := t.db.QueryRowContext(ctx,
		`SELECT 1 FROM chemicals WHERE LOWER(lot_number) = LOWER(?) LIMIT 1`, lotNumber).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query lot: %w", err)
	}
	return true, nil
}

func (t *mysqlTx) UpdateTool(ctx context.Context, tool domain.Tool) error {
	_, err := t.db.ExecContext(ctx, `
		UPDATE tools SET status = ?, warehouse_id = ?, location = ?, quantity = ?, updated_at = ?
		WHERE id = ?`,
		tool.Status, nullable(tool.WarehouseID), tool.Location, tool.Quantity, tool.UpdatedAt, tool.ID)
	if err != nil {
		return fmt.Errorf("update tool: %w", err)
	}
	return nil
}

func (t *mysqlTx) InsertChemical(ctx context.Context, c domain.Chemical) error {
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO chemicals (id, part_number, lot_number, parent_lot_number, lot_sequence,
			description, manufacturer, unit, category, expiration_date, min_stock, quantity,
			status, warehouse_id, location, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.PartNumber, c.LotNumber, c.ParentLotNumber, c.LotSequence,
		c.Description, c.Manufacturer, c.Unit, c.Category, nullableTime(c.ExpirationDate), c.MinStock, c.Quantity,
		c.Status, nullable(c.WarehouseID), c.Location, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert chemical: %w", err)
	}
	return nil
}

func (t *mysqlTx) UpdateChemical(ctx context.Context, c domain.Chemical) error {
	_, err := t.db.ExecContext(ctx, `
		UPDATE chemicals SET lot_sequence = ?, quantity = ?, status = ?, warehouse_id = ?,
			location = ?, updated_at = ?
		WHERE id = ?`,
		c.LotSequence, c.Quantity, c.Status, nullable(c.WarehouseID), c.Location, c.UpdatedAt, c.ID)
	if err != nil {
		return fmt.Errorf("update chemical: %w", err)
	}
	return nil
}

func (t *mysqlTx) InsertExpendable(ctx context.Context, e domain.Expendable) error {
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO expendables (id, part_number, serial_number, lot_number, description,
			quantity, kit_id, box_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.PartNumber, e.SerialNumber, e.LotNumber, e.Description,
		e.Quantity, e.KitID, e.BoxID, e.Status, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert expendable: %w", err)
	}
	return nil
}

func (t *mysqlTx) UpdateExpendable(ctx context.Context, e domain.Expendable) error {
	_, err := t.db.ExecContext(ctx, `
		UPDATE expendables SET quantity = ?, kit_id = ?, box_id = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		e.Quantity, e.KitID, e.BoxID, e.Status, e.UpdatedAt, e.ID)
	if err != nil {
		return fmt.Errorf("update expendable: %w", err)
	}
	return nil
}

func (t *mysqlTx) DeleteExpendable(ctx context.Context, id string) error {
	_, err := t.db.ExecContext(ctx, `DELETE FROM expendables WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete expendable: %w", err)
	}
	return nil
}

func (t *mysqlTx) InsertKitItem(ctx context.Context, it domain.KitItem) error {
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO kit_items (kit_id, box_id, item_type, item_id, quantity)
		VALUES (?, ?, ?, ?, ?)`,
		it.KitID, it.BoxID, it.ItemType, it.ItemID, it.Quantity)
	if err != nil {
		return fmt.Errorf("insert kit item: %w", err)
	}
	return nil
}

func (t *mysqlTx) UpdateKitItem(ctx context.Context, it domain.KitItem) error {
	_, err := t.db.ExecContext(ctx, `
		UPDATE kit_items SET box_id = ?, quantity = ?
		WHERE kit_id = ? AND item_type = ? AND item_id = ?`,
		it.BoxID, it.Quantity, it.KitID, it.ItemType, it.ItemID)
	if err != nil {
		return fmt.Errorf("update kit item: %w", err)
	}
	return nil
}

func (t *mysqlTx) DeleteKitItem(ctx context.Context, kitID string, itemType domain.ItemType, itemID string) error {
	_, err := t.db.ExecContext(ctx, `
		DELETE FROM kit_items WHERE kit_id = ? AND item_type = ? AND item_id = ?`,
		kitID, itemType, itemID)
	if err != nil {
		return fmt.Errorf("delete kit item: %w", err)
	}
	return nil
}

func (t *mysqlTx) InsertTransfer(ctx context.Context, tr domain.Transfer) error {
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO transfers (id, item_type, item_id, from_location_type, from_location_id,
			to_location_type, to_location_id, quantity, status, actor, notes,
			destination_box_id, created_at, completed_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tr.ID, tr.ItemType, tr.ItemID, tr.From.Type, tr.From.ID,
		tr.To.Type, tr.To.ID, tr.Quantity, tr.Status, tr.Actor, tr.Notes,
		tr.DestinationBoxID, tr.CreatedAt, nullableTime(tr.CompletedAt), tr.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}
	return nil
}

func (t *mysqlTx) UpdateTransfer(ctx context.Context, tr domain.Transfer) error {
	_, err := t.db.ExecContext(ctx, `
		UPDATE transfers SET status = ?, completed_at = ?, updated_at = ? WHERE id = ?`,
		tr.Status, nullableTime(tr.CompletedAt), tr.UpdatedAt, tr.ID)
	if err != nil {
		return fmt.Errorf("update transfer: %w", err)
	}
	return nil
}

func (t *mysqlTx) InsertLotLineage(ctx context.Context, l domain.LotLineage) error {
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO lot_lineage (id, parent_lot_number, lot_sequence, child_lot_number, quantity, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		l.ID, l.ParentLotNumber, l.Sequence, l.ChildLotNumber, l.Quantity, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert lot lineage: %w", err)
	}
	return nil
}

func (t *mysqlTx) InsertLedgerEntry(ctx context.Context, e domain.LedgerEntry) error {
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, item_type, item_id, kind, quantity, user_id, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ItemType, e.ItemID, e.Kind, e.Quantity, e.UserID, e.Notes, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

func (t *mysqlTx) InsertAuditEntry(ctx context.Context, e domain.AuditEntry) error {
	_, err := t.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, action, details, user_id, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.Action, e.Details, e.UserID, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}
