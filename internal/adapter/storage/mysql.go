package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nvargas87/toolcrib/internal/core/domain"
	"github.com/nvargas87/toolcrib/internal/port"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx so the read queries
// serve the plain store and the transactional view alike.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

var _ port.Store = (*MySQLStore)(nil)

// MySQLStore is the system of record.
type MySQLStore struct {
	db *sql.DB
	queries
}

func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db, queries: queries{db: db}}
}

// Transact runs fn inside one transaction; any error rolls the whole
// unit back.
func (s *MySQLStore) Transact(ctx context.Context, fn func(tx port.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&mysqlTx{queries: queries{db: tx}}); err != nil {
		return err
	}
	return tx.Commit()
}

// queries implements port.Reader over any dbtx.
type queries struct {
	db dbtx
}

func (q queries) GetWarehouse(ctx context.Context, id string) (*domain.Warehouse, error) {
	var w domain.Warehouse
	err := q.db.QueryRowContext(ctx, `SELECT id, name FROM warehouses WHERE id = ?`, id).Scan(&w.ID, &w.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query warehouse: %w", err)
	}
	return &w, nil
}

func (q queries) GetKit(ctx context.Context, id string) (*domain.Kit, error) {
	var k domain.Kit
	err := q.db.QueryRowContext(ctx, `SELECT id, name, aircraft_type FROM kits WHERE id = ?`, id).
		Scan(&k.ID, &k.Name, &k.AircraftType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query kit: %w", err)
	}
	return &k, nil
}

func (q queries) GetKitBox(ctx context.Context, id string) (*domain.KitBox, error) {
	var b domain.KitBox
	err := q.db.QueryRowContext(ctx, `SELECT id, kit_id, name FROM kit_boxes WHERE id = ?`, id).
		Scan(&b.ID, &b.KitID, &b.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query kit box: %w", err)
	}
	return &b, nil
}

func (q queries) GetUserName(ctx context.Context, id string) (string, error) {
	var name string
	err := q.db.QueryRowContext(ctx, `SELECT name FROM users WHERE id = ?`, id).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query user: %w", err)
	}
	return name, nil
}

const toolCols = `id, tool_number, serial_number, lot_number, description, status,
	COALESCE(warehouse_id, ''), location, quantity, created_at, updated_at`

func scanTool(row scanner) (*domain.Tool, error) {
	var t domain.Tool
	err := row.Scan(&t.ID, &t.ToolNumber, &t.SerialNumber, &t.LotNumber, &t.Description, &t.Status,
		&t.WarehouseID, &t.Location, &t.Quantity, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan tool: %w", err)
	}
	return &t, nil
}

func (q queries) FindToolByIdentifiers(ctx context.Context, identifier, tracking string) (*domain.Tool, error) {
	return scanTool(q.db.QueryRowContext(ctx, `
		SELECT `+toolCols+` FROM tools
		WHERE LOWER(tool_number) = LOWER(?)
		  AND ((serial_number <> '' AND LOWER(serial_number) = LOWER(?))
		    OR (lot_number <> '' AND LOWER(lot_number) = LOWER(?)))
		LIMIT 1`,
		identifier, tracking, tracking))
}

const chemicalCols = `id, part_number, lot_number, parent_lot_number, lot_sequence, description,
	manufacturer, unit, category, expiration_date, min_stock, quantity, status,
	COALESCE(warehouse_id, ''), location, created_at, updated_at`

func scanChemical(row scanner) (*domain.Chemical, error) {
	var (
		c       domain.Chemical
		expires sql.NullTime
	)
	err := row.Scan(&c.ID, &c.PartNumber, &c.LotNumber, &c.ParentLotNumber, &c.LotSequence, &c.Description,
		&c.Manufacturer, &c.Unit, &c.Category, &expires, &c.MinStock, &c.Quantity, &c.Status,
		&c.WarehouseID, &c.Location, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan chemical: %w", err)
	}
	if expires.Valid {
		t := expires.Time
		c.ExpirationDate = &t
	}
	return &c, nil
}

func (q queries) FindChemicalByIdentifiers(ctx context.Context, identifier, tracking string) (*domain.Chemical, error) {
	return scanChemical(q.db.QueryRowContext(ctx, `
		SELECT `+chemicalCols+` FROM chemicals
		WHERE LOWER(part_number) = LOWER(?) AND LOWER(lot_number) = LOWER(?)
		LIMIT 1`,
		identifier, tracking))
}

func (q queries) FindChemicalByLot(ctx context.Context, lotNumber string) (*domain.Chemical, error) {
	return scanChemical(q.db.QueryRowContext(ctx, `
		SELECT `+chemicalCols+` FROM chemicals WHERE LOWER(lot_number) = LOWER(?) LIMIT 1`,
		lotNumber))
}

func (q queries) FindChemicalsByParentLot(ctx context.Context, parentLotNumber string) ([]domain.Chemical, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+chemicalCols+` FROM chemicals
		WHERE parent_lot_number <> '' AND LOWER(parent_lot_number) = LOWER(?)
		ORDER BY created_at`,
		parentLotNumber)
	if err != nil {
		return nil, fmt.Errorf("query child lots: %w", err)
	}
	defer rows.Close()

	var out []domain.Chemical
	for rows.Next() {
		c, err := scanChemical(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

const expendableCols = `id, part_number, serial_number, lot_number, description, quantity,
	kit_id, box_id, status, created_at, updated_at`

func scanExpendable(row scanner) (*domain.Expendable, error) {
	var e domain.Expendable
	err := row.Scan(&e.ID, &e.PartNumber, &e.SerialNumber, &e.LotNumber, &e.Description, &e.Quantity,
		&e.KitID, &e.BoxID, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan expendable: %w", err)
	}
	return &e, nil
}

func (q queries) FindKitExpendableByIdentifiers(ctx context.Context, identifier, tracking string) (*domain.Expendable, error) {
	return scanExpendable(q.db.QueryRowContext(ctx, `
		SELECT `+expendableCols+` FROM expendables
		WHERE LOWER(part_number) = LOWER(?)
		  AND ((serial_number <> '' AND LOWER(serial_number) = LOWER(?))
		    OR (lot_number <> '' AND LOWER(lot_number) = LOWER(?)))
		LIMIT 1`,
		identifier, tracking, tracking))
}

func (q queries) FindKitContaining(ctx context.Context, itemType domain.ItemType, itemID string) (*domain.KitItem, error) {
	var it domain.KitItem
	err := q.db.QueryRowContext(ctx, `
		SELECT kit_id, box_id, item_type, item_id, quantity FROM kit_items
		WHERE item_type = ? AND item_id = ? LIMIT 1`,
		itemType, itemID).
		Scan(&it.KitID, &it.BoxID, &it.ItemType, &it.ItemID, &it.Quantity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query kit item: %w", err)
	}
	return &it, nil
}

const transferCols = `id, item_type, item_id, from_location_type, from_location_id,
	to_location_type, to_location_id, quantity, status, actor, COALESCE(notes, ''),
	destination_box_id, created_at, completed_at, updated_at`

func scanTransfer(row scanner) (*domain.Transfer, error) {
	var (
		t         domain.Transfer
		completed sql.NullTime
	)
	err := row.Scan(&t.ID, &t.ItemType, &t.ItemID, &t.From.Type, &t.From.ID,
		&t.To.Type, &t.To.ID, &t.Quantity, &t.Status, &t.Actor, &t.Notes,
		&t.DestinationBoxID, &t.CreatedAt, &completed, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan transfer: %w", err)
	}
	if completed.Valid {
		ts := completed.Time
		t.CompletedAt = &ts
	}
	return &t, nil
}

func (q queries) GetTransfer(ctx context.Context, id string) (*domain.Transfer, error) {
	return scanTransfer(q.db.QueryRowContext(ctx, `SELECT `+transferCols+` FROM transfers WHERE id = ?`, id))
}

func (q queries) ListTransfers(ctx context.Context, itemType domain.ItemType, itemID string) ([]domain.Transfer, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+transferCols+` FROM transfers
		WHERE item_type = ? AND item_id = ? ORDER BY created_at DESC`,
		itemType, itemID)
	if err != nil {
		return nil, fmt.Errorf("query transfers: %w", err)
	}
	defer rows.Close()

	var out []domain.Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (q queries) ListLedgerEntries(ctx context.Context, itemType domain.ItemType, itemID string) ([]domain.LedgerEntry, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, item_type, item_id, kind, quantity, user_id, COALESCE(notes, ''), created_at
		FROM ledger_entries WHERE item_type = ? AND item_id = ? ORDER BY created_at DESC`,
		itemType, itemID)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var out []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ID, &e.ItemType, &e.ItemID, &e.Kind, &e.Quantity, &e.UserID, &e.Notes, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (q queries) ListWarehouseTransfers(ctx context.Context, itemType domain.ItemType, itemID string) ([]domain.WarehouseTransferRecord, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, item_type, item_id, COALESCE(from_warehouse_id, ''), COALESCE(to_warehouse_id, ''),
			COALESCE(from_kit_id, ''), COALESCE(to_kit_id, ''), quantity, user_id, created_at
		FROM warehouse_transfers WHERE item_type = ? AND item_id = ?`,
		itemType, itemID)
	if err != nil {
		return nil, fmt.Errorf("query warehouse transfers: %w", err)
	}
	defer rows.Close()

	var out []domain.WarehouseTransferRecord
	for rows.Next() {
		var (
			rec domain.WarehouseTransferRecord
			ts  sql.NullTime
		)
		if err := rows.Scan(&rec.ID, &rec.ItemType, &rec.ItemID, &rec.FromWarehouseID, &rec.ToWarehouseID,
			&rec.FromKitID, &rec.ToKitID, &rec.Quantity, &rec.UserID, &ts); err != nil {
			return nil, fmt.Errorf("scan warehouse transfer: %w", err)
		}
		if ts.Valid {
			rec.CreatedAt = ts.Time
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (q queries) ListToolCheckouts(ctx context.Context, toolID string) ([]domain.ToolCheckout, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, tool_id, user_id, purpose, checked_out_at, returned_at
		FROM tool_checkouts WHERE tool_id = ? ORDER BY checked_out_at DESC`,
		toolID)
	if err != nil {
		return nil, fmt.Errorf("query checkouts: %w", err)
	}
	defer rows.Close()

	var out []domain.ToolCheckout
	for rows.Next() {
		var (
			co       domain.ToolCheckout
			returned sql.NullTime
		)
		if err := rows.Scan(&co.ID, &co.ToolID, &co.UserID, &co.Purpose, &co.CheckedOutAt, &returned); err != nil {
			return nil, fmt.Errorf("scan checkout: %w", err)
		}
		if returned.Valid {
			ts := returned.Time
			co.ReturnedAt = &ts
		}
		out = append(out, co)
	}
	return out, rows.Err()
}

func (q queries) ListChemicalIssuances(ctx context.Context, chemicalID string) ([]domain.ChemicalIssuance, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, chemical_id, quantity, user_id, issued_at, returned_at
		FROM chemical_issuances WHERE chemical_id = ? ORDER BY issued_at DESC`,
		chemicalID)
	if err != nil {
		return nil, fmt.Errorf("query chemical issuances: %w", err)
	}
	defer rows.Close()

	var out []domain.ChemicalIssuance
	for rows.Next() {
		var (
			is       domain.ChemicalIssuance
			returned sql.NullTime
		)
		if err := rows.Scan(&is.ID, &is.ChemicalID, &is.Quantity, &is.UserID, &is.IssuedAt, &returned); err != nil {
			return nil, fmt.Errorf("scan chemical issuance: %w", err)
		}
		if returned.Valid {
			ts := returned.Time
			is.ReturnedAt = &ts
		}
		out = append(out, is)
	}
	return out, rows.Err()
}

func (q queries) ListKitIssuances(ctx context.Context, partNumber, trackingNumber string) ([]domain.KitIssuance, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, kit_id, part_number, tracking_number, quantity, user_id, issued_at
		FROM kit_issuances
		WHERE LOWER(part_number) = LOWER(?) AND LOWER(tracking_number) = LOWER(?)
		ORDER BY issued_at DESC`,
		partNumber, trackingNumber)
	if err != nil {
		return nil, fmt.Errorf("query kit issuances: %w", err)
	}
	defer rows.Close()

	var out []domain.KitIssuance
	for rows.Next() {
		var is domain.KitIssuance
		if err := rows.Scan(&is.ID, &is.KitID, &is.PartNumber, &is.TrackingNumber, &is.Quantity, &is.UserID, &is.IssuedAt); err != nil {
			return nil, fmt.Errorf("scan kit issuance: %w", err)
		}
		out = append(out, is)
	}
	return out, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SearchAuditEntries is a substring correlation, not a join: any entry
// whose action is allow-listed and whose details mention one of the
// terms counts.
func (q queries) SearchAuditEntries(ctx context.Context, actions []string, terms []string) ([]domain.AuditEntry, error) {
	if len(actions) == 0 || len(terms) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	args := make([]any, 0, len(actions)+len(terms))
	sb.WriteString(`SELECT id, action, details, user_id, created_at FROM audit_log WHERE action IN (`)
	for i, a := range actions {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("?")
		args = append(args, a)
	}
	sb.WriteString(") AND (")
	for i, term := range terms {
		if i > 0 {
			sb.WriteString(" OR ")
		}
		sb.WriteString("LOWER(details) LIKE ?")
		args = append(args, "%"+strings.ToLower(likeEscaper.Replace(term))+"%")
	}
	sb.WriteString(") ORDER BY created_at DESC")

	rows, err := q.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var out []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.ID, &e.Action, &e.Details, &e.UserID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
