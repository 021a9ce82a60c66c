package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nvargas87/toolcrib/internal/core/domain"
	"github.com/nvargas87/toolcrib/internal/port"
)

// TransferRequest is one movement of one item between two locations.
// Actor is the caller identity supplied by the external auth layer.
// RequestID, when set, suppresses duplicate submissions.
type TransferRequest struct {
	RequestID        string
	ItemType         domain.ItemType
	ItemID           string
	From             domain.LocationRef
	To               domain.LocationRef
	Quantity         decimal.Decimal
	DestinationBoxID string
	Actor            string
	Notes            string
}

// TransferResult reports the completed transfer plus, when a partial
// chemical draw split the source lot, the child chemical that now sits
// at the destination.
type TransferResult struct {
	Transfer domain.Transfer
	LotSplit bool
	Child    *domain.Chemical
}

// TransferCoordinator validates and atomically executes transfers. It
// exclusively owns quantity and location mutation: everything a
// transfer touches (source, destination, lineage, ledger, audit log)
// commits in one storage transaction or not at all.
type TransferCoordinator struct {
	store   port.Store
	cache   port.CacheRepository
	lineage *LotLineageService
	log     *zap.Logger
}

func NewTransferCoordinator(store port.Store, cache port.CacheRepository, lineage *LotLineageService, log *zap.Logger) *TransferCoordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &TransferCoordinator{store: store, cache: cache, lineage: lineage, log: log}
}

// Execute runs the full transfer state machine: the transfer is created
// pending and completed in the same atomic call. Validation order is
// fixed so error messages stay deterministic: locations exist, quantity
// positive, item exists, source holds enough at the claimed location,
// destination box belongs to the destination kit.
func (c *TransferCoordinator) Execute(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if !req.ItemType.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidItemType, req.ItemType)
	}
	if !req.From.Type.Valid() || !req.To.Type.Valid() {
		return nil, fmt.Errorf("%w: location type must be warehouse or kit", domain.ErrLocationMismatch)
	}

	if c.cache != nil && req.RequestID != "" {
		ok, err := c.cache.SetIdempotency(ctx, "transfer:"+req.RequestID)
		if err != nil {
			return nil, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: transfer request %s", domain.ErrDuplicateRequest, req.RequestID)
		}
	}

	var result *TransferResult
	err := c.store.Transact(ctx, func(tx port.Tx) error {
		res, err := c.execute(ctx, tx, req)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.log.Info("transfer completed",
		zap.String("transfer_id", result.Transfer.ID),
		zap.String("item_type", string(req.ItemType)),
		zap.String("item_id", req.ItemID),
		zap.String("from", fmt.Sprintf("%s:%s", req.From.Type, req.From.ID)),
		zap.String("to", fmt.Sprintf("%s:%s", req.To.Type, req.To.ID)),
		zap.Bool("lot_split", result.LotSplit))

	return result, nil
}

func (c *TransferCoordinator) execute(ctx context.Context, tx port.Tx, req TransferRequest) (*TransferResult, error) {
	// 1. Both locations must exist.
	if err := c.checkLocation(ctx, tx, req.From, "source"); err != nil {
		return nil, err
	}
	if err := c.checkLocation(ctx, tx, req.To, "destination"); err != nil {
		return nil, err
	}

	// 2. Quantity must be positive.
	if !req.Quantity.IsPositive() {
		return nil, fmt.Errorf("%w: got %s", domain.ErrInvalidQuantity, req.Quantity)
	}

	// 3 and 4. The item must exist, satisfy its kind's quantity rule
	// and hold the requested quantity at the claimed source location.
	var (
		tool *domain.Tool
		chem *domain.Chemical
		exp  *domain.Expendable
		err  error
	)
	switch req.ItemType {
	case domain.ItemTypeTool:
		tool, err = c.loadTool(ctx, tx, req)
	case domain.ItemTypeChemical:
		chem, err = c.loadChemical(ctx, tx, req)
	case domain.ItemTypeExpendable:
		exp, err = c.loadExpendable(ctx, tx, req)
	}
	if err != nil {
		return nil, err
	}

	// 5. A destination box must belong to the destination kit.
	if req.DestinationBoxID != "" {
		if req.To.Type != domain.LocationTypeKit {
			return nil, fmt.Errorf("%w: destination box given for a warehouse destination", domain.ErrLocationMismatch)
		}
		box, err := tx.GetKitBox(ctx, req.DestinationBoxID)
		if err != nil {
			return nil, fmt.Errorf("load destination box: %w", err)
		}
		if box == nil {
			return nil, fmt.Errorf("%w: box %s", domain.ErrNotFound, req.DestinationBoxID)
		}
		if box.KitID != req.To.ID {
			return nil, fmt.Errorf("%w: box %s does not belong to kit %s", domain.ErrLocationMismatch, req.DestinationBoxID, req.To.ID)
		}
	}

	now := time.Now()
	transfer := domain.Transfer{
		ID:               uuid.NewString(),
		ItemType:         req.ItemType,
		ItemID:           req.ItemID,
		From:             req.From,
		To:               req.To,
		Quantity:         req.Quantity,
		Status:           domain.TransferStatusPending,
		Actor:            req.Actor,
		Notes:            req.Notes,
		DestinationBoxID: req.DestinationBoxID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := tx.InsertTransfer(ctx, transfer); err != nil {
		return nil, fmt.Errorf("insert transfer: %w", err)
	}

	result := &TransferResult{}
	var item domain.Trackable

	switch req.ItemType {
	case domain.ItemTypeTool:
		item = tool
		err = c.applyToolMove(ctx, tx, req, tool, now)
	case domain.ItemTypeChemical:
		item = chem
		var child *domain.Chemical
		child, err = c.applyChemicalMove(ctx, tx, req, chem, now)
		if child != nil {
			result.LotSplit = true
			result.Child = child
		}
	case domain.ItemTypeExpendable:
		item = exp
		err = c.applyExpendableMove(ctx, tx, req, exp, now)
	}
	if err != nil {
		return nil, err
	}

	if err := transfer.Complete(now); err != nil {
		return nil, err
	}
	if err := tx.UpdateTransfer(ctx, transfer); err != nil {
		return nil, fmt.Errorf("complete transfer: %w", err)
	}

	// Warehouse relocations additionally land in the generic ledger as
	// a zero-quantity line so the paper trail survives even where the
	// transfer tables are not consulted.
	if req.From.Type == domain.LocationTypeWarehouse && req.To.Type == domain.LocationTypeWarehouse {
		if err := tx.InsertLedgerEntry(ctx, domain.LedgerEntry{
			ID:        uuid.NewString(),
			ItemType:  req.ItemType,
			ItemID:    req.ItemID,
			Kind:      domain.LedgerKindTransfer,
			Quantity:  decimal.Zero,
			UserID:    req.Actor,
			Notes:     fmt.Sprintf("relocated from warehouse %s to warehouse %s", req.From.ID, req.To.ID),
			CreatedAt: now,
		}); err != nil {
			return nil, fmt.Errorf("insert relocation ledger entry: %w", err)
		}
	}

	details := fmt.Sprintf("transferred %s %s (%s / %s) qty %s from %s %s to %s %s",
		req.ItemType, req.ItemID, item.Identifier(), item.TrackingNumber(), req.Quantity,
		req.From.Type, req.From.ID, req.To.Type, req.To.ID)
	if result.LotSplit {
		details += fmt.Sprintf("; split child lot %s", result.Child.LotNumber)
	}
	if err := tx.InsertAuditEntry(ctx, domain.AuditEntry{
		ID:        uuid.NewString(),
		Action:    "transfer",
		Details:   details,
		UserID:    req.Actor,
		CreatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("insert audit entry: %w", err)
	}

	result.Transfer = transfer
	return result, nil
}

func (c *TransferCoordinator) checkLocation(ctx context.Context, tx port.Tx, loc domain.LocationRef, side string) error {
	switch loc.Type {
	case domain.LocationTypeWarehouse:
		wh, err := tx.GetWarehouse(ctx, loc.ID)
		if err != nil {
			return fmt.Errorf("load %s warehouse: %w", side, err)
		}
		if wh == nil {
			return fmt.Errorf("%w: %s warehouse %s", domain.ErrNotFound, side, loc.ID)
		}
	case domain.LocationTypeKit:
		kit, err := tx.GetKit(ctx, loc.ID)
		if err != nil {
			return fmt.Errorf("load %s kit: %w", side, err)
		}
		if kit == nil {
			return fmt.Errorf("%w: %s kit %s", domain.ErrNotFound, side, loc.ID)
		}
	}
	return nil
}

func (c *TransferCoordinator) loadTool(ctx context.Context, tx port.Tx, req TransferRequest) (*domain.Tool, error) {
	tool, err := tx.GetToolForUpdate(ctx, req.ItemID)
	if err != nil {
		return nil, fmt.Errorf("load tool: %w", err)
	}
	if tool == nil {
		return nil, fmt.Errorf("%w: tool %s", domain.ErrNotFound, req.ItemID)
	}
	if !req.Quantity.Equal(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("%w: tool transfers require quantity 1, got %s", domain.ErrInvalidQuantityForType, req.Quantity)
	}
	if err := c.checkSourcePlacement(ctx, tx, req, tool.WarehouseID, tool.Quantity); err != nil {
		return nil, err
	}
	return tool, nil
}

func (c *TransferCoordinator) loadChemical(ctx context.Context, tx port.Tx, req TransferRequest) (*domain.Chemical, error) {
	chem, err := tx.GetChemicalForUpdate(ctx, req.ItemID)
	if err != nil {
		return nil, fmt.Errorf("load chemical: %w", err)
	}
	if chem == nil {
		return nil, fmt.Errorf("%w: chemical %s", domain.ErrNotFound, req.ItemID)
	}
	if err := c.checkSourcePlacement(ctx, tx, req, chem.WarehouseID, chem.Quantity); err != nil {
		return nil, err
	}
	return chem, nil
}

func (c *TransferCoordinator) loadExpendable(ctx context.Context, tx port.Tx, req TransferRequest) (*domain.Expendable, error) {
	exp, err := tx.GetExpendableForUpdate(ctx, req.ItemID)
	if err != nil {
		return nil, fmt.Errorf("load expendable: %w", err)
	}
	if exp == nil {
		return nil, fmt.Errorf("%w: expendable %s", domain.ErrNotFound, req.ItemID)
	}
	if req.From.Type != domain.LocationTypeKit || req.To.Type != domain.LocationTypeKit {
		return nil, fmt.Errorf("%w: expendables are kit-resident and move only between kits", domain.ErrLocationMismatch)
	}
	if exp.KitID != req.From.ID {
		return nil, fmt.Errorf("%w: expendable %s is not in kit %s", domain.ErrLocationMismatch, exp.ID, req.From.ID)
	}
	if exp.SerialTracked() {
		if !req.Quantity.Equal(exp.Quantity) {
			return nil, fmt.Errorf("%w: serial-tracked expendables move as a whole unit", domain.ErrInvalidQuantityForType)
		}
	} else if req.Quantity.GreaterThan(exp.Quantity) {
		return nil, fmt.Errorf("%w: expendable %s holds %s, requested %s",
			domain.ErrInsufficientQuantity, exp.ID, exp.Quantity, req.Quantity)
	}
	return exp, nil
}

// applyToolMove relocates a tool as an indivisible unit.
func (c *TransferCoordinator) applyToolMove(ctx context.Context, tx port.Tx, req TransferRequest, tool *domain.Tool, now time.Time) error {
	if req.From.Type == domain.LocationTypeKit {
		// A move inside one kit is a box reassignment; the placement
		// row survives.
		if req.To.Type == domain.LocationTypeKit && req.From.ID == req.To.ID {
			if err := tx.UpdateKitItem(ctx, domain.KitItem{
				KitID:    req.To.ID,
				BoxID:    req.DestinationBoxID,
				ItemType: domain.ItemTypeTool,
				ItemID:   tool.ID,
				Quantity: tool.Quantity,
			}); err != nil {
				return fmt.Errorf("move tool between boxes: %w", err)
			}
			tool.UpdatedAt = now
			if err := tx.UpdateTool(ctx, *tool); err != nil {
				return fmt.Errorf("update tool: %w", err)
			}
			return nil
		}
		if err := tx.DeleteKitItem(ctx, req.From.ID, domain.ItemTypeTool, tool.ID); err != nil {
			return fmt.Errorf("remove tool from kit: %w", err)
		}
	}
	switch req.To.Type {
	case domain.LocationTypeWarehouse:
		tool.WarehouseID = req.To.ID
	case domain.LocationTypeKit:
		tool.WarehouseID = ""
		if err := tx.InsertKitItem(ctx, domain.KitItem{
			KitID:    req.To.ID,
			BoxID:    req.DestinationBoxID,
			ItemType: domain.ItemTypeTool,
			ItemID:   tool.ID,
			Quantity: tool.Quantity,
		}); err != nil {
			return fmt.Errorf("place tool in kit: %w", err)
		}
	}
	tool.UpdatedAt = now
	if err := tx.UpdateTool(ctx, *tool); err != nil {
		return fmt.Errorf("update tool: %w", err)
	}
	return nil
}

// applyChemicalMove relocates a chemical, splitting off a child lot
// when a partial quantity is drawn from a warehouse into a kit. All
// other directions move the existing row whole: a warehouse relocation
// only reassigns the warehouse reference, whatever quantity was asked
// for.
func (c *TransferCoordinator) applyChemicalMove(ctx context.Context, tx port.Tx, req TransferRequest, chem *domain.Chemical, now time.Time) (*domain.Chemical, error) {
	fromWarehouse := req.From.Type == domain.LocationTypeWarehouse
	toKit := req.To.Type == domain.LocationTypeKit

	if fromWarehouse && toKit && req.Quantity.LessThan(chem.Quantity) {
		child, err := c.lineage.Split(ctx, tx, chem, req.Quantity)
		if err != nil {
			return nil, err
		}
		// The destination record references the child, not the parent.
		if err := tx.InsertKitItem(ctx, domain.KitItem{
			KitID:    req.To.ID,
			BoxID:    req.DestinationBoxID,
			ItemType: domain.ItemTypeChemical,
			ItemID:   child.ID,
			Quantity: child.Quantity,
		}); err != nil {
			return nil, fmt.Errorf("place child lot in kit: %w", err)
		}
		return child, nil
	}

	if req.From.Type == domain.LocationTypeKit {
		if toKit && req.From.ID == req.To.ID {
			if err := tx.UpdateKitItem(ctx, domain.KitItem{
				KitID:    req.To.ID,
				BoxID:    req.DestinationBoxID,
				ItemType: domain.ItemTypeChemical,
				ItemID:   chem.ID,
				Quantity: chem.Quantity,
			}); err != nil {
				return nil, fmt.Errorf("move chemical between boxes: %w", err)
			}
			chem.UpdatedAt = now
			if err := tx.UpdateChemical(ctx, *chem); err != nil {
				return nil, fmt.Errorf("update chemical: %w", err)
			}
			return nil, nil
		}
		if err := tx.DeleteKitItem(ctx, req.From.ID, domain.ItemTypeChemical, chem.ID); err != nil {
			return nil, fmt.Errorf("remove chemical from kit: %w", err)
		}
	}
	switch req.To.Type {
	case domain.LocationTypeWarehouse:
		chem.WarehouseID = req.To.ID
	case domain.LocationTypeKit:
		chem.WarehouseID = ""
		if err := tx.InsertKitItem(ctx, domain.KitItem{
			KitID:    req.To.ID,
			BoxID:    req.DestinationBoxID,
			ItemType: domain.ItemTypeChemical,
			ItemID:   chem.ID,
			Quantity: chem.Quantity,
		}); err != nil {
			return nil, fmt.Errorf("place chemical in kit: %w", err)
		}
	}
	chem.UpdatedAt = now
	if err := tx.UpdateChemical(ctx, *chem); err != nil {
		return nil, fmt.Errorf("update chemical: %w", err)
	}
	return nil, nil
}

// applyExpendableMove relocates a kit-resident expendable.
// Serial-tracked units move whole; lot-tracked quantities merge into a
// matching lot at the destination or start a new record there.
func (c *TransferCoordinator) applyExpendableMove(ctx context.Context, tx port.Tx, req TransferRequest, exp *domain.Expendable, now time.Time) error {
	if exp.SerialTracked() {
		exp.KitID = req.To.ID
		exp.BoxID = req.DestinationBoxID
		exp.UpdatedAt = now
		if err := tx.UpdateExpendable(ctx, *exp); err != nil {
			return fmt.Errorf("update expendable: %w", err)
		}
		return nil
	}

	existing, err := tx.FindExpendableByLotInKit(ctx, req.To.ID, exp.PartNumber, exp.LotNumber)
	if err != nil {
		return fmt.Errorf("find destination lot: %w", err)
	}
	if existing != nil {
		existing.Quantity = existing.Quantity.Add(req.Quantity)
		existing.UpdatedAt = now
		if err := tx.UpdateExpendable(ctx, *existing); err != nil {
			return fmt.Errorf("merge into destination lot: %w", err)
		}
	} else {
		if err := tx.InsertExpendable(ctx, domain.Expendable{
			ID:          uuid.NewString(),
			PartNumber:  exp.PartNumber,
			LotNumber:   exp.LotNumber,
			Description: exp.Description,
			Quantity:    req.Quantity,
			KitID:       req.To.ID,
			BoxID:       req.DestinationBoxID,
			Status:      domain.ItemStatusAvailable,
			CreatedAt:   now,
			UpdatedAt:   now,
		}); err != nil {
			return fmt.Errorf("create destination lot: %w", err)
		}
	}

	exp.Quantity = exp.Quantity.Sub(req.Quantity)
	exp.UpdatedAt = now
	if exp.Quantity.IsZero() {
		if err := tx.DeleteExpendable(ctx, exp.ID); err != nil {
			return fmt.Errorf("delete drained expendable: %w", err)
		}
		return nil
	}
	if err := tx.UpdateExpendable(ctx, *exp); err != nil {
		return fmt.Errorf("update expendable: %w", err)
	}
	return nil
}

// checkSourcePlacement enforces validation step 4 for tools and
// chemicals: the row must actually sit at the claimed source and hold
// at least the requested quantity there.
func (c *TransferCoordinator) checkSourcePlacement(ctx context.Context, tx port.Tx, req TransferRequest, warehouseID string, have decimal.Decimal) error {
	switch req.From.Type {
	case domain.LocationTypeWarehouse:
		if warehouseID != req.From.ID {
			return fmt.Errorf("%w: %s %s is not in warehouse %s", domain.ErrLocationMismatch, req.ItemType, req.ItemID, req.From.ID)
		}
		if have.LessThan(req.Quantity) {
			return fmt.Errorf("%w: have %s, requested %s", domain.ErrInsufficientQuantity, have, req.Quantity)
		}
	case domain.LocationTypeKit:
		item, err := tx.FindKitItemForUpdate(ctx, req.From.ID, req.ItemType, req.ItemID)
		if err != nil {
			return fmt.Errorf("load kit contents: %w", err)
		}
		if item == nil {
			return fmt.Errorf("%w: %s %s is not in kit %s", domain.ErrLocationMismatch, req.ItemType, req.ItemID, req.From.ID)
		}
		if item.Quantity.LessThan(req.Quantity) {
			return fmt.Errorf("%w: have %s, requested %s", domain.ErrInsufficientQuantity, item.Quantity, req.Quantity)
		}
	}
	return nil
}

// Cancel moves a pending transfer to cancelled. Terminal transfers
// cannot be re-transitioned.
func (c *TransferCoordinator) Cancel(ctx context.Context, transferID, actor string) (*domain.Transfer, error) {
	return c.transition(ctx, transferID, actor, "transfer_cancelled", (*domain.Transfer).Cancel)
}

// Complete moves a pending transfer to completed without touching
// inventory again; a transfer never mutates inventory more than once.
// Execute completes transfers itself, so this services rows left
// pending by earlier two-phase workflows.
func (c *TransferCoordinator) Complete(ctx context.Context, transferID, actor string) (*domain.Transfer, error) {
	return c.transition(ctx, transferID, actor, "transfer_completed", (*domain.Transfer).Complete)
}

func (c *TransferCoordinator) transition(ctx context.Context, transferID, actor, action string, apply func(*domain.Transfer, time.Time) error) (*domain.Transfer, error) {
	var out *domain.Transfer
	err := c.store.Transact(ctx, func(tx port.Tx) error {
		transfer, err := tx.GetTransferForUpdate(ctx, transferID)
		if err != nil {
			return fmt.Errorf("load transfer: %w", err)
		}
		if transfer == nil {
			return fmt.Errorf("%w: transfer %s", domain.ErrNotFound, transferID)
		}
		now := time.Now()
		if err := apply(transfer, now); err != nil {
			return err
		}
		if err := tx.UpdateTransfer(ctx, *transfer); err != nil {
			return fmt.Errorf("update transfer: %w", err)
		}
		if err := tx.InsertAuditEntry(ctx, domain.AuditEntry{
			ID:        uuid.NewString(),
			Action:    action,
			Details:   fmt.Sprintf("%s %s for %s %s", action, transfer.ID, transfer.ItemType, transfer.ItemID),
			UserID:    actor,
			CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("insert audit entry: %w", err)
		}
		out = transfer
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.log.Info(action, zap.String("transfer_id", out.ID), zap.String("actor", actor))
	return out, nil
}
