package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/nvargas87/toolcrib/internal/core/domain"
	"github.com/nvargas87/toolcrib/internal/port"
)

var (
	_ port.Store = (*memStore)(nil)
	_ port.Tx    = (*memTx)(nil)
)

// memStore is an in-memory port.Store used to exercise the services
// without a database. Transact serializes transactions and restores a
// snapshot on error, mirroring rollback semantics.
type memStore struct {
	mu sync.Mutex

	warehouses    map[string]domain.Warehouse
	kits          map[string]domain.Kit
	boxes         map[string]domain.KitBox
	users         map[string]string
	tools         map[string]domain.Tool
	chemicals     map[string]domain.Chemical
	expendables   map[string]domain.Expendable
	kitItems      []domain.KitItem
	transfers     map[string]domain.Transfer
	lineage       []domain.LotLineage
	ledger        []domain.LedgerEntry
	whTransfers   []domain.WarehouseTransferRecord
	checkouts     []domain.ToolCheckout
	chemIssuances []domain.ChemicalIssuance
	kitIssuances  []domain.KitIssuance
	audits        []domain.AuditEntry

	// failOn makes the named mutator return an error, for rollback tests.
	failOn string
}

func newMemStore() *memStore {
	return &memStore{
		warehouses:  map[string]domain.Warehouse{},
		kits:        map[string]domain.Kit{},
		boxes:       map[string]domain.KitBox{},
		users:       map[string]string{},
		tools:       map[string]domain.Tool{},
		chemicals:   map[string]domain.Chemical{},
		expendables: map[string]domain.Expendable{},
		transfers:   map[string]domain.Transfer{},
	}
}

func (s *memStore) snapshot() *memStore {
	cp := newMemStore()
	for k, v := range s.warehouses {
		cp.warehouses[k] = v
	}
	for k, v := range s.kits {
		cp.kits[k] = v
	}
	for k, v := range s.boxes {
		cp.boxes[k] = v
	}
	for k, v := range s.users {
		cp.users[k] = v
	}
	for k, v := range s.tools {
		cp.tools[k] = v
	}
	for k, v := range s.chemicals {
		cp.chemicals[k] = v
	}
	for k, v := range s.expendables {
		cp.expendables[k] = v
	}
	cp.kitItems = append([]domain.KitItem(nil), s.kitItems...)
	for k, v := range s.transfers {
		cp.transfers[k] = v
	}
	cp.lineage = append([]domain.LotLineage(nil), s.lineage...)
	cp.ledger = append([]domain.LedgerEntry(nil), s.ledger...)
	cp.whTransfers = append([]domain.WarehouseTransferRecord(nil), s.whTransfers...)
	cp.checkouts = append([]domain.ToolCheckout(nil), s.checkouts...)
	cp.chemIssuances = append([]domain.ChemicalIssuance(nil), s.chemIssuances...)
	cp.kitIssuances = append([]domain.KitIssuance(nil), s.kitIssuances...)
	cp.audits = append([]domain.AuditEntry(nil), s.audits...)
	return cp
}

func (s *memStore) restore(cp *memStore) {
	s.warehouses = cp.warehouses
	s.kits = cp.kits
	s.boxes = cp.boxes
	s.users = cp.users
	s.tools = cp.tools
	s.chemicals = cp.chemicals
	s.expendables = cp.expendables
	s.kitItems = cp.kitItems
	s.transfers = cp.transfers
	s.lineage = cp.lineage
	s.ledger = cp.ledger
	s.whTransfers = cp.whTransfers
	s.checkouts = cp.checkouts
	s.chemIssuances = cp.chemIssuances
	s.kitIssuances = cp.kitIssuances
	s.audits = cp.audits
}

func (s *memStore) Transact(ctx context.Context, fn func(tx port.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := s.snapshot()
	if err := fn(&memTx{s}); err != nil {
		s.restore(cp)
		return err
	}
	return nil
}

func (s *memStore) fail(op string) error {
	if s.failOn == op {
		return fmt.Errorf("injected %s failure", op)
	}
	return nil
}

// Reader

func (s *memStore) GetWarehouse(ctx context.Context, id string) (*domain.Warehouse, error) {
	if w, ok := s.warehouses[id]; ok {
		return &w, nil
	}
	return nil, nil
}

func (s *memStore) GetKit(ctx context.Context, id string) (*domain.Kit, error) {
	if k, ok := s.kits[id]; ok {
		return &k, nil
	}
	return nil, nil
}

func (s *memStore) GetKitBox(ctx context.Context, id string) (*domain.KitBox, error) {
	if b, ok := s.boxes[id]; ok {
		return &b, nil
	}
	return nil, nil
}

func (s *memStore) GetUserName(ctx context.Context, id string) (string, error) {
	return s.users[id], nil
}

func (s *memStore) GetTransfer(ctx context.Context, id string) (*domain.Transfer, error) {
	if t, ok := s.transfers[id]; ok {
		return &t, nil
	}
	return nil, nil
}

func matchTracking(serial, lot, tracking string) bool {
	return (serial != "" && strings.EqualFold(serial, tracking)) ||
		(lot != "" && strings.EqualFold(lot, tracking))
}

func (s *memStore) FindToolByIdentifiers(ctx context.Context, identifier, tracking string) (*domain.Tool, error) {
	for _, t := range s.tools {
		if strings.EqualFold(t.ToolNumber, identifier) && matchTracking(t.SerialNumber, t.LotNumber, tracking) {
			tt := t
			return &tt, nil
		}
	}
	return nil, nil
}

func (s *memStore) FindChemicalByIdentifiers(ctx context.Context, identifier, tracking string) (*domain.Chemical, error) {
	for _, c := range s.chemicals {
		if strings.EqualFold(c.PartNumber, identifier) && strings.EqualFold(c.LotNumber, tracking) {
			cc := c
			return &cc, nil
		}
	}
	return nil, nil
}

func (s *memStore) FindKitExpendableByIdentifiers(ctx context.Context, identifier, tracking string) (*domain.Expendable, error) {
	for _, e := range s.expendables {
		if strings.EqualFold(e.PartNumber, identifier) && matchTracking(e.SerialNumber, e.LotNumber, tracking) {
			ee := e
			return &ee, nil
		}
	}
	return nil, nil
}

func (s *memStore) FindKitContaining(ctx context.Context, itemType domain.ItemType, itemID string) (*domain.KitItem, error) {
	for _, it := range s.kitItems {
		if it.ItemType == itemType && it.ItemID == itemID {
			ii := it
			return &ii, nil
		}
	}
	return nil, nil
}

func (s *memStore) FindChemicalByLot(ctx context.Context, lotNumber string) (*domain.Chemical, error) {
	for _, c := range s.chemicals {
		if strings.EqualFold(c.LotNumber, lotNumber) {
			cc := c
			return &cc, nil
		}
	}
	return nil, nil
}

func (s *memStore) FindChemicalsByParentLot(ctx context.Context, parentLotNumber string) ([]domain.Chemical, error) {
	var out []domain.Chemical
	for _, c := range s.chemicals {
		if c.ParentLotNumber != "" && strings.EqualFold(c.ParentLotNumber, parentLotNumber) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memStore) ListLedgerEntries(ctx context.Context, itemType domain.ItemType, itemID string) ([]domain.LedgerEntry, error) {
	var out []domain.LedgerEntry
	for _, e := range s.ledger {
		if e.ItemType == itemType && e.ItemID == itemID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStore) ListWarehouseTransfers(ctx context.Context, itemType domain.ItemType, itemID string) ([]domain.WarehouseTransferRecord, error) {
	var out []domain.WarehouseTransferRecord
	for _, rec := range s.whTransfers {
		if rec.ItemType == itemType && rec.ItemID == itemID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *memStore) ListTransfers(ctx context.Context, itemType domain.ItemType, itemID string) ([]domain.Transfer, error) {
	var out []domain.Transfer
	for _, t := range s.transfers {
		if t.ItemType == itemType && t.ItemID == itemID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memStore) ListToolCheckouts(ctx context.Context, toolID string) ([]domain.ToolCheckout, error) {
	var out []domain.ToolCheckout
	for _, co := range s.checkouts {
		if co.ToolID == toolID {
			out = append(out, co)
		}
	}
	return out, nil
}

func (s *memStore) ListChemicalIssuances(ctx context.Context, chemicalID string) ([]domain.ChemicalIssuance, error) {
	var out []domain.ChemicalIssuance
	for _, is := range s.chemIssuances {
		if is.ChemicalID == chemicalID {
			out = append(out, is)
		}
	}
	return out, nil
}

func (s *memStore) ListKitIssuances(ctx context.Context, partNumber, trackingNumber string) ([]domain.KitIssuance, error) {
	var out []domain.KitIssuance
	for _, is := range s.kitIssuances {
		if strings.EqualFold(is.PartNumber, partNumber) && strings.EqualFold(is.TrackingNumber, trackingNumber) {
			out = append(out, is)
		}
	}
	return out, nil
}

func (s *memStore) SearchAuditEntries(ctx context.Context, actions []string, terms []string) ([]domain.AuditEntry, error) {
	allowed := map[string]bool{}
	for _, a := range actions {
		allowed[a] = true
	}
	var out []domain.AuditEntry
	for _, e := range s.audits {
		if !allowed[e.Action] {
			continue
		}
		details := strings.ToLower(e.Details)
		for _, term := range terms {
			if term != "" && strings.Contains(details, strings.ToLower(term)) {
				out = append(out, e)
				break
			}
		}
	}
	return out, nil
}

// memTx exposes the mutating surface over the same state. Transact
// already holds the lock.
type memTx struct {
	s *memStore
}

func (t *memTx) GetWarehouse(ctx context.Context, id string) (*domain.Warehouse, error) {
	return t.s.GetWarehouse(ctx, id)
}

func (t *memTx) GetKit(ctx context.Context, id string) (*domain.Kit, error) {
	return t.s.GetKit(ctx, id)
}

func (t *memTx) GetKitBox(ctx context.Context, id string) (*domain.KitBox, error) {
	return t.s.GetKitBox(ctx, id)
}

func (t *memTx) GetUserName(ctx context.Context, id string) (string, error) {
	return t.s.GetUserName(ctx, id)
}

func (t *memTx) GetTransfer(ctx context.Context, id string) (*domain.Transfer, error) {
	return t.s.GetTransfer(ctx, id)
}

func (t *memTx) FindToolByIdentifiers(ctx context.Context, identifier, tracking string) (*domain.Tool, error) {
	return t.s.FindToolByIdentifiers(ctx, identifier, tracking)
}

func (t *memTx) FindChemicalByIdentifiers(ctx context.Context, identifier, tracking string) (*domain.Chemical, error) {
	return t.s.FindChemicalByIdentifiers(ctx, identifier, tracking)
}

func (t *memTx) FindKitExpendableByIdentifiers(ctx context.Context, identifier, tracking string) (*domain.Expendable, error) {
	return t.s.FindKitExpendableByIdentifiers(ctx, identifier, tracking)
}

func (t *memTx) FindKitContaining(ctx context.Context, itemType domain.ItemType, itemID string) (*domain.KitItem, error) {
	return t.s.FindKitContaining(ctx, itemType, itemID)
}

func (t *memTx) FindChemicalByLot(ctx context.Context, lotNumber string) (*domain.Chemical, error) {
	return t.s.FindChemicalByLot(ctx, lotNumber)
}

func (t *memTx) FindChemicalsByParentLot(ctx context.Context, parentLotNumber string) ([]domain.Chemical, error) {
	return t.s.FindChemicalsByParentLot(ctx, parentLotNumber)
}

func (t *memTx) ListLedgerEntries(ctx context.Context, itemType domain.ItemType, itemID string) ([]domain.LedgerEntry, error) {
	return t.s.ListLedgerEntries(ctx, itemType, itemID)
}

func (t *memTx) ListWarehouseTransfers(ctx context.Context, itemType domain.ItemType, itemID string) ([]domain.WarehouseTransferRecord, error) {
	return t.s.ListWarehouseTransfers(ctx, itemType, itemID)
}

func (t *memTx) ListTransfers(ctx context.Context, itemType domain.ItemType, itemID string) ([]domain.Transfer, error) {
	return t.s.ListTransfers(ctx, itemType, itemID)
}

func (t *memTx) ListToolCheckouts(ctx context.Context, toolID string) ([]domain.ToolCheckout, error) {
	return t.s.ListToolCheckouts(ctx, toolID)
}

func (t *memTx) ListChemicalIssuances(ctx context.Context, chemicalID string) ([]domain.ChemicalIssuance, error) {
	return t.s.ListChemicalIssuances(ctx, chemicalID)
}

func (t *memTx) ListKitIssuances(ctx context.Context, partNumber, trackingNumber string) ([]domain.KitIssuance, error) {
	return t.s.ListKitIssuances(ctx, partNumber, trackingNumber)
}

func (t *memTx) SearchAuditEntries(ctx context.Context, actions []string, terms []string) ([]domain.AuditEntry, error) {
	return t.s.SearchAuditEntries(ctx, actions, terms)
}

func (t *memTx) GetToolForUpdate(ctx context.Context, id string) (*domain.Tool, error) {
	if tool, ok := t.s.tools[id]; ok {
		return &tool, nil
	}
	return nil, nil
}

func (t *memTx) GetChemicalForUpdate(ctx context.Context, id string) (*domain.Chemical, error) {
	if c, ok := t.s.chemicals[id]; ok {
		return &c, nil
	}
	return nil, nil
}

func (t *memTx) GetExpendableForUpdate(ctx context.Context, id string) (*domain.Expendable, error) {
	if e, ok := t.s.expendables[id]; ok {
		return &e, nil
	}
	return nil, nil
}

func (t *memTx) GetTransferForUpdate(ctx context.Context, id string) (*domain.Transfer, error) {
	return t.s.GetTransfer(ctx, id)
}

func (t *memTx) FindKitItemForUpdate(ctx context.Context, kitID string, itemType domain.ItemType, itemID string) (*domain.KitItem, error) {
	for _, it := range t.s.kitItems {
		if it.KitID == kitID && it.ItemType == itemType && it.ItemID == itemID {
			ii := it
			return &ii, nil
		}
	}
	return nil, nil
}

func (t *memTx) FindExpendableByLotInKit(ctx context.Context, kitID, partNumber, lotNumber string) (*domain.Expendable, error) {
	for _, e := range t.s.expendables {
		if e.KitID == kitID && e.LotNumber != "" &&
			strings.EqualFold(e.PartNumber, partNumber) && strings.EqualFold(e.LotNumber, lotNumber) {
			ee := e
			return &ee, nil
		}
	}
	return nil, nil
}

func (t *memTx) ChemicalLotExists(ctx context.Context, lotNumber string) (bool, error) {
	for _, c := range t.s.chemicals {
		if strings.EqualFold(c.LotNumber, lotNumber) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) UpdateTool(ctx context.Context, tool domain.Tool) error {
	if err := t.s.fail("UpdateTool"); err != nil {
		return err
	}
	t.s.tools[tool.ID] = tool
	return nil
}

func (t *memTx) InsertChemical(ctx context.Context, chemical domain.Chemical) error {
	if err := t.s.fail("InsertChemical"); err != nil {
		return err
	}
	t.s.chemicals[chemical.ID] = chemical
	return nil
}

func (t *memTx) UpdateChemical(ctx context.Context, chemical domain.Chemical) error {
	if err := t.s.fail("UpdateChemical"); err != nil {
		return err
	}
	t.s.chemicals[chemical.ID] = chemical
	return nil
}

func (t *memTx) InsertExpendable(ctx context.Context, expendable domain.Expendable) error {
	if err := t.s.fail("InsertExpendable"); err != nil {
		return err
	}
	t.s.expendables[expendable.ID] = expendable
	return nil
}

func (t *memTx) UpdateExpendable(ctx context.Context, expendable domain.Expendable) error {
	if err := t.s.fail("UpdateExpendable"); err != nil {
		return err
	}
	t.s.expendables[expendable.ID] = expendable
	return nil
}

func (t *memTx) DeleteExpendable(ctx context.Context, id string) error {
	delete(t.s.expendables, id)
	return nil
}

func (t *memTx) InsertKitItem(ctx context.Context, item domain.KitItem) error {
	if err := t.s.fail("InsertKitItem"); err != nil {
		return err
	}
	t.s.kitItems = append(t.s.kitItems, item)
	return nil
}

func (t *memTx) UpdateKitItem(ctx context.Context, item domain.KitItem) error {
	for i := range t.s.kitItems {
		if t.s.kitItems[i].KitID == item.KitID && t.s.kitItems[i].ItemType == item.ItemType && t.s.kitItems[i].ItemID == item.ItemID {
			t.s.kitItems[i] = item
			return nil
		}
	}
	return fmt.Errorf("kit item not found")
}

func (t *memTx) DeleteKitItem(ctx context.Context, kitID string, itemType domain.ItemType, itemID string) error {
	for i := range t.s.kitItems {
		if t.s.kitItems[i].KitID == kitID && t.s.kitItems[i].ItemType == itemType && t.s.kitItems[i].ItemID == itemID {
			t.s.kitItems = append(t.s.kitItems[:i], t.s.kitItems[i+1:]...)
			return nil
		}
	}
	return nil
}

func (t *memTx) InsertTransfer(ctx context.Context, transfer domain.Transfer) error {
	if err := t.s.fail("InsertTransfer"); err != nil {
		return err
	}
	t.s.transfers[transfer.ID] = transfer
	return nil
}

func (t *memTx) UpdateTransfer(ctx context.Context, transfer domain.Transfer) error {
	if err := t.s.fail("UpdateTransfer"); err != nil {
		return err
	}
	t.s.transfers[transfer.ID] = transfer
	return nil
}

func (t *memTx) InsertLotLineage(ctx context.Context, lineage domain.LotLineage) error {
	if err := t.s.fail("InsertLotLineage"); err != nil {
		return err
	}
	t.s.lineage = append(t.s.lineage, lineage)
	return nil
}

func (t *memTx) InsertLedgerEntry(ctx context.Context, entry domain.LedgerEntry) error {
	if err := t.s.fail("InsertLedgerEntry"); err != nil {
		return err
	}
	t.s.ledger = append(t.s.ledger, entry)
	return nil
}

func (t *memTx) InsertAuditEntry(ctx context.Context, entry domain.AuditEntry) error {
	if err := t.s.fail("InsertAuditEntry"); err != nil {
		return err
	}
	t.s.audits = append(t.s.audits, entry)
	return nil
}
