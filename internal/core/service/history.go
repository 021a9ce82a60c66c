package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nvargas87/toolcrib/internal/core/domain"
	"github.com/nvargas87/toolcrib/internal/port"
)

// childLotCorrelationWindow is how far a child lot's creation time may
// sit from a transfer timestamp and still be attributed to it. There is
// no foreign key between the two, so this is a heuristic; concurrent
// overlapping splits of the same parent can mis-attribute. Do not
// change the window without revisiting that trade-off.
const childLotCorrelationWindow = 5 * time.Second

// auditActionAllowList bounds the free-text audit correlation to action
// kinds known to describe inventory movement.
var auditActionAllowList = []string{
	"transfer",
	"transfer_cancelled",
	"transfer_completed",
	"lot_split",
	"adjustment",
	"checkout",
	"return",
	"relocation",
}

// HistoryResolver reconstructs the full audit timeline for one item.
// There is no single event log; the resolver projects seven unlinked
// record sources into a common event shape and merges them. It is
// read-only and best-effort: one unresolved cross-reference degrades to
// an "Unknown" label rather than failing the lookup.
type HistoryResolver struct {
	store port.Store
	log   *zap.Logger
}

func NewHistoryResolver(store port.Store, log *zap.Logger) *HistoryResolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &HistoryResolver{store: store, log: log}
}

// Resolve locates an item by (identifier, tracking number), matching
// tools first, then chemicals, then kit-resident expendables, all
// case-insensitively. A miss is a normal negative result.
func (r *HistoryResolver) Resolve(ctx context.Context, identifier, trackingNumber string) (*domain.ItemHistory, error) {
	identifier = strings.TrimSpace(identifier)
	trackingNumber = strings.TrimSpace(trackingNumber)

	tool, err := r.store.FindToolByIdentifiers(ctx, identifier, trackingNumber)
	if err != nil {
		return nil, fmt.Errorf("tool lookup: %w", err)
	}
	if tool != nil {
		return r.resolveTool(ctx, identifier, trackingNumber, tool)
	}

	chem, err := r.store.FindChemicalByIdentifiers(ctx, identifier, trackingNumber)
	if err != nil {
		return nil, fmt.Errorf("chemical lookup: %w", err)
	}
	if chem != nil {
		return r.resolveChemical(ctx, identifier, trackingNumber, chem)
	}

	exp, err := r.store.FindKitExpendableByIdentifiers(ctx, identifier, trackingNumber)
	if err != nil {
		return nil, fmt.Errorf("expendable lookup: %w", err)
	}
	if exp != nil {
		return r.resolveExpendable(ctx, identifier, trackingNumber, exp)
	}

	return &domain.ItemHistory{
		ItemFound: false,
		Message:   fmt.Sprintf("no tool, chemical or expendable matches identifier %q with tracking number %q", identifier, trackingNumber),
	}, nil
}

func (r *HistoryResolver) resolveTool(ctx context.Context, identifier, trackingNumber string, tool *domain.Tool) (*domain.ItemHistory, error) {
	out := &domain.ItemHistory{
		ItemFound: true,
		ItemType:  domain.ItemTypeTool,
		Item: domain.ItemDetails{
			ID:             tool.ID,
			Identifier:     tool.ToolNumber,
			TrackingNumber: tool.TrackingNumber(),
			Description:    tool.Description,
			Status:         tool.Status,
			Quantity:       tool.Quantity,
		},
		CurrentLocation: r.resolveLocation(ctx, domain.ItemTypeTool, tool.ID, tool.WarehouseID, tool.Location),
	}

	events := []domain.HistoryEvent{r.creationEvent("Tool added to inventory", tool.CreatedAt)}
	events = append(events, r.ledgerEvents(ctx, domain.ItemTypeTool, tool.ID)...)
	events = append(events, r.warehouseTransferEvents(ctx, domain.ItemTypeTool, tool.ID, nil)...)
	events = append(events, r.transferEvents(ctx, domain.ItemTypeTool, tool.ID, nil)...)
	events = append(events, r.checkoutEvents(ctx, tool.ID)...)
	events = append(events, r.kitIssuanceEvents(ctx, identifier, trackingNumber)...)
	events = append(events, r.auditEvents(ctx, identifier, trackingNumber)...)

	out.History = sortEvents(events)
	return out, nil
}

func (r *HistoryResolver) resolveChemical(ctx context.Context, identifier, trackingNumber string, chem *domain.Chemical) (*domain.ItemHistory, error) {
	out := &domain.ItemHistory{
		ItemFound: true,
		ItemType:  domain.ItemTypeChemical,
		Item: domain.ItemDetails{
			ID:             chem.ID,
			Identifier:     chem.PartNumber,
			TrackingNumber: chem.LotNumber,
			Description:    chem.Description,
			Status:         chem.Status,
			Quantity:       chem.Quantity,
		},
		CurrentLocation: r.resolveLocation(ctx, domain.ItemTypeChemical, chem.ID, chem.WarehouseID, chem.Location),
	}

	// Lineage is one hop each direction, never recursive.
	if chem.ParentLotNumber != "" {
		parent, err := r.store.FindChemicalByLot(ctx, chem.ParentLotNumber)
		if err != nil {
			r.log.Warn("parent lot lookup failed", zap.String("lot", chem.ParentLotNumber), zap.Error(err))
		} else if parent != nil {
			out.ParentLot = &domain.LotSummary{LotNumber: parent.LotNumber, Status: parent.Status, Quantity: parent.Quantity}
		}
	}
	children, err := r.store.FindChemicalsByParentLot(ctx, chem.LotNumber)
	if err != nil {
		r.log.Warn("child lot lookup failed", zap.String("lot", chem.LotNumber), zap.Error(err))
	}
	for i := range children {
		out.ChildLots = append(out.ChildLots, domain.LotSummary{
			LotNumber: children[i].LotNumber,
			Status:    children[i].Status,
			Quantity:  children[i].Quantity,
		})
	}

	events := []domain.HistoryEvent{r.creationEvent("Chemical added to inventory", chem.CreatedAt)}
	events = append(events, r.ledgerEvents(ctx, domain.ItemTypeChemical, chem.ID)...)
	events = append(events, r.warehouseTransferEvents(ctx, domain.ItemTypeChemical, chem.ID, chem)...)
	events = append(events, r.transferEvents(ctx, domain.ItemTypeChemical, chem.ID, chem)...)
	events = append(events, r.chemicalIssuanceEvents(ctx, chem.ID)...)
	events = append(events, r.kitIssuanceEvents(ctx, identifier, trackingNumber)...)
	events = append(events, r.auditEvents(ctx, identifier, trackingNumber)...)

	out.History = sortEvents(events)
	return out, nil
}

func (r *HistoryResolver) resolveExpendable(ctx context.Context, identifier, trackingNumber string, exp *domain.Expendable) (*domain.ItemHistory, error) {
	out := &domain.ItemHistory{
		ItemFound: true,
		ItemType:  domain.ItemTypeExpendable,
		Item: domain.ItemDetails{
			ID:             exp.ID,
			Identifier:     exp.PartNumber,
			TrackingNumber: exp.TrackingNumber(),
			Description:    exp.Description,
			Status:         exp.Status,
			Quantity:       exp.Quantity,
		},
		// Expendables always resolve through their owning kit.
		CurrentLocation: r.kitLocation(ctx, exp.KitID, exp.BoxID),
	}

	events := []domain.HistoryEvent{r.creationEvent("Expendable added to kit", exp.CreatedAt)}
	events = append(events, r.ledgerEvents(ctx, domain.ItemTypeExpendable, exp.ID)...)
	events = append(events, r.warehouseTransferEvents(ctx, domain.ItemTypeExpendable, exp.ID, nil)...)
	events = append(events, r.transferEvents(ctx, domain.ItemTypeExpendable, exp.ID, nil)...)
	events = append(events, r.kitIssuanceEvents(ctx, identifier, trackingNumber)...)
	events = append(events, r.auditEvents(ctx, identifier, trackingNumber)...)

	out.History = sortEvents(events)
	return out, nil
}

// resolveLocation finds where a tool or chemical currently sits: its
// warehouse reference wins, then a containing kit, then "unknown" with
// the item's free-text location as the label.
func (r *HistoryResolver) resolveLocation(ctx context.Context, itemType domain.ItemType, itemID, warehouseID, freeText string) domain.LocationInfo {
	if warehouseID != "" {
		name := "Unknown Warehouse"
		if wh, err := r.store.GetWarehouse(ctx, warehouseID); err == nil && wh != nil {
			name = wh.Name
		}
		return domain.LocationInfo{Type: string(domain.LocationTypeWarehouse), ID: warehouseID, Name: name}
	}
	item, err := r.store.FindKitContaining(ctx, itemType, itemID)
	if err != nil {
		r.log.Warn("kit containment lookup failed", zap.String("item_id", itemID), zap.Error(err))
	}
	if item != nil {
		return r.kitLocation(ctx, item.KitID, item.BoxID)
	}
	return domain.LocationInfo{Type: "unknown", Name: freeText}
}

func (r *HistoryResolver) kitLocation(ctx context.Context, kitID, boxID string) domain.LocationInfo {
	loc := domain.LocationInfo{Type: string(domain.LocationTypeKit), ID: kitID, Name: "Unknown Kit", BoxID: boxID}
	if kit, err := r.store.GetKit(ctx, kitID); err == nil && kit != nil {
		loc.Name = kit.Name
	}
	if boxID != "" {
		if box, err := r.store.GetKitBox(ctx, boxID); err == nil && box != nil {
			loc.BoxName = box.Name
		}
	}
	return loc
}

func (r *HistoryResolver) creationEvent(description string, createdAt time.Time) domain.HistoryEvent {
	return domain.HistoryEvent{
		Type:        domain.EventCreated,
		Timestamp:   createdAt,
		Description: description,
		User:        "Unknown User",
	}
}

var ledgerDescriptions = map[string]string{
	domain.LedgerKindReceipt:     "Received into inventory",
	domain.LedgerKindIssuance:    "Issued from inventory",
	domain.LedgerKindTransfer:    "Transferred between locations",
	domain.LedgerKindAdjustment:  "Quantity adjusted",
	domain.LedgerKindCheckout:    "Checked out",
	domain.LedgerKindReturn:      "Returned",
	domain.LedgerKindKitIssuance: "Issued with kit",
}

func (r *HistoryResolver) ledgerEvents(ctx context.Context, itemType domain.ItemType, itemID string) []domain.HistoryEvent {
	entries, err := r.store.ListLedgerEntries(ctx, itemType, itemID)
	if err != nil {
		r.log.Warn("ledger source unavailable", zap.Error(err))
		return nil
	}
	events := make([]domain.HistoryEvent, 0, len(entries))
	for _, e := range entries {
		desc, ok := ledgerDescriptions[e.Kind]
		if !ok {
			desc = "Inventory transaction"
		}
		details := map[string]string{"quantity": e.Quantity.String()}
		if e.Notes != "" {
			details["notes"] = e.Notes
		}
		events = append(events, domain.HistoryEvent{
			Type:        e.Kind,
			Timestamp:   e.CreatedAt,
			Description: desc,
			User:        r.userName(ctx, e.UserID),
			Details:     details,
		})
	}
	return events
}

// warehouseTransferEvents projects the legacy transfer table, whose
// direction is implied by which of the four location columns carry a
// value. Unrecognized combinations fall back to a generic transfer.
func (r *HistoryResolver) warehouseTransferEvents(ctx context.Context, itemType domain.ItemType, itemID string, chem *domain.Chemical) []domain.HistoryEvent {
	records, err := r.store.ListWarehouseTransfers(ctx, itemType, itemID)
	if err != nil {
		r.log.Warn("warehouse transfer source unavailable", zap.Error(err))
		return nil
	}
	events := make([]domain.HistoryEvent, 0, len(records))
	for _, rec := range records {
		var eventType, desc string
		switch {
		case rec.FromWarehouseID != "" && rec.ToWarehouseID != "":
			eventType = domain.EventWarehouseToWarehouse
			desc = fmt.Sprintf("Transferred from %s to %s", r.warehouseName(ctx, rec.FromWarehouseID), r.warehouseName(ctx, rec.ToWarehouseID))
		case rec.FromWarehouseID != "" && rec.ToKitID != "":
			eventType = domain.EventWarehouseToKit
			desc = fmt.Sprintf("Transferred from %s to %s", r.warehouseName(ctx, rec.FromWarehouseID), r.kitName(ctx, rec.ToKitID))
		case rec.FromKitID != "" && rec.ToWarehouseID != "":
			eventType = domain.EventKitToWarehouse
			desc = fmt.Sprintf("Transferred from %s to %s", r.kitName(ctx, rec.FromKitID), r.warehouseName(ctx, rec.ToWarehouseID))
		case rec.FromKitID != "" && rec.ToKitID != "":
			eventType = domain.EventKitToKit
			desc = fmt.Sprintf("Transferred from %s to %s", r.kitName(ctx, rec.FromKitID), r.kitName(ctx, rec.ToKitID))
		default:
			eventType = domain.EventTransfer
			desc = "Transferred"
		}
		details := map[string]string{"quantity": rec.Quantity.String()}
		r.correlateChildLot(ctx, details, chem, rec.Quantity, rec.CreatedAt)
		events = append(events, domain.HistoryEvent{
			Type:        eventType,
			Timestamp:   rec.CreatedAt,
			Description: desc,
			User:        r.userName(ctx, rec.UserID),
			Details:     details,
		})
	}
	return events
}

// transferEvents projects transfers written by the coordinator, whose
// direction is explicit in the location type pair.
func (r *HistoryResolver) transferEvents(ctx context.Context, itemType domain.ItemType, itemID string, chem *domain.Chemical) []domain.HistoryEvent {
	transfers, err := r.store.ListTransfers(ctx, itemType, itemID)
	if err != nil {
		r.log.Warn("transfer source unavailable", zap.Error(err))
		return nil
	}
	events := make([]domain.HistoryEvent, 0, len(transfers))
	for _, t := range transfers {
		var eventType string
		switch {
		case t.From.Type == domain.LocationTypeWarehouse && t.To.Type == domain.LocationTypeWarehouse:
			eventType = domain.EventWarehouseToWarehouse
		case t.From.Type == domain.LocationTypeWarehouse && t.To.Type == domain.LocationTypeKit:
			eventType = domain.EventWarehouseToKit
		case t.From.Type == domain.LocationTypeKit && t.To.Type == domain.LocationTypeWarehouse:
			eventType = domain.EventKitToWarehouse
		case t.From.Type == domain.LocationTypeKit && t.To.Type == domain.LocationTypeKit:
			eventType = domain.EventKitToKit
		default:
			eventType = domain.EventTransfer
		}
		desc := fmt.Sprintf("Transferred from %s to %s", r.locationName(ctx, t.From), r.locationName(ctx, t.To))
		details := map[string]string{
			"quantity": t.Quantity.String(),
			"status":   string(t.Status),
		}
		r.correlateChildLot(ctx, details, chem, t.Quantity, t.CreatedAt)
		events = append(events, domain.HistoryEvent{
			Type:        eventType,
			Timestamp:   t.CreatedAt,
			Description: desc,
			User:        r.userName(ctx, t.Actor),
			Details:     details,
		})
	}
	return events
}

// correlateChildLot attaches the child lot a partial chemical transfer
// most likely produced. There is no foreign key from transfers to
// lineage, so the match is by parent lot plus creation time within the
// correlation window.
func (r *HistoryResolver) correlateChildLot(ctx context.Context, details map[string]string, chem *domain.Chemical, qty decimal.Decimal, ts time.Time) {
	if chem == nil || ts.IsZero() || !qty.LessThan(chem.Quantity) {
		return
	}
	children, err := r.store.FindChemicalsByParentLot(ctx, chem.LotNumber)
	if err != nil {
		r.log.Warn("child lot correlation failed", zap.String("lot", chem.LotNumber), zap.Error(err))
		return
	}
	for i := range children {
		delta := children[i].CreatedAt.Sub(ts)
		if delta < 0 {
			delta = -delta
		}
		if delta <= childLotCorrelationWindow {
			details["child_lot_number"] = children[i].LotNumber
			details["child_lot_status"] = string(children[i].Status)
			return
		}
	}
}

// checkoutEvents projects tool checkout rows; each yields the checkout
// and, if a return timestamp exists, the return.
func (r *HistoryResolver) checkoutEvents(ctx context.Context, toolID string) []domain.HistoryEvent {
	checkouts, err := r.store.ListToolCheckouts(ctx, toolID)
	if err != nil {
		r.log.Warn("checkout source unavailable", zap.Error(err))
		return nil
	}
	var events []domain.HistoryEvent
	for _, co := range checkouts {
		user := r.userName(ctx, co.UserID)
		details := map[string]string{}
		if co.Purpose != "" {
			details["purpose"] = co.Purpose
		}
		events = append(events, domain.HistoryEvent{
			Type:        domain.EventToolCheckout,
			Timestamp:   co.CheckedOutAt,
			Description: fmt.Sprintf("Checked out by %s", user),
			User:        user,
			Details:     details,
		})
		if co.ReturnedAt != nil {
			events = append(events, domain.HistoryEvent{
				Type:        domain.EventToolReturn,
				Timestamp:   *co.ReturnedAt,
				Description: fmt.Sprintf("Returned by %s", user),
				User:        user,
			})
		}
	}
	return events
}

func (r *HistoryResolver) chemicalIssuanceEvents(ctx context.Context, chemicalID string) []domain.HistoryEvent {
	issuances, err := r.store.ListChemicalIssuances(ctx, chemicalID)
	if err != nil {
		r.log.Warn("chemical issuance source unavailable", zap.Error(err))
		return nil
	}
	var events []domain.HistoryEvent
	for _, is := range issuances {
		user := r.userName(ctx, is.UserID)
		events = append(events, domain.HistoryEvent{
			Type:        domain.EventChemicalIssuance,
			Timestamp:   is.IssuedAt,
			Description: fmt.Sprintf("Issued %s to %s", is.Quantity, user),
			User:        user,
			Details:     map[string]string{"quantity": is.Quantity.String()},
		})
		if is.ReturnedAt != nil {
			events = append(events, domain.HistoryEvent{
				Type:        domain.EventChemicalReturn,
				Timestamp:   *is.ReturnedAt,
				Description: fmt.Sprintf("Returned by %s", user),
				User:        user,
			})
		}
	}
	return events
}

// kitIssuanceEvents matches by (part number, tracking number); kit
// issuance rows carry no item foreign key.
func (r *HistoryResolver) kitIssuanceEvents(ctx context.Context, identifier, trackingNumber string) []domain.HistoryEvent {
	issuances, err := r.store.ListKitIssuances(ctx, identifier, trackingNumber)
	if err != nil {
		r.log.Warn("kit issuance source unavailable", zap.Error(err))
		return nil
	}
	events := make([]domain.HistoryEvent, 0, len(issuances))
	for _, is := range issuances {
		events = append(events, domain.HistoryEvent{
			Type:        domain.EventKitIssuance,
			Timestamp:   is.IssuedAt,
			Description: fmt.Sprintf("Issued with %s", r.kitName(ctx, is.KitID)),
			User:        r.userName(ctx, is.UserID),
			Details:     map[string]string{"quantity": is.Quantity.String()},
		})
	}
	return events
}

// auditEvents is a best-effort textual correlation, not a relational
// join: an entry counts when its action is allow-listed and its details
// mention the identifier or tracking number.
func (r *HistoryResolver) auditEvents(ctx context.Context, identifier, trackingNumber string) []domain.HistoryEvent {
	terms := make([]string, 0, 2)
	if identifier != "" {
		terms = append(terms, identifier)
	}
	if trackingNumber != "" {
		terms = append(terms, trackingNumber)
	}
	entries, err := r.store.SearchAuditEntries(ctx, auditActionAllowList, terms)
	if err != nil {
		r.log.Warn("audit source unavailable", zap.Error(err))
		return nil
	}
	events := make([]domain.HistoryEvent, 0, len(entries))
	for _, e := range entries {
		events = append(events, domain.HistoryEvent{
			Type:        domain.EventAudit,
			Timestamp:   e.CreatedAt,
			Description: e.Details,
			User:        r.userName(ctx, e.UserID),
			Details:     map[string]string{"action": e.Action},
		})
	}
	return events
}

func (r *HistoryResolver) userName(ctx context.Context, userID string) string {
	if userID == "" {
		return "Unknown User"
	}
	name, err := r.store.GetUserName(ctx, userID)
	if err != nil || name == "" {
		return "Unknown User"
	}
	return name
}

func (r *HistoryResolver) warehouseName(ctx context.Context, id string) string {
	if wh, err := r.store.GetWarehouse(ctx, id); err == nil && wh != nil {
		return wh.Name
	}
	return "Unknown Warehouse"
}

func (r *HistoryResolver) kitName(ctx context.Context, id string) string {
	if kit, err := r.store.GetKit(ctx, id); err == nil && kit != nil {
		return kit.Name
	}
	return "Unknown Kit"
}

func (r *HistoryResolver) locationName(ctx context.Context, loc domain.LocationRef) string {
	switch loc.Type {
	case domain.LocationTypeWarehouse:
		return r.warehouseName(ctx, loc.ID)
	case domain.LocationTypeKit:
		return r.kitName(ctx, loc.ID)
	}
	return "Unknown Location"
}

// sortKeyLayout is fixed width so timestamps compare correctly as
// strings.
const sortKeyLayout = "2006-01-02 15:04:05.000000000"

// sortEvents orders newest first. Events without a timestamp sort as
// the empty string, which lands them last without dropping them.
func sortEvents(events []domain.HistoryEvent) []domain.HistoryEvent {
	type keyed struct {
		key   string
		event domain.HistoryEvent
	}
	ks := make([]keyed, len(events))
	for i, e := range events {
		k := ""
		if !e.Timestamp.IsZero() {
			k = e.Timestamp.UTC().Format(sortKeyLayout)
		}
		ks[i] = keyed{key: k, event: e}
	}
	sort.SliceStable(ks, func(i, j int) bool { return ks[i].key > ks[j].key })
	out := make([]domain.HistoryEvent, len(events))
	for i := range ks {
		out[i] = ks[i].event
	}
	return out
}
