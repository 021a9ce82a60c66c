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

// maxLabelAttempts bounds the collision-retry loop when deriving a
// child lot label. Hitting it means the parent's namespace is exhausted
// by pre-existing lot numbers, which indicates corrupt data.
const maxLabelAttempts = 10000

// LotLineageService derives child lots when a partial quantity of a
// bulk chemical is drawn out of a parent lot.
type LotLineageService struct {
	log *zap.Logger
}

func NewLotLineageService(log *zap.Logger) *LotLineageService {
	if log == nil {
		log = zap.NewNop()
	}
	return &LotLineageService{log: log}
}

// SequenceLabel converts a lot sequence counter to its bijective
// base-26 letter label: 0 is "A", 25 is "Z", 26 is "AA", 27 is "AB".
func SequenceLabel(n int) string {
	var buf [8]byte
	i := len(buf)
	n++
	for n > 0 {
		n--
		i--
		buf[i] = byte('A' + n%26)
		n /= 26
	}
	return string(buf[i:])
}

// Split carves quantity out of parent into a new child chemical owned
// by the caller's destination. It mutates the parent in place (quantity,
// lot sequence, status) and persists parent, child and the lineage row
// on tx, so the whole split commits or rolls back with the enclosing
// transfer.
func (s *LotLineageService) Split(ctx context.Context, tx port.Tx, parent *domain.Chemical, quantity decimal.Decimal) (*domain.Chemical, error) {
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("%w: split quantity %s", domain.ErrInvalidQuantity, quantity)
	}
	if quantity.GreaterThan(parent.Quantity) {
		return nil, fmt.Errorf("%w: split quantity %s exceeds parent lot %s quantity %s",
			domain.ErrInsufficientQuantity, quantity, parent.LotNumber, parent.Quantity)
	}

	seq := parent.LotSequence
	var childLot string
	for attempt := 0; ; attempt++ {
		if attempt >= maxLabelAttempts {
			return nil, fmt.Errorf("no free child lot label for parent lot %s after %d attempts", parent.LotNumber, maxLabelAttempts)
		}
		candidate := fmt.Sprintf("%s-%s", parent.LotNumber, SequenceLabel(seq))
		exists, err := tx.ChemicalLotExists(ctx, candidate)
		if err != nil {
			return nil, fmt.Errorf("check lot number %s: %w", candidate, err)
		}
		if !exists {
			childLot = candidate
			break
		}
		// Collision with a pre-existing lot number: burn the sequence
		// value and try the next label.
		seq++
	}

	now := time.Now()
	child := &domain.Chemical{
		ID:              uuid.NewString(),
		PartNumber:      parent.PartNumber,
		LotNumber:       childLot,
		ParentLotNumber: parent.LotNumber,
		LotSequence:     0,
		Description:     parent.Description,
		Manufacturer:    parent.Manufacturer,
		Unit:            parent.Unit,
		Category:        parent.Category,
		ExpirationDate:  parent.ExpirationDate,
		MinStock:        parent.MinStock,
		Quantity:        quantity,
		Status:          domain.ItemStatusAvailable,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := tx.InsertChemical(ctx, *child); err != nil {
		return nil, fmt.Errorf("insert child lot %s: %w", childLot, err)
	}

	if err := tx.InsertLotLineage(ctx, domain.LotLineage{
		ID:              uuid.NewString(),
		ParentLotNumber: parent.LotNumber,
		Sequence:        seq,
		ChildLotNumber:  childLot,
		Quantity:        quantity,
		CreatedAt:       now,
	}); err != nil {
		return nil, fmt.Errorf("insert lot lineage: %w", err)
	}

	parent.Quantity = parent.Quantity.Sub(quantity)
	parent.LotSequence = seq + 1
	parent.UpdatedAt = now
	if parent.Quantity.IsZero() {
		parent.Status = domain.ItemStatusDepleted
	}
	if err := tx.UpdateChemical(ctx, *parent); err != nil {
		return nil, fmt.Errorf("update parent lot %s: %w", parent.LotNumber, err)
	}

	s.log.Info("lot split",
		zap.String("parent_lot", parent.LotNumber),
		zap.String("child_lot", childLot),
		zap.String("quantity", quantity.String()),
		zap.String("parent_remaining", parent.Quantity.String()))

	return child, nil
}
