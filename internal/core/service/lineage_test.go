package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvargas87/toolcrib/internal/core/domain"
	"github.com/nvargas87/toolcrib/internal/port"
)

func TestSequenceLabel(t *testing.T) {
	cases := []struct {
		n    int
		want string
	}{
		{0, "A"},
		{1, "B"},
		{25, "Z"},
		{26, "AA"},
		{27, "AB"},
		{51, "AZ"},
		{52, "BA"},
		{701, "ZZ"},
		{702, "AAA"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SequenceLabel(tc.n), "sequence %d", tc.n)
	}
}

func seedChemical(store *memStore, id, lot string, qty int64) domain.Chemical {
	chem := domain.Chemical{
		ID:           id,
		PartNumber:   "CHEM-100",
		LotNumber:    lot,
		Description:  "Sealant",
		Manufacturer: "AeroChem",
		Unit:         "ml",
		Category:     "sealant",
		MinStock:     decimal.NewFromInt(10),
		Quantity:     decimal.NewFromInt(qty),
		Status:       domain.ItemStatusAvailable,
		WarehouseID:  "W1",
		CreatedAt:    time.Now().Add(-time.Hour),
		UpdatedAt:    time.Now().Add(-time.Hour),
	}
	store.chemicals[id] = chem
	return chem
}

func splitOnce(t *testing.T, store *memStore, parentID string, qty int64) (*domain.Chemical, *domain.Chemical) {
	t.Helper()
	svc := NewLotLineageService(nil)
	var child *domain.Chemical
	err := store.Transact(context.Background(), func(tx port.Tx) error {
		parent, err := tx.GetChemicalForUpdate(context.Background(), parentID)
		require.NoError(t, err)
		require.NotNil(t, parent)
		child, err = svc.Split(context.Background(), tx, parent, decimal.NewFromInt(qty))
		return err
	})
	require.NoError(t, err)
	got := store.chemicals[parentID]
	return &got, child
}

func TestSplit_QuantityConservation(t *testing.T) {
	store := newMemStore()
	seedChemical(store, "c1", "L1", 100)

	parent, child := splitOnce(t, store, "c1", 30)

	assert.True(t, parent.Quantity.Equal(decimal.NewFromInt(70)), "parent quantity %s", parent.Quantity)
	assert.True(t, child.Quantity.Equal(decimal.NewFromInt(30)))
	assert.Equal(t, "L1-A", child.LotNumber)
	assert.Equal(t, "L1", child.ParentLotNumber)
	assert.Equal(t, 0, child.LotSequence)
	assert.Equal(t, 1, parent.LotSequence)

	// descriptive fields copied from the parent
	assert.Equal(t, "CHEM-100", child.PartNumber)
	assert.Equal(t, "AeroChem", child.Manufacturer)
	assert.Equal(t, "ml", child.Unit)
	assert.True(t, child.MinStock.Equal(decimal.NewFromInt(10)))

	require.Len(t, store.lineage, 1)
	assert.Equal(t, "L1", store.lineage[0].ParentLotNumber)
	assert.Equal(t, "L1-A", store.lineage[0].ChildLotNumber)
	assert.Equal(t, 0, store.lineage[0].Sequence)
}

func TestSplit_LabelsAdvancePerParent(t *testing.T) {
	store := newMemStore()
	seedChemical(store, "c1", "L1", 100)

	_, first := splitOnce(t, store, "c1", 30)
	parent, second := splitOnce(t, store, "c1", 10)

	assert.Equal(t, "L1-A", first.LotNumber)
	assert.Equal(t, "L1-B", second.LotNumber)
	assert.True(t, parent.Quantity.Equal(decimal.NewFromInt(60)))
	assert.Equal(t, 2, parent.LotSequence)
}

func TestSplit_CollisionAdvancesCounter(t *testing.T) {
	store := newMemStore()
	seedChemical(store, "c1", "L1", 100)
	// A pre-existing chemical already owns the first candidate label.
	seedChemical(store, "c9", "L1-A", 5)

	parent, child := splitOnce(t, store, "c1", 20)

	assert.Equal(t, "L1-B", child.LotNumber)
	assert.Equal(t, 2, parent.LotSequence)
}

func TestSplit_ChildCanBecomeParent(t *testing.T) {
	store := newMemStore()
	seedChemical(store, "c1", "L1", 100)

	_, child := splitOnce(t, store, "c1", 40)
	_, grandchild := splitOnce(t, store, child.ID, 15)

	assert.Equal(t, "L1-A-A", grandchild.LotNumber)
	assert.Equal(t, "L1-A", grandchild.ParentLotNumber)
}

func TestSplit_FullQuantityDepletesParent(t *testing.T) {
	store := newMemStore()
	seedChemical(store, "c1", "L1", 25)

	parent, child := splitOnce(t, store, "c1", 25)

	assert.True(t, parent.Quantity.IsZero())
	assert.Equal(t, domain.ItemStatusDepleted, parent.Status)
	assert.True(t, child.Quantity.Equal(decimal.NewFromInt(25)))
}

func TestSplit_RejectsBadQuantities(t *testing.T) {
	store := newMemStore()
	seedChemical(store, "c1", "L1", 10)
	svc := NewLotLineageService(nil)

	err := store.Transact(context.Background(), func(tx port.Tx) error {
		parent, _ := tx.GetChemicalForUpdate(context.Background(), "c1")
		_, err := svc.Split(context.Background(), tx, parent, decimal.Zero)
		return err
	})
	require.ErrorIs(t, err, domain.ErrInvalidQuantity)

	err = store.Transact(context.Background(), func(tx port.Tx) error {
		parent, _ := tx.GetChemicalForUpdate(context.Background(), "c1")
		_, err := svc.Split(context.Background(), tx, parent, decimal.NewFromInt(11))
		return err
	})
	require.ErrorIs(t, err, domain.ErrInsufficientQuantity)
}
