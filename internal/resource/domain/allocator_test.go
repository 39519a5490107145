package domain_test

import (
	"testing"
	"time"

	"github.com/ibabi/ibabi-backend/internal/resource/domain"
	"github.com/ibabi/ibabi-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func batch(id string, seq int64, created time.Time, added, allocated string) domain.DistrictBatch {
	return domain.DistrictBatch{
		ID:                       id,
		Seq:                      seq,
		DistrictID:               "d1",
		ProductID:                "p1",
		QuantityAdded:            dec(added),
		QuantityAllocatedToCells: dec(allocated),
		CreatedAt:                created,
	}
}

func TestAllocate_FIFO(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	// newer batch first in the slice; allocation must still start with b1
	batches := []domain.DistrictBatch{
		batch("b2", 2, t0.Add(time.Hour), "20", "0"),
		batch("b1", 1, t0, "10", "0"),
	}

	allocations, err := domain.Allocate(batches, dec("15"))
	require.NoError(t, err)
	require.Len(t, allocations, 2)

	assert.Equal(t, "b1", allocations[0].BatchID)
	assert.True(t, dec("10").Equal(allocations[0].Quantity))
	assert.Equal(t, "b2", allocations[1].BatchID)
	assert.True(t, dec("5").Equal(allocations[1].Quantity))

	assert.Equal(t, "b1", batches[0].ID)
	assert.True(t, batches[0].Remaining().IsZero())
	assert.True(t, dec("15").Equal(batches[1].Remaining()))
}

func TestAllocate_OldestSuffices(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	batches := []domain.DistrictBatch{
		batch("b1", 1, t0, "10", "0"),
		batch("b2", 2, t0.Add(time.Hour), "20", "0"),
	}

	allocations, err := domain.Allocate(batches, dec("8"))
	require.NoError(t, err)
	require.Len(t, allocations, 1)
	assert.Equal(t, "b1", allocations[0].BatchID)
	assert.True(t, batches[1].QuantityAllocatedToCells.IsZero())
}

func TestAllocate_SameInstantUsesSeq(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	batches := []domain.DistrictBatch{
		batch("bb", 7, t0, "5", "0"),
		batch("aa", 9, t0, "5", "0"),
	}

	allocations, err := domain.Allocate(batches, dec("3"))
	require.NoError(t, err)
	assert.Equal(t, "bb", allocations[0].BatchID)
}

func TestAllocate_SkipsExhaustedBatches(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	batches := []domain.DistrictBatch{
		batch("b1", 1, t0, "10", "10"),
		batch("b2", 2, t0.Add(time.Minute), "10", "4"),
	}

	allocations, err := domain.Allocate(batches, dec("6"))
	require.NoError(t, err)
	require.Len(t, allocations, 1)
	assert.Equal(t, "b2", allocations[0].BatchID)
	assert.True(t, batches[1].Remaining().IsZero())
}

func TestAllocate_AllOrNothing(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	batches := []domain.DistrictBatch{
		batch("b1", 1, t0, "5", "0"),
		batch("b2", 2, t0.Add(time.Hour), "7", "0"),
	}

	allocations, err := domain.Allocate(batches, dec("15"))
	require.Error(t, err)
	assert.Nil(t, allocations)
	assert.True(t, errors.Is(err, errors.ErrInsufficientStock))

	var appErr *errors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "12", appErr.Details["available"])
	assert.Equal(t, "15", appErr.Details["requested"])
	assert.Equal(t, "3", appErr.Details["shortfall"])

	for _, b := range batches {
		assert.True(t, b.QuantityAllocatedToCells.IsZero(), "batch %s changed", b.ID)
	}
}
