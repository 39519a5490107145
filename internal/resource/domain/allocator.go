package domain

import (
	"sort"

	"github.com/ibabi/ibabi-backend/pkg/errors"
	"github.com/shopspring/decimal"
)

// Allocation is the part of a cell request served by one district batch
type Allocation struct {
	ID            string          `json:"id" db:"id"`
	CellRequestID string          `json:"cell_request_id" db:"cell_request_id"`
	BatchID       string          `json:"batch_id" db:"batch_id"`
	Quantity      decimal.Decimal `json:"quantity" db:"quantity"`
}

// SortBatches orders batches oldest first. The same order is used when
// locking them, so concurrent allocators never wait on each other in a cycle.
func SortBatches(batches []DistrictBatch) {
	sort.SliceStable(batches, func(i, j int) bool {
		a, b := batches[i], batches[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if a.Seq != b.Seq {
			return a.Seq < b.Seq
		}
		return a.ID < b.ID
	})
}

// TotalRemaining sums Remaining over batches
func TotalRemaining(batches []DistrictBatch) decimal.Decimal {
	total := decimal.Zero
	for i := range batches {
		total = total.Add(batches[i].Remaining())
	}
	return total
}

// Allocate takes needed from batches oldest first and raises each consumed
// batch's QuantityAllocatedToCells in place. When the batches hold less than
// needed it returns InsufficientStock and leaves every batch untouched.
func Allocate(batches []DistrictBatch, needed decimal.Decimal) ([]Allocation, error) {
	if !needed.IsPositive() {
		return nil, errors.ValidationField("quantity", "must be greater than zero")
	}

	available := TotalRemaining(batches)
	if available.LessThan(needed) {
		return nil, errors.InsufficientStock(
			"not enough district stock to approve this request",
			available.String(),
			needed.String(),
			needed.Sub(available).String(),
		)
	}

	SortBatches(batches)

	var allocations []Allocation
	rest := needed
	for i := range batches {
		if !rest.IsPositive() {
			break
		}
		remaining := batches[i].Remaining()
		if !remaining.IsPositive() {
			continue
		}
		take := decimal.Min(remaining, rest)
		batches[i].QuantityAllocatedToCells = batches[i].QuantityAllocatedToCells.Add(take)
		rest = rest.Sub(take)
		allocations = append(allocations, Allocation{
			BatchID:  batches[i].ID,
			Quantity: take,
		})
	}

	return allocations, nil
}
