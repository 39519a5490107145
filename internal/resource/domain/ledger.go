package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DistrictBatch is one acquisition of stock by a district.
// Seq breaks ties between batches created in the same instant.
type DistrictBatch struct {
	ID                       string          `json:"id" db:"id"`
	Seq                      int64           `json:"-" db:"seq"`
	DistrictID               string          `json:"district_id" db:"district_id"`
	ProductID                string          `json:"product_id" db:"product_id"`
	QuantityAdded            decimal.Decimal `json:"quantity_added" db:"quantity_added"`
	QuantityAllocatedToCells decimal.Decimal `json:"quantity_allocated_to_cells" db:"quantity_allocated_to_cells"`
	AddedBy                  string          `json:"added_by" db:"added_by"`
	CreatedAt                time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt                time.Time       `json:"updated_at" db:"updated_at"`
}

// Remaining is the quantity not yet allocated to cells
func (b DistrictBatch) Remaining() decimal.Decimal {
	return b.QuantityAdded.Sub(b.QuantityAllocatedToCells)
}

// CellBalance is the stock a cell holds for one product
type CellBalance struct {
	ID                string          `json:"id" db:"id"`
	CellID            string          `json:"cell_id" db:"cell_id"`
	ProductID         string          `json:"product_id" db:"product_id"`
	QuantityAvailable decimal.Decimal `json:"quantity_available" db:"quantity_available"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

// Credit adds allocated stock
func (c *CellBalance) Credit(q decimal.Decimal) {
	c.QuantityAvailable = c.QuantityAvailable.Add(q)
}

// Debit removes stock; the caller checks availability first
func (c *CellBalance) Debit(q decimal.Decimal) {
	c.QuantityAvailable = c.QuantityAvailable.Sub(q)
}

// FarmerBalance tracks what a farmer received and consumed for one product
type FarmerBalance struct {
	ID               string          `json:"id" db:"id"`
	FarmerID         string          `json:"farmer_id" db:"farmer_id"`
	ProductID        string          `json:"product_id" db:"product_id"`
	QuantityAdded    decimal.Decimal `json:"quantity_added" db:"quantity_added"`
	QuantityDeducted decimal.Decimal `json:"quantity_deducted" db:"quantity_deducted"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// Remaining is what the farmer still holds
func (f FarmerBalance) Remaining() decimal.Decimal {
	return f.QuantityAdded.Sub(f.QuantityDeducted)
}

// Credit records a delivery
func (f *FarmerBalance) Credit(q decimal.Decimal) {
	f.QuantityAdded = f.QuantityAdded.Add(q)
}

// Deduct records consumption. It returns false and leaves the balance
// unchanged when amount exceeds Remaining.
func (f *FarmerBalance) Deduct(amount decimal.Decimal) bool {
	if amount.GreaterThan(f.Remaining()) {
		return false
	}
	f.QuantityDeducted = f.QuantityDeducted.Add(amount)
	return true
}

// FarmerDeduction is the audit row written for every deduction
type FarmerDeduction struct {
	ID        string          `json:"id" db:"id"`
	FarmerID  string          `json:"farmer_id" db:"farmer_id"`
	ProductID string          `json:"product_id" db:"product_id"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	ActorID   string          `json:"actor_id" db:"actor_id"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// Feedback is a farmer's rating of a delivered request
type Feedback struct {
	ID        string    `json:"id" db:"id"`
	RequestID string    `json:"request_id" db:"request_id"`
	FarmerID  string    `json:"farmer_id" db:"farmer_id"`
	Rating    int       `json:"rating" db:"rating"`
	Comment   *string   `json:"comment,omitempty" db:"comment"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Balances lists the ledger rows a transition touched, after the change
type Balances struct {
	DistrictBatches []DistrictBatch `json:"district_batches,omitempty"`
	CellBalance     *CellBalance    `json:"cell_balance,omitempty"`
	FarmerBalance   *FarmerBalance  `json:"farmer_balance,omitempty"`
}
