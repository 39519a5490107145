package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Aggregate types recorded on outbox rows
const (
	AggregateResourceRequest = "resource_request"
	AggregateCellRequest     = "cell_resource_request"
	AggregateDistrictBatch   = "district_batch"
	AggregateFarmerBalance   = "farmer_balance"
)

// Event is a domain event committed together with the ledger change that
// produced it. Payload is already encoded so the outbox stores it as is.
type Event struct {
	ID            string          `json:"id" db:"id"`
	Type          string          `json:"type" db:"event_type"`
	AggregateType string          `json:"aggregate_type" db:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id" db:"aggregate_id"`
	OccurredAt    time.Time       `json:"occurred_at" db:"occurred_at"`
	Payload       json.RawMessage `json:"payload" db:"payload"`
}

// NewEvent encodes payload and assigns a fresh id
func NewEvent(eventType, aggregateType, aggregateID string, at time.Time, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		OccurredAt:    at,
		Payload:       raw,
	}, nil
}
