package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// Farmer-level request events
	EventRequestSubmitted = "resource.request.submitted"
	EventRequestApproved  = "resource.request.approved"
	EventRequestRejected  = "resource.request.rejected"
	EventRequestDelivered = "resource.request.delivered"

	// Cell-level request events
	EventCellRequestSubmitted = "resource.cell_request.submitted"
	EventCellRequestApproved  = "resource.cell_request.approved"
	EventCellRequestRejected  = "resource.cell_request.rejected"
	EventCellRequestDelivered = "resource.cell_request.delivered"

	// Ledger events
	EventStockAdded     = "resource.stock.added"
	EventFarmerCredited = "resource.farmer.credited"
	EventFarmerDeducted = "resource.farmer.deducted"

	EventFeedbackSubmitted = "resource.feedback.submitted"
)

// Exchange names
const (
	ExchangeResourceEvents = "resource.events"
	ExchangeDeadLetter     = "dlx.events"
)

// RoutingKeyAllResources matches every resource event.
const RoutingKeyAllResources = "resource.#"

// Event is the envelope carried on the wire
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with a fresh id and the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// GenerateEventID returns a new random event id
func GenerateEventID() string {
	return uuid.New().String()
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// RequestTransitionedEvent is published for every request status change,
// for both farmer-level and cell-level requests. Quantities are decimal strings.
type RequestTransitionedEvent struct {
	RequestID   string  `json:"request_id"`
	Kind        string  `json:"kind"`
	FromStatus  string  `json:"from_status,omitempty"`
	ToStatus    string  `json:"to_status"`
	ActorID     string  `json:"actor_id"`
	RequesterID string  `json:"requester_id"`
	ProductID   string  `json:"product_id"`
	CellID      string  `json:"cell_id"`
	DistrictID  string  `json:"district_id"`
	Quantity    string  `json:"quantity"`
	Comment     *string `json:"comment,omitempty"`

	// StrandedQuantity is set when an approved request is rejected; the
	// quantity stays where approval moved it.
	StrandedQuantity *string `json:"stranded_quantity,omitempty"`
}

// StockAddedEvent is published when a district batch is recorded
type StockAddedEvent struct {
	BatchID    string `json:"batch_id"`
	DistrictID string `json:"district_id"`
	ProductID  string `json:"product_id"`
	Quantity   string `json:"quantity"`
	AddedBy    string `json:"added_by"`
}

// FarmerBalanceEvent is published when a farmer balance is credited or deducted
type FarmerBalanceEvent struct {
	FarmerID  string  `json:"farmer_id"`
	ProductID string  `json:"product_id"`
	Amount    string  `json:"amount"`
	Remaining string  `json:"remaining"`
	RequestID *string `json:"request_id,omitempty"`
}

// FeedbackSubmittedEvent is published when a farmer rates a delivered request
type FeedbackSubmittedEvent struct {
	FeedbackID string  `json:"feedback_id"`
	RequestID  string  `json:"request_id"`
	FarmerID   string  `json:"farmer_id"`
	Rating     int     `json:"rating"`
	Comment    *string `json:"comment,omitempty"`
}
