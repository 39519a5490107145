package domain

import "github.com/ibabi/ibabi-backend/pkg/errors"

// Transition is an operator action on a request
type Transition string

const (
	TransitionApprove Transition = "approve"
	TransitionReject  Transition = "reject"
	TransitionDeliver Transition = "deliver"
)

// Target returns the status a transition leads to
func (t Transition) Target() RequestStatus {
	switch t {
	case TransitionApprove:
		return StatusApproved
	case TransitionReject:
		return StatusRejected
	case TransitionDeliver:
		return StatusDelivered
	}
	return ""
}

var allowedFrom = map[Transition][]RequestStatus{
	TransitionApprove: {StatusPending},
	TransitionReject:  {StatusPending, StatusApproved},
	TransitionDeliver: {StatusApproved},
}

// CheckTransition returns TerminalState when t is not allowed from the
// current status. Nothing ever moves back to pending.
func CheckTransition(from RequestStatus, t Transition) error {
	for _, s := range allowedFrom[t] {
		if s == from {
			return nil
		}
	}
	return errors.TerminalState(string(from), string(t.Target()))
}
