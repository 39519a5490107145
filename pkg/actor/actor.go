// Package actor identifies the user or system performing an action. Services
// read it from the request context to make authorization decisions and to
// stamp approved_by, rejected_by and delivered_by columns.
package actor

import (
	"context"
	"fmt"
)

// Role names carried in access tokens
const (
	RoleSuperAdmin      = "super_admin"
	RoleDistrictOfficer = "district_officer"
	RoleCellOfficer     = "cell_officer"
	RoleFarmer          = "farmer"
	RoleCitizen         = "citizen"
)

// SystemID is the actor ID used for background jobs.
const SystemID = "00000000-0000-0000-0000-000000000000"

// Actor represents the entity performing an action in the system.
type Actor struct {
	// ID is the unique identifier of the actor (user ID)
	ID string `json:"id"`

	// Role is one of the Role* constants
	Role string `json:"role"`

	// ManagedDistrictID is set for district officers
	ManagedDistrictID *string `json:"managed_district_id,omitempty"`

	// ManagedCellID is set for cell officers
	ManagedCellID *string `json:"managed_cell_id,omitempty"`
}

// String returns a string representation of the actor for logging
func (a *Actor) String() string {
	if a == nil {
		return "system"
	}
	return fmt.Sprintf("%s (%s)", a.ID, a.Role)
}

// IsSuperAdmin reports whether the actor may act on any scope.
func (a *Actor) IsSuperAdmin() bool {
	return a != nil && a.Role == RoleSuperAdmin
}

// IsFarmer reports whether the actor submits requests on their own behalf.
func (a *Actor) IsFarmer() bool {
	return a != nil && (a.Role == RoleFarmer || a.Role == RoleCitizen)
}

// ManagesCell reports whether the actor is the cell officer of cellID.
func (a *Actor) ManagesCell(cellID string) bool {
	if a == nil || a.Role != RoleCellOfficer || a.ManagedCellID == nil {
		return false
	}
	return *a.ManagedCellID == cellID
}

// ManagesDistrict reports whether the actor is the district officer of districtID.
func (a *Actor) ManagesDistrict(districtID string) bool {
	if a == nil || a.Role != RoleDistrictOfficer || a.ManagedDistrictID == nil {
		return false
	}
	return *a.ManagedDistrictID == districtID
}

// contextKey is the type for context keys to avoid collisions
type contextKey string

const actorContextKey contextKey = "actor"

// FromContext retrieves the Actor from the context.
// Returns nil if no actor is present (e.g., system operations).
func FromContext(ctx context.Context) *Actor {
	if ctx == nil {
		return nil
	}
	actor, ok := ctx.Value(actorContextKey).(*Actor)
	if !ok {
		return nil
	}
	return actor
}

// WithActor returns a new context with the Actor attached.
func WithActor(ctx context.Context, a *Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorContextKey, a)
}

// SystemActor returns an Actor representing the system itself.
func SystemActor() *Actor {
	return &Actor{ID: SystemID, Role: RoleSuperAdmin}
}

// IsSystem returns true if the actor represents the system.
func (a *Actor) IsSystem() bool {
	if a == nil {
		return true
	}
	return a.ID == SystemID
}
