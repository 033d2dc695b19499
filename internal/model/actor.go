package model

// Role names as issued by the identity provider
const (
	RoleAdmin                     = "admin"
	RoleHeadOffice                = "head_office"
	RoleDistributor               = "distributor"
	RoleDistributorRepresentative = "distributor_representative"
	RoleDirectShowroom            = "direct_showroom"
	RoleDirectRepresentative      = "direct_representative"
)

// Actor is the opaque identity of the user performing an operation.
// It is supplied by the identity provider; nothing here authenticates it.
type Actor struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Role          string `json:"role"`
	DistributorID string `json:"distributor_id,omitempty"`
}

// System is the actor recorded for background repairs
var System = Actor{ID: "", Name: "System", Role: RoleAdmin}
