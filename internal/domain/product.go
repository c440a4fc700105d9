package domain

import (
	"strings"
	"time"
)

// Identity is an opaque caller reference supplied by the authentication
// layer, typically a public-key-derived address. The registry trusts it
// verbatim and never inspects its structure.
type Identity string

// IsZero reports whether the identity is missing.
func (i Identity) IsZero() bool {
	return strings.TrimSpace(string(i)) == ""
}

func (i Identity) String() string {
	return string(i)
}

// Role is a grantable capability over the registry.
type Role string

const (
	RoleManufacturer Role = "manufacturer"
	RoleVerifier     Role = "verifier"
)

// Product represents a tracked physical item and its custody chain
type Product struct {
	ID               int64        `json:"id" db:"id"`
	Name             string       `json:"name" db:"name"`
	ManufacturerName string       `json:"manufacturer_name" db:"manufacturer_name"`
	ManufacturedAt   time.Time    `json:"manufactured_at" db:"manufactured_at"`
	CurrentLocation  string       `json:"current_location" db:"current_location"`
	CurrentOwner     Identity     `json:"current_owner" db:"current_owner"`
	Verified         bool         `json:"verified" db:"verified"`
	Checkpoints      []Checkpoint `json:"checkpoints"`
}
