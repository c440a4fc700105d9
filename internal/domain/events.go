package domain

import "github.com/google/uuid"

// Notification kinds published to the configured sink, one per accepted
// mutating call, in commit order. Failed calls and reads never notify.
const (
	EventProductCreated     = "product_created"
	EventProductTransferred = "product_transferred"
	EventProductVerified    = "product_verified"
)

// Event is a provenance notification emitted after a successful commit.
type Event interface {
	EventKind() string
	ProductKey() int64
}

// ProductCreated announces a new product entering the registry.
type ProductCreated struct {
	EventID      uuid.UUID `json:"event_id"`
	ProductID    int64     `json:"product_id"`
	Name         string    `json:"name"`
	Manufacturer string    `json:"manufacturer"`
}

func (ProductCreated) EventKind() string { return EventProductCreated }

func (e ProductCreated) ProductKey() int64 { return e.ProductID }

// ProductTransferred announces a custody change.
type ProductTransferred struct {
	EventID   uuid.UUID `json:"event_id"`
	ProductID int64     `json:"product_id"`
	From      Identity  `json:"from"`
	To        Identity  `json:"to"`
	Location  string    `json:"location"`
}

func (ProductTransferred) EventKind() string { return EventProductTransferred }

func (e ProductTransferred) ProductKey() int64 { return e.ProductID }

// ProductVerified announces a successful verification.
type ProductVerified struct {
	EventID   uuid.UUID `json:"event_id"`
	ProductID int64     `json:"product_id"`
	Verifier  Identity  `json:"verifier"`
}

func (ProductVerified) EventKind() string { return EventProductVerified }

func (e ProductVerified) ProductKey() int64 { return e.ProductID }
