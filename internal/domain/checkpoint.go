package domain

import (
	"fmt"
	"time"
)

// CheckpointEvent identifies the kind of custody event a checkpoint records.
type CheckpointEvent string

const (
	CheckpointCreated     CheckpointEvent = "created"
	CheckpointTransferred CheckpointEvent = "transferred"
	CheckpointVerified    CheckpointEvent = "verified"
)

// Checkpoint is one entry of a product's append-only audit log. Entries are
// stored structured and rendered to text only at the presentation boundary.
type Checkpoint struct {
	Seq        int             `json:"seq" db:"seq"`
	Event      CheckpointEvent `json:"event" db:"event"`
	Location   string          `json:"location,omitempty" db:"location"`
	Actor      Identity        `json:"actor,omitempty" db:"actor"`
	RecordedAt time.Time       `json:"recorded_at" db:"recorded_at"`
}

// Render produces the human-readable log line for the checkpoint. The
// timestamp is rendered as decimal unix seconds.
func (c Checkpoint) Render() string {
	switch c.Event {
	case CheckpointTransferred:
		return fmt.Sprintf("Transferred to %s at %d", c.Location, c.RecordedAt.Unix())
	case CheckpointVerified:
		return fmt.Sprintf("Verified by %s at %d", c.Actor, c.RecordedAt.Unix())
	default:
		return fmt.Sprintf("Created at %s at %d", c.Location, c.RecordedAt.Unix())
	}
}
