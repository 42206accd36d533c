package models

import "time"

// ChangeType tags a change stream event.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// ChangeEvent is one record-level change delivered by the realtime stream.
// Events carry no sequence numbers; delivery may be duplicated or reordered,
// so consumers must evaluate each event purely against its own payload.
type ChangeEvent struct {
	Type ChangeType

	// Deal is the current record for inserts and updates; nil for deletes.
	Deal *Deal

	// Prev is the previous record on updates when the stream provides it.
	// Informational only: admission decisions are driven entirely by Deal.
	Prev *Deal

	// DealID identifies the record for deletes, where only the key (and
	// sometimes a last-known copy in Prev) survives.
	DealID string

	ReceivedAt time.Time
}

// ID returns the deal identifier the event refers to, regardless of type.
func (e *ChangeEvent) ID() string {
	if e.Deal != nil {
		return e.Deal.ID
	}
	if e.DealID != "" {
		return e.DealID
	}
	if e.Prev != nil {
		return e.Prev.ID
	}
	return ""
}
