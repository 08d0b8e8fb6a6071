package audit

import (
	"encoding/json"
	"time"

	"github.com/mooncast/backoffice/internal/record"
)

const entryTable = "audit_logs"

// Entry is one immutable audit record: who changed what, from where,
// with a field-level before/after diff. Entries are created only by the
// Trail and never updated.
type Entry struct {
	ID           string
	ActorID      *uint64
	Action       string
	ResourceType string
	ResourceID   string
	IP           string
	UserAgent    string
	Changes      json.RawMessage
	Metadata     json.RawMessage
	CreatedAt    time.Time
}

func (e *Entry) Table() string      { return entryTable }
func (e *Entry) PrimaryKey() string { return "id" }

func (e *Entry) Fields() map[string]record.Value {
	var actor record.Value
	if e.ActorID == nil {
		actor = record.Null()
	} else {
		actor = record.Uint(*e.ActorID)
	}
	return map[string]record.Value{
		"id":            record.StringOrNull(e.ID),
		"actor_id":      actor,
		"action":        record.String(e.Action),
		"resource_type": record.String(e.ResourceType),
		"resource_id":   record.StringOrNull(e.ResourceID),
		"ip":            record.StringOrNull(e.IP),
		"user_agent":    record.StringOrNull(e.UserAgent),
		"changes":       record.JSON(e.Changes),
		"metadata":      record.JSON(e.Metadata),
		"created_at":    record.Time(e.CreatedAt),
	}
}

func (e *Entry) SetField(name string, v record.Value) {
	switch name {
	case "id":
		e.ID = v.Text()
	case "actor_id":
		if v.IsNull() {
			e.ActorID = nil
		} else {
			id := v.Uint64()
			e.ActorID = &id
		}
	case "action":
		e.Action = v.Text()
	case "resource_type":
		e.ResourceType = v.Text()
	case "resource_id":
		e.ResourceID = v.Text()
	case "ip":
		e.IP = v.Text()
	case "user_agent":
		e.UserAgent = v.Text()
	case "changes":
		e.Changes = json.RawMessage(v.Text())
	case "metadata":
		e.Metadata = json.RawMessage(v.Text())
	case "created_at":
		e.CreatedAt = v.Time()
	}
}

func (e *Entry) Fillable() []string {
	return []string{"actor_id", "action", "resource_type", "resource_id", "ip", "user_agent", "changes", "metadata", "created_at"}
}

func (e *Entry) Hidden() []string { return nil }
