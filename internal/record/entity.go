package record

import "context"

// Entity is the contract a persisted model implements. Fields returns
// every column as currently known; SetField accepts any known column so
// rows can be loaded back, while write paths consult Fillable to decide
// which columns external code may persist. Hidden columns exist in
// storage but are stripped from serialized views.
type Entity interface {
	Table() string
	PrimaryKey() string
	Fields() map[string]Value
	SetField(name string, v Value)
	Fillable() []string
	Hidden() []string
}

// Action kinds recorded for mutations.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Change is one field's before/after pair.
type Change struct {
	From Value
	To   Value
}

// Auditor receives field-level change sets after a mutation commits.
// Implementations are best-effort: they must never fail the mutation
// they describe.
type Auditor interface {
	RecordChange(ctx context.Context, action, resourceType, resourceID string, changes map[string]Change, extra map[string]any)
}

// Fill mass-assigns attributes onto an entity, applying only fillable
// names. Writes to unknown or non-fillable names are silently ignored;
// callers can hand over raw request maps without pre-filtering.
func Fill(e Entity, attrs map[string]Value) {
	fillable := make(map[string]struct{}, len(e.Fillable()))
	for _, f := range e.Fillable() {
		fillable[f] = struct{}{}
	}
	for name, v := range attrs {
		if _, ok := fillable[name]; ok {
			e.SetField(name, v)
		}
	}
}

// Load sets every column of a fetched row onto the entity, including
// non-fillable ones such as the primary key and timestamps.
func Load(e Entity, row map[string]Value) {
	for name, v := range row {
		e.SetField(name, v)
	}
}

// Serialize returns the external view of an entity: all fields with the
// hidden set stripped, values unwrapped to plain Go types.
func Serialize(e Entity) map[string]any {
	hidden := make(map[string]struct{}, len(e.Hidden()))
	for _, h := range e.Hidden() {
		hidden[h] = struct{}{}
	}
	out := make(map[string]any)
	for name, v := range e.Fields() {
		if _, ok := hidden[name]; ok {
			continue
		}
		out[name] = v.Arg()
	}
	return out
}

// diff returns the fields of after that differ from before, restricted
// to the given column set. Unchanged fields never appear.
func diff(before, after map[string]Value, columns []string) map[string]Change {
	changes := make(map[string]Change)
	for _, col := range columns {
		newV, ok := after[col]
		if !ok {
			continue
		}
		oldV, had := before[col]
		if !had {
			oldV = Null()
		}
		if !oldV.Equal(newV) {
			changes[col] = Change{From: oldV, To: newV}
		}
	}
	return changes
}
