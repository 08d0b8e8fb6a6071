package audit

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mooncast/backoffice/internal/metrics"
	"github.com/mooncast/backoffice/internal/record"
)

// Redacted replaces both sides of any change whose field name looks
// sensitive, regardless of the actual value.
const Redacted = "[REDACTED]"

// Unserializable stands in for values that cannot be JSON-encoded.
const Unserializable = "[UNSERIALIZABLE]"

// sensitiveFragments flag field names by case-insensitive substring
// match. "refresh" and "verification" cover token columns whose names
// don't contain "token".
var sensitiveFragments = []string{"password", "token", "secret", "otp", "verification", "refresh"}

// Trail sanitizes change sets and persists them as audit entries. All
// failures are reported to the log and metrics, never to the caller:
// audit writes are a side channel of the mutation they describe.
type Trail struct {
	store *record.Store
	log   *logrus.Logger
}

func NewTrail(store *record.Store, log *logrus.Logger) *Trail {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Trail{store: store, log: log}
}

// RecordChange implements record.Auditor. It no-ops when auditing is
// disabled, suppressed, or the resource type is ignored; redacts
// sensitive fields; normalizes values; merges request metadata under
// caller extras; and persists the entry through the same record store,
// with re-entrancy suppressed for the duration of that write.
func (t *Trail) RecordChange(ctx context.Context, action, resourceType, resourceID string, changes map[string]record.Change, extra map[string]any) {
	ac := FromContext(ctx)
	if ac == nil {
		// No request context; audit with default settings and no actor
		// so background jobs still leave a trail.
		ac = NewContext()
	}
	if ac.skips(resourceType) {
		return
	}
	if len(changes) == 0 {
		return
	}

	changesJSON := encodeChanges(changes)

	meta := ac.RequestMeta()
	md := map[string]any{
		"method":     meta.Method,
		"path":       meta.Path,
		"query":      meta.Query,
		"actor_role": ac.ActorRole(),
	}
	for k, v := range extra {
		md[k] = v
	}
	metaJSON, err := json.Marshal(md)
	if err != nil {
		metaJSON = []byte(`{}`)
	}

	entry := &Entry{
		ID:           uuid.NewString(),
		ActorID:      ac.ActorID(),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IP:           meta.IP,
		UserAgent:    meta.UserAgent,
		Changes:      changesJSON,
		Metadata:     metaJSON,
		CreatedAt:    time.Now().UTC(),
	}

	// Persisting the entry goes through the same Store.Save path; the
	// suppression flag keeps that write from auditing itself. Cleared
	// unconditionally so a failed write cannot wedge the request.
	ac.suppressed = true
	defer func() { ac.suppressed = false }()

	if err := t.store.Save(ctx, entry); err != nil {
		metrics.AuditWriteFailures.Inc()
		t.log.WithError(err).WithFields(logrus.Fields{
			"resource_type": resourceType,
			"resource_id":   resourceID,
			"action":        action,
		}).Error("audit: entry write failed")
		return
	}
	metrics.AuditEntriesWritten.Inc()
}

// encodeChanges renders {field: {from, to}} with redaction and value
// normalization applied.
func encodeChanges(changes map[string]record.Change) json.RawMessage {
	out := make(map[string]map[string]any, len(changes))
	for field, ch := range changes {
		if isSensitive(field) {
			out[field] = map[string]any{"from": Redacted, "to": Redacted}
			continue
		}
		out[field] = map[string]any{
			"from": normalize(ch.From),
			"to":   normalize(ch.To),
		}
	}
	b, err := json.Marshal(out)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}

func isSensitive(field string) bool {
	lower := strings.ToLower(field)
	for _, frag := range sensitiveFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// normalize maps a column value to its audit representation: timestamps
// to RFC 3339 strings, JSON payloads decoded so they nest instead of
// double-encoding, scalars unchanged. Anything that fails to encode
// degrades to the unserializable marker instead of raising.
func normalize(v record.Value) any {
	switch v.Kind() {
	case record.KindNull:
		return nil
	case record.KindTime:
		return v.Time().Format(time.RFC3339)
	case record.KindJSON:
		var decoded any
		if err := json.Unmarshal(v.Raw(), &decoded); err != nil {
			return Unserializable
		}
		return decoded
	default:
		return v.Arg()
	}
}
