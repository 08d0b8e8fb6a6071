package record

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"testing"

	_ "github.com/glebarez/go-sqlite"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const noteSchema = `
CREATE TABLE notes (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	title      TEXT NOT NULL,
	body       TEXT,
	rating     INTEGER NOT NULL DEFAULT 0,
	is_pinned  INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

// note is a minimal entity used to exercise the store.
type note struct {
	fields map[string]Value
}

func newNote() *note { return &note{fields: map[string]Value{}} }

func (n *note) Table() string      { return "notes" }
func (n *note) PrimaryKey() string { return "id" }
func (n *note) Fields() map[string]Value {
	out := make(map[string]Value, len(n.fields))
	for k, v := range n.fields {
		out[k] = v
	}
	return out
}
func (n *note) SetField(name string, v Value) { n.fields[name] = v }
func (n *note) Fillable() []string            { return []string{"title", "body", "rating", "is_pinned"} }
func (n *note) Hidden() []string              { return []string{"body"} }

type auditCall struct {
	action       string
	resourceType string
	resourceID   string
	changes      map[string]Change
	extra        map[string]any
}

type recordingAuditor struct {
	mu    sync.Mutex
	calls []auditCall
}

func (r *recordingAuditor) RecordChange(ctx context.Context, action, resourceType, resourceID string, changes map[string]Change, extra map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, auditCall{action, resourceType, resourceID, changes, extra})
}

func newTestStore(t *testing.T) (*Store, *recordingAuditor) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(noteSchema)
	require.NoError(t, err)

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	store := NewStore(db, log, Options{})
	rec := &recordingAuditor{}
	store.SetAuditor(rec)
	return store, rec
}

func TestSaveInsertAssignsKeyAndReloadsDefaults(t *testing.T) {
	store, rec := newTestStore(t)
	ctx := context.Background()

	n := newNote()
	n.SetField("title", String("hello"))
	n.SetField("body", String("first note"))
	require.NoError(t, store.Save(ctx, n))

	fields := n.Fields()
	assert.Greater(t, fields["id"].Int64(), int64(0))
	// Defaults become visible after the post-insert reload.
	assert.Equal(t, int64(0), fields["rating"].Int64())
	assert.False(t, fields["created_at"].Time().IsZero())

	require.Len(t, rec.calls, 1)
	call := rec.calls[0]
	assert.Equal(t, ActionCreate, call.action)
	assert.Equal(t, "notes", call.resourceType)
	assert.Equal(t, fields["id"].Text(), call.resourceID)
	require.Contains(t, call.changes, "title")
	assert.True(t, call.changes["title"].From.IsNull())
	assert.Equal(t, "hello", call.changes["title"].To.Text())
}

func TestSaveUpdateAuditsOnlyChangedFields(t *testing.T) {
	store, rec := newTestStore(t)
	ctx := context.Background()

	n := newNote()
	n.SetField("title", String("draft"))
	n.SetField("rating", Int(2))
	require.NoError(t, store.Save(ctx, n))
	rec.calls = nil

	n.SetField("title", String("final"))
	require.NoError(t, store.Save(ctx, n))

	require.Len(t, rec.calls, 1)
	call := rec.calls[0]
	assert.Equal(t, ActionUpdate, call.action)
	require.Len(t, call.changes, 1)
	assert.Equal(t, "draft", call.changes["title"].From.Text())
	assert.Equal(t, "final", call.changes["title"].To.Text())
}

func TestSaveUnchangedEmitsNoAuditAndNoWrite(t *testing.T) {
	store, rec := newTestStore(t)
	ctx := context.Background()

	n := newNote()
	n.SetField("title", String("same"))
	require.NoError(t, store.Save(ctx, n))
	rec.calls = nil

	require.NoError(t, store.Save(ctx, n))
	assert.Empty(t, rec.calls)
}

func TestSaveBoolIntEquivalenceIsNotAChange(t *testing.T) {
	store, rec := newTestStore(t)
	ctx := context.Background()

	n := newNote()
	n.SetField("title", String("pin me"))
	n.SetField("is_pinned", Bool(true))
	require.NoError(t, store.Save(ctx, n))
	rec.calls = nil

	// SQLite hands the column back as Int(1); resaving Bool(true) must
	// not register a field change.
	n.SetField("is_pinned", Bool(true))
	require.NoError(t, store.Save(ctx, n))
	assert.Empty(t, rec.calls)
}

func TestSaveIgnoresNonFillableEdits(t *testing.T) {
	store, rec := newTestStore(t)
	ctx := context.Background()

	n := newNote()
	n.SetField("title", String("fixed"))
	require.NoError(t, store.Save(ctx, n))
	rec.calls = nil

	n.SetField("created_at", String("1999-01-01 00:00:00"))
	require.NoError(t, store.Save(ctx, n))
	assert.Empty(t, rec.calls)

	reloaded := newNote()
	require.NoError(t, store.Find(ctx, reloaded, n.Fields()["id"]))
	assert.NotEqual(t, "1999-01-01 00:00:00", reloaded.Fields()["created_at"].Text())
}

func TestFillAppliesOnlyFillable(t *testing.T) {
	n := newNote()
	Fill(n, map[string]Value{
		"title": String("filled"),
		"id":    Int(99),
	})
	assert.Equal(t, "filled", n.fields["title"].Text())
	_, hasID := n.fields["id"]
	assert.False(t, hasID)
}

func TestSerializeStripsHidden(t *testing.T) {
	n := newNote()
	n.SetField("title", String("visible"))
	n.SetField("body", String("secret prose"))

	out := Serialize(n)
	assert.Equal(t, "visible", out["title"])
	_, hasBody := out["body"]
	assert.False(t, hasBody)
}

func TestDeleteAuditsValuesToNull(t *testing.T) {
	store, rec := newTestStore(t)
	ctx := context.Background()

	n := newNote()
	n.SetField("title", String("doomed"))
	require.NoError(t, store.Save(ctx, n))
	rec.calls = nil

	require.NoError(t, store.Delete(ctx, n))

	require.Len(t, rec.calls, 1)
	call := rec.calls[0]
	assert.Equal(t, ActionDelete, call.action)
	require.Contains(t, call.changes, "title")
	assert.Equal(t, "doomed", call.changes["title"].From.Text())
	assert.True(t, call.changes["title"].To.IsNull())

	err := store.Find(ctx, newNote(), n.Fields()["id"])
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteWithoutKeyReturnsNotFound(t *testing.T) {
	store, _ := newTestStore(t)
	assert.ErrorIs(t, store.Delete(context.Background(), newNote()), ErrNotFound)
}

func TestFindMissingRowReturnsNotFound(t *testing.T) {
	store, _ := newTestStore(t)
	err := store.Find(context.Background(), newNote(), Int(4242))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveWithPresetKeyInserts(t *testing.T) {
	store, rec := newTestStore(t)
	ctx := context.Background()

	n := newNote()
	n.SetField("id", Int(77))
	n.SetField("title", String("explicit key"))
	require.NoError(t, store.Save(ctx, n))

	assert.Equal(t, int64(77), n.Fields()["id"].Int64())
	require.Len(t, rec.calls, 1)
	assert.Equal(t, ActionCreate, rec.calls[0].action)
	assert.Equal(t, "77", rec.calls[0].resourceID)
}

func seedNotes(t *testing.T, store *Store, titles ...string) {
	t.Helper()
	for i, title := range titles {
		n := newNote()
		n.SetField("title", String(title))
		n.SetField("rating", Int(int64(i)))
		require.NoError(t, store.Save(context.Background(), n))
	}
}

func TestQueryGetAndFirst(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	seedNotes(t, store, "a", "b", "c")

	rows, err := store.Table("notes").Where("rating", ">=", 1).OrderBy("rating", "DESC").Get(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "c", rows[0]["title"].Text())

	first, err := store.Table("notes").Where("title", "b").First(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first["rating"].Int64())

	_, err = store.Table("notes").Where("title", "missing").First(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBulkUpdateAuditsEachRowWithPriorValues(t *testing.T) {
	store, rec := newTestStore(t)
	ctx := context.Background()
	seedNotes(t, store, "x", "y", "z")
	rec.calls = nil

	affected, err := store.Table("notes").
		Where("rating", ">=", 0).
		Update(ctx, map[string]Value{"rating": Int(9)})
	require.NoError(t, err)
	assert.Equal(t, int64(3), affected)

	require.Len(t, rec.calls, 3)
	froms := make([]int64, 0, 3)
	for _, call := range rec.calls {
		assert.Equal(t, ActionUpdate, call.action)
		assert.Equal(t, "notes", call.resourceType)
		assert.Equal(t, true, call.extra["bulk"])
		require.Contains(t, call.changes, "rating")
		froms = append(froms, call.changes["rating"].From.Int64())
		assert.Equal(t, int64(9), call.changes["rating"].To.Int64())
	}
	// Each entry carries that row's own prior value, not a shared one.
	sort.Slice(froms, func(i, j int) bool { return froms[i] < froms[j] })
	assert.Equal(t, []int64{0, 1, 2}, froms)
}

func TestBulkUpdateSkipsNoopChanges(t *testing.T) {
	store, rec := newTestStore(t)
	ctx := context.Background()
	seedNotes(t, store, "only")
	rec.calls = nil

	// rating is already 0; the row is touched but no field changed, so
	// no audit entry is produced for it.
	_, err := store.Table("notes").Where("title", "only").
		Update(ctx, map[string]Value{"rating": Int(0)})
	require.NoError(t, err)
	assert.Empty(t, rec.calls)
}

func TestBulkDeleteAuditsEachRow(t *testing.T) {
	store, rec := newTestStore(t)
	ctx := context.Background()
	seedNotes(t, store, "p", "q")
	rec.calls = nil

	affected, err := store.Table("notes").Where("rating", ">=", 0).Delete(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)

	require.Len(t, rec.calls, 2)
	for _, call := range rec.calls {
		assert.Equal(t, ActionDelete, call.action)
		assert.Equal(t, true, call.extra["bulk"])
		require.Contains(t, call.changes, "title")
		assert.True(t, call.changes["title"].To.IsNull())
	}
}

func TestStoreWithoutAuditorStillPersists(t *testing.T) {
	store, _ := newTestStore(t)
	store.SetAuditor(nil)
	ctx := context.Background()

	n := newNote()
	n.SetField("title", String("silent"))
	require.NoError(t, store.Save(ctx, n))
	require.NoError(t, store.Delete(ctx, n))
}
