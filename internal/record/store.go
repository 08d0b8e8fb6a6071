package record

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mooncast/backoffice/internal/query"
)

// ErrNotFound is returned when a primary-key lookup matches no row.
var ErrNotFound = errors.New("record not found")

// Options tunes store behavior per deployment.
type Options struct {
	// LockOnRead appends FOR UPDATE to the pre-write row fetch so the
	// read-diff-write sequence holds a row lock for its transaction.
	// Disabled for engines that reject the clause (SQLite serializes
	// writers on its own).
	LockOnRead bool
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Store runs entity persistence against a SQL database. Every mutation
// computes a field-level diff and hands it to the configured Auditor
// after the SQL commits; audit failures never fail the mutation.
type Store struct {
	db      *sql.DB
	auditor Auditor
	log     *logrus.Logger
	opts    Options
}

func NewStore(db *sql.DB, log *logrus.Logger, opts Options) *Store {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Store{db: db, log: log, opts: opts}
}

// SetAuditor attaches the change-set sink. Set after construction
// because the audit trail itself persists through this store.
func (s *Store) SetAuditor(a Auditor) { s.auditor = a }

// DB exposes the underlying pool for callers that need explicit
// transactions, such as token rotation.
func (s *Store) DB() *sql.DB { return s.db }

// Find loads the row with the given primary key into the entity.
func (s *Store) Find(ctx context.Context, e Entity, pk Value) error {
	row, err := s.fetchRow(ctx, s.db, e.Table(), e.PrimaryKey(), pk, false)
	if err != nil {
		return err
	}
	Load(e, row)
	return nil
}

// Save inserts or updates the entity. Existence is decided by a
// primary-key lookup, not in-memory dirty state, so hand-built entities
// with a pre-set key insert correctly. The lookup, diff and write run
// in one transaction; the audit entry is recorded after commit.
//
// On insert the entity reloads every column afterwards to pick up
// auto-increment keys and database defaults.
func (s *Store) Save(ctx context.Context, e Entity) error {
	fields := e.Fields()
	pkCol := e.PrimaryKey()
	pkVal, ok := fields[pkCol]
	if !ok {
		pkVal = Null()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	var before map[string]Value
	exists := false
	if !pkVal.IsNull() {
		before, err = s.fetchRow(ctx, tx, e.Table(), pkCol, pkVal, s.opts.LockOnRead)
		switch {
		case err == nil:
			exists = true
		case errors.Is(err, ErrNotFound):
			// fall through to insert
		default:
			_ = tx.Rollback()
			return err
		}
	}

	if exists {
		return s.update(ctx, tx, e, before, fields, pkCol, pkVal)
	}
	return s.insert(ctx, tx, e, fields, pkCol, pkVal)
}

func (s *Store) update(ctx context.Context, tx *sql.Tx, e Entity, before, fields map[string]Value, pkCol string, pkVal Value) error {
	changes := diff(before, fields, e.Fillable())
	if len(changes) == 0 {
		_ = tx.Rollback()
		return nil
	}

	cols := sortedKeys(changes)
	var sb strings.Builder
	sb.WriteString("UPDATE ")
	sb.WriteString(e.Table())
	sb.WriteString(" SET ")
	args := make([]any, 0, len(cols)+1)
	for i, col := range cols {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(col)
		sb.WriteString(" = ?")
		args = append(args, changes[col].To.Arg())
	}
	sb.WriteString(" WHERE ")
	sb.WriteString(pkCol)
	sb.WriteString(" = ?")
	args = append(args, pkVal.Arg())

	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	s.audit(ctx, ActionUpdate, e.Table(), pkVal.Text(), changes, nil)
	return nil
}

func (s *Store) insert(ctx context.Context, tx *sql.Tx, e Entity, fields map[string]Value, pkCol string, pkVal Value) error {
	cols := make([]string, 0, len(fields))
	for _, col := range e.Fillable() {
		if v, ok := fields[col]; ok && !v.IsNull() && col != pkCol {
			cols = append(cols, col)
		}
	}
	sort.Strings(cols)
	if !pkVal.IsNull() {
		cols = append([]string{pkCol}, cols...)
	}
	if len(cols) == 0 {
		_ = tx.Rollback()
		return errors.New("record: nothing to insert")
	}

	args := make([]any, 0, len(cols))
	for _, col := range cols {
		args = append(args, fields[col].Arg())
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(e.Table())
	sb.WriteString(" (")
	sb.WriteString(strings.Join(cols, ", "))
	sb.WriteString(") VALUES (")
	sb.WriteString(strings.Repeat("?, ", len(cols)-1))
	sb.WriteString("?)")

	res, err := tx.ExecContext(ctx, sb.String(), args...)
	if err != nil {
		_ = tx.Rollback()
		return err
	}

	if pkVal.IsNull() {
		id, err := res.LastInsertId()
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("last insert id: %w", err)
		}
		pkVal = Int(id)
		e.SetField(pkCol, pkVal)
	}

	// Reload all columns so defaults and generated values are visible
	// before Save returns.
	row, err := s.fetchRow(ctx, tx, e.Table(), pkCol, pkVal, false)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	Load(e, row)

	changes := make(map[string]Change, len(cols))
	for _, col := range cols {
		if col == pkCol {
			continue
		}
		changes[col] = Change{From: Null(), To: fields[col]}
	}
	s.audit(ctx, ActionCreate, e.Table(), pkVal.Text(), changes, nil)
	return nil
}

// Delete removes the entity's row and records every stored field as a
// value→null change. Returns ErrNotFound when no row matches.
func (s *Store) Delete(ctx context.Context, e Entity) error {
	fields := e.Fields()
	pkCol := e.PrimaryKey()
	pkVal, ok := fields[pkCol]
	if !ok || pkVal.IsNull() {
		return ErrNotFound
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	before, err := s.fetchRow(ctx, tx, e.Table(), pkCol, pkVal, s.opts.LockOnRead)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+e.Table()+" WHERE "+pkCol+" = ?", pkVal.Arg()); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	s.audit(ctx, ActionDelete, e.Table(), pkVal.Text(), deletionChanges(before), nil)
	return nil
}

func deletionChanges(before map[string]Value) map[string]Change {
	changes := make(map[string]Change, len(before))
	for col, v := range before {
		if v.IsNull() {
			continue
		}
		changes[col] = Change{From: v, To: Null()}
	}
	return changes
}

func (s *Store) audit(ctx context.Context, action, table, resourceID string, changes map[string]Change, extra map[string]any) {
	if s.auditor == nil || len(changes) == 0 {
		return
	}
	s.auditor.RecordChange(ctx, action, table, resourceID, changes, extra)
}

func (s *Store) fetchRow(ctx context.Context, q querier, table, pkCol string, pk Value, lock bool) (map[string]Value, error) {
	stmt := "SELECT * FROM " + table + " WHERE " + pkCol + " = ? LIMIT 1"
	if lock {
		stmt += " FOR UPDATE"
	}
	rows, err := q.QueryContext(ctx, stmt, pk.Arg())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scanned, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	if len(scanned) == 0 {
		return nil, ErrNotFound
	}
	return scanned[0], nil
}

func scanRows(rows *sql.Rows) ([]map[string]Value, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]Value
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]Value, len(cols))
		for i, c := range cols {
			row[c] = FromDriver(raw[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Query is a plan bound to the store for execution. Predicate calls
// delegate to the underlying plan.
type Query struct {
	Plan  *query.Plan
	store *Store
}

// Table starts a bound query against the given table.
func (s *Store) Table(name string) *Query {
	return &Query{Plan: query.New(name), store: s}
}

func (q *Query) PK(column string) *Query { q.Plan.PK(column); return q }

func (q *Query) Where(column string, args ...any) *Query {
	q.Plan.Where(column, args...)
	return q
}

func (q *Query) OrWhere(column string, args ...any) *Query {
	q.Plan.OrWhere(column, args...)
	return q
}

func (q *Query) WhereIn(column string, values []any) *Query {
	q.Plan.WhereIn(column, values)
	return q
}

func (q *Query) WhereNotIn(column string, values []any) *Query {
	q.Plan.WhereNotIn(column, values)
	return q
}

func (q *Query) WhereGroup(fn func(g *query.Group)) *Query {
	q.Plan.WhereGroup(fn)
	return q
}

func (q *Query) OrWhereGroup(fn func(g *query.Group)) *Query {
	q.Plan.OrWhereGroup(fn)
	return q
}

func (q *Query) WherePK(value any) *Query { q.Plan.WherePK(value); return q }

func (q *Query) OrderBy(column, direction string) *Query {
	q.Plan.OrderBy(column, direction)
	return q
}

func (q *Query) Limit(n int) *Query  { q.Plan.Limit(n); return q }
func (q *Query) Offset(n int) *Query { q.Plan.Offset(n); return q }

// Get executes the compiled SELECT and returns all rows.
func (q *Query) Get(ctx context.Context) ([]map[string]Value, error) {
	stmt, args := q.Plan.Compile()
	rows, err := q.store.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

// First returns the first matching row or ErrNotFound.
func (q *Query) First(ctx context.Context) (map[string]Value, error) {
	q.Plan.Limit(1)
	rows, err := q.Get(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// Update executes an immediate UPDATE under the current filter set and
// returns the affected-row count. Before executing it snapshots the
// matching rows with one SELECT so each affected row gets its own audit
// entry carrying that row's prior values, tagged metadata.bulk.
func (q *Query) Update(ctx context.Context, values map[string]Value) (int64, error) {
	before, err := q.snapshot(ctx)
	if err != nil {
		return 0, err
	}

	cols := sortedKeys(values)
	args := make([]any, 0, len(cols))
	for _, c := range cols {
		args = append(args, values[c].Arg())
	}
	stmt, allArgs := q.Plan.CompileUpdate(cols, args)
	res, err := q.store.db.ExecContext(ctx, stmt, allArgs...)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	pkCol := q.Plan.PKColumn()
	for _, row := range before {
		changes := make(map[string]Change)
		for _, c := range cols {
			old, had := row[c]
			if !had {
				old = Null()
			}
			if !old.Equal(values[c]) {
				changes[c] = Change{From: old, To: values[c]}
			}
		}
		q.store.audit(ctx, ActionUpdate, q.Plan.Table(), row[pkCol].Text(), changes, map[string]any{"bulk": true})
	}
	return affected, nil
}

// Delete executes an immediate DELETE under the current filter set,
// snapshotting the matching rows first so every removed row gets its own
// audit entry.
func (q *Query) Delete(ctx context.Context) (int64, error) {
	before, err := q.snapshot(ctx)
	if err != nil {
		return 0, err
	}

	stmt, args := q.Plan.CompileDelete()
	res, err := q.store.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	pkCol := q.Plan.PKColumn()
	for _, row := range before {
		q.store.audit(ctx, ActionDelete, q.Plan.Table(), row[pkCol].Text(), deletionChanges(row), map[string]any{"bulk": true})
	}
	return affected, nil
}

// snapshot fetches the full rows the current filters match, ignoring
// any column selection, ordering or paging set on the plan.
func (q *Query) snapshot(ctx context.Context) ([]map[string]Value, error) {
	stmt, args := q.Plan.CompileSnapshot()
	rows, err := q.store.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}
