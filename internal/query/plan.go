package query

import (
	"fmt"
	"strconv"
	"strings"
)

type joinKind string

const (
	innerJoin joinKind = "INNER JOIN"
	leftJoin  joinKind = "LEFT JOIN"
	rightJoin joinKind = "RIGHT JOIN"
)

type join struct {
	kind  joinKind
	table string
	left  string
	op    string
	right string
}

type order struct {
	column    string
	direction string
}

// Plan accumulates the parts of one SQL statement and compiles them to a
// parameterized string. Compile is pure; the same plan always yields the
// same SQL and the same parameter order (append order, depth-first for
// groups).
type Plan struct {
	conditions

	table   string
	pk      string
	columns []string
	joins   []join
	groupBy []string
	having  conditions
	orderBy []order
	limit   int
	offset  int
}

// New returns a plan for the given table with primary key "id".
func New(table string) *Plan {
	return &Plan{table: mustIdent(table), pk: "id", limit: -1, offset: -1}
}

// PK overrides the primary-key column used by WherePK and by bulk audit
// attribution.
func (p *Plan) PK(column string) *Plan {
	p.pk = mustIdent(column)
	return p
}

// Table returns the target table name.
func (p *Plan) Table() string { return p.table }

// PKColumn returns the primary-key column name.
func (p *Plan) PKColumn() string { return p.pk }

// Select replaces the selected columns (default "*").
func (p *Plan) Select(columns ...string) *Plan {
	for _, c := range columns {
		mustIdent(c)
	}
	p.columns = columns
	return p
}

// Join appends an INNER JOIN clause.
func (p *Plan) Join(table, left, op, right string) *Plan {
	return p.join(innerJoin, table, left, op, right)
}

// LeftJoin appends a LEFT JOIN clause.
func (p *Plan) LeftJoin(table, left, op, right string) *Plan {
	return p.join(leftJoin, table, left, op, right)
}

// RightJoin appends a RIGHT JOIN clause.
func (p *Plan) RightJoin(table, left, op, right string) *Plan {
	return p.join(rightJoin, table, left, op, right)
}

func (p *Plan) join(kind joinKind, table, left, op, right string) *Plan {
	p.joins = append(p.joins, join{
		kind:  kind,
		table: mustIdent(table),
		left:  mustIdent(left),
		op:    mustOp(op),
		right: mustIdent(right),
	})
	return p
}

// Where appends an AND predicate; the operator defaults to "=" when
// only a value is given.
func (p *Plan) Where(column string, args ...any) *Plan {
	p.where(And, column, args...)
	return p
}

// OrWhere is Where joined with OR.
func (p *Plan) OrWhere(column string, args ...any) *Plan {
	p.where(Or, column, args...)
	return p
}

// WhereIn appends "column IN (?,...)"; an empty list compiles to an
// always-false predicate.
func (p *Plan) WhereIn(column string, values []any) *Plan {
	p.whereIn(And, kindIn, column, values)
	return p
}

// WhereNotIn appends "column NOT IN (?,...)"; an empty list compiles to
// an always-true predicate.
func (p *Plan) WhereNotIn(column string, values []any) *Plan {
	p.whereIn(And, kindNotIn, column, values)
	return p
}

// WhereRaw appends a verbatim SQL fragment with positional args.
func (p *Plan) WhereRaw(fragment string, args ...any) *Plan {
	p.whereRaw(And, fragment, args)
	return p
}

// OrWhereRaw is WhereRaw joined with OR.
func (p *Plan) OrWhereRaw(fragment string, args ...any) *Plan {
	p.whereRaw(Or, fragment, args)
	return p
}

// WhereGroup opens a parenthesized sub-clause joined with AND.
func (p *Plan) WhereGroup(fn func(g *Group)) *Plan {
	p.whereGroup(And, fn)
	return p
}

// OrWhereGroup opens a parenthesized sub-clause joined with OR.
func (p *Plan) OrWhereGroup(fn func(g *Group)) *Plan {
	p.whereGroup(Or, fn)
	return p
}

// WherePK matches the plan's primary-key column against a single value.
func (p *Plan) WherePK(value any) *Plan {
	p.where(And, p.pk, value)
	return p
}

// GroupBy appends GROUP BY columns. Column names are identifier-checked
// because they are concatenated, not bound.
func (p *Plan) GroupBy(columns ...string) *Plan {
	for _, c := range columns {
		p.groupBy = append(p.groupBy, mustIdent(c))
	}
	return p
}

// Having appends a HAVING predicate.
func (p *Plan) Having(column, op string, value any) *Plan {
	p.having.where(And, column, op, value)
	return p
}

// OrderBy appends an ORDER BY clause. Direction must be ASC or DESC and
// the column must pass the identifier check; violations panic because
// they indicate a bug in calling code.
func (p *Plan) OrderBy(column, direction string) *Plan {
	dir := strings.ToUpper(strings.TrimSpace(direction))
	if dir != "ASC" && dir != "DESC" {
		panic(fmt.Sprintf("query: invalid order direction %q", direction))
	}
	p.orderBy = append(p.orderBy, order{column: mustIdent(column), direction: dir})
	return p
}

// Limit caps the number of returned rows; negative clears it.
func (p *Plan) Limit(n int) *Plan {
	p.limit = n
	return p
}

// Offset skips rows; negative clears it.
func (p *Plan) Offset(n int) *Plan {
	p.offset = n
	return p
}

// Compile renders the SELECT statement and its bound parameters.
func (p *Plan) Compile() (string, []any) {
	var sb strings.Builder
	var args []any

	sb.WriteString("SELECT ")
	if len(p.columns) == 0 {
		sb.WriteString("*")
	} else {
		sb.WriteString(strings.Join(p.columns, ", "))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(p.table)

	for _, j := range p.joins {
		sb.WriteString(" ")
		sb.WriteString(string(j.kind))
		sb.WriteString(" ")
		sb.WriteString(j.table)
		sb.WriteString(" ON ")
		sb.WriteString(j.left)
		sb.WriteString(" ")
		sb.WriteString(j.op)
		sb.WriteString(" ")
		sb.WriteString(j.right)
	}

	p.writeWhere(&sb, &args)

	if len(p.groupBy) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(p.groupBy, ", "))
	}
	if len(p.having.filters) > 0 {
		sb.WriteString(" HAVING ")
		p.having.compileInto(&sb, &args)
	}
	if len(p.orderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		for i, o := range p.orderBy {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(o.column)
			sb.WriteString(" ")
			sb.WriteString(o.direction)
		}
	}
	if p.limit >= 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(p.limit))
	}
	if p.offset >= 0 {
		sb.WriteString(" OFFSET ")
		sb.WriteString(strconv.Itoa(p.offset))
	}
	return sb.String(), args
}

// CompileSnapshot renders "SELECT * FROM table" under the plan's filter
// set, ignoring column selection, grouping, ordering and paging. Bulk
// mutations use it to capture before-rows under exactly the filters the
// mutation executes with.
func (p *Plan) CompileSnapshot() (string, []any) {
	var sb strings.Builder
	var args []any

	sb.WriteString("SELECT * FROM ")
	sb.WriteString(p.table)
	p.writeWhere(&sb, &args)
	return sb.String(), args
}

// CompileUpdate renders an UPDATE statement for the given column/value
// pairs under the plan's filter set. Set-clause parameters precede
// filter parameters. Columns are rendered in the order given.
func (p *Plan) CompileUpdate(columns []string, values []any) (string, []any) {
	if len(columns) == 0 || len(columns) != len(values) {
		panic("query: CompileUpdate needs matching columns and values")
	}
	var sb strings.Builder
	var args []any

	sb.WriteString("UPDATE ")
	sb.WriteString(p.table)
	sb.WriteString(" SET ")
	for i, c := range columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(mustIdent(c))
		sb.WriteString(" = ?")
		args = append(args, values[i])
	}
	p.writeWhere(&sb, &args)
	return sb.String(), args
}

// CompileDelete renders a DELETE statement under the plan's filter set.
func (p *Plan) CompileDelete() (string, []any) {
	var sb strings.Builder
	var args []any

	sb.WriteString("DELETE FROM ")
	sb.WriteString(p.table)
	p.writeWhere(&sb, &args)
	return sb.String(), args
}

func (p *Plan) writeWhere(sb *strings.Builder, args *[]any) {
	if len(p.filters) == 0 {
		return
	}
	sb.WriteString(" WHERE ")
	p.compileInto(sb, args)
}
