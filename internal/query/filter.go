// Package query builds parameterized SQL from structured filter values.
// Filter values are never interpolated into the SQL text; identifiers
// (columns, directions) are validated before concatenation because they
// cannot be bound as parameters.
package query

import (
	"fmt"
	"regexp"
	"strings"
)

// Connector joins a filter to the one before it.
type Connector string

const (
	And Connector = "AND"
	Or  Connector = "OR"
)

type filterKind int

const (
	kindCompare filterKind = iota
	kindIn
	kindNotIn
	kindRaw
	kindGroup
)

// Filter is one SQL predicate. Compare carries column/op/value, In and
// NotIn carry a column and a value list, Raw carries a verbatim fragment
// with positional args, Group carries nested filters rendered inside
// parentheses.
type Filter struct {
	kind      filterKind
	connector Connector
	column    string
	op        string
	value     any
	values    []any
	raw       string
	rawArgs   []any
	group     []Filter
}

var identPattern = regexp.MustCompile(`^[A-Za-z0-9_.]+$`)

var allowedOps = map[string]struct{}{
	"=": {}, "!=": {}, "<>": {}, "<": {}, "<=": {}, ">": {}, ">=": {},
	"LIKE": {}, "NOT LIKE": {}, "IS": {}, "IS NOT": {},
}

// mustIdent panics on column names that cannot be safely concatenated
// into SQL. Failing here is deliberate: a bad identifier is a bug in the
// calling code, never user input.
func mustIdent(name string) string {
	if !identPattern.MatchString(name) {
		panic(fmt.Sprintf("query: unsafe identifier %q", name))
	}
	return name
}

func mustOp(op string) string {
	up := strings.ToUpper(strings.TrimSpace(op))
	if _, ok := allowedOps[up]; !ok {
		panic(fmt.Sprintf("query: unsupported operator %q", op))
	}
	return up
}

// conditions is the shared filter list behind Plan, Group and the HAVING
// clause. Append order is compile order.
type conditions struct {
	filters []Filter
}

func (c *conditions) add(f Filter) {
	c.filters = append(c.filters, f)
}

func (c *conditions) where(connector Connector, column string, args ...any) {
	mustIdent(column)
	switch len(args) {
	case 1:
		c.add(Filter{kind: kindCompare, connector: connector, column: column, op: "=", value: args[0]})
	case 2:
		op, ok := args[0].(string)
		if !ok {
			panic("query: operator must be a string")
		}
		c.add(Filter{kind: kindCompare, connector: connector, column: column, op: mustOp(op), value: args[1]})
	default:
		panic("query: Where expects (column, value) or (column, op, value)")
	}
}

func (c *conditions) whereIn(connector Connector, kind filterKind, column string, values []any) {
	mustIdent(column)
	c.add(Filter{kind: kind, connector: connector, column: column, values: values})
}

func (c *conditions) whereRaw(connector Connector, fragment string, args []any) {
	c.add(Filter{kind: kindRaw, connector: connector, raw: fragment, rawArgs: args})
}

func (c *conditions) whereGroup(connector Connector, fn func(g *Group)) {
	g := &Group{}
	fn(g)
	if len(g.filters) == 0 {
		return
	}
	c.add(Filter{kind: kindGroup, connector: connector, group: g.filters})
}

// Group collects filters for a parenthesized sub-clause. The connector
// of the group's first sub-filter is irrelevant when compiled; the
// group's own connector decides how it joins the parent list.
type Group struct {
	conditions
}

// Where appends an AND predicate. With one extra argument the operator
// defaults to "=": Where("status", "new"). With two it is explicit:
// Where("amount", ">", 100).
func (g *Group) Where(column string, args ...any) *Group {
	g.where(And, column, args...)
	return g
}

// OrWhere is Where joined with OR.
func (g *Group) OrWhere(column string, args ...any) *Group {
	g.where(Or, column, args...)
	return g
}

// WhereIn appends "column IN (?,...)" sized to the value list. An empty
// list compiles to an always-false predicate.
func (g *Group) WhereIn(column string, values []any) *Group {
	g.whereIn(And, kindIn, column, values)
	return g
}

// WhereNotIn appends "column NOT IN (?,...)". An empty list compiles to
// an always-true predicate.
func (g *Group) WhereNotIn(column string, values []any) *Group {
	g.whereIn(And, kindNotIn, column, values)
	return g
}

// WhereRaw appends a verbatim SQL fragment with positional args. The
// caller owns the fragment's safety.
func (g *Group) WhereRaw(fragment string, args ...any) *Group {
	g.whereRaw(And, fragment, args)
	return g
}

// OrWhereRaw is WhereRaw joined with OR.
func (g *Group) OrWhereRaw(fragment string, args ...any) *Group {
	g.whereRaw(Or, fragment, args)
	return g
}

// WhereGroup nests a further parenthesized sub-clause joined with AND.
func (g *Group) WhereGroup(fn func(g *Group)) *Group {
	g.whereGroup(And, fn)
	return g
}

// OrWhereGroup nests a further parenthesized sub-clause joined with OR.
func (g *Group) OrWhereGroup(fn func(g *Group)) *Group {
	g.whereGroup(Or, fn)
	return g
}

// compileInto renders the filter list in append order, depth-first for
// groups, collecting bound parameters in the same order.
func (c *conditions) compileInto(sb *strings.Builder, args *[]any) {
	for i, f := range c.filters {
		if i > 0 {
			sb.WriteString(" ")
			sb.WriteString(string(f.connector))
			sb.WriteString(" ")
		}
		switch f.kind {
		case kindCompare:
			sb.WriteString(f.column)
			sb.WriteString(" ")
			sb.WriteString(f.op)
			sb.WriteString(" ?")
			*args = append(*args, f.value)
		case kindIn, kindNotIn:
			if len(f.values) == 0 {
				// Literal "IN ()" is invalid SQL; compile the chosen
				// semantics instead: empty IN never matches, empty
				// NOT IN always matches.
				if f.kind == kindIn {
					sb.WriteString("1 = 0")
				} else {
					sb.WriteString("1 = 1")
				}
				continue
			}
			sb.WriteString(f.column)
			if f.kind == kindNotIn {
				sb.WriteString(" NOT IN (")
			} else {
				sb.WriteString(" IN (")
			}
			sb.WriteString(placeholders(len(f.values)))
			sb.WriteString(")")
			*args = append(*args, f.values...)
		case kindRaw:
			sb.WriteString(f.raw)
			*args = append(*args, f.rawArgs...)
		case kindGroup:
			sb.WriteString("(")
			inner := conditions{filters: f.group}
			inner.compileInto(sb, args)
			sb.WriteString(")")
		}
	}
}

func placeholders(n int) string {
	if n == 1 {
		return "?"
	}
	return strings.Repeat("?,", n-1) + "?"
}
