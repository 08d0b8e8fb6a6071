package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileBareSelect(t *testing.T) {
	sql, args := New("users").Compile()
	assert.Equal(t, "SELECT * FROM users", sql)
	assert.Empty(t, args)
}

func TestCompileSelectColumnsAndFilters(t *testing.T) {
	sql, args := New("users").
		Select("id", "email").
		Where("role", "ADMIN").
		Where("failed_logins", ">", 3).
		Compile()

	assert.Equal(t, "SELECT id, email FROM users WHERE role = ? AND failed_logins > ?", sql)
	assert.Equal(t, []any{"ADMIN", 3}, args)
}

func TestCompileOrWhere(t *testing.T) {
	sql, args := New("users").
		Where("is_active", true).
		OrWhere("role", "ADMIN").
		Compile()

	assert.Equal(t, "SELECT * FROM users WHERE is_active = ? OR role = ?", sql)
	assert.Equal(t, []any{true, "ADMIN"}, args)
}

func TestCompileGroupParamOrder(t *testing.T) {
	// Parameters must come out in append order, depth-first through
	// groups, regardless of clause nesting.
	sql, args := New("users").
		Where("tenant_id", 7).
		WhereGroup(func(g *Group) {
			g.Where("username", "ada").OrWhere("email", "ada@example.com")
		}).
		Where("is_active", true).
		Compile()

	assert.Equal(t,
		"SELECT * FROM users WHERE tenant_id = ? AND (username = ? OR email = ?) AND is_active = ?",
		sql)
	assert.Equal(t, []any{7, "ada", "ada@example.com", true}, args)
}

func TestCompileNestedGroups(t *testing.T) {
	sql, args := New("logs").
		WhereGroup(func(g *Group) {
			g.Where("level", "error").
				OrWhereGroup(func(inner *Group) {
					inner.Where("level", "warn").Where("count", ">", 10)
				})
		}).
		Compile()

	assert.Equal(t,
		"SELECT * FROM logs WHERE (level = ? OR (level = ? AND count > ?))",
		sql)
	assert.Equal(t, []any{"error", "warn", 10}, args)
}

func TestCompileEmptyGroupDropped(t *testing.T) {
	sql, args := New("users").
		Where("id", 1).
		WhereGroup(func(g *Group) {}).
		Compile()

	assert.Equal(t, "SELECT * FROM users WHERE id = ?", sql)
	assert.Equal(t, []any{1}, args)
}

func TestCompileWhereIn(t *testing.T) {
	sql, args := New("users").
		WhereIn("id", []any{1, 2, 3}).
		Compile()

	assert.Equal(t, "SELECT * FROM users WHERE id IN (?,?,?)", sql)
	assert.Equal(t, []any{1, 2, 3}, args)
}

func TestCompileEmptyInNeverMatches(t *testing.T) {
	sql, args := New("users").WhereIn("id", nil).Compile()
	assert.Equal(t, "SELECT * FROM users WHERE 1 = 0", sql)
	assert.Empty(t, args)
}

func TestCompileEmptyNotInAlwaysMatches(t *testing.T) {
	sql, args := New("users").WhereNotIn("id", []any{}).Compile()
	assert.Equal(t, "SELECT * FROM users WHERE 1 = 1", sql)
	assert.Empty(t, args)
}

func TestCompileWhereRaw(t *testing.T) {
	sql, args := New("users").
		Where("is_active", true).
		WhereRaw("lower(email) = ?", "ada@example.com").
		Compile()

	assert.Equal(t, "SELECT * FROM users WHERE is_active = ? AND lower(email) = ?", sql)
	assert.Equal(t, []any{true, "ada@example.com"}, args)
}

func TestCompileJoinOrderLimitOffset(t *testing.T) {
	sql, args := New("sessions").
		Select("sessions.id", "users.username").
		Join("users", "users.id", "=", "sessions.user_id").
		Where("users.is_active", true).
		OrderBy("sessions.created_at", "desc").
		Limit(10).
		Offset(20).
		Compile()

	assert.Equal(t,
		"SELECT sessions.id, users.username FROM sessions"+
			" INNER JOIN users ON users.id = sessions.user_id"+
			" WHERE users.is_active = ?"+
			" ORDER BY sessions.created_at DESC LIMIT 10 OFFSET 20",
		sql)
	assert.Equal(t, []any{true}, args)
}

func TestCompileGroupByHaving(t *testing.T) {
	sql, args := New("audit_logs").
		Select("actor_id").
		GroupBy("actor_id").
		Having("entry_count", ">", 5).
		Compile()

	assert.Equal(t,
		"SELECT actor_id FROM audit_logs GROUP BY actor_id HAVING entry_count > ?",
		sql)
	assert.Equal(t, []any{5}, args)
}

func TestWherePKUsesConfiguredColumn(t *testing.T) {
	sql, args := New("invitations").PK("token_hash").WherePK("abc").Compile()
	assert.Equal(t, "SELECT * FROM invitations WHERE token_hash = ?", sql)
	assert.Equal(t, []any{"abc"}, args)
}

func TestCompileUpdateSetArgsPrecedeFilterArgs(t *testing.T) {
	sql, args := New("users").
		Where("role", "EDITOR").
		CompileUpdate([]string{"is_active", "locale"}, []any{false, "en"})

	assert.Equal(t, "UPDATE users SET is_active = ?, locale = ? WHERE role = ?", sql)
	assert.Equal(t, []any{false, "en", "EDITOR"}, args)
}

func TestCompileDelete(t *testing.T) {
	sql, args := New("sessions").Where("expires_at", "<", "2026-01-01").CompileDelete()
	assert.Equal(t, "DELETE FROM sessions WHERE expires_at < ?", sql)
	assert.Equal(t, []any{"2026-01-01"}, args)
}

func TestCompileSnapshotIgnoresPagingAndOrdering(t *testing.T) {
	p := New("users").
		Select("id").
		Where("role", "VIEWER").
		OrderBy("id", "ASC").
		Limit(5)

	sql, args := p.CompileSnapshot()
	assert.Equal(t, "SELECT * FROM users WHERE role = ?", sql)
	assert.Equal(t, []any{"VIEWER"}, args)
}

func TestCompileIsDeterministic(t *testing.T) {
	p := New("users").Where("a", 1).OrWhere("b", 2).WhereIn("c", []any{3, 4})
	sql1, args1 := p.Compile()
	sql2, args2 := p.Compile()
	require.Equal(t, sql1, sql2)
	require.Equal(t, args1, args2)
}

func TestUnsafeIdentifierPanics(t *testing.T) {
	assert.Panics(t, func() { New("users; DROP TABLE users") })
	assert.Panics(t, func() { New("users").Where("id = 1 OR 1=1", 5) })
	assert.Panics(t, func() { New("users").Select("id, password_hash") })
	assert.Panics(t, func() { New("users").GroupBy("role DESC") })
}

func TestUnsupportedOperatorPanics(t *testing.T) {
	assert.Panics(t, func() { New("users").Where("id", "UNION", 1) })
	assert.Panics(t, func() { New("users").Where("id", ";", 1) })
}

func TestInvalidOrderDirectionPanics(t *testing.T) {
	assert.Panics(t, func() { New("users").OrderBy("id", "sideways") })
	assert.NotPanics(t, func() { New("users").OrderBy("id", " desc ") })
}

func TestWhereArityPanics(t *testing.T) {
	assert.Panics(t, func() { New("users").Where("id") })
	assert.Panics(t, func() { New("users").Where("id", "=", 1, 2) })
}
