// Package audit records field-level change trails for data mutations.
// The request context carries actor identity and request metadata, and
// the trail sanitizes and persists one append-only entry per mutation.
package audit

import "context"

// RequestMeta describes the inbound request an actor is operating under.
type RequestMeta struct {
	Method    string
	Path      string
	Query     string
	IP        string
	UserAgent string
}

// Context is request-scoped audit state. The HTTP entry point creates
// one per request and threads it through context.Context, so actor
// identity and the re-entrancy suppression flag are never shared across
// concurrent requests. A Context is owned by a single request goroutine
// and is not safe for concurrent use.
type Context struct {
	actorID   *uint64
	actorRole string
	meta      RequestMeta

	enabled    bool
	suppressed bool
	ignored    map[string]struct{}
}

// NewContext returns an enabled context that ignores the audit-log
// table itself, which persisting an entry would otherwise recurse into.
func NewContext() *Context {
	return &Context{
		enabled: true,
		ignored: map[string]struct{}{entryTable: {}},
	}
}

// SetActor attributes subsequent mutations to the given user.
func (c *Context) SetActor(id uint64, role string) {
	c.actorID = &id
	c.actorRole = role
}

// ClearActor drops actor attribution.
func (c *Context) ClearActor() {
	c.actorID = nil
	c.actorRole = ""
}

// ActorID returns the current actor, or nil when unauthenticated.
func (c *Context) ActorID() *uint64 { return c.actorID }

// ActorRole returns the current actor's role.
func (c *Context) ActorRole() string { return c.actorRole }

// SetRequestMeta records the request's transport metadata.
func (c *Context) SetRequestMeta(m RequestMeta) { c.meta = m }

// RequestMeta returns the recorded transport metadata.
func (c *Context) RequestMeta() RequestMeta { return c.meta }

// SetEnabled toggles the global kill switch for this request.
func (c *Context) SetEnabled(on bool) { c.enabled = on }

// Ignore excludes a resource type from auditing for this request.
func (c *Context) Ignore(resourceType string) {
	c.ignored[resourceType] = struct{}{}
}

func (c *Context) skips(resourceType string) bool {
	if !c.enabled || c.suppressed {
		return true
	}
	_, ok := c.ignored[resourceType]
	return ok
}

type ctxKey struct{}

// WithContext attaches the audit context to a context.Context.
func WithContext(ctx context.Context, ac *Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, ac)
}

// FromContext returns the attached audit context, or nil.
func FromContext(ctx context.Context) *Context {
	ac, _ := ctx.Value(ctxKey{}).(*Context)
	return ac
}
