package dispatch

// Meta holds the declarative facts attached to a handler declaration or
// to its enclosing group. It is written once at registration and only
// ever read afterwards.
type Meta struct {
	// GroupOnly restricts execution to group chats.
	GroupOnly bool
}

// GroupOnly reports whether the declaration described by m restricts
// execution to group (non-private) chats. Pure query over a single
// declaration site; the dispatcher ORs the handler-level and
// group-level answers.
func GroupOnly(m Meta) bool { return m.GroupOnly }

// MetaLookup resolves metadata for a named declaration site (a
// handler's enclosing group). The default lookup reads the groups
// registered with SetCommands; hosts with their own declaration
// mechanism may inject a different one.
type MetaLookup func(name string) (Meta, bool)
