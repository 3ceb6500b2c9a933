package nbws

// connRegistry tracks every live connection owned by a Context.
//
// A bare map with no mutex is correct here, not sloppy: a Context is only
// ever touched from the single goroutine that owns its event loop, so there
// is no concurrent access to guard against.
type connRegistry struct {
	conns map[*Connection]struct{}
}

func newConnRegistry() connRegistry {
	return connRegistry{conns: make(map[*Connection]struct{})}
}

func (r *connRegistry) add(c *Connection) {
	r.conns[c] = struct{}{}
}

func (r *connRegistry) remove(c *Connection) {
	delete(r.conns, c)
}

func (r *connRegistry) len() int {
	return len(r.conns)
}

// each calls fn for every connection currently registered.
func (r *connRegistry) each(fn func(*Connection)) {
	for c := range r.conns {
		fn(c)
	}
}
