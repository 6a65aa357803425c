package h2stream

// reprioritise implements the dependency-tree re-parenting algorithm of
// RFC 7540 section 5.3.3: c (the dependent) is moved to depend on p, with
// the usual exclusive-reparenting and cycle-breaking rules.
//
// Callers hold conn.mu. p is the stream named as the new parent in the
// wire priority block (already resolved to a *Stream by the caller, which
// also decides how to treat a dependency on a stream not in the table;
// see SPEC_FULL.md's Open Question resolution in DESIGN.md).
func reprioritise(conn *Conn, c, p *Stream, exclusive bool) *Error {
	if c.id == 0 {
		return NewError(ProtocolError, "stream 0 cannot be a dependent")
	}
	if c == p {
		return NewStreamError(ProtocolError, "stream cannot depend on itself")
	}

	// Cycle break: if p is a (transitive) dependent of c, first detach p
	// from its current parent and re-parent it to c's current parent,
	// non-exclusively.
	for anc := p; anc != nil; anc = anc.parent {
		if anc == c {
			oldParent := c.parent
			detach(p)
			attach(oldParent, p, false)
			break
		}
	}

	detach(c)

	if exclusive {
		// All of p's current dependees become c's dependees.
		moved := make([]*Stream, 0, len(p.dependees))
		for _, d := range p.dependees {
			moved = append(moved, d)
		}
		for _, d := range moved {
			detach(d)
			attach(c, d, false)
		}
	}

	attach(p, c, false)

	return nil
}

// detach removes s from its current parent's dependees set, if any.
func detach(s *Stream) {
	if s.parent != nil {
		delete(s.parent.dependees, s.id)
	}
	s.parent = nil
}

// attach makes s a dependee of p. The exclusive flag is accepted for call
// symmetry with reprioritise but exclusivity is always handled by the
// caller before invoking attach, so it's a no-op here.
func attach(p, s *Stream, _ bool) {
	s.parent = p
	if p != nil {
		if p.dependees == nil {
			p.dependees = make(map[uint32]*Stream)
		}
		p.dependees[s.id] = s
	}
}
