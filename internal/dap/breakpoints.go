package dap

// BreakpointState tracks a breakpoint through verification.
type BreakpointState int

const (
	// Unverified is the initial state, pending runtime verification.
	Unverified BreakpointState = iota
	// Verified breakpoints are instrumented and will be hit.
	Verified
	// Invalid breakpoints point at locations the runtime cannot
	// instrument.
	Invalid
	// Disabled breakpoints were verified once and then omitted from a
	// later request; they are soft-deleted so re-adding them restores
	// verification instantly.
	Disabled
)

// Breakpoint is one source breakpoint. Line may drift from
// OriginalLine when the runtime anchors the breakpoint to the nearest
// instrumentable location; OriginalLine is what the frontend last
// requested and is the matching key across requests.
type Breakpoint struct {
	ID            int
	Line          int
	OriginalLine  int
	State         BreakpointState
	InvalidReason string
	Injected      bool
}

// Verified reports whether the breakpoint will be hit as placed.
func (b *Breakpoint) IsVerified() bool { return b.State == Verified }

// documentBreakpoints is the per-document table, keyed by the content
// hash current when the breakpoints were created.
type documentBreakpoints struct {
	hash        string
	breakpoints []*Breakpoint
}

// SetBreakpoints reconciles a document's breakpoints against a new
// request. The returned slice holds only the breakpoints the frontend
// should see, in request order; Disabled survivors stay in the table
// but not in the response.
//
// A changed content hash discards everything: old anchors are
// meaningless against new text. With an unchanged hash, requested
// lines are matched against existing breakpoints by OriginalLine so
// ids are stable across calls; matches keep their anchored line and
// injected flag, Invalid matches get another chance as Unverified, and
// Disabled matches return as Verified without re-verification. Old
// breakpoints omitted from the request are dropped unless Verified,
// which become Disabled.
func (s *State) SetBreakpoints(uri, hash string, lines []int) []Breakpoint {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.documents[uri]
	if doc == nil || doc.hash != hash {
		doc = &documentBreakpoints{hash: hash}
		s.documents[uri] = doc
	}

	existing := doc.breakpoints
	matched := make(map[int]bool, len(existing))
	next := make([]*Breakpoint, 0, len(lines))

	for _, line := range lines {
		var found *Breakpoint
		for i, bp := range existing {
			if !matched[i] && bp.OriginalLine == line {
				found = bp
				matched[i] = true
				break
			}
		}
		if found == nil {
			s.nextBreakpointID++
			next = append(next, &Breakpoint{
				ID:           s.nextBreakpointID,
				Line:         line,
				OriginalLine: line,
				State:        Unverified,
			})
			continue
		}
		switch found.State {
		case Invalid:
			found.State = Unverified
			found.InvalidReason = ""
		case Disabled:
			found.State = Verified
		}
		next = append(next, found)
	}

	// Soft-delete verified leftovers; everything else is gone.
	for i, bp := range existing {
		if matched[i] {
			continue
		}
		if bp.State == Verified || bp.State == Disabled {
			bp.State = Disabled
			next = append(next, bp)
		}
	}
	doc.breakpoints = next

	out := make([]Breakpoint, 0, len(lines))
	for _, bp := range next {
		if bp.State != Disabled {
			out = append(out, *bp)
		}
	}
	return out
}

// VerifyBreakpoints is called by the console loop when the runtime has
// instrumented a source region: pending breakpoints in [startLine,
// endLine] flip to Verified and the client is told about each one.
func (s *State) VerifyBreakpoints(uri string, startLine, endLine int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.documents[uri]
	if doc == nil {
		return
	}
	for _, bp := range doc.breakpoints {
		if bp.State != Unverified || bp.Line < startLine || bp.Line > endLine {
			continue
		}
		bp.State = Verified
		changed := *bp
		s.emit(Event{Kind: EventBreakpoint, Breakpoint: &changed})
	}
}

// InvalidateBreakpoint is called when the runtime cannot instrument a
// location. The client sees the breakpoint flip to unverified with the
// reason attached.
func (s *State) InvalidateBreakpoint(uri string, line int, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.documents[uri]
	if doc == nil {
		return
	}
	for _, bp := range doc.breakpoints {
		if bp.Line != line || bp.State == Disabled {
			continue
		}
		bp.State = Invalid
		bp.InvalidReason = reason
		changed := *bp
		s.emit(Event{Kind: EventBreakpoint, Breakpoint: &changed})
	}
}

// LookupDocument returns the URI of the tracked document whose content
// hash matches, or "" when no breakpoints exist for that content. The
// runtime keys by hash because the text it evaluates carries no path.
func (s *State) LookupDocument(hash string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	for uri, doc := range s.documents {
		if doc.hash == hash {
			return uri
		}
	}
	return ""
}

// DocumentBreakpoints returns a copy of a document's visible
// breakpoints, Disabled included for callers that manage restoration.
func (s *State) DocumentBreakpoints(uri string) []Breakpoint {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.documents[uri]
	if doc == nil {
		return nil
	}
	out := make([]Breakpoint, len(doc.breakpoints))
	for i, bp := range doc.breakpoints {
		out[i] = *bp
	}
	return out
}
