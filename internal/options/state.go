package options

// Cache is the OptionCache entity from spec §3: exactly one of Data
// or Expr is non-empty, or both are empty ("defined but no value" —
// e.g. a bare `option foo;` that only asserts definedness for a later
// `exists` test).
type Cache struct {
	Code uint8
	Data []byte
	Expr interface{} // *expr.Expression; interface{} avoids an import cycle, see expr.Evaluate
}

// HasValue reports whether the cache carries concrete data (as
// opposed to an unevaluated expression or "defined but no value").
func (c *Cache) HasValue() bool { return c != nil && len(c.Data) > 0 }

// State is the OptionState entity: a per-universe array of hashed
// payloads. Per universe the payload is a plain Go map keyed by the
// one-byte option code — Go's builtin map already gives the "hashed"
// dictionary the source's universe.set hook requires; the bespoke
// bytehash.Table is reserved for the multi-byte-string-keyed indexes
// named in spec §2 (client IDs, hardware addresses, names...).
type State struct {
	byUniverse map[string]map[uint8]*Cache
}

// NewState creates an empty option state.
func NewState() *State {
	return &State{byUniverse: make(map[string]map[uint8]*Cache)}
}

// Set stores a cache entry for (universe, code), going through the
// universe's own bucket the way the source's universe.set hook does.
func (s *State) Set(universe string, code uint8, c *Cache) {
	m, ok := s.byUniverse[universe]
	if !ok {
		m = make(map[uint8]*Cache)
		s.byUniverse[universe] = m
	}
	c.Code = code
	m[code] = c
}

// Get fetches a cache entry.
func (s *State) Get(universe string, code uint8) (*Cache, bool) {
	m, ok := s.byUniverse[universe]
	if !ok {
		return nil, false
	}
	c, ok := m[code]
	return c, ok
}

// Delete removes a cache entry.
func (s *State) Delete(universe string, code uint8) {
	if m, ok := s.byUniverse[universe]; ok {
		delete(m, code)
	}
}

// Exists reports whether an option is present, for the `exists`
// expression operator.
func (s *State) Exists(universe string, code uint8) bool {
	_, ok := s.Get(universe, code)
	return ok
}

// Each calls fn for every cache entry in a universe's bucket, in
// ascending code order, needed for deterministic reply assembly.
func (s *State) Each(universe string, fn func(code uint8, c *Cache)) {
	m, ok := s.byUniverse[universe]
	if !ok {
		return
	}
	codes := make([]uint8, 0, len(m))
	for code := range m {
		codes = append(codes, code)
	}
	insertionSortBytes(codes)
	for _, code := range codes {
		fn(code, m[code])
	}
}

func insertionSortBytes(s []uint8) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// Clone performs a shallow copy of the state (cache entries are
// shared, not duplicated) — used when a packet-scoped state is seeded
// from a long-lived group/host option state before per-packet
// overrides are layered on.
func (s *State) Clone() *State {
	out := NewState()
	for universe, m := range s.byUniverse {
		nm := make(map[uint8]*Cache, len(m))
		for code, c := range m {
			nm[code] = c
		}
		out.byUniverse[universe] = nm
	}
	return out
}
