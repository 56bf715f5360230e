package permission

// Set is an explicit list of capabilities backed by a Mask64.
// The zero value grants nothing.
type Set struct {
	mask Mask64
}

// NewSet builds a set from the given capabilities, skipping invalid values.
func NewSet(caps ...Capability) Set {
	var s Set
	for _, c := range caps {
		s = s.With(c)
	}
	return s
}

// ParseSet builds a set from capability names. Names that do not resolve are
// returned separately so callers can log them; they are never granted.
func ParseSet(names []string) (Set, []string) {
	var (
		s       Set
		unknown []string
	)
	for _, name := range names {
		c, ok := ParseCapability(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		s = s.With(c)
	}
	return s, unknown
}

// SetFromMask rebuilds a set from a raw mask, dropping bits outside the
// declared capability range.
func SetFromMask(raw uint64) Set {
	var s Set
	for c := Capability(0); c < capabilityCount; c++ {
		if Mask64(raw).Has(int(c)) {
			s.mask.Set(int(c))
		}
	}
	return s
}

func (s Set) With(c Capability) Set {
	if c.Valid() {
		s.mask.Set(int(c))
	}
	return s
}

func (s Set) Without(c Capability) Set {
	if c.Valid() {
		s.mask.Clear(int(c))
	}
	return s
}

func (s Set) Has(c Capability) bool {
	return c.Valid() && s.mask.Has(int(c))
}

func (s Set) Empty() bool {
	return s.mask == 0
}

func (s Set) Mask() Mask64 {
	return s.mask
}

// Capabilities lists the members in declaration order.
func (s Set) Capabilities() []Capability {
	var out []Capability
	for c := Capability(0); c < capabilityCount; c++ {
		if s.mask.Has(int(c)) {
			out = append(out, c)
		}
	}
	return out
}

// Names lists the member names in declaration order. An empty set yields an
// empty, non-nil slice so it serializes as [].
func (s Set) Names() []string {
	out := make([]string, 0, capabilityCount)
	for _, c := range s.Capabilities() {
		out = append(out, c.String())
	}
	return out
}
