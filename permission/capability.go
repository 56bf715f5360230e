package permission

import "strings"

// Capability is one named admin capability. The set is closed: values outside
// the declared range are never granted.
type Capability uint8

const (
	Properties Capability = iota
	Team
	Content
	Settings
	Media
	Inquiries
	Gallery
	capabilityCount
)

var capabilityNames = [capabilityCount]string{
	Properties: "Properties",
	Team:       "Team",
	Content:    "Content",
	Settings:   "Settings",
	Media:      "Media",
	Inquiries:  "Inquiries",
	Gallery:    "Gallery",
}

// All returns every declared capability in declaration order.
func All() []Capability {
	out := make([]Capability, 0, capabilityCount)
	for c := Capability(0); c < capabilityCount; c++ {
		out = append(out, c)
	}
	return out
}

// Valid reports whether c is a declared capability.
func (c Capability) Valid() bool {
	return c < capabilityCount
}

func (c Capability) String() string {
	if !c.Valid() {
		return ""
	}
	return capabilityNames[c]
}

// ParseCapability resolves a capability by name. Matching ignores case and
// surrounding whitespace so that admin records edited by hand still resolve.
func ParseCapability(name string) (Capability, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, false
	}
	for c := Capability(0); c < capabilityCount; c++ {
		if strings.EqualFold(capabilityNames[c], name) {
			return c, true
		}
	}
	return 0, false
}
