package core

import "sort"

// Capabilities is a set of named abilities. Tasks declare the capabilities
// they require, agents declare the capabilities they provide, and matching
// is plain set containment.
type Capabilities map[string]struct{}

// NewCapabilities builds a capability set from the given names.
func NewCapabilities(names ...string) Capabilities {
	c := make(Capabilities, len(names))
	for _, name := range names {
		c[name] = struct{}{}
	}
	return c
}

// Add inserts a capability name into the set.
func (c Capabilities) Add(name string) {
	c[name] = struct{}{}
}

// Has reports whether the set contains the given capability name.
func (c Capabilities) Has(name string) bool {
	_, ok := c[name]
	return ok
}

// SubsetOf reports whether every capability in c is also present in other.
// An empty set is a subset of anything.
func (c Capabilities) SubsetOf(other Capabilities) bool {
	for name := range c {
		if _, ok := other[name]; !ok {
			return false
		}
	}
	return true
}

// Names returns the capability names in sorted order, for deterministic
// display and serialization.
func (c Capabilities) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns an independent copy of the set.
func (c Capabilities) Clone() Capabilities {
	clone := make(Capabilities, len(c))
	for name := range c {
		clone[name] = struct{}{}
	}
	return clone
}
