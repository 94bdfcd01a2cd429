package config

import (
	"math"
	"slices"
)

// AppSet is an unordered set of app IDs. Display order is derived on demand.
type AppSet map[uint32]struct{}

// NewAppSet creates a set holding ids
func NewAppSet(ids ...uint32) AppSet {
	s := make(AppSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s AppSet) Has(id uint32) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in ascending order
func (s AppSet) Sorted() []uint32 {
	ids := make([]uint32, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Equal reports whether both sets hold the same members
func (s AppSet) Equal(other AppSet) bool {
	if len(s) != len(other) {
		return false
	}
	for id := range s {
		if !other.Has(id) {
			return false
		}
	}
	return true
}

// AddApp inserts id. Returns false if it was already configured.
func (c *Config) AddApp(id uint32) bool {
	if c.Apps.IDs == nil {
		c.Apps.IDs = NewAppSet()
	}
	if c.Apps.IDs.Has(id) {
		return false
	}
	c.Apps.IDs[id] = struct{}{}
	return true
}

// RemoveApp deletes id from the app set and the exclusion overlay.
// Returns false if id was not configured.
func (c *Config) RemoveApp(id uint32) bool {
	delete(c.Apps.Excluded, id)
	if !c.Apps.IDs.Has(id) {
		return false
	}
	delete(c.Apps.IDs, id)
	return true
}

// ToggleExcluded flips the exclusion status of a configured app and returns the
// new status. ok is false when id is not configured; nothing changes then.
func (c *Config) ToggleExcluded(id uint32) (excluded bool, ok bool) {
	if !c.Apps.IDs.Has(id) {
		return false, false
	}
	if c.Apps.Excluded == nil {
		c.Apps.Excluded = NewAppSet()
	}
	if c.Apps.Excluded.Has(id) {
		delete(c.Apps.Excluded, id)
		return false, true
	}
	c.Apps.Excluded[id] = struct{}{}
	return true, true
}

// SetExcluded forces the exclusion status of a configured app
func (c *Config) SetExcluded(id uint32, excluded bool) bool {
	if !c.Apps.IDs.Has(id) {
		return false
	}
	if c.Apps.Excluded.Has(id) != excluded {
		c.ToggleExcluded(id)
	}
	return true
}

func (c *Config) IsExcluded(id uint32) bool {
	return c.Apps.Excluded.Has(id)
}

// ResolveApp maps operator input to a configured app ID.
//
// n is first read as a 1-based index into the ascending view of the app set;
// only when it falls outside 1..len is it taken as a literal app ID. A small app
// ID that is also a valid index therefore resolves as an index.
func (c *Config) ResolveApp(n uint64) (uint32, bool) {
	sorted := c.Apps.IDs.Sorted()
	if n >= 1 && n <= uint64(len(sorted)) {
		return sorted[n-1], true
	}
	if n > math.MaxUint32 {
		return 0, false
	}
	id := uint32(n)
	if c.Apps.IDs.Has(id) {
		return id, true
	}
	return 0, false
}

// ActiveApps returns the configured apps that are not excluded, ascending
func (c *Config) ActiveApps() []uint32 {
	ids := make([]uint32, 0, len(c.Apps.IDs))
	for _, id := range c.Apps.IDs.Sorted() {
		if !c.Apps.Excluded.Has(id) {
			ids = append(ids, id)
		}
	}
	return ids
}
