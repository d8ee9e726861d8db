package brush

import "sort"

// DisabledSet holds nodules manually excluded from contact. It only affects
// contact evaluation, never layout generation, and survives parameter edits.
type DisabledSet map[NoduleKey]struct{}

// NewDisabledSet returns an empty set.
func NewDisabledSet() DisabledSet {
	return make(DisabledSet)
}

// Has reports whether k is disabled.
func (d DisabledSet) Has(k NoduleKey) bool {
	_, ok := d[k]
	return ok
}

// Add disables k.
func (d DisabledSet) Add(k NoduleKey) { d[k] = struct{}{} }

// Remove re-enables k.
func (d DisabledSet) Remove(k NoduleKey) { delete(d, k) }

// Toggle flips k and reports whether it is now disabled.
func (d DisabledSet) Toggle(k NoduleKey) bool {
	if d.Has(k) {
		d.Remove(k)
		return false
	}
	d.Add(k)
	return true
}

// Clear re-enables every nodule.
func (d DisabledSet) Clear() {
	for k := range d {
		delete(d, k)
	}
}

// Clone returns an independent copy.
func (d DisabledSet) Clone() DisabledSet {
	out := make(DisabledSet, len(d))
	for k := range d {
		out[k] = struct{}{}
	}
	return out
}

// Keys returns the disabled keys ordered by row, then index.
func (d DisabledSet) Keys() []NoduleKey {
	keys := make([]NoduleKey, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Row != keys[j].Row {
			return keys[i].Row < keys[j].Row
		}
		return keys[i].Index < keys[j].Index
	})
	return keys
}
