package vm

// tableMaxLoad is the fraction of occupied buckets (tombstones included)
// that triggers growth.
const tableMaxLoad = 0.75

const tableMinCapacity = 8

type entry struct {
	key   *ObjString
	value Value
}

// isTombstone reports whether a keyless entry marks a deleted key.
func (e *entry) isTombstone() bool {
	return e.key == nil && !e.value.IsNil()
}

// Table is a hash map from interned strings to values using open addressing
// with linear probing. Deleted entries leave tombstones so probe sequences
// stay intact.
//
// Keys compare by pointer, which is sound because every key is interned.
// The zero Table is empty and ready to use.
type Table struct {
	count   int // live entries plus tombstones
	entries []entry
}

// Len returns the number of live entries.
func (t *Table) Len() int {
	n := 0
	for i := range t.entries {
		if t.entries[i].key != nil {
			n++
		}
	}
	return n
}

// Capacity returns the number of buckets.
func (t *Table) Capacity() int {
	return len(t.entries)
}

// findEntry returns the bucket for key: either the bucket holding it, or the
// bucket an insert should use (the first tombstone passed, else the empty
// bucket that ended the probe). len(entries) must be a non-zero power of two.
func findEntry(entries []entry, key *ObjString) *entry {
	mask := uint32(len(entries) - 1)
	index := key.Hash & mask
	var tombstone *entry
	for {
		e := &entries[index]
		if e.key == nil {
			if !e.isTombstone() {
				if tombstone != nil {
					return tombstone
				}
				return e
			}
			if tombstone == nil {
				tombstone = e
			}
		} else if e.key == key {
			return e
		}
		index = (index + 1) & mask
	}
}

// Get looks up key.
func (t *Table) Get(key *ObjString) (Value, bool) {
	if t.count == 0 {
		return NilValue(), false
	}
	e := findEntry(t.entries, key)
	if e.key == nil {
		return NilValue(), false
	}
	return e.value, true
}

// Set stores value under key and reports whether the key was new.
func (t *Table) Set(key *ObjString, value Value) bool {
	if float64(t.count+1) > float64(len(t.entries))*tableMaxLoad {
		t.grow(growCapacity(len(t.entries)))
	}
	e := findEntry(t.entries, key)
	isNew := e.key == nil
	// Reusing a tombstone does not change count; it was already counted.
	if isNew && !e.isTombstone() {
		t.count++
	}
	e.key = key
	e.value = value
	return isNew
}

// Delete removes key, leaving a tombstone. It reports whether key was present.
func (t *Table) Delete(key *ObjString) bool {
	if t.count == 0 {
		return false
	}
	e := findEntry(t.entries, key)
	if e.key == nil {
		return false
	}
	e.key = nil
	e.value = BoolValue(true)
	return true
}

// AddAll copies every live entry of from into t.
func (t *Table) AddAll(from *Table) {
	for i := range from.entries {
		e := &from.entries[i]
		if e.key != nil {
			t.Set(e.key, e.value)
		}
	}
}

// FindString finds an interned key by contents rather than identity.
// It is how the heap deduplicates strings before allocating them.
func (t *Table) FindString(chars string, hash uint32) *ObjString {
	if t.count == 0 {
		return nil
	}
	mask := uint32(len(t.entries) - 1)
	index := hash & mask
	for {
		e := &t.entries[index]
		if e.key == nil {
			if !e.isTombstone() {
				return nil
			}
		} else if e.key.Hash == hash && e.key.Chars == chars {
			return e.key
		}
		index = (index + 1) & mask
	}
}

// Keys returns the live keys in bucket order.
func (t *Table) Keys() []*ObjString {
	keys := make([]*ObjString, 0, t.Len())
	for i := range t.entries {
		if t.entries[i].key != nil {
			keys = append(keys, t.entries[i].key)
		}
	}
	return keys
}

func growCapacity(capacity int) int {
	if capacity < tableMinCapacity {
		return tableMinCapacity
	}
	return capacity * 2
}

// grow rehashes live entries into a larger bucket array. Tombstones are
// dropped, so count is recomputed.
func (t *Table) grow(capacity int) {
	entries := make([]entry, capacity)
	t.count = 0
	for i := range t.entries {
		e := &t.entries[i]
		if e.key == nil {
			continue
		}
		dest := findEntry(entries, e.key)
		dest.key = e.key
		dest.value = e.value
		t.count++
	}
	t.entries = entries
}
