package shadow

import "github.com/dolthub/swiss"

// Registry is a table of shadow records for a single object kind, keyed by the
// downstream handle. It performs no locking of its own: callers synchronize
// according to the lock that owns the table.
type Registry[H comparable, R any] struct {
	entries *swiss.Map[H, *R]
}

func NewRegistry[H comparable, R any]() *Registry[H, R] {
	return &Registry[H, R]{
		entries: swiss.NewMap[H, *R](8),
	}
}

// Get returns the record for handle, or nil if the handle is untracked.
func (r *Registry[H, R]) Get(handle H) *R {
	record, _ := r.entries.Get(handle)
	return record
}

func (r *Registry[H, R]) Put(handle H, record *R) {
	r.entries.Put(handle, record)
}

// Delete removes and returns the record for handle, or nil if it was never
// tracked. Deleting an untracked handle is not an error: destruction calls are
// forwarded for objects created before this layer began tracking.
func (r *Registry[H, R]) Delete(handle H) *R {
	record, ok := r.entries.Get(handle)
	if !ok {
		return nil
	}
	r.entries.Delete(handle)
	return record
}

func (r *Registry[H, R]) Len() int {
	return r.entries.Count()
}

// Range calls visit for each entry until visit returns false. Mutating the
// registry from inside visit is not permitted; use DeleteWhere for that.
func (r *Registry[H, R]) Range(visit func(handle H, record *R) bool) {
	r.entries.Iter(func(handle H, record *R) bool {
		return !visit(handle, record)
	})
}

// Handles returns the tracked handles in unspecified order.
func (r *Registry[H, R]) Handles() []H {
	handles := make([]H, 0, r.entries.Count())
	r.entries.Iter(func(handle H, _ *R) bool {
		handles = append(handles, handle)
		return false
	})
	return handles
}

// DeleteWhere removes every record selected by match and returns the removed
// handles. The selection pass completes before any entry is removed, so match
// observes a consistent table.
func (r *Registry[H, R]) DeleteWhere(match func(handle H, record *R) bool) []H {
	var selected []H
	r.entries.Iter(func(handle H, record *R) bool {
		if match(handle, record) {
			selected = append(selected, handle)
		}
		return false
	})
	for _, handle := range selected {
		r.entries.Delete(handle)
	}
	return selected
}
