// Package history provides a bounded, linear undo/redo stack over
// arbitrary snapshot values.
//
// Records are stored by value. Callers that snapshot reference types must
// copy them before saving so that a pushed record never aliases live state.
package history

// DefaultMaxSteps is used when a non-positive depth is requested.
const DefaultMaxSteps = 50

// History is a bounded undo/redo stack.
//
// The top of the undo stack is the most recently committed state. Saving a
// new record clears the redo stack, and once the undo stack grows past
// maxSteps the oldest entry is evicted.
//
// History is not safe for concurrent use; owners serialise access.
type History[T any] struct {
	undo     []T
	redo     []T
	maxSteps int
}

// New creates a history holding at most maxSteps undo entries.
func New[T any](maxSteps int) *History[T] {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	return &History[T]{
		undo:     make([]T, 0, maxSteps),
		maxSteps: maxSteps,
	}
}

// Save pushes a record and invalidates the redo timeline.
func (h *History[T]) Save(record T) {
	h.undo = append(h.undo, record)
	h.redo = h.redo[:0]
	h.evict()
}

// Undo moves the newest undo entry onto the redo stack and returns the
// entry that is now current, which is the state the caller should apply.
// It reports false when there is no earlier state to apply.
func (h *History[T]) Undo() (T, bool) {
	var zero T
	if len(h.undo) == 0 {
		return zero, false
	}

	last := len(h.undo) - 1
	h.redo = append(h.redo, h.undo[last])
	h.undo = h.undo[:last]

	if len(h.undo) == 0 {
		return zero, false
	}
	return h.undo[len(h.undo)-1], true
}

// Redo moves the newest redo entry back onto the undo stack and returns it.
func (h *History[T]) Redo() (T, bool) {
	var zero T
	if len(h.redo) == 0 {
		return zero, false
	}

	last := len(h.redo) - 1
	record := h.redo[last]
	h.redo = h.redo[:last]
	h.undo = append(h.undo, record)
	h.evict()

	return record, true
}

// CanUndo reports whether Undo would move an entry.
func (h *History[T]) CanUndo() bool {
	return len(h.undo) > 0
}

// CanRedo reports whether Redo would move an entry.
func (h *History[T]) CanRedo() bool {
	return len(h.redo) > 0
}

// Current returns the top of the undo stack.
func (h *History[T]) Current() (T, bool) {
	var zero T
	if len(h.undo) == 0 {
		return zero, false
	}
	return h.undo[len(h.undo)-1], true
}

// Len returns the number of undo entries.
func (h *History[T]) Len() int {
	return len(h.undo)
}

// RedoLen returns the number of redo entries.
func (h *History[T]) RedoLen() int {
	return len(h.redo)
}

// MaxSteps returns the configured depth.
func (h *History[T]) MaxSteps() int {
	return h.maxSteps
}

// SetMaxSteps changes the depth, evicting the oldest entries if the undo
// stack no longer fits.
func (h *History[T]) SetMaxSteps(maxSteps int) {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	h.maxSteps = maxSteps
	h.evict()
}

// Entries returns a copy of the undo stack, oldest first.
func (h *History[T]) Entries() []T {
	out := make([]T, len(h.undo))
	copy(out, h.undo)
	return out
}

// RedoEntries returns a copy of the redo stack, next-to-redo last.
func (h *History[T]) RedoEntries() []T {
	out := make([]T, len(h.redo))
	copy(out, h.redo)
	return out
}

// Clear drops both stacks.
func (h *History[T]) Clear() {
	h.undo = h.undo[:0]
	h.redo = h.redo[:0]
}

func (h *History[T]) evict() {
	if overflow := len(h.undo) - h.maxSteps; overflow > 0 {
		// Shift in place; the backing array stays bounded by maxSteps.
		n := copy(h.undo, h.undo[overflow:])
		var zero T
		for i := n; i < len(h.undo); i++ {
			h.undo[i] = zero
		}
		h.undo = h.undo[:n]
	}
}
