package agents

// Ring is a fixed-capacity buffer that evicts its oldest item on overflow.
// Items are kept oldest first. The exported fields exist for JSON storage.
type Ring[T any] struct {
	Cap   int `json:"cap"`
	Items []T `json:"items"`
}

// NewRing returns an empty ring with the given capacity.
func NewRing[T any](capacity int) Ring[T] {
	return Ring[T]{Cap: capacity, Items: make([]T, 0, capacity)}
}

// Push appends v, dropping the oldest items beyond capacity.
func (r *Ring[T]) Push(v T) {
	r.Items = append(r.Items, v)
	if r.Cap > 0 && len(r.Items) > r.Cap {
		over := len(r.Items) - r.Cap
		copy(r.Items, r.Items[over:])
		r.Items = r.Items[:r.Cap]
	}
}

func (r *Ring[T]) Len() int {
	return len(r.Items)
}

// Last returns the newest item.
func (r *Ring[T]) Last() (T, bool) {
	var zero T
	if len(r.Items) == 0 {
		return zero, false
	}
	return r.Items[len(r.Items)-1], true
}

// All returns a copy of the items, oldest first.
func (r *Ring[T]) All() []T {
	out := make([]T, len(r.Items))
	copy(out, r.Items)
	return out
}

// setCap restores the capacity and trims if needed.
func (r *Ring[T]) setCap(capacity int) {
	r.Cap = capacity
	if len(r.Items) > capacity {
		r.Items = r.Items[len(r.Items)-capacity:]
	}
}

func (r Ring[T]) clone() Ring[T] {
	out := Ring[T]{Cap: r.Cap, Items: make([]T, len(r.Items), max(r.Cap, len(r.Items)))}
	copy(out.Items, r.Items)
	return out
}
