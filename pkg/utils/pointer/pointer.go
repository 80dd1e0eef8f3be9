package pointer

// Ref returns a pointer to v.
func Ref[T any](v T) *T {
	return &v
}

// SafeDeref dereferences p, or returns the zero value of T if p is nil.
func SafeDeref[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}

// Equal reports whether a and b are both nil or point to equal values.
func Equal[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
