package slices

// Map a slice to a new slice by applying f to each element.
func Map[T any, R any](sli []T, f func(T) R) []R {
	if sli == nil {
		return nil
	}
	ret := make([]R, len(sli))
	for i, v := range sli {
		ret[i] = f(v)
	}
	return ret
}

// Concat slices into one.
func Concat[T any](slis ...[]T) []T {
	total := 0
	for _, s := range slis {
		total += len(s)
	}
	ret := make([]T, 0, total)
	for _, s := range slis {
		ret = append(ret, s...)
	}
	return ret
}

// KeysOf returns keys of a map. Ordering is not guaranteed.
func KeysOf[K comparable, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// Contains returns true if sli has item.
func Contains[T comparable](sli []T, item T) bool {
	for _, v := range sli {
		if v == item {
			return true
		}
	}
	return false
}

// Filter returns elements of sli satisfying pred, keeping their order.
func Filter[T any](sli []T, pred func(T) bool) []T {
	ret := make([]T, 0, len(sli))
	for _, v := range sli {
		if pred(v) {
			ret = append(ret, v)
		}
	}
	return ret
}
