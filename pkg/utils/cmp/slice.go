package cmp

// SliceEq checks two slices have the same elements in the same order.
func SliceEq[T comparable](a []T, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for nth := range a {
		if a[nth] != b[nth] {
			return false
		}
	}
	return true
}

// SliceEqWith checks two slices are element-wise equivalent under pred.
func SliceEqWith[T any, U any](a []T, b []U, pred func(a T, b U) bool) bool {
	if len(a) != len(b) {
		return false
	}
	for nth := range a {
		if !pred(a[nth], b[nth]) {
			return false
		}
	}
	return true
}

// SliceContentEq checks two slices have the same elements as multisets.
// Ordering does not matter.
//
//	SliceContentEq([]int{1, 2, 2, 3}, []int{3, 2, 1, 2})  // => true
//	SliceContentEq([]int{1, 2, 3}, []int{1, 2, 2})        // => false
func SliceContentEq[T comparable](a []T, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	rest := map[T]int{}
	for _, va := range a {
		rest[va] += 1
	}
	for _, vb := range b {
		n, ok := rest[vb]
		if !ok || n == 0 {
			return false
		}
		rest[vb] = n - 1
	}
	return true
}

// SliceContentEqWith checks a and b are the same as multisets
// in the equivalency given by pred.
func SliceContentEqWith[T any, U any](a []T, b []U, pred func(T, U) bool) bool {
	if len(a) != len(b) {
		return false
	}
	used := make([]bool, len(b))
	for _, va := range a {
		found := false
		for nth, vb := range b {
			if used[nth] {
				continue
			}
			if pred(va, vb) {
				used[nth] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
