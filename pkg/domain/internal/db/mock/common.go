package mocks

// CallLog records the arguments of each call against a mock method.
type CallLog[T any] []T

func (l CallLog[T]) Times() uint {
	return uint(len(l))
}

func (l CallLog[T]) Last() T {
	return l[len(l)-1]
}
