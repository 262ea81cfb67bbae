package common

// Stack is an array backed LIFO work list.
type Stack[T any] interface {
	Pop() T
	Push(value T)
	Len() int
	Empty() bool
	Clear()
	Reserve(count int)
}

func NewStack[T any](construct func() T) Stack[T] {
	return &stack[T]{construct: construct}
}

type stack[T any] struct {
	data      []T
	construct func() T
}

// Clear keeps the backing array so the stack can be reused.
func (s *stack[T]) Clear() {
	s.data = s.data[:0]
}

// Pop on an empty stack returns the constructed zero element.
func (s *stack[T]) Pop() T {
	if s.Empty() {
		if s.construct != nil {
			return s.construct()
		}
		var zero T
		return zero
	}
	e := s.data[s.Len()-1]
	s.data = s.data[:s.Len()-1]
	return e
}

func (s *stack[T]) Push(value T) {
	s.data = append(s.data, value)
}

func (s *stack[T]) Len() int {
	return len(s.data)
}

func (s *stack[T]) Empty() bool {
	return s.Len() == 0
}

// Reserve grows the capacity without changing the length.
func (s *stack[T]) Reserve(count int) {
	if count <= cap(s.data) {
		return
	}
	data := make([]T, len(s.data), count)
	copy(data, s.data)
	s.data = data
}
