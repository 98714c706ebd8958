package form

// Field names one settable member of T. Fields are declared once per form
// type, so an update can only target a member that exists.
type Field[T any, V any] struct {
	name string
	set  func(*T, V)
}

// NewField declares a field of T.
func NewField[T any, V any](name string, set func(*T, V)) Field[T, V] {
	return Field[T, V]{name: name, set: set}
}

// Name reports the field name used in logs.
func (f Field[T, V]) Name() string { return f.name }

// Set returns a Setter assigning v to the field.
func (f Field[T, V]) Set(v V) Setter[T] {
	return Setter[T]{name: f.name, apply: func(t *T) { f.set(t, v) }}
}

// Setter is a pending assignment to one field of T.
type Setter[T any] struct {
	name  string
	apply func(*T)
}

// Name reports the target field.
func (s Setter[T]) Name() string { return s.name }
