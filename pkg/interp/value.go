package interp

// Kind tags a script value.
type Kind int

const (
	KindString Kind = iota
	KindClient
	KindChannel
	KindArray
)

// Value is the tagged union stored in variables and array elements.
// Client and Channel bindings are weak references into the world.
type Value struct {
	Kind    Kind
	Str     string
	Client  Client
	Channel Channel
	Array   *Array
}

// StringValue wraps a plain string.
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

// ClientValue wraps a live client binding.
func ClientValue(c Client) Value { return Value{Kind: KindClient, Client: c} }

// ChannelValue wraps a live channel binding.
func ChannelValue(ch Channel) Value { return Value{Kind: KindChannel, Channel: ch} }

// ArrayValue wraps an array.
func ArrayValue(a *Array) Value { return Value{Kind: KindArray, Array: a} }

// Array is a growable vector of value slots. Writes past the end grow
// the vector and backfill the gap with empty slots; reads past the end
// report absence, which substitution renders as the $null literal.
type Array struct {
	elems []*Value
}

// NewArray returns an empty array.
func NewArray() *Array { return &Array{} }

// Len is the number of slots, including backfilled gaps.
func (a *Array) Len() int { return len(a.elems) }

// Push appends a value.
func (a *Array) Push(v Value) {
	a.elems = append(a.elems, &v)
}

// Get returns the element at i, or nil when i is out of range or the
// slot is a backfilled gap.
func (a *Array) Get(i int) *Value {
	if i < 0 || i >= len(a.elems) {
		return nil
	}
	return a.elems[i]
}

// Set stores v at index i, growing the array with empty slots as
// needed. Negative indexes are ignored.
func (a *Array) Set(i int, v Value) {
	if i < 0 {
		return
	}
	for len(a.elems) <= i {
		a.elems = append(a.elems, nil)
	}
	a.elems[i] = &v
}

// Variable is one named binding in a scope.
type Variable struct {
	Name  string
	Val   Value
	Const bool
}
