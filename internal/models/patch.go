package models

import "encoding/json"

// Patch is a field of a partial update: either Unchanged (Set == false)
// or SetTo(Value). JSON null and an absent key both decode as Unchanged.
type Patch[T any] struct {
	Value T
	Set   bool
}

// SetTo returns a patch that overwrites the field with v
func SetTo[T any](v T) Patch[T] {
	return Patch[T]{Value: v, Set: true}
}

// Or returns the patched value, or current when the field is unchanged
func (p Patch[T]) Or(current T) T {
	if p.Set {
		return p.Value
	}
	return current
}

// UnmarshalJSON implements json.Unmarshaler
func (p *Patch[T]) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = Patch[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = SetTo(v)
	return nil
}
