package nbt

import (
	"fmt"

	gonbt "github.com/Tnze/go-mc/nbt"
)

// Unmarshal decodes t into the Go value v using go-mc's reflection-based
// decoder, so callers can read packet NBT into tagged structs:
//
//	var item struct {
//		ID    string `nbt:"id"`
//		Count int8   `nbt:"Count"`
//	}
//	err := nbt.Unmarshal(tag, &item)
func Unmarshal(t Tag, v any) error {
	data, err := Encode(Root{Tag: t}, Options{})
	if err != nil {
		return err
	}
	if err := gonbt.Unmarshal(data, v); err != nil {
		return fmt.Errorf("nbt: unmarshal into %T: %w", v, err)
	}
	return nil
}

// FromValue encodes the Go value v with go-mc's encoder and returns it as a
// tag tree.
func FromValue(v any) (Tag, error) {
	data, err := gonbt.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("nbt: marshal %T: %w", v, err)
	}
	root, _, err := Decode(data, Options{})
	if err != nil {
		return nil, err
	}
	return root.Tag, nil
}
