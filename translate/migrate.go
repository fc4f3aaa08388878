package translate

import (
	"errors"
	"fmt"

	"github.com/reallyoldfogie/mcpr-studio/protocol"
)

// ErrFieldLost is returned when a migration would silently drop data.
var ErrFieldLost = errors.New("translate: field has no equivalent")

// Migrate moves p into schema to, matching fields by name. It fails closed:
//   - a field to needs but p lacks takes the field's Default, or fails;
//   - a field p has but to lacks is dropped only when it still holds its
//     default or to lists it in Discard, otherwise it fails;
//   - carried values are converted between kinds with range checks.
//
// The values of p are moved, not copied; p must not be used afterwards.
func Migrate(p *protocol.Packet, to *protocol.PacketSchema) (*protocol.Packet, error) {
	if p.Schema == to {
		return p, nil
	}
	out := &protocol.Packet{Schema: to, Values: make([]protocol.Value, len(to.Fields))}
	for i, f := range to.Fields {
		if v, ok := p.Get(f.Name); ok {
			cv, err := protocol.Convert(*v, f)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", to.Name, f.Name, err)
			}
			out.Values[i] = cv
			continue
		}
		if f.Default == nil {
			return nil, fmt.Errorf("%w: %s.%s is new and has no default", ErrFieldLost, to.Name, f.Name)
		}
		out.Values[i] = f.Default.Clone()
	}
	for i, f := range p.Schema.Fields {
		if _, ok := to.Field(f.Name); ok || to.Discards(f.Name) {
			continue
		}
		if f.Default != nil {
			d, err := protocol.Convert(*f.Default, f)
			if err == nil && d.Equal(p.Values[i]) {
				continue
			}
		}
		return nil, fmt.Errorf("%w: %s.%s does not exist in %s", ErrFieldLost, p.Schema.Name, f.Name, to)
	}
	return out, nil
}
