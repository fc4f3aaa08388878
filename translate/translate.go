// Package translate rewrites raw packets recorded under one protocol version
// into the layout of another.
//
// A translation walks the version boundaries between source and target that
// change the packet, in order. A packet no boundary touches is passed through
// byte for byte. Upgrading crosses boundaries ascending: the packet is migrated into
// the newer schema, then the boundary's remap tables and NBT migrations are
// applied. Downgrading crosses them descending and undoes each step in
// reverse. Remap tables are only meaningful relative to adjacent boundaries,
// so distant versions are never mapped directly.
package translate

import (
	"errors"
	"fmt"

	"github.com/reallyoldfogie/mcpr-studio/protocol"
)

var (
	// ErrMalformedPacket means the packet does not decode under its source
	// schema.
	ErrMalformedPacket = errors.New("translate: malformed packet")
	// ErrUnsupportedDowngrade means the packet holds something the target
	// version cannot represent. Upgrades that cannot migrate a packet fail
	// with it too; Failure names the direction.
	ErrUnsupportedDowngrade = errors.New("translate: unsupported downgrade")
)

// Outcome says what happened to a packet.
type Outcome uint8

const (
	// Translated packets carry new bytes in Result.Data.
	Translated Outcome = iota
	// PassThrough packets are emitted unchanged; Result.Data is the input.
	PassThrough
	// Dropped packets have no equivalent in the target version and must be
	// left out of the output.
	Dropped
)

func (o Outcome) String() string {
	switch o {
	case Translated:
		return "translated"
	case PassThrough:
		return "pass-through"
	case Dropped:
		return "dropped"
	}
	return fmt.Sprintf("outcome(%d)", uint8(o))
}

// Result is a translated packet and what happened to it.
type Result struct {
	Outcome Outcome
	Data    []byte
}

// Failure is the error returned for packets that cannot be translated. It
// matches both its Kind (ErrMalformedPacket or ErrUnsupportedDowngrade) and
// its cause with errors.Is.
type Failure struct {
	Kind     error
	Packet   string
	ID       int32
	From, To protocol.Version
	Err      error
}

func (f *Failure) Error() string {
	name := f.Packet
	if name == "" {
		name = fmt.Sprintf("0x%02x", f.ID)
	}
	return fmt.Sprintf("%v: %s %s %d -> %d: %v", f.Kind, name, f.direction(), f.From, f.To, f.Err)
}

func (f *Failure) direction() string {
	if f.From < f.To {
		return "upgrade"
	}
	return "downgrade"
}

func (f *Failure) Unwrap() []error { return []error{f.Kind, f.Err} }

// Engine translates packets against one registry. It holds no mutable
// state and may be shared between goroutines.
type Engine struct {
	reg *protocol.Registry
}

func New(reg *protocol.Registry) *Engine {
	return &Engine{reg: reg}
}

func (e *Engine) Registry() *protocol.Registry { return e.reg }

// TranslatePacket is Engine.Translate without an engine.
func TranslatePacket(reg *protocol.Registry, src, dst protocol.Version, dir protocol.Direction, raw []byte) (Result, error) {
	return New(reg).Translate(src, dst, dir, raw)
}

// Translate re-encodes raw, a packet sent in direction dir under src, for
// dst. raw is never modified.
func (e *Engine) Translate(src, dst protocol.Version, dir protocol.Direction, raw []byte) (Result, error) {
	pass := Result{Outcome: PassThrough, Data: raw}
	if src == dst {
		return pass, nil
	}
	id, _, err := protocol.PacketID(raw)
	if err != nil {
		return Result{}, &Failure{Kind: ErrMalformedPacket, From: src, To: dst, Err: err}
	}
	schema, err := e.reg.Lookup(src, id, dir)
	if err != nil {
		// Unknown packets and versions are not ours to touch.
		return pass, nil
	}
	fail := func(kind, err error) (Result, error) {
		return Result{}, &Failure{Kind: kind, Packet: schema.Name, ID: id, From: src, To: dst, Err: err}
	}
	if _, err := e.reg.ClosestKnownVersion(dst); err != nil {
		return fail(ErrUnsupportedDowngrade, err)
	}
	bounds := e.reg.PacketBoundaries(src, dst, schema.Name)
	if len(bounds) == 0 {
		return pass, nil
	}

	p, err := protocol.Decode(schema, raw)
	if err != nil {
		return fail(ErrMalformedPacket, err)
	}
	var dropped bool
	if src < dst {
		p, dropped, err = e.upgrade(p, dir, bounds)
	} else {
		p, dropped, err = e.downgrade(p, dir, bounds)
	}
	if err != nil {
		return fail(ErrUnsupportedDowngrade, err)
	}
	if dropped {
		return Result{Outcome: Dropped}, nil
	}
	out, err := protocol.Encode(p)
	if err != nil {
		return fail(ErrUnsupportedDowngrade, err)
	}
	return Result{Outcome: Translated, Data: out}, nil
}

func (e *Engine) upgrade(p *protocol.Packet, dir protocol.Direction, bounds []protocol.Version) (*protocol.Packet, bool, error) {
	name := p.Schema.Name
	for _, b := range bounds {
		next, err := e.reg.ByName(b, dir, name)
		if errors.Is(err, protocol.ErrUnknownPacketType) {
			return nil, true, nil
		}
		if err != nil {
			return nil, false, err
		}
		if p, err = Migrate(p, next); err != nil {
			return nil, false, fmt.Errorf("at %d: %w", b, err)
		}
		for _, t := range e.reg.Remaps(b, name) {
			if err := t.Apply(p); err != nil {
				return nil, false, fmt.Errorf("at %d: %w", b, err)
			}
		}
		for _, m := range e.reg.Migrations(b, name) {
			if err := m.Apply(p); err != nil {
				return nil, false, fmt.Errorf("at %d: %w", b, err)
			}
		}
	}
	return p, false, nil
}

func (e *Engine) downgrade(p *protocol.Packet, dir protocol.Direction, bounds []protocol.Version) (*protocol.Packet, bool, error) {
	name := p.Schema.Name
	for _, b := range bounds {
		ms := e.reg.Migrations(b, name)
		for i := len(ms) - 1; i >= 0; i-- {
			inv, ok := ms[i].Inverse()
			if !ok {
				continue
			}
			if err := inv.Apply(p); err != nil {
				return nil, false, fmt.Errorf("at %d: %w", b, err)
			}
		}
		ts := e.reg.Remaps(b, name)
		for i := len(ts) - 1; i >= 0; i-- {
			if err := ts[i].Inverse().Apply(p); err != nil {
				return nil, false, fmt.Errorf("at %d: %w", b, err)
			}
		}
		prev, err := e.reg.ByName(b-1, dir, name)
		if errors.Is(err, protocol.ErrUnknownPacketType) {
			return nil, true, nil
		}
		if err != nil {
			return nil, false, err
		}
		if p, err = Migrate(p, prev); err != nil {
			return nil, false, fmt.Errorf("below %d: %w", b, err)
		}
	}
	return p, false, nil
}
