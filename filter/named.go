package filter

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog"

	"github.com/reallyoldfogie/mcpr-studio/protocol"
	"github.com/reallyoldfogie/mcpr-studio/translate"
)

// Deps is what named filters may need to resolve their options.
type Deps struct {
	Registry *protocol.Registry
	Engine   *translate.Engine
	// Version is the protocol of the records entering the filter.
	Version protocol.Version
	Logger  zerolog.Logger
}

// Factory builds a filter from decoded instruction options.
type Factory func(opts map[string]any, deps Deps) (Filter, error)

var factories = map[string]Factory{
	"timestamp":    newTimestamp,
	"remove":       newRemove,
	"packet_count": newPacketCount,
	"squash":       newSquash,
	"translate":    newTranslate,
	"progress":     newProgress,
	"neutralizer":  newNeutralizer,
	"remove_mobs":  newRemoveMobs,
}

// Names lists the filters New knows.
func Names() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the filter called name.
func New(name string, opts map[string]any, deps Deps) (Filter, error) {
	factory, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("filter: unknown filter %q", name)
	}
	f, err := factory(opts, deps)
	if err != nil {
		return nil, fmt.Errorf("filter %s: %w", name, err)
	}
	return f, nil
}

// Millis is a duration in milliseconds. In options it may be written as a
// number of milliseconds or as a Go duration such as "1m30s".
type Millis int64

var millisType = reflect.TypeOf(Millis(0))

func millisHook(from, to reflect.Type, data any) (any, error) {
	if to != millisType || from.Kind() != reflect.String {
		return data, nil
	}
	return ParseTime(data.(string))
}

func decodeOptions(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       millisHook,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

// ParseTime parses a millisecond count ("1500") or a duration
// ("1h2m3s4ms", "-500ms").
func ParseTime(s string) (Millis, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Millis(n), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("filter: bad time %q", s)
	}
	return Millis(d.Milliseconds()), nil
}

// resolvePackets maps numeric ids ("0x26", "38") and packet names to ids at
// the dependency version.
func resolvePackets(refs []string, deps Deps) ([]int32, error) {
	var ids []int32
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		if n, err := strconv.ParseInt(ref, 0, 32); err == nil {
			ids = append(ids, int32(n))
			continue
		}
		if deps.Registry == nil {
			return nil, fmt.Errorf("packet %q: names need protocol data", ref)
		}
		s, err := deps.Registry.ByName(deps.Version, protocol.ClientBound, ref)
		if err != nil {
			return nil, err
		}
		ids = append(ids, s.ID)
	}
	return ids, nil
}

func newTimestamp(opts map[string]any, _ Deps) (Filter, error) {
	var o struct {
		Offset Millis `mapstructure:"offset"`
	}
	if err := decodeOptions(opts, &o); err != nil {
		return nil, err
	}
	return &Timestamp{Offset: int64(o.Offset)}, nil
}

func newRemove(opts map[string]any, deps Deps) (Filter, error) {
	var o struct {
		Packets []string `mapstructure:"packets"`
		Type    string   `mapstructure:"type"`
	}
	if err := decodeOptions(opts, &o); err != nil {
		return nil, err
	}
	if o.Type != "" {
		o.Packets = append(o.Packets, o.Type)
	}
	if len(o.Packets) == 0 {
		return nil, errors.New("no packets to remove")
	}
	ids, err := resolvePackets(o.Packets, deps)
	if err != nil {
		return nil, err
	}
	return NewRemove(ids...), nil
}

func newPacketCount(opts map[string]any, deps Deps) (Filter, error) {
	if err := decodeOptions(opts, &struct{}{}); err != nil {
		return nil, err
	}
	var namer func(int32) string
	if reg := deps.Registry; reg != nil {
		v := deps.Version
		namer = func(id int32) string {
			if s, err := reg.Lookup(v, id, protocol.ClientBound); err == nil {
				return s.Name
			}
			return hexID(id)
		}
	}
	return NewPacketCount(namer, deps.Logger), nil
}

func newSquash(opts map[string]any, deps Deps) (Filter, error) {
	o := struct {
		Latest    []string `mapstructure:"latest"`
		Merge     bool     `mapstructure:"merge"`
		Lifecycle `mapstructure:",squash"`
	}{Merge: true, Lifecycle: DefaultLifecycle()}
	if err := decodeLifecycleOptions(opts, &o, &o.Lifecycle, defaultSpawns); err != nil {
		return nil, err
	}
	ids, err := resolvePackets(o.Latest, deps)
	if err != nil {
		return nil, err
	}
	f := NewSquash(ids...)
	if !o.Merge || deps.Registry == nil {
		return f, nil
	}
	return f.WithLifecycle(deps.Registry, deps.Version, o.Lifecycle, deps.Logger)
}

func newNeutralizer(opts map[string]any, deps Deps) (Filter, error) {
	o := struct {
		Lifecycle `mapstructure:",squash"`
	}{DefaultLifecycle()}
	if err := decodeLifecycleOptions(opts, &o, &o.Lifecycle, defaultSpawns); err != nil {
		return nil, err
	}
	return NewNeutralizer(deps.Registry, deps.Version, o.Lifecycle, deps.Logger)
}

func newRemoveMobs(opts map[string]any, deps Deps) (Filter, error) {
	o := struct {
		Type      string  `mapstructure:"type"`
		Types     []int64 `mapstructure:"types"`
		Lifecycle `mapstructure:",squash"`
	}{Type: "type", Lifecycle: DefaultLifecycle()}
	if err := decodeLifecycleOptions(opts, &o, &o.Lifecycle, []string{"spawn_mob"}); err != nil {
		return nil, err
	}
	if len(o.Types) == 0 {
		return nil, errors.New("no mob types to remove")
	}
	return NewRemoveMobs(deps.Registry, deps.Version, o.Lifecycle, o.Type, o.Types, deps.Logger)
}

// decodeLifecycleOptions decodes opts into out, which embeds l. A spawn
// option replaces the spawn list instead of overwriting its first entries.
func decodeLifecycleOptions(opts map[string]any, out any, l *Lifecycle, spawns []string) error {
	l.Spawn = nil
	if err := decodeOptions(opts, out); err != nil {
		return err
	}
	if l.Spawn == nil {
		l.Spawn = append([]string(nil), spawns...)
	}
	return nil
}

func newTranslate(opts map[string]any, deps Deps) (Filter, error) {
	var o struct {
		To     string `mapstructure:"to"`
		From   string `mapstructure:"from"`
		Strict bool   `mapstructure:"strict"`
	}
	if err := decodeOptions(opts, &o); err != nil {
		return nil, err
	}
	if deps.Engine == nil {
		return nil, errors.New("no protocol data loaded")
	}
	if o.To == "" {
		return nil, errors.New("missing target version")
	}
	to, err := protocol.ParseVersion(o.To)
	if err != nil {
		return nil, err
	}
	from := deps.Version
	if o.From != "" {
		if from, err = protocol.ParseVersion(o.From); err != nil {
			return nil, err
		}
	}
	return NewTranslate(deps.Engine, from, to, o.Strict, deps.Logger), nil
}

func newProgress(opts map[string]any, deps Deps) (Filter, error) {
	var o struct {
		Every int    `mapstructure:"every"`
		Total Millis `mapstructure:"total"`
	}
	if err := decodeOptions(opts, &o); err != nil {
		return nil, err
	}
	return NewProgress(o.Every, int64(o.Total), deps.Logger), nil
}

// Versioned filters change the protocol of the records passing through.
type Versioned interface {
	OutputVersion() protocol.Version
}

// Instruction names a filter, its options and its window.
type Instruction struct {
	Name    string
	Options map[string]any
	From    int64
	To      int64
}

// ParseInstruction parses "name[key=value,...](from-to)". Options and window
// are optional; either side of the window may be empty. Values containing
// "|" become lists.
//
//	remove[packets=chat|title](1m-2m30s)
//	translate[to=1.16.5,strict=true]
func ParseInstruction(s string) (Instruction, error) {
	in := Instruction{From: Open, To: Open}
	s = strings.TrimSpace(s)
	rest := s
	if i := strings.IndexAny(rest, "[("); i >= 0 {
		in.Name, rest = rest[:i], rest[i:]
	} else {
		in.Name, rest = rest, ""
	}
	if in.Name == "" {
		return in, fmt.Errorf("filter: %q has no filter name", s)
	}
	if i := strings.IndexFunc(in.Name, func(r rune) bool {
		return r != '_' && (r < 'a' || r > 'z') && (r < '0' || r > '9')
	}); i >= 0 {
		return in, fmt.Errorf("filter: %q: bad character %q in filter name", s, in.Name[i])
	}
	if strings.HasPrefix(rest, "[") {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return in, fmt.Errorf("filter: %q: unterminated options", s)
		}
		in.Options = map[string]any{}
		for _, kv := range strings.Split(rest[1:end], ",") {
			if strings.TrimSpace(kv) == "" {
				continue
			}
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				return in, fmt.Errorf("filter: %q: option %q is not key=value", s, kv)
			}
			k = strings.TrimSpace(k)
			v = strings.TrimSpace(v)
			if strings.Contains(v, "|") {
				in.Options[k] = strings.Split(v, "|")
			} else {
				in.Options[k] = v
			}
		}
		rest = rest[end+1:]
	}
	if strings.HasPrefix(rest, "(") && strings.HasSuffix(rest, ")") {
		from, to, ok := strings.Cut(rest[1:len(rest)-1], "-")
		if !ok {
			return in, fmt.Errorf("filter: %q: window must be from-to", s)
		}
		var err error
		if in.From, err = parseBound(from); err != nil {
			return in, err
		}
		if in.To, err = parseBound(to); err != nil {
			return in, err
		}
		if in.From >= 0 && in.To >= 0 && in.From > in.To {
			return in, fmt.Errorf("filter: %q: window ends before it starts", s)
		}
		rest = ""
	}
	if rest != "" {
		return in, fmt.Errorf("filter: %q: unexpected %q", s, rest)
	}
	return in, nil
}

func parseBound(s string) (int64, error) {
	if strings.TrimSpace(s) == "" {
		return Open, nil
	}
	ms, err := ParseTime(s)
	if err != nil {
		return 0, err
	}
	if ms < 0 {
		return 0, fmt.Errorf("filter: window bound %q is negative", s)
	}
	return int64(ms), nil
}

// Build turns instructions into a pipeline. Each filter sees the protocol
// version left by the filters before it; the version after the last filter
// is returned.
func Build(instrs []Instruction, deps Deps) (*Pipeline, protocol.Version, error) {
	var stages []Stage
	for _, in := range instrs {
		f, err := New(in.Name, in.Options, deps)
		if err != nil {
			return nil, 0, err
		}
		stages = append(stages, Stage{Filter: f, From: in.From, To: in.To})
		if v, ok := f.(Versioned); ok {
			deps.Version = v.OutputVersion()
		}
	}
	return NewPipeline(stages...), deps.Version, nil
}
