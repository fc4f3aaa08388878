package protocol

import (
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/reallyoldfogie/mcpr-studio/nbt"
)

// Format is the encoding of a protocol data file.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// FormatOf picks a format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("protocol: cannot tell the format of %q from its extension", path)
}

type dataFile struct {
	Versions   []versionData   `toml:"version" yaml:"version"`
	Remaps     []remapData     `toml:"remap" yaml:"remap"`
	Migrations []migrationData `toml:"nbt_migration" yaml:"nbt_migration"`
}

type versionData struct {
	Protocol any          `toml:"protocol" yaml:"protocol"`
	Inherit  bool         `toml:"inherit" yaml:"inherit"`
	Remove   []string     `toml:"remove" yaml:"remove"`
	Packets  []packetData `toml:"packet" yaml:"packet"`
}

type packetData struct {
	Name      string      `toml:"name" yaml:"name"`
	ID        any         `toml:"id" yaml:"id"`
	Direction string      `toml:"direction" yaml:"direction"`
	Discard   []string    `toml:"discard" yaml:"discard"`
	Fields    []fieldData `toml:"field" yaml:"field"`
}

type fieldData struct {
	Name    string `toml:"name" yaml:"name"`
	Type    string `toml:"type" yaml:"type"`
	Elem    string `toml:"elem" yaml:"elem"`
	Default any    `toml:"default" yaml:"default"`
}

type remapData struct {
	Version any               `toml:"version" yaml:"version"`
	Packet  string            `toml:"packet" yaml:"packet"`
	Field   string            `toml:"field" yaml:"field"`
	Path    []string          `toml:"path" yaml:"path"`
	IDs     map[string]int64  `toml:"ids" yaml:"ids"`
	Names   map[string]string `toml:"names" yaml:"names"`
}

type migrationData struct {
	Version any      `toml:"version" yaml:"version"`
	Packet  string   `toml:"packet" yaml:"packet"`
	Field   string   `toml:"field" yaml:"field"`
	Op      string   `toml:"op" yaml:"op"`
	Path    []string `toml:"path" yaml:"path"`
	To      string   `toml:"to" yaml:"to"`
}

// LoadFile reads a TOML or YAML protocol data file and builds a registry.
func LoadFile(path string) (*Registry, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	reg, err := Load(f, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reg, nil
}

// Load decodes protocol data from r and builds a registry.
//
// A TOML file looks like:
//
//	[[version]]
//	protocol = 47
//	[[version.packet]]
//	name = "spawn_mob"
//	id = 0x0f
//	[[version.packet.field]]
//	name = "type"
//	type = "ubyte"
//
//	[[remap]]
//	version = 50
//	packet = "spawn_mob"
//	field = "type"
//	ids = { "12" = 99 }
//
// YAML files use the same keys.
func Load(r io.Reader, format Format) (*Registry, error) {
	var df dataFile
	switch format {
	case FormatTOML:
		if _, err := toml.NewDecoder(r).Decode(&df); err != nil {
			return nil, fmt.Errorf("protocol: toml: %w", err)
		}
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&df); err != nil && err != io.EOF {
			return nil, fmt.Errorf("protocol: yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("protocol: unknown data format %q", format)
	}
	b, err := df.builder()
	if err != nil {
		return nil, err
	}
	return b.Build()
}

func (df *dataFile) builder() (*Builder, error) {
	b := NewBuilder()
	for _, vd := range df.Versions {
		v, err := versionOf(vd.Protocol)
		if err != nil {
			return nil, err
		}
		vs := VersionSpec{Version: v, Inherit: vd.Inherit, Remove: vd.Remove}
		for _, pd := range vd.Packets {
			ps, err := pd.schema()
			if err != nil {
				return nil, fmt.Errorf("protocol: version %d: %w", v, err)
			}
			vs.Packets = append(vs.Packets, ps)
		}
		b.AddVersion(vs)
	}
	for _, rd := range df.Remaps {
		v, err := versionOf(rd.Version)
		if err != nil {
			return nil, err
		}
		t := RemapTable{Version: v, Packet: rd.Packet, Field: rd.Field, Path: rd.Path, Names: rd.Names}
		if len(rd.IDs) > 0 {
			t.IDs = make(map[int64]int64, len(rd.IDs))
			for k, n := range rd.IDs {
				old, err := strconv.ParseInt(strings.TrimSpace(k), 0, 64)
				if err != nil {
					return nil, fmt.Errorf("protocol: remap %s.%s: id %q: %w", rd.Packet, rd.Field, k, err)
				}
				t.IDs[old] = n
			}
		}
		b.AddRemap(t)
	}
	for _, md := range df.Migrations {
		v, err := versionOf(md.Version)
		if err != nil {
			return nil, err
		}
		op, err := ParseMigrationOp(md.Op)
		if err != nil {
			return nil, err
		}
		b.AddNBTMigration(NBTMigration{Version: v, Packet: md.Packet, Field: md.Field, Op: op, Path: md.Path, To: md.To})
	}
	return b, nil
}

func (pd packetData) schema() (PacketSchema, error) {
	id, err := intOf(pd.ID)
	if err != nil {
		return PacketSchema{}, fmt.Errorf("packet %q id: %w", pd.Name, err)
	}
	if id < 0 || id > math.MaxInt32 {
		return PacketSchema{}, fmt.Errorf("packet %q id %d out of range", pd.Name, id)
	}
	dir, err := ParseDirection(pd.Direction)
	if err != nil {
		return PacketSchema{}, err
	}
	ps := PacketSchema{Name: pd.Name, ID: int32(id), Direction: dir, Discard: pd.Discard}
	for _, fd := range pd.Fields {
		f, err := fd.spec()
		if err != nil {
			return PacketSchema{}, fmt.Errorf("packet %q: %w", pd.Name, err)
		}
		ps.Fields = append(ps.Fields, f)
	}
	return ps, nil
}

func (fd fieldData) spec() (FieldSpec, error) {
	kind, err := ParseFieldKind(fd.Type)
	if err != nil {
		return FieldSpec{}, err
	}
	f := FieldSpec{Name: fd.Name, Kind: kind}
	if kind == KindArray {
		if f.Elem, err = ParseFieldKind(fd.Elem); err != nil {
			return FieldSpec{}, fmt.Errorf("field %q elem: %w", fd.Name, err)
		}
	}
	if fd.Default != nil {
		d, err := defaultValue(kind, fd.Default)
		if err != nil {
			return FieldSpec{}, fmt.Errorf("field %q default: %w", fd.Name, err)
		}
		f.Default = &d
	}
	return f, nil
}

// defaultValue converts a decoded TOML/YAML scalar into a value of kind k.
// Byte fields take hex strings; NBT fields only take an empty string, which
// means "no tag".
func defaultValue(k FieldKind, raw any) (Value, error) {
	v := Value{Kind: k}
	switch {
	case k == KindBool:
		b, ok := raw.(bool)
		if !ok {
			return v, fmt.Errorf("want bool, got %T", raw)
		}
		if b {
			v.Int = 1
		}
	case k.Integer():
		n, err := intOf(raw)
		if err != nil {
			return v, err
		}
		v.Int = n
	case k == KindFloat || k == KindDouble:
		switch x := raw.(type) {
		case float64:
			v.Float = x
		default:
			n, err := intOf(raw)
			if err != nil {
				return v, err
			}
			v.Float = float64(n)
		}
	case k == KindString:
		s, ok := raw.(string)
		if !ok {
			return v, fmt.Errorf("want string, got %T", raw)
		}
		v.Str = s
	case k == KindUUID:
		s, _ := raw.(string)
		id, err := uuid.Parse(s)
		if err != nil {
			return v, err
		}
		v.UUID = id
	case isBytes(k):
		s, _ := raw.(string)
		b, err := hex.DecodeString(s)
		if err != nil {
			return v, err
		}
		v.Bytes = b
	case isNBT(k):
		if s, ok := raw.(string); !ok || s != "" {
			return v, fmt.Errorf("nbt defaults must be empty")
		}
		v.NBT = nbt.Root{Tag: nbt.End{}}
	case k == KindArray:
		items, ok := raw.([]any)
		if !ok {
			return v, fmt.Errorf("want list, got %T", raw)
		}
		v.Array = make([]int64, 0, len(items))
		for _, it := range items {
			n, err := intOf(it)
			if err != nil {
				return v, err
			}
			v.Array = append(v.Array, n)
		}
	default:
		return v, fmt.Errorf("%s fields cannot have defaults", k)
	}
	return v, nil
}

func intOf(raw any) (int64, error) {
	switch x := raw.(type) {
	case int:
		return int64(x), nil
	case int64:
		return x, nil
	case uint64:
		if x > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows int64", x)
		}
		return int64(x), nil
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("%g is not an integer", x)
		}
		return int64(x), nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(x), 0, 64)
	case nil:
		return 0, fmt.Errorf("missing value")
	}
	return 0, fmt.Errorf("want integer, got %T", raw)
}

func versionOf(raw any) (Version, error) {
	if s, ok := raw.(string); ok {
		return ParseVersion(s)
	}
	n, err := intOf(raw)
	if err != nil {
		return 0, fmt.Errorf("protocol: version: %w", err)
	}
	if n < 0 || n > math.MaxInt32 {
		return 0, fmt.Errorf("protocol: version %d out of range", n)
	}
	return Version(n), nil
}
