package mcpr

import "github.com/reallyoldfogie/mcpr-studio/protocol"

// CurrentFileFormatVersion is the latest ReplayMod MCPR format supported by this package.
const CurrentFileFormatVersion = 14

// Archive entry names.
const (
	RecordingEntry = "recording.tmcpr"
	MetaEntry      = "metaData.json"
	ModsEntry      = "mods.json"
	CRCEntry       = "recording.tmcpr.crc32"
)

const defaultGenerator = "mcpr-studio"

// Meta describes the metaData.json fields written alongside the packet stream.
// Only a subset is required by ReplayMod; optional fields are emitted when set.
type Meta struct {
	Singleplayer      bool     `json:"singleplayer"` // Always include, even if false
	ServerName        string   `json:"serverName,omitempty"`
	CustomServerName  string   `json:"customServerName,omitempty"`
	Duration          int      `json:"duration,omitempty"` // milliseconds
	Date              int64    `json:"date,omitempty"`     // unix ms
	MCVersion         string   `json:"mcversion,omitempty"`
	FileFormat        string   `json:"fileFormat,omitempty"`
	FileFormatVersion int      `json:"fileFormatVersion,omitempty"`
	Protocol          int      `json:"protocol,omitempty"` // MC network protocol id
	Generator         string   `json:"generator,omitempty"`
	SelfID            int      `json:"selfId,omitempty"`
	Players           []string `json:"players,omitempty"`
}

// ProtocolVersion returns the protocol the replay was recorded with.
func (m Meta) ProtocolVersion() protocol.Version { return protocol.Version(m.Protocol) }

// WithProtocol returns m retargeted to v, updating the release name when it
// is known.
func (m Meta) WithProtocol(v protocol.Version) Meta {
	m.Protocol = int(v)
	if name := v.Release(); name != "" {
		m.MCVersion = name
	}
	return m
}

func (m *Meta) applyDefaults() {
	if m.FileFormat == "" {
		m.FileFormat = "MCPR"
	}
	if m.FileFormatVersion == 0 {
		m.FileFormatVersion = CurrentFileFormatVersion
	}
	if m.Generator == "" {
		m.Generator = defaultGenerator
	}
	if m.MCVersion == "" {
		m.MCVersion = m.ProtocolVersion().Release()
	}
}
