// Package adapters bridges github.com/Tnze/go-mc packets (pk.Packet) and
// replay records.
package adapters

import (
	"fmt"

	pk "github.com/Tnze/go-mc/net/packet"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/reallyoldfogie/mcpr-studio/mcpr/packetlog"
	"github.com/reallyoldfogie/mcpr-studio/mcpr/recorder"
	"github.com/reallyoldfogie/mcpr-studio/protocol"
	"github.com/reallyoldfogie/mcpr-studio/wire"
)

// PacketFunc returns a handler compatible with go-mc style packet handlers
// (func(pk.Packet) error). It records each received clientbound packet with
// rec. A nil logger means the global one.
func PacketFunc(rec *recorder.Recorder, logger *zerolog.Logger) func(pk.Packet) error {
	if logger == nil {
		logger = &log.Logger
	}
	recordCount := 0
	return func(p pk.Packet) error {
		// Clone payload since upstream may reuse buffers
		data := make([]byte, len(p.Data))
		copy(data, p.Data)
		recordCount++
		if recordCount%100 == 0 {
			logger.Debug().Int("count", recordCount).Int32("id", int32(p.ID)).Int("len", len(data)).Msg("recorded packets")
		}
		return rec.RecordNow(int32(p.ID), data)
	}
}

// ToRecord converts p into a record at time ms.
func ToRecord(p pk.Packet, ms int64, dir protocol.Direction) packetlog.Record {
	id := int32(p.ID)
	data := wire.AppendVarInt(make([]byte, 0, wire.VarIntSize(id)+len(p.Data)), id)
	return packetlog.Record{Time: ms, Direction: dir, Data: append(data, p.Data...)}
}

// FromRecord splits a record into a go-mc packet. The packet data aliases
// the record.
func FromRecord(rec packetlog.Record) (pk.Packet, error) {
	id, n, err := wire.DecodeVarInt(rec.Data, 0)
	if err != nil {
		return pk.Packet{}, fmt.Errorf("adapters: packet id: %w", err)
	}
	return pk.Packet{ID: id, Data: rec.Data[n:]}, nil
}
