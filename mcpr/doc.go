// Package mcpr reads and writes ReplayMod (.mcpr) files.
//
// A replay is a ZIP archive with these entries:
//   - recording.tmcpr: stream of [timeBE:int32][lenBE:int32][varint packetId][packet bytes]
//   - metaData.json: replay metadata, written on Close()
//   - mods.json: required mods, always empty here
//   - recording.tmcpr.crc32: decimal CRC32 of recording.tmcpr used by ReplayMod's cache
//
// Writer emits packets incrementally as they are received and never buffers
// the whole recording. The duration in metadata is the largest timestamp
// observed. Reader streams recording.tmcpr through a packetlog.Decoder.
package mcpr
