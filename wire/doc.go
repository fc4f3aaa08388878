// Package wire implements the primitive types of the Minecraft network
// protocol: VarInt/VarLong, length-prefixed strings, big-endian fixed-width
// numbers, UUIDs, block positions and angles.
//
// Every decoder works on an immutable byte slice and reports how many bytes
// it consumed. Decoding never mutates or retains ownership of the input.
package wire
