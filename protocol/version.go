// Package protocol describes Minecraft protocol versions and the packet
// schemas that are valid under each of them.
//
// A Registry is built once from externally supplied data (see Load and
// Builder) and is immutable afterwards, so a single instance can be shared by
// any number of concurrent translations.
package protocol

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Version is a network protocol number. Protocol numbers increase with every
// release, so numeric order is release order.
type Version int32

var releases = map[Version]string{
	4:   "1.7.2",
	5:   "1.7.10",
	47:  "1.8.9",
	107: "1.9",
	110: "1.9.4",
	210: "1.10.2",
	316: "1.11.2",
	335: "1.12",
	340: "1.12.2",
	393: "1.13",
	404: "1.13.2",
	477: "1.14",
	498: "1.14.4",
	573: "1.15",
	578: "1.15.2",
	735: "1.16",
	754: "1.16.5",
	755: "1.17",
	756: "1.17.1",
	757: "1.18.1",
	758: "1.18.2",
	759: "1.19",
	760: "1.19.2",
	761: "1.19.3",
	762: "1.19.4",
	763: "1.20.1",
	764: "1.20.2",
	765: "1.20.4",
	766: "1.20.6",
	767: "1.21.1",
}

// Release returns the Minecraft release name for v, or "" if unknown.
func (v Version) Release() string { return releases[v] }

func (v Version) String() string {
	if name := releases[v]; name != "" {
		return fmt.Sprintf("%d (%s)", int32(v), name)
	}
	return strconv.Itoa(int(v))
}

// ParseVersion accepts a protocol number ("754") or a known release name
// ("1.16.5").
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 32); err == nil {
		return Version(n), nil
	}
	var matches []Version
	for v, name := range releases {
		if name == s {
			matches = append(matches, v)
		}
	}
	if len(matches) == 0 {
		return 0, fmt.Errorf("protocol: unknown version %q", s)
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i] < matches[j] })
	return matches[len(matches)-1], nil
}

// Direction says which side of the connection sent a packet.
type Direction uint8

const (
	ClientBound Direction = iota // server to client; everything ReplayMod records
	ServerBound
)

func (d Direction) String() string {
	switch d {
	case ClientBound:
		return "clientbound"
	case ServerBound:
		return "serverbound"
	}
	return fmt.Sprintf("direction(%d)", uint8(d))
}

// ParseDirection parses "clientbound"/"serverbound" and the short forms
// "s2c"/"c2s".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "clientbound", "s2c", "client":
		return ClientBound, nil
	case "serverbound", "c2s", "server":
		return ServerBound, nil
	}
	return 0, fmt.Errorf("protocol: unknown direction %q", s)
}
