package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/reallyoldfogie/mcpr-studio/mcpr"
	"github.com/reallyoldfogie/mcpr-studio/protocol"
)

type packetSpec struct {
	ts   uint32
	id   int32
	data []byte
}

type packetFlags []packetSpec

func (p *packetFlags) String() string { return fmt.Sprintf("%d packets", len(*p)) }
func (p *packetFlags) Type() string   { return "ts:id:hex" }

// Format: ts:id:hexpayload  e.g., 1500:38:0AFFEE
func (p *packetFlags) Set(v string) error {
	parts := strings.Split(v, ":")
	if len(parts) != 3 {
		return fmt.Errorf("invalid --packet, want ts:id:hexpayload")
	}
	ts, err := strconv.ParseUint(parts[0], 0, 32)
	if err != nil {
		return fmt.Errorf("ts: %w", err)
	}
	id, err := strconv.ParseUint(parts[1], 0, 31)
	if err != nil {
		return fmt.Errorf("id: %w", err)
	}
	payload, err := hex.DecodeString(parts[2])
	if err != nil {
		return fmt.Errorf("hexpayload: %w", err)
	}
	*p = append(*p, packetSpec{ts: uint32(ts), id: int32(id), data: payload})
	return nil
}

var create struct {
	out       string
	version   string
	generator string
	server    string
	selfID    int
	players   []string
	packets   packetFlags
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Write a replay from packets given on the command line",
	Long: `Write a replay from packets given on the command line. With no packets
the result is a valid empty replay.

Examples:
  mcpr create --out example.mcpr --version 1.16.5 --packet 0:0x1f:00000000000000ff
  mcpr create --version 47 --player 069a79f4-44e9-4726-a5be-fca90e38aaf5`,
	Args: cobra.NoArgs,
	RunE: runCreate,
}

func init() {
	f := createCmd.Flags()
	f.StringVarP(&create.out, "out", "o", "example.mcpr", "output .mcpr path")
	f.StringVar(&create.version, "version", "754", "protocol number or release, e.g. 754 or 1.16.5")
	f.StringVar(&create.generator, "generator", "", "generator string in metadata")
	f.StringVar(&create.server, "server", "", "server name in metadata")
	f.IntVar(&create.selfID, "self-id", 0, "entity id of the recording player")
	f.StringArrayVar(&create.players, "player", nil, "player UUID (repeatable)")
	f.Var(&create.packets, "packet", "packet spec ts:id:hexpayload (repeatable)")
}

func runCreate(cmd *cobra.Command, _ []string) error {
	version, err := protocol.ParseVersion(create.version)
	if err != nil {
		return err
	}
	w, err := mcpr.Create(create.out, mcpr.Meta{
		Protocol:   int(version),
		Generator:  create.generator,
		ServerName: create.server,
	})
	if err != nil {
		return fmt.Errorf("create writer: %w", err)
	}
	w.SetSelfID(create.selfID)
	for _, p := range create.players {
		if err := w.AddPlayer(p); err != nil {
			_ = w.Abort()
			return err
		}
	}
	for _, sp := range create.packets {
		if err := w.WritePacket(sp.ts, sp.id, sp.data); err != nil {
			_ = w.Abort()
			return fmt.Errorf("write packet: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	logger.Debug().Str("out", create.out).Int("protocol", int(version)).Msg("replay written")
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d packets)\n", create.out, len(create.packets))
	return nil
}
