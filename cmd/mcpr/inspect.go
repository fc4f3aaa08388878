package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/reallyoldfogie/mcpr-studio/filter"
	"github.com/reallyoldfogie/mcpr-studio/mcpr"
	"github.com/reallyoldfogie/mcpr-studio/mcpr/packetlog"
	"github.com/reallyoldfogie/mcpr-studio/protocol"
)

var inspectTop int

var inspectCmd = &cobra.Command{
	Use:   "inspect <replay.mcpr>",
	Short: "Show a replay's metadata, entries and most common packets",
	Long: `Show a replay's metadata, archive entries and a packet histogram.
Packet names are shown when protocol data is given with --data.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().IntVarP(&inspectTop, "top", "n", 20, "number of packet types to list; 0 lists all")
}

func runInspect(cmd *cobra.Command, args []string) error {
	path := args[0]
	r, err := mcpr.OpenReader(path)
	if err != nil {
		return err
	}
	defer r.Close()
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	m := r.Meta()

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "file\t%s (%s)\n", path, humanize.Bytes(uint64(info.Size())))
	fmt.Fprintf(tw, "version\t%s (protocol %d)\n", m.MCVersion, m.Protocol)
	fmt.Fprintf(tw, "format\t%s v%d by %s\n", m.FileFormat, m.FileFormatVersion, m.Generator)
	if m.Date != 0 {
		fmt.Fprintf(tw, "recorded\t%s\n", humanize.Time(time.UnixMilli(m.Date)))
	}
	if m.ServerName != "" {
		fmt.Fprintf(tw, "server\t%s\n", m.ServerName)
	}
	fmt.Fprintf(tw, "duration\t%s\n", time.Duration(m.Duration)*time.Millisecond)
	fmt.Fprintf(tw, "players\t%d\n", len(m.Players))
	fmt.Fprintln(tw, "\t")
	for _, name := range r.Entries() {
		size, _ := r.EntrySize(name)
		fmt.Fprintf(tw, "%s\t%s\n", name, humanize.Bytes(size))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	deps := filter.Deps{Version: m.ProtocolVersion(), Logger: zerolog.Nop()}
	if cfg.Protocol != "" {
		if deps.Registry, err = protocol.LoadFile(cfg.Protocol); err != nil {
			return err
		}
	}
	f, err := filter.New("packet_count", nil, deps)
	if err != nil {
		return err
	}
	counter := f.(*filter.PacketCount)
	pr, err := r.Packets(packetlog.DecoderOptions{})
	if err != nil {
		return err
	}
	defer pr.Close()
	discard := filter.SinkFunc(func(packetlog.Record) error { return nil })
	stats, err := filter.NewPipeline(filter.Apply(counter)).Run(cmd.Context(), pr, discard)
	if err != nil {
		return err
	}

	tw = tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "\n%s packets\t\t\n", humanize.Comma(int64(stats.In)))
	for i, c := range counter.Counts() {
		if inspectTop > 0 && i == inspectTop {
			break
		}
		fmt.Fprintf(tw, "%s\t0x%02x\t%s\t\n", c.Name, c.ID, humanize.Comma(int64(c.Count)))
	}
	return tw.Flush()
}
