package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/reallyoldfogie/mcpr-studio/studio"
)

var convert struct {
	out    string
	outDir string
	suffix string
}

var convertCmd = &cobra.Command{
	Use:   "convert <replay.mcpr> [replay2.mcpr ...]",
	Short: "Filter replays and translate them to another protocol version",
	Long: `Run replays through filters and translate them to the target protocol.

Filters are instructions of the form name[key=value,...](from-to), applied
in order. Times are milliseconds or durations such as 1m30s; either end of
a window may be left open. Values separated by | form a list.

Filters: timestamp, remove, remove_mobs, packet_count, squash, neutralizer,
translate, progress.

Examples:
  mcpr convert --data protocol.toml --target 1.12.2 in.mcpr
  mcpr convert --filter 'remove[packets=chat|title](1m-2m)' --filter 'squash(-30s)' in.mcpr -o out.mcpr
  MCPR_WORKERS=8 mcpr convert --target 754 --out-dir converted/ *.mcpr`,
	Args: cobra.MinimumNArgs(1),
	RunE: runConvert,
}

func init() {
	f := convertCmd.Flags()
	f.StringVarP(&convert.out, "out", "o", "", "output path (single input only)")
	f.StringVar(&convert.outDir, "out-dir", "", "directory for outputs; defaults to each input's directory")
	f.StringVar(&convert.suffix, "suffix", "", "output name suffix; defaults to -<target>")
	f.String("target", "", "target protocol number or release")
	f.Bool("strict", false, "fail on clamped timestamps and untranslatable packets")
	f.StringArrayP("filter", "f", nil, "filter instruction (repeatable)")
	f.IntP("workers", "j", 4, "replays converted at once")
	f.Bool("fail-fast", false, "stop at the first failed replay")
	_ = v.BindPFlag("target", f.Lookup("target"))
	_ = v.BindPFlag("strict", f.Lookup("strict"))
	_ = v.BindPFlag("filters", f.Lookup("filter"))
	_ = v.BindPFlag("workers", f.Lookup("workers"))
	_ = v.BindPFlag("fail_fast", f.Lookup("fail-fast"))
}

func outputPath(in, target string) string {
	if convert.out != "" {
		return convert.out
	}
	dir := filepath.Dir(in)
	if convert.outDir != "" {
		dir = convert.outDir
	}
	suffix := convert.suffix
	if suffix == "" {
		suffix = "-converted"
		if target != "" {
			suffix = "-" + target
		}
	}
	base := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
	return filepath.Join(dir, base+suffix+".mcpr")
}

func runConvert(cmd *cobra.Command, files []string) error {
	if convert.out != "" && len(files) > 1 {
		return fmt.Errorf("--out takes a single input, got %d", len(files))
	}
	plan, err := cfg.Plan()
	if err != nil {
		return err
	}
	plan.Logger = &logger
	if convert.outDir != "" {
		if err := os.MkdirAll(convert.outDir, 0o755); err != nil {
			return err
		}
	}
	jobs := make([]studio.Job, len(files))
	for i, in := range files {
		jobs[i] = studio.Job{In: in, Out: outputPath(in, cfg.Target)}
	}
	results, err := studio.ConvertAll(cmd.Context(), jobs, plan, studio.BatchOptions{
		Workers:  cfg.Workers,
		FailFast: cfg.FailFast,
	})
	for _, res := range results {
		if res == nil {
			continue
		}
		size := "?"
		if info, serr := os.Stat(res.Out); serr == nil {
			size = humanize.Bytes(uint64(info.Size()))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s: protocol %d -> %d, %s of %s packets kept, %s\n",
			res.In, res.Out, res.From, res.To,
			humanize.Comma(int64(res.Stats.Out)), humanize.Comma(int64(res.Stats.In)), size)
	}
	return err
}
