package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/reallyoldfogie/mcpr-studio/mcpr"
)

var validate struct {
	verbose bool
	quiet   bool
}

var errInvalid = errors.New("some replays are invalid")

var validateCmd = &cobra.Command{
	Use:   "validate <replay.mcpr> [replay2.mcpr ...]",
	Short: "Check replays for ReplayMod compatibility",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().BoolVarP(&validate.verbose, "verbose", "v", false, "print a summary of each replay")
	validateCmd.Flags().BoolVarP(&validate.quiet, "quiet", "q", false, "errors only")
}

func runValidate(cmd *cobra.Command, files []string) error {
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	l := logger
	if validate.quiet || !validate.verbose {
		l = zerolog.Nop()
	}
	failed := 0
	for _, file := range files {
		rep, err := mcpr.Validate(file, l)
		if err != nil {
			fmt.Fprintf(errOut, "❌ %s: %v\n", filepath.Base(file), err)
			failed++
			continue
		}
		if validate.quiet {
			continue
		}
		fmt.Fprintf(out, "✅ %s: valid\n", filepath.Base(file))
		for _, w := range rep.Warnings {
			fmt.Fprintf(out, "   ⚠ %s\n", w)
		}
		if validate.verbose {
			fmt.Fprintf(out, "   %s (protocol %d), %s packets over %s, %s\n",
				rep.Meta.MCVersion, rep.Meta.Protocol,
				humanize.Comma(int64(rep.Packets)),
				time.Duration(rep.Duration)*time.Millisecond,
				humanize.Bytes(uint64(rep.Size)))
		}
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", errInvalid, failed, len(files))
	}
	if !validate.quiet && len(files) > 1 {
		fmt.Fprintf(out, "\nAll %d replay files are valid!\n", len(files))
	}
	return nil
}
