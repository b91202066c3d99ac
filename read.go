package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ericogr/plura-monitor/pkg/config"
	"github.com/ericogr/plura-monitor/pkg/store"
)

// NewReadCommand runs one sampling cycle and prints the readings.
func NewReadCommand() *cobra.Command {
	var flags *config.Flags
	cmd := &cobra.Command{
		Use:   "read",
		Short: "Run a single sampling cycle and print the readings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			p, err := newPipeline(cfg)
			if err != nil {
				return err
			}
			defer p.Close()

			if err := p.loop.Cycle(); err != nil {
				return err
			}
			printEntries(os.Stdout, p.store.ReadAll())
			return nil
		},
	}
	flags = config.BindFlags(cmd.Flags())
	return cmd
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}

func printEntries(w io.Writer, entries []store.Entry) {
	for _, e := range entries {
		r := e.Reading
		var value string
		switch {
		case !r.Valid:
			value = color.RedString("stale")
		case r.Calibrated:
			value = color.GreenString("%.2f %s", r.Value, r.Unit)
		default:
			value = color.YellowString("uncalibrated")
		}
		line := fmt.Sprintf("  %-20s %s", bold("%s", e.ID), value)
		if r.HasRaw {
			line += fmt.Sprintf("  raw=%d", r.Raw)
		}
		fmt.Fprintln(w, line)
	}
}
