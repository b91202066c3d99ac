package console

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ericogr/plura-monitor/pkg/output"
	"github.com/ericogr/plura-monitor/pkg/store"
)

type ConsoleOutput struct {
	w io.Writer
}

func NewConsole() output.Output { return &ConsoleOutput{} }

// NewConsoleWriter writes to w instead of stdout.
func NewConsoleWriter(w io.Writer) output.Output { return &ConsoleOutput{w: w} }

func (c *ConsoleOutput) Publish(entries []store.Entry) error {
	w := c.w
	if w == nil {
		w = os.Stdout
	}
	for _, e := range entries {
		r := e.Reading
		value := "-"
		if r.Calibrated {
			value = fmt.Sprintf("%.6f", r.Value)
		}
		if r.HasRaw {
			fmt.Fprintf(w, "%s channel=%s raw=%d value=%s unit=%s\n", r.UpdatedAt.Format(time.RFC3339), e.ID, r.Raw, value, r.Unit)
		} else {
			fmt.Fprintf(w, "%s channel=%s value=%s unit=%s\n", r.UpdatedAt.Format(time.RFC3339), e.ID, value, r.Unit)
		}
	}
	return nil
}

func (c *ConsoleOutput) Close() error { return nil }
