package console

import (
	"bytes"
	"io"
	"os"
	"testing"
	"time"

	"github.com/ericogr/plura-monitor/pkg/store"
)

func captureStdout(f func()) string {
	r, w, _ := os.Pipe()
	stdout := os.Stdout
	os.Stdout = w
	outC := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		outC <- buf.String()
	}()
	f()
	_ = w.Close()
	os.Stdout = stdout
	return <-outC
}

func TestConsolePublish(t *testing.T) {
	c := NewConsole()
	ts := time.Date(2025, 9, 19, 14, 41, 54, 0, time.UTC)
	entries := []store.Entry{
		{ID: "v_bat", Reading: store.Reading{Raw: 123, HasRaw: true, Value: 3300, Calibrated: true, Unit: "mV", Valid: true, UpdatedAt: ts}},
		{ID: "fc_temp", Reading: store.Reading{Raw: 8000, HasRaw: true, Unit: "mV", Valid: true, UpdatedAt: ts}},
	}
	out := captureStdout(func() { _ = c.Publish(entries) })
	want := "2025-09-19T14:41:54Z channel=v_bat raw=123 value=3300.000000 unit=mV\n" +
		"2025-09-19T14:41:54Z channel=fc_temp raw=8000 value=- unit=mV\n"
	if out != want {
		t.Fatalf("console output mismatch:\n got: %q\nwant: %q", out, want)
	}
}

func TestConsoleWriterWithoutRaw(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf)
	ts := time.Date(2025, 9, 19, 14, 41, 54, 0, time.UTC)
	_ = c.Publish([]store.Entry{{ID: "sht41.temperature", Reading: store.Reading{Value: 24.5, Calibrated: true, Unit: "°C", Valid: true, UpdatedAt: ts}}})
	want := "2025-09-19T14:41:54Z channel=sht41.temperature value=24.500000 unit=°C\n"
	if buf.String() != want {
		t.Fatalf("console output mismatch:\n got: %q\nwant: %q", buf.String(), want)
	}
}
