package output

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/ericogr/plura-monitor/pkg/store"
)

// Entry is an output with its publish interval.
type Entry struct {
	Name       string
	Output     Output
	IntervalMs int
}

// Runner publishes the store to every output on its own interval. It only
// reads from the store.
type Runner struct {
	store   *store.Store
	entries []Entry
}

func NewRunner(st *store.Store, entries []Entry) *Runner {
	return &Runner{store: st, entries: entries}
}

// Run blocks until ctx is done. Publish errors are logged and the output is
// tried again on its next tick.
func (r *Runner) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, e := range r.entries {
		wg.Add(1)
		go func(e Entry) {
			defer wg.Done()
			r.runOne(ctx, e)
		}(e)
	}
	wg.Wait()
}

func (r *Runner) runOne(ctx context.Context, e Entry) {
	interval := time.Duration(e.IntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}
	log := logrus.WithFields(logrus.Fields{"output": e.Name, "intervalMs": interval.Milliseconds()})
	log.Debug("output started")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.publish(log, e)
		}
	}
}

func (r *Runner) publish(log logrus.FieldLogger, e Entry) {
	entries := Valid(r.store.ReadAll())
	if len(entries) == 0 {
		return
	}
	if err := e.Output.Publish(entries); err != nil {
		log.WithError(err).Warn("output publish failed")
	}
}

// Close closes every output and returns all close errors.
func (r *Runner) Close() error {
	var err error
	for _, e := range r.entries {
		err = multierr.Append(err, e.Output.Close())
	}
	return err
}
