package report

import (
	"context"
	"errors"
	"fmt"

	"fctarget/ports"
)

// Fanout publishes a report to several sinks. Every sink is attempted; the
// failures are joined.
type Fanout struct {
	sinks []ports.ReportSink
}

// NewFanout creates a fanout over the non-nil sinks
func NewFanout(sinks ...ports.ReportSink) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Len returns the number of sinks
func (f *Fanout) Len() int {
	return len(f.sinks)
}

// Publish sends the report to every sink
func (f *Fanout) Publish(ctx context.Context, r *ports.Report) error {
	var errs []error
	for i, s := range f.sinks {
		if err := s.Publish(ctx, r); err != nil {
			errs = append(errs, fmt.Errorf("sink %d (%T): %w", i, s, err))
		}
	}
	return errors.Join(errs...)
}
