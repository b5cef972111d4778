package api

import (
	"context"

	"fctarget/ports"
)

// SSEReportSink adapts the SSEHub to ports.ReportSink: every published report
// is announced to the run's SSE clients
type SSEReportSink struct {
	sseHub *SSEHub
}

// NewSSEReportSink creates a report sink backed by the hub
func NewSSEReportSink(sseHub *SSEHub) *SSEReportSink {
	return &SSEReportSink{sseHub: sseHub}
}

// Publish broadcasts a report event
func (s *SSEReportSink) Publish(ctx context.Context, report *ports.Report) error {
	data := map[string]interface{}{
		"threshold":        report.Threshold.Value,
		"trials_completed": report.TrialsCompleted(),
		"trials_skipped":   report.Skipped.Count,
		"clusters":         len(report.Clusters),
	}
	if report.Selected != nil {
		data["target"] = report.Selected.Target
	}
	s.sseHub.Broadcast(RunEvent{
		RunID:     report.RunID.String(),
		EventType: EventReport,
		Status:    string(report.Status),
		Data:      data,
	})
	return nil
}
