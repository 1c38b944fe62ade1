package sinks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/kubescape/go-logger"
	"github.com/kubescape/process-monitor/pkg/handoff"
	"github.com/kubescape/process-monitor/pkg/metricsmanager"
	"github.com/kubescape/process-monitor/pkg/processevent"
)

const streamSinkName = "stream"

var _ Sink = (*StreamSink)(nil)

// StreamSink writes one text block per event as soon as it arrives.
type StreamSink struct {
	out         io.Writer
	placeholder string
	metrics     metricsmanager.MetricsManager
	buf         bytes.Buffer
}

func NewStreamSink(out io.Writer, parentPlaceholder string, metrics metricsmanager.MetricsManager) *StreamSink {
	return &StreamSink{
		out:         out,
		placeholder: parentPlaceholder,
		metrics:     metrics,
	}
}

func (s *StreamSink) Name() string {
	return streamSinkName
}

func (s *StreamSink) Run(ctx context.Context, in *handoff.Channel[processevent.ProcessEvent]) error {
	defer in.Close()
	if _, err := io.WriteString(s.out, "Monitoring new processes.\n"); err != nil {
		return fmt.Errorf("write banner: %w", err)
	}
	logger.L().Debug("StreamSink - started")

	for {
		event, err := in.Recv(ctx)
		if err != nil {
			if errors.Is(err, handoff.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		s.buf.Reset()
		s.format(&s.buf, event)
		if _, err := s.out.Write(s.buf.Bytes()); err != nil {
			return fmt.Errorf("write event: %w", err)
		}
		s.metrics.ReportRendered(streamSinkName)
	}
}

func (s *StreamSink) format(w *bytes.Buffer, e processevent.ProcessEvent) {
	w.WriteString("============NEW PROCESS============\n")
	fmt.Fprintf(w, "PID:        %d\n", e.PID())
	fmt.Fprintf(w, "Name:       %s\n", e.Name())
	fmt.Fprintf(w, "Executable: %s\n", executableValue(e))
	fmt.Fprintf(w, "Parent PID: %s\n", parentValue(e, s.placeholder))
	fmt.Fprintf(w, "Command:    %s\n", commandLineValue(e))
	fmt.Fprintf(w, "Created:    %s\n", createdValue(e))
}
