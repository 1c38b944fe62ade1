package sinks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/kubescape/process-monitor/pkg/config"
	"github.com/kubescape/process-monitor/pkg/handoff"
	"github.com/kubescape/process-monitor/pkg/metricsmanager"
	"github.com/kubescape/process-monitor/pkg/processevent"
)

// Sink presents process events. It owns the consumer end of the hand-off channel and
// closes it when Run returns.
type Sink interface {
	Name() string
	Run(ctx context.Context, in *handoff.Channel[processevent.ProcessEvent]) error
}

// ErrNotTerminal is returned for a live view whose output is not a terminal.
var ErrNotTerminal = errors.New("live view needs a terminal on its output")

// InitSink builds the sink selected by cfg.Type. The live view reads keys from in.
func InitSink(cfg config.SinksConfig, out io.Writer, in io.Reader, metrics metricsmanager.MetricsManager) (Sink, error) {
	switch cfg.Type {
	case config.SinkTypeStream, "":
		return NewStreamSink(out, cfg.ParentPlaceholder, metrics), nil
	case config.SinkTypeLiveView:
		if !IsTerminal(out) {
			return nil, ErrNotTerminal
		}
		screen, err := NewTerminalScreen(in, out)
		if err != nil {
			return nil, fmt.Errorf("open terminal: %w", err)
		}
		return NewLiveViewSink(screen, cfg.LiveView.RefreshInterval, cfg.ParentPlaceholder, metrics), nil
	default:
		return nil, fmt.Errorf("unknown sink type %q", cfg.Type)
	}
}

const noneValue = "None"

func executableValue(e processevent.ProcessEvent) string {
	if path, ok := e.ExecutablePath(); ok {
		return strconv.Quote(path)
	}
	return strconv.Quote(noneValue)
}

func commandLineValue(e processevent.ProcessEvent) string {
	if cmdline, ok := e.CommandLine(); ok {
		return strconv.Quote(cmdline)
	}
	return strconv.Quote(noneValue)
}

func parentValue(e processevent.ProcessEvent, placeholder string) string {
	if ppid, ok := e.ParentPID(); ok {
		return strconv.FormatUint(uint64(ppid), 10)
	}
	return placeholder
}

func createdValue(e processevent.ProcessEvent) string {
	if created, ok := e.CreatedAt(); ok {
		return processevent.FormatTimestamp(created)
	}
	return "N/A"
}
