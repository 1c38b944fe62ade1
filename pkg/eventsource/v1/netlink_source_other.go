//go:build !linux

package eventsource

import (
	"context"
	"errors"
	"runtime"

	"github.com/kubescape/process-monitor/pkg/eventsource"
)

var errUnsupportedPlatform = errors.New("process connector is only available on linux, running on " + runtime.GOOS)

var _ eventsource.EventSource = (*NetlinkSource)(nil)

type NetlinkSource struct {
	procfsPath string
}

func NewNetlinkSource(procfsPath string) *NetlinkSource {
	return &NetlinkSource{procfsPath: procfsPath}
}

func (s *NetlinkSource) Connect(_ context.Context) (eventsource.Connection, error) {
	return nil, &eventsource.ConnectError{Err: errUnsupportedPlatform}
}

func (s *NetlinkSource) Subscribe(_ context.Context, _ eventsource.Connection, filter eventsource.Filter) (eventsource.EventStream, error) {
	return nil, &eventsource.SubscribeError{Filter: filter, Err: errUnsupportedPlatform}
}
