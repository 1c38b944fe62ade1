//go:build linux

package eventsource

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/kubescape/process-monitor/pkg/eventsource"
	"github.com/kubescape/process-monitor/pkg/processevent"
	"golang.org/x/sys/unix"
)

const (
	recvBufferSize = 64 * 1024
	nlmsgAlignTo   = 4
)

var errConnectionClosed = errors.New("netlink connection closed")

var _ eventsource.EventSource = (*NetlinkSource)(nil)

// NetlinkSource reports process creation through the kernel process connector.
// Connecting requires CAP_NET_ADMIN.
type NetlinkSource struct {
	procfsPath string
	seq        atomic.Uint32
}

func NewNetlinkSource(procfsPath string) *NetlinkSource {
	if procfsPath == "" {
		procfsPath = defaultProcfsPath
	}
	return &NetlinkSource{procfsPath: procfsPath}
}

func (s *NetlinkSource) Connect(_ context.Context) (eventsource.Connection, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, unix.NETLINK_CONNECTOR)
	if err != nil {
		return nil, &eventsource.ConnectError{Err: fmt.Errorf("socket: %w", err)}
	}

	if err := unix.Bind(fd, &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: cnIdxProc}); err != nil {
		_ = unix.Close(fd)
		return nil, &eventsource.ConnectError{Err: fmt.Errorf("bind: %w", err)}
	}

	// bounded reads let a blocked Next notice Close
	tv := unix.Timeval{Sec: 1}
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		_ = unix.Close(fd)
		return nil, &eventsource.ConnectError{Err: fmt.Errorf("set receive timeout: %w", err)}
	}

	var portID uint32
	if sa, err := unix.Getsockname(fd); err == nil {
		if nl, ok := sa.(*unix.SockaddrNetlink); ok {
			portID = nl.Pid
		}
	}

	conn := &netlinkConnection{
		id:     uuid.NewString(),
		fd:     fd,
		portID: portID,
	}
	logger.L().Debug("NetlinkSource - connected", helpers.String("connection", conn.id), helpers.Int("port", int(portID)))
	return conn, nil
}

func (s *NetlinkSource) Subscribe(_ context.Context, c eventsource.Connection, filter eventsource.Filter) (eventsource.EventStream, error) {
	if filter != eventsource.FilterProcessCreation {
		return nil, &eventsource.SubscribeError{Filter: filter, Err: errors.New("unsupported filter")}
	}
	conn, ok := c.(*netlinkConnection)
	if !ok {
		return nil, &eventsource.SubscribeError{Filter: filter, Err: fmt.Errorf("unexpected connection type %T", c)}
	}

	resolver, err := newProcResolver(s.procfsPath)
	if err != nil {
		return nil, &eventsource.SubscribeError{Filter: filter, Err: err}
	}

	if err := conn.send(encodeMcastOp(procCnMcastListen, s.seq.Add(1), conn.portID)); err != nil {
		return nil, &eventsource.SubscribeError{Filter: filter, Err: fmt.Errorf("send listen: %w", err)}
	}

	return &netlinkStream{
		source:   s,
		conn:     conn,
		resolver: resolver,
		buf:      make([]byte, recvBufferSize),
	}, nil
}

type netlinkConnection struct {
	id     string
	fd     int
	portID uint32

	// readers hold mu shared while using fd; Close takes it exclusively
	mu     sync.RWMutex
	closed bool
}

func (c *netlinkConnection) ID() string {
	return c.id
}

func (c *netlinkConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return unix.Close(c.fd)
}

func (c *netlinkConnection) send(msg []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errConnectionClosed
	}
	return unix.Sendto(c.fd, msg, 0, &unix.SockaddrNetlink{Family: unix.AF_NETLINK})
}

func (c *netlinkConnection) recv(buf []byte) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return 0, errConnectionClosed
	}
	n, _, err := unix.Recvfrom(c.fd, buf, 0)
	return n, err
}

type netlinkStream struct {
	source   *NetlinkSource
	conn     *netlinkConnection
	resolver *procResolver
	buf      []byte
	pending  []uint32
	closed   atomic.Bool
}

func (s *netlinkStream) Next() (processevent.RawRecord, error) {
	for {
		if s.closed.Load() {
			return nil, eventsource.ErrStreamClosed
		}
		if len(s.pending) > 0 {
			pid := s.pending[0]
			s.pending = s.pending[1:]
			return s.resolver.resolve(pid), nil
		}

		n, err := s.conn.recv(s.buf)
		switch {
		case err == nil:
		case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.ENOBUFS):
			logger.L().Warning("NetlinkSource - receive buffer overrun, notifications were lost", helpers.String("connection", s.conn.id))
			continue
		default:
			if s.closed.Load() {
				return nil, eventsource.ErrStreamClosed
			}
			return nil, fmt.Errorf("receive from process connector: %w", err)
		}

		s.pending = append(s.pending, s.parse(s.buf[:n])...)
	}
}

// parse walks every netlink message in one datagram and collects the TGIDs of exec events.
func (s *netlinkStream) parse(data []byte) []uint32 {
	var pids []uint32
	ne := binary.NativeEndian
	for len(data) >= nlmsgHdrLen {
		msgLen := int(ne.Uint32(data[0:4]))
		msgType := ne.Uint16(data[4:6])
		if msgLen < nlmsgHdrLen || msgLen > len(data) {
			logger.L().Debug("NetlinkSource - truncated netlink message", helpers.Int("length", msgLen))
			break
		}

		if msgType != unix.NLMSG_NOOP && msgType != unix.NLMSG_ERROR {
			_, ev, err := decodeProcEvent(data[nlmsgHdrLen:msgLen])
			switch {
			case err != nil:
				logger.L().Debug("NetlinkSource - failed to decode event", helpers.Error(err))
			case ev.What == procEventExec:
				pids = append(pids, ev.TGID)
			}
		}

		aligned := (msgLen + nlmsgAlignTo - 1) &^ (nlmsgAlignTo - 1)
		if aligned > len(data) {
			break
		}
		data = data[aligned:]
	}
	return pids
}

func (s *netlinkStream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if err := s.conn.send(encodeMcastOp(procCnMcastIgnore, s.source.seq.Add(1), s.conn.portID)); err != nil && !errors.Is(err, errConnectionClosed) {
		return fmt.Errorf("send ignore: %w", err)
	}
	return nil
}
