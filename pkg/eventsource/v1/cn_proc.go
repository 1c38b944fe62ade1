package eventsource

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Process connector constants from linux/connector.h and linux/cn_proc.h.
const (
	cnIdxProc = 1
	cnValProc = 1

	procCnMcastListen = 1
	procCnMcastIgnore = 2

	procEventNone = 0x00000000
	procEventFork = 0x00000001
	procEventExec = 0x00000002
	procEventExit = 0x80000000

	nlmsgHdrLen   = 16
	cnMsgLen      = 20
	procEventHdr  = 16
	nlmsgTypeDone = 3
)

var errShortMessage = errors.New("short connector message")

// cnMsg corresponds to struct cn_msg.
type cnMsg struct {
	Idx   uint32
	Val   uint32
	Seq   uint32
	Ack   uint32
	Len   uint16
	Flags uint16
}

// procEvent is the part of struct proc_event this collector reads.
type procEvent struct {
	What      uint32
	CPU       uint32
	Timestamp uint64
	PID       uint32
	TGID      uint32
}

// encodeMcastOp builds a complete netlink message carrying a PROC_CN_MCAST_* operation.
func encodeMcastOp(op uint32, seq uint32, portID uint32) []byte {
	const payload = 4
	total := nlmsgHdrLen + cnMsgLen + payload
	buf := make([]byte, total)
	ne := binary.NativeEndian

	// nlmsghdr
	ne.PutUint32(buf[0:4], uint32(total))
	ne.PutUint16(buf[4:6], nlmsgTypeDone)
	ne.PutUint16(buf[6:8], 0)
	ne.PutUint32(buf[8:12], seq)
	ne.PutUint32(buf[12:16], portID)

	// cn_msg
	ne.PutUint32(buf[16:20], cnIdxProc)
	ne.PutUint32(buf[20:24], cnValProc)
	ne.PutUint32(buf[24:28], seq)
	ne.PutUint32(buf[28:32], 0)
	ne.PutUint16(buf[32:34], payload)
	ne.PutUint16(buf[34:36], 0)

	ne.PutUint32(buf[36:40], op)
	return buf
}

// decodeProcEvent parses the payload of one netlink message (everything after nlmsghdr).
func decodeProcEvent(data []byte) (cnMsg, procEvent, error) {
	if len(data) < cnMsgLen+procEventHdr {
		return cnMsg{}, procEvent{}, fmt.Errorf("%w: %d bytes", errShortMessage, len(data))
	}
	ne := binary.NativeEndian

	msg := cnMsg{
		Idx:   ne.Uint32(data[0:4]),
		Val:   ne.Uint32(data[4:8]),
		Seq:   ne.Uint32(data[8:12]),
		Ack:   ne.Uint32(data[12:16]),
		Len:   ne.Uint16(data[16:18]),
		Flags: ne.Uint16(data[18:20]),
	}

	body := data[cnMsgLen:]
	ev := procEvent{
		What:      ne.Uint32(body[0:4]),
		CPU:       ne.Uint32(body[4:8]),
		Timestamp: ne.Uint64(body[8:16]),
	}

	switch ev.What {
	case procEventExec, procEventFork, procEventExit:
		if len(body) < procEventHdr+8 {
			return msg, ev, fmt.Errorf("%w: event 0x%x has %d bytes", errShortMessage, ev.What, len(body))
		}
		// exec: process_pid, process_tgid; fork and exit start with the same pair
		ev.PID = ne.Uint32(body[16:20])
		ev.TGID = ne.Uint32(body[20:24])
	}

	return msg, ev, nil
}
