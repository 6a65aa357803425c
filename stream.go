package h2stream

import (
	"sync"
	"time"
)

// StreamState is one of the seven states a stream moves through over its
// lifetime (https://tools.ietf.org/html/rfc7540#section-5.1).
type StreamState int8

const (
	StreamIdle StreamState = iota
	StreamOpen
	StreamReservedLocal
	StreamReservedRemote
	StreamHalfClosedLocal
	StreamHalfClosedRemote
	StreamClosed
)

func (s StreamState) String() string {
	switch s {
	case StreamIdle:
		return "idle"
	case StreamOpen:
		return "open"
	case StreamReservedLocal:
		return "reserved(local)"
	case StreamReservedRemote:
		return "reserved(remote)"
	case StreamHalfClosedLocal:
		return "half-closed(local)"
	case StreamHalfClosedRemote:
		return "half-closed(remote)"
	case StreamClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const defaultWeight = 16

// Chunk is one received DATA payload queued for the application to consume.
// A nil *Chunk in chunkQueue is the end-of-stream sentinel.
type Chunk struct {
	stream         uint32
	originalLength int // wire length including the pad-length byte and padding
	data           []byte
	acked          bool
}

// Data returns the application-visible payload bytes (padding already stripped).
func (c *Chunk) Data() []byte {
	return c.data
}

// OriginalLength returns the wire length used for flow-control accounting.
func (c *Chunk) OriginalLength() int {
	return c.originalLength
}

// ack flips the idempotency guard and, unless noWindowUpdate is set, issues
// a WINDOW_UPDATE on both the stream and the connection for OriginalLength.
// Double-acking a chunk is a programmer error.
func (c *Chunk) ack(conn *Conn, stream *Stream, noWindowUpdate bool) {
	if c.acked {
		panic("h2stream: chunk acked twice")
	}
	c.acked = true

	if noWindowUpdate || c.originalLength == 0 {
		return
	}

	conn.sendWindowUpdate(stream.id, uint32(c.originalLength))
	conn.sendWindowUpdate(0, uint32(c.originalLength))
}

// Stream is one HTTP/2 stream: its state-machine position, its place in the
// priority dependency tree, its flow-control ledger, and the inbound queues
// the application-facing API in api.go drains.
//
// A Stream is mutated only while holding its connection's mu; application
// calls and the connection's read loop share that lock and communicate
// through the *Cond fields below.
type Stream struct {
	id     uint32
	conn   *Conn
	state  StreamState

	peerFlowCredits int64 // signed; set from the peer's INITIAL_WINDOW_SIZE at creation, later SETTINGS changes are not applied

	parent    *Stream
	dependees map[uint32]*Stream
	weight    int

	rstStreamError *Error

	statsSent uint64

	recvHeadersQueue [][]*HeaderField
	recvHeadersBuffer       []byte
	recvHeadersBufferActive bool
	recvHeadersPadding      int

	chunkQueue []*Chunk

	cond *sync.Cond // shared: recv headers, chunks and flow credits all wake on this
}

func newStream(conn *Conn, id uint32) *Stream {
	s := &Stream{
		id:              id,
		conn:            conn,
		state:           StreamIdle,
		peerFlowCredits: int64(conn.peerSettings.MaxWindowSize()),
		dependees:       make(map[uint32]*Stream),
		weight:          defaultWeight,
		cond:            sync.NewCond(&conn.mu),
	}
	attach(conn.root, s, false)
	return s
}

// ID returns the stream's 31-bit identifier.
func (s *Stream) ID() uint32 {
	return s.id
}

// State returns the stream's current state. Callers must hold conn.mu.
func (s *Stream) State() StreamState {
	return s.state
}

// deadlineFor computes an absolute deadline from a duration, matching the
// spec's "absolute after the initial call" timeout semantics. Zero means
// wait forever.
func deadlineFor(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}

// waitLocked blocks on s.cond until pred is true or deadline elapses.
// Callers must hold conn.mu. Returns false on timeout. Wake is level-based:
// pred is re-checked in a loop, never trusted on a single wake.
func (s *Stream) waitLocked(deadline time.Time, pred func() bool) bool {
	if pred() {
		return true
	}
	if deadline.IsZero() {
		for !pred() {
			s.cond.Wait()
		}
		return true
	}

	timer := time.AfterFunc(time.Until(deadline), s.cond.Broadcast)
	defer timer.Stop()

	for !pred() {
		if !time.Now().Before(deadline) {
			return pred()
		}
		s.cond.Wait()
	}
	return true
}

// setState transitions the stream and wakes anyone waiting on it reaching
// "closed" (both recv-headers and chunk waiters must observe a reset).
func (s *Stream) setState(state StreamState) {
	s.state = state
	if state == StreamClosed {
		s.cond.Broadcast()
	}
}

// reset records err as the stream's terminal error, transitions to closed
// and wakes every waiter so it can observe rstStreamError.
func (s *Stream) reset(err *Error) {
	s.rstStreamError = err
	s.setState(StreamClosed)
}
