package h2stream

import "time"

// GetHeaders blocks until a decoded header list is available, the stream
// closes, or timeout elapses (zero means wait forever). On a closed stream
// with an empty queue it surfaces the stream's reset error, if any. This
// function never panics; every failure is returned as an error.
func (s *Stream) GetHeaders(timeout time.Duration) ([]*HeaderField, error) {
	conn := s.conn
	conn.mu.Lock()
	defer conn.mu.Unlock()

	deadline := deadlineFor(timeout)

	ok := s.waitLocked(deadline, func() bool {
		return len(s.recvHeadersQueue) > 0 || s.state == StreamClosed
	})
	if !ok {
		return nil, ErrTimeout
	}

	if len(s.recvHeadersQueue) > 0 {
		fields := s.recvHeadersQueue[0]
		s.recvHeadersQueue = s.recvHeadersQueue[1:]
		return fields, nil
	}

	if s.rstStreamError != nil {
		return nil, s.rstStreamError
	}

	return nil, ErrClosedPipe
}

// GetNextChunk blocks until a DATA chunk, the end-of-stream sentinel, or a
// reset is observed. Each delivered chunk is acked with window updates
// enabled. On end-of-stream it returns ErrClosedPipe.
func (s *Stream) GetNextChunk(timeout time.Duration) (*Chunk, error) {
	conn := s.conn
	conn.mu.Lock()
	defer conn.mu.Unlock()

	deadline := deadlineFor(timeout)

	ok := s.waitLocked(deadline, func() bool {
		return len(s.chunkQueue) > 0 ||
			s.state == StreamClosed || s.state == StreamHalfClosedRemote
	})
	if !ok {
		return nil, ErrTimeout
	}

	if len(s.chunkQueue) > 0 {
		chunk := s.chunkQueue[0]
		s.chunkQueue = s.chunkQueue[1:]

		if chunk == nil {
			return nil, ErrClosedPipe
		}

		chunk.ack(conn, s, false)
		return chunk, nil
	}

	if s.rstStreamError != nil {
		return nil, s.rstStreamError
	}

	return nil, ErrClosedPipe
}

// WriteHeaders HPACK-encodes headers and fragments the result into a
// HEADERS frame followed by zero or more CONTINUATION frames, each sized to
// the peer's current MAX_FRAME_SIZE.
func (s *Stream) WriteHeaders(headers []*HeaderField, endStream bool, timeout time.Duration) error {
	conn := s.conn

	conn.mu.Lock()
	switch s.state {
	case StreamClosed, StreamHalfClosedLocal:
		conn.mu.Unlock()
		panic("h2stream: WriteHeaders called on a closed/half-closed(local) stream")
	}
	maxFrame := int(conn.peerSettings.MaxFrameSize())
	enc := conn.enc
	conn.mu.Unlock()

	var encoded []byte
	for _, hf := range headers {
		encoded = enc.AppendHeaderField(encoded, hf, !hf.Sensitive())
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()

	first := AcquireFrameHeader()
	first.SetStream(s.id)

	h := AcquireHeaders()
	h.SetEndStream(endStream)

	remaining := encoded
	piece := remaining
	if len(piece) > maxFrame {
		piece = piece[:maxFrame]
	}
	remaining = remaining[len(piece):]
	h.SetHeaders(piece)
	h.SetEndHeaders(len(remaining) == 0)

	first.SetBody(h)
	if err := conn.writeFrame(first); err != nil {
		return err
	}

	for len(remaining) > 0 {
		fr := AcquireFrameHeader()
		fr.SetStream(s.id)

		cont := AcquireContinuation()
		piece := remaining
		if len(piece) > maxFrame {
			piece = piece[:maxFrame]
		}
		remaining = remaining[len(piece):]
		cont.SetHeader(piece)
		cont.SetEndHeaders(len(remaining) == 0)

		fr.SetBody(cont)
		if err := conn.writeFrame(fr); err != nil {
			return err
		}
	}

	switch s.state {
	case StreamIdle:
		if endStream {
			s.setState(StreamHalfClosedLocal)
		} else {
			s.setState(StreamOpen)
		}
	case StreamOpen:
		if endStream {
			s.setState(StreamHalfClosedLocal)
		}
	case StreamReservedLocal:
		if endStream {
			s.setState(StreamClosed)
		} else {
			s.setState(StreamHalfClosedRemote)
		}
	}

	return nil
}

// WriteChunk sends payload as one or more DATA frames, waiting for both
// per-stream and per-connection flow-control credit before each write.
// END_STREAM is set only on the final frame.
func (s *Stream) WriteChunk(payload []byte, endStream bool, timeout time.Duration) error {
	conn := s.conn
	deadline := deadlineFor(timeout)

	for {
		conn.mu.Lock()

		ok := s.waitLocked(deadline, func() bool {
			// A zero-length DATA frame (typically just END_STREAM) consumes
			// no flow-control window and so never needs to wait on credit,
			// even when the window is fully exhausted (RFC 7540 section 6.9).
			return len(payload) == 0 || s.peerFlowCredits > 0 && conn.peerFlowCredits > 0 || s.state == StreamClosed
		})
		if !ok {
			conn.mu.Unlock()
			return ErrTimeout
		}
		if s.state == StreamClosed {
			err := s.rstStreamError
			conn.mu.Unlock()
			if err != nil {
				return err
			}
			return ErrClosedPipe
		}

		n := len(payload)
		if int64(n) > s.peerFlowCredits {
			n = int(s.peerFlowCredits)
		}
		if int64(n) > conn.peerFlowCredits {
			n = int(conn.peerFlowCredits)
		}
		if n > int(conn.peerSettings.MaxFrameSize()) {
			n = int(conn.peerSettings.MaxFrameSize())
		}

		last := n == len(payload)

		fr := AcquireFrameHeader()
		fr.SetStream(s.id)

		data := AcquireData()
		data.SetData(payload[:n])
		data.SetEndStream(last && endStream)
		fr.SetBody(data)

		if err := conn.writeFrame(fr); err != nil {
			conn.mu.Unlock()
			return err
		}

		s.peerFlowCredits -= int64(n)
		conn.peerFlowCredits -= int64(n)
		s.statsSent += uint64(n)

		if last && endStream {
			switch s.state {
			case StreamOpen:
				s.setState(StreamHalfClosedLocal)
			case StreamHalfClosedRemote:
				s.setState(StreamClosed)
			}
		}

		conn.mu.Unlock()

		payload = payload[n:]
		if len(payload) == 0 {
			return nil
		}
	}
}

// Shutdown resets the stream (unless it's already idle or closed) and
// drains any buffered, unread chunks, acking them without issuing
// per-chunk window updates and instead sending a single batched
// connection-level WINDOW_UPDATE for their combined original length.
func (s *Stream) Shutdown() {
	conn := s.conn
	conn.mu.Lock()
	defer conn.mu.Unlock()

	if s.state != StreamIdle && s.state != StreamClosed {
		conn.sendRstStream(s.id, NoError)
		s.setState(StreamClosed)
	}

	var total uint32
	for _, chunk := range s.chunkQueue {
		if chunk == nil {
			continue
		}
		chunk.ack(conn, s, true)
		total += uint32(chunk.originalLength)
	}
	s.chunkQueue = nil

	if total > 0 {
		conn.sendWindowUpdate(0, total)
	}
}
