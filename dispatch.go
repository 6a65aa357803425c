package h2stream

// MaxHeaderBufferSize bounds the total bytes a HEADERS/CONTINUATION
// sequence may accumulate before the reassembler runs (matches h2o's
// limit, per spec).
const MaxHeaderBufferSize = 409600

// dispatch routes one inbound frame to its type-specific handler. Callers
// hold conn.mu. Unknown frame types (> CONTINUATION) never reach here;
// ReadFrameFromWithSize already rejects them at the transport layer.
func (c *Conn) dispatch(fr *FrameHeader) *Error {
	switch fr.Type() {
	case FrameData:
		return c.handleData(fr)
	case FrameHeaders:
		return c.handleHeaders(fr)
	case FramePriority:
		return c.handlePriority(fr)
	case FrameResetStream:
		return c.handleRstStream(fr)
	case FrameSettings:
		return c.handleSettings(fr)
	case FramePushPromise:
		return c.handlePushPromise(fr)
	case FramePing:
		return c.handlePing(fr)
	case FrameGoAway:
		return c.handleGoAway(fr)
	case FrameWindowUpdate:
		return c.handleWindowUpdate(fr)
	case FrameContinuation:
		return c.handleContinuation(fr)
	default:
		return nil
	}
}

// lookupOrCreateStream returns the stream for id, creating it (as an idle,
// peer-initiated stream) the first time it's referenced by an inbound frame.
func (c *Conn) lookupOrCreateStream(id uint32) *Stream {
	if s, ok := c.streams[id]; ok {
		return s
	}
	s := newStream(c, id)
	c.streams[id] = s
	return s
}

func (c *Conn) handleData(fr *FrameHeader) *Error {
	if fr.Stream() == 0 {
		return NewError(ProtocolError, "DATA: stream id must be non-zero")
	}

	s := c.streams[fr.Stream()]
	if s == nil {
		return NewError(ProtocolError, "DATA: unknown stream")
	}

	if s.state != StreamOpen && s.state != StreamHalfClosedLocal {
		return NewStreamError(StreamClosedError, "DATA: stream not open for receiving")
	}

	originalLength := fr.Len()

	data := fr.Body().(*Data)

	switch s.state {
	case StreamOpen:
		if data.EndStream() {
			s.setState(StreamHalfClosedRemote)
		}
	case StreamHalfClosedLocal:
		if data.EndStream() {
			s.setState(StreamClosed)
		}
	}

	chunk := &Chunk{stream: s.id, originalLength: originalLength, data: append([]byte(nil), data.Data()...)}
	s.chunkQueue = append(s.chunkQueue, chunk)
	if data.EndStream() {
		s.chunkQueue = append(s.chunkQueue, nil)
	}
	s.cond.Broadcast()

	return nil
}

func (c *Conn) handleHeaders(fr *FrameHeader) *Error {
	if fr.Stream() == 0 {
		return NewError(ProtocolError, "HEADERS: stream id must be non-zero")
	}

	s := c.lookupOrCreateStream(fr.Stream())

	switch s.state {
	case StreamIdle, StreamOpen, StreamHalfClosedLocal:
	default:
		return NewStreamError(StreamClosedError, "HEADERS: stream not in a state that accepts HEADERS")
	}

	h := fr.Body().(*Headers)

	if h.HasPriority() {
		// RFC 7540 section 5.3.1: a dependency on an absent stream is
		// treated as a dependency on stream 0, not a protocol error.
		dep := c.streams[h.StreamDep()]
		if dep == nil {
			dep = c.root
		}
		if err := reprioritise(c, s, dep, h.Exclusive()); err != nil {
			return err
		}
		s.weight = h.Weight()
	}

	payload := h.Headers()
	if len(payload) > MaxHeaderBufferSize {
		return NewError(ProtocolError, "HEADERS: header block exceeds MaxHeaderBufferSize")
	}

	s.recvHeadersBuffer = append(s.recvHeadersBuffer[:0], payload...)
	s.recvHeadersBufferActive = true

	if h.EndHeaders() {
		if err := c.handleEndHeaders(s); err != nil {
			return err
		}
	}

	if h.EndStream() {
		switch s.state {
		case StreamIdle, StreamOpen:
			s.setState(StreamHalfClosedRemote)
		case StreamHalfClosedLocal:
			s.setState(StreamClosed)
		}
		s.chunkQueue = append(s.chunkQueue, nil)
		s.cond.Broadcast()
	} else if s.state == StreamIdle {
		s.setState(StreamOpen)
	}

	return nil
}

func (c *Conn) handleContinuation(fr *FrameHeader) *Error {
	if fr.Stream() == 0 {
		return NewError(ProtocolError, "CONTINUATION: stream id must be non-zero")
	}

	s := c.streams[fr.Stream()]
	if s == nil || !s.recvHeadersBufferActive {
		return NewError(ProtocolError, "CONTINUATION: no header block in progress")
	}

	cont := fr.Body().(*Continuation)

	if len(s.recvHeadersBuffer)+len(cont.Headers()) > MaxHeaderBufferSize {
		return NewError(ProtocolError, "CONTINUATION: header block exceeds MaxHeaderBufferSize")
	}

	s.recvHeadersBuffer = append(s.recvHeadersBuffer, cont.Headers()...)

	if cont.EndHeaders() {
		return c.handleEndHeaders(s)
	}

	return nil
}

// handleEndHeaders runs the reassembler (spec.md section 4.5): strips any
// recorded padding, HPACK-decodes in arrival order, enforces pseudo-header
// ordering, and delivers the decoded list.
func (c *Conn) handleEndHeaders(s *Stream) *Error {
	buf := s.recvHeadersBuffer

	if s.recvHeadersPadding > 0 {
		pad := s.recvHeadersPadding
		if pad > len(buf) {
			return NewError(ProtocolError, "HEADERS: padding exceeds header block length")
		}
		trailer := buf[len(buf)-pad:]
		for _, b := range trailer {
			if b != 0 {
				return NewError(ProtocolError, "HEADERS: non-zero padding byte")
			}
		}
		buf = buf[:len(buf)-pad]
	}

	var fields []*HeaderField
	sawRegular := false

	err := c.dec.DecodeFull(buf, func(hf *HeaderField) error {
		if hf.IsPseudo() {
			if sawRegular {
				return NewError(ProtocolError, "HEADERS: pseudo-header after regular header")
			}
		} else {
			sawRegular = true
		}

		cp := AcquireHeaderField()
		cp.SetBytes(hf.KeyBytes(), hf.ValueBytes())
		cp.SetSensitive(hf.Sensitive())
		fields = append(fields, cp)
		return nil
	})

	s.recvHeadersBuffer = s.recvHeadersBuffer[:0]
	s.recvHeadersBufferActive = false
	s.recvHeadersPadding = 0

	if err != nil {
		if herr, ok := err.(*Error); ok {
			return herr
		}
		return NewError(CompressionError, err.Error())
	}

	s.recvHeadersQueue = append(s.recvHeadersQueue, fields)
	s.cond.Broadcast()

	return nil
}

func (c *Conn) handlePriority(fr *FrameHeader) *Error {
	if fr.Stream() == 0 {
		return NewError(ProtocolError, "PRIORITY: stream id must be non-zero")
	}

	pry := fr.Body().(*Priority)

	s := c.lookupOrCreateStream(fr.Stream())

	dep := c.streams[pry.Stream()]
	if dep == nil {
		dep = c.root
	}

	if err := reprioritise(c, s, dep, pry.Exclusive()); err != nil {
		return err
	}
	s.weight = pry.Weight()

	return nil
}

func (c *Conn) handleRstStream(fr *FrameHeader) *Error {
	if fr.Stream() == 0 {
		return NewError(ProtocolError, "RST_STREAM: stream id must be non-zero")
	}

	s := c.streams[fr.Stream()]
	if s == nil {
		return nil
	}

	rst := fr.Body().(*RstStream)
	s.reset(NewStreamError(rst.Code(), "reset by peer"))

	return nil
}

func (c *Conn) handleSettings(fr *FrameHeader) *Error {
	if fr.Stream() != 0 {
		return NewError(ProtocolError, "SETTINGS: must be sent on stream 0")
	}

	st := fr.Body().(*Settings)

	if st.IsAck() {
		return nil
	}

	c.applyPeerSettingsLocked(st)

	ack := AcquireFrameHeader()
	ackSt := AcquireSettings()
	ackSt.SetAck(true)
	ack.SetBody(ackSt)
	_ = c.writeFrame(ack)

	return nil
}

func (c *Conn) applyPeerSettingsLocked(st *Settings) {
	st.CopyTo(&c.peerSettings)
	if st.HeaderTableSize() <= defaultHeaderTableSize {
		c.enc.SetMaxTableSize(int(st.HeaderTableSize()))
	}
	c.flowCond.Broadcast()
}

// handlePushPromise recognizes the frame structurally but refuses to act on
// it: this module's client never advertises ENABLE_PUSH, and receive-side
// PUSH_PROMISE handling is explicitly unimplemented (spec.md section 4.2.6,
// 9). The offending stream is reset rather than silently dropped.
func (c *Conn) handlePushPromise(fr *FrameHeader) *Error {
	return NewStreamError(RefusedStreamError, ErrPushNotImplemented.Error())
}

func (c *Conn) handlePing(fr *FrameHeader) *Error {
	if fr.Stream() != 0 {
		return NewError(ProtocolError, "PING: must be sent on stream 0")
	}

	ping := fr.Body().(*Ping)

	if ping.Ack() {
		var key [8]byte
		copy(key[:], ping.Data())
		if done, ok := c.pongs[key]; ok {
			close(done)
			delete(c.pongs, key)
		}
		if c.unacks > 0 {
			c.unacks--
		}
		return nil
	}

	reply := AcquireFrameHeader()
	pong := AcquirePing()
	pong.SetData(ping.Data())
	pong.SetAck(true)
	reply.SetBody(pong)

	_ = c.writeFrame(reply)

	return nil
}

func (c *Conn) handleGoAway(fr *FrameHeader) *Error {
	if fr.Stream() != 0 {
		return NewError(ProtocolError, "GOAWAY: must be sent on stream 0")
	}

	ga := fr.Body().(*GoAway)

	if !c.recvGoaway || ga.LastStream() < c.recvGoawayLowest {
		c.recvGoawayLowest = ga.LastStream()
		c.recvGoaway = true
		c.goawayCond.Broadcast()
	}

	return nil
}

// A zero increment is always an error, but its scope depends on which
// window it targets (RFC 7540 section 6.9.1): zero on the connection
// window is a connection error, zero on a stream window is only a stream
// error.
func (c *Conn) handleWindowUpdate(fr *FrameHeader) *Error {
	wu := fr.Body().(*WindowUpdate)

	if fr.Stream() == 0 {
		if wu.Increment() == 0 {
			return NewError(ProtocolError, "WINDOW_UPDATE: connection increment must not be zero")
		}
		c.peerFlowCredits += int64(wu.Increment())
		c.flowCond.Broadcast()
		// WriteChunk waits on its stream's cond for connection credit too.
		for _, s := range c.streams {
			s.cond.Broadcast()
		}
		return nil
	}

	if wu.Increment() == 0 {
		return NewStreamError(ProtocolError, "WINDOW_UPDATE: stream increment must not be zero")
	}

	s := c.streams[fr.Stream()]
	if s == nil {
		return nil
	}

	s.peerFlowCredits += int64(wu.Increment())
	s.cond.Broadcast()

	return nil
}
