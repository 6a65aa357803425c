package h2stream

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultPingInterval is how often Conn pings an idle connection to detect
// a dead peer when no caller supplied one in ConnOpts.
const DefaultPingInterval = 15 * time.Second

// ConnOpts configures a Conn.
type ConnOpts struct {
	// PingInterval is how often Conn sends a keepalive PING. Zero uses
	// DefaultPingInterval.
	PingInterval time.Duration
	// DisablePingChecking stops the keepalive PING entirely, and with it
	// the closing of the connection after unanswered pings build up.
	DisablePingChecking bool
	// OnDisconnect fires once, after the connection's I/O has stopped.
	OnDisconnect func(c *Conn)
	// Logger receives diagnostic messages; defaults to a stderr logger.
	Logger Logger
}

// Conn is the connection collaborator spec.md section 6 describes: it owns
// the stream table, connection-wide settings, the connection flow-control
// window, GOAWAY tracking, and the pong-matching map, and serializes every
// inbound mutation through its own read-loop goroutine.
//
// Mutations to Conn or any of its Streams only ever happen on that read-loop
// goroutine or under conn.mu from an application goroutine blocked in a
// Stream's wait loop; this is the Go rendering of the specification's
// single-threaded cooperative scheduler (see DESIGN.md).
type Conn struct {
	c  net.Conn
	br *bufio.Reader
	bw *bufio.Writer

	mu sync.Mutex

	enc *HPACK // encoding_context
	dec *HPACK // decoding_context

	nextID uint32

	streams map[uint32]*Stream
	root    *Stream // synthetic stream 0, anchors the priority tree

	localSettings Settings
	peerSettings  Settings

	peerFlowCredits int64 // connection-wide, signed
	flowCond        *sync.Cond

	pongs map[[8]byte]chan struct{}

	recvGoawayLowest uint32
	recvGoaway       bool
	goawayCond       *sync.Cond

	out chan *FrameHeader

	pingInterval time.Duration
	disableAcks  bool
	unacks       int32

	onDisconnect func(*Conn)
	logger       Logger

	lastErr error
	closed  uint32
}

// NewConn wraps an already-established net.Conn (typically a TLS
// connection negotiated with ALPN "h2") as an HTTP/2 client connection.
// Call Handshake before using it.
func NewConn(c net.Conn, opts ConnOpts) *Conn {
	conn := &Conn{
		c:            c,
		br:           bufio.NewReaderSize(c, 4096),
		bw:           bufio.NewWriterSize(c, defaultMaxLen),
		enc:          NewHPACK(),
		dec:          NewHPACK(),
		nextID:       1,
		streams:      make(map[uint32]*Stream),
		out:          make(chan *FrameHeader, 128),
		pongs:        make(map[[8]byte]chan struct{}),
		pingInterval: opts.PingInterval,
		disableAcks:  opts.DisablePingChecking,
		onDisconnect: opts.OnDisconnect,
		logger:       opts.Logger,
	}

	conn.flowCond = sync.NewCond(&conn.mu)
	conn.goawayCond = sync.NewCond(&conn.mu)

	conn.localSettings.Reset()
	conn.peerSettings.Reset()
	conn.peerFlowCredits = int64(conn.peerSettings.MaxWindowSize())

	conn.root = &Stream{id: 0, conn: conn, state: StreamIdle, dependees: make(map[uint32]*Stream)}

	if conn.logger == nil {
		conn.logger = defaultLogger
	}

	return conn
}

// Dialer dials a TLS+ALPN "h2" connection and wraps it in a Conn.
type Dialer struct {
	// Addr is the server's address, "host:port".
	Addr string
	// TLSConfig is used for the handshake; NextProtos is forced to
	// include "h2" if missing. A nil TLSConfig gets a minimal default.
	TLSConfig *tls.Config
	// PingInterval is forwarded to ConnOpts.
	PingInterval time.Duration
}

// ErrServerSupport is returned when the peer didn't negotiate "h2" via ALPN.
var ErrServerSupport = fmt.Errorf("h2stream: server does not support HTTP/2 (h2)")

// ErrNotAvailableStreams is returned by OpenStream when the peer's
// SETTINGS_MAX_CONCURRENT_STREAMS would be exceeded.
var ErrNotAvailableStreams = fmt.Errorf("h2stream: no stream ids available under the peer's concurrency limit")

func (d *Dialer) tlsConfig() *tls.Config {
	cfg := d.TLSConfig
	if cfg == nil {
		cfg = &tls.Config{}
	} else {
		cfg = cfg.Clone()
	}

	for _, p := range cfg.NextProtos {
		if p == "h2" {
			return cfg
		}
	}
	cfg.NextProtos = append(cfg.NextProtos, "h2")
	return cfg
}

// Dial connects, completes the TLS+ALPN handshake, and performs the
// HTTP/2 connection preface exchange.
func (d *Dialer) Dial(opts ConnOpts) (*Conn, error) {
	raw, err := net.Dial("tcp", d.Addr)
	if err != nil {
		return nil, err
	}

	tlsConn := tls.Client(raw, d.tlsConfig())
	if err := tlsConn.Handshake(); err != nil {
		_ = raw.Close()
		return nil, err
	}

	if tlsConn.ConnectionState().NegotiatedProtocol != "h2" {
		_ = tlsConn.Close()
		return nil, ErrServerSupport
	}

	if opts.PingInterval == 0 {
		opts.PingInterval = d.PingInterval
	}

	conn := NewConn(tlsConn, opts)
	if err := conn.Handshake(); err != nil {
		return nil, err
	}

	return conn, nil
}

// ClientPreface is the 24-byte connection preface a client must send before
// its first SETTINGS frame (https://tools.ietf.org/html/rfc7540#section-3.5).
const ClientPreface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

// Handshake sends the client preface, an initial SETTINGS frame, and waits
// for the peer's SETTINGS before starting the background read/write loops.
func (c *Conn) Handshake() error {
	if _, err := io.WriteString(c.bw, ClientPreface); err != nil {
		_ = c.c.Close()
		return err
	}

	fr := AcquireFrameHeader()
	st := AcquireSettings()
	st.Reset()
	fr.SetBody(st)

	if _, err := fr.WriteTo(c.bw); err != nil {
		ReleaseFrameHeader(fr)
		_ = c.c.Close()
		return err
	}
	if err := c.bw.Flush(); err != nil {
		ReleaseFrameHeader(fr)
		_ = c.c.Close()
		return err
	}
	ReleaseFrameHeader(fr)

	peer, err := ReadFrameFrom(c.br)
	if err != nil {
		_ = c.c.Close()
		return err
	}
	defer ReleaseFrameHeader(peer)

	if peer.Type() != FrameSettings {
		_ = c.c.Close()
		return fmt.Errorf("h2stream: expected initial SETTINGS, got %s", peer.Type())
	}

	peerSt := peer.Body().(*Settings)
	if !peerSt.IsAck() {
		c.applyPeerSettings(peerSt)
		if err := c.ackSettings(); err != nil {
			_ = c.c.Close()
			return err
		}
	}

	go c.readLoop()
	go c.writeLoop()

	return nil
}

func (c *Conn) applyPeerSettings(st *Settings) {
	c.mu.Lock()
	st.CopyTo(&c.peerSettings)
	if st.HeaderTableSize() <= defaultHeaderTableSize {
		c.enc.SetMaxTableSize(int(st.HeaderTableSize()))
	}
	c.mu.Unlock()
}

func (c *Conn) ackSettings() error {
	fr := AcquireFrameHeader()
	st := AcquireSettings()
	st.Reset()
	st.SetAck(true)
	fr.SetBody(st)

	_, err := fr.WriteTo(c.bw)
	if err == nil {
		err = c.bw.Flush()
	}
	ReleaseFrameHeader(fr)
	return err
}

// Closed reports whether the connection's I/O loops have stopped.
func (c *Conn) Closed() bool {
	return atomic.LoadUint32(&c.closed) == 1
}

// LastErr returns the error that caused the connection to close, if any.
func (c *Conn) LastErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Close sends GOAWAY(NO_ERROR) and closes the underlying transport.
func (c *Conn) Close() error {
	if !atomic.CompareAndSwapUint32(&c.closed, 0, 1) {
		return nil
	}

	fr := AcquireFrameHeader()
	ga := AcquireGoAway()
	ga.SetLastStream(0)
	ga.SetCode(NoError)
	fr.SetBody(ga)

	_, err := fr.WriteTo(c.bw)
	if err == nil {
		err = c.bw.Flush()
	}
	ReleaseFrameHeader(fr)

	_ = c.c.Close()

	c.mu.Lock()
	for _, s := range c.streams {
		if s.rstStreamError == nil {
			s.rstStreamError = NewStreamError(NoError, "connection closed")
		}
		s.setState(StreamClosed)
	}
	c.mu.Unlock()

	if c.onDisconnect != nil {
		c.onDisconnect(c)
	}

	return err
}

// OpenStream allocates the next client-initiated (odd) stream id.
func (c *Conn) OpenStream() (*Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.peerSettings.MaxConcurrentStreams() > 0 && uint32(len(c.streams)) >= c.peerSettings.MaxConcurrentStreams() {
		return nil, ErrNotAvailableStreams
	}

	id := c.nextID
	c.nextID += 2

	s := newStream(c, id)
	c.streams[id] = s

	return s, nil
}

func (c *Conn) streamOrNil(id uint32) *Stream {
	if id == 0 {
		return c.root
	}
	return c.streams[id]
}

func (c *Conn) writeFrame(fr *FrameHeader) error {
	c.out <- fr
	return nil
}

func (c *Conn) sendWindowUpdate(streamID uint32, size uint32) {
	fr := AcquireFrameHeader()
	fr.SetStream(streamID)

	wu := AcquireWindowUpdate()
	wu.SetIncrement(size)
	fr.SetBody(wu)

	_ = c.writeFrame(fr)
}

func (c *Conn) sendRstStream(streamID uint32, code ErrorCode) {
	fr := AcquireFrameHeader()
	fr.SetStream(streamID)

	rst := AcquireRstStream()
	rst.SetCode(code)
	fr.SetBody(rst)

	_ = c.writeFrame(fr)
}

func (c *Conn) sendGoAway(code ErrorCode, lastStream uint32) {
	fr := AcquireFrameHeader()

	ga := AcquireGoAway()
	ga.SetLastStream(lastStream)
	ga.SetCode(code)
	fr.SetBody(ga)

	_ = c.writeFrame(fr)
}

// readLoop is the connection's single dispatcher goroutine: every inbound
// frame is parsed and handled here, in arrival order, which is what lets
// Stream treat its fields as single-writer for mutation purposes.
func (c *Conn) readLoop() {
	defer func() { _ = c.Close() }()

	for {
		fr, err := ReadFrameFromWithSize(c.br, c.localSettings.MaxFrameSize())
		if err != nil {
			if err == ErrUnknownFrameType {
				// RFC 7540 section 4.1: unknown frame types are discarded,
				// not treated as an error.
				continue
			}
			if herr, ok := err.(*Error); ok {
				c.handleError(fr.Stream(), herr)
				ReleaseFrameHeader(fr)
				continue
			}
			if c.Closed() {
				return
			}
			c.mu.Lock()
			c.lastErr = err
			c.mu.Unlock()
			return
		}

		c.mu.Lock()
		herr := c.dispatch(fr)
		c.mu.Unlock()

		if herr != nil {
			c.handleError(fr.Stream(), herr)
		}

		ReleaseFrameHeader(fr)
	}
}

func (c *Conn) handleError(streamID uint32, err *Error) {
	if c.logger != nil {
		c.logger.Printf("h2stream: %s", err)
	}

	if err.Scope == ScopeStream && streamID != 0 {
		c.mu.Lock()
		if s := c.streams[streamID]; s != nil {
			s.reset(err)
		}
		c.mu.Unlock()
		c.sendRstStream(streamID, err.Code)
		return
	}

	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()

	c.sendGoAway(err.Code, c.highestStreamSeen())
	_ = c.Close()
}

func (c *Conn) highestStreamSeen() uint32 {
	var max uint32
	for id := range c.streams {
		if id > max {
			max = id
		}
	}
	return max
}

func (c *Conn) writeLoop() {
	defer func() { _ = c.Close() }()

	interval := c.pingInterval
	if interval <= 0 {
		interval = DefaultPingInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case fr, ok := <-c.out:
			if !ok {
				return
			}
			_, err := fr.WriteTo(c.bw)
			if err == nil {
				err = c.bw.Flush()
			}
			ReleaseFrameHeader(fr)
			if err != nil {
				c.mu.Lock()
				c.lastErr = err
				c.mu.Unlock()
				return
			}
		case <-ticker.C:
			if c.disableAcks {
				continue
			}
			if atomic.LoadInt32(&c.unacks) >= 3 {
				c.mu.Lock()
				c.lastErr = ErrTimeout
				c.mu.Unlock()
				return
			}
			if err := c.sendPing(); err != nil {
				c.mu.Lock()
				c.lastErr = err
				c.mu.Unlock()
				return
			}
		}
	}
}

func (c *Conn) sendPing() error {
	fr := AcquireFrameHeader()
	ping := AcquirePing()
	fr.SetBody(ping)

	_, err := fr.WriteTo(c.bw)
	if err == nil {
		err = c.bw.Flush()
		if err == nil {
			atomic.AddInt32(&c.unacks, 1)
		}
	}
	ReleaseFrameHeader(fr)
	return err
}
