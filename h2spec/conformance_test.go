// Package h2spec holds this module's protocol-conformance tests.
//
// The teacher's own h2spec_test.go drove github.com/summerwind/h2spec
// against a fasthttp.Server wrapping the teacher's server-side HTTP/2
// implementation. This module only implements the client-side per-stream
// layer (see DESIGN.md): there is no server under test, so the h2spec
// runner itself doesn't apply here. This file keeps the same intent —
// drive real wire bytes at the implementation and assert on the RFC 7540
// behaviour it produces — but with a small scripted peer standing in for
// h2spec, and h2stream.Conn playing the opposite role (client, not server).
package h2spec

import (
	"bufio"
	"encoding/binary"
	"net"
	"testing"
	"time"

	h2stream "github.com/cloudpeek/h2stream"
	"github.com/stretchr/testify/require"
)

// peer is the scripted remote end of a client Conn under test: a raw
// net.Conn plus buffered reader/writer so the test can read and write
// individual frames without needing a real server implementation.
type peer struct {
	net.Conn
	br *bufio.Reader
	bw *bufio.Writer
}

func (p *peer) writeFrame(t *testing.T, fr *h2stream.FrameHeader) {
	t.Helper()
	_, err := fr.WriteTo(p.bw)
	require.NoError(t, err)
	require.NoError(t, p.bw.Flush())
}

func (p *peer) readFrame(t *testing.T) *h2stream.FrameHeader {
	t.Helper()
	fr, err := h2stream.ReadFrameFrom(p.br)
	require.NoError(t, err)
	return fr
}

// dial completes the preface/SETTINGS exchange over an in-memory pipe and
// hands back a ready-to-use client Conn plus its scripted peer.
func dial(t *testing.T, opts h2stream.ConnOpts) (*h2stream.Conn, *peer) {
	t.Helper()

	clientSide, serverSide := net.Pipe()

	opts.DisablePingChecking = true
	conn := h2stream.NewConn(clientSide, opts)

	p := &peer{Conn: serverSide, br: bufio.NewReader(serverSide), bw: bufio.NewWriter(serverSide)}

	done := make(chan error, 1)
	go func() { done <- conn.Handshake() }()

	preface := make([]byte, len(h2stream.ClientPreface))
	_, err := readFull(p.br, preface)
	require.NoError(t, err)
	require.Equal(t, h2stream.ClientPreface, string(preface))

	clientSettings := p.readFrame(t)
	require.Equal(t, h2stream.FrameSettings, clientSettings.Type())

	srvSettings := h2stream.AcquireFrameHeader()
	st := h2stream.AcquireSettings()
	st.Reset()
	srvSettings.SetBody(st)
	p.writeFrame(t, srvSettings)

	ack := p.readFrame(t)
	require.Equal(t, h2stream.FrameSettings, ack.Type())
	require.True(t, ack.Body().(*h2stream.Settings).IsAck())

	require.NoError(t, <-done)

	return conn, p
}

func readFull(br *bufio.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := br.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// http2/6.9.1 scenario: a WINDOW_UPDATE with a zero increment targeting a
// stream is a stream error, not a connection error — the stream is reset
// but the connection, and every other stream on it, keeps running.
func TestWindowUpdateZeroIncrementOnStreamIsStreamError(t *testing.T) {
	conn, p := dial(t, h2stream.ConnOpts{})
	defer conn.Close()

	stream, err := conn.OpenStream()
	require.NoError(t, err)

	// Written raw: WindowUpdate.SetIncrement refuses a zero increment.
	var raw [9 + 4]byte
	raw[2] = 4 // 24-bit length = 4
	raw[3] = byte(h2stream.FrameWindowUpdate)
	binary.BigEndian.PutUint32(raw[5:9], stream.ID())
	_, err = p.bw.Write(raw[:])
	require.NoError(t, err)
	require.NoError(t, p.bw.Flush())

	reply := p.readFrame(t)
	require.Equal(t, h2stream.FrameResetStream, reply.Type())
	require.Equal(t, stream.ID(), reply.Stream())
	rst := reply.Body().(*h2stream.RstStream)
	require.Equal(t, h2stream.ProtocolError, rst.Code())

	require.False(t, conn.Closed())
}

// http2/6.9.1 scenario, connection variant: a zero increment on stream 0
// (the connection window) is a connection error and closes the connection.
func TestWindowUpdateZeroIncrementOnConnectionIsConnectionError(t *testing.T) {
	conn, p := dial(t, h2stream.ConnOpts{})
	defer conn.Close()

	// Written raw: WindowUpdate.SetIncrement refuses a zero increment.
	var raw [9 + 4]byte
	raw[2] = 4 // 24-bit length = 4
	raw[3] = byte(h2stream.FrameWindowUpdate)
	_, err := p.bw.Write(raw[:])
	require.NoError(t, err)
	require.NoError(t, p.bw.Flush())

	reply := p.readFrame(t)
	require.Equal(t, h2stream.FrameGoAway, reply.Type())
	ga := reply.Body().(*h2stream.GoAway)
	require.Equal(t, h2stream.ProtocolError, ga.Code())

	waitClosed(t, conn)
}

// http2/6.5/1 scenario: a SETTINGS frame with the ACK flag set must carry
// an empty payload; a non-empty ACK is a connection-level FRAME_SIZE_ERROR.
func TestSettingsAckWithPayloadIsFrameSizeError(t *testing.T) {
	conn, p := dial(t, h2stream.ConnOpts{})
	defer conn.Close()

	var raw [9 + 6]byte
	raw[2] = 6 // 24-bit length = 6
	raw[3] = byte(h2stream.FrameSettings)
	raw[4] = 0x1 // ACK
	_, err := p.bw.Write(raw[:])
	require.NoError(t, err)
	require.NoError(t, p.bw.Flush())

	reply := p.readFrame(t)
	require.Equal(t, h2stream.FrameGoAway, reply.Type())
	ga := reply.Body().(*h2stream.GoAway)
	require.Equal(t, h2stream.FrameSizeError, ga.Code())

	waitClosed(t, conn)
}

// http2/6.1/1-adjacent scenario: RST_STREAM on a stream the client never
// opened is ignored rather than treated as a connection error, since the
// client can't distinguish "already closed and forgotten" from "never
// existed" once it stops tracking a stream.
func TestRstStreamOnUnknownStreamIsIgnored(t *testing.T) {
	conn, p := dial(t, h2stream.ConnOpts{})
	defer conn.Close()

	fr := h2stream.AcquireFrameHeader()
	fr.SetStream(99)
	rst := h2stream.AcquireRstStream()
	rst.SetCode(h2stream.CancelError)
	fr.SetBody(rst)
	p.writeFrame(t, fr)

	// Drive a PING round-trip to prove the connection kept processing
	// frames instead of tearing down.
	ping := h2stream.AcquireFrameHeader()
	ping.SetBody(h2stream.AcquirePing())
	p.writeFrame(t, ping)

	pong := p.readFrame(t)
	require.Equal(t, h2stream.FramePing, pong.Type())
	require.True(t, pong.Body().(*h2stream.Ping).Ack())

	require.False(t, conn.Closed())
}

func waitClosed(t *testing.T, conn *h2stream.Conn) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !conn.Closed() {
		if time.Now().After(deadline) {
			t.Fatal("connection did not close before deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
