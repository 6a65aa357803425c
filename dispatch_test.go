package h2stream

import "testing"

func encodeTestHeaders(t *testing.T, conn *Conn, fields [][2]string) []byte {
	t.Helper()
	var buf []byte
	hf := AcquireHeaderField()
	defer ReleaseHeaderField(hf)
	for _, f := range fields {
		hf.SetBytes([]byte(f[0]), []byte(f[1]))
		buf = conn.enc.AppendHeaderField(buf, hf, true)
	}
	return buf
}

// TestHeadersAcrossContinuationReassembles drives a HEADERS frame (without
// END_HEADERS) followed by two CONTINUATION frames, the last carrying
// END_HEADERS, and checks the reassembled header block decodes to the
// original fields in order.
func TestHeadersAcrossContinuationReassembles(t *testing.T) {
	conn := newTestConn(t)

	block := encodeTestHeaders(t, conn, [][2]string{
		{":method", "GET"},
		{":scheme", "https"},
		{":authority", "example.com"},
		{":path", "/widgets"},
		{"accept", "application/json"},
	})

	third := len(block) / 3
	part1, part2, part3 := block[:third], block[third:2*third], block[2*third:]

	fr1 := AcquireFrameHeader()
	fr1.SetStream(1)
	h := AcquireHeaders()
	h.SetHeaders(part1)
	fr1.SetBody(h)
	if err := conn.dispatch(fr1); err != nil {
		t.Fatalf("unexpected error on HEADERS: %v", err)
	}

	s := conn.streams[1]
	if s == nil {
		t.Fatal("expected stream 1 to have been created")
	}
	if s.state != StreamOpen {
		t.Fatalf("expected stream to be open mid-header-block, got %s", s.state)
	}

	fr2 := AcquireFrameHeader()
	fr2.SetStream(1)
	c1 := AcquireContinuation()
	c1.SetHeader(part2)
	fr2.SetBody(c1)
	if err := conn.dispatch(fr2); err != nil {
		t.Fatalf("unexpected error on first CONTINUATION: %v", err)
	}

	if len(s.recvHeadersQueue) != 0 {
		t.Fatal("expected no headers delivered before END_HEADERS")
	}

	fr3 := AcquireFrameHeader()
	fr3.SetStream(1)
	c2 := AcquireContinuation()
	c2.SetHeader(part3)
	c2.SetEndHeaders(true)
	fr3.SetBody(c2)
	if err := conn.dispatch(fr3); err != nil {
		t.Fatalf("unexpected error on final CONTINUATION: %v", err)
	}

	if len(s.recvHeadersQueue) != 1 {
		t.Fatalf("expected exactly one reassembled header set, got %d", len(s.recvHeadersQueue))
	}

	got := s.recvHeadersQueue[0]
	want := [][2]string{
		{":method", "GET"},
		{":scheme", "https"},
		{":authority", "example.com"},
		{":path", "/widgets"},
		{"accept", "application/json"},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d header fields, got %d", len(want), len(got))
	}
	for i, hf := range got {
		if hf.Key() != want[i][0] || hf.Value() != want[i][1] {
			t.Fatalf("field %d: expected %v, got %s=%s", i, want[i], hf.Key(), hf.Value())
		}
	}
}

// TestContinuationWithoutHeadersInProgressIsConnectionError covers the case
// of a CONTINUATION arriving for a stream that never opened a header block.
func TestContinuationWithoutHeadersInProgressIsConnectionError(t *testing.T) {
	conn := newTestConn(t)
	mkStream(t, conn, 1)

	fr := AcquireFrameHeader()
	fr.SetStream(1)
	cont := AcquireContinuation()
	cont.SetHeader([]byte{0x82}) // arbitrary HPACK byte, never decoded
	fr.SetBody(cont)

	err := conn.dispatch(fr)
	if err == nil || err.Scope != ScopeConnection {
		t.Fatalf("expected a connection-scoped error, got %v", err)
	}
}

// TestPseudoHeaderAfterRegularHeaderIsRejected covers RFC 7540 section
// 8.1.2.1: all pseudo-header fields must appear before regular ones.
func TestPseudoHeaderAfterRegularHeaderIsRejected(t *testing.T) {
	conn := newTestConn(t)

	block := encodeTestHeaders(t, conn, [][2]string{
		{"accept", "application/json"},
		{":method", "GET"},
	})

	fr := AcquireFrameHeader()
	fr.SetStream(1)
	h := AcquireHeaders()
	h.SetHeaders(block)
	h.SetEndHeaders(true)
	fr.SetBody(h)

	err := conn.dispatch(fr)
	if err == nil || err.Code != ProtocolError {
		t.Fatalf("expected ProtocolError for out-of-order pseudo-header, got %v", err)
	}
}
