package h2stream

import "testing"

func TestDataFrameDrivesHalfCloseRemoteThenSentinel(t *testing.T) {
	conn := newTestConn(t)
	s := mkStream(t, conn, 1)
	s.setState(StreamOpen)

	fr := AcquireFrameHeader()
	fr.SetStream(1)
	data := AcquireData()
	data.SetData([]byte("hello"))
	fr.SetBody(data)

	if err := conn.dispatch(fr); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.state != StreamOpen {
		t.Fatalf("expected state to remain open after a non-final DATA frame, got %s", s.state)
	}
	if len(s.chunkQueue) != 1 {
		t.Fatalf("expected one queued chunk, got %d", len(s.chunkQueue))
	}

	fr2 := AcquireFrameHeader()
	fr2.SetStream(1)
	data2 := AcquireData()
	data2.SetData([]byte("world"))
	data2.SetEndStream(true)
	fr2.SetBody(data2)

	if err := conn.dispatch(fr2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.state != StreamHalfClosedRemote {
		t.Fatalf("expected half-closed(remote) after END_STREAM DATA, got %s", s.state)
	}
	// The end-of-stream sentinel (nil) must be queued after the last chunk.
	if len(s.chunkQueue) != 3 || s.chunkQueue[2] != nil {
		t.Fatalf("expected a trailing nil sentinel after END_STREAM, got %v", s.chunkQueue)
	}
}

func TestDataFrameOnClosedStreamIsStreamError(t *testing.T) {
	conn := newTestConn(t)
	s := mkStream(t, conn, 1)
	s.setState(StreamClosed)

	fr := AcquireFrameHeader()
	fr.SetStream(1)
	data := AcquireData()
	data.SetData([]byte("late"))
	fr.SetBody(data)

	err := conn.dispatch(fr)
	if err == nil || err.Code != StreamClosedError || err.Scope != ScopeStream {
		t.Fatalf("expected a stream-scoped StreamClosedError, got %v", err)
	}
}

func TestDataFrameOnStreamZeroIsConnectionError(t *testing.T) {
	conn := newTestConn(t)

	fr := AcquireFrameHeader()
	fr.SetStream(0)
	fr.SetBody(AcquireData())

	err := conn.dispatch(fr)
	if err == nil || err.Scope != ScopeConnection {
		t.Fatalf("expected a connection-scoped error, got %v", err)
	}
}

func TestDataFrameOnUnknownStreamIsConnectionError(t *testing.T) {
	conn := newTestConn(t)

	fr := AcquireFrameHeader()
	fr.SetStream(42)
	fr.SetBody(AcquireData())

	err := conn.dispatch(fr)
	if err == nil || err.Scope != ScopeConnection {
		t.Fatalf("expected a connection-scoped error for an unknown stream, got %v", err)
	}
}
