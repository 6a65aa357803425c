package h2stream

import (
	"bufio"
	"bytes"
	"testing"
)

func TestWindowUpdateRoundTrip(t *testing.T) {
	fr := AcquireFrameHeader()
	fr.SetStream(3)
	wu := AcquireWindowUpdate()
	wu.SetIncrement((1 << 31) - 1)
	fr.SetBody(wu)

	bf := bytes.NewBuffer(nil)
	bw := bufio.NewWriter(bf)
	if _, err := fr.WriteTo(bw); err != nil {
		t.Fatal(err)
	}
	if err := bw.Flush(); err != nil {
		t.Fatal(err)
	}
	ReleaseFrameHeader(fr)

	got, err := ReadFrameFrom(bufio.NewReader(bf))
	if err != nil {
		t.Fatal(err)
	}
	defer ReleaseFrameHeader(got)

	gotWU := got.Body().(*WindowUpdate)
	if gotWU.Increment() != (1<<31)-1 {
		t.Fatalf("unexpected increment: %d", gotWU.Increment())
	}
}

func TestWindowUpdateSetIncrementRejectsOutOfRange(t *testing.T) {
	cases := []uint32{0, 1 << 31, 1<<32 - 1}
	for _, increment := range cases {
		func() {
			defer func() {
				if recover() == nil {
					t.Fatalf("expected SetIncrement(%d) to panic", increment)
				}
			}()
			wu := &WindowUpdate{}
			wu.SetIncrement(increment)
		}()
	}
}

func TestWindowUpdateWrongPayloadSizeIsFrameSizeError(t *testing.T) {
	fr := AcquireFrameHeader()
	fr.payload = append(fr.payload[:0], 0, 0, 0)
	fr.length = len(fr.payload)

	wu := &WindowUpdate{}
	err := wu.Deserialize(fr)
	herr, ok := err.(*Error)
	if !ok || herr.Code != FrameSizeError {
		t.Fatalf("expected FrameSizeError, got %v", err)
	}
}
