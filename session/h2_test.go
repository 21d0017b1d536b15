package session

import (
	"bytes"
	"testing"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"
)

// encodeH2Response builds a HEADERS+DATA frame pair simulating a server
// response, the inverse of what H2Session.SubmitRequest writes.
func encodeH2Response(t *testing.T, streamID uint32, status string, body []byte) []byte {
	t.Helper()
	var hbuf bytes.Buffer
	enc := hpack.NewEncoder(&hbuf)
	if err := enc.WriteField(hpack.HeaderField{Name: ":status", Value: status}); err != nil {
		t.Fatalf("WriteField: %v", err)
	}

	var out bytes.Buffer
	fr := http2.NewFramer(&out, nil)
	if err := fr.WriteHeaders(http2.HeadersFrameParam{
		StreamID:      streamID,
		BlockFragment: hbuf.Bytes(),
		EndHeaders:    true,
		EndStream:     len(body) == 0,
	}); err != nil {
		t.Fatalf("WriteHeaders: %v", err)
	}
	if len(body) > 0 {
		if err := fr.WriteData(streamID, true, body); err != nil {
			t.Fatalf("WriteData: %v", err)
		}
	}
	return out.Bytes()
}

func TestH2SessionSubmitRequestThenReadResponse(t *testing.T) {
	h := newRecordingHandle()
	s := NewH2(h, Config{MaxConcurrentStreams: 4, RequestTemplates: []RequestSpec{{
		Scheme: "http", Authority: "example.com", Method: "GET", Path: "/",
	}}})

	if err := s.OnConnect(); err != nil {
		t.Fatalf("OnConnect: %v", err)
	}
	if err := s.SubmitRequest(); err != nil {
		t.Fatalf("SubmitRequest: %v", err)
	}

	var out bytes.Buffer
	if err := s.OnWrite(&out); err != nil {
		t.Fatalf("OnWrite: %v", err)
	}
	if out.Len() == 0 {
		t.Fatal("OnWrite produced no bytes after SubmitRequest")
	}

	resp := encodeH2Response(t, 1, "200", []byte("hello"))
	if err := s.OnRead(resp); err != nil {
		t.Fatalf("OnRead: %v", err)
	}

	if h.statuses[1] != 200 {
		t.Fatalf("status for stream 1 = %d, want 200", h.statuses[1])
	}
	if len(h.closed) != 1 || h.closed[0] != 1 {
		t.Fatalf("closed = %v, want [1]", h.closed)
	}
	if !h.success[1] {
		t.Fatal("stream 1 should have closed successfully")
	}
}

func TestH2SessionStreamIDsAreOddAndIncreasing(t *testing.T) {
	h := newRecordingHandle()
	s := NewH2(h, Config{MaxConcurrentStreams: 4})
	s.OnConnect()

	for i := 0; i < 3; i++ {
		if err := s.SubmitRequest(); err != nil {
			t.Fatalf("SubmitRequest #%d: %v", i, err)
		}
	}
	if len(h.requested) != 3 {
		t.Fatalf("requested = %v, want 3 entries", h.requested)
	}
	want := []int32{1, 3, 5}
	for i, id := range want {
		if h.requested[i] != id {
			t.Fatalf("stream %d id = %d, want %d", i, h.requested[i], id)
		}
	}
}

func TestH2SessionGoAwayAbortsOpenStreams(t *testing.T) {
	h := newRecordingHandle()
	s := NewH2(h, Config{MaxConcurrentStreams: 4})
	s.OnConnect()
	s.SubmitRequest()
	s.SubmitRequest()

	var out bytes.Buffer
	fr := http2.NewFramer(&out, nil)
	if err := fr.WriteGoAway(5, http2.ErrCodeNo, nil); err != nil {
		t.Fatalf("WriteGoAway: %v", err)
	}
	if err := s.OnRead(out.Bytes()); err != nil {
		t.Fatalf("OnRead: %v", err)
	}

	if len(h.closed) != 2 {
		t.Fatalf("closed = %v, want 2 aborted streams", h.closed)
	}
	if h.success[1] || h.success[3] {
		t.Fatal("GOAWAY-aborted streams should not report success")
	}
}
