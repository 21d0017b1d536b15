package bolt

import (
	"bytes"
	"testing"
)

func TestRequestRoundTrip(t *testing.T) {
	want := RequestFrame{
		RequestID: 42,
		TimeoutMs: 3000,
		ClassName: []byte("com.alipay.sofa.rpc.core.request.SofaRequest"),
		Header:    []byte("header-arg"),
		Content:   bytes.Repeat([]byte{0xAB}, 1358),
	}

	encoded := EncodeRequest(want)
	if len(encoded) != HeaderSize+len(want.ClassName)+len(want.Header)+len(want.Content) {
		t.Fatalf("unexpected encoded length %d", len(encoded))
	}

	got, n, err := DecodeRequest(encoded)
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	if n != len(encoded) {
		t.Fatalf("consumed %d bytes, want %d", n, len(encoded))
	}
	if got.RequestID != want.RequestID || got.TimeoutMs != want.TimeoutMs {
		t.Fatalf("header mismatch: got %+v", got)
	}
	if !bytes.Equal(got.ClassName, want.ClassName) {
		t.Fatalf("classname mismatch: got %q want %q", got.ClassName, want.ClassName)
	}
	if !bytes.Equal(got.Header, want.Header) {
		t.Fatalf("header bytes mismatch")
	}
	if !bytes.Equal(got.Content, want.Content) {
		t.Fatalf("content mismatch")
	}
}

func TestRequestShortFrame(t *testing.T) {
	want := RequestFrame{RequestID: 1, ClassName: []byte("x"), Content: []byte("hello")}
	encoded := EncodeRequest(want)

	if _, _, err := DecodeRequest(encoded[:HeaderSize-1]); err != ErrShortFrame {
		t.Fatalf("want ErrShortFrame for truncated header, got %v", err)
	}
	if _, _, err := DecodeRequest(encoded[:len(encoded)-1]); err != ErrShortFrame {
		t.Fatalf("want ErrShortFrame for truncated body, got %v", err)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	want := ResponseFrame{
		RequestID: 7,
		Status:    StatusSuccess,
		Content:   []byte("ok"),
	}
	encoded := EncodeResponse(want)
	got, n, err := DecodeResponse(encoded)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if n != len(encoded) {
		t.Fatalf("consumed %d, want %d", n, len(encoded))
	}
	if got.RequestID != want.RequestID || got.Status != want.Status {
		t.Fatalf("header mismatch: got %+v", got)
	}
	if !bytes.Equal(got.Content, want.Content) {
		t.Fatalf("content mismatch")
	}
}

func TestDecodeRequestBadProtocolCode(t *testing.T) {
	encoded := EncodeRequest(RequestFrame{RequestID: 1})
	encoded[0] = 0xFF
	if _, _, err := DecodeRequest(encoded); err == nil {
		t.Fatalf("expected error for bad protocol code")
	}
}
