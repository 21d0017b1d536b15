// Package session implements the Protocol Session abstraction (C3):
// a uniform interface in front of the HTTP/2, HTTP/1.1, and BOLT wire
// encoders, fed bytes in and out through the owning Client's buffer.
package session

import "bytes"

// ClientHandle is the upward-facing callback surface a Session drives.
// It is implemented by *client.Client. Session implementations hold a
// ClientHandle, not a raw pointer back into the Worker's client table —
// the real back-reference indirection (stable index + generation tag)
// lives in the client package; Session only ever sees this narrow
// interface.
type ClientHandle interface {
	OnRequest(streamID int32)
	OnHeader(streamID int32, name, value string)
	OnStatusCode(streamID int32, code int)
	OnData(streamID int32, n int)
	OnSofaRPCStatus(streamID int32, status uint16)
	OnStreamClose(streamID int32, success bool, final bool)
}

// RequestSpec describes one request to issue: method, path, headers
// (already resolved per the -H precedence rule, see config package),
// and an optional body.
type RequestSpec struct {
	Scheme    string
	Authority string
	Method    string
	Path      string
	Headers   []HeaderField
	Body      []byte
}

// HeaderField is a single header name/value pair in emission order.
type HeaderField struct {
	Name  string
	Value string
}

// Session is the uniform contract required of every protocol
// implementation.
type Session interface {
	// OnConnect is called once the underlying connection has completed
	// its handshake and the application protocol has been selected.
	OnConnect() error

	// SubmitRequest issues one request according to the Session's own
	// id-assignment scheme (H2 stream ids from the multiplexer, H1
	// sequential synthetic ids, BOLT monotonic request ids).
	SubmitRequest() error

	// OnRead feeds newly-received bytes to the session for decoding.
	// The session invokes ClientHandle callbacks synchronously as it
	// parses complete protocol units out of data.
	OnRead(data []byte) error

	// OnWrite pulls any framed bytes the session wants to send into w.
	OnWrite(w *bytes.Buffer) error

	// MaxConcurrentStreams reports this session's effective concurrency
	// cap, which may be lower than the configured limit (e.g. H1
	// collapses to 1 when a POST body is configured).
	MaxConcurrentStreams() int

	// Terminate tears down session-level state; it does not close the
	// socket, which remains the Client's responsibility.
	Terminate()
}

// Config is what every Session implementation needs from the Client's
// Config to construct itself.
type Config struct {
	// RequestTemplates holds one RequestSpec per configured request URI.
	// Submissions cycle through it round-robin: the first URI's
	// scheme/authority apply to every entry, but each contributes its
	// own path+query.
	RequestTemplates       []RequestSpec
	MaxConcurrentStreams   uint32
	HeaderTableSize        uint32
	EncoderHeaderTableSize uint32
	HasBody                bool

	// BOLT-specific fields, CLI-configurable rather than hard-coded so a
	// run can target a real SOFARPC service's expected class/header/
	// content shape.
	BoltClassName     []byte
	BoltHeaderArg     []byte
	BoltContentLength int
	BoltTimeoutMs     uint32
}

// Template returns the i'th request template, wrapping around the end
// of RequestTemplates so a session with fewer streams in flight than
// configured URIs still visits all of them over successive submissions.
// An empty RequestTemplates (as in tests that build a Config by hand)
// yields the zero RequestSpec.
func (c Config) Template(i int) RequestSpec {
	if len(c.RequestTemplates) == 0 {
		return RequestSpec{}
	}
	return c.RequestTemplates[i%len(c.RequestTemplates)]
}
