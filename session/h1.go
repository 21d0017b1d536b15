package session

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// H1Session implements the HTTP/1.1 Protocol Session. Responses are
// parsed with the standard library's http.ReadResponse over the bytes
// accumulated so far; when an incomplete response is seen, OnRead
// simply returns and waits for the next chunk, the same non-blocking
// "feed bytes in, parse what's complete" contract every Session
// implements.
type H1Session struct {
	handle     ClientHandle
	cfg        Config
	nextID     int32
	reqIdx     int
	maxStreams int

	pendingWrite bytes.Buffer
	recvBuf      bytes.Buffer
	streamQueue  []int32
}

// NewH1 returns an H1Session. Pipelining is allowed up to
// cfg.MaxConcurrentStreams, but a configured request body collapses
// that to 1.
func NewH1(handle ClientHandle, cfg Config) *H1Session {
	max := int(cfg.MaxConcurrentStreams)
	if cfg.HasBody {
		max = 1
	}
	if max < 1 {
		max = 1
	}
	return &H1Session{handle: handle, cfg: cfg, maxStreams: max}
}

func (s *H1Session) OnConnect() error { return nil }

func (s *H1Session) MaxConcurrentStreams() int { return s.maxStreams }

func (s *H1Session) SubmitRequest() error {
	s.nextID++
	id := s.nextID
	s.pendingWrite.Write(buildH1Request(s.cfg.Template(s.reqIdx)))
	s.reqIdx++
	s.streamQueue = append(s.streamQueue, id)
	s.handle.OnRequest(id)
	return nil
}

func buildH1Request(spec RequestSpec) []byte {
	var b bytes.Buffer

	method := spec.Method
	if method == "" {
		method = "GET"
	}
	path := spec.Path
	if path == "" {
		path = "/"
	}
	fmt.Fprintf(&b, "%s %s HTTP/1.1\r\n", method, path)

	hasHost := false
	for _, h := range spec.Headers {
		if strings.EqualFold(h.Name, "host") {
			hasHost = true
		}
	}
	if !hasHost {
		fmt.Fprintf(&b, "Host: %s\r\n", spec.Authority)
	}
	for _, h := range spec.Headers {
		fmt.Fprintf(&b, "%s: %s\r\n", h.Name, h.Value)
	}
	if len(spec.Body) > 0 {
		fmt.Fprintf(&b, "Content-Length: %d\r\n", len(spec.Body))
	}
	b.WriteString("\r\n")
	b.Write(spec.Body)
	return b.Bytes()
}

func (s *H1Session) OnWrite(w *bytes.Buffer) error {
	w.Write(s.pendingWrite.Bytes())
	s.pendingWrite.Reset()
	return nil
}

func (s *H1Session) OnRead(data []byte) error {
	s.recvBuf.Write(data)

	for len(s.streamQueue) > 0 {
		buffered := s.recvBuf.Bytes()
		if len(buffered) == 0 {
			return nil
		}

		rdr := bytes.NewReader(buffered)
		br := bufio.NewReader(rdr)
		resp, err := http.ReadResponse(br, nil)
		if err != nil {
			// Incomplete response; wait for more bytes.
			return nil
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			// Content-Length promised more than is buffered so far;
			// wait for the rest, same as an incomplete header block.
			return nil
		}

		leftover := br.Buffered() + rdr.Len()
		consumed := len(buffered) - leftover
		s.recvBuf.Next(consumed)

		id := s.streamQueue[0]
		s.streamQueue = s.streamQueue[1:]

		for name, values := range resp.Header {
			for _, v := range values {
				s.handle.OnHeader(id, name, v)
			}
		}
		s.handle.OnStatusCode(id, resp.StatusCode)
		if len(body) > 0 {
			s.handle.OnData(id, len(body))
		}
		s.handle.OnStreamClose(id, true, false)
	}
	return nil
}

func (s *H1Session) Terminate() {
	for _, id := range s.streamQueue {
		s.handle.OnStreamClose(id, false, true)
	}
	s.streamQueue = nil
}
