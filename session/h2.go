package session

import (
	"bytes"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"
)

const defaultHeaderTableSize = 4096

// H2Session implements the HTTP/2 Protocol Session using
// golang.org/x/net/http2's Framer/hpack directly on the Client's
// buffers, rather than the full net/http Transport (which owns its own
// socket and doesn't expose the byte-level in/out contract a Session
// needs). Stream ids are client-assigned odd integers (1, 3, 5, ...)
// per the HTTP/2 spec, so the id space is derived entirely from the
// underlying multiplexer.
type H2Session struct {
	handle       ClientHandle
	cfg          Config
	nextStreamID uint32
	reqIdx       int
	maxStreams   int

	pendingWrite bytes.Buffer
	recvBuf      bytes.Buffer

	hpackEnc *hpack.Encoder
	encBuf   bytes.Buffer
	hpackDec *hpack.Decoder
	curRecv  uint32

	streamOpen map[uint32]bool
}

// NewH2 returns an H2Session.
func NewH2(handle ClientHandle, cfg Config) *H2Session {
	max := int(cfg.MaxConcurrentStreams)
	if max < 1 {
		max = 100
	}
	s := &H2Session{
		handle:       handle,
		cfg:          cfg,
		maxStreams:   max,
		nextStreamID: 1,
		streamOpen:   make(map[uint32]bool),
	}

	s.hpackEnc = hpack.NewEncoder(&s.encBuf)
	if cfg.EncoderHeaderTableSize > 0 {
		s.hpackEnc.SetMaxDynamicTableSize(cfg.EncoderHeaderTableSize)
	}

	tableSize := cfg.HeaderTableSize
	if tableSize == 0 {
		tableSize = defaultHeaderTableSize
	}
	s.hpackDec = hpack.NewDecoder(tableSize, func(f hpack.HeaderField) {
		s.handle.OnHeader(int32(s.curRecv), f.Name, f.Value)
		if f.Name == ":status" {
			if code, err := strconv.Atoi(f.Value); err == nil {
				s.handle.OnStatusCode(int32(s.curRecv), code)
			}
		}
	})

	return s
}

func (s *H2Session) OnConnect() error {
	s.pendingWrite.WriteString(http2.ClientPreface)
	fr := http2.NewFramer(&s.pendingWrite, nil)
	settings := []http2.Setting{
		{ID: http2.SettingMaxConcurrentStreams, Val: uint32(s.maxStreams)},
	}
	if s.cfg.HeaderTableSize > 0 {
		settings = append(settings, http2.Setting{ID: http2.SettingHeaderTableSize, Val: s.cfg.HeaderTableSize})
	}
	return fr.WriteSettings(settings...)
}

func (s *H2Session) MaxConcurrentStreams() int { return s.maxStreams }

func (s *H2Session) SubmitRequest() error {
	id := s.nextStreamID
	s.nextStreamID += 2

	spec := s.cfg.Template(s.reqIdx)
	s.reqIdx++
	method := spec.Method
	if method == "" {
		method = "GET"
	}
	path := spec.Path
	if path == "" {
		path = "/"
	}

	s.encBuf.Reset()
	fields := []hpack.HeaderField{
		{Name: ":method", Value: method},
		{Name: ":scheme", Value: spec.Scheme},
		{Name: ":authority", Value: spec.Authority},
		{Name: ":path", Value: path},
	}
	for _, h := range spec.Headers {
		fields = append(fields, hpack.HeaderField{Name: strings.ToLower(h.Name), Value: h.Value})
	}
	for _, f := range fields {
		if err := s.hpackEnc.WriteField(f); err != nil {
			return err
		}
	}
	headerBlock := append([]byte(nil), s.encBuf.Bytes()...)

	fr := http2.NewFramer(&s.pendingWrite, nil)
	endStream := len(spec.Body) == 0
	if err := fr.WriteHeaders(http2.HeadersFrameParam{
		StreamID:      id,
		BlockFragment: headerBlock,
		EndHeaders:    true,
		EndStream:     endStream,
	}); err != nil {
		return err
	}
	if !endStream {
		if err := fr.WriteData(id, true, spec.Body); err != nil {
			return err
		}
	}

	s.streamOpen[id] = true
	s.handle.OnRequest(int32(id))
	return nil
}

func (s *H2Session) OnWrite(w *bytes.Buffer) error {
	w.Write(s.pendingWrite.Bytes())
	s.pendingWrite.Reset()
	return nil
}

func (s *H2Session) OnRead(data []byte) error {
	s.recvBuf.Write(data)

	for {
		buffered := s.recvBuf.Bytes()
		if len(buffered) < 9 {
			return nil
		}
		length := int(buffered[0])<<16 | int(buffered[1])<<8 | int(buffered[2])
		total := 9 + length
		if len(buffered) < total {
			return nil
		}

		frameBytes := append([]byte(nil), buffered[:total]...)
		s.recvBuf.Next(total)

		fr := http2.NewFramer(io.Discard, bytes.NewReader(frameBytes))
		f, err := fr.ReadFrame()
		if err != nil {
			continue
		}

		switch v := f.(type) {
		case *http2.HeadersFrame:
			s.curRecv = v.StreamID
			s.hpackDec.Write(v.HeaderBlockFragment())
			if v.StreamEnded() {
				s.finishStream(v.StreamID)
			}
		case *http2.DataFrame:
			if n := len(v.Data()); n > 0 {
				s.handle.OnData(int32(v.StreamID), n)
			}
			if v.StreamEnded() {
				s.finishStream(v.StreamID)
			}
		case *http2.RSTStreamFrame:
			if s.streamOpen[v.StreamID] {
				delete(s.streamOpen, v.StreamID)
				s.handle.OnStreamClose(int32(v.StreamID), false, false)
			}
		case *http2.GoAwayFrame:
			s.abortAll()
		}
	}
}

func (s *H2Session) finishStream(id uint32) {
	if !s.streamOpen[id] {
		return
	}
	delete(s.streamOpen, id)
	s.handle.OnStreamClose(int32(id), true, false)
}

func (s *H2Session) abortAll() {
	for id := range s.streamOpen {
		s.handle.OnStreamClose(int32(id), false, true)
	}
	s.streamOpen = make(map[uint32]bool)
}

func (s *H2Session) Terminate() {
	s.abortAll()
}
