package session

import (
	"bytes"

	"github.com/h2load-go/h2load/bolt"
)

// BoltSession implements the BOLT/SOFARPC Protocol Session: a monotonic
// request id per message, framed with the bolt package's codec.
type BoltSession struct {
	handle     ClientHandle
	cfg        Config
	nextID     uint32
	maxStreams int

	pendingWrite bytes.Buffer
	recvBuf      bytes.Buffer
	pending      map[uint32]struct{}
}

// NewBolt returns a BoltSession.
func NewBolt(handle ClientHandle, cfg Config) *BoltSession {
	max := int(cfg.MaxConcurrentStreams)
	if max < 1 {
		max = 1
	}
	return &BoltSession{
		handle:     handle,
		cfg:        cfg,
		maxStreams: max,
		pending:    make(map[uint32]struct{}),
	}
}

func (s *BoltSession) OnConnect() error { return nil }

func (s *BoltSession) MaxConcurrentStreams() int { return s.maxStreams }

func (s *BoltSession) SubmitRequest() error {
	s.nextID++
	id := s.nextID

	content := make([]byte, s.cfg.BoltContentLength)
	frame := bolt.RequestFrame{
		RequestID: id,
		TimeoutMs: s.cfg.BoltTimeoutMs,
		ClassName: s.cfg.BoltClassName,
		Header:    s.cfg.BoltHeaderArg,
		Content:   content,
	}
	s.pendingWrite.Write(bolt.EncodeRequest(frame))
	s.pending[id] = struct{}{}
	s.handle.OnRequest(int32(id))
	return nil
}

func (s *BoltSession) OnWrite(w *bytes.Buffer) error {
	w.Write(s.pendingWrite.Bytes())
	s.pendingWrite.Reset()
	return nil
}

func (s *BoltSession) OnRead(data []byte) error {
	s.recvBuf.Write(data)

	for {
		buffered := s.recvBuf.Bytes()
		resp, n, err := bolt.DecodeResponse(buffered)
		if err == bolt.ErrShortFrame {
			return nil
		}
		if err != nil {
			return err
		}
		s.recvBuf.Next(n)

		id := resp.RequestID
		delete(s.pending, id)

		s.handle.OnSofaRPCStatus(int32(id), resp.Status)
		if len(resp.Content) > 0 {
			s.handle.OnData(int32(id), len(resp.Content))
		}
		s.handle.OnStreamClose(int32(id), true, false)
	}
}

func (s *BoltSession) Terminate() {
	for id := range s.pending {
		s.handle.OnStreamClose(int32(id), false, true)
	}
	s.pending = make(map[uint32]struct{})
}
