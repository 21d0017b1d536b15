// Package client implements the Client (C4): a per-connection state
// machine that dials, optionally handshakes TLS with ALPN, dispatches
// to a Protocol Session, submits and tracks requests, and reports
// timing samples to its owning Worker.
//
// Go has no libev-style non-blocking socket loop; this package follows
// BuoyantIO-strest-grpc's own concurrency idiom instead (its
// `responses chan *MeasuredResponse` pattern, from client/client.go)
// generalized into a connection-wide version: each Client runs a tiny
// reader goroutine that does nothing but read off the socket and
// forward raw bytes to its Worker's shared events channel. All framing,
// accounting, and pacing decisions happen on the Worker's single
// goroutine when it drains that channel, so "no preemption, no shared
// mutable state besides the two atomics" still holds even though the
// I/O itself is goroutine-per-connection.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/h2load-go/h2load/bolt"
	"github.com/h2load-go/h2load/clock"
	"github.com/h2load-go/h2load/config"
	"github.com/h2load-go/h2load/session"
	"github.com/h2load-go/h2load/stats"
)

// Sentinel errors of the error taxonomy. Connect, TryAgainOrFail and
// OnReadable return errors wrapping them; ErrRequestTimeout is
// delivered as the Err of a ReadEvent when a connection timer fires.
var (
	ErrConnectFailed  = errors.New("client: connect failed")
	ErrTLSFailed      = errors.New("client: tls handshake failed")
	ErrProtocolDecode = errors.New("client: protocol decode failed")
	ErrRequestTimeout = errors.New("client: request timeout")
)

// State is the Client's coarse connection state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateHandshaking
	StateConnected
)

// Stream is one in-flight request within a connection.
// statusSuccess is tri-state: -1 unknown, 0 failed, 1 succeeded.
type Stream struct {
	RequestTime     time.Time
	WallRequestTime time.Time
	TTFB            time.Time
	Status          int
	Completed       bool
	Bytes           uint64
	statusSuccess   int8
}

// Phase mirrors the Worker's lifecycle phase; Client only ever reads
// it to decide whether to record stats.
type Phase int

const (
	PhaseInitialIdle Phase = iota
	PhaseWarmUp
	PhaseMainDuration
	PhaseDurationOver
)

// PhaseProvider lets a Client ask its Worker the current phase without
// taking a dependency on the worker package (which depends on client).
type PhaseProvider interface {
	Phase() Phase
}

// Observer receives a live feed of completed-request outcomes, used by
// the Worker to drive its periodic interval report
// (stats.IntervalReporter). It is independent of the Accumulator,
// which only the Reducer reads after the run ends.
type Observer interface {
	ObserveRequest(success bool, rttMicros int64, bodyBytes uint64)
}

// Pacer is the narrow view of a Worker's Pacing Controller a Client
// needs, covering all three disciplines (count, rate, QPS).
type Pacer interface {
	// QPSMode reports whether QPS pacing governs this run.
	QPSMode() bool
	// TryAcquireQPS consumes one QPS token if available.
	TryAcquireQPS() bool
	// BlockOnQPS parks a Client whose submission was deferred for lack
	// of QPS budget.
	BlockOnQPS(c *Client)
}

// ReadEvent is what a Client's reader goroutine forwards to its
// Worker's shared events channel.
type ReadEvent struct {
	Client *Client
	Data   []byte
	Err    error
}

// Events is the channel a Client's reader goroutine publishes to. It
// is owned and drained by the Worker, never by the Client itself.
type Events chan<- ReadEvent

// Client is a single connection's state machine.
type Client struct {
	idx int // stable index into the Worker's client table
	gen uint64

	cfg      *config.Config
	target   config.Target
	targets  []config.Target
	counters *config.Counters
	pacer    Pacer
	phase    PhaseProvider
	clock    clock.Clock
	events   Events
	acc      *stats.Accumulator
	observer Observer

	conn    net.Conn
	proto   config.Protocol
	session session.Session
	useTLS  bool

	addrs   []string
	addrIdx int

	state State

	streams     map[int32]*Stream
	reqInflight uint64
	reqStarted  uint64
	reqDone     uint64

	stat stats.ClientStat

	connActiveTimer     *time.Timer
	connInactivityTimer *time.Timer
}

// New returns an idle Client bound to the given targets and addresses.
// targets[0] supplies scheme/host/port (and decides TLS); every target
// in the slice contributes its own path+query to the request templates
// SubmitRequest cycles through.
func New(idx int, gen uint64, cfg *config.Config, targets []config.Target, addrs []string,
	counters *config.Counters, pacer Pacer, phase PhaseProvider, cl clock.Clock,
	events Events, acc *stats.Accumulator, observer Observer) *Client {
	target := targets[0]
	return &Client{
		idx:      idx,
		gen:      gen,
		cfg:      cfg,
		target:   target,
		targets:  targets,
		addrs:    addrs,
		counters: counters,
		pacer:    pacer,
		phase:    phase,
		clock:    cl,
		events:   events,
		acc:      acc,
		observer: observer,
		streams:  make(map[int32]*Stream),
		useTLS:   target.Scheme == "https",
	}
}

// Index and Gen expose the stable back-reference identity: a stable
// index into the Worker's client table plus a generation tag, so a
// stale reference to a recycled slot can be detected.
func (c *Client) Index() int  { return c.idx }
func (c *Client) Gen() uint64 { return c.gen }

// Connect dials the current address (addrIdx), sticky across redials:
// a connection that was made fine and later dropped by the peer
// retries the same address, and addrIdx only advances to the next
// resolved address when a dial/handshake attempt itself fails.
// On permanent failure across all addresses it returns an error
// wrapping ErrConnectFailed; the Worker counts that as a failed Client.
func (c *Client) Connect(ctx context.Context) error {
	if len(c.addrs) == 0 {
		return fmt.Errorf("%w: no addresses", ErrConnectFailed)
	}
	if c.stat.ClientStartTime.IsZero() {
		c.stat.ClientStartTime = c.clock.Now()
	}

	var lastErr error
	for tries := 0; tries < len(c.addrs); tries++ {
		addr := c.addrs[c.addrIdx]

		c.state = StateConnecting
		c.stat.ConnectStartTime = c.clock.Now()

		conn, err := c.dial(ctx, addr)
		if err != nil {
			lastErr = err
			c.addrIdx = (c.addrIdx + 1) % len(c.addrs)
			continue
		}
		c.conn = conn
		c.stat.ConnectTime = c.clock.Now()
		if err := c.negotiateSession(); err != nil {
			conn.Close()
			lastErr = err
			c.addrIdx = (c.addrIdx + 1) % len(c.addrs)
			continue
		}
		c.startReader()
		c.armInactivityTimer()
		return nil
	}
	return fmt.Errorf("%w: %v", ErrConnectFailed, lastErr)
}

func (c *Client) dial(ctx context.Context, addr string) (net.Conn, error) {
	network := "tcp"
	dialAddr := addr
	if c.target.Unix {
		network = "unix"
		dialAddr = addr[len("unix:"):]
	}

	d := net.Dialer{}
	conn, err := d.DialContext(ctx, network, dialAddr)
	if err != nil {
		return nil, err
	}

	if !c.useTLS {
		return conn, nil
	}

	serverName := c.target.Host
	nextProtos := alpnPreferences()
	if c.cfg.Protocol == config.ProtoH1 {
		nextProtos = []string{"http/1.1"}
	}
	tlsCfg := &tls.Config{
		NextProtos:         nextProtos,
		ServerName:         serverName,
		InsecureSkipVerify: true,
	}
	if config.IsNumericHost(serverName) {
		tlsCfg.ServerName = ""
	}
	tc := tls.Client(conn, tlsCfg)
	c.state = StateHandshaking
	if err := tc.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrTLSFailed, err)
	}
	return tc, nil
}

func alpnPreferences() []string {
	return []string{"h2", "http/1.1"}
}

// negotiateSession determines the negotiated application protocol and
// instantiates the matching Protocol Session. It does not submit any
// requests: the initial fill runs separately, via FillInitialStreams,
// so it can be sequenced onto the Worker's own goroutine.
func (c *Client) negotiateSession() error {
	proto := c.cfg.Protocol
	if c.useTLS {
		tc, ok := c.conn.(*tls.Conn)
		if !ok {
			return fmt.Errorf("%w: tls conn expected", ErrTLSFailed)
		}
		negotiated := tc.ConnectionState().NegotiatedProtocol
		switch negotiated {
		case "h2":
			proto = config.ProtoH2
		case "http/1.1":
			proto = config.ProtoH1
		case "":
			if !protoAllowsH1Fallback(c.cfg) {
				return fmt.Errorf("%w: no protocol negotiated", ErrTLSFailed)
			}
			proto = config.ProtoH1
		default:
			return fmt.Errorf("%w: unsupported negotiated protocol %q", ErrTLSFailed, negotiated)
		}
	}
	c.proto = proto

	authority, headers := config.ResolveHeaders(c.target.Host, c.cfg.Headers)
	scheme := c.target.Scheme
	if scheme == "" {
		scheme = "http"
	}
	reqHeaders := make([]session.HeaderField, 0, len(headers))
	for _, h := range headers {
		reqHeaders = append(reqHeaders, session.HeaderField{Name: h.Name, Value: h.Value})
	}
	method := c.cfg.Method
	if method == "" {
		method = "GET"
	}
	if len(c.cfg.Body) > 0 {
		method = "POST"
	}

	templates := make([]session.RequestSpec, len(c.targets))
	for i, t := range c.targets {
		templates[i] = session.RequestSpec{
			Scheme:    scheme,
			Authority: authority,
			Method:    method,
			Path:      t.Path,
			Headers:   reqHeaders,
			Body:      c.cfg.Body,
		}
	}

	sessCfg := session.Config{
		RequestTemplates:       templates,
		MaxConcurrentStreams:   c.cfg.MaxConcurrentStreams,
		HeaderTableSize:        c.cfg.HeaderTableSize,
		EncoderHeaderTableSize: c.cfg.EncoderHeaderTableSize,
		HasBody:                len(c.cfg.Body) > 0,
		BoltClassName:          c.cfg.BoltClassName,
		BoltHeaderArg:          c.cfg.BoltHeaderArg,
		BoltContentLength:      c.cfg.BoltContentLength,
		BoltTimeoutMs:          c.cfg.BoltTimeoutMs,
	}

	switch c.proto {
	case config.ProtoH2:
		c.session = session.NewH2(c, sessCfg)
	case config.ProtoH1:
		c.session = session.NewH1(c, sessCfg)
	case config.ProtoBolt:
		c.session = session.NewBolt(c, sessCfg)
	default:
		return fmt.Errorf("%w: unknown protocol", ErrProtocolDecode)
	}

	c.state = StateConnected
	if err := c.session.OnConnect(); err != nil {
		return err
	}
	if err := c.flushWrites(); err != nil {
		return err
	}
	c.armActiveTimer()
	return nil
}

// FillInitialStreams submits the session's initial fill of requests up
// to its concurrency cap. It must be called from the Worker's own
// goroutine: SubmitRequest mutates the shared per-Worker Accumulator,
// which stats.Accumulator documents as owned exclusively by that one
// goroutine. Connect itself may run off-goroutine (see
// worker.startConnect), so the initial fill is a separate step the
// Worker sequences after Connect reports success.
func (c *Client) FillInitialStreams() {
	for i := 0; i < c.session.MaxConcurrentStreams(); i++ {
		if err := c.SubmitRequest(); err != nil {
			break
		}
	}
}

func protoAllowsH1Fallback(cfg *config.Config) bool {
	return true
}

func (c *Client) startReader() {
	conn := c.conn
	go func() {
		buf := make([]byte, 32*1024)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				c.events <- ReadEvent{Client: c, Data: data}
			}
			if err != nil {
				c.events <- ReadEvent{Client: c, Err: err}
				return
			}
		}
	}()
}

func (c *Client) flushWrites() error {
	var buf bytes.Buffer
	if err := c.session.OnWrite(&buf); err != nil {
		return err
	}
	if buf.Len() == 0 {
		return nil
	}
	_, err := c.conn.Write(buf.Bytes())
	return err
}

// SubmitRequest dispatches pacing-mode logic then delegates to the
// session.
func (c *Client) SubmitRequest() error {
	if c.pacer != nil && c.pacer.QPSMode() {
		if !c.pacer.TryAcquireQPS() {
			c.pacer.BlockOnQPS(c)
			return nil
		}
	} else {
		if c.counters == nil || !c.counters.TryTake() {
			return fmt.Errorf("client: no requests left")
		}
	}
	if c.counters != nil {
		c.counters.Sent()
	}

	if err := c.session.SubmitRequest(); err != nil {
		return err
	}
	if err := c.flushWrites(); err != nil {
		return err
	}

	if c.phase == nil || c.phase.Phase() != PhaseMainDuration {
		return nil
	}
	c.acc.ReqStarted++
	c.reqStarted++
	c.reqInflight++
	return nil
}

func (c *Client) armActiveTimer() {
	if c.cfg.ConnActiveTimeout <= 0 {
		return
	}
	if c.connActiveTimer != nil {
		return
	}
	c.connActiveTimer = time.AfterFunc(c.cfg.ConnActiveTimeout, func() {
		c.events <- ReadEvent{Client: c, Err: ErrRequestTimeout}
	})
}

func (c *Client) armInactivityTimer() {
	if c.cfg.ConnInactivityTimeout <= 0 {
		return
	}
	if c.connInactivityTimer != nil {
		c.connInactivityTimer.Reset(c.cfg.ConnInactivityTimeout)
		return
	}
	c.connInactivityTimer = time.AfterFunc(c.cfg.ConnInactivityTimeout, func() {
		c.events <- ReadEvent{Client: c, Err: ErrRequestTimeout}
	})
}

// OnReadable is invoked by the Worker's single goroutine with bytes
// pulled off the shared events channel.
func (c *Client) OnReadable(data []byte) error {
	c.armInactivityTimer()
	if err := c.session.OnRead(data); err != nil {
		return fmt.Errorf("%w: %v", ErrProtocolDecode, err)
	}
	return c.flushWrites()
}

// --- session.ClientHandle implementation ---

func (c *Client) OnRequest(streamID int32) {
	now := c.clock.Now()
	c.streams[streamID] = &Stream{
		RequestTime:     now,
		WallRequestTime: now,
		statusSuccess:   -1,
	}
}

func (c *Client) OnHeader(streamID int32, name, value string) {
	if c.phase == nil || c.phase.Phase() != PhaseMainDuration {
		return
	}
	st := c.streams[streamID]
	if st == nil {
		return
	}
	if st.TTFB.IsZero() {
		st.TTFB = c.clock.Now()
	}
}

func (c *Client) OnStatusCode(streamID int32, code int) {
	st := c.streams[streamID]
	if st == nil {
		return
	}
	if st.TTFB.IsZero() {
		st.TTFB = c.clock.Now()
	}
	st.Status = code
	if c.phase == nil || c.phase.Phase() != PhaseMainDuration {
		st.statusSuccess = 1
		return
	}
	c.acc.Status.IncHTTPClass(code)
	if code >= 200 && code < 400 {
		st.statusSuccess = 1
	} else {
		st.statusSuccess = 0
	}
}

func (c *Client) OnData(streamID int32, n int) {
	if c.phase == nil || c.phase.Phase() != PhaseMainDuration {
		return
	}
	c.acc.TotalBytes += uint64(n)
	if st := c.streams[streamID]; st != nil {
		st.Bytes += uint64(n)
	}
}

func (c *Client) OnSofaRPCStatus(streamID int32, status uint16) {
	st := c.streams[streamID]
	if st == nil {
		return
	}
	if st.TTFB.IsZero() {
		st.TTFB = c.clock.Now()
	}
	st.Status = int(status)
	if c.phase == nil || c.phase.Phase() != PhaseMainDuration {
		st.statusSuccess = 1
		return
	}
	if status == bolt.StatusSuccess {
		st.statusSuccess = 1
	} else {
		c.acc.Status.IncBolt(status)
		st.statusSuccess = 0
	}
}

func (c *Client) OnStreamClose(streamID int32, success bool, final bool) {
	st := c.streams[streamID]
	if st == nil {
		return
	}
	delete(c.streams, streamID)

	if c.phase == nil || c.phase.Phase() != PhaseMainDuration {
		return
	}

	if c.reqInflight > 0 {
		c.reqInflight--
	}
	st.Completed = success
	now := c.clock.Now()

	rs := stats.RequestStat{
		RequestTime:     st.RequestTime,
		WallRequestTime: st.WallRequestTime,
		StreamCloseTime: now,
		TTFB:            st.TTFB,
		Status:          st.Status,
		Completed:       success,
	}
	c.reqDone++
	c.acc.ReqDone++

	if success {
		c.acc.ReqSuccess++
		c.stat.ReqSuccess++
		if st.statusSuccess == 1 {
			c.acc.ReqStatusSuccess++
		} else {
			c.acc.ReqFailed++
		}
	} else {
		c.acc.ReqFailed++
		c.acc.ReqError++
	}
	c.acc.RecordRequest(rs)
	if c.observer != nil {
		c.observer.ObserveRequest(success, clock.Micros(rs.Duration()), st.Bytes)
	}

	if c.counters != nil && c.counters.Left() <= 0 {
		c.session.Terminate()
		return
	}
	if !final {
		c.SubmitRequest()
	}
}

// TryAgainOrFail implements the read-failure recovery path: a dropped
// connection is redialed as long as there is still budget left to
// spend (count mode) or the run is still in its measured phase
// (timing mode); otherwise it gives up for good.
func (c *Client) TryAgainOrFail(ctx context.Context) error {
	budgetLeft := c.phase != nil && c.phase.Phase() == PhaseMainDuration
	if c.counters != nil && c.counters.Left() > 0 {
		budgetLeft = true
	}
	if budgetLeft {
		c.failAllInflight()
		if err := c.Connect(ctx); err != nil {
			return err
		}
		c.FillInitialStreams()
		return nil
	}
	c.ProcessAbandonedStreams()
	return fmt.Errorf("%w: giving up", ErrConnectFailed)
}

func (c *Client) failAllInflight() {
	if c.phase == nil || c.phase.Phase() != PhaseMainDuration {
		c.streams = make(map[int32]*Stream)
		return
	}
	for id := range c.streams {
		if c.reqInflight > 0 {
			c.reqInflight--
		}
		c.acc.ReqFailed++
		c.acc.ReqError++
		c.acc.ReqDone++
		delete(c.streams, id)
	}
}

// ProcessAbandonedStreams fails every in-flight stream without a
// timeout attribution.
func (c *Client) ProcessAbandonedStreams() {
	if c.phase == nil || c.phase.Phase() != PhaseMainDuration {
		c.streams = make(map[int32]*Stream)
		return
	}
	for id := range c.streams {
		if c.reqInflight > 0 {
			c.reqInflight--
		}
		c.acc.ReqFailed++
		c.acc.ReqError++
		c.acc.ReqDone++
		delete(c.streams, id)
	}
}

// ProcessTimedoutStreams fails every in-flight stream, additionally
// incrementing ReqTimedOut.
func (c *Client) ProcessTimedoutStreams() {
	if c.phase == nil || c.phase.Phase() != PhaseMainDuration {
		c.streams = make(map[int32]*Stream)
		return
	}
	for id := range c.streams {
		if c.reqInflight > 0 {
			c.reqInflight--
		}
		c.acc.ReqFailed++
		c.acc.ReqError++
		c.acc.ReqTimedOut++
		c.acc.ReqDone++
		delete(c.streams, id)
	}
}

// Disconnect tears the Client down: stamps end time, stops timers,
// clears streams, resets the session, closes the socket, and returns
// to IDLE.
func (c *Client) Disconnect() {
	c.stat.ClientEndTime = c.clock.Now()
	if c.connActiveTimer != nil {
		c.connActiveTimer.Stop()
		c.connActiveTimer = nil
	}
	if c.connInactivityTimer != nil {
		c.connInactivityTimer.Stop()
		c.connInactivityTimer = nil
	}
	c.streams = make(map[int32]*Stream)
	if c.session != nil {
		c.session.Terminate()
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.state = StateIdle
	if c.acc != nil {
		c.acc.RecordClient(c.stat)
	}
}

// ClientStat returns a copy of the accumulated lifecycle stat.
func (c *Client) ClientStat() stats.ClientStat { return c.stat }

// ResnapConnectTimes clears and re-records the connect timestamps to
// the current instant, so warm-up connect latency doesn't pollute the
// measured run.
func (c *Client) ResnapConnectTimes() {
	now := c.clock.Now()
	c.stat.ConnectStartTime = now
	c.stat.ConnectTime = now
}
