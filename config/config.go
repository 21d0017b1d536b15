// Package config resolves CLI input into a Config value built once at
// startup and passed by reference into each Worker, validates the
// mutually-exclusive pacing flags, and owns the two process-wide
// atomic counters (see counters.go).
package config

import (
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"
)

// Protocol identifies which application protocol a Client speaks.
type Protocol int

const (
	ProtoH2 Protocol = iota
	ProtoH1
	ProtoBolt
)

func (p Protocol) String() string {
	switch p {
	case ProtoH2:
		return "h2"
	case ProtoH1:
		return "http/1.1"
	case ProtoBolt:
		return "sofarpc"
	default:
		return "unknown"
	}
}

// ParseNoTLSProto maps the -p/--no-tls-proto token to a Protocol.
func ParseNoTLSProto(s string) (Protocol, error) {
	switch s {
	case "", "h2", "h2c":
		return ProtoH2, nil
	case "http/1.1", "h1":
		return ProtoH1, nil
	case "sofarpc", "bolt":
		return ProtoBolt, nil
	default:
		return 0, fmt.Errorf("config: unknown protocol %q", s)
	}
}

// Header is one -H/--header value after parsing "Name: Value".
type Header struct {
	Name  string
	Value string
}

// Target is one resolved request template: scheme/host/port/path.
type Target struct {
	Scheme string
	Host   string
	Port   string
	Path   string
	Unix   bool
}

// Config is the fully-resolved, immutable startup configuration
// consumed by the Orchestrator and shared, by pointer, with every
// Worker.
type Config struct {
	Targets  []Target
	Protocol Protocol // used when scheme is "http" (no TLS)
	UseTLS   bool
	Headers  []Header
	Host     string // not set by the CLI; the -H :host override is applied by ResolveHeaders
	Body     []byte
	Method   string

	Nreqs       uint64
	Nclients    uint64
	Nthreads    uint64
	Rate        uint64
	RateSet     bool // true iff -r/--rate was explicitly passed, even as 0
	RatePeriod  time.Duration
	QPS         uint64
	QPSSet      bool // true iff --qps was explicitly passed, even as 0
	Duration    time.Duration
	WarmUpTime  time.Duration

	ConnActiveTimeout     time.Duration
	ConnInactivityTimeout time.Duration
	MaxConcurrentStreams  uint32

	HeaderTableSize        uint32
	EncoderHeaderTableSize uint32

	Verbose bool

	Percentiles    []float64
	SampleVariance bool

	MetricsAddr string

	BoltClassName     []byte
	BoltHeaderArg     []byte
	BoltContentLength int
	BoltTimeoutMs     uint32
}

// TimingMode reports whether the workload is governed by a duration
// (-D, alone or with --qps) rather than a fixed request count.
func (c *Config) TimingMode() bool {
	return c.Duration > 0
}

// PacingMode reports which of the three disciplines governs this run.
// Validate must have already rejected invalid combinations.
func (c *Config) PacingMode() string {
	switch {
	case c.QPS > 0:
		return "qps"
	case c.Rate > 0:
		return "rate"
	default:
		return "count"
	}
}

// ResolveNreqs computes the effective request count: qps*duration in
// QPS mode, the maximum representable value in any other timing
// (duration) mode, or the configured Nreqs otherwise (count mode and
// rate mode).
func (c *Config) ResolveNreqs() uint64 {
	if c.QPS > 0 {
		return uint64(float64(c.QPS) * c.Duration.Seconds())
	}
	if c.TimingMode() {
		return math.MaxUint64
	}
	return c.Nreqs
}

// ResolveHeaders applies the -H precedence rule: a header named
// ":host" (case-insensitive) overrides the resolved :authority/Host
// value; every other custom header is appended after the protocol
// defaults.
func ResolveHeaders(authority string, headers []Header) (resolvedAuthority string, rest []Header) {
	resolvedAuthority = authority
	for _, h := range headers {
		if strings.EqualFold(h.Name, ":host") || strings.EqualFold(h.Name, "host") {
			resolvedAuthority = h.Value
			continue
		}
		rest = append(rest, h)
	}
	return resolvedAuthority, rest
}

// ParseHeader splits "Name: Value" into a Header.
func ParseHeader(s string) (Header, error) {
	idx := strings.Index(s, ":")
	if idx < 0 {
		return Header{}, fmt.Errorf("config: malformed header %q, want \"Name: Value\"", s)
	}
	name := strings.TrimSpace(s[:idx])
	value := strings.TrimSpace(s[idx+1:])
	if name == "" {
		return Header{}, fmt.Errorf("config: malformed header %q, empty name", s)
	}
	return Header{Name: name, Value: value}, nil
}

// ParseTarget resolves one positional URI argument into a Target.
// The first URI defines scheme/host/port; callers are responsible for
// copying those into subsequent Targets that supply only a path.
func ParseTarget(raw string) (Target, error) {
	if strings.HasPrefix(raw, "unix:") {
		return Target{Scheme: "http", Unix: true, Host: strings.TrimPrefix(raw, "unix:"), Path: "/"}, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, fmt.Errorf("config: invalid URI %q: %w", raw, err)
	}
	if u.Scheme == "" {
		return Target{}, fmt.Errorf("config: URI %q has no scheme", raw)
	}
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		if u.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return Target{Scheme: u.Scheme, Host: host, Port: port, Path: path}, nil
}

// ParseTargets resolves a list of positional URI arguments, applying
// the "first defines scheme/host/port, rest contribute path+query
// only" rule.
func ParseTargets(raw []string) ([]Target, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("config: at least one URI is required")
	}
	first, err := ParseTarget(raw[0])
	if err != nil {
		return nil, err
	}
	targets := []Target{first}
	for _, r := range raw[1:] {
		u, err := url.Parse(r)
		if err != nil {
			return nil, fmt.Errorf("config: invalid URI %q: %w", r, err)
		}
		path := u.Path
		if path == "" {
			path = "/"
		}
		if u.RawQuery != "" {
			path += "?" + u.RawQuery
		}
		targets = append(targets, Target{Scheme: first.Scheme, Host: first.Host, Port: first.Port, Path: path, Unix: first.Unix})
	}
	return targets, nil
}
