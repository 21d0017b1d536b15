// Package testtarget is an in-process HTTP/1.1 server used by the
// Client/Worker scenario tests, standing in for the external targets a
// real run is pointed at. It is adapted from BuoyantIO-strest-grpc's
// server package (server/server.go), rewritten against net/http
// instead of gRPC since this module's wire protocols are H2/H1/BOLT,
// not gRPC.
package testtarget

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
)

// Server is a minimal HTTP/1.1 responder that counts requests and
// always replies with a configurable status code and body.
type Server struct {
	ln         net.Listener
	srv        *http.Server
	StatusCode int
	Body       []byte

	requests uint64

	mu    sync.Mutex
	paths []string
}

// New starts a Server listening on an ephemeral loopback port.
func New() (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("testtarget: listen: %w", err)
	}
	s := &Server{ln: ln, StatusCode: http.StatusOK, Body: []byte("ok")}
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	s.srv = &http.Server{Handler: mux}
	go s.srv.Serve(ln)
	return s, nil
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	atomic.AddUint64(&s.requests, 1)
	s.mu.Lock()
	s.paths = append(s.paths, r.URL.RequestURI())
	s.mu.Unlock()
	w.WriteHeader(s.StatusCode)
	w.Write(s.Body)
}

// Requests reports how many requests this Server has served so far.
func (s *Server) Requests() uint64 { return atomic.LoadUint64(&s.requests) }

// Paths returns the request-URI of every request served so far, in
// arrival order.
func (s *Server) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

// Addr returns the listener's address (host:port).
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Close shuts the Server down.
func (s *Server) Close() error { return s.srv.Close() }

// ClosedAddr returns a loopback address nothing is listening on, for
// exercising the all-connects-refused scenario.
func ClosedAddr() (string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr, nil
}
