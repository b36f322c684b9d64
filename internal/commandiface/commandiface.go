// Package commandiface implements the Command Interface (spec.md §4.6, C6):
// a reply-socket server that exposes a Client adapter's tag set over a
// simple null-terminated text protocol (QUERY/READ/WRITE).
package commandiface

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/sandialabs/sceptre-bennu-sub000/internal/comms/common"
	"github.com/sandialabs/sceptre-bennu-sub000/pkg/log"
)

// acceptRatePerSecond and acceptBurst bound how fast Start's listener hands
// off new connections to handleConn. The command interface is explicitly
// unauthenticated (spec.md §4.6), so this is the one guard against a
// connection flood exhausting goroutines/file descriptors.
const (
	acceptRatePerSecond = 50
	acceptBurst         = 10
)

// TagClient is the Client adapter a command interface is paired with: it
// consults this tag set directly and never talks to the Tag Manager
// (spec.md §4.6).
type TagClient interface {
	ReadRegisterByTag(tag string) common.StatusMessage
	WriteBinary(tag string, v bool) common.StatusMessage
	WriteAnalog(tag string, v float64) common.StatusMessage
	Tags() []string
}

// Server is the reply-socket command interface bound to one TagClient.
type Server struct {
	client   TagClient
	listener net.Listener
	limiter  *rate.Limiter

	wg sync.WaitGroup
}

// New returns a Server that will expose client's tag set once Start is
// called.
func New(client TagClient) *Server {
	return &Server{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(acceptRatePerSecond), acceptBurst),
	}
}

// Start binds endpoint ("tcp://host:port") and begins accepting
// connections in the background. Each connection is handled on its own
// goroutine until its peer disconnects or a write fails; Close does not end
// these goroutines.
func (s *Server) Start(endpoint string) error {
	addr, err := common.TCPAddr(endpoint)
	if err != nil {
		return fmt.Errorf("commandiface: %w", err)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("commandiface: bind %s: %w", endpoint, err)
	}
	s.listener = ln

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Close stops accepting new connections and waits for the accept loop to
// exit. Connections already accepted are neither closed nor waited for.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	err := s.listener.Close()
	s.wg.Wait()
	return err
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return // listener closed
		}
		if err := s.limiter.Wait(context.Background()); err != nil {
			conn.Close()
			continue
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)
	for {
		req, err := reader.ReadString(0)
		if err != nil {
			return
		}
		req = strings.TrimSuffix(req, "\x00")
		resp := s.Handle(req)
		log.Finfof(log.DebugWriter, "commandiface: %s -> %q => %q", conn.RemoteAddr(), req, resp)
		if _, err := conn.Write(append([]byte(resp), 0)); err != nil {
			log.Warnf("commandiface: write to %s failed: %v", conn.RemoteAddr(), err)
			return
		}
	}
}

// Handle evaluates a single request line and returns the ACK/ERR response,
// per spec.md §4.6's grammar and response forms. Exposed directly so tests
// (and any in-process caller) can exercise the protocol without sockets.
func (s *Server) Handle(req string) string {
	switch {
	case strings.HasPrefix(req, "QUERY="):
		return s.handleQuery()
	case strings.HasPrefix(req, "READ="):
		return s.handleRead(strings.TrimPrefix(req, "READ="))
	case strings.HasPrefix(req, "WRITE="):
		return s.handleWrite(strings.TrimPrefix(req, "WRITE="))
	default:
		return "ERR=Unknown command -- " + req
	}
}

func (s *Server) handleQuery() string {
	var b strings.Builder
	b.WriteString("ACK=")
	for _, tag := range s.client.Tags() {
		b.WriteString(tag)
		b.WriteString(",")
	}
	return b.String()
}

func (s *Server) handleRead(tag string) string {
	msg := s.client.ReadRegisterByTag(tag)
	if !msg.IsOK() {
		return "ERR=" + msg.Diagnostic
	}
	rd := msg.Descriptor
	if rd.Binary {
		return fmt.Sprintf("ACK=%s:%s", tag, strconv.FormatBool(rd.Status))
	}
	return fmt.Sprintf("ACK=%s:%s", tag, strconv.FormatFloat(rd.Value, 'g', -1, 64))
}

func (s *Server) handleWrite(spec string) string {
	colon := strings.LastIndex(spec, ":")
	if colon < 0 {
		return "ERR=Malformed WRITE request -- " + spec
	}
	tag, valueStr := spec[:colon], spec[colon+1:]

	existing := s.client.ReadRegisterByTag(tag)
	if !existing.IsOK() {
		return "ERR=" + existing.Diagnostic
	}

	var msg common.StatusMessage
	if existing.Descriptor.Binary {
		v, err := strconv.ParseBool(valueStr)
		if err != nil {
			return fmt.Sprintf("ERR=Invalid boolean value -- %s", valueStr)
		}
		msg = s.client.WriteBinary(tag, v)
	} else {
		v, err := strconv.ParseFloat(valueStr, 64)
		if err != nil {
			return fmt.Sprintf("ERR=Invalid numeric value -- %s", valueStr)
		}
		msg = s.client.WriteAnalog(tag, v)
	}
	if !msg.IsOK() {
		return "ERR=" + msg.Diagnostic
	}
	return fmt.Sprintf("ACK=Wrote tag %s -- %s", tag, valueStr)
}
