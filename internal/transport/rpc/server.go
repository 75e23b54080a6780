// Package rpc exposes the pipeline to agents over JSON-RPC.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"sync"
	"time"

	"github.com/xiaot623/thirdeye/internal/service"
)

// ServiceName is the name agents address methods by, as in "ThirdEye.RunEye".
const ServiceName = "ThirdEye"

// Server accepts JSON-RPC connections and serves one codec per connection.
type Server struct {
	rpc *rpc.Server
	ln  net.Listener

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// NewServer registers the pipeline handler under ServiceName.
func NewServer(svc *service.Service, callTimeout time.Duration) (*Server, error) {
	srv := rpc.NewServer()
	if err := srv.RegisterName(ServiceName, &Handler{service: svc, timeout: callTimeout}); err != nil {
		return nil, fmt.Errorf("failed to register %s: %w", ServiceName, err)
	}
	return &Server{rpc: srv, conns: make(map[net.Conn]struct{})}, nil
}

// Listen binds addr. Connections are accepted by Serve.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.ln = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve accepts connections until Shutdown closes the listener.
func (s *Server) Serve() error {
	if s.ln == nil {
		return errors.New("rpc server is not listening")
	}
	for {
		conn, err := s.ln.Accept()
		if errors.Is(err, net.ErrClosed) {
			return nil
		}
		if err != nil {
			log.Printf("WARN: rpc accept: %v", err)
			continue
		}
		s.track(conn, true)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.track(conn, false)
			s.rpc.ServeCodec(jsonrpc.NewServerCodec(conn))
		}()
	}
}

func (s *Server) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

// Shutdown stops accepting, waits for open connections to drain and
// force-closes whatever is still open when ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.ln == nil {
		return nil
	}
	if err := s.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}

	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()
		return ctx.Err()
	}
}
