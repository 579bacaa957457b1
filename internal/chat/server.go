package chat

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
)

type Server struct {
	addr     string
	logger   *slog.Logger
	room     *Room
	listener net.Listener

	mu      sync.Mutex
	conns   map[net.Conn]struct{}
	closing bool
	wg      sync.WaitGroup
}

// NewServer returns a server that hands every accepted connection to
// HandleSession with room as the shared state.
func NewServer(addr string, room *Room, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if room.Logger == nil {
		room.Logger = logger
	}
	return &Server{
		addr:   addr,
		logger: logger,
		room:   room,
		conns:  make(map[net.Conn]struct{}),
	}
}

// Start binds the listening socket and begins accepting in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	go s.acceptLoop(ln)

	s.logger.Info("server started", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and every open connection, then waits for all
// sessions to return.
func (s *Server) Stop() {
	s.logger.Info("shutting down")

	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	s.closing = true
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("shutdown complete")
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			// Listener closed by Stop.
			return
		}

		s.logger.Info("client connected", "addr", conn.RemoteAddr().String())

		if !s.track(conn) {
			_ = conn.Close()
			return
		}
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			HandleSession(conn, s.room)
		}()
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}
