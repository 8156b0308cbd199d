package store

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/pior/setstream/resp"
)

// ErrServerClosed is returned by Serve after Close.
var ErrServerClosed = errors.New("store: server closed")

// Server speaks RESP over TCP in front of a Store. Pipelined requests on one
// connection are answered in order; replies are flushed once the read buffer
// is drained.
type Server struct {
	store  *Store
	logger zerolog.Logger

	mu        sync.Mutex
	listeners map[net.Listener]struct{}
	conns     map[net.Conn]struct{}
	closed    bool
	wg        sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

func NewServer(store *Store, logger *zerolog.Logger) *Server {
	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		store:     store,
		logger:    l,
		listeners: make(map[net.Listener]struct{}),
		conns:     make(map[net.Conn]struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// ListenAndServe listens on addr and serves until ctx is done or Close is
// called.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.ctx.Done():
		}
	}()

	err = s.Serve(ln)
	if errors.Is(err, ErrServerClosed) && ctx.Err() != nil {
		return nil
	}
	return err
}

// Serve accepts connections on ln until Close. It always returns a non-nil
// error; ErrServerClosed after Close.
func (s *Server) Serve(ln net.Listener) error {
	if !s.track(ln) {
		_ = ln.Close()
		return ErrServerClosed
	}
	defer s.untrack(ln)

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("serving")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return err
		}

		if !s.trackConn(conn) {
			_ = conn.Close()
			return ErrServerClosed
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrackConn(conn)
			s.serveConn(conn)
		}()
	}
}

// Close stops every listener, closes open connections and waits for their
// handlers to return.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cancel()

	var err error
	for ln := range s.listeners {
		if cerr := ln.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()

	log := s.logger.With().Str("remote", conn.RemoteAddr().String()).Logger()
	log.Debug().Msg("connection opened")

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)

	for {
		req, err := resp.ReadRequest(reader)
		if err != nil {
			if errors.Is(err, io.EOF) || s.isClosed() {
				log.Debug().Msg("connection closed")
				return
			}
			var perr *resp.ProtocolError
			if errors.As(err, &perr) {
				_ = resp.WriteReply(writer, resp.Errorf("Protocol error: %s", perr.Message))
				_ = writer.Flush()
			}
			log.Warn().Err(err).Msg("closing connection")
			return
		}

		reply, err := s.store.Execute(s.ctx, req)
		if err != nil {
			reply = resp.Errorf("%s", err.Error())
		}
		if err := resp.WriteReply(writer, reply); err != nil {
			log.Warn().Err(err).Msg("write reply")
			return
		}
		if reader.Buffered() == 0 {
			if err := writer.Flush(); err != nil {
				log.Warn().Err(err).Msg("flush reply")
				return
			}
		}
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) track(ln net.Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.listeners[ln] = struct{}{}
	return true
}

func (s *Server) untrack(ln net.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners, ln)
}

func (s *Server) trackConn(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrackConn(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}
