package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"

	"coind/internal/logging"
)

// ServiceName is the JSON-RPC service prefix.
const ServiceName = "Coind"

// Backend is the node as seen by the control service.
type Backend interface {
	Status(ctx context.Context) StatusResponse
	// RequestShutdown records a shutdown request and returns at once.
	RequestShutdown(reason string)
}

// Server exposes node control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
	once   sync.Once
}

// NewServer binds the socket at path.
func NewServer(ctx context.Context, path string, backend Backend, logger *slog.Logger) (*Server, error) {
	if backend == nil {
		return nil, errors.New("ipc server requires a backend")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "rpc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("restrict socket permissions: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName(ServiceName, &service{backend: backend, logger: logger, ctx: serverCtx}); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}
	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
		conns:     make(map[net.Conn]struct{}),
	}, nil
}

// Path returns the socket path.
func (s *Server) Path() string { return s.path }

// Serve accepts connections until ctx is done or Close is called. It waits
// for open connections to finish before returning.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Debug("control service listening", logging.String("socket", s.path))
	stop := context.AfterFunc(ctx, s.cancel)
	defer stop()
	stopListener := context.AfterFunc(s.ctx, func() { _ = s.listener.Close() })
	defer stopListener()
	defer s.wg.Wait()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn("accept failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "ipc_accept_failed"),
				logging.String(logging.FieldImpact, "control clients may fail to connect"),
				logging.String(logging.FieldErrorHint, "check socket permissions and restart coind if needed"))
			continue
		}
		if !s.track(conn) {
			_ = conn.Close()
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(conn))
		}()
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// Close stops accepting requests, drops open connections and removes the
// socket file.
func (s *Server) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		if closeErr := s.listener.Close(); closeErr != nil && !errors.Is(closeErr, net.ErrClosed) {
			err = closeErr
		}
		s.mu.Lock()
		s.closed = true
		for conn := range s.conns {
			_ = conn.Close()
		}
		s.mu.Unlock()
		if removeErr := os.Remove(s.path); removeErr != nil && !os.IsNotExist(removeErr) {
			s.logger.Warn("failed to remove socket",
				logging.String("socket", s.path),
				logging.Error(removeErr),
				logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
				logging.String(logging.FieldImpact, "stale socket is replaced on next start"),
				logging.String(logging.FieldErrorHint, "remove the socket file manually"))
		}
	})
	return err
}

type service struct {
	backend Backend
	logger  *slog.Logger
	ctx     context.Context
}

func (s *service) Stop(req StopRequest, resp *StopResponse) error {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "rpc stop"
	}
	s.logger.Info("shutdown requested over control service", logging.String(logging.FieldReason, reason))
	s.backend.RequestShutdown(reason)
	resp.Accepted = true
	resp.Message = "coind is stopping"
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	*resp = s.backend.Status(s.ctx)
	return nil
}
