package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"autotyped/internal/logging"
	"autotyped/internal/security"
)

// Handler processes IPC messages
type Handler interface {
	HandleMessage(ctx context.Context, client *Client, msg *Message) (*Message, error)
}

// HandlerFunc is a function that implements Handler
type HandlerFunc func(ctx context.Context, client *Client, msg *Message) (*Message, error)

func (f HandlerFunc) HandleMessage(ctx context.Context, client *Client, msg *Message) (*Message, error) {
	return f(ctx, client, msg)
}

// Server accepts control connections on a unix socket.
type Server struct {
	mu         sync.RWMutex
	listener   net.Listener
	socketPath string
	handler    Handler
	clients    map[string]*Client
	cfg        ServerConfig
	log        *logging.Logger
	audit      *logging.AuditLogger
	startedAt  time.Time

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
}

// Client is a connected peer as seen by the server.
type Client struct {
	mu           sync.Mutex
	ID           string
	Name         string
	Version      string
	Peer         *PeerCredentials
	ConnectedAt  time.Time
	LastActivity time.Time

	handshaken bool
	conn       net.Conn
	writeMu    sync.Mutex
}

// ServerConfig configures the IPC server
type ServerConfig struct {
	SocketPath     string
	Version        string
	Permissions    os.FileMode
	MaxConnections int
	IdleTimeout    time.Duration
	WriteTimeout   time.Duration

	// RequireSameUser closes connections from other uids. Platforms that
	// cannot identify peers rely on the socket's file mode alone.
	RequireSameUser bool

	Logger *logging.Logger
	Audit  *logging.AuditLogger
}

// DefaultServerConfig returns sensible defaults
func DefaultServerConfig(socketPath string) ServerConfig {
	return ServerConfig{
		SocketPath:      socketPath,
		Version:         "dev",
		Permissions:     0o600,
		MaxConnections:  16,
		IdleTimeout:     60 * time.Second,
		WriteTimeout:    10 * time.Second,
		RequireSameUser: true,
	}
}

// NewServer creates a new IPC server
func NewServer(cfg ServerConfig, handler Handler) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	if cfg.Permissions == 0 {
		cfg.Permissions = 0o600
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 16
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Default()
	}
	return &Server{
		socketPath: cfg.SocketPath,
		handler:    handler,
		clients:    make(map[string]*Client),
		cfg:        cfg,
		log:        log.WithComponent("ipc"),
		audit:      cfg.Audit,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start begins listening for connections
func (s *Server) Start() error {
	if err := security.EnsureSecureDir(filepath.Dir(s.socketPath)); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}
	if IsSocketListening(s.socketPath) {
		return fmt.Errorf("another daemon is listening on %s", s.socketPath)
	}
	if err := CleanupSocket(s.socketPath); err != nil {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on socket: %w", err)
	}
	if err := os.Chmod(s.socketPath, s.cfg.Permissions); err != nil {
		listener.Close()
		return fmt.Errorf("set socket permissions: %w", err)
	}

	s.listener = listener
	s.startedAt = time.Now()
	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()

	s.log.Info("listening", "socket", s.socketPath)
	return nil
}

// Stop closes the listener and every connection, then waits up to five
// seconds for handlers to return.
func (s *Server) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	for _, client := range s.clients {
		client.conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.log.Warn("timed out waiting for connections to close")
	}

	os.Remove(s.socketPath)
	return nil
}

// SocketPath returns the socket path
func (s *Server) SocketPath() string {
	return s.socketPath
}

// StartedAt returns when Start succeeded.
func (s *Server) StartedAt() time.Time {
	return s.startedAt
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("accept", "error", err)
			continue
		}

		client, ok := s.admit(conn)
		if !ok {
			conn.Close()
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(client)
	}
}

// admit applies the connection limit and the peer uid check.
func (s *Server) admit(conn net.Conn) (*Client, bool) {
	same, cred, err := VerifyPeerIsCurrentUser(conn)
	switch {
	case err != nil && !errors.Is(err, ErrPeerCredUnsupported):
		s.log.Warn("peer credentials", "error", err)
		if s.cfg.RequireSameUser {
			return nil, false
		}
	case err == nil && !same && s.cfg.RequireSameUser:
		s.log.Warn("rejected connection from another user", "uid", cred.UID, "pid", cred.PID)
		s.audit.Log(s.ctx, logging.AuditEvent{
			Type:    logging.AuditPeerDenied,
			Result:  logging.ResultDenied,
			Details: map[string]any{"uid": cred.UID, "pid": cred.PID},
		})
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.clients) >= s.cfg.MaxConnections {
		s.log.Warn("connection limit reached", "max", s.cfg.MaxConnections)
		return nil, false
	}
	now := time.Now()
	client := &Client{
		ID:           uuid.NewString(),
		Peer:         cred,
		conn:         conn,
		ConnectedAt:  now,
		LastActivity: now,
	}
	s.clients[client.ID] = client
	return client, true
}

func (s *Server) handleConnection(client *Client) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.clients, client.ID)
		s.mu.Unlock()
		client.conn.Close()
	}()

	for {
		if s.ctx.Err() != nil {
			return
		}

		client.conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		msg, err := ReadMessage(client.conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.log.Debug("connection closed", "client", client.ID, "error", err)
			}
			return
		}

		client.mu.Lock()
		client.LastActivity = time.Now()
		client.mu.Unlock()

		response, err := s.processMessage(client, msg)
		if err != nil {
			s.log.Error("handler failed", "type", msg.Header.Type.String(), "error", err)
			response = NewErrorMessage(msg.Header.RequestID, ErrInternalError, err.Error())
		}
		if response != nil {
			if err := s.sendMessage(client, response); err != nil {
				return
			}
		}
	}
}

func (s *Server) processMessage(client *Client, msg *Message) (*Message, error) {
	id := msg.Header.RequestID
	switch msg.Header.Type {
	case MsgPing:
		return NewMessage(MsgPong, id, nil), nil
	case MsgPong:
		return nil, nil
	case MsgHandshake:
		return s.handleHandshake(client, msg)
	}

	client.mu.Lock()
	ok := client.handshaken
	client.mu.Unlock()
	if !ok {
		return NewErrorMessage(id, ErrPermissionDenied, "handshake required"), nil
	}
	if err := ValidatePayload(msg.Header.Type, msg.Payload); err != nil {
		return NewErrorMessage(id, ErrInvalidRequest, err.Error()), nil
	}
	if s.handler == nil {
		return NewErrorMessage(id, ErrInvalidRequest, "no handler"), nil
	}
	return s.handler.HandleMessage(s.ctx, client, msg)
}

func (s *Server) handleHandshake(client *Client, msg *Message) (*Message, error) {
	if err := ValidatePayload(MsgHandshake, msg.Payload); err != nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, err.Error()), nil
	}
	var req HandshakeRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "invalid handshake"), nil
	}
	if req.ProtocolVersion != ProtocolVersion {
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest,
			fmt.Sprintf("protocol version %d not supported", req.ProtocolVersion)), nil
	}

	client.mu.Lock()
	client.Name = req.ClientName
	client.Version = req.ClientVersion
	client.handshaken = true
	client.mu.Unlock()

	s.log.Debug("client connected", "client", client.ID, "name", req.ClientName)
	return NewResponse(MsgHandshakeAck, msg.Header.RequestID, &HandshakeResponse{
		ServerVersion:   s.cfg.Version,
		ProtocolVersion: ProtocolVersion,
		SessionID:       client.ID,
	})
}

func (s *Server) sendMessage(client *Client, msg *Message) error {
	client.writeMu.Lock()
	defer client.writeMu.Unlock()

	client.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return msg.Write(client.conn)
}

// CleanupSocket removes a stale socket file. Anything other than a
// socket at path is left alone.
func CleanupSocket(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.Mode()&os.ModeSocket != 0 {
		return os.Remove(path)
	}
	return fmt.Errorf("path exists but is not a socket: %s", path)
}

// IsSocketListening checks if a socket is already listening
func IsSocketListening(path string) bool {
	conn, err := net.DialTimeout("unix", path, time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
