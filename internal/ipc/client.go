package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"autotyped/internal/autotype"
)

// Common errors
var (
	ErrDaemonNotRunning = errors.New("daemon is not running")
	ErrConnectionLost   = errors.New("connection to daemon lost")
)

// RemoteError is an error reported by the daemon.
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string { return e.Message }

// IPCClient talks to the daemon. Calls are serialized; each waits for
// its own response.
type IPCClient struct {
	mu        sync.Mutex
	conn      net.Conn
	nextReqID uint32
	sessionID string
	server    string
}

// ClientConfig configures Dial.
type ClientConfig struct {
	SocketPath     string
	ClientName     string
	ClientVersion  string
	ConnectTimeout time.Duration
}

// Dial connects to the daemon and performs the handshake.
func Dial(ctx context.Context, cfg ClientConfig) (*IPCClient, error) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	d := net.Dialer{Timeout: cfg.ConnectTimeout}
	conn, err := d.DialContext(ctx, "unix", cfg.SocketPath)
	if err != nil {
		if errors.Is(err, syscall.ENOENT) || errors.Is(err, syscall.ECONNREFUSED) {
			return nil, fmt.Errorf("%w (%s)", ErrDaemonNotRunning, cfg.SocketPath)
		}
		return nil, fmt.Errorf("connect: %w", err)
	}

	c := &IPCClient{conn: conn}
	var ack HandshakeResponse
	err = c.call(ctx, MsgHandshake, &HandshakeRequest{
		ClientName:      cfg.ClientName,
		ClientVersion:   cfg.ClientVersion,
		ProtocolVersion: ProtocolVersion,
	}, MsgHandshakeAck, &ack)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("handshake: %w", err)
	}
	c.sessionID = ack.SessionID
	c.server = ack.ServerVersion
	return c, nil
}

// Close closes the connection.
func (c *IPCClient) Close() error {
	return c.conn.Close()
}

// SessionID returns the session ID assigned by the server
func (c *IPCClient) SessionID() string { return c.sessionID }

// ServerVersion is the daemon's version string.
func (c *IPCClient) ServerVersion() string { return c.server }

// call sends req and decodes the matching response into resp. Pings
// from the server are answered while waiting.
func (c *IPCClient) call(ctx context.Context, t MessageType, req any, want MessageType, resp any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var payload []byte
	if req != nil {
		var err error
		if payload, err = Encode(req); err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
	}

	if dl, ok := ctx.Deadline(); ok {
		c.conn.SetDeadline(dl)
	} else {
		c.conn.SetDeadline(time.Time{})
	}
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	c.nextReqID++
	id := c.nextReqID
	if err := NewMessage(t, id, payload).Write(c.conn); err != nil {
		return c.wrap(ctx, fmt.Errorf("write message: %w", err))
	}

	for {
		msg, err := ReadMessage(c.conn)
		if err != nil {
			return c.wrap(ctx, err)
		}
		if msg.Header.Type == MsgPing {
			if err := NewMessage(MsgPong, msg.Header.RequestID, nil).Write(c.conn); err != nil {
				return c.wrap(ctx, err)
			}
			continue
		}
		if msg.Header.RequestID != id {
			continue
		}
		switch msg.Header.Type {
		case MsgError:
			var e ErrorResponse
			if err := Decode(msg.Payload, &e); err != nil {
				return fmt.Errorf("decode error response: %w", err)
			}
			return &RemoteError{Code: e.Code, Message: e.Message}
		case want:
			if resp == nil || len(msg.Payload) == 0 {
				return nil
			}
			return Decode(msg.Payload, resp)
		default:
			return fmt.Errorf("unexpected response type %s", msg.Header.Type)
		}
	}
}

func (c *IPCClient) wrap(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return err
	}
	return fmt.Errorf("%w: %v", ErrConnectionLost, err)
}

// Ping checks that the daemon answers.
func (c *IPCClient) Ping(ctx context.Context) error {
	return c.call(ctx, MsgPing, nil, MsgPong, nil)
}

// Status returns the daemon status.
func (c *IPCClient) Status(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call(ctx, MsgStatus, nil, MsgStatusResp, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Trigger starts auto-type for the focused window and waits for it.
func (c *IPCClient) Trigger(ctx context.Context) (*TriggerResponse, error) {
	var resp TriggerResponse
	if err := c.call(ctx, MsgTrigger, nil, MsgTriggerResp, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Run types the entry with id.
func (c *IPCClient) Run(ctx context.Context, req RunRequest) (*TriggerResponse, error) {
	var resp TriggerResponse
	if err := c.call(ctx, MsgRun, &req, MsgRunResp, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Validate checks a sequence against an entry.
func (c *IPCClient) Validate(ctx context.Context, req ValidateRequest) (*ValidateResponse, error) {
	var resp ValidateResponse
	if err := c.call(ctx, MsgValidate, &req, MsgValidateResp, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Open unlocks the entry store. passphrase is not retained.
func (c *IPCClient) Open(ctx context.Context, passphrase []byte) error {
	return c.call(ctx, MsgOpen, &OpenRequest{Passphrase: passphrase}, MsgOpenResp, nil)
}

// Lock closes the entry store.
func (c *IPCClient) Lock(ctx context.Context) error {
	return c.call(ctx, MsgClose, nil, MsgCloseResp, nil)
}

// Blur cancels a pending trigger.
func (c *IPCClient) Blur(ctx context.Context) (bool, error) {
	var resp BlurResponse
	if err := c.call(ctx, MsgBlur, nil, MsgBlurResp, &resp); err != nil {
		return false, err
	}
	return resp.Cancelled, nil
}

// Failed reports whether a trigger response describes a failed run.
func (r *TriggerResponse) Failed() bool {
	return r.Outcome == autotype.OutcomeFailed || r.Outcome == autotype.OutcomeRejected
}
