package ipc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"autotyped/internal/autotype"
	"autotyped/internal/entry"
	"autotyped/internal/health"
	"autotyped/internal/logging"
	"autotyped/internal/sequence"
	"autotyped/internal/store"
)

// Vault is the entry store as the daemon handler sees it.
type Vault interface {
	Unlock(ctx context.Context, passphrase []byte) error
	Lock()
	Unlocked() bool
	Get(ctx context.Context, id string) (*entry.Entry, error)
}

// DaemonHandler serves auto-type and store requests.
type DaemonHandler struct {
	version   string
	startedAt time.Time
	autoType  *autotype.AutoType
	vault     Vault
	clients   func() int
	health    *health.Checker
	log       *logging.Logger
	audit     *logging.AuditLogger
}

// DaemonHandlerConfig configures the daemon handler
type DaemonHandlerConfig struct {
	Version  string
	AutoType *autotype.AutoType
	Vault    Vault
	Logger   *logging.Logger
	Audit    *logging.AuditLogger

	// Clients reports the number of open connections for status.
	Clients func() int

	// Health, when set, is run on every status request.
	Health *health.Checker
}

// NewDaemonHandler creates a new daemon handler
func NewDaemonHandler(cfg DaemonHandlerConfig) *DaemonHandler {
	log := cfg.Logger
	if log == nil {
		log = logging.Default()
	}
	return &DaemonHandler{
		version:   cfg.Version,
		startedAt: time.Now(),
		autoType:  cfg.AutoType,
		vault:     cfg.Vault,
		clients:   cfg.Clients,
		health:    cfg.Health,
		log:       log.WithComponent("handler"),
		audit:     cfg.Audit,
	}
}

// HandleMessage processes an IPC message
func (h *DaemonHandler) HandleMessage(ctx context.Context, client *Client, msg *Message) (*Message, error) {
	switch msg.Header.Type {
	case MsgStatus:
		return h.handleStatus(ctx, msg)
	case MsgTrigger:
		return h.handleTrigger(ctx, msg)
	case MsgRun:
		return h.handleRun(ctx, msg)
	case MsgValidate:
		return h.handleValidate(ctx, msg)
	case MsgBlur:
		return NewResponse(MsgBlurResp, msg.Header.RequestID, &BlurResponse{
			Cancelled: h.autoType.ResetPendingEvent(),
		})
	case MsgOpen:
		return h.handleOpen(ctx, client, msg)
	case MsgClose:
		h.vault.Lock()
		h.autoType.ResetPendingEvent()
		h.audit.Log(ctx, logging.AuditEvent{Type: logging.AuditStoreLocked, Result: logging.ResultSuccess})
		return NewMessage(MsgCloseResp, msg.Header.RequestID, nil), nil
	}
	return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest,
		fmt.Sprintf("unknown message type %s", msg.Header.Type)), nil
}

func (h *DaemonHandler) handleStatus(ctx context.Context, msg *Message) (*Message, error) {
	m := h.autoType.Metrics()
	m.UpdateUptime()
	resp := &StatusResponse{
		Version:   h.version,
		Uptime:    time.Since(h.startedAt),
		StartedAt: h.startedAt,
		AutoType:  h.autoType.Status(),
		Store:     StoreStatus{Unlocked: h.vault.Unlocked()},
		Metrics:   m.Registry().Snapshot(),
	}
	var expo strings.Builder
	if err := m.Registry().WritePrometheus(&expo); err == nil {
		resp.Exposition = expo.String()
	}
	if h.clients != nil {
		resp.Clients = h.clients()
	}
	if h.health != nil {
		resp.HealthCheck = h.health.Check(ctx)
		resp.Health = health.Overall(resp.HealthCheck)
	}
	return NewResponse(MsgStatusResp, msg.Header.RequestID, resp)
}

func (h *DaemonHandler) handleTrigger(ctx context.Context, msg *Message) (*Message, error) {
	out, err := h.autoType.HandleEvent(ctx, autotype.Event{})
	resp := &TriggerResponse{Outcome: out}
	if err != nil {
		resp.Error = err.Error()
	}
	return NewResponse(MsgTriggerResp, msg.Header.RequestID, resp)
}

func (h *DaemonHandler) handleRun(ctx context.Context, msg *Message) (*Message, error) {
	var req RunRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "invalid run request"), nil
	}
	e, errMsg := h.lookup(ctx, msg.Header.RequestID, req.EntryID)
	if errMsg != nil {
		return errMsg, nil
	}
	out, err := h.autoType.HandleEvent(ctx, autotype.Event{Entry: e, Sequence: req.Sequence, Obfuscate: req.Obfuscate})
	resp := &TriggerResponse{Outcome: out}
	if err != nil {
		resp.Error = err.Error()
	}
	return NewResponse(MsgRunResp, msg.Header.RequestID, resp)
}

func (h *DaemonHandler) handleValidate(ctx context.Context, msg *Message) (*Message, error) {
	var req ValidateRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "invalid validate request"), nil
	}
	e, errMsg := h.lookup(ctx, msg.Header.RequestID, req.EntryID)
	if errMsg != nil {
		return errMsg, nil
	}
	return NewResponse(MsgValidateResp, msg.Header.RequestID, ValidateResult(h.autoType.Validate(ctx, e, req.Sequence), req.Sequence))
}

// ValidateResult converts a Validate error into its wire form.
func ValidateResult(err error, seq string) *ValidateResponse {
	resp := &ValidateResponse{Valid: err == nil}
	if ops, perr := sequence.Parse(seq); perr == nil && seq != "" {
		resp.Ops = sequence.Describe(ops, false)
	}
	if err == nil {
		return resp
	}
	resp.Error = err.Error()
	var (
		pe *sequence.ParseError
		re *sequence.ResolveError
	)
	switch {
	case errors.As(err, &pe):
		resp.Kind = "parse"
		resp.Pos = pe.Pos
	case errors.As(err, &re):
		resp.Kind = "resolve"
		resp.Field = re.Field
	}
	return resp
}

func (h *DaemonHandler) handleOpen(ctx context.Context, client *Client, msg *Message) (*Message, error) {
	var req OpenRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return NewErrorMessage(msg.Header.RequestID, ErrInvalidRequest, "invalid open request"), nil
	}
	err := h.vault.Unlock(ctx, req.Passphrase)

	ev := logging.AuditEvent{Type: logging.AuditStoreOpened, Result: logging.ResultSuccess}
	if client.Peer != nil {
		ev.Details = map[string]any{"pid": client.Peer.PID}
	}
	if err != nil {
		ev.Result = logging.ResultFailure
		ev.Error = err.Error()
	}
	h.audit.Log(ctx, ev)

	switch {
	case errors.Is(err, store.ErrBadPassphrase):
		return NewErrorMessage(msg.Header.RequestID, ErrBadPassphrase, "wrong passphrase"), nil
	case err != nil:
		return nil, err
	}
	h.log.Info("entry store opened")
	return NewMessage(MsgOpenResp, msg.Header.RequestID, nil), nil
}

func (h *DaemonHandler) lookup(ctx context.Context, reqID uint32, id string) (*entry.Entry, *Message) {
	e, err := h.vault.Get(ctx, id)
	switch {
	case err == nil:
		return e, nil
	case errors.Is(err, store.ErrNotFound):
		return nil, NewErrorMessage(reqID, ErrNotFound, fmt.Sprintf("entry %q not found", id))
	case errors.Is(err, entry.ErrClosed):
		return nil, NewErrorMessage(reqID, ErrLocked, "entry store is locked")
	}
	return nil, NewErrorMessage(reqID, ErrInternalError, err.Error())
}
