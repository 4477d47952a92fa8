// Package ipc is the control channel between autotyped and its clients:
// length-framed JSON messages over a unix socket.
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"autotyped/internal/autotype"
	"autotyped/internal/health"
)

const (
	ProtocolVersion = 1
	ProtocolMagic   = 0x41545950 // "ATYP"
)

// MaxPayload bounds a single message body.
const MaxPayload = 1 << 20

// MessageType identifies the type of IPC message
type MessageType uint16

const (
	// Control messages (0x00xx)
	MsgPing         MessageType = 0x0001
	MsgPong         MessageType = 0x0002
	MsgHandshake    MessageType = 0x0003
	MsgHandshakeAck MessageType = 0x0004
	MsgError        MessageType = 0x0005

	// Status (0x01xx)
	MsgStatus     MessageType = 0x0100
	MsgStatusResp MessageType = 0x0101

	// Auto-type (0x02xx)
	MsgTrigger      MessageType = 0x0200
	MsgTriggerResp  MessageType = 0x0201
	MsgRun          MessageType = 0x0202
	MsgRunResp      MessageType = 0x0203
	MsgValidate     MessageType = 0x0204
	MsgValidateResp MessageType = 0x0205
	MsgBlur         MessageType = 0x0206
	MsgBlurResp     MessageType = 0x0207

	// Entry store (0x03xx)
	MsgOpen      MessageType = 0x0300
	MsgOpenResp  MessageType = 0x0301
	MsgClose     MessageType = 0x0302
	MsgCloseResp MessageType = 0x0303
)

var typeNames = map[MessageType]string{
	MsgPing: "ping", MsgPong: "pong", MsgHandshake: "handshake", MsgHandshakeAck: "handshake_ack",
	MsgError: "error", MsgStatus: "status", MsgStatusResp: "status_resp",
	MsgTrigger: "trigger", MsgTriggerResp: "trigger_resp", MsgRun: "run", MsgRunResp: "run_resp",
	MsgValidate: "validate", MsgValidateResp: "validate_resp", MsgBlur: "blur", MsgBlurResp: "blur_resp",
	MsgOpen: "open", MsgOpenResp: "open_resp", MsgClose: "close", MsgCloseResp: "close_resp",
}

func (t MessageType) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("0x%04x", uint16(t))
}

// Header is the fixed-size message header (16 bytes)
type Header struct {
	Magic     uint32
	Version   uint8
	Flags     uint8
	Type      MessageType
	RequestID uint32
	Length    uint32 // payload length, header excluded
}

// HeaderSize is the size of the header in bytes
const HeaderSize = 16

// Message wraps a header and payload
type Message struct {
	Header  Header
	Payload []byte
}

// NewMessage creates a new message with the given type and payload
func NewMessage(msgType MessageType, requestID uint32, payload []byte) *Message {
	return &Message{
		Header: Header{
			Magic:     ProtocolMagic,
			Version:   ProtocolVersion,
			Type:      msgType,
			RequestID: requestID,
			Length:    uint32(len(payload)),
		},
		Payload: payload,
	}
}

func (h *Header) marshal() []byte {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = h.Flags
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Type))
	binary.BigEndian.PutUint32(buf[8:12], h.RequestID)
	binary.BigEndian.PutUint32(buf[12:16], h.Length)
	return buf
}

// Write writes the header to w.
func (h *Header) Write(w io.Writer) error {
	_, err := w.Write(h.marshal())
	return err
}

// ReadHeader reads a header from a reader
func ReadHeader(r io.Reader) (*Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	h := &Header{
		Magic:     binary.BigEndian.Uint32(buf[0:4]),
		Version:   buf[4],
		Flags:     buf[5],
		Type:      MessageType(binary.BigEndian.Uint16(buf[6:8])),
		RequestID: binary.BigEndian.Uint32(buf[8:12]),
		Length:    binary.BigEndian.Uint32(buf[12:16]),
	}
	if h.Magic != ProtocolMagic {
		return nil, fmt.Errorf("invalid magic number: %x", h.Magic)
	}
	if h.Version > ProtocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", h.Version)
	}
	return h, nil
}

// Write writes header and payload in a single call.
func (m *Message) Write(w io.Writer) error {
	buf := append(m.Header.marshal(), m.Payload...)
	_, err := w.Write(buf)
	return err
}

// ReadMessage reads a complete message from a reader
func ReadMessage(r io.Reader) (*Message, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	m := &Message{Header: *h}
	if h.Length > 0 {
		if h.Length > MaxPayload {
			return nil, fmt.Errorf("payload too large: %d bytes", h.Length)
		}
		m.Payload = make([]byte, h.Length)
		if _, err := io.ReadFull(r, m.Payload); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// HandshakeRequest is sent by the client to initiate connection
type HandshakeRequest struct {
	ClientName      string `json:"client_name"`
	ClientVersion   string `json:"client_version"`
	ProtocolVersion uint8  `json:"protocol_version"`
}

// HandshakeResponse is sent by the server to acknowledge connection
type HandshakeResponse struct {
	ServerVersion   string `json:"server_version"`
	ProtocolVersion uint8  `json:"protocol_version"`
	SessionID       string `json:"session_id"`
}

// ErrorResponse is sent when an operation fails
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrUnknown          = 1
	ErrInvalidRequest   = 2
	ErrNotFound         = 3
	ErrPermissionDenied = 4
	ErrInternalError    = 5
	ErrLocked           = 6
	ErrBadPassphrase    = 7
)

// TriggerResponse reports what a global trigger led to.
type TriggerResponse struct {
	Outcome autotype.Outcome `json:"outcome"`
	Error   string           `json:"error,omitempty"`
}

// RunRequest types a known entry.
type RunRequest struct {
	EntryID   string `json:"entry_id"`
	Sequence  string `json:"sequence,omitempty"`
	Obfuscate bool   `json:"obfuscate,omitempty"`
}

// ValidateRequest checks a sequence against an entry without typing.
type ValidateRequest struct {
	EntryID  string `json:"entry_id"`
	Sequence string `json:"sequence,omitempty"`
}

// ValidateResponse carries the parse or resolve failure, if any.
type ValidateResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`

	// Kind is "parse" or "resolve" when Valid is false.
	Kind  string `json:"kind,omitempty"`
	Field string `json:"field,omitempty"`
	Pos   int    `json:"pos,omitempty"`

	// Ops is the parsed tree with literal text masked.
	Ops string `json:"ops,omitempty"`
}

// OpenRequest unlocks the entry store. Passphrase travels base64 encoded.
type OpenRequest struct {
	Passphrase []byte `json:"passphrase"`
}

// BlurResponse reports whether a pending trigger was dropped.
type BlurResponse struct {
	Cancelled bool `json:"cancelled"`
}

// StoreStatus describes the entry store.
type StoreStatus struct {
	Unlocked bool `json:"unlocked"`
}

// StatusResponse contains daemon status
type StatusResponse struct {
	Version   string             `json:"version"`
	Uptime    time.Duration      `json:"uptime"`
	StartedAt time.Time          `json:"started_at"`
	Clients   int                `json:"clients"`
	AutoType  autotype.Status    `json:"autotype"`
	Store     StoreStatus        `json:"store"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`

	// Exposition is the metrics registry in Prometheus text format.
	Exposition string `json:"exposition,omitempty"`

	Health      health.Status                 `json:"health,omitempty"`
	HealthCheck map[string]health.CheckResult `json:"health_checks,omitempty"`
}

// Encode encodes a payload to JSON bytes
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode decodes JSON bytes to a payload
func Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// NewErrorMessage creates an error message
func NewErrorMessage(requestID uint32, code int, message string) *Message {
	payload, _ := Encode(&ErrorResponse{Code: code, Message: message})
	return NewMessage(MsgError, requestID, payload)
}

// NewResponse creates a response message
func NewResponse(msgType MessageType, requestID uint32, v any) (*Message, error) {
	payload, err := Encode(v)
	if err != nil {
		return nil, err
	}
	return NewMessage(msgType, requestID, payload), nil
}
