// ABOUTME: Wire dialect abstraction and the two supported gateway protocols.
// ABOUTME: Gateway dialect is keyed req/res with handshake; legacy is single in-flight.

package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"

	"github.com/google/uuid"
)

// ErrHandshakeRejected indicates the gateway declined the connect request.
var ErrHandshakeRejected = errors.New("handshake rejected by gateway")

// InboundKind classifies a decoded inbound frame.
type InboundKind int

const (
	// KindResponse is a successful reply to a request.
	KindResponse InboundKind = iota
	// KindError is a failed reply to a request.
	KindError
	// KindEvent is an unsolicited side-channel notification.
	KindEvent
	// KindUnknown is an unrecognized frame, logged and ignored.
	KindUnknown
)

// Inbound is the normalized form of one decoded gateway frame.
type Inbound struct {
	Kind      InboundKind
	RequestID string    // correlation ID, empty for the legacy dialect
	Response  *Response // set for KindResponse
	ErrorMsg  string    // set for KindError
	Event     *Event    // set for KindEvent
}

// Event is an unsolicited gateway notification (presence, heartbeat).
type Event struct {
	Name    string
	Payload json.RawMessage
}

// Outbound is the payload of one user message.
type Outbound struct {
	Text      string
	ChannelID string
	AccountID string
}

// Dialect encodes and decodes one gateway wire protocol. The two dialects
// target different gateway generations and are never active against the
// same endpoint at once.
type Dialect interface {
	// Name identifies the dialect for logging.
	Name() string

	// SingleFlight reports whether the protocol supports only one
	// in-flight request, with unkeyed replies.
	SingleFlight() bool

	// Handshake performs the protocol's connect exchange on a freshly
	// dialed connection. Returns ErrHandshakeRejected (possibly
	// wrapped) when the gateway declines.
	Handshake(ctx context.Context, conn Conn) error

	// EncodeSend serializes one outbound user message.
	EncodeSend(requestID string, msg Outbound) ([]byte, error)

	// Decode parses one inbound frame.
	Decode(data []byte) (*Inbound, error)
}

// --- gateway dialect (keyed req/res, protocol v1) ---

// gatewayFrame is the raw frame shape of the keyed protocol.
type gatewayFrame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	OK      *bool           `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *gatewayError   `json:"error,omitempty"`
	Event   string          `json:"event,omitempty"`
}

type gatewayError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type connectParams struct {
	MinProtocol int           `json:"minProtocol"`
	MaxProtocol int           `json:"maxProtocol"`
	Client      connectClient `json:"client"`
	Scopes      []string      `json:"scopes,omitempty"`
	Auth        *connectAuth  `json:"auth,omitempty"`
}

type connectClient struct {
	ID       string `json:"id"`
	Version  string `json:"version"`
	Platform string `json:"platform"`
	Mode     string `json:"mode"`
}

type connectAuth struct {
	Token string `json:"token"`
}

type sendParams struct {
	ChannelID string `json:"channelId,omitempty"`
	AccountID string `json:"accountId,omitempty"`
	Text      string `json:"text"`
}

// GatewayDialectConfig describes this client to the gateway during handshake.
type GatewayDialectConfig struct {
	ClientID string
	Version  string
	Scopes   []string
	// Token is the opaque auth payload forwarded in the connect
	// request. Empty means anonymous.
	Token string
}

type gatewayDialect struct {
	cfg   GatewayDialectConfig
	newID func() string
}

// NewGatewayDialect creates the keyed request/response dialect.
func NewGatewayDialect(cfg GatewayDialectConfig) Dialect {
	if cfg.ClientID == "" {
		cfg.ClientID = "coven-bridge"
	}
	return &gatewayDialect{
		cfg:   cfg,
		newID: func() string { return uuid.New().String() },
	}
}

func (d *gatewayDialect) Name() string       { return "gateway" }
func (d *gatewayDialect) SingleFlight() bool { return false }

// Handshake sends the connect request and waits for its acknowledgement.
// Unsolicited events arriving before the acknowledgement are skipped.
func (d *gatewayDialect) Handshake(ctx context.Context, conn Conn) error {
	id := d.newID()

	params := connectParams{
		MinProtocol: 1,
		MaxProtocol: 1,
		Client: connectClient{
			ID:       d.cfg.ClientID,
			Version:  d.cfg.Version,
			Platform: runtime.GOOS,
			Mode:     "bridge",
		},
		Scopes: d.cfg.Scopes,
	}
	if d.cfg.Token != "" {
		params.Auth = &connectAuth{Token: d.cfg.Token}
	}

	rawParams, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encoding connect params: %w", err)
	}
	frame, err := json.Marshal(gatewayFrame{
		Type:   "req",
		ID:     id,
		Method: "connect",
		Params: rawParams,
	})
	if err != nil {
		return fmt.Errorf("encoding connect frame: %w", err)
	}
	if err := conn.Send(ctx, frame); err != nil {
		return fmt.Errorf("sending connect request: %w", err)
	}

	for {
		data, err := conn.Receive(ctx)
		if err != nil {
			return fmt.Errorf("awaiting connect acknowledgement: %w", err)
		}

		var resp gatewayFrame
		if err := json.Unmarshal(data, &resp); err != nil {
			return fmt.Errorf("parsing connect acknowledgement: %w", err)
		}
		if resp.Type != "res" || resp.ID != id {
			// Events (presence, challenges) may precede the ack.
			continue
		}

		if resp.OK == nil || !*resp.OK {
			if resp.Error != nil {
				return fmt.Errorf("%w: %s", ErrHandshakeRejected, resp.Error.Message)
			}
			return ErrHandshakeRejected
		}
		return nil
	}
}

func (d *gatewayDialect) EncodeSend(requestID string, msg Outbound) ([]byte, error) {
	rawParams, err := json.Marshal(sendParams{
		ChannelID: msg.ChannelID,
		AccountID: msg.AccountID,
		Text:      msg.Text,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding send params: %w", err)
	}
	return json.Marshal(gatewayFrame{
		Type:   "req",
		ID:     requestID,
		Method: "send",
		Params: rawParams,
	})
}

func (d *gatewayDialect) Decode(data []byte) (*Inbound, error) {
	var frame gatewayFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("parsing frame: %w", err)
	}

	switch frame.Type {
	case "res":
		if frame.OK != nil && *frame.OK {
			fields := map[string]any{}
			if len(frame.Payload) > 0 {
				if err := json.Unmarshal(frame.Payload, &fields); err != nil {
					return nil, fmt.Errorf("parsing response payload: %w", err)
				}
			}
			return &Inbound{
				Kind:      KindResponse,
				RequestID: frame.ID,
				Response:  normalizeResponse(fields),
			}, nil
		}
		errMsg := "request failed"
		if frame.Error != nil {
			errMsg = frame.Error.Message
		}
		return &Inbound{Kind: KindError, RequestID: frame.ID, ErrorMsg: errMsg}, nil

	case "event":
		return &Inbound{
			Kind:  KindEvent,
			Event: &Event{Name: frame.Event, Payload: frame.Payload},
		}, nil

	default:
		return &Inbound{Kind: KindUnknown}, nil
	}
}

// --- legacy dialect (single in-flight, unkeyed) ---

// legacyFrame is the raw frame shape of the single-slot protocol.
type legacyFrame struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	ChannelID string `json:"channelId,omitempty"`
	AccountID string `json:"accountId,omitempty"`
	Error     string `json:"error,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	Event     string `json:"event,omitempty"`
}

type legacyDialect struct{}

// NewLegacyDialect creates the unkeyed single-in-flight dialect used by
// older gateway builds. It has no handshake; the session is usable as
// soon as the transport connects.
func NewLegacyDialect() Dialect {
	return legacyDialect{}
}

func (legacyDialect) Name() string       { return "legacy" }
func (legacyDialect) SingleFlight() bool { return true }

func (legacyDialect) Handshake(ctx context.Context, conn Conn) error {
	return nil
}

func (legacyDialect) EncodeSend(requestID string, msg Outbound) ([]byte, error) {
	// The legacy protocol carries no correlation ID; replies are matched
	// to the single in-flight request.
	return json.Marshal(legacyFrame{
		Type:      "message",
		Text:      msg.Text,
		ChannelID: msg.ChannelID,
		AccountID: msg.AccountID,
	})
}

func (legacyDialect) Decode(data []byte) (*Inbound, error) {
	var frame legacyFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("parsing frame: %w", err)
	}

	switch frame.Type {
	case "response":
		fields := map[string]any{}
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, fmt.Errorf("parsing response fields: %w", err)
		}
		return &Inbound{Kind: KindResponse, Response: normalizeResponse(fields)}, nil

	case "error":
		return &Inbound{Kind: KindError, ErrorMsg: frame.Error}, nil

	case "event":
		return &Inbound{
			Kind:  KindEvent,
			Event: &Event{Name: frame.Event, Payload: data},
		}, nil

	default:
		return &Inbound{Kind: KindUnknown}, nil
	}
}
