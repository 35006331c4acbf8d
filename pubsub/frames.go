package pubsub

import (
	"encoding/json"

	"github.com/goliatone/go-twitch/core"
)

const (
	FramePing      = "PING"
	FramePong      = "PONG"
	FrameListen    = "LISTEN"
	FrameUnlisten  = "UNLISTEN"
	FrameResponse  = "RESPONSE"
	FrameMessage   = "MESSAGE"
	FrameReconnect = "RECONNECT"
)

const (
	ErrBadAuth    = "ERR_BADAUTH"
	ErrServer     = "ERR_SERVER"
	ErrBadTopic   = "ERR_BADTOPIC"
	ErrBadMessage = "ERR_BADMESSAGE"
)

type outboundFrame struct {
	Type  string          `json:"type"`
	Nonce string          `json:"nonce,omitempty"`
	Data  *outboundTopics `json:"data,omitempty"`
}

type outboundTopics struct {
	Topics    []string `json:"topics"`
	AuthToken string   `json:"auth_token,omitempty"`
}

type inboundFrame struct {
	Type  string          `json:"type"`
	Nonce string          `json:"nonce"`
	Error string          `json:"error"`
	Data  json.RawMessage `json:"data"`
}

// MESSAGE frames carry the payload as a JSON document encoded in a string.
type messageData struct {
	Topic   string `json:"topic"`
	Message string `json:"message"`
}

// responseError maps a RESPONSE error string onto the error taxonomy.
func responseError(op string, topic string, code string) error {
	kind := core.KindProtocolViolation
	switch code {
	case ErrBadAuth:
		kind = core.KindAuthenticationRejected
	case ErrServer:
		kind = core.KindServerError
	}
	err := core.NewError(kind, op, "topic "+topic+" rejected")
	err.ServerMessage = code
	return err
}
