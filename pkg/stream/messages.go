package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/ritzau/relgraph/pkg/model"
	"github.com/tidwall/gjson"
)

// MessageKind is the "type" field of a channel frame.
type MessageKind string

const (
	KindInit   MessageKind = "init"
	KindPing   MessageKind = "ping"
	KindPong   MessageKind = "pong"
	KindResult MessageKind = "result"
)

// Message is a decoded inbound frame. Entities and Relationships are set for
// results only.
type Message struct {
	Kind          MessageKind
	Entities      []model.Entity
	Relationships []model.Relationship
}

// ChannelURL builds the push channel address for a job.
func ChannelURL(host string, port int, requestID string) string {
	u := url.URL{
		Scheme:   "ws",
		Host:     net.JoinHostPort(host, strconv.Itoa(port)),
		Path:     "/ws",
		RawQuery: url.Values{"request_id": {requestID}}.Encode(),
	}
	return u.String()
}

// EncodeInit builds the frame announcing the job on a fresh channel.
func EncodeInit(requestID string) []byte {
	b, _ := json.Marshal(struct {
		Type      MessageKind `json:"type"`
		RequestID string      `json:"request_id"`
	}{KindInit, requestID})
	return b
}

// EncodePing builds a heartbeat frame.
func EncodePing() []byte {
	return []byte(`{"type":"ping"}`)
}

// Decode parses an inbound frame. Unknown kinds decode without error so the
// caller can ignore them; malformed frames return a *DecodeError.
func Decode(data []byte) (Message, error) {
	if !gjson.ValidBytes(data) {
		return Message{}, newDecodeError(data, errors.New("invalid JSON"))
	}
	kind := gjson.GetBytes(data, "type")
	if kind.Type != gjson.String {
		return Message{}, newDecodeError(data, errors.New("missing message type"))
	}

	msg := Message{Kind: MessageKind(kind.String())}
	if msg.Kind != KindResult {
		return msg, nil
	}

	entities := firstPresent(data, "Entities", "entities")
	if !entities.IsArray() {
		return Message{}, newDecodeError(data, errors.New("result without entity list"))
	}
	if err := json.Unmarshal([]byte(entities.Raw), &msg.Entities); err != nil {
		return Message{}, newDecodeError(data, fmt.Errorf("entities: %w", err))
	}

	rels := firstPresent(data, "Relationships", "relationships")
	switch {
	case !rels.Exists() || rels.Type == gjson.Null:
	case rels.IsArray():
		if err := json.Unmarshal([]byte(rels.Raw), &msg.Relationships); err != nil {
			return Message{}, newDecodeError(data, fmt.Errorf("relationships: %w", err))
		}
	default:
		return Message{}, newDecodeError(data, errors.New("relationships is not a list"))
	}
	return msg, nil
}

func firstPresent(data []byte, keys ...string) gjson.Result {
	for _, k := range keys {
		if r := gjson.GetBytes(data, k); r.Exists() {
			return r
		}
	}
	return gjson.Result{}
}
