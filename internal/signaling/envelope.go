package signaling

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// Kind tags every envelope on the signaling socket.
type Kind string

const (
	KindJoinRoom     Kind = "join-room"
	KindRoomPeers    Kind = "room-peers"
	KindPeerJoined   Kind = "peer-joined"
	KindPeerLeft     Kind = "peer-left"
	KindOffer        Kind = "signal-offer"
	KindAnswer       Kind = "signal-answer"
	KindICECandidate Kind = "signal-ice-candidate"
)

var (
	ErrMalformedEnvelope = errors.New("malformed envelope")
	ErrUnknownKind       = errors.New("unknown envelope kind")
	ErrMissingField      = errors.New("missing required field")
)

// IsNegotiation reports whether k is relayed peer to peer.
func (k Kind) IsNegotiation() bool {
	switch k {
	case KindOffer, KindAnswer, KindICECandidate:
		return true
	}
	return false
}

// Envelope is one parsed client frame. All members of the original JSON
// object are retained so a relayed envelope carries the client's payload
// unchanged apart from the fields the relay owns.
type Envelope struct {
	Kind   Kind
	RoomID string
	To     string

	fields map[string]json.RawMessage
}

// ParseEnvelope decodes and validates a client frame. Server-originated
// kinds are rejected as unknown.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: not an object", ErrMalformedEnvelope)
	}

	kind, err := stringField(fields, "type")
	if err != nil {
		return nil, err
	}
	env := &Envelope{
		Kind:   Kind(kind),
		fields: fields,
	}

	// Only the members a kind uses are validated; the rest travel untouched.
	switch env.Kind {
	case "":
		return nil, fmt.Errorf("%w: type", ErrMissingField)
	case KindJoinRoom:
		if env.RoomID, err = stringField(fields, "roomId"); err != nil {
			return nil, err
		}
		if env.RoomID == "" {
			return nil, fmt.Errorf("%w: roomId", ErrMissingField)
		}
	case KindOffer, KindAnswer:
		if err := env.requireTarget("sdp"); err != nil {
			return nil, err
		}
	case KindICECandidate:
		if err := env.requireTarget("candidate"); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	return env, nil
}

func (e *Envelope) requireTarget(payloadField string) error {
	to, err := stringField(e.fields, "to")
	if err != nil {
		return err
	}
	if to == "" {
		return fmt.Errorf("%w: to", ErrMissingField)
	}
	e.To = to
	if _, ok := e.fields[payloadField]; !ok {
		return fmt.Errorf("%w: %s", ErrMissingField, payloadField)
	}
	return nil
}

// Forward re-encodes a negotiation envelope with the verified sender and
// room. Every other member, including the opaque payload, is copied as is.
func (e *Envelope) Forward(from, roomID string) ([]byte, error) {
	out := make(map[string]json.RawMessage, len(e.fields)+2)
	for k, v := range e.fields {
		out[k] = v
	}

	rawFrom, err := json.Marshal(from)
	if err != nil {
		return nil, err
	}
	rawRoom, err := json.Marshal(roomID)
	if err != nil {
		return nil, err
	}
	out["from"] = rawFrom
	out["roomId"] = rawRoom

	return json.Marshal(out)
}

// Payload returns the raw JSON value of a member, or nil if absent.
func (e *Envelope) Payload(field string) json.RawMessage {
	return e.fields[field]
}

func stringField(fields map[string]json.RawMessage, name string) (string, error) {
	raw, ok := fields[name]
	if !ok || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%w: %s must be a string", ErrMalformedEnvelope, name)
	}
	return s, nil
}

// roomPeersMessage answers a join. Peers is always encoded, empty for the
// first member of a room.
type roomPeersMessage struct {
	Type   Kind     `json:"type"`
	RoomID string   `json:"roomId"`
	PeerID string   `json:"peerId"`
	Peers  []string `json:"peers"`
}

type peerEventMessage struct {
	Type   Kind   `json:"type"`
	RoomID string `json:"roomId"`
	PeerID string `json:"peerId"`
}

func encodeRoomPeers(roomID, peerID string, peers []string) ([]byte, error) {
	if peers == nil {
		peers = []string{}
	}
	return json.Marshal(roomPeersMessage{
		Type:   KindRoomPeers,
		RoomID: roomID,
		PeerID: peerID,
		Peers:  peers,
	})
}

func encodePeerEvent(kind Kind, roomID, peerID string) ([]byte, error) {
	return json.Marshal(peerEventMessage{
		Type:   kind,
		RoomID: roomID,
		PeerID: peerID,
	})
}
