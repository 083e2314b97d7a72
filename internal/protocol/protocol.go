// Package protocol implements the wire envelope exchanged with session
// clients. Every frame is a self-describing JSON object discriminated by
// a "type" field; decoding any byte sequence yields either a typed
// message or a typed failure, never a panic.
package protocol

import (
	"encoding/json"
	"errors"

	"boardsesh_daemon/internal/session"
)

type Kind string

const (
	KindJoin           Kind = "join"
	KindLeave          Kind = "leave"
	KindQueueUpdate    Kind = "queue-update"
	KindQueueState     Kind = "queue-state"
	KindLeaderChange   Kind = "leader-change"
	KindSessionUsers   Kind = "session-users"
	KindTransferLeader Kind = "transfer-leader"
	KindUpdateUsername Kind = "update-username"
	KindError          Kind = "error"
	KindHeartbeat      Kind = "heartbeat"
)

var (
	ErrMalformedEnvelope = errors.New("malformed_envelope")
	ErrUnknownType       = errors.New("unknown_type")
)

// Error codes carried by outbound error envelopes.
const (
	CodeMalformed       = "malformed"
	CodeUnknownType     = "unknown-type"
	CodeNotJoined       = "not-joined"
	CodeRoomNotFound    = "room-not-found"
	CodeNotLeader       = "not-leader"
	CodeClientNotInRoom = "client-not-in-room"
	CodeInvalidQueueOp  = "invalid-queue-op"
	CodeUnsupported     = "unsupported"
)

type JoinPayload struct {
	SessionID string `json:"sessionId"`
	BoardPath string `json:"boardPath,omitempty"`
	Username  string `json:"username,omitempty"`
}

type QueueUpdatePayload struct {
	Op       session.QueueOpKind `json:"op"`
	Item     *session.QueueItem  `json:"item,omitempty"`
	ItemUUID string              `json:"itemUuid,omitempty"`
	ToIndex  int                 `json:"toIndex,omitempty"`
	UserID   string              `json:"userId,omitempty"`
}

type TransferLeaderPayload struct {
	NewLeaderID string `json:"newLeaderId"`
}

type UpdateUsernamePayload struct {
	Username string `json:"username"`
}

// Message is a decoded inbound frame. Exactly the payload matching Type
// is non-nil; kinds without a body carry none.
type Message struct {
	Type           Kind
	Join           *JoinPayload
	QueueUpdate    *QueueUpdatePayload
	TransferLeader *TransferLeaderPayload
	UpdateUsername *UpdateUsernamePayload
}

type envelope struct {
	Type Kind `json:"type"`
}

// Decode parses a wire frame. Input that is not a JSON object with a
// non-empty "type" fails with ErrMalformedEnvelope; a type outside the
// recognized set fails with ErrUnknownType. A recognized type with an
// unparsable body counts as malformed.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{}, ErrMalformedEnvelope
	}
	if env.Type == "" {
		return Message{}, ErrMalformedEnvelope
	}

	msg := Message{Type: env.Type}
	var payload any

	switch env.Type {
	case KindJoin:
		msg.Join = &JoinPayload{}
		payload = msg.Join
	case KindQueueUpdate:
		msg.QueueUpdate = &QueueUpdatePayload{}
		payload = msg.QueueUpdate
	case KindTransferLeader:
		msg.TransferLeader = &TransferLeaderPayload{}
		payload = msg.TransferLeader
	case KindUpdateUsername:
		msg.UpdateUsername = &UpdateUsernamePayload{}
		payload = msg.UpdateUsername
	case KindLeave, KindHeartbeat, KindQueueState, KindLeaderChange, KindSessionUsers, KindError:
		return msg, nil
	default:
		return Message{}, ErrUnknownType
	}

	if err := json.Unmarshal(data, payload); err != nil {
		return Message{}, ErrMalformedEnvelope
	}
	return msg, nil
}

type queueStateMessage struct {
	Type             Kind                `json:"type"`
	SessionID        string              `json:"sessionId"`
	Queue            []session.QueueItem `json:"queue"`
	CurrentClimbUUID string              `json:"currentClimbUuid,omitempty"`
	LeaderID         string              `json:"leaderId,omitempty"`
	Users            []session.User      `json:"users"`
}

type leaderChangeMessage struct {
	Type        Kind   `json:"type"`
	NewLeaderID string `json:"newLeaderId"`
}

type sessionUsersMessage struct {
	Type  Kind           `json:"type"`
	Users []session.User `json:"users"`
}

type errorMessage struct {
	Type    Kind   `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type heartbeatMessage struct {
	Type Kind `json:"type"`
}

// EncodeQueueState renders a full session snapshot for broadcast.
func EncodeQueueState(snap session.Snapshot) []byte {
	return marshal(queueStateMessage{
		Type:             KindQueueState,
		SessionID:        snap.SessionID,
		Queue:            snap.Queue,
		CurrentClimbUUID: snap.CurrentClimbUUID,
		LeaderID:         snap.LeaderID,
		Users:            snap.Users,
	})
}

func EncodeLeaderChange(newLeaderID string) []byte {
	return marshal(leaderChangeMessage{Type: KindLeaderChange, NewLeaderID: newLeaderID})
}

func EncodeSessionUsers(users []session.User) []byte {
	return marshal(sessionUsersMessage{Type: KindSessionUsers, Users: users})
}

func EncodeError(code, message string) []byte {
	return marshal(errorMessage{Type: KindError, Code: code, Message: message})
}

func EncodeHeartbeat() []byte {
	return marshal(heartbeatMessage{Type: KindHeartbeat})
}

// marshal never fails for the message structs above; they contain no
// unmarshalable values.
func marshal(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}
