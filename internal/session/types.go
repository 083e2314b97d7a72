package session

import "time"

// Climb is the denormalized snapshot of a catalog climb attached to a
// queue item. The daemon never validates its fields; it only carries them
// so every device in the session can render the entry without a catalog
// round trip. Field names follow the board catalog API.
type Climb struct {
	UUID           string `json:"uuid"`
	Name           string `json:"name"`
	SetterUsername string `json:"setter_username"`
	Description    string `json:"description,omitempty"`
	Frames         string `json:"frames"`
	Angle          int    `json:"angle"`
	Difficulty     string `json:"difficulty"`
	QualityAverage string `json:"quality_average,omitempty"`
	Stars          int    `json:"stars,omitempty"`
	Mirrored       bool   `json:"mirrored,omitempty"`
}

// QueueItem is one entry in a session's shared climb queue.
type QueueItem struct {
	UUID      string   `json:"uuid"`
	Climb     Climb    `json:"climb"`
	AddedBy   string   `json:"addedBy,omitempty"`
	TickedBy  []string `json:"tickedBy,omitempty"`
	Suggested bool     `json:"suggested,omitempty"`
}

// User is the public view of a session member.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	IsLeader bool   `json:"isLeader"`
}

// Snapshot is the full shared state of a session at one point in time,
// used to catch up a client that just joined and as the broadcast body
// after every queue mutation.
type Snapshot struct {
	SessionID        string      `json:"sessionId"`
	Queue            []QueueItem `json:"queue"`
	CurrentClimbUUID string      `json:"currentClimbUuid,omitempty"`
	LeaderID         string      `json:"leaderId,omitempty"`
	Users            []User      `json:"users"`
}

// Conn is the outbound half of a connected device. Implementations must
// not block: Enqueue hands the payload to a per-connection writer and
// reports false when the frame was dropped (closed peer or full buffer).
type Conn interface {
	Enqueue(payload []byte) bool
	Close(code int, reason string)
}

// Member is one connected device inside a room.
type Member struct {
	ID       string
	UserID   string
	Username string
	JoinedAt time.Time
	Conn     Conn
}

func (m *Member) user(leaderID string) User {
	return User{ID: m.ID, Username: m.Username, IsLeader: m.ID == leaderID}
}

// QueueOpKind enumerates the queue mutations a client may request.
type QueueOpKind string

const (
	OpAppend     QueueOpKind = "append"
	OpRemove     QueueOpKind = "remove"
	OpReorder    QueueOpKind = "reorder"
	OpTick       QueueOpKind = "tick"
	OpSetCurrent QueueOpKind = "set-current"
)

// QueueOp describes one queue mutation. Which fields matter depends on
// Kind: append needs Item, remove/set-current need ItemUUID, reorder
// needs ItemUUID+ToIndex, tick needs ItemUUID+UserID.
type QueueOp struct {
	Kind     QueueOpKind
	Item     *QueueItem
	ItemUUID string
	ToIndex  int
	UserID   string
}
