package realtime

import (
	"github.com/rs/zerolog/log"

	"boardsesh_daemon/internal/session"
)

// Broadcaster fans messages out to a session's current members, looked
// up through the registry. Delivery is fire-and-forget: a closed or slow
// connection is skipped and never aborts delivery to the rest.
type Broadcaster struct {
	registry *session.Registry
}

func NewBroadcaster(registry *session.Registry) *Broadcaster {
	return &Broadcaster{registry: registry}
}

// SendToOne delivers to exactly one connection.
func (b *Broadcaster) SendToOne(conn session.Conn, payload []byte) {
	conn.Enqueue(payload)
}

// BroadcastAll delivers to every currently connected member of the
// session, the originator included.
func (b *Broadcaster) BroadcastAll(sessionID string, payload []byte) {
	b.send(sessionID, payload, "")
}

// BroadcastExcept delivers to every member except the one identified by
// excludedID, for echoing a participant's action to everyone else.
func (b *Broadcaster) BroadcastExcept(sessionID string, payload []byte, excludedID string) {
	b.send(sessionID, payload, excludedID)
}

func (b *Broadcaster) send(sessionID string, payload []byte, excludedID string) {
	for _, m := range b.registry.Members(sessionID) {
		if m.ID == excludedID || m.Conn == nil {
			continue
		}
		if !m.Conn.Enqueue(payload) {
			log.Debug().Str("session", sessionID).Str("client", m.ID).Msg("Skipped undeliverable member.")
		}
	}
}
