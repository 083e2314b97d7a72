package sessions

import "boardsesh_daemon/internal/session"

type SessionResponse struct {
	Session session.Snapshot `json:"session"`
}
