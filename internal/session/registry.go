package session

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type room struct {
	id               string
	boardPath        string
	members          map[string]*Member
	queue            []QueueItem
	currentClimbUUID string
	leaderID         string
	createdAt        time.Time
	lastActivityAt   time.Time
}

// Registry is the single source of truth for session membership and
// queue/leader state. Every mutation of a room goes through it; the
// registry mutex reproduces the run-to-completion serialization the
// shared state needs under parallel connection handlers.
type Registry struct {
	mu              sync.RWMutex
	rooms           map[string]*room
	activeSessionID string
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*room)}
}

// GetOrCreate returns the current snapshot of the session, creating an
// empty room when none exists yet.
func (r *Registry) GetOrCreate(sessionID string) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getOrCreate(sessionID).snapshot()
}

func (r *Registry) getOrCreate(sessionID string) *room {
	rm := r.rooms[sessionID]
	if rm == nil {
		now := time.Now()
		rm = &room{
			id:             sessionID,
			members:        make(map[string]*Member),
			queue:          []QueueItem{},
			createdAt:      now,
			lastActivityAt: now,
		}
		r.rooms[sessionID] = rm
		log.Info().Str("session", sessionID).Msg("Session created.")
	}
	return rm
}

// JoinResult reports the state a freshly joined client must be caught up
// with.
type JoinResult struct {
	Snapshot Snapshot
	IsLeader bool
}

// Join adds the member to the session, creating the room on first join.
// The first member of a room becomes its leader. Joining twice with the
// same member id leaves membership unchanged.
func (r *Registry) Join(sessionID, boardPath string, m *Member) JoinResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm := r.getOrCreate(sessionID)
	if existing, ok := rm.members[m.ID]; ok {
		// Already a member: refresh the connection handle only.
		existing.Conn = m.Conn
	} else {
		if m.JoinedAt.IsZero() {
			m.JoinedAt = time.Now()
		}
		rm.members[m.ID] = m
		if rm.leaderID == "" {
			rm.leaderID = m.ID
		}
	}
	if boardPath != "" {
		rm.boardPath = boardPath
	}
	rm.lastActivityAt = time.Now()
	r.activeSessionID = sessionID

	log.Info().Str("session", sessionID).Str("client", m.ID).Str("username", m.Username).Msg("Client joined session.")
	return JoinResult{Snapshot: rm.snapshot(), IsLeader: rm.leaderID == m.ID}
}

// LeaveResult describes the membership change produced by a leave.
type LeaveResult struct {
	Snapshot    Snapshot
	NewLeaderID string
	Empty       bool
}

// Leave removes the client from the session. When the leader leaves,
// leadership moves to the earliest-joined remaining member (ties broken
// by smaller member id, so succession is reproducible). An emptied room
// stays in the registry for the sweeper to reclaim.
func (r *Registry) Leave(sessionID, clientID string) (LeaveResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm := r.rooms[sessionID]
	if rm == nil {
		return LeaveResult{}, false
	}
	if _, ok := rm.members[clientID]; !ok {
		return LeaveResult{}, false
	}

	wasLeader := rm.leaderID == clientID
	delete(rm.members, clientID)
	rm.lastActivityAt = time.Now()

	res := LeaveResult{Empty: len(rm.members) == 0}
	if wasLeader {
		rm.leaderID = ""
		if successor := rm.successor(); successor != nil {
			rm.leaderID = successor.ID
			res.NewLeaderID = successor.ID
			log.Info().Str("session", sessionID).Str("leader", successor.ID).Msg("Leadership transferred to earliest remaining member.")
		}
	}
	res.Snapshot = rm.snapshot()

	log.Info().Str("session", sessionID).Str("client", clientID).Msg("Client left session.")
	return res, true
}

// successor picks the earliest-joined member; equal join times fall back
// to the smaller id so the choice is total.
func (rm *room) successor() *Member {
	var best *Member
	for _, m := range rm.members {
		if best == nil {
			best = m
			continue
		}
		if m.JoinedAt.Before(best.JoinedAt) ||
			(m.JoinedAt.Equal(best.JoinedAt) && m.ID < best.ID) {
			best = m
		}
	}
	return best
}

// MutateQueue applies one queue operation and returns the resulting
// snapshot for broadcast. The caller must have joined first; a session
// without a room yields ErrRoomNotFound.
func (r *Registry) MutateQueue(sessionID string, op QueueOp) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm := r.rooms[sessionID]
	if rm == nil {
		return Snapshot{}, ErrRoomNotFound
	}

	switch op.Kind {
	case OpAppend:
		if op.Item == nil {
			return Snapshot{}, ErrInvalidQueueOp
		}
		rm.queue = append(rm.queue, *op.Item)
	case OpRemove:
		rm.removeItem(op.ItemUUID)
	case OpReorder:
		rm.reorderItem(op.ItemUUID, op.ToIndex)
	case OpTick:
		rm.tickItem(op.ItemUUID, op.UserID)
	case OpSetCurrent:
		rm.currentClimbUUID = op.ItemUUID
	default:
		return Snapshot{}, ErrInvalidQueueOp
	}

	rm.lastActivityAt = time.Now()
	r.activeSessionID = sessionID
	return rm.snapshot(), nil
}

func (rm *room) removeItem(itemUUID string) {
	for i, it := range rm.queue {
		if it.UUID == itemUUID {
			rm.queue = append(rm.queue[:i], rm.queue[i+1:]...)
			break
		}
	}
	if rm.currentClimbUUID == itemUUID {
		rm.currentClimbUUID = ""
	}
}

func (rm *room) reorderItem(itemUUID string, toIndex int) {
	from := -1
	for i, it := range rm.queue {
		if it.UUID == itemUUID {
			from = i
			break
		}
	}
	if from == -1 {
		return
	}
	item := rm.queue[from]
	rm.queue = append(rm.queue[:from], rm.queue[from+1:]...)
	if toIndex < 0 {
		toIndex = 0
	}
	if toIndex > len(rm.queue) {
		toIndex = len(rm.queue)
	}
	rm.queue = append(rm.queue[:toIndex], append([]QueueItem{item}, rm.queue[toIndex:]...)...)
}

func (rm *room) tickItem(itemUUID, userID string) {
	for i := range rm.queue {
		if rm.queue[i].UUID != itemUUID {
			continue
		}
		for _, u := range rm.queue[i].TickedBy {
			if u == userID {
				return
			}
		}
		rm.queue[i].TickedBy = append(rm.queue[i].TickedBy, userID)
		return
	}
}

// TransferLeader hands leadership to another member, requested by the
// current leader.
func (r *Registry) TransferLeader(sessionID, requesterID, newLeaderID string) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm := r.rooms[sessionID]
	if rm == nil {
		return Snapshot{}, ErrRoomNotFound
	}
	if rm.leaderID != requesterID {
		return Snapshot{}, ErrNotLeader
	}
	if _, ok := rm.members[newLeaderID]; !ok {
		return Snapshot{}, ErrClientNotInRoom
	}
	rm.leaderID = newLeaderID
	rm.lastActivityAt = time.Now()
	log.Info().Str("session", sessionID).Str("leader", newLeaderID).Msg("Leadership transferred explicitly.")
	return rm.snapshot(), nil
}

// SetUsername updates a member's display name.
func (r *Registry) SetUsername(sessionID, clientID, username string) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm := r.rooms[sessionID]
	if rm == nil {
		return Snapshot{}, ErrRoomNotFound
	}
	m, ok := rm.members[clientID]
	if !ok {
		return Snapshot{}, ErrClientNotInRoom
	}
	m.Username = username
	rm.lastActivityAt = time.Now()
	return rm.snapshot(), nil
}

// Snapshot returns the full current state of a session.
func (r *Registry) Snapshot(sessionID string) (Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm := r.rooms[sessionID]
	if rm == nil {
		return Snapshot{}, ErrRoomNotFound
	}
	return rm.snapshot(), nil
}

// Members returns the current members of a session, earliest joined
// first. The slice is a copy; the *Member values stay owned by the
// registry and callers may only touch their Conn.
func (r *Registry) Members(sessionID string) []*Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm := r.rooms[sessionID]
	if rm == nil {
		return nil
	}
	return rm.sortedMembers()
}

// Has reports whether a room currently exists for the session.
func (r *Registry) Has(sessionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[sessionID] != nil
}

// ActiveSession reports the most recently active session that still has
// members, for the join-link redirect.
func (r *Registry) ActiveSession() (sessionID, boardPath string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm := r.rooms[r.activeSessionID]
	if rm == nil || len(rm.members) == 0 {
		r.activeSessionID = ""
		return "", "", false
	}
	return rm.id, rm.boardPath, true
}

// Sweep removes every room that is memberless and has been idle longer
// than the threshold, and returns the reclaimed session ids. Rooms with
// members are never reclaimed.
func (r *Registry) Sweep(now time.Time, idleThreshold time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for id, rm := range r.rooms {
		if len(rm.members) > 0 {
			continue
		}
		if now.Sub(rm.lastActivityAt) > idleThreshold {
			delete(r.rooms, id)
			if r.activeSessionID == id {
				r.activeSessionID = ""
			}
			removed = append(removed, id)
		}
	}
	return removed
}

func (rm *room) sortedMembers() []*Member {
	members := make([]*Member, 0, len(rm.members))
	for _, m := range rm.members {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].JoinedAt.Equal(members[j].JoinedAt) {
			return members[i].ID < members[j].ID
		}
		return members[i].JoinedAt.Before(members[j].JoinedAt)
	})
	return members
}

// snapshot is called with the registry lock held.
func (rm *room) snapshot() Snapshot {
	queue := make([]QueueItem, len(rm.queue))
	copy(queue, rm.queue)

	members := rm.sortedMembers()
	users := make([]User, 0, len(members))
	for _, m := range members {
		users = append(users, m.user(rm.leaderID))
	}

	return Snapshot{
		SessionID:        rm.id,
		Queue:            queue,
		CurrentClimbUUID: rm.currentClimbUUID,
		LeaderID:         rm.leaderID,
		Users:            users,
	}
}
