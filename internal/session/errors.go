package session

import "errors"

var (
	ErrRoomNotFound    = errors.New("room_not_found")
	ErrNotLeader       = errors.New("not_leader")
	ErrClientNotInRoom = errors.New("client_not_in_room")
	ErrInvalidQueueOp  = errors.New("invalid_queue_op")
)
