package services

import (
	"sync"

	"auction-chat/internal/domain"
	"auction-chat/pkg/logger"
)

// RoomRegistry enforces at-most-one active conversation room. A join
// requested while the connection is down is replayed on the next connected
// transition, as is the active room after a reconnect.
type RoomRegistry struct {
	conn   domain.ConnectionManager
	userID string
	log    logger.Logger

	mu     sync.Mutex
	active string

	unsubStatus func()
}

func NewRoomRegistry(conn domain.ConnectionManager, userID string, log logger.Logger) *RoomRegistry {
	r := &RoomRegistry{
		conn:   conn,
		userID: userID,
		log:    log,
	}
	r.unsubStatus = conn.OnStatus(r.handleStatus)
	return r
}

func (r *RoomRegistry) JoinRoom(roomKey string) error {
	r.mu.Lock()
	if r.active != "" && r.active != roomKey {
		r.mu.Unlock()
		return domain.ErrRoomActive
	}
	r.active = roomKey
	r.mu.Unlock()

	if r.conn.Status() != domain.ConnConnected {
		// Not dropped: replayed by handleStatus once connected.
		r.log.Info("Join deferred until connected", "room", roomKey)
		return nil
	}

	return r.emitJoin(roomKey)
}

func (r *RoomRegistry) LeaveRoom(roomKey string) error {
	r.mu.Lock()
	if r.active == roomKey {
		r.active = ""
	}
	r.mu.Unlock()

	if r.conn.Status() != domain.ConnConnected {
		return nil
	}

	err := r.conn.Emit(domain.EventLeaveRoom, &domain.RoomPayload{RoomID: roomKey, UserID: r.userID})
	if err != nil {
		r.log.Warn("Failed to leave room", "room", roomKey, "error", err)
	}
	return err
}

func (r *RoomRegistry) ActiveRoom() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *RoomRegistry) Close() {
	if r.unsubStatus != nil {
		r.unsubStatus()
	}
}

func (r *RoomRegistry) handleStatus(s domain.ConnState) {
	if s != domain.ConnConnected {
		return
	}

	r.mu.Lock()
	room := r.active
	r.mu.Unlock()

	if room == "" {
		return
	}

	if err := r.emitJoin(room); err != nil {
		r.log.Error("Failed to rejoin room after reconnect", "room", room, "error", err)
	} else {
		r.log.Info("Rejoined room", "room", room)
	}
}

func (r *RoomRegistry) emitJoin(roomKey string) error {
	return r.conn.Emit(domain.EventJoinRoom, &domain.RoomPayload{RoomID: roomKey, UserID: r.userID})
}
