package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"auction-chat/internal/domain"
	"auction-chat/pkg/logger"
)

type ConnectionManagerConfig struct {
	ReconnectInterval time.Duration
	BackoffFactor     float64
	MaxReconnectDelay time.Duration
}

// ConnectionManager owns the session's single bus connection and recovers
// it on drops. Inbound events are dispatched from one read goroutine, so
// handlers never run concurrently with each other.
type ConnectionManager struct {
	dialer domain.BusDialer
	cfg    ConnectionManagerConfig
	log    logger.Logger

	mu          sync.RWMutex
	conn        domain.BusConn
	status      domain.ConnState
	userID      string
	handlers    map[string]map[int]domain.EventHandler
	statusSubs  map[int]func(domain.ConnState)
	nextID      int
	cancel      context.CancelFunc
	running     bool
	generation  int // bumped on Disconnect so a stale run loop exits
}

func NewConnectionManager(dialer domain.BusDialer, cfg ConnectionManagerConfig, log logger.Logger) *ConnectionManager {
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = 5 * time.Second
	}
	if cfg.BackoffFactor < 1 {
		cfg.BackoffFactor = 1
	}
	if cfg.MaxReconnectDelay < cfg.ReconnectInterval {
		cfg.MaxReconnectDelay = cfg.ReconnectInterval
	}

	return &ConnectionManager{
		dialer:     dialer,
		cfg:        cfg,
		log:        log,
		status:     domain.ConnDisconnected,
		handlers:   make(map[string]map[int]domain.EventHandler),
		statusSubs: make(map[int]func(domain.ConnState)),
	}
}

// Connect starts the session's connection loop. Calling it again while the
// loop is running reuses the existing connection.
func (cm *ConnectionManager) Connect(ctx context.Context, userID string) error {
	cm.mu.Lock()
	if cm.running {
		cm.mu.Unlock()
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	cm.userID = userID
	cm.cancel = cancel
	cm.running = true
	cm.generation++
	gen := cm.generation
	cm.mu.Unlock()

	go cm.run(runCtx, gen)
	return nil
}

func (cm *ConnectionManager) Disconnect() error {
	cm.mu.Lock()
	if !cm.running {
		cm.mu.Unlock()
		return nil
	}
	cm.running = false
	cm.generation++
	cancel := cm.cancel
	conn := cm.conn
	cm.conn = nil
	cm.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}

	cm.setStatus(domain.ConnDisconnected)
	return nil
}

func (cm *ConnectionManager) Status() domain.ConnState {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.status
}

func (cm *ConnectionManager) OnStatus(fn func(domain.ConnState)) func() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.nextID++
	id := cm.nextID
	cm.statusSubs[id] = fn

	return func() {
		cm.mu.Lock()
		defer cm.mu.Unlock()
		delete(cm.statusSubs, id)
	}
}

func (cm *ConnectionManager) On(event string, fn domain.EventHandler) func() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.handlers[event] == nil {
		cm.handlers[event] = make(map[int]domain.EventHandler)
	}
	cm.nextID++
	id := cm.nextID
	cm.handlers[event][id] = fn

	return func() {
		cm.mu.Lock()
		defer cm.mu.Unlock()
		delete(cm.handlers[event], id)
	}
}

func (cm *ConnectionManager) Emit(event string, payload interface{}) error {
	cm.mu.RLock()
	conn := cm.conn
	status := cm.status
	cm.mu.RUnlock()

	if conn == nil || status != domain.ConnConnected {
		return domain.ErrNotConnected
	}

	return conn.WriteEvent(event, payload)
}

func (cm *ConnectionManager) run(ctx context.Context, gen int) {
	delay := cm.cfg.ReconnectInterval

	for {
		if ctx.Err() != nil || !cm.current(gen) {
			return
		}

		cm.setStatus(domain.ConnConnecting)

		conn, err := cm.dialer.Dial(ctx)
		if err != nil {
			cm.log.Warn("Gateway dial failed, will retry", "error", err, "retry_in", delay)
			cm.setStatus(domain.ConnDisconnected)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}

			delay = cm.nextDelay(delay)
			continue
		}

		delay = cm.cfg.ReconnectInterval

		cm.mu.Lock()
		if cm.generation != gen {
			cm.mu.Unlock()
			conn.Close()
			return
		}
		cm.conn = conn
		cm.mu.Unlock()

		cm.setStatus(domain.ConnConnected)

		// Room membership does not survive a connection reset, so the
		// personal notification channel is re-joined on every connect.
		// Active conversation rooms are re-joined by status subscribers.
		if err := conn.WriteEvent(domain.EventJoinUserRoom, &domain.JoinUserRoomPayload{UserID: cm.userID}); err != nil {
			cm.log.Error("Failed to join user room", "user_id", cm.userID, "error", err)
		}

		cm.readLoop(ctx, conn)

		cm.mu.Lock()
		if cm.conn == conn {
			cm.conn = nil
		}
		cm.mu.Unlock()
		conn.Close()

		if ctx.Err() != nil || !cm.current(gen) {
			return
		}

		cm.setStatus(domain.ConnDisconnected)
		cm.log.Warn("Gateway connection lost, reconnecting", "retry_in", delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
		delay = cm.nextDelay(delay)
	}
}

func (cm *ConnectionManager) readLoop(ctx context.Context, conn domain.BusConn) {
	for {
		env, err := conn.ReadEvent()
		if err != nil {
			if errors.Is(err, domain.ErrMalformedEvent) {
				cm.log.Warn("Dropping malformed event", "error", err)
				continue
			}
			if ctx.Err() == nil {
				cm.log.Warn("Read failed on gateway connection", "error", err)
			}
			return
		}

		cm.dispatch(env)
	}
}

func (cm *ConnectionManager) dispatch(env *domain.Envelope) {
	cm.mu.RLock()
	fns := make([]domain.EventHandler, 0, len(cm.handlers[env.Event]))
	for _, fn := range cm.handlers[env.Event] {
		fns = append(fns, fn)
	}
	cm.mu.RUnlock()

	if len(fns) == 0 {
		cm.log.Debug("No handler for event", "event", env.Event)
		return
	}

	for _, fn := range fns {
		fn(env.Data)
	}
}

func (cm *ConnectionManager) setStatus(s domain.ConnState) {
	cm.mu.Lock()
	if cm.status == s {
		cm.mu.Unlock()
		return
	}
	cm.status = s
	subs := make([]func(domain.ConnState), 0, len(cm.statusSubs))
	for _, fn := range cm.statusSubs {
		subs = append(subs, fn)
	}
	cm.mu.Unlock()

	for _, fn := range subs {
		fn(s)
	}
}

func (cm *ConnectionManager) nextDelay(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * cm.cfg.BackoffFactor)
	if next > cm.cfg.MaxReconnectDelay {
		next = cm.cfg.MaxReconnectDelay
	}
	return next
}

func (cm *ConnectionManager) current(gen int) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.generation == gen && cm.running
}
