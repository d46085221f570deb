package services

import (
	"context"
	"io"
	"sync"

	"auction-chat/internal/domain"
	"auction-chat/pkg/logger"

	"go.uber.org/zap/zapcore"
)

func testLogger() logger.Logger {
	return logger.NewWithLevel(zapcore.ErrorLevel)
}

type emittedEvent struct {
	event   string
	payload interface{}
}

// fakeBusConn is a scriptable bus connection. Inbound envelopes are fed
// through the inbound channel; closing it simulates a transport drop.
type fakeBusConn struct {
	inbound chan *domain.Envelope

	mu      sync.Mutex
	written []emittedEvent

	closeOnce sync.Once
}

func newFakeBusConn() *fakeBusConn {
	return &fakeBusConn{
		inbound: make(chan *domain.Envelope, 16),
	}
}

func (c *fakeBusConn) ReadEvent() (*domain.Envelope, error) {
	env, ok := <-c.inbound
	if !ok {
		return nil, io.EOF
	}
	return env, nil
}

func (c *fakeBusConn) WriteEvent(event string, payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, emittedEvent{event: event, payload: payload})
	return nil
}

func (c *fakeBusConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.inbound)
	})
	return nil
}

func (c *fakeBusConn) writtenEvents() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	events := make([]string, len(c.written))
	for i, w := range c.written {
		events[i] = w.event
	}
	return events
}

func (c *fakeBusConn) drop() {
	c.Close()
}

// fakeDialer hands out scripted connections in order and fails once the
// script is exhausted. failFirst makes the first N attempts fail before
// the script is consulted.
type fakeDialer struct {
	mu        sync.Mutex
	conns     []*fakeBusConn
	dials     int
	failFirst int
}

func newFakeDialer(conns ...*fakeBusConn) *fakeDialer {
	return &fakeDialer{conns: conns}
}

func (d *fakeDialer) Dial(ctx context.Context) (domain.BusConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials++
	if d.dials <= d.failFirst {
		return nil, io.ErrUnexpectedEOF
	}
	if len(d.conns) == 0 {
		return nil, io.ErrUnexpectedEOF
	}

	conn := d.conns[0]
	d.conns = d.conns[1:]
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// fakeConnManager implements domain.ConnectionManager for components that
// only need status transitions and emit recording.
type fakeConnManager struct {
	mu         sync.Mutex
	status     domain.ConnState
	emitted    []emittedEvent
	emitErr    error
	statusSubs []func(domain.ConnState)
	handlers   map[string][]domain.EventHandler
}

func newFakeConnManager() *fakeConnManager {
	return &fakeConnManager{
		status:   domain.ConnDisconnected,
		handlers: make(map[string][]domain.EventHandler),
	}
}

func (m *fakeConnManager) Connect(ctx context.Context, userID string) error { return nil }
func (m *fakeConnManager) Disconnect() error                                { return nil }

func (m *fakeConnManager) Status() domain.ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *fakeConnManager) OnStatus(fn func(domain.ConnState)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusSubs = append(m.statusSubs, fn)
	return func() {}
}

func (m *fakeConnManager) On(event string, fn domain.EventHandler) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], fn)
	return func() {}
}

func (m *fakeConnManager) Emit(event string, payload interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.emitErr != nil {
		return m.emitErr
	}
	m.emitted = append(m.emitted, emittedEvent{event: event, payload: payload})
	return nil
}

func (m *fakeConnManager) setStatus(s domain.ConnState) {
	m.mu.Lock()
	m.status = s
	subs := append([]func(domain.ConnState){}, m.statusSubs...)
	m.mu.Unlock()

	for _, fn := range subs {
		fn(s)
	}
}

func (m *fakeConnManager) emittedEvents() []emittedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]emittedEvent{}, m.emitted...)
}

func (m *fakeConnManager) inject(event string, data []byte) {
	m.mu.Lock()
	fns := append([]domain.EventHandler{}, m.handlers[event]...)
	m.mu.Unlock()

	for _, fn := range fns {
		fn(data)
	}
}

// fakeChatAPI scripts the collaborator REST surface.
type fakeChatAPI struct {
	mu            sync.Mutex
	conversations []*domain.Conversation
	messages      map[string][]*domain.Message
	postFn        func(ctx context.Context, conversationID, senderID, text string) (*domain.Message, error)
}

func newFakeChatAPI() *fakeChatAPI {
	return &fakeChatAPI{
		messages: make(map[string][]*domain.Message),
	}
}

func (a *fakeChatAPI) ListConversations(ctx context.Context) ([]*domain.Conversation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conversations, nil
}

func (a *fakeChatAPI) GetMessages(ctx context.Context, conversationID string) ([]*domain.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*domain.Message{}, a.messages[conversationID]...), nil
}

func (a *fakeChatAPI) PostMessage(ctx context.Context, conversationID, senderID, text string) (*domain.Message, error) {
	a.mu.Lock()
	postFn := a.postFn
	a.mu.Unlock()

	if postFn != nil {
		return postFn(ctx, conversationID, senderID, text)
	}
	return nil, io.ErrUnexpectedEOF
}

func (a *fakeChatAPI) setMessages(conversationID string, msgs []*domain.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages[conversationID] = msgs
}

// fakeSnapshotSource serves snapshots from an in-memory map. snapshotFn,
// when set, overrides the map lookup.
type fakeSnapshotSource struct {
	mu           sync.Mutex
	snapshots    map[string][]*domain.Message
	invalidated  []string
	snapshotErrs map[string]error
	snapshotFn   func(ctx context.Context, conversationID string) ([]*domain.Message, error)
}

func newFakeSnapshotSource() *fakeSnapshotSource {
	return &fakeSnapshotSource{
		snapshots:    make(map[string][]*domain.Message),
		snapshotErrs: make(map[string]error),
	}
}

func (s *fakeSnapshotSource) Snapshot(ctx context.Context, conversationID string) ([]*domain.Message, error) {
	s.mu.Lock()
	snapshotFn := s.snapshotFn
	s.mu.Unlock()

	if snapshotFn != nil {
		return snapshotFn(ctx, conversationID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.snapshotErrs[conversationID]; err != nil {
		return nil, err
	}
	return append([]*domain.Message{}, s.snapshots[conversationID]...), nil
}

func (s *fakeSnapshotSource) Invalidate(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated = append(s.invalidated, conversationID)
	return nil
}

func (s *fakeSnapshotSource) invalidatedCount(conversationID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, id := range s.invalidated {
		if id == conversationID {
			n++
		}
	}
	return n
}

func (s *fakeSnapshotSource) set(conversationID string, msgs []*domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[conversationID] = msgs
}

// fakeNotifier records dispatcher side effects.
type fakeNotifier struct {
	mu      sync.Mutex
	toasts  []*domain.Toast
	cleared int
	cues    int
	native  []*domain.Toast
}

func (n *fakeNotifier) ShowToast(t *domain.Toast) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.toasts = append(n.toasts, t)
	return nil
}

func (n *fakeNotifier) ClearToast() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cleared++
	return nil
}

func (n *fakeNotifier) PlayCue() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cues++
	return nil
}

func (n *fakeNotifier) PushNative(t *domain.Toast) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.native = append(n.native, t)
	return nil
}

func (n *fakeNotifier) toastCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.toasts)
}

func (n *fakeNotifier) clearedCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.cleared
}
