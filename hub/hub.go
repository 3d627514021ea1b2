// Package hub implements the single authoritative actor that owns the user
// table and room tables and serializes every state transition the chat
// system makes.
package hub

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/rawburt/chatd/protocol"
	"github.com/rawburt/chatd/storage"
)

const eventQueueCapacity = 4096

// Hub is the single-owner actor described in §4.4: every mutation to the
// name table and room tables happens on its one goroutine.
type Hub struct {
	events chan Event
	stopCh chan struct{}
	doneCh chan struct{}

	log   *zap.Logger
	store storage.Store

	sessions map[SessionID]*session
	names    map[string]SessionID
	rooms    map[string]*room
}

// New constructs a Hub. store may be nil, in which case diagnostic
// snapshots are skipped.
func New(log *zap.Logger, store storage.Store) *Hub {
	if log == nil {
		log = zap.NewNop()
	}

	return &Hub{
		events:   make(chan Event, eventQueueCapacity),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		log:      log.Named("hub"),
		store:    store,
		sessions: make(map[SessionID]*session),
		names:    make(map[string]SessionID),
		rooms:    make(map[string]*room),
	}
}

// Submit enqueues an event from a Connection Actor. It blocks only if the
// Hub's queue is saturated, never on a specific session.
func (h *Hub) Submit(ev Event) {
	select {
	case h.events <- ev:
	case <-h.stopCh:
	}
}

// Stop asks the Hub's Run loop to tear down every session and exit. Events
// still queued when Run sees the stop are not processed.
func (h *Hub) Stop() {
	select {
	case <-h.stopCh:
	default:
		close(h.stopCh)
	}
}

// Wait blocks until Run has returned.
func (h *Hub) Wait() {
	<-h.doneCh
}

// Run is the Hub's single event loop. It must be run on exactly one
// goroutine for the lifetime of the Hub.
func (h *Hub) Run() {
	defer close(h.doneCh)

	for {
		select {
		case ev := <-h.events:
			h.dispatch(ev)

		case <-h.stopCh:
			h.shutdownAll()
			return
		}
	}
}

func (h *Hub) dispatch(ev Event) {
	start := time.Now()
	command := "unknown"

	switch e := ev.(type) {
	case SessionOpened:
		command = "session_opened"
		h.handleSessionOpened(e)

	case InboundOk:
		command = e.Msg.Command
		h.handleInbound(e)

	case InboundErr:
		command = "parse_error"
		h.handleInboundErr(e)

	case SessionClosed:
		command = "session_closed"
		h.handleSessionClosed(e)
	}

	observe(command, "ok", start)
}

func (h *Hub) handleSessionOpened(e SessionOpened) {
	s := newSession(e.Handle)
	h.sessions[e.Handle.ID] = s
	ConnectedSessions.Set(float64(len(h.sessions)))

	h.send(s, protocol.NewMessage(protocol.CmdConnected))

	h.refreshSnapshot()
}

func (h *Hub) handleInboundErr(e InboundErr) {
	s, ok := h.sessions[e.ID]
	if !ok {
		return
	}

	h.sendError(s, reasonFor(e.Err))
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, protocol.ErrTooLong):
		return "message too long"
	case errors.Is(err, protocol.ErrBadCommand):
		return "bad command"
	case errors.Is(err, protocol.ErrBadIdent):
		return "bad format of name"
	case errors.Is(err, protocol.ErrBadPrefix):
		return "bad format of message"
	default:
		return "bad format"
	}
}

func (h *Hub) handleInbound(e InboundOk) {
	s, ok := h.sessions[e.ID]
	if !ok {
		return
	}

	msg := e.Msg

	switch s.state {
	case StateConnected:
		switch msg.Command {
		case protocol.CmdName:
			h.handleName(s, msg)
		case protocol.CmdQuit:
			h.handleQuit(s)
		default:
			h.sendError(s, "registration required")
		}

	case StateRegistered:
		switch msg.Command {
		case protocol.CmdName:
			h.handleName(s, msg)
		case protocol.CmdRooms:
			h.handleRooms(s)
		case protocol.CmdJoin:
			h.handleJoin(s, msg)
		case protocol.CmdLeave:
			h.handleLeave(s, msg)
		case protocol.CmdUsers:
			h.handleUsers(s, msg)
		case protocol.CmdSay:
			h.handleSay(s, msg)
		case protocol.CmdPong:
			h.handlePong(s)
		case protocol.CmdQuit:
			h.handleQuit(s)
		default:
			h.sendError(s, "unknown command")
		}

	case StateClosing:
		// Draining; any further commands are ignored.
	}
}

func (h *Hub) handleName(s *session, msg *protocol.Message) {
	u, ok := userParam(msg)
	if !ok {
		h.sendError(s, "bad format of user name")
		return
	}

	if existing, taken := h.names[u.Ident()]; taken && existing != s.handle.ID {
		h.sendError(s, "user already exists "+u.String())
		return
	}

	firstTime := s.state == StateConnected

	if s.name != "" {
		delete(h.names, s.name)
	}

	s.name = u.Ident()
	h.names[s.name] = s.handle.ID

	if firstTime {
		s.state = StateRegistered
		h.send(s, protocol.NewMessage(protocol.CmdRegistered))
	}

	h.refreshSnapshot()
}

func (h *Hub) handleRooms(s *session) {
	idents := make([]string, 0, len(h.rooms))
	for ident := range h.rooms {
		idents = append(idents, ident)
	}

	for _, ident := range idents {
		r, _ := protocol.NewRoom([]byte("#" + ident))
		h.send(s, protocol.NewMessage(protocol.CmdRoom, r))
	}
}

func (h *Hub) handleJoin(s *session, msg *protocol.Message) {
	r0, ok := roomParam(msg)
	if !ok {
		h.sendError(s, "bad format of room name")
		return
	}

	rm, exists := h.rooms[r0.Ident()]
	if !exists {
		rm = newRoom(r0.Ident())
		h.rooms[r0.Ident()] = rm
		ActiveRooms.Set(float64(len(h.rooms)))
	}

	rm.members[s.handle.ID] = s
	s.rooms[r0.Ident()] = struct{}{}

	joined := protocol.NewMessage(protocol.CmdJoined).WithRoomPrefix(r0, s.user())
	if err := h.fanout(rm, joined); err != nil {
		h.log.Warn("partial fan-out failure on join", zap.Error(err))
	}

	h.refreshSnapshot()
}

func (h *Hub) handleLeave(s *session, msg *protocol.Message) {
	r0, ok := roomParam(msg)
	if !ok {
		h.sendError(s, "bad format of room name")
		return
	}

	if _, exists := h.rooms[r0.Ident()]; !exists {
		h.sendError(s, "room unknown "+r0.String())
		return
	}

	if _, member := s.rooms[r0.Ident()]; !member {
		h.sendError(s, "room unknown "+r0.String())
		return
	}

	if err := h.leaveRoom(s, r0.Ident(), true); err != nil {
		h.log.Warn("partial fan-out failure on leave", zap.Error(err))
	}

	h.refreshSnapshot()
}

func (h *Hub) handleUsers(s *session, msg *protocol.Message) {
	r0, ok := roomParam(msg)
	if !ok {
		h.sendError(s, "bad format of room name")
		return
	}

	rm, exists := h.rooms[r0.Ident()]
	if !exists {
		h.sendError(s, "room unknown "+r0.String())
		return
	}

	for _, member := range rm.members {
		h.send(s, protocol.NewMessage(protocol.CmdUser, member.user()))
	}
}

func (h *Hub) handleSay(s *session, msg *protocol.Message) {
	if len(msg.Params) != 1 {
		h.sendError(s, "bad format of message")
		return
	}

	switch target := msg.Params[0].(type) {
	case protocol.Room:
		rm, exists := h.rooms[target.Ident()]
		if !exists {
			h.sendError(s, "room unknown "+target.String())
			return
		}

		said := protocol.NewMessage(protocol.CmdSaid).WithRoomPrefix(target, s.user())
		said.Payload = msg.Payload

		if err := h.fanout(rm, said); err != nil {
			h.log.Warn("partial fan-out failure on say", zap.Error(err))
		}

	case protocol.User:
		otherID, exists := h.names[target.Ident()]
		if !exists {
			h.sendError(s, "user unknown "+target.String())
			return
		}

		said := protocol.NewMessage(protocol.CmdSaid).WithPrefix(s.user())
		said.Payload = msg.Payload

		h.send(h.sessions[otherID], said)

	default:
		h.sendError(s, "bad format of message")
	}
}

func (h *Hub) handlePong(s *session) {
	if s.handle.ResetLiveness != nil {
		s.handle.ResetLiveness()
	}
}

func (h *Hub) handleQuit(s *session) {
	if s.state == StateClosing {
		return
	}

	s.state = StateClosing

	if err := h.teardown(s); err != nil {
		h.log.Warn("partial fan-out failure on quit", zap.Error(err))
	}

	if s.handle.Shutdown != nil {
		s.handle.Shutdown(ReasonQuit)
	}
}

func (h *Hub) handleSessionClosed(e SessionClosed) {
	s, ok := h.sessions[e.ID]
	if !ok {
		return
	}

	s.state = StateClosing

	if err := h.teardown(s); err != nil {
		h.log.Warn("partial fan-out failure on session close", zap.Error(err), zap.String("reason", string(e.Reason)))
	}
}

// send enqueues msg onto s's outbound channel, giving up after SendTimeout.
// A timed-out send marks the session Closing(Slow) and tears it down, per
// the Hub's backpressure policy.
func (h *Hub) send(s *session, msg *protocol.Message) bool {
	if s == nil {
		return false
	}

	select {
	case s.handle.Outbound <- msg:
		return true

	case <-time.After(SendTimeout):
		h.log.Warn("slow consumer, evicting session", zap.Uint64("session", uint64(s.handle.ID)))

		if s.state != StateClosing {
			s.state = StateClosing

			if s.handle.Shutdown != nil {
				s.handle.Shutdown(ReasonSlow)
			}

			if err := h.teardown(s); err != nil {
				h.log.Warn("partial fan-out failure evicting slow session", zap.Error(err))
			}
		}

		return false
	}
}

func (h *Hub) sendError(s *session, reason string) {
	h.send(s, protocol.ErrorMessage(reason))
}

// fanout delivers msg to every member of r, aggregating any slow-consumer
// failures into a single error for the caller to log.
func (h *Hub) fanout(r *room, msg *protocol.Message) error {
	var errs error

	for _, member := range r.members {
		if !h.send(member, msg) {
			errs = multierr.Append(errs, fmt.Errorf("session %d: slow consumer", member.handle.ID))
		}
	}

	return errs
}

// leaveRoom removes s from the room named by ident, deleting the room if it
// becomes empty, and otherwise optionally announcing LEFT to the remaining
// members.
func (h *Hub) leaveRoom(s *session, ident string, announce bool) error {
	rm, ok := h.rooms[ident]
	if !ok {
		return nil
	}

	delete(rm.members, s.handle.ID)
	delete(s.rooms, ident)

	if len(rm.members) == 0 {
		delete(h.rooms, ident)
		ActiveRooms.Set(float64(len(h.rooms)))
		return nil
	}

	if !announce {
		return nil
	}

	r, _ := protocol.NewRoom([]byte("#" + ident))
	left := protocol.NewMessage(protocol.CmdLeft).WithRoomPrefix(r, s.user())

	return h.fanout(rm, left)
}

// teardown removes s from every room it had joined (announcing LEFT where
// the room survives), frees its name, and drops it from the session table.
func (h *Hub) teardown(s *session) error {
	var errs error

	idents := make([]string, 0, len(s.rooms))
	for ident := range s.rooms {
		idents = append(idents, ident)
	}

	for _, ident := range idents {
		if err := h.leaveRoom(s, ident, true); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if s.name != "" {
		delete(h.names, s.name)
	}

	delete(h.sessions, s.handle.ID)
	ConnectedSessions.Set(float64(len(h.sessions)))

	h.refreshSnapshot()

	return errs
}

func (h *Hub) shutdownAll() {
	ids := make([]SessionID, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}

	var errs error

	for _, id := range ids {
		s, ok := h.sessions[id]
		if !ok {
			continue
		}

		if s.handle.Shutdown != nil {
			s.handle.Shutdown(ReasonShutdown)
		}

		if err := h.teardown(s); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if errs != nil {
		h.log.Warn("errors while shutting down sessions", zap.Error(errs))
	}
}

// refreshSnapshot publishes the current room roster and session count to
// the diagnostic store, if one was configured. This is informational only;
// the Hub's own maps remain the state of record.
func (h *Hub) refreshSnapshot() {
	if h.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	roomNames := make([]string, 0, len(h.rooms))
	for ident := range h.rooms {
		roomNames = append(roomNames, ident)
	}

	sort.Strings(roomNames)

	if err := h.store.Set(ctx, "rooms", roomNames); err != nil {
		h.log.Warn("failed to update diagnostic snapshot", zap.Error(err))
	}

	if err := h.store.Set(ctx, "sessions", len(h.sessions)); err != nil {
		h.log.Warn("failed to update diagnostic snapshot", zap.Error(err))
	}
}

func roomParam(msg *protocol.Message) (protocol.Room, bool) {
	if len(msg.Params) != 1 {
		return protocol.Room{}, false
	}

	r, ok := msg.Params[0].(protocol.Room)
	return r, ok
}

func userParam(msg *protocol.Message) (protocol.User, bool) {
	if len(msg.Params) != 1 {
		return protocol.User{}, false
	}

	u, ok := msg.Params[0].(protocol.User)
	return u, ok
}
